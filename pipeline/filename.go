package pipeline

import (
	"regexp"
	"strconv"
	"strings"
	"sync"
)

// DefaultFileBase is used when a category name has no usable characters.
const DefaultFileBase = "category"

var (
	whitespaceRun = regexp.MustCompile(`\s+`)
	disallowed    = regexp.MustCompile(`[^a-z0-9_-]`)
)

// FileBase derives a filesystem-safe name from a category name: lower-cased,
// whitespace runs collapsed to "_", anything outside [a-z0-9_-] dropped.
func FileBase(name string) string {
	base := strings.ToLower(strings.TrimSpace(name))
	base = whitespaceRun.ReplaceAllString(base, "_")
	base = disallowed.ReplaceAllString(base, "")
	if base == "" {
		return DefaultFileBase
	}
	return base
}

// namer hands out unique file bases. The first holder of a base keeps it;
// later ones get "_2", "_3" and so on.
type namer struct {
	mu   sync.Mutex
	used map[string]struct{}
}

func newNamer() *namer {
	return &namer{used: make(map[string]struct{})}
}

func (n *namer) claim(name string) string {
	n.mu.Lock()
	defer n.mu.Unlock()

	base := FileBase(name)
	candidate := base
	for i := 2; ; i++ {
		if _, taken := n.used[candidate]; !taken {
			break
		}
		candidate = base + "_" + strconv.Itoa(i)
	}
	n.used[candidate] = struct{}{}
	return candidate
}
