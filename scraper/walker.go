package scraper

import (
	"context"
	"fmt"
	"log/slog"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/Wisny97/Projet-1/parser"
)

// Walk is the result of following one category's pagination chain.
type Walk struct {
	Links []string
	Pages int
}

// Walker follows "next" links from a listing page and collects product links
// in page order.
type Walker struct {
	fetcher   Fetcher
	maxPages  int
	cacheSize int
	logger    *slog.Logger
}

// NewWalker returns a walker that stops after maxPages pages and remembers up
// to cacheSize visited pages when checking for cycles.
func NewWalker(fetcher Fetcher, maxPages, cacheSize int, logger *slog.Logger) *Walker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Walker{
		fetcher:   fetcher,
		maxPages:  maxPages,
		cacheSize: cacheSize,
		logger:    logger.With("component", "walker"),
	}
}

// Walk fetches listingURL and every following page. A fetch or structure
// failure on any page aborts the walk and is returned wrapped with the page
// address; the links gathered so far are returned alongside it.
func (w *Walker) Walk(ctx context.Context, listingURL string) (*Walk, error) {
	visited, err := lru.New[string, struct{}](w.cacheSize)
	if err != nil {
		return nil, fmt.Errorf("visited cache: %w", err)
	}
	ctx = WithPhase(ctx, PhaseListing)

	result := &Walk{}
	cursor := listingURL
	for cursor != "" {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if w.maxPages > 0 && result.Pages >= w.maxPages {
			w.logger.Warn("page limit reached, ending walk",
				slog.String("listing", listingURL),
				slog.Int("max_pages", w.maxPages),
			)
			break
		}
		visited.Add(cursor, struct{}{})

		body, err := w.fetcher.Fetch(ctx, cursor)
		if err != nil {
			return result, fmt.Errorf("listing page %s: %w", cursor, err)
		}
		doc, err := parser.ParseDocument(cursor, body)
		if err != nil {
			return result, fmt.Errorf("listing page %s: %w", cursor, err)
		}
		links, next, err := parser.ParseListing(doc, cursor)
		if err != nil {
			return result, fmt.Errorf("listing page %s: %w", cursor, err)
		}

		result.Pages++
		result.Links = append(result.Links, links...)
		w.logger.Debug("listing page parsed",
			slog.String("url", cursor),
			slog.Int("links", len(links)),
			slog.Int("page", result.Pages),
		)

		if next != "" && visited.Contains(next) {
			w.logger.Warn("pagination cycle detected, ending walk",
				slog.String("listing", listingURL),
				slog.String("next", next),
			)
			break
		}
		cursor = next
	}

	return result, nil
}
