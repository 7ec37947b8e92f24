package parser

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

var (
	errInvalidDecimal = errors.New("not a decimal amount")

	decimalPattern = regexp.MustCompile(`^(\d+(\.\d*)?|\.\d+)$`)
	digitsPattern  = regexp.MustCompile(`\d+`)

	// "Â£" is the pound sign decoded as latin-1 instead of UTF-8.
	priceArtifacts = strings.NewReplacer("Â£", "", "£", "", "Â", "")

	ratingWords = map[string]int{
		"One":   1,
		"Two":   2,
		"Three": 3,
		"Four":  4,
		"Five":  5,
	}
)

// NormalizePrice removes the currency symbol, its mis-decoded variant and
// surrounding whitespace.
func NormalizePrice(price string) string {
	return strings.TrimSpace(priceArtifacts.Replace(price))
}

// ParsePrice converts price cell text to an amount. Any run of characters
// that is neither a digit nor a decimal point is stripped from both ends;
// what remains must be a plain decimal, so "51,77" is rejected.
func ParsePrice(text string) (float64, error) {
	core := strings.TrimFunc(NormalizePrice(text), func(r rune) bool {
		return !unicode.IsDigit(r) && r != '.'
	})
	if !decimalPattern.MatchString(core) {
		return 0, errInvalidDecimal
	}
	value, err := strconv.ParseFloat(core, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", errInvalidDecimal, err)
	}
	return value, nil
}

// ParseStock returns the first run of digits in the availability text, or 0.
func ParseStock(text string) int {
	match := digitsPattern.FindString(text)
	if match == "" {
		return 0
	}
	n, err := strconv.Atoi(match)
	if err != nil {
		return 0
	}
	return n
}

// RatingToNumeric converts a rating class word to its 1-5 value.
func RatingToNumeric(word string) (int, bool) {
	n, ok := ratingWords[strings.TrimSpace(word)]
	return n, ok
}

// RatingFromClasses returns the value of the first recognised rating word
// among the class tokens.
func RatingFromClasses(classAttr string) (int, bool) {
	for _, token := range strings.Fields(classAttr) {
		if n, ok := RatingToNumeric(token); ok {
			return n, true
		}
	}
	return 0, false
}
