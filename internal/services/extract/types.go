package extract

import (
	"regexp"
	"strconv"
	"strings"
)

// SearchType labels every record produced by this adapter.
const SearchType = "Google Maps"

// RecordContext carries the search metadata stamped onto each record.
type RecordContext struct {
	DetailURL      string
	SearchTerm     string
	SearchLocation string
}

var ratingPattern = regexp.MustCompile(`(\d+\.?\d*)`)

func parseRating(text string) (float64, bool) {
	m := ratingPattern.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	return parseFloat(m[1])
}

func parseFloat(text string) (float64, bool) {
	v, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// cleanLabel trims whitespace and the icon-font glyphs that prefix the
// address and phone button labels.
func cleanLabel(text string) string {
	return strings.TrimSpace(strings.TrimFunc(text, func(r rune) bool {
		return r >= 0xE000 && r <= 0xF8FF || r == ' ' || r == '\n' || r == '\t'
	}))
}

var nonDigits = regexp.MustCompile(`[^\d,]`)

// digitsOnly strips everything but digits and thousands separators, so
// "1,234 reviews" keeps its upstream formatting as "1,234".
func digitsOnly(text string) string {
	return strings.TrimSpace(nonDigits.ReplaceAllString(text, ""))
}
