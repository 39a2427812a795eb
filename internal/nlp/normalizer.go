package nlp

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"

	"github.com/DeafMist/extract-label/internal/processing"
)

var (
	yearOnly      = regexp.MustCompile(`^\d{4}$`)
	ordinalSuffix = regexp.MustCompile(`(\d)(?:st|nd|rd|th)\b`)
	abbrevDot     = regexp.MustCompile(`([A-Za-z])\.`)
	ofWord        = regexp.MustCompile(`(?i)\s+of\s+`)
	spaces        = regexp.MustCompile(`\s+`)
	septAbbrev    = regexp.MustCompile(`(?i)\bsept\b`)
)

// Exact layouts for the shapes the recognizer emits, tried before dateparse.
// Each one carries an explicit year.
var layouts = []string{
	"2006-01-02",
	"1/2/2006",
	"2/1/2006",
	"January 2006",
	"Jan 2006",
	"January, 2006",
	"Jan, 2006",
	"2 January 2006",
	"2 Jan 2006",
	"2 January, 2006",
	"2 Jan, 2006",
	"January 2 2006",
	"Jan 2 2006",
	"January 2, 2006",
	"Jan 2, 2006",
}

const (
	minYear = 1000
	maxYear = 9999
)

// DateNormalizer maps a date fragment to its 4-digit year.
type DateNormalizer struct {
	loc *time.Location
}

// NewDateNormalizer returns a normalizer that parses in UTC so results do not depend on
// the host time zone.
func NewDateNormalizer() *DateNormalizer {
	return &DateNormalizer{loc: time.UTC}
}

// Normalize returns the year of raw. Fragments without an explicit year, unparseable
// fragments and years outside 1000-9999 report false.
func (n *DateNormalizer) Normalize(raw string) (tok processing.DateToken, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			tok, ok = "", false
		}
	}()

	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	if yearOnly.MatchString(raw) {
		return yearToken(raw)
	}
	if !containsYear(raw) {
		return "", false
	}

	clean := cleanFragment(raw)
	for _, layout := range layouts {
		if ts, err := time.ParseInLocation(layout, clean, n.loc); err == nil {
			return yearToken(strconv.Itoa(ts.Year()))
		}
	}
	ts, err := dateparse.ParseIn(clean, n.loc, dateparse.RetryAmbiguousDateWithSwap(true))
	if err != nil {
		return "", false
	}
	return yearToken(strconv.Itoa(ts.Year()))
}

func yearToken(s string) (processing.DateToken, bool) {
	y, err := strconv.Atoi(s)
	if err != nil || y < minYear || y > maxYear {
		return "", false
	}
	return processing.DateToken(strconv.Itoa(y)), true
}

// containsYear reports whether raw has a year-like part: four digits, or a trailing
// two-digit group in a numeric date such as 01/15/26.
func containsYear(raw string) bool {
	digits := 0
	groups := 0
	longest := 0
	for i := 0; i <= len(raw); i++ {
		if i < len(raw) && raw[i] >= '0' && raw[i] <= '9' {
			digits++
			continue
		}
		if digits > 0 {
			groups++
			if digits > longest {
				longest = digits
			}
		}
		digits = 0
	}
	return longest == 4 || groups >= 3
}

func cleanFragment(raw string) string {
	s := ordinalSuffix.ReplaceAllString(raw, "$1")
	s = abbrevDot.ReplaceAllString(s, "$1")
	// Go layouts and dateparse only know the three-letter "Sep".
	s = septAbbrev.ReplaceAllString(s, "Sep")
	s = ofWord.ReplaceAllString(s, " ")
	s = spaces.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}
