package nlp

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
)

const months = `(?:Jan(?:uary)?|Feb(?:ruary)?|Mar(?:ch)?|Apr(?:il)?|May|June?|July?|Aug(?:ust)?|Sep(?:t(?:ember)?)?|Oct(?:ober)?|Nov(?:ember)?|Dec(?:ember)?)\.?`

const ordinal = `\d{1,2}(?:st|nd|rd|th)?`

// Alternatives sharing a start position are ordered longest first.
var datePattern = regexp.MustCompile(strings.Join([]string{
	// 2026-01-15, 2026/01/15
	`\b\d{4}[-/]\d{1,2}[-/]\d{1,2}\b`,
	// 15/01/2026, 1.15.2026, 01-15-26
	`\b\d{1,2}[-/.]\d{1,2}[-/.](?:\d{4}|\d{2})\b`,
	// 15 March 2026, 15th of March, 2026
	`\b` + ordinal + `\s+(?:of\s+)?` + months + `,?\s+\d{4}\b`,
	// March 15, 2026 / March 15th 2026 / March 2026 / March 15
	`\b` + months + `(?:\s+` + ordinal + `)?(?:,?\s+\d{4})?\b`,
}, "|"))

var bareYear = regexp.MustCompile(`\b(?:1\d{3}|20\d{2})\b`)

// yearLeads are words after which a bare number reads as a year.
var yearLeads = map[string]bool{
	"in": true, "since": true, "by": true, "during": true, "until": true, "till": true,
	"from": true, "to": true, "before": true, "after": true, "around": true, "circa": true,
	"c": true, "ca": true, "between": true, "and": true, "or": true, "through": true,
	"year": true, "early": true, "mid": true, "late": true,
}

var yearDashes = []string{"-", "–", "—", "/"}

// periodWords precede "of" in phrases like "the summer of 1969".
var periodWords = map[string]bool{
	"year": true, "summer": true, "winter": true, "spring": true, "autumn": true, "fall": true,
	"end": true, "start": true, "beginning": true, "middle": true, "class": true,
}

// DateRecognizer finds date-like substrings with regular expressions.
type DateRecognizer struct{}

// NewDateRecognizer returns the rule-based date recognizer.
func NewDateRecognizer() *DateRecognizer {
	return &DateRecognizer{}
}

type span struct {
	start int
	text  string
}

// Recognize returns the unique date substrings of sentence in order of appearance.
// A bare four-digit number counts only where it reads as a year.
func (r *DateRecognizer) Recognize(sentence string) []string {
	var found []span
	covered := datePattern.FindAllStringIndex(sentence, -1)
	for _, loc := range covered {
		found = append(found, span{start: loc[0], text: sentence[loc[0]:loc[1]]})
	}
	for _, loc := range bareYear.FindAllStringIndex(sentence, -1) {
		if overlaps(covered, loc) || !yearContext(sentence, loc[0], loc[1]) {
			continue
		}
		found = append(found, span{start: loc[0], text: sentence[loc[0]:loc[1]]})
	}
	if len(found) == 0 {
		return nil
	}
	sort.Slice(found, func(i, j int) bool { return found[i].start < found[j].start })

	seen := make(map[string]struct{}, len(found))
	out := make([]string, 0, len(found))
	for _, f := range found {
		m := strings.TrimSpace(f.text)
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	return out
}

func overlaps(spans [][]int, loc []int) bool {
	for _, s := range spans {
		if loc[0] < s[1] && s[0] < loc[1] {
			return true
		}
	}
	return false
}

// yearContext reports whether the number at sentence[start:end] reads as a year: it
// closes a clause, follows a year-leading word, or is part of a year range.
func yearContext(sentence string, start, end int) bool {
	if end == len(sentence) || strings.ContainsRune(`.,;:!?)]"'`, rune(sentence[end])) {
		return true
	}

	before := strings.TrimRightFunc(sentence[:start], unicode.IsSpace)
	if strings.HasSuffix(before, "(") {
		return true
	}
	after := strings.TrimLeftFunc(sentence[end:], unicode.IsSpace)
	for _, dash := range yearDashes {
		if rest, ok := strings.CutSuffix(before, dash); ok && bareYear.MatchString(lastWord(rest)) {
			return true
		}
		if rest, ok := strings.CutPrefix(after, dash); ok && bareYear.MatchString(firstWord(rest)) {
			return true
		}
	}

	words := strings.Fields(strings.ToLower(before))
	if len(words) == 0 {
		return false
	}
	last := strings.Trim(words[len(words)-1], `.,;:"'(`)
	if yearLeads[last] {
		return true
	}
	return last == "of" && len(words) > 1 && periodWords[strings.Trim(words[len(words)-2], `.,;:"'(`)]
}

func lastWord(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return fields[len(fields)-1]
}

func firstWord(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
