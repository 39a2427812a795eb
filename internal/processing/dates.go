package processing

import (
	"sort"
	"strings"
)

// DateToken is the canonical form of a date mention: a 4-digit year.
type DateToken string

// DatedSentence is a sentence with the date tokens found in it. Index is the sentence's
// position in the list it was tagged from.
type DatedSentence struct {
	Index int
	Text  string
	Dates []DateToken
}

// NormalizeDate returns the canonical year for raw, or false if it is not a parseable date.
func (p *Processor) NormalizeDate(raw string) (tok DateToken, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			tok, ok = "", false
		}
	}()
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	tok, ok = p.normalizer.Normalize(raw)
	if !ok || !isYear(string(tok)) {
		return "", false
	}
	return tok, true
}

// DateSet returns the sorted, unique date tokens of one sentence.
func (p *Processor) DateSet(sentence string) []DateToken {
	seen := make(map[DateToken]struct{})
	var out []DateToken
	for _, raw := range p.recognizer.Recognize(sentence) {
		tok, ok := p.NormalizeDate(raw)
		if !ok {
			continue
		}
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// TagDates keeps the sentences that mention at least one date.
func (p *Processor) TagDates(sentences []string) []DatedSentence {
	var out []DatedSentence
	for i, sentence := range sentences {
		dates := p.DateSet(sentence)
		if len(dates) == 0 {
			continue
		}
		out = append(out, DatedSentence{Index: i, Text: sentence, Dates: dates})
	}
	return out
}

func isYear(s string) bool {
	if len(s) != 4 {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
