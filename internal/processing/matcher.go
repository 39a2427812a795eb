package processing

import "sort"

// Alignment is the result of matching summary sentences to document sentences.
// Summary[i] was matched before Summary[i+1]; Labels is sorted and may repeat an index
// when two summary sentences match the same document sentence.
type Alignment struct {
	Summary []string
	Labels  []int
}

// MatchDates pairs every summary sentence with the first document sentence sharing a
// date token. Only the first maxLabels matches in scan order are kept; their indices are
// then sorted.
func MatchDates(summary, document []DatedSentence, maxLabels int) Alignment {
	matched := make([]int, 0, len(summary))
	selected := make([]string, 0, len(summary))

	for _, s := range summary {
		for _, d := range document {
			if !intersects(s.Dates, d.Dates) {
				continue
			}
			matched = append(matched, d.Index)
			selected = append(selected, s.Text)
			break
		}
	}

	if maxLabels >= 0 && len(matched) > maxLabels {
		matched = matched[:maxLabels]
		selected = selected[:maxLabels]
	}
	sort.Ints(matched)

	return Alignment{Summary: selected, Labels: matched}
}

func intersects(a, b []DateToken) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	set := make(map[DateToken]struct{}, len(a))
	for _, tok := range a {
		set[tok] = struct{}{}
	}
	for _, tok := range b {
		if _, ok := set[tok]; ok {
			return true
		}
	}
	return false
}
