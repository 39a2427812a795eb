package processing_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/DeafMist/extract-label/internal/processing"
)

func dated(index int, text string, dates ...processing.DateToken) processing.DatedSentence {
	return processing.DatedSentence{Index: index, Text: text, Dates: dates}
}

func TestMatchDatesTruncatesBeforeSorting(t *testing.T) {
	years := []processing.DateToken{"1905", "1903", "1901", "1904", "1900", "1902"}

	var summary []processing.DatedSentence
	for i, y := range years {
		summary = append(summary, dated(i, "summary "+string(y), y))
	}
	var document []processing.DatedSentence
	for i := 0; i < 6; i++ {
		y := processing.DateToken("190" + string(rune('0'+i)))
		document = append(document, dated(i, "document "+string(y), y))
	}

	got := processing.MatchDates(summary, document, 4)
	require.Equal(t, []int{1, 3, 4, 5}, got.Labels)
	require.Equal(t, []string{"summary 1905", "summary 1903", "summary 1901", "summary 1904"}, got.Summary)
}

func TestMatchDates(t *testing.T) {
	tests := []struct {
		name        string
		summary     []processing.DatedSentence
		document    []processing.DatedSentence
		wantLabels  []int
		wantSummary []string
	}{
		{
			name:        "no overlap",
			summary:     []processing.DatedSentence{dated(0, "s0", "1990")},
			document:    []processing.DatedSentence{dated(0, "d0", "1991")},
			wantLabels:  []int{},
			wantSummary: []string{},
		},
		{
			name:        "first document match wins",
			summary:     []processing.DatedSentence{dated(0, "s0", "1990")},
			document:    []processing.DatedSentence{dated(1, "d1", "1990"), dated(3, "d3", "1990")},
			wantLabels:  []int{1},
			wantSummary: []string{"s0"},
		},
		{
			name:    "any shared token is enough",
			summary: []processing.DatedSentence{dated(0, "s0", "1914", "1918")},
			document: []processing.DatedSentence{
				dated(2, "d2", "1939"),
				dated(4, "d4", "1918", "1945"),
			},
			wantLabels:  []int{4},
			wantSummary: []string{"s0"},
		},
		{
			// Repeated indices are kept as-is; deduplication would change the label length.
			name:        "duplicate document index kept",
			summary:     []processing.DatedSentence{dated(0, "s0", "2001"), dated(2, "s2", "2001")},
			document:    []processing.DatedSentence{dated(2, "d2", "2001")},
			wantLabels:  []int{2, 2},
			wantSummary: []string{"s0", "s2"},
		},
		{
			name:        "unmatched summary sentence contributes nothing",
			summary:     []processing.DatedSentence{dated(0, "s0", "1800"), dated(1, "s1", "1900")},
			document:    []processing.DatedSentence{dated(7, "d7", "1900")},
			wantLabels:  []int{7},
			wantSummary: []string{"s1"},
		},
		{
			name:        "empty sets never match",
			summary:     []processing.DatedSentence{dated(0, "s0")},
			document:    []processing.DatedSentence{dated(0, "d0")},
			wantLabels:  []int{},
			wantSummary: []string{},
		},
		{
			name:        "nothing to match",
			wantLabels:  []int{},
			wantSummary: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := processing.MatchDates(tt.summary, tt.document, 4)
			require.Equal(t, tt.wantLabels, got.Labels)
			require.Equal(t, tt.wantSummary, got.Summary)
			require.Len(t, got.Summary, len(got.Labels))
			require.LessOrEqual(t, len(got.Labels), 4)
			require.IsNonDecreasing(t, got.Labels)
		})
	}
}

func TestMatchDatesFewerThanLimit(t *testing.T) {
	summary := []processing.DatedSentence{dated(0, "s0", "1990"), dated(1, "s1", "1980")}
	document := []processing.DatedSentence{dated(3, "d3", "1980"), dated(9, "d9", "1990")}

	got := processing.MatchDates(summary, document, 4)
	require.Equal(t, []int{3, 9}, got.Labels)
	require.Equal(t, []string{"s0", "s1"}, got.Summary)
}
