package models_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/DeafMist/extract-label/internal/models"
)

func TestRecordSummaryKeys(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want []string
	}{
		{name: "summary", raw: `{"document":["d"],"summary":["s"]}`, want: []string{"s"}},
		{name: "summ alias", raw: `{"document":["d"],"summ":["s"]}`, want: []string{"s"}},
		{name: "summary wins", raw: `{"document":["d"],"summary":["s"],"summ":["t"]}`, want: []string{"s"}},
		{name: "missing", raw: `{"document":["d"]}`, want: nil},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var rec models.Record
			require.NoError(t, json.Unmarshal([]byte(tc.raw), &rec))
			require.Equal(t, []string{"d"}, rec.Document)
			require.Equal(t, tc.want, rec.Summary)
		})
	}
}

func TestRecordKeepsIdentity(t *testing.T) {
	var rec models.Record
	require.NoError(t, json.Unmarshal([]byte(`{"id":"r1","source":"wiki","document":[],"summary":[]}`), &rec))
	require.Equal(t, "r1", rec.ID)
	require.Equal(t, "wiki", rec.Source)
	require.NotNil(t, rec.Document)
	require.Empty(t, rec.Document)
}

func TestLabelDocumentFlattensOutput(t *testing.T) {
	doc := models.LabelDocument{
		ID:         "r1",
		Source:     "wiki",
		Timestamp:  time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		LabelCount: 1,
		OutputRecord: models.OutputRecord{
			Summ:         []string{"s"},
			Document:     []string{"d"},
			Sentence:     []string{"d"},
			ExtractLabel: []int{0},
		},
	}

	data, err := json.Marshal(doc)
	require.NoError(t, err)
	require.JSONEq(t, `{
		"id": "r1",
		"source": "wiki",
		"timestamp": "2026-03-01T00:00:00Z",
		"label_count": 1,
		"summ": ["s"],
		"document": ["d"],
		"sentence": ["d"],
		"extract_label": [0]
	}`, string(data))
}
