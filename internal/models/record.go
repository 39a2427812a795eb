package models

import (
	"encoding/json"
	"time"
)

// Record is one raw (document, summary) training pair.
type Record struct {
	ID       string   `json:"id,omitempty"`
	Source   string   `json:"source,omitempty"`
	Document []string `json:"document"`
	Summary  []string `json:"summary"`
}

// UnmarshalJSON accepts the summary under either "summary" or the dataset's "summ" key.
func (r *Record) UnmarshalJSON(data []byte) error {
	type plain Record
	var raw struct {
		plain
		Summ []string `json:"summ"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*r = Record(raw.plain)
	if r.Summary == nil {
		r.Summary = raw.Summ
	}
	return nil
}

// OutputRecord is the extractive-label form of a Record.
type OutputRecord struct {
	Summ         []string `json:"summ"`
	Document     []string `json:"document"`
	Sentence     []string `json:"sentence"`
	ExtractLabel []int    `json:"extract_label"`
}

// LabelDocument is the structure stored in Elasticsearch.
type LabelDocument struct {
	ID         string    `json:"id"`
	Source     string    `json:"source"`
	Timestamp  time.Time `json:"timestamp"`
	LabelCount int       `json:"label_count"`
	OutputRecord
}
