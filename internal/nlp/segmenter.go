// Package nlp holds the sentence and date collaborators used by the labelling processor.
package nlp

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/neurosnap/sentences"
	"github.com/neurosnap/sentences/english"

	"github.com/DeafMist/extract-label/internal/processing"
)

// numberStop marks a sentence that ends in a number followed by a capitalised sentence.
// The English Punkt model treats "1990. Cars" as one sentence.
var numberStop = regexp.MustCompile(`\d[.!?]["')\]]?(\s+)["'(]?\p{Lu}`)

// SentenceSegmenter splits text with the English Punkt model.
type SentenceSegmenter struct {
	tokenizer *sentences.DefaultSentenceTokenizer
}

// NewSentenceSegmenter loads the English Punkt model.
func NewSentenceSegmenter() (*SentenceSegmenter, error) {
	tok, err := english.NewSentenceTokenizer(nil)
	if err != nil {
		return nil, fmt.Errorf("load punkt model: %w", err)
	}
	return &SentenceSegmenter{tokenizer: tok}, nil
}

// Segment returns the trimmed, non-empty sentences of text in order.
func (s *SentenceSegmenter) Segment(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	var out []string
	for _, sent := range s.tokenizer.Tokenize(text) {
		for _, part := range splitAfterNumbers(sent.Text) {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				out = append(out, trimmed)
			}
		}
	}
	return out
}

// splitAfterNumbers breaks sent at every numberStop boundary.
func splitAfterNumbers(sent string) []string {
	gaps := numberStop.FindAllStringSubmatchIndex(sent, -1)
	if len(gaps) == 0 {
		return []string{sent}
	}
	parts := make([]string, 0, len(gaps)+1)
	start := 0
	for _, g := range gaps {
		parts = append(parts, sent[start:g[2]])
		start = g[3]
	}
	return append(parts, sent[start:])
}

// NewProcessor builds a labelling processor on the default English collaborators.
func NewProcessor(limits processing.Limits) (*processing.Processor, error) {
	seg, err := NewSentenceSegmenter()
	if err != nil {
		return nil, err
	}
	return processing.NewProcessor(seg, NewDateRecognizer(), NewDateNormalizer(), limits), nil
}
