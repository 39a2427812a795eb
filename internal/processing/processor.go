package processing

import (
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/DeafMist/extract-label/internal/models"
)

// ErrMalformedRecord is returned for records missing the document or summary field.
var ErrMalformedRecord = errors.New("malformed record")

// Segmenter splits a text blob into ordered sentences.
type Segmenter interface {
	Segment(text string) []string
}

// DateRecognizer returns the date-like substrings of a sentence.
type DateRecognizer interface {
	Recognize(sentence string) []string
}

// DateNormalizer turns a raw date substring into its canonical year.
type DateNormalizer interface {
	Normalize(raw string) (DateToken, bool)
}

// Limits bound the sentence selection and the label list.
type Limits struct {
	MaxParagraphs   int
	MinTokens       int
	MaxPerParagraph int
	MaxLabels       int
}

// DefaultLimits returns the labelling policy used for the training data.
func DefaultLimits() Limits {
	return Limits{
		MaxParagraphs:   8,
		MinTokens:       4,
		MaxPerParagraph: 3,
		MaxLabels:       4,
	}
}

// Processor labels records. It holds no per-record state and is safe for concurrent use
// as long as its collaborators are.
type Processor struct {
	segmenter  Segmenter
	recognizer DateRecognizer
	normalizer DateNormalizer
	limits     Limits
}

// NewProcessor wires the NLP collaborators into a Processor. Non-positive limits fall back
// to DefaultLimits.
func NewProcessor(seg Segmenter, rec DateRecognizer, norm DateNormalizer, limits Limits) *Processor {
	def := DefaultLimits()
	if limits.MaxParagraphs <= 0 {
		limits.MaxParagraphs = def.MaxParagraphs
	}
	if limits.MinTokens <= 0 {
		limits.MinTokens = def.MinTokens
	}
	if limits.MaxPerParagraph <= 0 {
		limits.MaxPerParagraph = def.MaxPerParagraph
	}
	if limits.MaxLabels <= 0 {
		limits.MaxLabels = def.MaxLabels
	}
	return &Processor{segmenter: seg, recognizer: rec, normalizer: norm, limits: limits}
}

// Limits reports the limits in effect.
func (p *Processor) Limits() Limits {
	return p.limits
}

// Process turns one record into its extractive labels.
func (p *Processor) Process(rec models.Record) (models.OutputRecord, error) {
	if rec.Document == nil {
		return models.OutputRecord{}, fmt.Errorf("%w: missing document", ErrMalformedRecord)
	}
	if rec.Summary == nil {
		return models.OutputRecord{}, fmt.Errorf("%w: missing summary", ErrMalformedRecord)
	}

	document := rec.Document
	if len(document) > p.limits.MaxParagraphs {
		document = document[:p.limits.MaxParagraphs]
	}

	docSentences := p.SelectDocumentSentences(document)
	summarySentences := p.SelectSummarySentences(rec.Summary)

	alignment := MatchDates(p.TagDates(summarySentences), p.TagDates(docSentences), p.limits.MaxLabels)

	return models.OutputRecord{
		Summ:         alignment.Summary,
		Document:     append(make([]string, 0, len(document)), document...),
		Sentence:     docSentences,
		ExtractLabel: alignment.Labels,
	}, nil
}

// BuildRecordID returns the record's explicit ID or a hash of its content.
func BuildRecordID(rec models.Record) string {
	if id := strings.TrimSpace(rec.ID); id != "" {
		return id
	}
	s := sha1.Sum([]byte(strings.Join(rec.Document, "\x1f") + "\x1e" + strings.Join(rec.Summary, "\x1f")))
	return hex.EncodeToString(s[:])
}
