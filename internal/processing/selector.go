package processing

import "strings"

// SelectDocumentSentences flattens the document paragraphs into the candidate sentences
// used for matching. Sentences shorter than MinTokens are skipped and each paragraph
// contributes at most MaxPerParagraph sentences.
func (p *Processor) SelectDocumentSentences(paragraphs []string) []string {
	out := make([]string, 0, len(paragraphs)*p.limits.MaxPerParagraph)
	for _, para := range paragraphs {
		accepted := 0
		for _, sentence := range p.segmenter.Segment(para) {
			if accepted == p.limits.MaxPerParagraph {
				break
			}
			if CountTokens(sentence) < p.limits.MinTokens {
				continue
			}
			out = append(out, sentence)
			accepted++
		}
	}
	return out
}

// SelectSummarySentences flattens the summary paragraphs into sentences.
func (p *Processor) SelectSummarySentences(paragraphs []string) []string {
	var out []string
	for _, para := range paragraphs {
		out = append(out, p.segmenter.Segment(para)...)
	}
	return out
}

// CountTokens counts whitespace-delimited tokens.
func CountTokens(sentence string) int {
	return len(strings.Fields(sentence))
}
