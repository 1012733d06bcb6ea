package chunker

import (
	"regexp"
	"strings"

	"nyayasetu/internal/models"
	"nyayasetu/pkg/logger"
)

// Section labels produced by the structural strategies.
const (
	SectionComplainant   = "complainant"
	SectionIncident      = "incident"
	SectionEvidence      = "evidence"
	SectionAccused       = "accused"
	SectionWitnesses     = "witnesses"
	SectionInvestigation = "investigation"
	SectionReasoning     = "reasoning"
)

// reasoningMarkers flag ruling paragraphs that carry the court's reasoning.
// Those paragraphs may grow to twice the default chunk size because splitting
// an argument mid-stream degrades answer quality.
var reasoningMarkers = []string{
	"held that", "we hold", "in our opinion", "we are of the view",
	"considering the", "it is established", "the evidence shows",
	"accordingly", "therefore", "thus we conclude",
}

// filingSections maps a case-filing heading keyword to its section label.
var filingSections = []struct {
	label    string
	keywords []string
}{
	{SectionComplainant, []string{"complainant", "informant", "first information"}},
	{SectionIncident, []string{"incident", "occurrence", "offence committed"}},
	{SectionEvidence, []string{"evidence", "exhibit", "forensic", "seized", "property"}},
	{SectionAccused, []string{"accused", "suspect", "person charged"}},
	{SectionWitnesses, []string{"witness", "deposition", "statement"}},
	{SectionInvestigation, []string{"investigation", "chronology", "inquiry"}},
}

var statuteHeading = regexp.MustCompile(`(?i)^section\s+\d+[A-Z]*\b`)

// Chunker splits normalized documents into overlapping passages. Sizes are
// counted in words; the token estimate downstream applies its own factor.
type Chunker struct {
	log       *logger.Logger
	chunkSize int
	overlap   int
}

// NewChunker creates a Chunker with the given target size and overlap, both
// in words.
func NewChunker(chunkSize, overlap int, log *logger.Logger) *Chunker {
	return &Chunker{log: log, chunkSize: chunkSize, overlap: overlap}
}

// span is an intermediate run of words sharing a section label and budget.
type span struct {
	words   []string
	section string
	budget  int
}

// Chunk splits a document by its type's strategy. A document that yields no
// chunks (empty or whitespace-only text) is logged and returns nil, never an
// error.
func (c *Chunker) Chunk(doc *models.Document) []*models.Chunk {
	paragraphs := splitParagraphs(doc.Text)
	if len(paragraphs) == 0 {
		c.log.WithField("document_id", doc.ID).Warn("Document has no chunkable text, skipping")
		return nil
	}

	var spans []span
	switch doc.Type {
	case models.DocTypeStatute:
		spans = c.statuteSpans(paragraphs)
	case models.DocTypeCaseFiling:
		spans = c.filingSpans(paragraphs)
	case models.DocTypeRuling:
		spans = c.rulingSpans(paragraphs)
	default:
		spans = c.genericSpans(paragraphs)
	}

	pieces := c.pack(spans)
	if len(pieces) == 0 {
		c.log.WithField("document_id", doc.ID).Warn("Document has no chunkable text, skipping")
		return nil
	}

	chunks := make([]*models.Chunk, len(pieces))
	var prevWords []string
	for i, piece := range pieces {
		words := piece.words
		overlap := 0
		if i > 0 && c.overlap > 0 {
			overlap = c.overlap
			if overlap > len(prevWords) {
				overlap = len(prevWords)
			}
			words = append(append([]string{}, prevWords[len(prevWords)-overlap:]...), words...)
		}
		chunks[i] = &models.Chunk{
			DocumentID:   doc.ID,
			DocumentType: doc.Type,
			Language:     doc.Language,
			Seq:          i,
			Total:        len(pieces),
			Section:      piece.section,
			Overlap:      overlap,
			Metadata:     doc.Metadata,
			Text:         strings.Join(words, " "),
		}
		prevWords = piece.words
	}
	return chunks
}

// genericSpans packs whole paragraphs up to the default budget.
func (c *Chunker) genericSpans(paragraphs []string) []span {
	spans := make([]span, 0, len(paragraphs))
	for _, p := range paragraphs {
		spans = append(spans, span{words: strings.Fields(p), budget: c.chunkSize})
	}
	return spans
}

// statuteSpans labels each run of paragraphs with the statute section heading
// that opens it.
func (c *Chunker) statuteSpans(paragraphs []string) []span {
	spans := make([]span, 0, len(paragraphs))
	section := ""
	for _, p := range paragraphs {
		if heading := statuteHeading.FindString(p); heading != "" {
			section = strings.Join(strings.Fields(heading), " ")
		}
		spans = append(spans, span{words: strings.Fields(p), section: section, budget: c.chunkSize})
	}
	return spans
}

// filingSpans labels paragraphs by the filing section their heading opens,
// carrying the label forward until the next heading.
func (c *Chunker) filingSpans(paragraphs []string) []span {
	spans := make([]span, 0, len(paragraphs))
	section := ""
	for _, p := range paragraphs {
		if label := filingLabel(p); label != "" {
			section = label
		}
		spans = append(spans, span{words: strings.Fields(p), section: section, budget: c.chunkSize})
	}
	return spans
}

// rulingSpans keeps reasoning paragraphs intact up to twice the default size.
func (c *Chunker) rulingSpans(paragraphs []string) []span {
	spans := make([]span, 0, len(paragraphs))
	for _, p := range paragraphs {
		s := span{words: strings.Fields(p), budget: c.chunkSize}
		if isReasoning(p) {
			s.section = SectionReasoning
			s.budget = c.chunkSize * 2
		}
		spans = append(spans, s)
	}
	return spans
}

// piece is a finished chunk body before overlap is applied.
type piece struct {
	words   []string
	section string
}

// pack merges consecutive spans with the same label while they fit the
// budget, splitting oversized spans at sentence boundaries first and word
// boundaries last.
func (c *Chunker) pack(spans []span) []piece {
	var pieces []piece
	var current piece
	budget := c.chunkSize

	flush := func() {
		if len(current.words) > 0 {
			pieces = append(pieces, current)
			current = piece{}
		}
	}

	for _, s := range spans {
		if len(s.words) == 0 {
			continue
		}
		if len(current.words) > 0 && (current.section != s.section || len(current.words)+len(s.words) > budget) {
			flush()
		}
		if len(current.words) == 0 {
			current.section = s.section
			budget = s.budget
		}

		if len(s.words) <= s.budget {
			current.words = append(current.words, s.words...)
			continue
		}

		// Paragraph alone exceeds its budget: fall back to sentences.
		flush()
		for _, sentenceWords := range splitOversized(s.words, s.budget) {
			pieces = append(pieces, piece{words: sentenceWords, section: s.section})
		}
	}
	flush()
	return pieces
}

// splitOversized packs the sentences of an oversized paragraph into
// budget-sized word windows. A single sentence longer than the budget is
// hard-split at word boundaries.
func splitOversized(words []string, budget int) [][]string {
	sentences := splitSentences(strings.Join(words, " "))

	var out [][]string
	var current []string
	for _, sentence := range sentences {
		sw := strings.Fields(sentence)
		if len(current) > 0 && len(current)+len(sw) > budget {
			out = append(out, current)
			current = nil
		}
		for len(sw) > budget {
			out = append(out, sw[:budget])
			sw = sw[budget:]
		}
		current = append(current, sw...)
	}
	if len(current) > 0 {
		out = append(out, current)
	}
	return out
}

// splitParagraphs splits on blank lines and drops empty paragraphs.
func splitParagraphs(text string) []string {
	raw := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n\n")
	paragraphs := make([]string, 0, len(raw))
	for _, p := range raw {
		if strings.TrimSpace(p) != "" {
			paragraphs = append(paragraphs, strings.TrimSpace(p))
		}
	}
	return paragraphs
}

// splitSentences splits text after terminal punctuation, including the
// Devanagari danda used in Hindi rulings.
func splitSentences(text string) []string {
	var sentences []string
	start := 0
	runes := []rune(text)
	for i, r := range runes {
		if r == '.' || r == '!' || r == '?' || r == '।' {
			if i+1 == len(runes) || runes[i+1] == ' ' {
				s := strings.TrimSpace(string(runes[start : i+1]))
				if s != "" {
					sentences = append(sentences, s)
				}
				start = i + 1
			}
		}
	}
	if tail := strings.TrimSpace(string(runes[start:])); tail != "" {
		sentences = append(sentences, tail)
	}
	return sentences
}

func filingLabel(paragraph string) string {
	lower := strings.ToLower(paragraph)
	head := lower
	if len(head) > 80 {
		head = head[:80]
	}
	for _, s := range filingSections {
		for _, kw := range s.keywords {
			if strings.HasPrefix(head, kw) {
				return s.label
			}
		}
	}
	return ""
}

func isReasoning(paragraph string) bool {
	lower := strings.ToLower(paragraph)
	for _, marker := range reasoningMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
