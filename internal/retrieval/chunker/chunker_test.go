package chunker

import (
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nyayasetu/internal/models"
	"nyayasetu/pkg/logger"
)

func testLogger() *logger.Logger {
	logger.Init(logrus.ErrorLevel)
	return logger.New("chunker-test", "")
}

func words(n int, prefix string) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = prefix
	}
	return strings.Join(parts, " ")
}

// reconstruct joins chunks in sequence order with their overlap words removed.
func reconstruct(chunks []*models.Chunk) string {
	var out []string
	for _, c := range chunks {
		w := strings.Fields(c.Text)
		out = append(out, w[c.Overlap:]...)
	}
	return strings.Join(out, " ")
}

func normalize(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

func TestChunkEmptyDocument(t *testing.T) {
	c := NewChunker(500, 100, testLogger())

	chunks := c.Chunk(&models.Document{ID: "d1", Type: models.DocTypeOther, Text: "  \n\n  "})
	assert.Nil(t, chunks)
}

func TestChunkSmallDocumentSingleChunk(t *testing.T) {
	c := NewChunker(500, 100, testLogger())

	doc := &models.Document{ID: "d1", Type: models.DocTypeOther, Text: "one two three"}
	chunks := c.Chunk(doc)

	require.Len(t, chunks, 1)
	assert.Equal(t, "d1_0", chunks[0].ID())
	assert.Equal(t, 1, chunks[0].Total)
	assert.Equal(t, 0, chunks[0].Overlap)
	assert.Equal(t, "one two three", chunks[0].Text)
}

func TestChunkLosslessReconstruction(t *testing.T) {
	c := NewChunker(50, 10, testLogger())

	paragraphs := []string{
		words(30, "alpha"),
		words(40, "beta"),
		words(25, "gamma"),
		words(120, "delta"), // exceeds the budget on its own
		words(15, "epsilon"),
	}
	doc := &models.Document{
		ID:   "d1",
		Type: models.DocTypeOther,
		Text: strings.Join(paragraphs, "\n\n"),
	}

	chunks := c.Chunk(doc)
	require.NotEmpty(t, chunks)

	for i, chunk := range chunks {
		assert.Equal(t, i, chunk.Seq)
		assert.Equal(t, len(chunks), chunk.Total)
	}
	assert.Equal(t, normalize(doc.Text), reconstruct(chunks))
}

func TestChunkOverlapBetweenConsecutiveChunks(t *testing.T) {
	c := NewChunker(50, 10, testLogger())

	doc := &models.Document{
		ID:   "d1",
		Type: models.DocTypeOther,
		Text: words(45, "a") + "\n\n" + words(45, "b"),
	}
	chunks := c.Chunk(doc)

	require.Len(t, chunks, 2)
	assert.Equal(t, 0, chunks[0].Overlap)
	assert.Equal(t, 10, chunks[1].Overlap)

	first := strings.Fields(chunks[0].Text)
	second := strings.Fields(chunks[1].Text)
	assert.Equal(t, first[len(first)-10:], second[:10])
}

func TestChunkOversizedParagraphFallsBackToSentences(t *testing.T) {
	c := NewChunker(10, 0, testLogger())

	var sentences []string
	for i := 0; i < 5; i++ {
		sentences = append(sentences, words(6, "s")+".")
	}
	doc := &models.Document{
		ID:   "d1",
		Type: models.DocTypeOther,
		Text: strings.Join(sentences, " "),
	}

	chunks := c.Chunk(doc)
	require.NotEmpty(t, chunks)
	for _, chunk := range chunks {
		assert.LessOrEqual(t, len(strings.Fields(chunk.Text)), 10)
	}
	assert.Equal(t, normalize(doc.Text), reconstruct(chunks))
}

func TestChunkRulingReasoningKeepsDoubleBudget(t *testing.T) {
	c := NewChunker(50, 0, testLogger())

	reasoning := "We hold that the evidence shows guilt. " + words(70, "reason")
	doc := &models.Document{
		ID:   "r1",
		Type: models.DocTypeRuling,
		Text: words(20, "intro") + "\n\n" + reasoning,
	}

	chunks := c.Chunk(doc)
	require.Len(t, chunks, 2)
	assert.Equal(t, "", chunks[0].Section)
	assert.Equal(t, SectionReasoning, chunks[1].Section)
	assert.Greater(t, len(strings.Fields(chunks[1].Text)), 50)
}

func TestChunkStatuteSectionLabels(t *testing.T) {
	c := NewChunker(500, 0, testLogger())

	doc := &models.Document{
		ID:   "s1",
		Type: models.DocTypeStatute,
		Text: "Section 302 Punishment for murder.\n\nWhoever commits murder shall be punished.\n\nSection 304 Culpable homicide.\n\nWhoever commits culpable homicide.",
	}

	chunks := c.Chunk(doc)
	require.Len(t, chunks, 2)
	assert.Equal(t, "Section 302", chunks[0].Section)
	assert.Equal(t, "Section 304", chunks[1].Section)
}

func TestChunkFilingSectionLabels(t *testing.T) {
	c := NewChunker(500, 0, testLogger())

	doc := &models.Document{
		ID:   "f1",
		Type: models.DocTypeCaseFiling,
		Text: "Complainant Shri Patel reported the incident.\n\nEvidence seized includes one knife.\n\nAccused was identified by two witnesses.",
	}

	chunks := c.Chunk(doc)
	require.NotEmpty(t, chunks)

	var labels []string
	for _, chunk := range chunks {
		labels = append(labels, chunk.Section)
	}
	assert.Contains(t, labels, SectionComplainant)
	assert.Contains(t, labels, SectionEvidence)
	assert.Contains(t, labels, SectionAccused)
}

func TestChunkInheritsMetadata(t *testing.T) {
	c := NewChunker(500, 100, testLogger())

	doc := &models.Document{
		ID:       "d1",
		Type:     models.DocTypeOther,
		Language: "hi",
		Metadata: map[string]string{"court": "Gujarat High Court"},
		Text:     "some text",
	}
	chunks := c.Chunk(doc)

	require.Len(t, chunks, 1)
	assert.Equal(t, "hi", chunks[0].Language)
	assert.Equal(t, "Gujarat High Court", chunks[0].Metadata["court"])
}
