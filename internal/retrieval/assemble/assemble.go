package assemble

import (
	"fmt"
	"sort"
	"strings"

	"nyayasetu/internal/models"
	"nyayasetu/pkg/logger"
)

// BlockDelimiter separates source blocks in the assembled context.
const BlockDelimiter = "\n\n---\n\n"

// tokensPerWord approximates tokenizer output from a word count.
const tokensPerWord = 1.3

// EstimateTokens approximates the token cost of a text.
func EstimateTokens(text string) int {
	return int(float64(len(strings.Fields(text))) * tokensPerWord)
}

// Assembler packs re-ranked chunks into a token-bounded context string with
// per-source citation tags.
type Assembler struct {
	log       *logger.Logger
	maxTokens int
}

// NewAssembler creates an Assembler with the given token budget.
func NewAssembler(maxTokens int, log *logger.Logger) *Assembler {
	return &Assembler{log: log, maxTokens: maxTokens}
}

// block is one rendered source section. It holds a contiguous run of chunks
// from a single document.
type block struct {
	docID     string
	sourceNum int
	label     string
	chunks    []*models.Chunk
}

// Assemble iterates candidates in rank order and appends source blocks until
// the next chunk would exceed the token budget; the rest are dropped.
// Sequence-adjacent chunks of one document are merged into a single block
// with their overlap removed. The returned citations hold exactly one record
// per document whose text appears in the context, numbered in order of first
// inclusion, and source headers use the same numbers.
func (a *Assembler) Assemble(candidates []*models.RetrievalCandidate) (string, []models.CitationRecord) {
	var included []*models.RetrievalCandidate
	used := 0
	for i, c := range candidates {
		cost := EstimateTokens(c.Chunk.Text)
		if used+cost > a.maxTokens {
			a.log.WithPayload(map[string]interface{}{
				"included": len(included),
				"dropped":  len(candidates) - i,
				"tokens":   used,
			}).Info("Context budget reached, truncating candidates")
			break
		}
		used += cost
		included = append(included, c)
	}
	if len(included) == 0 {
		return "", nil
	}

	var blocks []*block
	var citations []models.CitationRecord
	sourceNums := make(map[string]int)

	for _, c := range included {
		chunk := c.Chunk
		num, seen := sourceNums[chunk.DocumentID]
		if !seen {
			num = len(citations) + 1
			sourceNums[chunk.DocumentID] = num
			citations = append(citations, models.CitationRecord{
				SourceNum:  num,
				DocumentID: chunk.DocumentID,
				Label:      chunkLabel(chunk),
			})
		}
		record := &citations[num-1]
		if c.RerankScore > record.BestScore {
			record.BestScore = c.RerankScore
		}

		if b := adjacentBlock(blocks, chunk); b != nil {
			b.chunks = append(b.chunks, chunk)
			continue
		}
		blocks = append(blocks, &block{
			docID:     chunk.DocumentID,
			sourceNum: num,
			label:     chunkLabel(chunk),
			chunks:    []*models.Chunk{chunk},
		})
	}

	// Chunk IDs are recorded at render time so a citation only lists chunks
	// whose words actually appear in the context.
	rendered := make([]string, len(blocks))
	for i, b := range blocks {
		text, contributing := renderChunks(b.chunks)
		rendered[i] = fmt.Sprintf("[Source %d: %s]\n%s", b.sourceNum, b.label, text)
		record := &citations[b.sourceNum-1]
		for _, chunk := range contributing {
			record.ChunkIDs = append(record.ChunkIDs, chunk.ID())
		}
	}
	return strings.Join(rendered, BlockDelimiter), citations
}

// adjacentBlock finds a block of the same document whose chunk run is
// sequence-adjacent to the chunk.
func adjacentBlock(blocks []*block, chunk *models.Chunk) *block {
	for _, b := range blocks {
		if b.docID != chunk.DocumentID {
			continue
		}
		for _, existing := range b.chunks {
			if existing.Seq == chunk.Seq-1 || existing.Seq == chunk.Seq+1 {
				return b
			}
		}
	}
	return nil
}

// renderChunks joins a contiguous run in sequence order, dropping the
// duplicated overlap words of each later chunk. It also returns the chunks
// that contributed words; a chunk that is entirely overlap adds nothing.
func renderChunks(chunks []*models.Chunk) (string, []*models.Chunk) {
	sorted := make([]*models.Chunk, len(chunks))
	copy(sorted, chunks)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Seq < sorted[j].Seq })

	parts := make([]string, 0, len(sorted))
	contributing := make([]*models.Chunk, 0, len(sorted))
	for i, chunk := range sorted {
		text := chunk.Text
		if i > 0 && sorted[i-1].Seq == chunk.Seq-1 && chunk.Overlap > 0 {
			words := strings.Fields(text)
			if chunk.Overlap >= len(words) {
				continue
			}
			text = strings.Join(words[chunk.Overlap:], " ")
		}
		parts = append(parts, text)
		contributing = append(contributing, chunk)
	}
	return strings.Join(parts, " "), contributing
}

func chunkLabel(chunk *models.Chunk) string {
	if title := chunk.Metadata["title"]; title != "" {
		return title
	}
	return chunk.DocumentID
}
