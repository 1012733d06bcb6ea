package models

import "fmt"

// DocumentType classifies an ingested document.
type DocumentType string

const (
	DocTypeRuling     DocumentType = "ruling"
	DocTypeStatute    DocumentType = "statute"
	DocTypeCaseFiling DocumentType = "case-filing"
	DocTypeOther      DocumentType = "other"
)

// ParseDocumentType validates a document type string, mapping the empty
// string to DocTypeOther.
func ParseDocumentType(s string) (DocumentType, error) {
	switch DocumentType(s) {
	case "", DocTypeOther:
		return DocTypeOther, nil
	case DocTypeRuling, DocTypeStatute, DocTypeCaseFiling:
		return DocumentType(s), nil
	default:
		return "", fmt.Errorf("unknown document type: %q", s)
	}
}

// Document is an ingested unit of normalized text: a court ruling, a statute,
// or a case filing. Documents are immutable once created; re-ingestion of
// changed content happens under a new identifier.
type Document struct {
	ID       string            `json:"id"`
	Type     DocumentType      `json:"type"`
	Language string            `json:"language"` // BCP-47 tag, e.g. "en", "hi", "gu"
	Metadata map[string]string `json:"metadata"` // court, date, district, cited sections, ...
	Text     string            `json:"text"`
}

// Label returns a human-readable label for citations: the title from metadata
// when present, otherwise the document ID.
func (d *Document) Label() string {
	if title, ok := d.Metadata["title"]; ok && title != "" {
		return title
	}
	return d.ID
}

// Chunk is a contiguous, citable span of a Document's text plus inherited and
// chunk-local metadata. The chunk identifier is deterministic so that
// re-ingesting the same document produces the same chunk IDs.
type Chunk struct {
	DocumentID   string            `json:"document_id"`
	DocumentType DocumentType      `json:"document_type"`
	Language     string            `json:"language"`
	Seq          int               `json:"seq"`          // sequence index within the document
	Total        int               `json:"total"`        // total chunk count for the document
	Section      string            `json:"section"`      // structural section label, empty for token chunking
	Overlap      int               `json:"overlap"`      // words shared with the previous chunk
	Metadata     map[string]string `json:"metadata"`     // inherited from the parent document
	Text         string            `json:"text"`
	Embedding    []float32         `json:"-"`
}

// ChunkID builds the deterministic identifier for a (document, sequence) pair.
func ChunkID(documentID string, seq int) string {
	return fmt.Sprintf("%s_%d", documentID, seq)
}

// ID returns the chunk's deterministic identifier.
func (c *Chunk) ID() string {
	return ChunkID(c.DocumentID, c.Seq)
}
