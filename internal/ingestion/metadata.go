package ingestion

import (
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DocumentRecord is the relational metadata row kept per ingested document.
// It backs operational queries (what is indexed, when, how many chunks)
// without touching the indexes themselves.
type DocumentRecord struct {
	ID         string    `gorm:"primaryKey;size:128"`
	DocType    string    `gorm:"size:32;index"`
	Language   string    `gorm:"size:16"`
	Title      string    `gorm:"size:512"`
	ChunkCount int
	IngestedAt time.Time `gorm:"autoUpdateTime"`
}

// TableName keeps the table name stable across GORM naming strategies.
func (DocumentRecord) TableName() string {
	return "documents"
}

// MetadataStore persists DocumentRecords in MySQL.
type MetadataStore struct {
	db *gorm.DB
}

// NewMetadataStore creates the store and migrates its table.
func NewMetadataStore(db *gorm.DB) (*MetadataStore, error) {
	if err := db.AutoMigrate(&DocumentRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate documents table: %w", err)
	}
	return &MetadataStore{db: db}, nil
}

// Save upserts the record by document ID.
func (s *MetadataStore) Save(record *DocumentRecord) error {
	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(record).Error
	if err != nil {
		return fmt.Errorf("failed to save document record %s: %w", record.ID, err)
	}
	return nil
}

// Get fetches the record for a document ID.
func (s *MetadataStore) Get(documentID string) (*DocumentRecord, error) {
	var record DocumentRecord
	if err := s.db.First(&record, "id = ?", documentID).Error; err != nil {
		return nil, fmt.Errorf("failed to load document record %s: %w", documentID, err)
	}
	return &record, nil
}

// Delete removes the record for a document ID.
func (s *MetadataStore) Delete(documentID string) error {
	if err := s.db.Delete(&DocumentRecord{}, "id = ?", documentID).Error; err != nil {
		return fmt.Errorf("failed to delete document record %s: %w", documentID, err)
	}
	return nil
}
