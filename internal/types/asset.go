package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Asset processing lifecycle. Transitions are owned by the status tracker;
// nothing else writes processing_status.
const (
	AssetStatusQueued     = "queued"
	AssetStatusProcessing = "processing"
	AssetStatusCompleted  = "completed"
	AssetStatusFailed     = "failed"
)

// Asset is the root entity for one uploaded, content-addressed object.
// Two uploads with identical bytes resolve to the same row; the unique
// index on content_hash is what arbitrates concurrent first uploads.
type Asset struct {
	ID            uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Filename      string         `gorm:"column:filename;not null" json:"filename"`
	ContentHash   string         `gorm:"column:content_hash;not null;uniqueIndex" json:"content_hash"`
	FileSize      int64          `gorm:"column:file_size;not null" json:"file_size"`
	MimeType      string         `gorm:"column:mime_type;not null" json:"mime_type"`
	StorageKey    string         `gorm:"column:storage_key;not null" json:"storage_key"`
	UploadContext string         `gorm:"column:upload_context" json:"upload_context,omitempty"`
	CollectionID  *uuid.UUID     `gorm:"type:uuid;column:collection_id;index" json:"collection_id,omitempty"`
	Status        string         `gorm:"column:processing_status;not null;index" json:"status"`
	Priority      int            `gorm:"column:processing_priority;not null" json:"priority"`
	AnalysisCount int            `gorm:"column:analysis_count;not null" json:"analysis_count"`
	LastError     *string        `gorm:"column:last_error" json:"last_error,omitempty"`
	Metadata      datatypes.JSON `gorm:"column:metadata;type:jsonb" json:"metadata,omitempty"`
	CreatedAt     time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"not null" json:"updated_at"`
}

func (Asset) TableName() string { return "assets" }
