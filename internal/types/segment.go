package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Segment is a temporal or logical sub-region of an asset's content.
// Rows are created only by the result aggregator inside the same
// transaction as their sibling features and embeddings.
type Segment struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	AssetID        uuid.UUID      `gorm:"type:uuid;not null;index" json:"asset_id"`
	SegmentType    string         `gorm:"column:segment_type;not null" json:"segment_type"`
	SequenceNumber int            `gorm:"column:sequence_number;not null" json:"sequence_number"`
	StartMarker    float64        `gorm:"column:start_marker" json:"start_marker"`
	EndMarker      float64        `gorm:"column:end_marker" json:"end_marker"`
	Confidence     float64        `gorm:"column:confidence_score" json:"confidence"`
	Metadata       datatypes.JSON `gorm:"column:metadata;type:jsonb" json:"metadata,omitempty"`
	CreatedAt      time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"not null" json:"updated_at"`
}

func (Segment) TableName() string { return "segments" }
