package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Feature is a typed, confidence-scored analysis datum. SegmentID is
// optional; when set the segment must belong to the same asset.
type Feature struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	AssetID     uuid.UUID      `gorm:"type:uuid;not null;index" json:"asset_id"`
	SegmentID   *uuid.UUID     `gorm:"type:uuid;column:segment_id;index" json:"segment_id,omitempty"`
	Domain      string         `gorm:"column:feature_domain;not null" json:"domain"`
	FeatureType string         `gorm:"column:feature_type;not null" json:"feature_type"`
	Confidence  float64        `gorm:"column:confidence_score" json:"confidence"`
	Payload     datatypes.JSON `gorm:"column:feature_data;type:jsonb" json:"payload,omitempty"`
	Analyzer    string         `gorm:"column:analyzer;not null" json:"analyzer"`
	CreatedAt   time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"not null" json:"updated_at"`
}

func (Feature) TableName() string { return "features" }
