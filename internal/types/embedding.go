package types

import (
	"time"

	"github.com/google/uuid"
)

// Embedding points at a vector in the vector store; the vector itself is
// never stored relationally. Dimensions always equals the length of the
// referenced vector and is greater than zero.
type Embedding struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	AssetID    uuid.UUID `gorm:"type:uuid;not null;index" json:"asset_id"`
	EntityID   uuid.UUID `gorm:"type:uuid;column:entity_id;not null;index" json:"entity_id"`
	ModelName  string    `gorm:"column:model_name;not null" json:"model_name"`
	Dimensions int       `gorm:"column:dimensions;not null" json:"dimensions"`
	VectorRef  string    `gorm:"column:vector_ref;not null" json:"vector_ref"`
	CreatedAt  time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt  time.Time `gorm:"not null" json:"updated_at"`
}

func (Embedding) TableName() string { return "embeddings" }
