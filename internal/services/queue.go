package services

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// WorkTopic is the single processing topic shared by the gateway and the
// dispatcher.
const WorkTopic = "asset-processing"

// WorkMessage is the wire schema of one unit of analysis work. Delivery is
// at-least-once; the dispatcher must stay idempotent against redelivery.
type WorkMessage struct {
	AssetID    uuid.UUID `json:"asset_id"`
	MimeType   string    `json:"mime_type"`
	Priority   int       `json:"priority"`
	Force      bool      `json:"force,omitempty"`
	EnqueuedAt time.Time `json:"enqueued_at"`
	Service    string    `json:"service"`
}

// WorkDelivery pairs a received message with its acknowledgement. Ack is
// called only after the message has been fully handled.
type WorkDelivery struct {
	Message WorkMessage
	Ack     func(ctx context.Context) error
}

// WorkQueue is the broker contract: publish/consume on one topic,
// at-least-once. Receive blocks until a message arrives or ctx is done.
type WorkQueue interface {
	Publish(ctx context.Context, msg WorkMessage) error
	Receive(ctx context.Context) (*WorkDelivery, error)
	// Reclaim returns deliveries whose consumer died before acking back to
	// the topic and reports how many were requeued.
	Reclaim(ctx context.Context) (int, error)
}
