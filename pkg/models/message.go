package models

import (
	"encoding/json"
	"time"
)

const (
	EventTypeUploadCreated        = "upload.created"
	EventTypeDeliveryAcknowledged = "delivery.acknowledged"

	CurrentEventVersion = 1
)

// EventEnvelope is the wire format on both topics. Payload is decoded by the
// consumer once Type and Version are checked.
type EventEnvelope struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Version    int             `json:"version"`
	BusinessID string          `json:"business_id"`
	ProducedAt time.Time       `json:"produced_at"`
	TraceID    string          `json:"trace_id,omitempty"`
	Source     string          `json:"source,omitempty"`
	Payload    json.RawMessage `json:"payload"`
}

// UploadEvent is published by the uploader once the blob and the local record
// are durable.
type UploadEvent struct {
	BusinessID  string    `json:"business_id"`
	BlobRef     string    `json:"blob_ref"`
	ProducedAt  time.Time `json:"produced_at"`
	Filename    string    `json:"filename,omitempty"`
	ContentType string    `json:"content_type,omitempty"`
	Size        int64     `json:"size,omitempty"`
}

// DeliveryAck is published by the router after its record is persisted.
type DeliveryAck struct {
	BusinessID    string    `json:"business_id"`
	ProducedAt    time.Time `json:"produced_at"`
	UploadEventID string    `json:"upload_event_id,omitempty"`
	UploadedAt    time.Time `json:"uploaded_at"`
}
