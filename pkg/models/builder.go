package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type EnvelopeBuilder struct {
	envelope EventEnvelope
	payload  interface{}
}

func NewEnvelopeBuilder(eventType, businessID string) *EnvelopeBuilder {
	return &EnvelopeBuilder{
		envelope: EventEnvelope{
			Type:       eventType,
			Version:    CurrentEventVersion,
			BusinessID: businessID,
		},
	}
}

func (b *EnvelopeBuilder) WithID(id string) *EnvelopeBuilder {
	b.envelope.ID = id
	return b
}

func (b *EnvelopeBuilder) WithSource(source string) *EnvelopeBuilder {
	b.envelope.Source = source
	return b
}

func (b *EnvelopeBuilder) WithProducedAt(at time.Time) *EnvelopeBuilder {
	b.envelope.ProducedAt = at
	return b
}

func (b *EnvelopeBuilder) WithTraceID(traceID string) *EnvelopeBuilder {
	b.envelope.TraceID = traceID
	return b
}

func (b *EnvelopeBuilder) WithPayload(payload interface{}) *EnvelopeBuilder {
	b.payload = payload
	return b
}

// Build fills in a random ID and the current time when unset.
func (b *EnvelopeBuilder) Build() (EventEnvelope, error) {
	env := b.envelope
	if env.ID == "" {
		env.ID = uuid.NewString()
	}
	if env.ProducedAt.IsZero() {
		env.ProducedAt = time.Now().UTC()
	}
	if b.payload != nil {
		raw, err := json.Marshal(b.payload)
		if err != nil {
			return EventEnvelope{}, fmt.Errorf("failed to marshal %s payload: %w", env.Type, err)
		}
		env.Payload = raw
	}
	if err := ValidateEnvelope(&env); err != nil {
		return EventEnvelope{}, err
	}
	return env, nil
}
