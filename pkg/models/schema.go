package models

import (
	"encoding/json"
	"fmt"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

func ValidateEnvelope(env *EventEnvelope) error {
	if env == nil {
		return &ValidationError{
			Field:   "envelope",
			Message: "event envelope cannot be nil",
		}
	}

	if env.ID == "" {
		return &ValidationError{
			Field:   "id",
			Message: "event ID is required",
		}
	}

	if env.Type == "" {
		return &ValidationError{
			Field:   "type",
			Message: "event type is required",
		}
	}

	if env.BusinessID == "" {
		return &ValidationError{
			Field:   "business_id",
			Message: "business ID is required",
		}
	}

	if env.ProducedAt.IsZero() {
		return &ValidationError{
			Field:   "produced_at",
			Message: "produced_at is required",
		}
	}

	if len(env.Payload) == 0 {
		return &ValidationError{
			Field:   "payload",
			Message: "payload is required",
		}
	}

	return nil
}

// DecodePayload checks the envelope's type and version and unmarshals the
// payload into v. The payload's business id must match the envelope's.
func DecodePayload(env EventEnvelope, eventType string, v interface{}) error {
	if env.Type != eventType {
		return &ValidationError{
			Field:   "type",
			Message: fmt.Sprintf("unexpected event type %q, want %q", env.Type, eventType),
		}
	}

	if env.Version != CurrentEventVersion {
		return &ValidationError{
			Field:   "version",
			Message: fmt.Sprintf("unsupported version %d for %s", env.Version, env.Type),
		}
	}

	if err := json.Unmarshal(env.Payload, v); err != nil {
		return &ValidationError{
			Field:   "payload",
			Message: err.Error(),
		}
	}

	if keyed, ok := v.(interface{ Key() string }); ok && keyed.Key() != env.BusinessID {
		return &ValidationError{
			Field:   "business_id",
			Message: fmt.Sprintf("payload business id %q does not match envelope %q", keyed.Key(), env.BusinessID),
		}
	}

	return nil
}

func (e *UploadEvent) Key() string { return e.BusinessID }
func (a *DeliveryAck) Key() string { return a.BusinessID }
