package record

import "time"

type Status string

const (
	StatusSentToRouter Status = "SENT_TO_ROUTER"
	StatusReceived     Status = "RECEIVED"
	StatusDelivered    Status = "DELIVERED"
)

// ranks orders the caller-visible lifecycle. Each service only stores the
// subset it owns, but both share the ordering.
var ranks = map[Status]int{
	StatusSentToRouter: 1,
	StatusReceived:     2,
	StatusDelivered:    3,
}

// Rank returns the status position in the lifecycle and false for statuses
// outside it.
func (s Status) Rank() (int, bool) {
	r, ok := ranks[s]
	return r, ok
}

func (s Status) Valid() bool {
	_, ok := ranks[s]
	return ok
}

func (s Status) Terminal() bool {
	return s == StatusDelivered
}

// MessageRecord is one row of message_entity. BusinessID maps to the
// contract_id column.
type MessageRecord struct {
	ID         int64     `json:"id"`
	BusinessID string    `json:"business_id"`
	Status     Status    `json:"status"`
	BlobRef    string    `json:"blob_ref"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type ListFilter struct {
	Status Status
	// OlderThan keeps records last updated before this instant.
	OlderThan time.Time
	Limit     int
}

type Stats struct {
	Pending              int64   `json:"pending"`
	Delivered            int64   `json:"delivered"`
	DeliveredToday       int64   `json:"delivered_today"`
	AvgDeliveryLatencyMs float64 `json:"avg_delivery_latency_ms"`
}

// StartOfDayUTC is the UTC midnight that opens the day containing t.
func StartOfDayUTC(t time.Time) time.Time {
	return t.UTC().Truncate(24 * time.Hour)
}

type MutationKind int

const (
	MutationNone MutationKind = iota
	MutationCreate
	MutationUpdate
)

// Mutation is the write a decision asks Apply to perform.
type Mutation struct {
	Kind    MutationKind
	Status  Status
	BlobRef string
}
