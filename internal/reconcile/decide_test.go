package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"finpasser/internal/record"
)

func rec(status record.Status) *record.MessageRecord {
	return &record.MessageRecord{BusinessID: "7654321", Status: status}
}

func TestDecide(t *testing.T) {
	ack := Transition{Target: record.StatusDelivered, From: record.StatusSentToRouter}
	createSent := Transition{Target: record.StatusSentToRouter, Create: true}
	createReceived := Transition{Target: record.StatusReceived, Create: true}

	tests := []struct {
		name    string
		current *record.MessageRecord
		t       Transition
		want    Outcome
	}{
		{"create when absent", nil, createReceived, OutcomeApply},
		{"ack before record exists", nil, ack, OutcomeDefer},
		{"duplicate create", rec(record.StatusReceived), createReceived, OutcomeIgnore},
		{"create over later status", rec(record.StatusDelivered), createSent, OutcomeIgnore},
		{"ack applies", rec(record.StatusSentToRouter), ack, OutcomeApply},
		{"duplicate ack", rec(record.StatusDelivered), ack, OutcomeIgnore},
		{"backward move", rec(record.StatusDelivered), Transition{Target: record.StatusSentToRouter}, OutcomeReject},
		{"unknown target", rec(record.StatusSentToRouter), Transition{Target: "ARCHIVED"}, OutcomeReject},
		{"unknown current", rec("LEGACY"), ack, OutcomeReject},
		{"predecessor missing", rec(record.StatusSentToRouter), Transition{Target: record.StatusDelivered, From: record.StatusReceived}, OutcomeDefer},
		{"forward without predecessor", rec(record.StatusSentToRouter), Transition{Target: record.StatusReceived}, OutcomeApply},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Decide(tt.current, tt.t)
			assert.Equal(t, tt.want, d.Outcome, d.Reason)
			assert.NotEmpty(t, d.Reason)
		})
	}
}

func TestDecide_NeverMovesBackward(t *testing.T) {
	statuses := []record.Status{record.StatusSentToRouter, record.StatusReceived, record.StatusDelivered}
	for _, from := range statuses {
		for _, to := range statuses {
			for _, create := range []bool{false, true} {
				d := Decide(rec(from), Transition{Target: to, Create: create})
				fromRank, _ := from.Rank()
				toRank, _ := to.Rank()
				if toRank < fromRank {
					assert.NotEqual(t, OutcomeApply, d.Outcome, "%s -> %s", from, to)
				}
			}
		}
	}
}

func TestDecisionMutation(t *testing.T) {
	tr := Transition{Target: record.StatusReceived, Create: true, BlobRef: "k"}
	m := Decision{Outcome: OutcomeApply}.mutation(nil, tr)
	assert.Equal(t, record.MutationCreate, m.Kind)
	assert.Equal(t, "k", m.BlobRef)

	m = Decision{Outcome: OutcomeApply}.mutation(rec(record.StatusSentToRouter), Transition{Target: record.StatusDelivered})
	assert.Equal(t, record.MutationUpdate, m.Kind)

	m = Decision{Outcome: OutcomeIgnore}.mutation(rec(record.StatusDelivered), tr)
	assert.Equal(t, record.MutationNone, m.Kind)
}
