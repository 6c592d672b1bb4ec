package reconcile

import (
	"fmt"

	"finpasser/internal/record"
)

type Outcome string

const (
	OutcomeApply  Outcome = "apply"
	OutcomeIgnore Outcome = "ignore"
	OutcomeDefer  Outcome = "defer"
	OutcomeReject Outcome = "reject"
)

// Transition is a requested status change for one business id. Create marks
// the first write of a record; From, when set, names the status the record
// must currently hold.
type Transition struct {
	Target  record.Status
	From    record.Status
	Create  bool
	BlobRef string
}

type Decision struct {
	Outcome Outcome
	Reason  string
}

// Decide is the pure ordering rule behind every status write. current is nil
// when the record does not exist yet.
func Decide(current *record.MessageRecord, t Transition) Decision {
	targetRank, ok := t.Target.Rank()
	if !ok {
		return Decision{OutcomeReject, fmt.Sprintf("unknown target status %q", t.Target)}
	}

	if current == nil {
		if t.Create {
			return Decision{OutcomeApply, "record created"}
		}
		return Decision{OutcomeDefer, "record not found"}
	}

	if t.Create {
		return Decision{OutcomeIgnore, "record already exists"}
	}

	if current.Status == t.Target {
		return Decision{OutcomeIgnore, "already in target status"}
	}

	currentRank, ok := current.Status.Rank()
	if !ok {
		return Decision{OutcomeReject, fmt.Sprintf("unknown current status %q", current.Status)}
	}
	if targetRank < currentRank {
		return Decision{OutcomeReject, fmt.Sprintf("%s cannot move back to %s", current.Status, t.Target)}
	}

	if t.From != "" && current.Status != t.From {
		return Decision{OutcomeDefer, fmt.Sprintf("waiting for %s, record is %s", t.From, current.Status)}
	}

	return Decision{OutcomeApply, fmt.Sprintf("%s -> %s", current.Status, t.Target)}
}

// mutation translates an Apply decision into the store write.
func (d Decision) mutation(current *record.MessageRecord, t Transition) record.Mutation {
	if d.Outcome != OutcomeApply {
		return record.Mutation{Kind: record.MutationNone}
	}
	if current == nil {
		return record.Mutation{Kind: record.MutationCreate, Status: t.Target, BlobRef: t.BlobRef}
	}
	return record.Mutation{Kind: record.MutationUpdate, Status: t.Target, BlobRef: t.BlobRef}
}
