package reconcile

import (
	"context"
	"time"

	"finpasser/internal/logger"
	"finpasser/internal/record"
	"finpasser/pkg/errors"
	"finpasser/pkg/metrics"
)

// AuditSink receives every decision after the transaction settles. Failures
// are logged, never propagated.
type AuditSink interface {
	Record(ctx context.Context, entry AuditEntry) error
}

type AuditEntry struct {
	Service    string        `bson:"service" json:"service"`
	BusinessID string        `bson:"business_id" json:"business_id"`
	EventID    string        `bson:"event_id,omitempty" json:"event_id,omitempty"`
	From       record.Status `bson:"from,omitempty" json:"from,omitempty"`
	Target     record.Status `bson:"target" json:"target"`
	Outcome    Outcome       `bson:"outcome" json:"outcome"`
	Reason     string        `bson:"reason" json:"reason"`
	DecidedAt  time.Time     `bson:"decided_at" json:"decided_at"`
}

type Result struct {
	Decision Decision
	Record   *record.MessageRecord
}

type Reconciler struct {
	store       record.Store
	audit       AuditSink
	logger      logger.Logger
	serviceName string
}

func NewReconciler(store record.Store, audit AuditSink, log logger.Logger, serviceName string) *Reconciler {
	return &Reconciler{store: store, audit: audit, logger: log, serviceName: serviceName}
}

// Reconcile decides and writes t atomically. Defer yields a retryable
// RECORD_NOT_FOUND error and Reject a fatal OUT_OF_ORDER_TRANSITION error;
// Apply and Ignore return nil.
func (r *Reconciler) Reconcile(ctx context.Context, businessID, eventID string, t Transition) (Result, error) {
	var decision Decision
	var before *record.MessageRecord

	rec, err := r.store.Apply(ctx, businessID, func(current *record.MessageRecord) (record.Mutation, error) {
		before = current
		decision = Decide(current, t)
		return decision.mutation(current, t), nil
	})
	if err != nil {
		return Result{}, err
	}

	metrics.IncReconcileDecision(r.serviceName, string(decision.Outcome))
	r.recordAudit(ctx, businessID, eventID, before, t, decision)

	result := Result{Decision: decision, Record: rec}

	switch decision.Outcome {
	case OutcomeApply:
		r.logger.InfowCtx(ctx, "Status transition applied",
			"business_id", businessID,
			"status", t.Target,
			"reason", decision.Reason,
		)
		return result, nil
	case OutcomeIgnore:
		r.logger.InfowCtx(ctx, "Duplicate transition ignored",
			"business_id", businessID,
			"status", t.Target,
			"reason", decision.Reason,
		)
		return result, nil
	case OutcomeDefer:
		r.logger.WarnwCtx(ctx, "Transition deferred",
			"business_id", businessID,
			"status", t.Target,
			"reason", decision.Reason,
		)
		return result, errors.ErrRecordNotFound.
			WithMessage(decision.Reason).
			WithDetail("business_id", businessID).
			AsRetryable()
	default:
		r.logger.ErrorwCtx(ctx, "Transition rejected",
			"business_id", businessID,
			"status", t.Target,
			"reason", decision.Reason,
		)
		return result, errors.ErrOutOfOrderTransition.
			WithMessage(decision.Reason).
			WithDetail("business_id", businessID).
			AsFatal()
	}
}

func (r *Reconciler) recordAudit(ctx context.Context, businessID, eventID string, before *record.MessageRecord, t Transition, d Decision) {
	if r.audit == nil {
		return
	}
	entry := AuditEntry{
		Service:    r.serviceName,
		BusinessID: businessID,
		EventID:    eventID,
		Target:     t.Target,
		Outcome:    d.Outcome,
		Reason:     d.Reason,
		DecidedAt:  time.Now().UTC(),
	}
	if before != nil {
		entry.From = before.Status
	}
	if err := r.audit.Record(ctx, entry); err != nil {
		r.logger.WarnwCtx(ctx, "Failed to write reconcile audit entry",
			"error", err,
			"business_id", businessID,
		)
	}
}
