package record

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"finpasser/internal/constants"
	"finpasser/pkg/errors"
	"finpasser/pkg/metrics"
)

// DecideFunc inspects the locked row (nil when absent) and returns the write
// to perform. An error aborts the transaction.
type DecideFunc func(current *MessageRecord) (Mutation, error)

type Store interface {
	Insert(ctx context.Context, rec *MessageRecord) error
	Get(ctx context.Context, businessID string) (*MessageRecord, error)
	List(ctx context.Context, filter ListFilter) ([]MessageRecord, error)
	Count(ctx context.Context, filter ListFilter) (int, error)
	Stats(ctx context.Context, pending, done Status) (Stats, error)
	Apply(ctx context.Context, businessID string, decide DecideFunc) (*MessageRecord, error)
}

type PostgresStore struct {
	db          *sql.DB
	serviceName string
}

func NewPostgresStore(db *sql.DB, serviceName string) *PostgresStore {
	return &PostgresStore{db: db, serviceName: serviceName}
}

const selectColumns = `id, contract_id, status, blob_url, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (*MessageRecord, error) {
	var rec MessageRecord
	var blobURL sql.NullString
	if err := row.Scan(
		&rec.ID,
		&rec.BusinessID,
		&rec.Status,
		&blobURL,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	); err != nil {
		return nil, err
	}
	rec.BlobRef = blobURL.String
	return &rec, nil
}

func (s *PostgresStore) observe(operation string, start time.Time, err error) {
	metrics.ObserveDatabaseQuery(s.serviceName, operation, err, time.Since(start))
}

// Insert creates a record; a row with the same business id yields a CONFLICT
// error and leaves the existing row untouched.
func (s *PostgresStore) Insert(ctx context.Context, rec *MessageRecord) (err error) {
	start := time.Now()
	defer func() { s.observe("insert", start, err) }()

	query := `
		INSERT INTO message_entity (contract_id, status, blob_url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (contract_id) DO NOTHING
		RETURNING id, created_at, updated_at
	`

	now := time.Now().UTC()
	row := s.db.QueryRowContext(ctx, query, rec.BusinessID, string(rec.Status), nullable(rec.BlobRef), now)
	if err := row.Scan(&rec.ID, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return errors.ErrConflict.
				WithMessage("message record already exists").
				WithDetail("business_id", rec.BusinessID)
		}
		return fmt.Errorf("failed to insert message record: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, businessID string) (rec *MessageRecord, err error) {
	start := time.Now()
	defer func() {
		if errors.IsRecordNotFound(err) {
			s.observe("get", start, nil)
			return
		}
		s.observe("get", start, err)
	}()

	query := `SELECT ` + selectColumns + ` FROM message_entity WHERE contract_id = $1`

	rec, err = scanRecord(s.db.QueryRowContext(ctx, query, businessID))
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, errors.ErrRecordNotFound.WithDetail("business_id", businessID)
		}
		return nil, fmt.Errorf("failed to get message record: %w", err)
	}
	return rec, nil
}

func buildWhere(filter ListFilter) (string, []interface{}) {
	var clauses []string
	var args []interface{}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		clauses = append(clauses, fmt.Sprintf("status = $%d", len(args)))
	}
	if !filter.OlderThan.IsZero() {
		args = append(args, filter.OlderThan)
		clauses = append(clauses, fmt.Sprintf("updated_at < $%d", len(args)))
	}
	if len(clauses) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func (s *PostgresStore) List(ctx context.Context, filter ListFilter) (records []MessageRecord, err error) {
	start := time.Now()
	defer func() { s.observe("list", start, err) }()

	limit := filter.Limit
	if limit <= 0 {
		limit = constants.DefaultLimit
	}
	if limit > constants.MaxLimit {
		limit = constants.MaxLimit
	}

	where, args := buildWhere(filter)
	args = append(args, limit)
	query := `SELECT ` + selectColumns + ` FROM message_entity` + where +
		fmt.Sprintf(` ORDER BY updated_at ASC, id ASC LIMIT $%d`, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query message records: %w", err)
	}
	defer rows.Close()

	records = make([]MessageRecord, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message record: %w", err)
		}
		records = append(records, *rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return records, nil
}

func (s *PostgresStore) Count(ctx context.Context, filter ListFilter) (count int, err error) {
	start := time.Now()
	defer func() { s.observe("count", start, err) }()

	where, args := buildWhere(filter)
	query := `SELECT COUNT(*) FROM message_entity` + where

	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count message records: %w", err)
	}
	return count, nil
}

// Stats summarises records in the pending and done statuses. Latency is the
// mean time from creation to the done transition.
func (s *PostgresStore) Stats(ctx context.Context, pending, done Status) (stats Stats, err error) {
	start := time.Now()
	defer func() { s.observe("stats", start, err) }()

	query := `
		SELECT
			COUNT(*) FILTER (WHERE status = $1),
			COUNT(*) FILTER (WHERE status = $2),
			COUNT(*) FILTER (WHERE status = $2 AND updated_at >= $3),
			COALESCE(AVG(EXTRACT(EPOCH FROM (updated_at - created_at)) * 1000) FILTER (WHERE status = $2), 0)
		FROM message_entity
	`

	if err := s.db.QueryRowContext(ctx, query, string(pending), string(done), StartOfDayUTC(time.Now())).Scan(
		&stats.Pending,
		&stats.Delivered,
		&stats.DeliveredToday,
		&stats.AvgDeliveryLatencyMs,
	); err != nil {
		return Stats{}, fmt.Errorf("failed to compute message stats: %w", err)
	}
	return stats, nil
}

// Apply locks the row for businessID, asks decide for a mutation and writes it
// in the same transaction. When a concurrent insert wins the race the row is
// re-read and decide runs again against it. The returned record reflects the
// committed state and is nil when no row exists.
func (s *PostgresStore) Apply(ctx context.Context, businessID string, decide DecideFunc) (rec *MessageRecord, err error) {
	start := time.Now()
	defer func() { s.observe("apply", start, err) }()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for attempt := 0; attempt < 2; attempt++ {
		current, err := lockRecord(ctx, tx, businessID)
		if err != nil {
			return nil, err
		}

		mutation, err := decide(current)
		if err != nil {
			return nil, err
		}

		switch mutation.Kind {
		case MutationNone:
			if err := tx.Commit(); err != nil {
				return nil, fmt.Errorf("failed to commit transaction: %w", err)
			}
			return current, nil

		case MutationCreate:
			created, err := insertInTx(ctx, tx, businessID, mutation)
			if err != nil {
				return nil, err
			}
			if created == nil {
				// Lost the insert race; decide again against the winner's row.
				continue
			}
			if err := tx.Commit(); err != nil {
				return nil, fmt.Errorf("failed to commit transaction: %w", err)
			}
			return created, nil

		case MutationUpdate:
			if current == nil {
				return nil, errors.ErrRecordNotFound.WithDetail("business_id", businessID)
			}
			updated, err := updateInTx(ctx, tx, current.ID, mutation)
			if err != nil {
				return nil, err
			}
			if err := tx.Commit(); err != nil {
				return nil, fmt.Errorf("failed to commit transaction: %w", err)
			}
			return updated, nil

		default:
			return nil, fmt.Errorf("unknown mutation kind %d", mutation.Kind)
		}
	}

	return nil, errors.ErrConflict.
		WithMessage("record changed concurrently").
		WithDetail("business_id", businessID).
		AsRetryable()
}

func lockRecord(ctx context.Context, tx *sql.Tx, businessID string) (*MessageRecord, error) {
	query := `SELECT ` + selectColumns + ` FROM message_entity WHERE contract_id = $1 FOR UPDATE`

	rec, err := scanRecord(tx.QueryRowContext(ctx, query, businessID))
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to lock message record: %w", err)
	}
	return rec, nil
}

func insertInTx(ctx context.Context, tx *sql.Tx, businessID string, m Mutation) (*MessageRecord, error) {
	query := `
		INSERT INTO message_entity (contract_id, status, blob_url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (contract_id) DO NOTHING
		RETURNING ` + selectColumns

	rec, err := scanRecord(tx.QueryRowContext(ctx, query, businessID, string(m.Status), nullable(m.BlobRef), time.Now().UTC()))
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to insert message record: %w", err)
	}
	return rec, nil
}

func updateInTx(ctx context.Context, tx *sql.Tx, id int64, m Mutation) (*MessageRecord, error) {
	query := `
		UPDATE message_entity
		SET status = $1, blob_url = COALESCE($2, blob_url), updated_at = $3
		WHERE id = $4
		RETURNING ` + selectColumns

	rec, err := scanRecord(tx.QueryRowContext(ctx, query, string(m.Status), nullable(m.BlobRef), time.Now().UTC(), id))
	if err != nil {
		return nil, fmt.Errorf("failed to update message record: %w", err)
	}
	return rec, nil
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
