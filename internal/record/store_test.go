package record

import (
	"context"
	"database/sql/driver"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "finpasser/pkg/errors"
)

var columns = []string{"id", "contract_id", "status", "blob_url", "created_at", "updated_at"}

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgresStore(db, "test"), mock
}

func q(s string) string { return regexp.QuoteMeta(s) }

func TestInsert(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(q("INSERT INTO message_entity")).
		WithArgs("7654321", "SENT_TO_ROUTER", "7654321/a.xml", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(1, now, now))

	rec := &MessageRecord{BusinessID: "7654321", Status: StatusSentToRouter, BlobRef: "7654321/a.xml"}
	require.NoError(t, store.Insert(context.Background(), rec))
	assert.Equal(t, int64(1), rec.ID)
	assert.Equal(t, now, rec.CreatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsert_Conflict(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(q("ON CONFLICT (contract_id) DO NOTHING")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}))

	err := store.Insert(context.Background(), &MessageRecord{BusinessID: "1", Status: StatusSentToRouter})
	assert.True(t, apperrors.IsConflict(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGet(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(q("FROM message_entity WHERE contract_id = $1")).
		WithArgs("42").
		WillReturnRows(sqlmock.NewRows(columns).AddRow(7, "42", "RECEIVED", "42/x.xml", now, now))

	rec, err := store.Get(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, StatusReceived, rec.Status)
	assert.Equal(t, "42/x.xml", rec.BlobRef)
}

func TestGet_NotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(q("FROM message_entity WHERE contract_id = $1")).
		WillReturnRows(sqlmock.NewRows(columns))

	_, err := store.Get(context.Background(), "missing")
	assert.True(t, apperrors.IsRecordNotFound(err))
}

func TestList_BuildsFilter(t *testing.T) {
	store, mock := newMockStore(t)
	cutoff := time.Now().Add(-10 * time.Minute)

	mock.ExpectQuery(q("FROM message_entity WHERE status = $1 AND updated_at < $2 ORDER BY updated_at ASC, id ASC LIMIT $3")).
		WithArgs("SENT_TO_ROUTER", cutoff, 1000).
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow(1, "a", "SENT_TO_ROUTER", nil, cutoff, cutoff).
			AddRow(2, "b", "SENT_TO_ROUTER", "b/x", cutoff, cutoff))

	records, err := store.List(context.Background(), ListFilter{Status: StatusSentToRouter, OlderThan: cutoff, Limit: 5000})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Empty(t, records[0].BlobRef)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCount(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(q("SELECT COUNT(*) FROM message_entity WHERE status = $1")).
		WithArgs("SENT_TO_ROUTER").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	n, err := store.Count(context.Background(), ListFilter{Status: StatusSentToRouter})
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

type utcMidnight struct{}

func (utcMidnight) Match(v driver.Value) bool {
	ts, ok := v.(time.Time)
	return ok && ts.Location() == time.UTC && ts.Equal(StartOfDayUTC(ts))
}

func TestStats(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(q("updated_at >= $3")).
		WithArgs("SENT_TO_ROUTER", "DELIVERED", utcMidnight{}).
		WillReturnRows(sqlmock.NewRows([]string{"p", "d", "t", "l"}).AddRow(2, 5, 1, 1250.5))

	stats, err := store.Stats(context.Background(), StatusSentToRouter, StatusDelivered)
	require.NoError(t, err)
	assert.Equal(t, Stats{Pending: 2, Delivered: 5, DeliveredToday: 1, AvgDeliveryLatencyMs: 1250.5}, stats)
}

func TestStartOfDayUTC(t *testing.T) {
	tz := time.FixedZone("UTC+5", 5*60*60)
	local := time.Date(2026, 3, 10, 2, 30, 0, 0, tz)

	got := StartOfDayUTC(local)
	assert.Equal(t, time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC), got)
	assert.Equal(t, time.UTC, got.Location())
}

func TestApply_CreateWhenAbsent(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery(q("FOR UPDATE")).WithArgs("7654321").WillReturnRows(sqlmock.NewRows(columns))
	mock.ExpectQuery(q("INSERT INTO message_entity")).
		WithArgs("7654321", "RECEIVED", "7654321/a.xml", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(columns).AddRow(1, "7654321", "RECEIVED", "7654321/a.xml", now, now))
	mock.ExpectCommit()

	rec, err := store.Apply(context.Background(), "7654321", func(current *MessageRecord) (Mutation, error) {
		assert.Nil(t, current)
		return Mutation{Kind: MutationCreate, Status: StatusReceived, BlobRef: "7654321/a.xml"}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, StatusReceived, rec.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApply_LostInsertRaceRereads(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery(q("FOR UPDATE")).WillReturnRows(sqlmock.NewRows(columns))
	mock.ExpectQuery(q("INSERT INTO message_entity")).WillReturnRows(sqlmock.NewRows(columns))
	mock.ExpectQuery(q("FOR UPDATE")).
		WillReturnRows(sqlmock.NewRows(columns).AddRow(9, "dup", "RECEIVED", "dup/a", now, now))
	mock.ExpectCommit()

	calls := 0
	rec, err := store.Apply(context.Background(), "dup", func(current *MessageRecord) (Mutation, error) {
		calls++
		if current == nil {
			return Mutation{Kind: MutationCreate, Status: StatusReceived, BlobRef: "dup/a"}, nil
		}
		return Mutation{Kind: MutationNone}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, int64(9), rec.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApply_Update(t *testing.T) {
	store, mock := newMockStore(t)
	earlier := time.Now().Add(-time.Minute).UTC()
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery(q("FOR UPDATE")).
		WillReturnRows(sqlmock.NewRows(columns).AddRow(3, "42", "SENT_TO_ROUTER", "42/a", earlier, earlier))
	mock.ExpectQuery(q("UPDATE message_entity")).
		WithArgs("DELIVERED", nil, sqlmock.AnyArg(), int64(3)).
		WillReturnRows(sqlmock.NewRows(columns).AddRow(3, "42", "DELIVERED", "42/a", earlier, now))
	mock.ExpectCommit()

	rec, err := store.Apply(context.Background(), "42", func(current *MessageRecord) (Mutation, error) {
		return Mutation{Kind: MutationUpdate, Status: StatusDelivered}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, StatusDelivered, rec.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApply_DecideErrorRollsBack(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(q("FOR UPDATE")).WillReturnRows(sqlmock.NewRows(columns))
	mock.ExpectRollback()

	deferred := errors.New("deferred")
	_, err := store.Apply(context.Background(), "early", func(current *MessageRecord) (Mutation, error) {
		return Mutation{}, deferred
	})
	assert.ErrorIs(t, err, deferred)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStatusRank(t *testing.T) {
	sent, _ := StatusSentToRouter.Rank()
	received, _ := StatusReceived.Rank()
	delivered, _ := StatusDelivered.Rank()
	assert.Less(t, sent, received)
	assert.Less(t, received, delivered)

	_, ok := Status("ARCHIVED").Rank()
	assert.False(t, ok)
	assert.True(t, StatusDelivered.Terminal())
}
