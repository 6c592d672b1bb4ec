// Package recordtest provides an in-memory record.Store for tests.
package recordtest

import (
	"context"
	"sort"
	"sync"
	"time"

	"finpasser/internal/record"
	"finpasser/pkg/errors"
)

// MemoryStore serialises every call behind one mutex, which gives Apply the
// same isolation as a row lock.
type MemoryStore struct {
	mu      sync.Mutex
	nextID  int64
	records map[string]*record.MessageRecord

	// ApplyErr, when set, is returned by Apply before decide runs.
	ApplyErr error
	// InsertErr, when set, is returned by Insert.
	InsertErr error
}

var _ record.Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*record.MessageRecord)}
}

func (s *MemoryStore) Insert(_ context.Context, rec *record.MessageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.InsertErr != nil {
		return s.InsertErr
	}
	if _, ok := s.records[rec.BusinessID]; ok {
		return errors.ErrConflict.WithDetail("business_id", rec.BusinessID)
	}
	s.nextID++
	now := time.Now().UTC()
	rec.ID, rec.CreatedAt, rec.UpdatedAt = s.nextID, now, now
	stored := *rec
	s.records[rec.BusinessID] = &stored
	return nil
}

func (s *MemoryStore) Get(_ context.Context, businessID string) (*record.MessageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[businessID]
	if !ok {
		return nil, errors.ErrRecordNotFound.WithDetail("business_id", businessID)
	}
	out := *rec
	return &out, nil
}

func (s *MemoryStore) filter(f record.ListFilter) []record.MessageRecord {
	out := make([]record.MessageRecord, 0)
	for _, rec := range s.records {
		if f.Status != "" && rec.Status != f.Status {
			continue
		}
		if !f.OlderThan.IsZero() && !rec.UpdatedAt.Before(f.OlderThan) {
			continue
		}
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *MemoryStore) List(_ context.Context, f record.ListFilter) ([]record.MessageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.filter(f)
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *MemoryStore) Count(_ context.Context, f record.ListFilter) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.filter(f)), nil
}

func (s *MemoryStore) Stats(_ context.Context, pending, done record.Status) (record.Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var stats record.Stats
	var totalLatency time.Duration
	today := record.StartOfDayUTC(time.Now())
	for _, rec := range s.records {
		switch rec.Status {
		case pending:
			stats.Pending++
		case done:
			stats.Delivered++
			totalLatency += rec.UpdatedAt.Sub(rec.CreatedAt)
			if !rec.UpdatedAt.Before(today) {
				stats.DeliveredToday++
			}
		}
	}
	if stats.Delivered > 0 {
		stats.AvgDeliveryLatencyMs = float64(totalLatency.Milliseconds()) / float64(stats.Delivered)
	}
	return stats, nil
}

func (s *MemoryStore) Apply(_ context.Context, businessID string, decide record.DecideFunc) (*record.MessageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ApplyErr != nil {
		return nil, s.ApplyErr
	}

	var current *record.MessageRecord
	if rec, ok := s.records[businessID]; ok {
		snapshot := *rec
		current = &snapshot
	}

	m, err := decide(current)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	switch m.Kind {
	case record.MutationCreate:
		s.nextID++
		rec := &record.MessageRecord{
			ID:         s.nextID,
			BusinessID: businessID,
			Status:     m.Status,
			BlobRef:    m.BlobRef,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		s.records[businessID] = rec
		out := *rec
		return &out, nil
	case record.MutationUpdate:
		rec, ok := s.records[businessID]
		if !ok {
			return nil, errors.ErrRecordNotFound.WithDetail("business_id", businessID)
		}
		rec.Status = m.Status
		if m.BlobRef != "" {
			rec.BlobRef = m.BlobRef
		}
		rec.UpdatedAt = now
		out := *rec
		return &out, nil
	default:
		return current, nil
	}
}

// Put stores rec as-is, overwriting any existing row.
func (s *MemoryStore) Put(rec record.MessageRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec.ID == 0 {
		s.nextID++
		rec.ID = s.nextID
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = rec.CreatedAt
	}
	s.records[rec.BusinessID] = &rec
}

func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}
