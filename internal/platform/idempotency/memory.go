package idempotency

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps records in process. Used for local runs without Firestore and in tests.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]Record
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

func (s *MemoryStore) Reserve(_ context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := documentID(key)
	record, ok := s.records[id]
	if !ok || !now.Before(record.ExpiresAt) {
		record = pendingRecord(key, fingerprint, now.UTC(), ttl)
		s.records[id] = record
		return Reservation{State: ReservationStateNew, Record: record}, nil
	}
	return reservationFor(record, fingerprint)
}

func (s *MemoryStore) SaveResponse(_ context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := documentID(key)
	if existing, ok := s.records[id]; ok && existing.Fingerprint != fingerprint {
		return ErrFingerprintMismatch
	}
	s.records[id] = completedRecord(key, fingerprint, resp, now.UTC(), ttl)
	return nil
}

func (s *MemoryStore) Release(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, documentID(key))
	return nil
}

func (s *MemoryStore) CleanupExpired(_ context.Context, now time.Time, limit int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, record := range s.records {
		if limit > 0 && removed >= limit {
			break
		}
		if now.Before(record.ExpiresAt) {
			continue
		}
		delete(s.records, id)
		removed++
	}
	return removed, nil
}
