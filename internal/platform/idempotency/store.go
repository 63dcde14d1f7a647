package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"time"
)

// DefaultTTL is how long a completed checkout or verification response stays replayable.
const DefaultTTL = 24 * time.Hour

// Status is the lifecycle state of a stored key.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
)

// ReservationState is the outcome of reserving a key.
type ReservationState int

const (
	// ReservationStateNew means the caller owns the key and must run the handler.
	ReservationStateNew ReservationState = iota
	// ReservationStateCompleted means a stored response must be replayed.
	ReservationStateCompleted
	// ReservationStatePending means another request holds the key.
	ReservationStatePending
)

// Reservation is returned by Store.Reserve.
type Reservation struct {
	State  ReservationState
	Record Record
}

// Record is the stored state for one key.
type Record struct {
	Key             string
	Fingerprint     string
	Status          Status
	ResponseStatus  int
	ResponseHeaders map[string][]string
	ResponseBody    []byte
	CreatedAt       time.Time
	ExpiresAt       time.Time
}

// Response is what gets replayed for a completed key.
type Response struct {
	Status  int
	Headers http.Header
	Body    []byte
}

// Store persists reservations and responses. Reserve must be atomic per key.
type Store interface {
	Reserve(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Reservation, error)
	SaveResponse(ctx context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error
	Release(ctx context.Context, key string) error
	CleanupExpired(ctx context.Context, now time.Time, limit int) (int, error)
}

// ErrFingerprintMismatch is returned when a key is reused for a different request body.
var ErrFingerprintMismatch = errors.New("idempotency: key reserved for a different request")

func documentID(key string) string {
	return sha256Hex([]byte(strings.TrimSpace(key)))
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func pendingRecord(key, fingerprint string, now time.Time, ttl time.Duration) Record {
	return Record{
		Key:         key,
		Fingerprint: fingerprint,
		Status:      StatusPending,
		CreatedAt:   now,
		ExpiresAt:   now.Add(ttl),
	}
}

func completedRecord(key, fingerprint string, resp Response, now time.Time, ttl time.Duration) Record {
	record := Record{
		Key:             key,
		Fingerprint:     fingerprint,
		Status:          StatusCompleted,
		ResponseStatus:  resp.Status,
		ResponseHeaders: storableHeaders(resp.Headers),
		CreatedAt:       now,
		ExpiresAt:       now.Add(ttl),
	}
	if len(resp.Body) > 0 {
		record.ResponseBody = append([]byte(nil), resp.Body...)
	}
	return record
}

// reservationFor decides what an existing, unexpired record means for a new attempt.
func reservationFor(record Record, fingerprint string) (Reservation, error) {
	if record.Fingerprint != fingerprint {
		return Reservation{}, ErrFingerprintMismatch
	}
	if record.Status == StatusCompleted {
		return Reservation{State: ReservationStateCompleted, Record: record}, nil
	}
	return Reservation{State: ReservationStatePending, Record: record}, nil
}

func storableHeaders(header http.Header) map[string][]string {
	out := make(map[string][]string, len(header))
	for name, values := range header {
		switch strings.ToLower(name) {
		case "content-length", "date", "connection", "transfer-encoding":
			continue
		}
		out[http.CanonicalHeaderKey(name)] = append([]string(nil), values...)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
