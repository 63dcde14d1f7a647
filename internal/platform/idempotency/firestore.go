package idempotency

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	pfirestore "github.com/Prince-Affedzie/Freshy-Food-Backend/internal/platform/firestore"
)

const collectionName = "idempotencyKeys"

// FirestoreStore shares idempotency state across instances. Reserve runs in a transaction.
type FirestoreStore struct {
	provider *pfirestore.Provider
}

// NewFirestoreStore constructs a Firestore-backed store.
func NewFirestoreStore(provider *pfirestore.Provider) *FirestoreStore {
	return &FirestoreStore{provider: provider}
}

func (s *FirestoreStore) Reserve(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Reservation, error) {
	ref, err := s.ref(ctx, key)
	if err != nil {
		return Reservation{}, err
	}
	now = now.UTC()

	var result Reservation
	err = s.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil && status.Code(err) != codes.NotFound {
			return err
		}
		if err == nil {
			var doc recordDocument
			if err := snap.DataTo(&doc); err != nil {
				return err
			}
			if now.Before(doc.ExpiresAt) {
				result, err = reservationFor(doc.record(), fingerprint)
				return err
			}
		}
		record := pendingRecord(key, fingerprint, now, ttl)
		result = Reservation{State: ReservationStateNew, Record: record}
		return tx.Set(ref, documentFrom(record))
	})
	if err != nil {
		if errors.Is(err, ErrFingerprintMismatch) {
			return Reservation{}, err
		}
		return Reservation{}, pfirestore.WrapError("idempotency.reserve", err)
	}
	return result, nil
}

func (s *FirestoreStore) SaveResponse(ctx context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error {
	ref, err := s.ref(ctx, key)
	if err != nil {
		return err
	}
	record := completedRecord(key, fingerprint, resp, now.UTC(), ttl)
	if _, err := ref.Set(ctx, documentFrom(record)); err != nil {
		return pfirestore.WrapError("idempotency.save", err)
	}
	return nil
}

func (s *FirestoreStore) Release(ctx context.Context, key string) error {
	ref, err := s.ref(ctx, key)
	if err != nil {
		return err
	}
	if _, err := ref.Delete(ctx); err != nil && status.Code(err) != codes.NotFound {
		return pfirestore.WrapError("idempotency.release", err)
	}
	return nil
}

func (s *FirestoreStore) CleanupExpired(ctx context.Context, now time.Time, limit int) (int, error) {
	client, err := s.provider.Client(ctx)
	if err != nil {
		return 0, err
	}
	if limit <= 0 {
		limit = 100
	}
	docs, err := client.Collection(collectionName).Where("expiresAt", "<=", now.UTC()).Limit(limit).Documents(ctx).GetAll()
	if err != nil {
		return 0, pfirestore.WrapError("idempotency.cleanup", err)
	}
	if len(docs) == 0 {
		return 0, nil
	}
	writer := client.BulkWriter(ctx)
	for _, doc := range docs {
		if _, err := writer.Delete(doc.Ref); err != nil {
			writer.End()
			return 0, pfirestore.WrapError("idempotency.cleanup", err)
		}
	}
	writer.End()
	return len(docs), nil
}

func (s *FirestoreStore) ref(ctx context.Context, key string) (*firestore.DocumentRef, error) {
	client, err := s.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(collectionName).Doc(documentID(key)), nil
}

type recordDocument struct {
	Key             string              `firestore:"key"`
	Fingerprint     string              `firestore:"fingerprint"`
	Status          string              `firestore:"status"`
	ResponseStatus  int                 `firestore:"responseStatus"`
	ResponseHeaders map[string][]string `firestore:"responseHeaders"`
	ResponseBody    []byte              `firestore:"responseBody"`
	CreatedAt       time.Time           `firestore:"createdAt"`
	ExpiresAt       time.Time           `firestore:"expiresAt"`
}

func documentFrom(r Record) recordDocument {
	return recordDocument{
		Key:             r.Key,
		Fingerprint:     r.Fingerprint,
		Status:          string(r.Status),
		ResponseStatus:  r.ResponseStatus,
		ResponseHeaders: r.ResponseHeaders,
		ResponseBody:    r.ResponseBody,
		CreatedAt:       r.CreatedAt,
		ExpiresAt:       r.ExpiresAt,
	}
}

func (d recordDocument) record() Record {
	return Record{
		Key:             d.Key,
		Fingerprint:     d.Fingerprint,
		Status:          Status(d.Status),
		ResponseStatus:  d.ResponseStatus,
		ResponseHeaders: d.ResponseHeaders,
		ResponseBody:    d.ResponseBody,
		CreatedAt:       d.CreatedAt,
		ExpiresAt:       d.ExpiresAt,
	}
}
