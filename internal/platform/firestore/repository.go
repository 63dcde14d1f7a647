package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
)

// Document pairs a decoded record with its document id and server timestamps.
type Document[T any] struct {
	ID         string
	Data       T
	CreateTime time.Time
	UpdateTime time.Time
}

// QueryBuilder narrows a collection query before it runs.
type QueryBuilder func(query firestore.Query) firestore.Query

// BaseRepository binds a Firestore collection to a document struct T decoded with DataTo.
type BaseRepository[T any] struct {
	provider   *Provider
	collection string
}

// NewBaseRepository returns a repository over collection.
func NewBaseRepository[T any](provider *Provider, collection string) *BaseRepository[T] {
	return &BaseRepository[T]{provider: provider, collection: strings.TrimSpace(collection)}
}

// Create stores value under id. An existing document yields a conflict error.
func (r *BaseRepository[T]) Create(ctx context.Context, id string, value T) (time.Time, error) {
	ref, err := r.DocumentRef(ctx, id)
	if err != nil {
		return time.Time{}, err
	}
	res, err := ref.Create(ctx, value)
	if err != nil {
		return time.Time{}, WrapError(r.op("create"), err)
	}
	return res.UpdateTime, nil
}

// Update applies field updates to an existing document. A missing document yields a not-found error.
func (r *BaseRepository[T]) Update(ctx context.Context, id string, updates []firestore.Update, preconds ...firestore.Precondition) (time.Time, error) {
	ref, err := r.DocumentRef(ctx, id)
	if err != nil {
		return time.Time{}, err
	}
	res, err := ref.Update(ctx, updates, preconds...)
	if err != nil {
		return time.Time{}, WrapError(r.op("update"), err)
	}
	return res.UpdateTime, nil
}

// Get reads and decodes a single document.
func (r *BaseRepository[T]) Get(ctx context.Context, id string) (Document[T], error) {
	ref, err := r.DocumentRef(ctx, id)
	if err != nil {
		return Document[T]{}, err
	}
	snap, err := ref.Get(ctx)
	if err != nil {
		return Document[T]{}, WrapError(r.op("get"), err)
	}
	return r.Decode(ctx, snap)
}

// Query runs build against the collection and decodes every result.
func (r *BaseRepository[T]) Query(ctx context.Context, build QueryBuilder) ([]Document[T], error) {
	coll, err := r.collectionRef(ctx)
	if err != nil {
		return nil, err
	}
	query := coll.Query
	if build != nil {
		query = build(query)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var docs []Document[T]
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			return docs, nil
		}
		if err != nil {
			return nil, WrapError(r.op("query"), err)
		}
		doc, err := r.Decode(ctx, snap)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
}

// DocumentRef resolves id within the collection, for use inside transactions.
func (r *BaseRepository[T]) DocumentRef(ctx context.Context, id string) (*firestore.DocumentRef, error) {
	if strings.TrimSpace(id) == "" {
		return nil, WrapError(r.op("ref"), errors.New("document id is required"))
	}
	coll, err := r.collectionRef(ctx)
	if err != nil {
		return nil, err
	}
	return coll.Doc(id), nil
}

// Decode converts a snapshot read elsewhere, such as from a transaction or a paged iterator.
func (r *BaseRepository[T]) Decode(_ context.Context, snap *firestore.DocumentSnapshot) (Document[T], error) {
	if snap == nil || snap.Ref == nil {
		return Document[T]{}, WrapError(r.op("decode"), errors.New("snapshot is nil"))
	}
	var data T
	if err := snap.DataTo(&data); err != nil {
		return Document[T]{}, fmt.Errorf("%s: decode %s: %w", r.op("decode"), snap.Ref.ID, err)
	}
	return Document[T]{
		ID:         snap.Ref.ID,
		Data:       data,
		CreateTime: snap.CreateTime,
		UpdateTime: snap.UpdateTime,
	}, nil
}

func (r *BaseRepository[T]) collectionRef(ctx context.Context) (*firestore.CollectionRef, error) {
	if r == nil || r.provider == nil || r.collection == "" {
		return nil, errors.New("firestore: repository not initialised")
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(r.collection), nil
}

func (r *BaseRepository[T]) op(action string) string {
	if r == nil || r.collection == "" {
		return "firestore." + action
	}
	return r.collection + "." + action
}
