package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/Prince-Affedzie/Freshy-Food-Backend/internal/domain"
	pfirestore "github.com/Prince-Affedzie/Freshy-Food-Backend/internal/platform/firestore"
	"github.com/Prince-Affedzie/Freshy-Food-Backend/internal/repositories"
)

const productCollection = "products"

// ProductRepository reads products and applies transactional stock adjustments on the same documents.
type ProductRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.BaseRepository[productDocument]
	now      func() time.Time
}

// NewProductRepository constructs a Firestore-backed product and inventory repository.
func NewProductRepository(provider *pfirestore.Provider) (*ProductRepository, error) {
	if provider == nil {
		return nil, errors.New("product repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[productDocument](provider, productCollection)
	return &ProductRepository{
		provider: provider,
		base:     base,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// FindByID loads a product.
func (r *ProductRepository) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	if r == nil || r.base == nil {
		return domain.Product{}, errors.New("product repository not initialised")
	}
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return domain.Product{}, errors.New("product id is required")
	}
	doc, err := r.base.Get(ctx, productID)
	if err != nil {
		return domain.Product{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// Decrement removes quantity units from the product's stock inside a transaction. The stock never goes
// below zero; the product is marked unavailable when it reaches zero.
func (r *ProductRepository) Decrement(ctx context.Context, productID string, quantity int) (domain.Product, error) {
	return r.adjust(ctx, "inventory.decrement", productID, quantity, -1)
}

// Restore returns quantity units to the product's stock and re-enables availability.
func (r *ProductRepository) Restore(ctx context.Context, productID string, quantity int) (domain.Product, error) {
	return r.adjust(ctx, "inventory.restore", productID, quantity, 1)
}

func (r *ProductRepository) adjust(ctx context.Context, op string, productID string, quantity int, sign int) (domain.Product, error) {
	if r == nil || r.provider == nil {
		return domain.Product{}, errors.New("product repository not initialised")
	}
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return domain.Product{}, wrapInventoryError(op, repositories.NewInventoryError(repositories.InventoryErrorProductNotFound, productID, "product id is required", nil))
	}
	if quantity <= 0 {
		return domain.Product{}, wrapInventoryError(op, repositories.NewInventoryError(repositories.InventoryErrorInvalidQuantity, productID, fmt.Sprintf("quantity for %s must be > 0", productID), nil))
	}

	var updated domain.Product
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.base.DocumentRef(ctx, productID)
		if err != nil {
			return err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return repositories.NewInventoryError(repositories.InventoryErrorProductNotFound, productID, fmt.Sprintf("product %s not found", productID), err)
			}
			return err
		}
		var doc productDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode product %s: %w", productID, err)
		}

		next := doc.CountInStock + sign*quantity
		if next < 0 {
			return repositories.NewInventoryError(repositories.InventoryErrorInsufficientStock, productID,
				fmt.Sprintf("insufficient stock for %s: have %d, need %d", productID, doc.CountInStock, quantity), nil)
		}
		doc.CountInStock = next
		switch {
		case next == 0:
			doc.IsAvailable = false
		case sign > 0:
			doc.IsAvailable = true
		}
		doc.UpdatedAt = r.now()

		if err := tx.Update(ref, []firestore.Update{
			{Path: "countInStock", Value: doc.CountInStock},
			{Path: "isAvailable", Value: doc.IsAvailable},
			{Path: "updatedAt", Value: doc.UpdatedAt},
		}); err != nil {
			return err
		}
		updated = doc.toDomain(productID)
		return nil
	})
	if err != nil {
		return domain.Product{}, wrapInventoryError(op, err)
	}
	return updated, nil
}

type productDocument struct {
	Name         string    `firestore:"name"`
	Image        string    `firestore:"image,omitempty"`
	Unit         string    `firestore:"unit,omitempty"`
	Price        int64     `firestore:"price"`
	CountInStock int       `firestore:"countInStock"`
	IsAvailable  bool      `firestore:"isAvailable"`
	UpdatedAt    time.Time `firestore:"updatedAt"`
}

func (d productDocument) toDomain(id string) domain.Product {
	return domain.Product{
		ID:           id,
		Name:         strings.TrimSpace(d.Name),
		Image:        strings.TrimSpace(d.Image),
		Unit:         strings.TrimSpace(d.Unit),
		Price:        d.Price,
		CountInStock: d.CountInStock,
		IsAvailable:  d.IsAvailable,
		UpdatedAt:    d.UpdatedAt,
	}
}

func wrapInventoryError(op string, err error) error {
	if err == nil {
		return nil
	}
	var invErr *repositories.InventoryError
	if errors.As(err, &invErr) {
		if invErr.Op == "" {
			invErr.Op = op
		}
		return invErr
	}
	return pfirestore.WrapError(op, err)
}
