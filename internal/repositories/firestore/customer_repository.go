package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/Prince-Affedzie/Freshy-Food-Backend/internal/domain"
	pfirestore "github.com/Prince-Affedzie/Freshy-Food-Backend/internal/platform/firestore"
)

const userCollection = "users"

// CustomerRepository reads user accounts and maintains their cart and order history.
type CustomerRepository struct {
	base *pfirestore.BaseRepository[customerDocument]
	now  func() time.Time
}

// NewCustomerRepository constructs a Firestore-backed customer repository.
func NewCustomerRepository(provider *pfirestore.Provider) (*CustomerRepository, error) {
	if provider == nil {
		return nil, errors.New("customer repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[customerDocument](provider, userCollection)
	return &CustomerRepository{base: base, now: func() time.Time { return time.Now().UTC() }}, nil
}

// FindByID loads the user account by UID.
func (r *CustomerRepository) FindByID(ctx context.Context, userID string) (domain.Customer, error) {
	if r == nil || r.base == nil {
		return domain.Customer{}, errors.New("customer repository not initialised")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.Customer{}, errors.New("user id is required")
	}
	doc, err := r.base.Get(ctx, userID)
	if err != nil {
		return domain.Customer{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// ListAdmins returns every account flagged as an administrator.
func (r *CustomerRepository) ListAdmins(ctx context.Context) ([]domain.Customer, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("customer repository not initialised")
	}
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("isAdmin", "==", true)
	})
	if err != nil {
		return nil, err
	}
	admins := make([]domain.Customer, 0, len(docs))
	for _, doc := range docs {
		admins = append(admins, doc.Data.toDomain(doc.ID))
	}
	return admins, nil
}

// ClearCartAndAppendOrder empties the cart and records the order in the user's history in one write.
func (r *CustomerRepository) ClearCartAndAppendOrder(ctx context.Context, userID string, orderID string) error {
	if r == nil || r.base == nil {
		return errors.New("customer repository not initialised")
	}
	userID = strings.TrimSpace(userID)
	orderID = strings.TrimSpace(orderID)
	if userID == "" || orderID == "" {
		return errors.New("user id and order id are required")
	}
	_, err := r.base.Update(ctx, userID, []firestore.Update{
		{Path: "cart", Value: []any{}},
		{Path: "orders", Value: firestore.ArrayUnion(orderID)},
		{Path: "updatedAt", Value: r.now()},
	})
	return err
}

type customerDocument struct {
	FirstName string   `firestore:"firstName"`
	LastName  string   `firestore:"lastName"`
	Email     string   `firestore:"email"`
	Phone     string   `firestore:"phone"`
	IsAdmin   bool     `firestore:"isAdmin"`
	Role      string   `firestore:"role,omitempty"`
	PushToken string   `firestore:"pushToken,omitempty"`
	Orders    []string `firestore:"orders"`
}

func (d customerDocument) toDomain(id string) domain.Customer {
	return domain.Customer{
		ID:        id,
		FirstName: strings.TrimSpace(d.FirstName),
		LastName:  strings.TrimSpace(d.LastName),
		Email:     strings.ToLower(strings.TrimSpace(d.Email)),
		Phone:     strings.TrimSpace(d.Phone),
		IsAdmin:   d.IsAdmin,
		Role:      strings.ToLower(strings.TrimSpace(d.Role)),
		PushToken: strings.TrimSpace(d.PushToken),
		OrderIDs:  append([]string(nil), d.Orders...),
	}
}
