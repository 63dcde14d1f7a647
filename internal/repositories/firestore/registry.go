package firestore

import (
	"context"
	"errors"

	pfirestore "github.com/Prince-Affedzie/Freshy-Food-Backend/internal/platform/firestore"
	"github.com/Prince-Affedzie/Freshy-Food-Backend/internal/repositories"
)

// Registry bundles the Firestore repositories behind repositories.Registry.
type Registry struct {
	provider      *pfirestore.Provider
	orders        *OrderRepository
	payments      *PaymentRepository
	products      *ProductRepository
	customers     *CustomerRepository
	notifications *NotificationRepository
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry constructs every repository against the shared provider.
func NewRegistry(provider *pfirestore.Provider) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("registry requires firestore provider")
	}
	orders, err := NewOrderRepository(provider)
	if err != nil {
		return nil, err
	}
	payments, err := NewPaymentRepository(provider)
	if err != nil {
		return nil, err
	}
	products, err := NewProductRepository(provider)
	if err != nil {
		return nil, err
	}
	customers, err := NewCustomerRepository(provider)
	if err != nil {
		return nil, err
	}
	notifications, err := NewNotificationRepository(provider)
	if err != nil {
		return nil, err
	}
	return &Registry{
		provider:      provider,
		orders:        orders,
		payments:      payments,
		products:      products,
		customers:     customers,
		notifications: notifications,
	}, nil
}

// Close releases the Firestore client.
func (r *Registry) Close(ctx context.Context) error {
	if r == nil || r.provider == nil {
		return nil
	}
	return r.provider.Close(ctx)
}

func (r *Registry) Orders() repositories.OrderRepository               { return r.orders }
func (r *Registry) Payments() repositories.PaymentRepository           { return r.payments }
func (r *Registry) Products() repositories.ProductRepository           { return r.products }
func (r *Registry) Inventory() repositories.InventoryRepository        { return r.products }
func (r *Registry) Customers() repositories.CustomerRepository         { return r.customers }
func (r *Registry) Notifications() repositories.NotificationRepository { return r.notifications }
