package repositories

import (
	"context"
	"time"

	domain "github.com/Prince-Affedzie/Freshy-Food-Backend/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Orders() OrderRepository
	Payments() PaymentRepository
	Products() ProductRepository
	Inventory() InventoryRepository
	Customers() CustomerRepository
	Notifications() NotificationRepository
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// OrderRepository persists order aggregates. Orders are never deleted.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	// Update persists order only while the stored updatedAt still equals expectedUpdatedAt.
	// A concurrent change is reported as a conflict.
	Update(ctx context.Context, order domain.Order, expectedUpdatedAt time.Time) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) (domain.CursorPage[domain.Order], error)
	Stats(ctx context.Context, filter OrderListFilter) (domain.OrderStats, error)
}

// OrderSort selects the ordering applied to order listings.
type OrderSort string

const (
	OrderSortNewest    OrderSort = "newest"
	OrderSortOldest    OrderSort = "oldest"
	OrderSortPriceAsc  OrderSort = "price"
	OrderSortPriceDesc OrderSort = "price-desc"
)

// OrderListFilter narrows order listings.
type OrderListFilter struct {
	UserID      string
	Status      []string
	IsPaid      *bool
	IsDelivered *bool
	DateRange   domain.RangeQuery[time.Time]
	Sort        OrderSort
	Pagination  domain.Pagination
}

// PaymentRepository persists payment records keyed by gateway transaction reference,
// so recording the same reference twice is a conflict.
type PaymentRepository interface {
	Insert(ctx context.Context, payment domain.Payment) error
	// Update writes status and refund fields. The order link is only changed through the claim methods.
	Update(ctx context.Context, payment domain.Payment) error
	// ClaimForOrder links the payment to orderID when it settles no order yet; any other
	// existing link is a conflict.
	ClaimForOrder(ctx context.Context, paymentID, orderID string, at time.Time) error
	// ReleaseOrderClaim clears the link when it still points at orderID.
	ReleaseOrderClaim(ctx context.Context, paymentID, orderID string, at time.Time) error
	FindByID(ctx context.Context, paymentID string) (domain.Payment, error)
	FindByReference(ctx context.Context, reference string) (domain.Payment, error)
	List(ctx context.Context, filter PaymentListFilter) (domain.CursorPage[domain.Payment], error)
}

// PaymentListFilter narrows payment listings.
type PaymentListFilter struct {
	UserID     string
	Status     []string
	Method     string
	DateRange  domain.RangeQuery[time.Time]
	Pagination domain.Pagination
}

// ProductRepository reads the inventory projection of catalog products.
type ProductRepository interface {
	FindByID(ctx context.Context, productID string) (domain.Product, error)
}

// InventoryRepository applies atomic stock adjustments. Implementations must never drive stock below zero.
type InventoryRepository interface {
	Decrement(ctx context.Context, productID string, quantity int) (domain.Product, error)
	Restore(ctx context.Context, productID string, quantity int) (domain.Product, error)
}

// CustomerRepository reads user accounts and maintains their cart and order history.
type CustomerRepository interface {
	FindByID(ctx context.Context, userID string) (domain.Customer, error)
	ListAdmins(ctx context.Context) ([]domain.Customer, error)
	ClearCartAndAppendOrder(ctx context.Context, userID string, orderID string) error
}

// NotificationRepository stores in-app notifications. Insert is create-only: an existing id is a conflict.
type NotificationRepository interface {
	Insert(ctx context.Context, notification domain.Notification) error
}
