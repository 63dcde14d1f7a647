package services

import (
	"context"
	"time"

	domain "github.com/Prince-Affedzie/Freshy-Food-Backend/internal/domain"
	"github.com/Prince-Affedzie/Freshy-Food-Backend/internal/payments"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Pagination              = domain.Pagination
	Order                   = domain.Order
	OrderItem               = domain.OrderItem
	OrderStatus             = domain.OrderStatus
	OrderStatusHistoryEntry = domain.OrderStatusHistoryEntry
	OrderTimelineStep       = domain.OrderTimelineStep
	OrderStats              = domain.OrderStats
	OrderPackage            = domain.OrderPackage
	ShippingAddress         = domain.ShippingAddress
	DeliverySchedule        = domain.DeliverySchedule
	Payment                 = domain.Payment
	PaymentStatus           = domain.PaymentStatus
	Product                 = domain.Product
	Customer                = domain.Customer
	Notification            = domain.Notification
)

// OrderService is the order lifecycle engine: checkout, reads, and every status transition.
type OrderService interface {
	CreateOrder(ctx context.Context, cmd CreateOrderCommand) (Order, error)
	GetOrder(ctx context.Context, query GetOrderQuery) (OrderDetail, error)
	ListMyOrders(ctx context.Context, filter MyOrdersFilter) (OrderListResult, error)
	ListOrders(ctx context.Context, filter AdminOrdersFilter) (domain.CursorPage[Order], error)
	UpdateOrderStatus(ctx context.Context, cmd UpdateOrderStatusCommand) (Order, error)
	CancelOrder(ctx context.Context, cmd CancelOrderCommand) (Order, error)
	MarkOrderPaid(ctx context.Context, cmd MarkOrderPaidCommand) (Order, error)
	MarkOrderDelivered(ctx context.Context, cmd MarkOrderDeliveredCommand) (Order, error)
}

// PaymentService verifies gateway transactions, records them, and handles refunds and admin overrides.
type PaymentService interface {
	InitializePayment(ctx context.Context, cmd InitializePaymentCommand) (PaymentSession, error)
	VerifyAndRecordPayment(ctx context.Context, cmd VerifyPaymentCommand) (Payment, error)
	RefundPayment(ctx context.Context, cmd RefundPaymentCommand) (Payment, error)
	GetPayment(ctx context.Context, paymentID string) (Payment, error)
	ListPayments(ctx context.Context, filter PaymentListFilter) (domain.CursorPage[Payment], error)
	UpdatePaymentStatus(ctx context.Context, cmd UpdatePaymentStatusCommand) (Payment, error)
}

// InventoryService adjusts product stock. Adjustments never drive stock below zero.
type InventoryService interface {
	DecrementStock(ctx context.Context, productID string, quantity int) (Product, error)
	RestoreStock(ctx context.Context, productID string, quantity int) (Product, error)
}

// NotificationQueue hands notification jobs to an asynchronous worker. Enqueue must not block on delivery.
type NotificationQueue interface {
	Enqueue(ctx context.Context, job NotificationJob) error
}

// NotificationDeliverer renders and delivers one queued notification job to every recipient.
type NotificationDeliverer interface {
	Deliver(ctx context.Context, job NotificationJob) error
}

// PaymentGateway is the subset of payments.Manager used by the payment service.
type PaymentGateway interface {
	Resolve(pc payments.PaymentContext) (string, error)
	Initialize(ctx context.Context, pc payments.PaymentContext, req payments.InitializeRequest) (payments.Initialization, error)
	Verify(ctx context.Context, pc payments.PaymentContext, reference string) (payments.Transaction, error)
	Refund(ctx context.Context, pc payments.PaymentContext, req payments.RefundRequest) (payments.Refund, error)
}

// CreateOrderItem is one requested checkout line.
type CreateOrderItem struct {
	ProductID string
	Quantity  int
	Unit      string
}

// CreateOrderCommand carries checkout input.
type CreateOrderCommand struct {
	UserID           string
	Items            []CreateOrderItem
	ShippingAddress  ShippingAddress
	DeliverySchedule DeliverySchedule
	DeliveryNote     string
	PaymentMethod    string
	PaymentID        string
	Package          *OrderPackage
}

// GetOrderQuery identifies an order and who is asking for it.
type GetOrderQuery struct {
	OrderID     string
	RequesterID string
	IsAdmin     bool
}

// OrderDetail is an order plus its customer facing timeline.
type OrderDetail struct {
	Order    Order
	Timeline []OrderTimelineStep
}

// MyOrdersFilter narrows a customer's own order listing.
type MyOrdersFilter struct {
	UserID     string
	Status     string
	Sort       string
	Pagination Pagination
}

// OrderListResult is one page of orders plus status counts over the whole filter.
type OrderListResult struct {
	Page  domain.CursorPage[Order]
	Stats OrderStats
}

// AdminOrdersFilter narrows the admin order listing.
type AdminOrdersFilter struct {
	UserID      string
	Status      []string
	IsPaid      *bool
	IsDelivered *bool
	From        *time.Time
	To          *time.Time
	Sort        string
	Pagination  Pagination
}

// UpdateOrderStatusCommand is an admin status change.
type UpdateOrderStatusCommand struct {
	OrderID string
	Status  string
	ActorID string
	Notes   string
}

// CancelOrderCommand is a customer cancellation.
type CancelOrderCommand struct {
	OrderID     string
	RequesterID string
	Reason      string
}

// MarkOrderPaidCommand records payment against an order.
type MarkOrderPaidCommand struct {
	OrderID        string
	ActorID        string
	PaymentDetails map[string]any
}

// MarkOrderDeliveredCommand records delivery of an order.
type MarkOrderDeliveredCommand struct {
	OrderID string
	ActorID string
}

// InitializePaymentCommand opens a gateway session for the client SDK.
type InitializePaymentCommand struct {
	UserID            string
	Email             string
	Amount            int64
	Currency          string
	PreferredProvider string
}

// PaymentSession is what the client needs to complete payment with the gateway.
type PaymentSession struct {
	Provider     string
	Reference    string
	PublicKey    string
	ClientSecret string
	Amount       int64
	Currency     string
}

// VerifyPaymentCommand asks the gateway for the outcome of a transaction.
type VerifyPaymentCommand struct {
	UserID            string
	Reference         string
	ClaimedAmount     int64
	Currency          string
	PreferredProvider string
}

// RefundPaymentCommand refunds a paid payment by gateway reference.
type RefundPaymentCommand struct {
	Reference string
	ActorID   string
	Reason    string
}

// UpdatePaymentStatusCommand is an admin override of a payment's status.
type UpdatePaymentStatusCommand struct {
	PaymentID string
	Status    string
	ActorID   string
}

// PaymentListFilter narrows payment listings.
type PaymentListFilter struct {
	UserID     string
	Status     []string
	Method     string
	From       *time.Time
	To         *time.Time
	Pagination Pagination
}

// NotificationJobType names the kind of notification a job renders.
type NotificationJobType string

const (
	NotificationJobOrderPlaced   NotificationJobType = "order_placed"
	NotificationJobAdminNewOrder NotificationJobType = "admin_new_order"
	NotificationJobStatusChanged NotificationJobType = "status_changed"
)

// NotificationJob identifies what to notify about. It carries ids only; the worker reloads state.
type NotificationJob struct {
	ID             string              `json:"id"`
	Type           NotificationJobType `json:"type"`
	OrderID        string              `json:"orderId"`
	UserID         string              `json:"userId"`
	PreviousStatus string              `json:"previousStatus,omitempty"`
	Status         string              `json:"status,omitempty"`
	QueuedAt       time.Time           `json:"queuedAt"`
}
