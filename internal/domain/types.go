package domain

import "time"

// Pagination captures cursor-based pagination inputs shared across list endpoints.
type Pagination struct {
	PageSize  int
	PageToken string
}

// SortOrder indicates ascending or descending ordering for list queries.
type SortOrder string

const (
	// SortAsc orders results ascending.
	SortAsc SortOrder = "asc"
	// SortDesc orders results descending.
	SortDesc SortOrder = "desc"
)

// RangeQuery represents inclusive range filters for numeric or timestamp fields.
type RangeQuery[T comparable] struct {
	From *T
	To   *T
}

// CursorPage packages list results with an encoded next token.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}

// DefaultCurrency is applied to payments and orders when callers omit a currency.
const DefaultCurrency = "GHS"

// OrderStatus enumerates the lifecycle states of an order.
type OrderStatus string

const (
	// OrderStatusPending marks an order that has not been confirmed for preparation yet.
	OrderStatusPending OrderStatus = "Pending"
	// OrderStatusProcessing marks an order being prepared.
	OrderStatusProcessing OrderStatus = "Processing"
	// OrderStatusOutForDelivery marks an order handed to a rider.
	OrderStatusOutForDelivery OrderStatus = "Out for Delivery"
	// OrderStatusDelivered marks an order received by the customer.
	OrderStatusDelivered OrderStatus = "Delivered"
	// OrderStatusCancelled marks an order that will not be fulfilled.
	OrderStatusCancelled OrderStatus = "Cancelled"
)

// PaymentMethodCashOnDelivery is the only payment method that creates an order without a verified payment.
const PaymentMethodCashOnDelivery = "cash_on_delivery"

// Order is the aggregate root for a single checkout.
type Order struct {
	ID               string
	OrderNumber      string
	UserID           string
	PaymentID        string
	Items            []OrderItem
	ShippingAddress  ShippingAddress
	DeliverySchedule DeliverySchedule
	DeliveryNote     string
	Package          *OrderPackage
	PaymentMethod    string
	PaymentDetails   map[string]any
	Currency         string

	ItemsPrice  int64
	DeliveryFee int64
	TotalPrice  int64

	IsPaid      bool
	PaidAt      *time.Time
	IsDelivered bool
	DeliveredAt *time.Time

	Status        OrderStatus
	StatusHistory []OrderStatusHistoryEntry

	CancelledAt        *time.Time
	CancellationReason string
	CancelledBy        string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// OrderItem is the immutable snapshot of a catalog product taken at checkout.
type OrderItem struct {
	ProductID string
	Name      string
	Quantity  int
	Unit      string
	Image     string
	Price     int64
}

// LineTotal returns price multiplied by quantity.
func (i OrderItem) LineTotal() int64 {
	return i.Price * int64(i.Quantity)
}

// ShippingAddress describes where an order is delivered.
type ShippingAddress struct {
	Address         string
	City            string
	Region          string
	NearestLandmark string
	Phone           string
}

// DeliverySchedule captures the customer's preferred delivery slot.
type DeliverySchedule struct {
	PreferredDay  string
	PreferredTime string
}

// OrderPackage references the curated bundle the checkout originated from.
type OrderPackage struct {
	ID         string
	Name       string
	BasePrice  int64
	ValuePrice int64
}

// OrderStatusHistoryEntry is one append-only audit record of a status change.
type OrderStatusHistoryEntry struct {
	Status    OrderStatus
	ChangedAt time.Time
	ChangedBy string
	Notes     string
}

// OrderTimelineStep is a customer facing projection of the status history.
type OrderTimelineStep struct {
	Label       string
	Description string
	Completed   bool
	At          *time.Time
}

// OrderStats summarises a set of orders by status.
type OrderStats struct {
	Total      int
	TotalSpent int64
	ByStatus   map[OrderStatus]int
}

// PaymentStatus enumerates the lifecycle states of a payment record.
type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "pending"
	PaymentStatusProcessing PaymentStatus = "processing"
	PaymentStatusPaid       PaymentStatus = "paid"
	PaymentStatusRefunded   PaymentStatus = "refunded"
	PaymentStatusFailed     PaymentStatus = "failed"
)

// Payment is a gateway transaction record. It exists independently of the order it pays for.
type Payment struct {
	ID                string
	OrderID           string
	UserID            string
	Amount            int64
	Currency          string
	Status            PaymentStatus
	Provider          string
	TransactionRef    string
	PaymentMethod     string
	PaymentChannel    string
	MobileMoneyNumber string
	GatewayAmount     int64
	RefundedAt        *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Product is the inventory projection of a catalog product.
type Product struct {
	ID           string
	Name         string
	Image        string
	Unit         string
	Price        int64
	CountInStock int
	IsAvailable  bool
	UpdatedAt    time.Time
}

// Customer is the subset of a user account the order workflow needs.
type Customer struct {
	ID        string
	FirstName string
	LastName  string
	Email     string
	Phone     string
	IsAdmin   bool
	Role      string
	PushToken string
	OrderIDs  []string
}

// Notification is an in-app message stored in a user's inbox.
type Notification struct {
	ID        string
	UserID    string
	Title     string
	Message   string
	Read      bool
	CreatedAt time.Time
}
