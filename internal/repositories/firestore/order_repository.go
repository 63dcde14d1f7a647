package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	domain "github.com/Prince-Affedzie/Freshy-Food-Backend/internal/domain"
	pfirestore "github.com/Prince-Affedzie/Freshy-Food-Backend/internal/platform/firestore"
	"github.com/Prince-Affedzie/Freshy-Food-Backend/internal/platform/pagination"
	"github.com/Prince-Affedzie/Freshy-Food-Backend/internal/repositories"
)

const orderCollection = "orders"

// OrderRepository persists orders in Firestore.
type OrderRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.BaseRepository[orderDocument]
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[orderDocument](provider, orderCollection)
	return &OrderRepository{provider: provider, base: base}, nil
}

// Insert creates the order document. Inserting an existing id is a conflict.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if r == nil || r.base == nil {
		return errors.New("order repository not initialised")
	}
	if strings.TrimSpace(order.ID) == "" {
		return errors.New("order id is required")
	}
	_, err := r.base.Create(ctx, order.ID, newOrderDocument(order))
	return err
}

// Update writes the mutable order fields in a transaction that first checks the stored
// updatedAt against expectedUpdatedAt. A missing order is not found; a moved updatedAt is a conflict.
func (r *OrderRepository) Update(ctx context.Context, order domain.Order, expectedUpdatedAt time.Time) error {
	if r == nil || r.base == nil || r.provider == nil {
		return errors.New("order repository not initialised")
	}
	if strings.TrimSpace(order.ID) == "" {
		return errors.New("order id is required")
	}
	doc := newOrderDocument(order)
	updates := []firestore.Update{
		{Path: "paymentId", Value: doc.PaymentID},
		{Path: "isPaid", Value: doc.IsPaid},
		{Path: "paidAt", Value: doc.PaidAt},
		{Path: "isDelivered", Value: doc.IsDelivered},
		{Path: "deliveredAt", Value: doc.DeliveredAt},
		{Path: "status", Value: doc.Status},
		{Path: "statusHistory", Value: doc.StatusHistory},
		{Path: "cancelledAt", Value: doc.CancelledAt},
		{Path: "cancellationReason", Value: doc.CancellationReason},
		{Path: "cancelledBy", Value: doc.CancelledBy},
		{Path: "paymentDetails", Value: doc.PaymentDetails},
		{Path: "updatedAt", Value: doc.UpdatedAt},
	}
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.base.DocumentRef(ctx, order.ID)
		if err != nil {
			return err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			return pfirestore.WrapError("orders.update", err)
		}
		var stored orderDocument
		if err := snap.DataTo(&stored); err != nil {
			return fmt.Errorf("decode order %s: %w", order.ID, err)
		}
		if !sameInstant(stored.UpdatedAt, expectedUpdatedAt) {
			return pfirestore.Conflict("orders.update", "order %s changed at %s", order.ID, stored.UpdatedAt.Format(time.RFC3339Nano))
		}
		return tx.Update(ref, updates)
	})
	return pfirestore.WrapError("orders.update", err)
}

// sameInstant compares at the microsecond precision Firestore stores.
func sameInstant(a, b time.Time) bool {
	return a.Truncate(time.Microsecond).Equal(b.Truncate(time.Microsecond))
}

// FindByID loads an order.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if r == nil || r.base == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, errors.New("order id is required")
	}
	doc, err := r.base.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

type orderCursor struct {
	CreatedAt  time.Time `json:"createdAt"`
	TotalPrice int64     `json:"totalPrice"`
	ID         string    `json:"id"`
}

// List returns a page of orders matching the filter.
func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if r == nil || r.provider == nil {
		return domain.CursorPage[domain.Order]{}, errors.New("order repository not initialised")
	}

	pageSize := pagination.NormalizePageSize(filter.Pagination.PageSize)
	cursor, hasCursor, err := pagination.DecodeToken[orderCursor](filter.Pagination.PageToken)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, fmt.Errorf("order repository: %w", err)
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}

	sortByPrice := filter.Sort == repositories.OrderSortPriceAsc || filter.Sort == repositories.OrderSortPriceDesc
	query := applyOrderFilter(client.Collection(orderCollection).Query, filter, !sortByPrice)
	switch filter.Sort {
	case repositories.OrderSortOldest:
		query = query.OrderBy("createdAt", firestore.Asc).OrderBy(firestore.DocumentID, firestore.Asc)
		if hasCursor {
			query = query.StartAfter(cursor.CreatedAt, cursor.ID)
		}
	case repositories.OrderSortPriceAsc:
		query = query.OrderBy("totalPrice", firestore.Asc).OrderBy(firestore.DocumentID, firestore.Asc)
		if hasCursor {
			query = query.StartAfter(cursor.TotalPrice, cursor.ID)
		}
	case repositories.OrderSortPriceDesc:
		query = query.OrderBy("totalPrice", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
		if hasCursor {
			query = query.StartAfter(cursor.TotalPrice, cursor.ID)
		}
	default:
		query = query.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
		if hasCursor {
			query = query.StartAfter(cursor.CreatedAt, cursor.ID)
		}
	}
	query = query.Limit(pageSize + 1)

	iter := query.Documents(ctx)
	defer iter.Stop()

	var orders []domain.Order
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return domain.CursorPage[domain.Order]{}, pfirestore.WrapError("orders.list", err)
		}
		decoded, err := r.base.Decode(ctx, snap)
		if err != nil {
			return domain.CursorPage[domain.Order]{}, fmt.Errorf("decode order %s: %w", snap.Ref.ID, err)
		}
		order := decoded.Data.toDomain(decoded.ID)
		// Date ranges on price sorted listings are applied here since Firestore orders by the range field first.
		if sortByPrice && !withinRange(order.CreatedAt, filter.DateRange) {
			continue
		}
		orders = append(orders, order)
	}

	var nextToken string
	if len(orders) > pageSize {
		orders = orders[:pageSize]
		last := orders[len(orders)-1]
		nextToken, err = pagination.EncodeToken(orderCursor{CreatedAt: last.CreatedAt, TotalPrice: last.TotalPrice, ID: last.ID})
		if err != nil {
			return domain.CursorPage[domain.Order]{}, err
		}
	}

	return domain.CursorPage[domain.Order]{Items: orders, NextPageToken: nextToken}, nil
}

// Stats counts every order matching the filter, ignoring pagination and sort.
func (r *OrderRepository) Stats(ctx context.Context, filter repositories.OrderListFilter) (domain.OrderStats, error) {
	if r == nil || r.base == nil {
		return domain.OrderStats{}, errors.New("order repository not initialised")
	}
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return applyOrderFilter(q, filter, true)
	})
	if err != nil {
		return domain.OrderStats{}, err
	}

	stats := domain.OrderStats{ByStatus: make(map[domain.OrderStatus]int)}
	for _, doc := range docs {
		status := domain.OrderStatus(doc.Data.Status)
		stats.Total++
		stats.ByStatus[status]++
		if status != domain.OrderStatusCancelled {
			stats.TotalSpent += doc.Data.TotalPrice
		}
	}
	return stats, nil
}

func applyOrderFilter(query firestore.Query, filter repositories.OrderListFilter, withDates bool) firestore.Query {
	if userID := strings.TrimSpace(filter.UserID); userID != "" {
		query = query.Where("userId", "==", userID)
	}
	switch statuses := compactStrings(filter.Status); len(statuses) {
	case 0:
	case 1:
		query = query.Where("status", "==", statuses[0])
	default:
		query = query.Where("status", "in", statuses)
	}
	if filter.IsPaid != nil {
		query = query.Where("isPaid", "==", *filter.IsPaid)
	}
	if filter.IsDelivered != nil {
		query = query.Where("isDelivered", "==", *filter.IsDelivered)
	}
	if withDates {
		if from := filter.DateRange.From; from != nil {
			query = query.Where("createdAt", ">=", from.UTC())
		}
		if to := filter.DateRange.To; to != nil {
			query = query.Where("createdAt", "<=", to.UTC())
		}
	}
	return query
}

func withinRange(at time.Time, rng domain.RangeQuery[time.Time]) bool {
	if rng.From != nil && at.Before(*rng.From) {
		return false
	}
	if rng.To != nil && at.After(*rng.To) {
		return false
	}
	return true
}

func compactStrings(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

type orderDocument struct {
	OrderNumber      string                   `firestore:"orderNumber"`
	UserID           string                   `firestore:"userId"`
	PaymentID        string                   `firestore:"paymentId,omitempty"`
	Items            []orderItemDocument      `firestore:"items"`
	ShippingAddress  shippingAddressDocument  `firestore:"shippingAddress"`
	DeliverySchedule deliveryScheduleDocument `firestore:"deliverySchedule"`
	DeliveryNote     string                   `firestore:"deliveryNote,omitempty"`
	Package          *orderPackageDocument    `firestore:"package,omitempty"`
	PaymentMethod    string                   `firestore:"paymentMethod"`
	PaymentDetails   map[string]any           `firestore:"paymentDetails,omitempty"`
	Currency         string                   `firestore:"currency"`

	ItemsPrice  int64 `firestore:"itemsPrice"`
	DeliveryFee int64 `firestore:"deliveryFee"`
	TotalPrice  int64 `firestore:"totalPrice"`

	IsPaid      bool       `firestore:"isPaid"`
	PaidAt      *time.Time `firestore:"paidAt"`
	IsDelivered bool       `firestore:"isDelivered"`
	DeliveredAt *time.Time `firestore:"deliveredAt"`

	Status        string                  `firestore:"status"`
	StatusHistory []statusHistoryDocument `firestore:"statusHistory"`

	CancelledAt        *time.Time `firestore:"cancelledAt"`
	CancellationReason string     `firestore:"cancellationReason,omitempty"`
	CancelledBy        string     `firestore:"cancelledBy,omitempty"`

	CreatedAt time.Time `firestore:"createdAt"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

type orderItemDocument struct {
	ProductID string `firestore:"productId"`
	Name      string `firestore:"name"`
	Quantity  int    `firestore:"quantity"`
	Unit      string `firestore:"unit"`
	Image     string `firestore:"image,omitempty"`
	Price     int64  `firestore:"price"`
}

type shippingAddressDocument struct {
	Address         string `firestore:"address"`
	City            string `firestore:"city"`
	Region          string `firestore:"region,omitempty"`
	NearestLandmark string `firestore:"nearestLandmark,omitempty"`
	Phone           string `firestore:"phone"`
}

type deliveryScheduleDocument struct {
	PreferredDay  string `firestore:"preferredDay,omitempty"`
	PreferredTime string `firestore:"preferredTime,omitempty"`
}

type orderPackageDocument struct {
	ID         string `firestore:"id"`
	Name       string `firestore:"name"`
	BasePrice  int64  `firestore:"basePrice"`
	ValuePrice int64  `firestore:"valuePrice"`
}

type statusHistoryDocument struct {
	Status    string    `firestore:"status"`
	ChangedAt time.Time `firestore:"changedAt"`
	ChangedBy string    `firestore:"changedBy"`
	Notes     string    `firestore:"notes,omitempty"`
}

func newOrderDocument(order domain.Order) orderDocument {
	items := make([]orderItemDocument, len(order.Items))
	for i, item := range order.Items {
		items[i] = orderItemDocument{
			ProductID: item.ProductID,
			Name:      item.Name,
			Quantity:  item.Quantity,
			Unit:      item.Unit,
			Image:     item.Image,
			Price:     item.Price,
		}
	}
	history := make([]statusHistoryDocument, len(order.StatusHistory))
	for i, entry := range order.StatusHistory {
		history[i] = statusHistoryDocument{
			Status:    string(entry.Status),
			ChangedAt: entry.ChangedAt.UTC(),
			ChangedBy: entry.ChangedBy,
			Notes:     entry.Notes,
		}
	}
	var pkg *orderPackageDocument
	if order.Package != nil {
		pkg = &orderPackageDocument{
			ID:         order.Package.ID,
			Name:       order.Package.Name,
			BasePrice:  order.Package.BasePrice,
			ValuePrice: order.Package.ValuePrice,
		}
	}
	return orderDocument{
		OrderNumber: order.OrderNumber,
		UserID:      order.UserID,
		PaymentID:   order.PaymentID,
		Items:       items,
		ShippingAddress: shippingAddressDocument{
			Address:         order.ShippingAddress.Address,
			City:            order.ShippingAddress.City,
			Region:          order.ShippingAddress.Region,
			NearestLandmark: order.ShippingAddress.NearestLandmark,
			Phone:           order.ShippingAddress.Phone,
		},
		DeliverySchedule: deliveryScheduleDocument{
			PreferredDay:  order.DeliverySchedule.PreferredDay,
			PreferredTime: order.DeliverySchedule.PreferredTime,
		},
		DeliveryNote:       order.DeliveryNote,
		Package:            pkg,
		PaymentMethod:      order.PaymentMethod,
		PaymentDetails:     order.PaymentDetails,
		Currency:           order.Currency,
		ItemsPrice:         order.ItemsPrice,
		DeliveryFee:        order.DeliveryFee,
		TotalPrice:         order.TotalPrice,
		IsPaid:             order.IsPaid,
		PaidAt:             utcPointer(order.PaidAt),
		IsDelivered:        order.IsDelivered,
		DeliveredAt:        utcPointer(order.DeliveredAt),
		Status:             string(order.Status),
		StatusHistory:      history,
		CancelledAt:        utcPointer(order.CancelledAt),
		CancellationReason: order.CancellationReason,
		CancelledBy:        order.CancelledBy,
		CreatedAt:          order.CreatedAt.UTC(),
		UpdatedAt:          order.UpdatedAt.UTC(),
	}
}

func (d orderDocument) toDomain(id string) domain.Order {
	items := make([]domain.OrderItem, len(d.Items))
	for i, item := range d.Items {
		items[i] = domain.OrderItem{
			ProductID: item.ProductID,
			Name:      item.Name,
			Quantity:  item.Quantity,
			Unit:      item.Unit,
			Image:     item.Image,
			Price:     item.Price,
		}
	}
	history := make([]domain.OrderStatusHistoryEntry, len(d.StatusHistory))
	for i, entry := range d.StatusHistory {
		history[i] = domain.OrderStatusHistoryEntry{
			Status:    domain.OrderStatus(entry.Status),
			ChangedAt: entry.ChangedAt,
			ChangedBy: entry.ChangedBy,
			Notes:     entry.Notes,
		}
	}
	var pkg *domain.OrderPackage
	if d.Package != nil {
		pkg = &domain.OrderPackage{
			ID:         d.Package.ID,
			Name:       d.Package.Name,
			BasePrice:  d.Package.BasePrice,
			ValuePrice: d.Package.ValuePrice,
		}
	}
	return domain.Order{
		ID:          id,
		OrderNumber: d.OrderNumber,
		UserID:      d.UserID,
		PaymentID:   d.PaymentID,
		Items:       items,
		ShippingAddress: domain.ShippingAddress{
			Address:         d.ShippingAddress.Address,
			City:            d.ShippingAddress.City,
			Region:          d.ShippingAddress.Region,
			NearestLandmark: d.ShippingAddress.NearestLandmark,
			Phone:           d.ShippingAddress.Phone,
		},
		DeliverySchedule: domain.DeliverySchedule{
			PreferredDay:  d.DeliverySchedule.PreferredDay,
			PreferredTime: d.DeliverySchedule.PreferredTime,
		},
		DeliveryNote:       d.DeliveryNote,
		Package:            pkg,
		PaymentMethod:      d.PaymentMethod,
		PaymentDetails:     d.PaymentDetails,
		Currency:           d.Currency,
		ItemsPrice:         d.ItemsPrice,
		DeliveryFee:        d.DeliveryFee,
		TotalPrice:         d.TotalPrice,
		IsPaid:             d.IsPaid,
		PaidAt:             d.PaidAt,
		IsDelivered:        d.IsDelivered,
		DeliveredAt:        d.DeliveredAt,
		Status:             domain.OrderStatus(d.Status),
		StatusHistory:      history,
		CancelledAt:        d.CancelledAt,
		CancellationReason: d.CancellationReason,
		CancelledBy:        d.CancelledBy,
		CreatedAt:          d.CreatedAt,
		UpdatedAt:          d.UpdatedAt,
	}
}

func utcPointer(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
