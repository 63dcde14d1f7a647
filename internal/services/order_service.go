package services

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/Prince-Affedzie/Freshy-Food-Backend/internal/domain"
	"github.com/Prince-Affedzie/Freshy-Food-Backend/internal/repositories"
)

const (
	orderEventCreated       = "order.created"
	orderEventStatusChanged = "order.status.changed"
	orderEventPaid          = "order.paid"

	systemActor      = "system"
	defaultItemUnit  = "unit"
	orderNumberChars = 8
)

var orderStatusRank = map[OrderStatus]int{
	domain.OrderStatusPending:        0,
	domain.OrderStatusProcessing:     1,
	domain.OrderStatusOutForDelivery: 2,
	domain.OrderStatusDelivered:      3,
}

var orderStatuses = []OrderStatus{
	domain.OrderStatusPending,
	domain.OrderStatusProcessing,
	domain.OrderStatusOutForDelivery,
	domain.OrderStatusDelivered,
	domain.OrderStatusCancelled,
}

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders        repositories.OrderRepository
	Payments      repositories.PaymentRepository
	Products      repositories.ProductRepository
	Customers     repositories.CustomerRepository
	Inventory     InventoryService
	Notifications NotificationQueue
	DeliveryFees  *DeliveryFeeTable
	Currency      string
	Clock         func() time.Time
	IDGenerator   func() string
	Metrics       Metrics
	Logger        func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders        repositories.OrderRepository
	payments      repositories.PaymentRepository
	products      repositories.ProductRepository
	customers     repositories.CustomerRepository
	inventory     InventoryService
	notifications NotificationQueue
	fees          DeliveryFeeTable
	currency      string
	clock         func() time.Time
	newID         func() string
	metrics       Metrics
	logger        func(context.Context, string, map[string]any)
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Products == nil {
		return nil, errors.New("order service: product repository is required")
	}
	if deps.Inventory == nil {
		return nil, errors.New("order service: inventory service is required")
	}

	fees := DefaultDeliveryFeeTable()
	if deps.DeliveryFees != nil {
		fees = fees.WithOverrides(*deps.DeliveryFees)
	}

	currency := strings.ToUpper(strings.TrimSpace(deps.Currency))
	if currency == "" {
		currency = domain.DefaultCurrency
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}

	metrics := deps.Metrics
	if metrics == nil {
		metrics = noopMetrics{}
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &orderService{
		orders:        deps.Orders,
		payments:      deps.Payments,
		products:      deps.Products,
		customers:     deps.Customers,
		inventory:     deps.Inventory,
		notifications: deps.Notifications,
		fees:          fees,
		currency:      currency,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:   idGen,
		metrics: metrics,
		logger:  logger,
	}, nil
}

func (s *orderService) CreateOrder(ctx context.Context, cmd CreateOrderCommand) (Order, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return Order{}, fmt.Errorf("%w: user id is required", ErrOrderInvalidInput)
	}
	if len(cmd.Items) == 0 {
		return Order{}, fmt.Errorf("%w: order must contain at least one item", ErrOrderInvalidInput)
	}
	address := normaliseShippingAddress(cmd.ShippingAddress)
	if address.Address == "" || address.City == "" || address.Phone == "" {
		return Order{}, fmt.Errorf("%w: shipping address, city and phone are required", ErrOrderInvalidInput)
	}
	method := strings.ToLower(strings.TrimSpace(cmd.PaymentMethod))
	if method == "" {
		return Order{}, fmt.Errorf("%w: payment method is required", ErrOrderInvalidInput)
	}
	cashOnDelivery := method == domain.PaymentMethodCashOnDelivery
	paymentID := strings.TrimSpace(cmd.PaymentID)
	if !cashOnDelivery && paymentID == "" {
		return Order{}, fmt.Errorf("%w: payment id is required for %s", ErrOrderInvalidInput, method)
	}
	for i, item := range cmd.Items {
		if strings.TrimSpace(item.ProductID) == "" {
			return Order{}, fmt.Errorf("%w: items[%d].productId is required", ErrOrderInvalidInput, i)
		}
		if item.Quantity <= 0 {
			return Order{}, fmt.Errorf("%w: items[%d].quantity must be positive", ErrOrderInvalidInput, i)
		}
	}

	products := make([]Product, len(cmd.Items))
	var unavailable []OutOfStockItem
	for i, item := range cmd.Items {
		productID := strings.TrimSpace(item.ProductID)
		product, err := s.products.FindByID(ctx, productID)
		if err != nil {
			if isRepositoryNotFound(err) {
				return Order{}, fmt.Errorf("%w: product %s not found", ErrOrderInvalidInput, productID)
			}
			return Order{}, s.mapRepositoryError(err)
		}
		if product.ID == "" {
			product.ID = productID
		}
		products[i] = product
		if !product.IsAvailable || product.CountInStock < item.Quantity {
			unavailable = append(unavailable, OutOfStockItem{
				ProductID: product.ID,
				Name:      product.Name,
				Requested: item.Quantity,
				Available: product.CountInStock,
			})
		}
	}
	if len(unavailable) > 0 {
		return Order{}, &OutOfStockError{Items: unavailable}
	}

	var payment *Payment
	if !cashOnDelivery {
		linked, err := s.loadPaymentForOrder(ctx, userID, paymentID)
		if err != nil {
			return Order{}, err
		}
		payment = &linked
	}

	now := s.now()
	items := make([]OrderItem, len(cmd.Items))
	var itemsPrice int64
	for i, item := range cmd.Items {
		product := products[i]
		unit := strings.TrimSpace(item.Unit)
		if unit == "" {
			unit = strings.TrimSpace(product.Unit)
		}
		if unit == "" {
			unit = defaultItemUnit
		}
		items[i] = OrderItem{
			ProductID: product.ID,
			Name:      product.Name,
			Quantity:  item.Quantity,
			Unit:      unit,
			Image:     product.Image,
			Price:     product.Price,
		}
		itemsPrice += items[i].LineTotal()
	}
	deliveryFee := s.fees.Fee(address.City, itemsPrice)

	id := s.newID()
	order := Order{
		ID:               id,
		OrderNumber:      orderNumberFromID(id),
		UserID:           userID,
		Items:            items,
		ShippingAddress:  address,
		DeliverySchedule: normaliseDeliverySchedule(cmd.DeliverySchedule),
		DeliveryNote:     sanitizeFreeText(cmd.DeliveryNote, maxNoteLength),
		Package:          clonePackage(cmd.Package),
		PaymentMethod:    method,
		Currency:         s.currency,
		ItemsPrice:       itemsPrice,
		DeliveryFee:      deliveryFee,
		TotalPrice:       itemsPrice + deliveryFee,
		Status:           domain.OrderStatusPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	note := "Order placed, awaiting payment on delivery"
	if payment != nil {
		order.PaymentID = payment.ID
		order.IsPaid = true
		order.PaidAt = &now
		order.Status = domain.OrderStatusProcessing
		order.PaymentDetails = paymentDetailsFromPayment(*payment)
		note = "Order placed with verified payment"
	}
	order.StatusHistory = []OrderStatusHistoryEntry{{
		Status:    order.Status,
		ChangedAt: now,
		ChangedBy: userID,
		Notes:     note,
	}}

	if payment != nil {
		if err := checkPaymentCoversOrder(*payment, order); err != nil {
			return Order{}, err
		}
		// The claim is taken before the insert so one payment can never settle two orders.
		if err := s.payments.ClaimForOrder(ctx, payment.ID, order.ID, now); err != nil {
			mapped := s.mapRepositoryError(err)
			if errors.Is(mapped, ErrOrderConflict) {
				return Order{}, fmt.Errorf("%w: payment %s already settles another order", ErrOrderConflict, payment.ID)
			}
			return Order{}, mapped
		}
	}

	if err := s.orders.Insert(ctx, order); err != nil {
		if payment != nil {
			if releaseErr := s.payments.ReleaseOrderClaim(ctx, payment.ID, order.ID, s.now()); releaseErr != nil {
				s.logger(ctx, "order.payment.release_failed", map[string]any{
					"orderId":   order.ID,
					"paymentId": payment.ID,
					"error":     releaseErr.Error(),
				})
			}
		}
		return Order{}, s.mapRepositoryError(err)
	}

	// Everything below is best effort: the order is durable and the call succeeds regardless.
	for _, item := range order.Items {
		if _, err := s.inventory.DecrementStock(ctx, item.ProductID, item.Quantity); err != nil {
			s.metrics.StockAdjustmentFailed("decrement")
			s.logger(ctx, "order.stock.decrement_failed", map[string]any{
				"orderId":   order.ID,
				"productId": item.ProductID,
				"quantity":  item.Quantity,
				"error":     err.Error(),
			})
		}
	}

	if s.customers != nil {
		if err := s.customers.ClearCartAndAppendOrder(ctx, userID, order.ID); err != nil {
			s.logger(ctx, "order.customer.update_failed", map[string]any{
				"orderId": order.ID,
				"userId":  userID,
				"error":   err.Error(),
			})
		}
	}

	s.enqueue(ctx, NotificationJob{Type: NotificationJobOrderPlaced, OrderID: order.ID, UserID: userID, Status: string(order.Status)})
	s.enqueue(ctx, NotificationJob{Type: NotificationJobAdminNewOrder, OrderID: order.ID, UserID: userID, Status: string(order.Status)})

	s.metrics.OrderCreated(method)
	s.logger(ctx, orderEventCreated, map[string]any{
		"orderId":       order.ID,
		"userId":        userID,
		"status":        string(order.Status),
		"paymentMethod": method,
		"totalPrice":    order.TotalPrice,
		"items":         len(order.Items),
	})
	return order, nil
}

func (s *orderService) loadPaymentForOrder(ctx context.Context, userID, paymentID string) (Payment, error) {
	if s.payments == nil {
		return Payment{}, fmt.Errorf("%w: payments are not configured", ErrOrderInvalidInput)
	}
	payment, err := s.payments.FindByID(ctx, paymentID)
	if err != nil {
		if isRepositoryNotFound(err) {
			return Payment{}, fmt.Errorf("%w: payment %s not found", ErrOrderInvalidInput, paymentID)
		}
		return Payment{}, s.mapRepositoryError(err)
	}
	if payment.UserID != userID {
		return Payment{}, fmt.Errorf("%w: payment %s does not belong to the user", ErrOrderInvalidInput, paymentID)
	}
	if payment.Status != domain.PaymentStatusPaid {
		return Payment{}, fmt.Errorf("%w: payment %s is %s", ErrOrderInvalidInput, paymentID, payment.Status)
	}
	if payment.OrderID != "" {
		return Payment{}, fmt.Errorf("%w: payment %s already settles order %s", ErrOrderConflict, paymentID, payment.OrderID)
	}
	return payment, nil
}

// checkPaymentCoversOrder compares the amount the gateway settled against the priced order.
func checkPaymentCoversOrder(payment Payment, order Order) error {
	if payment.Currency != "" && !strings.EqualFold(payment.Currency, order.Currency) {
		return fmt.Errorf("%w: payment %s is in %s, order is in %s", ErrOrderInvalidInput, payment.ID, payment.Currency, order.Currency)
	}
	settled := payment.GatewayAmount
	if settled == 0 {
		settled = payment.Amount
	}
	if settled < order.TotalPrice {
		return fmt.Errorf("%w: payment %s covers %d of %d", ErrOrderInvalidInput, payment.ID, settled, order.TotalPrice)
	}
	return nil
}

func (s *orderService) GetOrder(ctx context.Context, query GetOrderQuery) (OrderDetail, error) {
	order, err := s.load(ctx, query.OrderID)
	if err != nil {
		return OrderDetail{}, err
	}
	if !query.IsAdmin && order.UserID != strings.TrimSpace(query.RequesterID) {
		return OrderDetail{}, ErrOrderForbidden
	}
	return OrderDetail{Order: order, Timeline: buildOrderTimeline(order)}, nil
}

func (s *orderService) ListMyOrders(ctx context.Context, filter MyOrdersFilter) (OrderListResult, error) {
	userID := strings.TrimSpace(filter.UserID)
	if userID == "" {
		return OrderListResult{}, fmt.Errorf("%w: user id is required", ErrOrderInvalidInput)
	}
	sortBy, err := parseOrderSort(filter.Sort)
	if err != nil {
		return OrderListResult{}, err
	}
	listFilter := repositories.OrderListFilter{
		UserID:     userID,
		Sort:       sortBy,
		Pagination: filter.Pagination,
	}
	if raw := strings.TrimSpace(filter.Status); raw != "" && !strings.EqualFold(raw, "all") {
		status, ok := parseOrderStatus(raw)
		if !ok {
			return OrderListResult{}, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, raw)
		}
		listFilter.Status = []string{string(status)}
	}

	page, err := s.orders.List(ctx, listFilter)
	if err != nil {
		return OrderListResult{}, s.mapRepositoryError(err)
	}
	stats, err := s.orders.Stats(ctx, repositories.OrderListFilter{UserID: userID})
	if err != nil {
		return OrderListResult{}, s.mapRepositoryError(err)
	}
	return OrderListResult{Page: page, Stats: stats}, nil
}

func (s *orderService) ListOrders(ctx context.Context, filter AdminOrdersFilter) (domain.CursorPage[Order], error) {
	sortBy, err := parseOrderSort(filter.Sort)
	if err != nil {
		return domain.CursorPage[Order]{}, err
	}
	listFilter := repositories.OrderListFilter{
		UserID:      strings.TrimSpace(filter.UserID),
		IsPaid:      filter.IsPaid,
		IsDelivered: filter.IsDelivered,
		DateRange:   domain.RangeQuery[time.Time]{From: filter.From, To: filter.To},
		Sort:        sortBy,
		Pagination:  filter.Pagination,
	}
	for _, raw := range filter.Status {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		status, ok := parseOrderStatus(raw)
		if !ok {
			return domain.CursorPage[Order]{}, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, raw)
		}
		listFilter.Status = append(listFilter.Status, string(status))
	}

	page, err := s.orders.List(ctx, listFilter)
	if err != nil {
		return domain.CursorPage[Order]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

// UpdateOrderStatus is the admin transition path. It skips the customer cancellation policy.
func (s *orderService) UpdateOrderStatus(ctx context.Context, cmd UpdateOrderStatusCommand) (Order, error) {
	target, ok := parseOrderStatus(cmd.Status)
	if !ok {
		return Order{}, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, cmd.Status)
	}
	order, err := s.load(ctx, cmd.OrderID)
	if err != nil {
		return Order{}, err
	}
	notes := sanitizeFreeText(cmd.Notes, maxNoteLength)
	return s.transition(ctx, order, transitionInput{
		target: target,
		actor:  cmd.ActorID,
		notes:  notes,
		reason: notes,
	})
}

func (s *orderService) CancelOrder(ctx context.Context, cmd CancelOrderCommand) (Order, error) {
	order, err := s.load(ctx, cmd.OrderID)
	if err != nil {
		return Order{}, err
	}
	requester := strings.TrimSpace(cmd.RequesterID)
	if order.UserID != requester {
		return Order{}, ErrOrderForbidden
	}
	if order.IsPaid {
		return Order{}, fmt.Errorf("%w: paid orders cannot be cancelled", ErrOrderNotCancellable)
	}
	if order.Status != domain.OrderStatusPending && order.Status != domain.OrderStatusProcessing {
		return Order{}, fmt.Errorf("%w: order is %s", ErrOrderNotCancellable, order.Status)
	}

	reason := sanitizeFreeText(cmd.Reason, maxReasonLength)
	notes := "Cancelled by customer"
	if reason != "" {
		notes += ": " + reason
	}
	return s.transition(ctx, order, transitionInput{
		target: domain.OrderStatusCancelled,
		actor:  requester,
		notes:  notes,
		reason: reason,
	})
}

func (s *orderService) MarkOrderPaid(ctx context.Context, cmd MarkOrderPaidCommand) (Order, error) {
	order, err := s.load(ctx, cmd.OrderID)
	if err != nil {
		return Order{}, err
	}
	if order.IsPaid {
		return Order{}, ErrOrderAlreadyPaid
	}
	if order.Status == domain.OrderStatusCancelled {
		return Order{}, fmt.Errorf("%w: cancelled orders cannot be marked paid", ErrOrderInvalidTransition)
	}

	now := s.now()
	previous := order.Status
	expected := order.UpdatedAt
	order.IsPaid = true
	order.PaidAt = &now
	details := maps.Clone(order.PaymentDetails)
	if details == nil {
		details = make(map[string]any, len(cmd.PaymentDetails))
	}
	maps.Copy(details, cmd.PaymentDetails)
	order.PaymentDetails = details
	if order.Status == domain.OrderStatusPending {
		order.Status = domain.OrderStatusProcessing
		order.StatusHistory = append(order.StatusHistory, OrderStatusHistoryEntry{
			Status:    domain.OrderStatusProcessing,
			ChangedAt: now,
			ChangedBy: actorOrSystem(cmd.ActorID),
			Notes:     "Payment confirmed",
		})
	}
	order.UpdatedAt = now

	if err := s.orders.Update(ctx, order, expected); err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	s.logger(ctx, orderEventPaid, map[string]any{
		"orderId": order.ID,
		"actor":   actorOrSystem(cmd.ActorID),
	})
	if order.Status != previous {
		s.metrics.OrderTransitioned(string(order.Status))
		s.enqueue(ctx, NotificationJob{
			Type:           NotificationJobStatusChanged,
			OrderID:        order.ID,
			UserID:         order.UserID,
			PreviousStatus: string(previous),
			Status:         string(order.Status),
		})
	}
	return order, nil
}

func (s *orderService) MarkOrderDelivered(ctx context.Context, cmd MarkOrderDeliveredCommand) (Order, error) {
	order, err := s.load(ctx, cmd.OrderID)
	if err != nil {
		return Order{}, err
	}
	return s.transition(ctx, order, transitionInput{
		target: domain.OrderStatusDelivered,
		actor:  cmd.ActorID,
	})
}

type transitionInput struct {
	target OrderStatus
	actor  string
	notes  string
	reason string
}

func (s *orderService) transition(ctx context.Context, order Order, in transitionInput) (Order, error) {
	if in.target == domain.OrderStatusDelivered && order.IsDelivered {
		return Order{}, ErrOrderAlreadyDelivered
	}
	if err := checkOrderTransition(order.Status, in.target); err != nil {
		return Order{}, err
	}

	now := s.now()
	actor := actorOrSystem(in.actor)
	previous := order.Status
	expected := order.UpdatedAt
	notes := in.notes
	if notes == "" {
		notes = fmt.Sprintf("Status changed from %s to %s", previous, in.target)
	}

	order.Status = in.target
	order.StatusHistory = append(order.StatusHistory, OrderStatusHistoryEntry{
		Status:    in.target,
		ChangedAt: now,
		ChangedBy: actor,
		Notes:     notes,
	})
	switch in.target {
	case domain.OrderStatusDelivered:
		order.IsDelivered = true
		order.DeliveredAt = &now
	case domain.OrderStatusCancelled:
		order.CancelledAt = &now
		order.CancelledBy = actor
		order.CancellationReason = in.reason
	}
	order.UpdatedAt = now

	// A concurrent writer fails the precondition, so stock is restored at most once.
	if err := s.orders.Update(ctx, order, expected); err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	if in.target == domain.OrderStatusCancelled {
		s.restoreStock(ctx, order)
	}

	s.metrics.OrderTransitioned(string(in.target))
	s.logger(ctx, orderEventStatusChanged, map[string]any{
		"orderId":        order.ID,
		"previousStatus": string(previous),
		"status":         string(in.target),
		"actor":          actor,
	})
	s.enqueue(ctx, NotificationJob{
		Type:           NotificationJobStatusChanged,
		OrderID:        order.ID,
		UserID:         order.UserID,
		PreviousStatus: string(previous),
		Status:         string(in.target),
	})
	return order, nil
}

func (s *orderService) restoreStock(ctx context.Context, order Order) {
	for _, item := range order.Items {
		if _, err := s.inventory.RestoreStock(ctx, item.ProductID, item.Quantity); err != nil {
			s.metrics.StockAdjustmentFailed("restore")
			s.logger(ctx, "order.stock.restore_failed", map[string]any{
				"orderId":   order.ID,
				"productId": item.ProductID,
				"quantity":  item.Quantity,
				"error":     err.Error(),
			})
		}
	}
}

func (s *orderService) enqueue(ctx context.Context, job NotificationJob) {
	if s.notifications == nil {
		return
	}
	job.ID = s.newID()
	job.QueuedAt = s.now()
	if err := s.notifications.Enqueue(context.WithoutCancel(ctx), job); err != nil {
		s.logger(ctx, "notification.enqueue_failed", map[string]any{
			"type":    string(job.Type),
			"orderId": job.OrderID,
			"error":   err.Error(),
		})
	}
}

func (s *orderService) load(ctx context.Context, orderID string) (Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	return order, nil
}

func (s *orderService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrOrderConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("order: repository unavailable: %w", err)
		}
	}

	return err
}

func (s *orderService) now() time.Time {
	return s.clock()
}

// checkOrderTransition enforces forward-only progress. Cancellation is only reachable before dispatch.
func checkOrderTransition(from, to OrderStatus) error {
	if from == to {
		return fmt.Errorf("%w: order is already %s", ErrOrderInvalidTransition, from)
	}
	if from == domain.OrderStatusCancelled || from == domain.OrderStatusDelivered {
		return fmt.Errorf("%w: %s is final", ErrOrderInvalidTransition, from)
	}
	if to == domain.OrderStatusCancelled {
		if from == domain.OrderStatusPending || from == domain.OrderStatusProcessing {
			return nil
		}
		return fmt.Errorf("%w: cannot cancel an order that is %s", ErrOrderInvalidTransition, from)
	}
	fromRank, okFrom := orderStatusRank[from]
	toRank, okTo := orderStatusRank[to]
	if !okFrom || !okTo || toRank <= fromRank {
		return fmt.Errorf("%w: %s to %s", ErrOrderInvalidTransition, from, to)
	}
	return nil
}

func parseOrderStatus(raw string) (OrderStatus, bool) {
	normalised := strings.Join(strings.Fields(strings.ReplaceAll(raw, "_", " ")), " ")
	for _, status := range orderStatuses {
		if strings.EqualFold(normalised, string(status)) {
			return status, true
		}
	}
	return "", false
}

func parseOrderSort(raw string) (repositories.OrderSort, error) {
	switch sortBy := repositories.OrderSort(strings.ToLower(strings.TrimSpace(raw))); sortBy {
	case "":
		return repositories.OrderSortNewest, nil
	case repositories.OrderSortNewest, repositories.OrderSortOldest, repositories.OrderSortPriceAsc, repositories.OrderSortPriceDesc:
		return sortBy, nil
	default:
		return "", fmt.Errorf("%w: unknown sort %q", ErrOrderInvalidInput, raw)
	}
}

func orderNumberFromID(id string) string {
	return strings.ToUpper(lastN(id, orderNumberChars))
}

func lastN(value string, n int) string {
	if len(value) <= n {
		return value
	}
	return value[len(value)-n:]
}

func actorOrSystem(actor string) string {
	if trimmed := strings.TrimSpace(actor); trimmed != "" {
		return trimmed
	}
	return systemActor
}

func isRepositoryNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

func isRepositoryConflict(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsConflict()
}

func normaliseShippingAddress(addr ShippingAddress) ShippingAddress {
	return ShippingAddress{
		Address:         sanitizeFreeText(addr.Address, maxNoteLength),
		City:            sanitizeFreeText(addr.City, maxReasonLength),
		Region:          sanitizeFreeText(addr.Region, maxReasonLength),
		NearestLandmark: sanitizeFreeText(addr.NearestLandmark, maxReasonLength),
		Phone:           strings.TrimSpace(addr.Phone),
	}
}

func normaliseDeliverySchedule(schedule DeliverySchedule) DeliverySchedule {
	return DeliverySchedule{
		PreferredDay:  strings.TrimSpace(schedule.PreferredDay),
		PreferredTime: strings.TrimSpace(schedule.PreferredTime),
	}
}

func clonePackage(pkg *OrderPackage) *OrderPackage {
	if pkg == nil || strings.TrimSpace(pkg.ID) == "" {
		return nil
	}
	copied := *pkg
	copied.ID = strings.TrimSpace(copied.ID)
	copied.Name = sanitizeFreeText(copied.Name, maxReasonLength)
	return &copied
}

func paymentDetailsFromPayment(payment Payment) map[string]any {
	details := map[string]any{
		"paymentId": payment.ID,
		"reference": payment.TransactionRef,
		"provider":  payment.Provider,
		"amount":    payment.Amount,
		"currency":  payment.Currency,
	}
	if payment.PaymentMethod != "" {
		details["method"] = payment.PaymentMethod
	}
	if payment.PaymentChannel != "" {
		details["channel"] = payment.PaymentChannel
	}
	return details
}
