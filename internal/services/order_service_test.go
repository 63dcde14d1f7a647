package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	domain "github.com/Prince-Affedzie/Freshy-Food-Backend/internal/domain"
	"github.com/Prince-Affedzie/Freshy-Food-Backend/internal/repositories"
)

var orderTestNow = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

type orderFixture struct {
	svc       OrderService
	orders    *memOrders
	inventory *memInventory
	payments  *stubPaymentRepo
	customers *stubCustomerRepo
	queue     *recordingQueue
	logger    *recordingLogger
}

func testProducts() []domain.Product {
	return []domain.Product{
		{ID: "tomatoes", Name: "Tomatoes", Unit: "basket", Image: "tomatoes.jpg", Price: 1500, CountInStock: 10, IsAvailable: true},
		{ID: "yam", Name: "Yam", Price: 2000, CountInStock: 5, IsAvailable: true},
		{ID: "pepper", Name: "Pepper", Unit: "bag", Price: 800, CountInStock: 0, IsAvailable: false},
	}
}

func newOrderFixture(t *testing.T, seed ...domain.Order) *orderFixture {
	t.Helper()
	f := &orderFixture{
		orders:    newMemOrders(seed...),
		inventory: newMemInventory(testProducts()...),
		payments:  &stubPaymentRepo{},
		customers: &stubCustomerRepo{},
		queue:     &recordingQueue{},
		logger:    &recordingLogger{},
	}
	inventory, err := NewInventoryService(InventoryServiceDeps{Inventory: f.inventory})
	if err != nil {
		t.Fatalf("new inventory service: %v", err)
	}
	svc, err := NewOrderService(OrderServiceDeps{
		Orders:        f.orders.repo(),
		Payments:      f.payments,
		Products:      f.inventory,
		Customers:     f.customers,
		Inventory:     inventory,
		Notifications: f.queue,
		Clock:         fixedClock(orderTestNow),
		IDGenerator:   sequentialIDs("01JORD"),
		Logger:        f.logger.log,
	})
	if err != nil {
		t.Fatalf("new order service: %v", err)
	}
	f.svc = svc
	return f
}

// serviceWithOrders builds a service sharing the fixture's collaborators but using orders as the order store.
func (f *orderFixture) serviceWithOrders(t *testing.T, orders repositories.OrderRepository) OrderService {
	t.Helper()
	inventory, err := NewInventoryService(InventoryServiceDeps{Inventory: f.inventory})
	if err != nil {
		t.Fatalf("new inventory service: %v", err)
	}
	svc, err := NewOrderService(OrderServiceDeps{
		Orders:        orders,
		Payments:      f.payments,
		Products:      f.inventory,
		Customers:     f.customers,
		Inventory:     inventory,
		Notifications: f.queue,
		Clock:         fixedClock(orderTestNow),
		IDGenerator:   sequentialIDs("01JORD"),
		Logger:        f.logger.log,
	})
	if err != nil {
		t.Fatalf("new order service: %v", err)
	}
	return svc
}

func seededOrder(id string, status OrderStatus, paid bool) domain.Order {
	order := domain.Order{
		ID:            id,
		OrderNumber:   strings.ToUpper(id),
		UserID:        "user-1",
		Items:         []domain.OrderItem{{ProductID: "tomatoes", Name: "Tomatoes", Quantity: 2, Unit: "basket", Price: 1500}},
		PaymentMethod: "mobile_money",
		ItemsPrice:    3000,
		DeliveryFee:   700,
		TotalPrice:    3700,
		IsPaid:        paid,
		Status:        status,
		StatusHistory: []domain.OrderStatusHistoryEntry{{Status: status, ChangedAt: orderTestNow.Add(-time.Hour), ChangedBy: "user-1"}},
		CreatedAt:     orderTestNow.Add(-time.Hour),
		UpdatedAt:     orderTestNow.Add(-time.Hour),
	}
	if paid {
		paidAt := orderTestNow.Add(-time.Hour)
		order.PaidAt = &paidAt
	}
	return order
}

func validAddress() ShippingAddress {
	return ShippingAddress{Address: "12 Ring Road", City: "Accra", Phone: "0241234567"}
}

func TestOrderServiceCreateOrderWithVerifiedPayment(t *testing.T) {
	f := newOrderFixture(t)
	claims := newPaymentClaims()
	f.payments.findFn = func(_ context.Context, id string) (domain.Payment, error) {
		return domain.Payment{ID: id, UserID: "user-1", Status: domain.PaymentStatusPaid, Provider: "paystack", TransactionRef: "ref-1", Amount: 5500, GatewayAmount: 5500, Currency: "GHS"}, nil
	}
	f.payments.claimFn = claims.claim

	order, err := f.svc.CreateOrder(context.Background(), CreateOrderCommand{
		UserID: "user-1",
		Items: []CreateOrderItem{
			{ProductID: "tomatoes", Quantity: 2},
			{ProductID: "yam", Quantity: 1, Unit: "tuber"},
		},
		ShippingAddress:  validAddress(),
		DeliverySchedule: DeliverySchedule{PreferredDay: "Saturday", PreferredTime: "morning"},
		DeliveryNote:     "<b>Call</b> on arrival",
		PaymentMethod:    "mobile_money",
		PaymentID:        "pay-1",
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	if order.Status != domain.OrderStatusProcessing || !order.IsPaid || order.PaidAt == nil {
		t.Fatalf("expected paid processing order, got status=%s paid=%v", order.Status, order.IsPaid)
	}
	if order.ItemsPrice != 5000 || order.DeliveryFee != 500 || order.TotalPrice != 5500 {
		t.Fatalf("unexpected pricing items=%d fee=%d total=%d", order.ItemsPrice, order.DeliveryFee, order.TotalPrice)
	}
	var sum int64
	for _, item := range order.Items {
		sum += item.LineTotal()
	}
	if sum != order.ItemsPrice || order.TotalPrice != order.ItemsPrice+order.DeliveryFee {
		t.Fatalf("pricing invariants violated: sum=%d %+v", sum, order)
	}
	if order.Items[0].Unit != "basket" || order.Items[0].Image != "tomatoes.jpg" || order.Items[1].Unit != "tuber" {
		t.Fatalf("unexpected item snapshot %+v", order.Items)
	}
	if order.DeliveryNote != "Call on arrival" {
		t.Fatalf("expected sanitised delivery note, got %q", order.DeliveryNote)
	}
	if order.OrderNumber != strings.ToUpper(order.ID[len(order.ID)-8:]) {
		t.Fatalf("unexpected order number %q for id %q", order.OrderNumber, order.ID)
	}
	if order.PaymentID != "pay-1" || order.PaymentDetails["reference"] != "ref-1" {
		t.Fatalf("expected payment details recorded, got %+v", order.PaymentDetails)
	}
	if len(order.StatusHistory) != 1 || order.StatusHistory[0].Status != domain.OrderStatusProcessing {
		t.Fatalf("unexpected history %+v", order.StatusHistory)
	}

	if got := f.inventory.stock("tomatoes"); got != 8 {
		t.Fatalf("expected tomatoes stock 8, got %d", got)
	}
	if got := f.inventory.stock("yam"); got != 4 {
		t.Fatalf("expected yam stock 4, got %d", got)
	}
	if got := claims.orderFor("pay-1"); got != order.ID {
		t.Fatalf("expected payment claimed by order %s, got %q", order.ID, got)
	}
	if len(f.customers.cleared) != 1 || f.customers.cleared[0] != "user-1/"+order.ID {
		t.Fatalf("expected cart cleared and order appended, got %v", f.customers.cleared)
	}
	if f.queue.count(NotificationJobOrderPlaced) != 1 || f.queue.count(NotificationJobAdminNewOrder) != 1 {
		t.Fatalf("expected customer and admin notifications, got %+v", f.queue.jobs)
	}
	if stored := f.orders.get(order.ID); stored.TotalPrice != 5500 {
		t.Fatalf("expected persisted order, got %+v", stored)
	}
}

func TestOrderServiceCreateOrderOutOfStockListsEveryUnavailableItem(t *testing.T) {
	f := newOrderFixture(t)

	_, err := f.svc.CreateOrder(context.Background(), CreateOrderCommand{
		UserID:          "user-1",
		Items:           []CreateOrderItem{{ProductID: "tomatoes", Quantity: 1}, {ProductID: "pepper", Quantity: 3}},
		ShippingAddress: validAddress(),
		PaymentMethod:   domain.PaymentMethodCashOnDelivery,
	})
	if !errors.Is(err, ErrOrderOutOfStock) {
		t.Fatalf("expected out of stock, got %v", err)
	}
	var oos *OutOfStockError
	if !errors.As(err, &oos) || len(oos.Items) != 1 || oos.Items[0].ProductID != "pepper" || oos.Items[0].Requested != 3 {
		t.Fatalf("expected exactly pepper listed, got %+v", oos)
	}
	if f.orders.inserts != 0 {
		t.Fatalf("expected no order persisted")
	}
	if f.inventory.stock("tomatoes") != 10 || f.inventory.stock("pepper") != 0 {
		t.Fatalf("expected stock untouched")
	}
}

func TestOrderServiceCreateOrderValidation(t *testing.T) {
	f := newOrderFixture(t)
	base := CreateOrderCommand{
		UserID:          "user-1",
		Items:           []CreateOrderItem{{ProductID: "tomatoes", Quantity: 1}},
		ShippingAddress: validAddress(),
		PaymentMethod:   domain.PaymentMethodCashOnDelivery,
	}

	cases := []struct {
		name   string
		mutate func(*CreateOrderCommand)
	}{
		{name: "no items", mutate: func(c *CreateOrderCommand) { c.Items = nil }},
		{name: "missing phone", mutate: func(c *CreateOrderCommand) { c.ShippingAddress.Phone = " " }},
		{name: "missing city", mutate: func(c *CreateOrderCommand) { c.ShippingAddress.City = "" }},
		{name: "zero quantity", mutate: func(c *CreateOrderCommand) { c.Items = []CreateOrderItem{{ProductID: "tomatoes"}} }},
		{name: "unknown product", mutate: func(c *CreateOrderCommand) { c.Items = []CreateOrderItem{{ProductID: "mango", Quantity: 1}} }},
		{name: "online payment without payment id", mutate: func(c *CreateOrderCommand) { c.PaymentMethod = "card" }},
		{name: "missing payment method", mutate: func(c *CreateOrderCommand) { c.PaymentMethod = "" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cmd := base
			tc.mutate(&cmd)
			if _, err := f.svc.CreateOrder(context.Background(), cmd); !errors.Is(err, ErrOrderInvalidInput) {
				t.Fatalf("expected invalid input, got %v", err)
			}
		})
	}
	if f.orders.inserts != 0 || f.inventory.stock("tomatoes") != 10 {
		t.Fatalf("validation failures must not mutate state")
	}
}

func TestOrderServiceCreateOrderRejectsForeignOrUnpaidPayment(t *testing.T) {
	cases := []struct {
		name    string
		payment domain.Payment
		want    error
	}{
		{name: "other user", payment: domain.Payment{ID: "pay-1", UserID: "user-2", Status: domain.PaymentStatusPaid}, want: ErrOrderInvalidInput},
		{name: "not paid", payment: domain.Payment{ID: "pay-1", UserID: "user-1", Status: domain.PaymentStatusFailed}, want: ErrOrderInvalidInput},
		{name: "already linked", payment: domain.Payment{ID: "pay-1", UserID: "user-1", Status: domain.PaymentStatusPaid, OrderID: "other"}, want: ErrOrderConflict},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newOrderFixture(t)
			f.payments.findFn = func(context.Context, string) (domain.Payment, error) { return tc.payment, nil }
			_, err := f.svc.CreateOrder(context.Background(), CreateOrderCommand{
				UserID:          "user-1",
				Items:           []CreateOrderItem{{ProductID: "tomatoes", Quantity: 1}},
				ShippingAddress: validAddress(),
				PaymentMethod:   "mobile_money",
				PaymentID:       "pay-1",
			})
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if f.orders.inserts != 0 {
				t.Fatalf("expected no order persisted")
			}
		})
	}
}

func TestOrderServiceCreateOrderRequiresPaymentToCoverTotal(t *testing.T) {
	// 5 baskets of tomatoes in Accra: 7500 items + 500 delivery.
	cases := []struct {
		name    string
		payment domain.Payment
	}{
		{name: "one pesewa", payment: domain.Payment{Amount: 1, GatewayAmount: 1, Currency: "GHS"}},
		{name: "short by one", payment: domain.Payment{Amount: 7999, GatewayAmount: 7999, Currency: "GHS"}},
		{name: "claimed amount ignored when gateway settled less", payment: domain.Payment{Amount: 8000, GatewayAmount: 100, Currency: "GHS"}},
		{name: "other currency", payment: domain.Payment{Amount: 8000, GatewayAmount: 8000, Currency: "USD"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newOrderFixture(t)
			claimed := false
			f.payments.claimFn = func(context.Context, string, string) error {
				claimed = true
				return nil
			}
			f.payments.findFn = func(_ context.Context, id string) (domain.Payment, error) {
				payment := tc.payment
				payment.ID = id
				payment.UserID = "user-1"
				payment.Status = domain.PaymentStatusPaid
				return payment, nil
			}
			_, err := f.svc.CreateOrder(context.Background(), CreateOrderCommand{
				UserID:          "user-1",
				Items:           []CreateOrderItem{{ProductID: "tomatoes", Quantity: 5}},
				ShippingAddress: validAddress(),
				PaymentMethod:   "mobile_money",
				PaymentID:       "ref-1",
			})
			if !errors.Is(err, ErrOrderInvalidInput) {
				t.Fatalf("expected invalid input, got %v", err)
			}
			if f.orders.inserts != 0 || claimed {
				t.Fatalf("expected no order persisted and no claim, inserts=%d claimed=%v", f.orders.inserts, claimed)
			}
			if f.inventory.stock("tomatoes") != 10 {
				t.Fatalf("expected stock untouched")
			}
		})
	}
}

func TestOrderServiceCreateOrderPaymentSettlesOnlyOneOrder(t *testing.T) {
	f := newOrderFixture(t)
	claims := newPaymentClaims()
	f.payments.claimFn = claims.claim

	// Both checkouts read the payment before either claims it.
	arrived := make(chan struct{}, 2)
	release := make(chan struct{})
	f.payments.findFn = func(_ context.Context, id string) (domain.Payment, error) {
		arrived <- struct{}{}
		<-release
		return domain.Payment{ID: id, UserID: "user-1", Status: domain.PaymentStatusPaid, Amount: 3900, GatewayAmount: 3900, Currency: "GHS"}, nil
	}

	cmd := CreateOrderCommand{
		UserID:          "user-1",
		Items:           []CreateOrderItem{{ProductID: "tomatoes", Quantity: 2}},
		ShippingAddress: ShippingAddress{Address: "1 High Street", City: "Kumasi", Phone: "0241234567"},
		PaymentMethod:   "mobile_money",
		PaymentID:       "ref-1",
	}
	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := f.svc.CreateOrder(context.Background(), cmd)
			errs <- err
		}()
	}
	<-arrived
	<-arrived
	close(release)

	var succeeded, conflicts int
	for i := 0; i < 2; i++ {
		switch err := <-errs; {
		case err == nil:
			succeeded++
		case errors.Is(err, ErrOrderConflict):
			conflicts++
		default:
			t.Fatalf("unexpected error %v", err)
		}
	}
	if succeeded != 1 || conflicts != 1 {
		t.Fatalf("expected one order and one conflict, got %d and %d", succeeded, conflicts)
	}
	if f.orders.inserts != 1 {
		t.Fatalf("expected exactly one paid order persisted, got %d", f.orders.inserts)
	}
	if f.inventory.stock("tomatoes") != 8 {
		t.Fatalf("expected stock decremented once, got %d", f.inventory.stock("tomatoes"))
	}
}

func TestOrderServiceCreateOrderReleasesClaimWhenInsertFails(t *testing.T) {
	f := newOrderFixture(t)
	claims := newPaymentClaims()
	f.payments.claimFn = claims.claim
	f.payments.releaseFn = claims.release
	f.payments.findFn = func(_ context.Context, id string) (domain.Payment, error) {
		return domain.Payment{ID: id, UserID: "user-1", Status: domain.PaymentStatusPaid, Amount: 3900, GatewayAmount: 3900}, nil
	}
	failing := f.orders.repo()
	failing.insertFn = func(context.Context, domain.Order) error { return stubRepoError{unavailable: true} }
	svc := f.serviceWithOrders(t, failing)

	_, err := svc.CreateOrder(context.Background(), CreateOrderCommand{
		UserID:          "user-1",
		Items:           []CreateOrderItem{{ProductID: "tomatoes", Quantity: 2}},
		ShippingAddress: ShippingAddress{Address: "1 High Street", City: "Kumasi", Phone: "0241234567"},
		PaymentMethod:   "mobile_money",
		PaymentID:       "ref-1",
	})
	if err == nil {
		t.Fatalf("expected insert failure to surface")
	}
	if got := claims.orderFor("ref-1"); got != "" {
		t.Fatalf("expected claim released, still linked to %q", got)
	}
	if f.inventory.stock("tomatoes") != 10 {
		t.Fatalf("expected stock untouched")
	}
}

func TestOrderServiceCreateOrderCashOnDelivery(t *testing.T) {
	f := newOrderFixture(t)

	order, err := f.svc.CreateOrder(context.Background(), CreateOrderCommand{
		UserID:          "user-1",
		Items:           []CreateOrderItem{{ProductID: "tomatoes", Quantity: 1}},
		ShippingAddress: ShippingAddress{Address: "4 Lake Road", City: "unknown-town", Phone: "0200000000"},
		PaymentMethod:   "Cash_On_Delivery",
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if order.Status != domain.OrderStatusPending || order.IsPaid || order.PaidAt != nil || order.PaymentID != "" {
		t.Fatalf("expected unpaid pending order, got %+v", order)
	}
	if order.ItemsPrice != 1500 || order.DeliveryFee != 1200 || order.TotalPrice != 2700 {
		t.Fatalf("unexpected pricing %+v", order)
	}
}

func TestOrderServiceCreateOrderSucceedsWhenStockDecrementFails(t *testing.T) {
	f := newOrderFixture(t)
	emptyInventory, err := NewInventoryService(InventoryServiceDeps{Inventory: newMemInventory()})
	if err != nil {
		t.Fatalf("new inventory service: %v", err)
	}
	svc, err := NewOrderService(OrderServiceDeps{
		Orders:    f.orders.repo(),
		Products:  f.inventory,
		Inventory: emptyInventory,
		Clock:     fixedClock(orderTestNow),
		Logger:    f.logger.log,
	})
	if err != nil {
		t.Fatalf("new order service: %v", err)
	}

	order, err := svc.CreateOrder(context.Background(), CreateOrderCommand{
		UserID:          "user-1",
		Items:           []CreateOrderItem{{ProductID: "yam", Quantity: 1}},
		ShippingAddress: validAddress(),
		PaymentMethod:   domain.PaymentMethodCashOnDelivery,
	})
	if err != nil {
		t.Fatalf("expected order to succeed despite stock failure, got %v", err)
	}
	if f.orders.get(order.ID).ID == "" {
		t.Fatalf("expected order persisted")
	}
	if !f.logger.has("order.stock.decrement_failed") {
		t.Fatalf("expected decrement failure to be logged, got %v", f.logger.events)
	}
}

func TestOrderServiceCancelPendingOrderRestoresStock(t *testing.T) {
	f := newOrderFixture(t)
	ctx := context.Background()

	order, err := f.svc.CreateOrder(ctx, CreateOrderCommand{
		UserID:          "user-1",
		Items:           []CreateOrderItem{{ProductID: "tomatoes", Quantity: 3}, {ProductID: "yam", Quantity: 2}},
		ShippingAddress: validAddress(),
		PaymentMethod:   domain.PaymentMethodCashOnDelivery,
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if f.inventory.stock("tomatoes") != 7 || f.inventory.stock("yam") != 3 {
		t.Fatalf("expected stock decremented after checkout")
	}

	cancelled, err := f.svc.CancelOrder(ctx, CancelOrderCommand{OrderID: order.ID, RequesterID: "user-1", Reason: "changed my mind"})
	if err != nil {
		t.Fatalf("cancel order: %v", err)
	}
	if cancelled.Status != domain.OrderStatusCancelled || cancelled.CancelledAt == nil || cancelled.CancelledBy != "user-1" {
		t.Fatalf("unexpected cancelled order %+v", cancelled)
	}
	last := cancelled.StatusHistory[len(cancelled.StatusHistory)-1]
	if last.Notes != "Cancelled by customer: changed my mind" || last.ChangedBy != "user-1" {
		t.Fatalf("unexpected history entry %+v", last)
	}
	if f.inventory.stock("tomatoes") != 10 || f.inventory.stock("yam") != 5 {
		t.Fatalf("expected stock restored, got tomatoes=%d yam=%d", f.inventory.stock("tomatoes"), f.inventory.stock("yam"))
	}
	if f.queue.count(NotificationJobStatusChanged) != 1 {
		t.Fatalf("expected one status notification")
	}
}

func TestOrderServiceConcurrentCancelRestoresStockOnce(t *testing.T) {
	f := newOrderFixture(t, seededOrder("ord-1", domain.OrderStatusPending, false))

	// Both cancellations load the pending order before either writes.
	arrived := make(chan struct{}, 2)
	release := make(chan struct{})
	repo := f.orders.repo()
	find := repo.findFn
	repo.findFn = func(ctx context.Context, id string) (domain.Order, error) {
		order, err := find(ctx, id)
		arrived <- struct{}{}
		<-release
		return order, err
	}
	svc := f.serviceWithOrders(t, repo)

	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := svc.CancelOrder(context.Background(), CancelOrderCommand{OrderID: "ord-1", RequesterID: "user-1"})
			errs <- err
		}()
	}
	<-arrived
	<-arrived
	close(release)

	var succeeded, conflicts int
	for i := 0; i < 2; i++ {
		switch err := <-errs; {
		case err == nil:
			succeeded++
		case errors.Is(err, ErrOrderConflict):
			conflicts++
		default:
			t.Fatalf("unexpected error %v", err)
		}
	}
	if succeeded != 1 || conflicts != 1 {
		t.Fatalf("expected one cancellation and one conflict, got %d and %d", succeeded, conflicts)
	}
	if got := f.inventory.stock("tomatoes"); got != 12 {
		t.Fatalf("expected 2 units restored once, got stock %d", got)
	}
	if stored := f.orders.get("ord-1"); len(stored.StatusHistory) != 2 || stored.Status != domain.OrderStatusCancelled {
		t.Fatalf("expected one appended history entry, got %+v", stored.StatusHistory)
	}
}

func TestOrderServiceCancelOrderPolicy(t *testing.T) {
	f := newOrderFixture(t,
		seededOrder("paid-processing", domain.OrderStatusProcessing, true),
		seededOrder("unpaid-out", domain.OrderStatusOutForDelivery, false),
	)
	ctx := context.Background()

	if _, err := f.svc.CancelOrder(ctx, CancelOrderCommand{OrderID: "paid-processing", RequesterID: "user-1"}); !errors.Is(err, ErrOrderNotCancellable) {
		t.Fatalf("expected paid order to be not cancellable, got %v", err)
	}
	if _, err := f.svc.CancelOrder(ctx, CancelOrderCommand{OrderID: "unpaid-out", RequesterID: "user-1"}); !errors.Is(err, ErrOrderNotCancellable) {
		t.Fatalf("expected dispatched order to be not cancellable, got %v", err)
	}
	if _, err := f.svc.CancelOrder(ctx, CancelOrderCommand{OrderID: "paid-processing", RequesterID: "intruder"}); !errors.Is(err, ErrOrderForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if _, err := f.svc.CancelOrder(ctx, CancelOrderCommand{OrderID: "missing", RequesterID: "user-1"}); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if f.orders.updates != 0 {
		t.Fatalf("expected orders unchanged")
	}
	if got := f.orders.get("paid-processing"); got.Status != domain.OrderStatusProcessing || len(got.StatusHistory) != 1 {
		t.Fatalf("expected paid order unchanged, got %+v", got)
	}
}

func TestOrderServiceMarkOrderPaidIsGuarded(t *testing.T) {
	f := newOrderFixture(t, seededOrder("pending", domain.OrderStatusPending, false))
	ctx := context.Background()

	paid, err := f.svc.MarkOrderPaid(ctx, MarkOrderPaidCommand{OrderID: "pending", PaymentDetails: map[string]any{"reference": "ref-9"}})
	if err != nil {
		t.Fatalf("mark paid: %v", err)
	}
	if !paid.IsPaid || paid.PaidAt == nil || paid.Status != domain.OrderStatusProcessing {
		t.Fatalf("unexpected paid order %+v", paid)
	}
	last := paid.StatusHistory[len(paid.StatusHistory)-1]
	if last.ChangedBy != "system" || last.Status != domain.OrderStatusProcessing {
		t.Fatalf("unexpected history entry %+v", last)
	}
	if paid.PaymentDetails["reference"] != "ref-9" {
		t.Fatalf("expected payment details stored, got %+v", paid.PaymentDetails)
	}

	if _, err := f.svc.MarkOrderPaid(ctx, MarkOrderPaidCommand{OrderID: "pending"}); !errors.Is(err, ErrOrderAlreadyPaid) {
		t.Fatalf("expected already paid, got %v", err)
	}
	stored := f.orders.get("pending")
	if !stored.PaidAt.Equal(*paid.PaidAt) || len(stored.StatusHistory) != 2 {
		t.Fatalf("second call must not change the order, got %+v", stored)
	}
	if f.queue.count(NotificationJobStatusChanged) != 1 {
		t.Fatalf("expected exactly one notification, got %d", f.queue.count(NotificationJobStatusChanged))
	}
}

func TestOrderServiceUpdateOrderStatusTransitions(t *testing.T) {
	cases := []struct {
		name    string
		from    OrderStatus
		paid    bool
		target  string
		wantErr error
	}{
		{name: "forward step", from: domain.OrderStatusProcessing, target: "Out for Delivery"},
		{name: "skip forward", from: domain.OrderStatusPending, target: "out_for_delivery"},
		{name: "backwards", from: domain.OrderStatusOutForDelivery, target: "Processing", wantErr: ErrOrderInvalidTransition},
		{name: "same status", from: domain.OrderStatusProcessing, target: "processing", wantErr: ErrOrderInvalidTransition},
		{name: "cancel after dispatch", from: domain.OrderStatusOutForDelivery, target: "Cancelled", wantErr: ErrOrderInvalidTransition},
		{name: "leave delivered", from: domain.OrderStatusDelivered, target: "Cancelled", wantErr: ErrOrderInvalidTransition},
		{name: "leave cancelled", from: domain.OrderStatusCancelled, target: "Processing", wantErr: ErrOrderInvalidTransition},
		{name: "admin cancels paid order", from: domain.OrderStatusProcessing, paid: true, target: "Cancelled"},
		{name: "unknown status", from: domain.OrderStatusPending, target: "Lost", wantErr: ErrOrderInvalidInput},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newOrderFixture(t, seededOrder("ord-1", tc.from, tc.paid))
			updated, err := f.svc.UpdateOrderStatus(context.Background(), UpdateOrderStatusCommand{
				OrderID: "ord-1",
				Status:  tc.target,
				ActorID: "admin-1",
			})
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("expected %v, got %v", tc.wantErr, err)
				}
				if f.orders.updates != 0 {
					t.Fatalf("rejected transition must not persist")
				}
				return
			}
			if err != nil {
				t.Fatalf("update status: %v", err)
			}
			last := updated.StatusHistory[len(updated.StatusHistory)-1]
			want := "Status changed from " + string(tc.from) + " to " + string(updated.Status)
			if last.Notes != want || last.ChangedBy != "admin-1" || !last.ChangedAt.Equal(orderTestNow) {
				t.Fatalf("unexpected history entry %+v", last)
			}
			if len(updated.StatusHistory) != 2 {
				t.Fatalf("expected exactly one appended entry, got %d", len(updated.StatusHistory))
			}
		})
	}
}

func TestOrderServiceAdminCancellationRestoresStock(t *testing.T) {
	f := newOrderFixture(t, seededOrder("ord-1", domain.OrderStatusProcessing, true))

	updated, err := f.svc.UpdateOrderStatus(context.Background(), UpdateOrderStatusCommand{
		OrderID: "ord-1",
		Status:  "Cancelled",
		ActorID: "admin-1",
		Notes:   "Customer unreachable",
	})
	if err != nil {
		t.Fatalf("update status: %v", err)
	}
	if updated.CancellationReason != "Customer unreachable" || updated.CancelledBy != "admin-1" {
		t.Fatalf("unexpected cancellation fields %+v", updated)
	}
	if f.inventory.stock("tomatoes") != 12 {
		t.Fatalf("expected 2 units restored, got %d", f.inventory.stock("tomatoes"))
	}
}

func TestOrderServiceMarkOrderDelivered(t *testing.T) {
	f := newOrderFixture(t,
		seededOrder("out", domain.OrderStatusOutForDelivery, true),
		seededOrder("cancelled", domain.OrderStatusCancelled, false),
	)
	ctx := context.Background()

	delivered, err := f.svc.MarkOrderDelivered(ctx, MarkOrderDeliveredCommand{OrderID: "out"})
	if err != nil {
		t.Fatalf("mark delivered: %v", err)
	}
	if !delivered.IsDelivered || delivered.DeliveredAt == nil || delivered.Status != domain.OrderStatusDelivered {
		t.Fatalf("unexpected delivered order %+v", delivered)
	}
	if last := delivered.StatusHistory[len(delivered.StatusHistory)-1]; last.ChangedBy != "system" {
		t.Fatalf("expected system actor, got %+v", last)
	}

	if _, err := f.svc.MarkOrderDelivered(ctx, MarkOrderDeliveredCommand{OrderID: "out"}); !errors.Is(err, ErrOrderAlreadyDelivered) {
		t.Fatalf("expected already delivered, got %v", err)
	}
	if _, err := f.svc.MarkOrderDelivered(ctx, MarkOrderDeliveredCommand{OrderID: "cancelled"}); !errors.Is(err, ErrOrderInvalidTransition) {
		t.Fatalf("expected invalid transition for cancelled order, got %v", err)
	}
}

func TestOrderServiceGetOrderChecksOwnershipAndBuildsTimeline(t *testing.T) {
	order := seededOrder("ord-1", domain.OrderStatusCancelled, false)
	processingAt := orderTestNow.Add(-30 * time.Minute)
	cancelledAt := orderTestNow.Add(-10 * time.Minute)
	order.StatusHistory = []domain.OrderStatusHistoryEntry{
		{Status: domain.OrderStatusPending, ChangedAt: order.CreatedAt, ChangedBy: "user-1"},
		{Status: domain.OrderStatusProcessing, ChangedAt: processingAt, ChangedBy: "admin-1"},
		{Status: domain.OrderStatusCancelled, ChangedAt: cancelledAt, ChangedBy: "user-1"},
	}
	order.CancelledAt = &cancelledAt
	order.CancellationReason = "too late"
	f := newOrderFixture(t, order)
	ctx := context.Background()

	if _, err := f.svc.GetOrder(ctx, GetOrderQuery{OrderID: "ord-1", RequesterID: "user-2"}); !errors.Is(err, ErrOrderForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if _, err := f.svc.GetOrder(ctx, GetOrderQuery{OrderID: "ord-1", RequesterID: "admin-9", IsAdmin: true}); err != nil {
		t.Fatalf("admin read: %v", err)
	}

	detail, err := f.svc.GetOrder(ctx, GetOrderQuery{OrderID: "ord-1", RequesterID: "user-1"})
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	labels := make([]string, 0, len(detail.Timeline))
	for _, step := range detail.Timeline {
		labels = append(labels, step.Label)
	}
	if strings.Join(labels, ",") != "Order Placed,Payment,Processing,Out for Delivery,Delivered,Cancelled" {
		t.Fatalf("unexpected timeline labels %v", labels)
	}
	processing := detail.Timeline[2]
	if !processing.Completed || processing.At == nil || !processing.At.Equal(processingAt) {
		t.Fatalf("expected processing reached from history, got %+v", processing)
	}
	if detail.Timeline[3].Completed || detail.Timeline[4].Completed {
		t.Fatalf("expected later steps incomplete")
	}
	if payment := detail.Timeline[1]; payment.Completed || payment.Description != "Awaiting payment" {
		t.Fatalf("unexpected payment step %+v", payment)
	}
	if cancelled := detail.Timeline[5]; cancelled.Description != "Order cancelled: too late" || !cancelled.At.Equal(cancelledAt) {
		t.Fatalf("unexpected cancelled step %+v", cancelled)
	}
}

func TestOrderServiceListMyOrders(t *testing.T) {
	var captured repositories.OrderListFilter
	var statsFilter repositories.OrderListFilter
	repo := &stubOrderRepo{
		listFn: func(_ context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
			captured = filter
			return domain.CursorPage[domain.Order]{Items: []domain.Order{{ID: "ord-1"}}, NextPageToken: "next"}, nil
		},
		statsFn: func(_ context.Context, filter repositories.OrderListFilter) (domain.OrderStats, error) {
			statsFilter = filter
			return domain.OrderStats{Total: 4, ByStatus: map[domain.OrderStatus]int{domain.OrderStatusDelivered: 3}}, nil
		},
	}
	svc, err := NewOrderService(OrderServiceDeps{Orders: repo, Products: &stubProductRepo{}, Inventory: stubInventoryService{}})
	if err != nil {
		t.Fatalf("new order service: %v", err)
	}

	result, err := svc.ListMyOrders(context.Background(), MyOrdersFilter{
		UserID:     "user-1",
		Status:     "delivered",
		Sort:       "price-desc",
		Pagination: Pagination{PageSize: 5},
	})
	if err != nil {
		t.Fatalf("list my orders: %v", err)
	}
	if captured.UserID != "user-1" || len(captured.Status) != 1 || captured.Status[0] != "Delivered" || captured.Sort != repositories.OrderSortPriceDesc {
		t.Fatalf("unexpected list filter %+v", captured)
	}
	if statsFilter.UserID != "user-1" || len(statsFilter.Status) != 0 {
		t.Fatalf("expected stats across all of the user's orders, got %+v", statsFilter)
	}
	if result.Page.NextPageToken != "next" || result.Stats.Total != 4 {
		t.Fatalf("unexpected result %+v", result)
	}

	if _, err := svc.ListMyOrders(context.Background(), MyOrdersFilter{UserID: "user-1", Sort: "cheapest"}); !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected invalid sort error, got %v", err)
	}
}

type stubInventoryService struct{}

func (stubInventoryService) DecrementStock(context.Context, string, int) (Product, error) {
	return Product{}, nil
}

func (stubInventoryService) RestoreStock(context.Context, string, int) (Product, error) {
	return Product{}, nil
}
