package services

import (
	"context"
	"errors"
	"sync"
	"time"

	domain "github.com/Prince-Affedzie/Freshy-Food-Backend/internal/domain"
	"github.com/Prince-Affedzie/Freshy-Food-Backend/internal/payments"
	"github.com/Prince-Affedzie/Freshy-Food-Backend/internal/repositories"
)

type stubRepoError struct {
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e stubRepoError) Error() string       { return "repository error" }
func (e stubRepoError) IsNotFound() bool    { return e.notFound }
func (e stubRepoError) IsConflict() bool    { return e.conflict }
func (e stubRepoError) IsUnavailable() bool { return e.unavailable }

var errRepoNotFound = stubRepoError{notFound: true}

type stubOrderRepo struct {
	insertFn func(context.Context, domain.Order) error
	updateFn func(context.Context, domain.Order, time.Time) error
	findFn   func(context.Context, string) (domain.Order, error)
	listFn   func(context.Context, repositories.OrderListFilter) (domain.CursorPage[domain.Order], error)
	statsFn  func(context.Context, repositories.OrderListFilter) (domain.OrderStats, error)
}

func (s *stubOrderRepo) Insert(ctx context.Context, order domain.Order) error {
	if s.insertFn != nil {
		return s.insertFn(ctx, order)
	}
	return nil
}

func (s *stubOrderRepo) Update(ctx context.Context, order domain.Order, expectedUpdatedAt time.Time) error {
	if s.updateFn != nil {
		return s.updateFn(ctx, order, expectedUpdatedAt)
	}
	return nil
}

func (s *stubOrderRepo) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if s.findFn != nil {
		return s.findFn(ctx, orderID)
	}
	return domain.Order{}, errRepoNotFound
}

func (s *stubOrderRepo) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if s.listFn != nil {
		return s.listFn(ctx, filter)
	}
	return domain.CursorPage[domain.Order]{}, nil
}

func (s *stubOrderRepo) Stats(ctx context.Context, filter repositories.OrderListFilter) (domain.OrderStats, error) {
	if s.statsFn != nil {
		return s.statsFn(ctx, filter)
	}
	return domain.OrderStats{}, nil
}

// memOrders keeps orders in a map so transitions can be chained across calls.
// Updates carry the same updatedAt precondition as the Firestore repository.
type memOrders struct {
	mu        sync.Mutex
	orders    map[string]domain.Order
	inserts   int
	updates   int
	conflicts int
}

func newMemOrders(seed ...domain.Order) *memOrders {
	m := &memOrders{orders: make(map[string]domain.Order)}
	for _, order := range seed {
		m.orders[order.ID] = order
	}
	return m
}

func (m *memOrders) repo() *stubOrderRepo {
	return &stubOrderRepo{
		insertFn: func(_ context.Context, order domain.Order) error {
			m.mu.Lock()
			defer m.mu.Unlock()
			if _, ok := m.orders[order.ID]; ok {
				return stubRepoError{conflict: true}
			}
			m.inserts++
			m.orders[order.ID] = order
			return nil
		},
		updateFn: func(_ context.Context, order domain.Order, expected time.Time) error {
			m.mu.Lock()
			defer m.mu.Unlock()
			stored, ok := m.orders[order.ID]
			if !ok {
				return errRepoNotFound
			}
			if !stored.UpdatedAt.Equal(expected) {
				m.conflicts++
				return stubRepoError{conflict: true}
			}
			m.updates++
			m.orders[order.ID] = order
			return nil
		},
		findFn: func(_ context.Context, id string) (domain.Order, error) {
			m.mu.Lock()
			defer m.mu.Unlock()
			order, ok := m.orders[id]
			if !ok {
				return domain.Order{}, errRepoNotFound
			}
			return order, nil
		},
	}
}

func (m *memOrders) get(id string) domain.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.orders[id]
}

type stubProductRepo struct {
	products map[string]domain.Product
	err      error
}

func (s *stubProductRepo) FindByID(_ context.Context, productID string) (domain.Product, error) {
	if s.err != nil {
		return domain.Product{}, s.err
	}
	product, ok := s.products[productID]
	if !ok {
		return domain.Product{}, errRepoNotFound
	}
	return product, nil
}

// memInventory applies decrement-if-sufficient under a mutex, mirroring the storage transaction.
type memInventory struct {
	mu       sync.Mutex
	products map[string]domain.Product
}

func newMemInventory(products ...domain.Product) *memInventory {
	inv := &memInventory{products: make(map[string]domain.Product)}
	for _, p := range products {
		inv.products[p.ID] = p
	}
	return inv
}

func (m *memInventory) Decrement(_ context.Context, productID string, quantity int) (domain.Product, error) {
	return m.adjust(productID, -quantity)
}

func (m *memInventory) Restore(_ context.Context, productID string, quantity int) (domain.Product, error) {
	return m.adjust(productID, quantity)
}

func (m *memInventory) adjust(productID string, delta int) (domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	product, ok := m.products[productID]
	if !ok {
		return domain.Product{}, repositories.NewInventoryError(repositories.InventoryErrorProductNotFound, productID, "", nil)
	}
	next := product.CountInStock + delta
	if next < 0 {
		return domain.Product{}, repositories.NewInventoryError(repositories.InventoryErrorInsufficientStock, productID, "", nil)
	}
	product.CountInStock = next
	switch {
	case next == 0:
		product.IsAvailable = false
	case delta > 0:
		product.IsAvailable = true
	}
	m.products[productID] = product
	return product, nil
}

func (m *memInventory) stock(productID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.products[productID].CountInStock
}

// FindByID lets memInventory double as the ProductRepository so availability reflects live stock.
func (m *memInventory) FindByID(_ context.Context, productID string) (domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	product, ok := m.products[productID]
	if !ok {
		return domain.Product{}, errRepoNotFound
	}
	return product, nil
}

type stubPaymentRepo struct {
	insertFn  func(context.Context, domain.Payment) error
	updateFn  func(context.Context, domain.Payment) error
	claimFn   func(ctx context.Context, paymentID, orderID string) error
	releaseFn func(ctx context.Context, paymentID, orderID string) error
	findFn    func(context.Context, string) (domain.Payment, error)
	findByRef func(context.Context, string) (domain.Payment, error)
	listFn    func(context.Context, repositories.PaymentListFilter) (domain.CursorPage[domain.Payment], error)
}

func (s *stubPaymentRepo) Insert(ctx context.Context, payment domain.Payment) error {
	if s.insertFn != nil {
		return s.insertFn(ctx, payment)
	}
	return nil
}

func (s *stubPaymentRepo) Update(ctx context.Context, payment domain.Payment) error {
	if s.updateFn != nil {
		return s.updateFn(ctx, payment)
	}
	return nil
}

func (s *stubPaymentRepo) ClaimForOrder(ctx context.Context, paymentID, orderID string, _ time.Time) error {
	if s.claimFn != nil {
		return s.claimFn(ctx, paymentID, orderID)
	}
	return nil
}

func (s *stubPaymentRepo) ReleaseOrderClaim(ctx context.Context, paymentID, orderID string, _ time.Time) error {
	if s.releaseFn != nil {
		return s.releaseFn(ctx, paymentID, orderID)
	}
	return nil
}

// paymentClaims links payments to orders under a mutex, mirroring the storage transaction.
type paymentClaims struct {
	mu     sync.Mutex
	orders map[string]string
}

func newPaymentClaims() *paymentClaims {
	return &paymentClaims{orders: make(map[string]string)}
}

func (c *paymentClaims) claim(_ context.Context, paymentID, orderID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if current := c.orders[paymentID]; current != "" && current != orderID {
		return stubRepoError{conflict: true}
	}
	c.orders[paymentID] = orderID
	return nil
}

func (c *paymentClaims) release(_ context.Context, paymentID, orderID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.orders[paymentID] == orderID {
		delete(c.orders, paymentID)
	}
	return nil
}

func (c *paymentClaims) orderFor(paymentID string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.orders[paymentID]
}

func (s *stubPaymentRepo) FindByID(ctx context.Context, paymentID string) (domain.Payment, error) {
	if s.findFn != nil {
		return s.findFn(ctx, paymentID)
	}
	return domain.Payment{}, errRepoNotFound
}

func (s *stubPaymentRepo) FindByReference(ctx context.Context, reference string) (domain.Payment, error) {
	if s.findByRef != nil {
		return s.findByRef(ctx, reference)
	}
	return domain.Payment{}, errRepoNotFound
}

func (s *stubPaymentRepo) List(ctx context.Context, filter repositories.PaymentListFilter) (domain.CursorPage[domain.Payment], error) {
	if s.listFn != nil {
		return s.listFn(ctx, filter)
	}
	return domain.CursorPage[domain.Payment]{}, nil
}

type stubCustomerRepo struct {
	customers map[string]domain.Customer
	admins    []domain.Customer
	clearFn   func(context.Context, string, string) error
	cleared   []string
}

func (s *stubCustomerRepo) FindByID(_ context.Context, userID string) (domain.Customer, error) {
	customer, ok := s.customers[userID]
	if !ok {
		return domain.Customer{}, errRepoNotFound
	}
	return customer, nil
}

func (s *stubCustomerRepo) ListAdmins(context.Context) ([]domain.Customer, error) {
	return s.admins, nil
}

func (s *stubCustomerRepo) ClearCartAndAppendOrder(ctx context.Context, userID string, orderID string) error {
	if s.clearFn != nil {
		return s.clearFn(ctx, userID, orderID)
	}
	s.cleared = append(s.cleared, userID+"/"+orderID)
	return nil
}

type recordingQueue struct {
	mu   sync.Mutex
	jobs []NotificationJob
	err  error
}

func (q *recordingQueue) Enqueue(_ context.Context, job NotificationJob) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *recordingQueue) count(jobType NotificationJobType) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, job := range q.jobs {
		if job.Type == jobType {
			n++
		}
	}
	return n
}

type recordingLogger struct {
	mu     sync.Mutex
	events []string
}

func (l *recordingLogger) log(_ context.Context, event string, _ map[string]any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
}

func (l *recordingLogger) has(event string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.events {
		if e == event {
			return true
		}
	}
	return false
}

type stubGateway struct {
	resolveFn func(payments.PaymentContext) (string, error)
	initFn    func(context.Context, payments.PaymentContext, payments.InitializeRequest) (payments.Initialization, error)
	verifyFn  func(context.Context, payments.PaymentContext, string) (payments.Transaction, error)
	refundFn  func(context.Context, payments.PaymentContext, payments.RefundRequest) (payments.Refund, error)
}

func (s *stubGateway) Resolve(pc payments.PaymentContext) (string, error) {
	if s.resolveFn != nil {
		return s.resolveFn(pc)
	}
	return payments.ProviderPaystack, nil
}

func (s *stubGateway) Initialize(ctx context.Context, pc payments.PaymentContext, req payments.InitializeRequest) (payments.Initialization, error) {
	if s.initFn != nil {
		return s.initFn(ctx, pc, req)
	}
	return payments.Initialization{Provider: payments.ProviderPaystack, Reference: req.Reference}, nil
}

func (s *stubGateway) Verify(ctx context.Context, pc payments.PaymentContext, reference string) (payments.Transaction, error) {
	if s.verifyFn != nil {
		return s.verifyFn(ctx, pc, reference)
	}
	return payments.Transaction{}, errors.New("verify not stubbed")
}

func (s *stubGateway) Refund(ctx context.Context, pc payments.PaymentContext, req payments.RefundRequest) (payments.Refund, error) {
	if s.refundFn != nil {
		return s.refundFn(ctx, pc, req)
	}
	return payments.Refund{}, errors.New("refund not stubbed")
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func sequentialIDs(prefix string) func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return prefix + string(rune('A'+n-1)) + "0000000"
	}
}
