//go:build integration

package firestore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	domain "github.com/Prince-Affedzie/Freshy-Food-Backend/internal/domain"
	"github.com/Prince-Affedzie/Freshy-Food-Backend/internal/repositories"
)

func TestProductRepositoryStockAdjustmentsIntegration(t *testing.T) {
	provider := newEmulatorProvider(t, "products-test")
	repo, err := NewProductRepository(provider)
	if err != nil {
		t.Fatalf("new product repository: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	client, err := provider.Client(ctx)
	if err != nil {
		t.Fatalf("provider client: %v", err)
	}
	seed := map[string]any{
		"name":         "Tomatoes",
		"unit":         "basket",
		"price":        int64(1500),
		"countInStock": 5,
		"isAvailable":  true,
		"updatedAt":    time.Now().UTC(),
	}
	if _, err := client.Collection(productCollection).Doc("tomatoes").Set(ctx, seed); err != nil {
		t.Fatalf("seed product: %v", err)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	var succeeded, insufficient int
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.Decrement(ctx, "tomatoes", 1)
			mu.Lock()
			defer mu.Unlock()
			var invErr *repositories.InventoryError
			switch {
			case err == nil:
				succeeded++
			case errors.As(err, &invErr) && invErr.Code == repositories.InventoryErrorInsufficientStock:
				insufficient++
			default:
				t.Errorf("unexpected decrement error: %v", err)
			}
		}()
	}
	wg.Wait()

	if succeeded != 5 || insufficient != 3 {
		t.Fatalf("expected 5 successes and 3 insufficient, got %d and %d", succeeded, insufficient)
	}

	product, err := repo.FindByID(ctx, "tomatoes")
	if err != nil {
		t.Fatalf("find product: %v", err)
	}
	if product.CountInStock != 0 || product.IsAvailable {
		t.Fatalf("expected empty unavailable product, got %+v", product)
	}

	restored, err := repo.Restore(ctx, "tomatoes", 2)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if restored.CountInStock != 2 || !restored.IsAvailable {
		t.Fatalf("expected restored availability, got %+v", restored)
	}

	if _, err := client.Collection(productCollection).Doc("okra").Set(ctx, map[string]any{
		"name":         "Okra",
		"price":        int64(600),
		"countInStock": 5,
		"isAvailable":  false,
		"updatedAt":    time.Now().UTC(),
	}); err != nil {
		t.Fatalf("seed disabled product: %v", err)
	}
	disabled, err := repo.Decrement(ctx, "okra", 1)
	if err != nil {
		t.Fatalf("decrement disabled product: %v", err)
	}
	if disabled.CountInStock != 4 || disabled.IsAvailable {
		t.Fatalf("expected disabled product to stay unavailable, got %+v", disabled)
	}

	var invErr *repositories.InventoryError
	if _, err := repo.Decrement(ctx, "missing", 1); !errors.As(err, &invErr) || invErr.Code != repositories.InventoryErrorProductNotFound {
		t.Fatalf("expected product not found, got %v", err)
	}
}

func TestOrderAndPaymentRepositoriesIntegration(t *testing.T) {
	provider := newEmulatorProvider(t, "orders-test")
	registry, err := NewRegistry(provider)
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	for i, id := range []string{"01ORDERA", "01ORDERB", "01ORDERC"} {
		order := domain.Order{
			ID:          id,
			OrderNumber: id,
			UserID:      "user-1",
			Items:       []domain.OrderItem{{ProductID: "p1", Name: "Yam", Quantity: 1, Unit: "tuber", Price: 2000}},
			Currency:    "GHS",
			ItemsPrice:  int64(2000 * (i + 1)),
			TotalPrice:  int64(2000*(i+1) + 500),
			Status:      domain.OrderStatusProcessing,
			CreatedAt:   base.Add(time.Duration(i) * time.Hour),
			UpdatedAt:   base.Add(time.Duration(i) * time.Hour),
		}
		if err := registry.Orders().Insert(ctx, order); err != nil {
			t.Fatalf("insert order %s: %v", id, err)
		}
	}

	dup := domain.Order{ID: "01ORDERA", UserID: "user-1", CreatedAt: base}
	err = registry.Orders().Insert(ctx, dup)
	var repoErr repositories.RepositoryError
	if !errors.As(err, &repoErr) || !repoErr.IsConflict() {
		t.Fatalf("expected conflict on duplicate insert, got %v", err)
	}

	page, err := registry.Orders().List(ctx, repositories.OrderListFilter{
		UserID:     "user-1",
		Pagination: domain.Pagination{PageSize: 2},
	})
	if err != nil {
		t.Fatalf("list orders: %v", err)
	}
	if len(page.Items) != 2 || page.Items[0].ID != "01ORDERC" || page.NextPageToken == "" {
		t.Fatalf("unexpected first page: %+v", page)
	}
	next, err := registry.Orders().List(ctx, repositories.OrderListFilter{
		UserID:     "user-1",
		Pagination: domain.Pagination{PageSize: 2, PageToken: page.NextPageToken},
	})
	if err != nil {
		t.Fatalf("list second page: %v", err)
	}
	if len(next.Items) != 1 || next.Items[0].ID != "01ORDERA" || next.NextPageToken != "" {
		t.Fatalf("unexpected second page: %+v", next)
	}

	order, err := registry.Orders().FindByID(ctx, "01ORDERB")
	if err != nil {
		t.Fatalf("find order: %v", err)
	}
	loadedAt := order.UpdatedAt
	now := base.Add(5 * time.Hour)
	order.UpdatedAt = now
	order.Status = domain.OrderStatusCancelled
	order.CancelledAt = &now
	order.StatusHistory = append(order.StatusHistory, domain.OrderStatusHistoryEntry{
		Status: domain.OrderStatusCancelled, ChangedAt: now, ChangedBy: "user-1", Notes: "Cancelled by customer: late",
	})
	if err := registry.Orders().Update(ctx, order, loadedAt); err != nil {
		t.Fatalf("update order: %v", err)
	}
	if err := registry.Orders().Update(ctx, order, loadedAt); !errors.As(err, &repoErr) || !repoErr.IsConflict() {
		t.Fatalf("expected conflict for a stale update, got %v", err)
	}

	stats, err := registry.Orders().Stats(ctx, repositories.OrderListFilter{UserID: "user-1"})
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Total != 3 || stats.ByStatus[domain.OrderStatusCancelled] != 1 || stats.ByStatus[domain.OrderStatusProcessing] != 2 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if stats.TotalSpent != 2500+6500 {
		t.Fatalf("expected cancelled orders excluded from spend, got %d", stats.TotalSpent)
	}

	payment := domain.Payment{
		ID:             "ref-123",
		UserID:         "user-1",
		Amount:         6500,
		Currency:       "ghs",
		Status:         domain.PaymentStatusPaid,
		Provider:       "paystack",
		TransactionRef: "ref-123",
		PaymentChannel: "mobile_money",
		CreatedAt:      base,
		UpdatedAt:      base,
	}
	if err := registry.Payments().Insert(ctx, payment); err != nil {
		t.Fatalf("insert payment: %v", err)
	}
	found, err := registry.Payments().FindByReference(ctx, "ref-123")
	if err != nil {
		t.Fatalf("find by reference: %v", err)
	}
	if found.ID != "ref-123" || found.Currency != "GHS" {
		t.Fatalf("unexpected payment: %+v", found)
	}
	if err := registry.Payments().Insert(ctx, payment); !errors.As(err, &repoErr) || !repoErr.IsConflict() {
		t.Fatalf("expected conflict recording a reference twice, got %v", err)
	}

	if err := registry.Payments().ClaimForOrder(ctx, "ref-123", "01ORDERA", now); err != nil {
		t.Fatalf("claim payment: %v", err)
	}
	if err := registry.Payments().ClaimForOrder(ctx, "ref-123", "01ORDERA", now); err != nil {
		t.Fatalf("repeat claim by the same order: %v", err)
	}
	if err := registry.Payments().ClaimForOrder(ctx, "ref-123", "01ORDERB", now); !errors.As(err, &repoErr) || !repoErr.IsConflict() {
		t.Fatalf("expected conflict claiming for another order, got %v", err)
	}
	if err := registry.Payments().ReleaseOrderClaim(ctx, "ref-123", "01ORDERB", now); err != nil {
		t.Fatalf("release by non-owner: %v", err)
	}
	if claimed, err := registry.Payments().FindByID(ctx, "ref-123"); err != nil || claimed.OrderID != "01ORDERA" {
		t.Fatalf("expected claim kept by 01ORDERA, got %+v %v", claimed, err)
	}
	if err := registry.Payments().ReleaseOrderClaim(ctx, "ref-123", "01ORDERA", now); err != nil {
		t.Fatalf("release claim: %v", err)
	}
	if err := registry.Payments().ClaimForOrder(ctx, "ref-123", "01ORDERB", now); err != nil {
		t.Fatalf("claim after release: %v", err)
	}
	if _, err := registry.Payments().FindByReference(ctx, "nope"); !errors.As(err, &repoErr) || !repoErr.IsNotFound() {
		t.Fatalf("expected not found for unknown reference, got %v", err)
	}
}
