package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/Prince-Affedzie/Freshy-Food-Backend/internal/domain"
	"github.com/Prince-Affedzie/Freshy-Food-Backend/internal/payments"
)

var paymentTestNow = time.Date(2025, 3, 2, 12, 0, 0, 0, time.UTC)

type stubOrderService struct {
	OrderService
	updateStatusFn func(context.Context, UpdateOrderStatusCommand) (Order, error)
	markPaidFn     func(context.Context, MarkOrderPaidCommand) (Order, error)
}

func (s *stubOrderService) UpdateOrderStatus(ctx context.Context, cmd UpdateOrderStatusCommand) (Order, error) {
	if s.updateStatusFn != nil {
		return s.updateStatusFn(ctx, cmd)
	}
	return Order{}, nil
}

func (s *stubOrderService) MarkOrderPaid(ctx context.Context, cmd MarkOrderPaidCommand) (Order, error) {
	if s.markPaidFn != nil {
		return s.markPaidFn(ctx, cmd)
	}
	return Order{}, nil
}

func newTestPaymentService(t *testing.T, deps PaymentServiceDeps) PaymentService {
	t.Helper()
	if deps.Payments == nil {
		deps.Payments = &stubPaymentRepo{}
	}
	if deps.Gateway == nil {
		deps.Gateway = &stubGateway{}
	}
	deps.Clock = fixedClock(paymentTestNow)
	deps.IDGenerator = func() string { return "01JPAY0000000" }
	svc, err := NewPaymentService(deps)
	if err != nil {
		t.Fatalf("new payment service: %v", err)
	}
	return svc
}

func TestPaymentServiceVerifyRecordsSuccessfulTransaction(t *testing.T) {
	var inserted domain.Payment
	repo := &stubPaymentRepo{insertFn: func(_ context.Context, p domain.Payment) error {
		inserted = p
		return nil
	}}
	paidAt := paymentTestNow.Add(-time.Minute)
	gateway := &stubGateway{verifyFn: func(_ context.Context, pc payments.PaymentContext, reference string) (payments.Transaction, error) {
		if pc.Currency != "GHS" {
			t.Errorf("expected GHS routing, got %q", pc.Currency)
		}
		return payments.Transaction{
			Provider:          payments.ProviderPaystack,
			Reference:         reference,
			Status:            payments.StatusSucceeded,
			GatewayStatus:     "success",
			Amount:            5500,
			Currency:          "GHS",
			Channel:           "mobile_money",
			Bank:              "MTN",
			MobileMoneyNumber: "0241234567",
			PaidAt:            &paidAt,
		}, nil
	}}
	svc := newTestPaymentService(t, PaymentServiceDeps{Payments: repo, Gateway: gateway})

	payment, err := svc.VerifyAndRecordPayment(context.Background(), VerifyPaymentCommand{UserID: "user-1", Reference: "ref-1", ClaimedAmount: 5500})
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if payment.Status != domain.PaymentStatusPaid || payment.Amount != 5500 || payment.GatewayAmount != 5500 {
		t.Fatalf("unexpected payment %+v", payment)
	}
	if payment.PaymentMethod != "mobile_money" || payment.PaymentChannel != "MTN" || payment.MobileMoneyNumber != "0241234567" {
		t.Fatalf("unexpected gateway metadata %+v", payment)
	}
	if inserted.ID != "ref-1" || inserted.TransactionRef != "ref-1" || inserted.UserID != "user-1" {
		t.Fatalf("unexpected inserted payment %+v", inserted)
	}
}

func TestPaymentServiceVerifyDeclinedReturnsRawResponse(t *testing.T) {
	inserted := false
	repo := &stubPaymentRepo{insertFn: func(context.Context, domain.Payment) error {
		inserted = true
		return nil
	}}
	raw := []byte(`{"status":true,"data":{"status":"abandoned"}}`)
	gateway := &stubGateway{verifyFn: func(context.Context, payments.PaymentContext, string) (payments.Transaction, error) {
		return payments.Transaction{Provider: payments.ProviderPaystack, Status: payments.StatusFailed, GatewayStatus: "abandoned", Raw: raw}, nil
	}}
	svc := newTestPaymentService(t, PaymentServiceDeps{Payments: repo, Gateway: gateway})

	_, err := svc.VerifyAndRecordPayment(context.Background(), VerifyPaymentCommand{UserID: "user-1", Reference: "ref-1", ClaimedAmount: 100})
	var gwErr *GatewayError
	if !errors.As(err, &gwErr) || !errors.Is(err, ErrPaymentGateway) {
		t.Fatalf("expected gateway error, got %v", err)
	}
	if string(gwErr.Response) != string(raw) || gwErr.Status != "abandoned" {
		t.Fatalf("expected raw gateway response, got %+v", gwErr)
	}
	if inserted {
		t.Fatalf("declined transaction must not be recorded")
	}
}

func TestPaymentServiceVerifyAmountCheck(t *testing.T) {
	gateway := &stubGateway{verifyFn: func(context.Context, payments.PaymentContext, string) (payments.Transaction, error) {
		return payments.Transaction{Provider: payments.ProviderPaystack, Status: payments.StatusSucceeded, Amount: 100}, nil
	}}

	strict := newTestPaymentService(t, PaymentServiceDeps{Gateway: gateway})
	if _, err := strict.VerifyAndRecordPayment(context.Background(), VerifyPaymentCommand{UserID: "user-1", Reference: "ref-1", ClaimedAmount: 5500}); !errors.Is(err, ErrPaymentAmountMismatch) {
		t.Fatalf("expected amount mismatch, got %v", err)
	}

	lenient := newTestPaymentService(t, PaymentServiceDeps{Gateway: gateway, TrustClaimedAmount: true})
	payment, err := lenient.VerifyAndRecordPayment(context.Background(), VerifyPaymentCommand{UserID: "user-1", Reference: "ref-1", ClaimedAmount: 5500})
	if err != nil {
		t.Fatalf("lenient verify: %v", err)
	}
	if payment.Amount != 5500 || payment.GatewayAmount != 100 {
		t.Fatalf("expected claimed amount with gateway amount retained, got %+v", payment)
	}
}

func TestPaymentServiceVerifyIsIdempotentPerReference(t *testing.T) {
	existing := domain.Payment{ID: "pay-1", UserID: "user-1", TransactionRef: "ref-1", Status: domain.PaymentStatusPaid}
	repo := &stubPaymentRepo{findByRef: func(context.Context, string) (domain.Payment, error) { return existing, nil }}
	gateway := &stubGateway{verifyFn: func(context.Context, payments.PaymentContext, string) (payments.Transaction, error) {
		t.Fatalf("gateway must not be called for a recorded reference")
		return payments.Transaction{}, nil
	}}
	svc := newTestPaymentService(t, PaymentServiceDeps{Payments: repo, Gateway: gateway})

	payment, err := svc.VerifyAndRecordPayment(context.Background(), VerifyPaymentCommand{UserID: "user-1", Reference: "ref-1"})
	if err != nil || payment.ID != "pay-1" {
		t.Fatalf("expected existing payment, got %+v %v", payment, err)
	}
	if _, err := svc.VerifyAndRecordPayment(context.Background(), VerifyPaymentCommand{UserID: "user-2", Reference: "ref-1"}); !errors.Is(err, ErrPaymentConflict) {
		t.Fatalf("expected conflict for another user, got %v", err)
	}
}

func TestPaymentServiceVerifyLosesInsertRaceToSameReference(t *testing.T) {
	recorded := domain.Payment{ID: "ref-9", UserID: "user-1", TransactionRef: "ref-9", Status: domain.PaymentStatusPaid, Amount: 5500}
	lookups := 0
	repo := &stubPaymentRepo{
		findByRef: func(context.Context, string) (domain.Payment, error) {
			lookups++
			if lookups == 1 {
				return domain.Payment{}, errRepoNotFound
			}
			return recorded, nil
		},
		insertFn: func(context.Context, domain.Payment) error { return stubRepoError{conflict: true} },
	}
	gateway := &stubGateway{verifyFn: func(_ context.Context, _ payments.PaymentContext, reference string) (payments.Transaction, error) {
		return payments.Transaction{Provider: payments.ProviderPaystack, Reference: reference, Status: payments.StatusSucceeded, Amount: 5500, Currency: "GHS"}, nil
	}}
	svc := newTestPaymentService(t, PaymentServiceDeps{Payments: repo, Gateway: gateway})

	payment, err := svc.VerifyAndRecordPayment(context.Background(), VerifyPaymentCommand{UserID: "user-1", Reference: "ref-9", ClaimedAmount: 5500})
	if err != nil || payment.ID != "ref-9" {
		t.Fatalf("expected recorded payment, got %+v %v", payment, err)
	}
	lookups = 0
	if _, err := svc.VerifyAndRecordPayment(context.Background(), VerifyPaymentCommand{UserID: "user-2", Reference: "ref-9", ClaimedAmount: 5500}); !errors.Is(err, ErrPaymentConflict) {
		t.Fatalf("expected conflict for another user, got %v", err)
	}
}

func TestPaymentServiceVerifyRejectsMalformedReference(t *testing.T) {
	svc := newTestPaymentService(t, PaymentServiceDeps{})
	for _, ref := range []string{"", "a/b", "..", "__meta"} {
		if _, err := svc.VerifyAndRecordPayment(context.Background(), VerifyPaymentCommand{UserID: "user-1", Reference: ref}); !errors.Is(err, ErrPaymentInvalidInput) {
			t.Fatalf("reference %q: expected invalid input, got %v", ref, err)
		}
	}
}

func TestPaymentServiceVerifyGatewayTimeout(t *testing.T) {
	gateway := &stubGateway{verifyFn: func(context.Context, payments.PaymentContext, string) (payments.Transaction, error) {
		return payments.Transaction{}, &payments.ProviderError{Provider: payments.ProviderPaystack, Op: "verify", Err: payments.ErrGatewayTimeout}
	}}
	svc := newTestPaymentService(t, PaymentServiceDeps{Gateway: gateway})

	_, err := svc.VerifyAndRecordPayment(context.Background(), VerifyPaymentCommand{UserID: "user-1", Reference: "ref-1"})
	if !errors.Is(err, ErrPaymentGateway) || !errors.Is(err, payments.ErrGatewayTimeout) {
		t.Fatalf("expected gateway timeout error, got %v", err)
	}
}

func TestPaymentServiceRefund(t *testing.T) {
	paid := domain.Payment{ID: "pay-1", OrderID: "ord-1", UserID: "user-1", Status: domain.PaymentStatusPaid, Provider: payments.ProviderPaystack, TransactionRef: "ref-1", Currency: "GHS"}

	t.Run("only paid payments", func(t *testing.T) {
		repo := &stubPaymentRepo{findByRef: func(context.Context, string) (domain.Payment, error) {
			p := paid
			p.Status = domain.PaymentStatusPending
			return p, nil
		}}
		svc := newTestPaymentService(t, PaymentServiceDeps{Payments: repo})
		if _, err := svc.RefundPayment(context.Background(), RefundPaymentCommand{Reference: "ref-1"}); !errors.Is(err, ErrPaymentNotRefundable) {
			t.Fatalf("expected not refundable, got %v", err)
		}
	})

	t.Run("unknown reference", func(t *testing.T) {
		svc := newTestPaymentService(t, PaymentServiceDeps{})
		if _, err := svc.RefundPayment(context.Background(), RefundPaymentCommand{Reference: "nope"}); !errors.Is(err, ErrPaymentNotFound) {
			t.Fatalf("expected not found, got %v", err)
		}
	})

	t.Run("gateway failure leaves status unchanged", func(t *testing.T) {
		updated := false
		repo := &stubPaymentRepo{
			findByRef: func(context.Context, string) (domain.Payment, error) { return paid, nil },
			updateFn: func(context.Context, domain.Payment) error {
				updated = true
				return nil
			},
		}
		gateway := &stubGateway{refundFn: func(context.Context, payments.PaymentContext, payments.RefundRequest) (payments.Refund, error) {
			return payments.Refund{}, &payments.ProviderError{Provider: payments.ProviderPaystack, Op: "refund", Err: payments.ErrGatewayTimeout}
		}}
		orders := &stubOrderService{updateStatusFn: func(context.Context, UpdateOrderStatusCommand) (Order, error) {
			t.Fatalf("order must not be cancelled when the refund fails")
			return Order{}, nil
		}}
		svc := newTestPaymentService(t, PaymentServiceDeps{Payments: repo, Gateway: gateway, Orders: orders})

		if _, err := svc.RefundPayment(context.Background(), RefundPaymentCommand{Reference: "ref-1"}); !errors.Is(err, ErrPaymentGateway) {
			t.Fatalf("expected gateway error, got %v", err)
		}
		if updated {
			t.Fatalf("payment must not be updated after gateway failure")
		}
	})

	t.Run("success flips status and cancels order", func(t *testing.T) {
		var stored domain.Payment
		repo := &stubPaymentRepo{
			findByRef: func(context.Context, string) (domain.Payment, error) { return paid, nil },
			updateFn: func(_ context.Context, p domain.Payment) error {
				stored = p
				return nil
			},
		}
		gateway := &stubGateway{refundFn: func(_ context.Context, pc payments.PaymentContext, req payments.RefundRequest) (payments.Refund, error) {
			if pc.PreferredProvider != payments.ProviderPaystack || req.Reference != "ref-1" {
				t.Errorf("unexpected refund routing %+v %+v", pc, req)
			}
			return payments.Refund{Provider: payments.ProviderPaystack, Reference: "ref-1", Status: "pending"}, nil
		}}
		var cancel UpdateOrderStatusCommand
		orders := &stubOrderService{updateStatusFn: func(_ context.Context, cmd UpdateOrderStatusCommand) (Order, error) {
			cancel = cmd
			return Order{}, nil
		}}
		svc := newTestPaymentService(t, PaymentServiceDeps{Payments: repo, Gateway: gateway, Orders: orders})

		refunded, err := svc.RefundPayment(context.Background(), RefundPaymentCommand{Reference: "ref-1", ActorID: "admin-1"})
		if err != nil {
			t.Fatalf("refund: %v", err)
		}
		if refunded.Status != domain.PaymentStatusRefunded || refunded.RefundedAt == nil || stored.Status != domain.PaymentStatusRefunded {
			t.Fatalf("expected refunded payment, got %+v", refunded)
		}
		if cancel.OrderID != "ord-1" || cancel.Status != string(domain.OrderStatusCancelled) || cancel.ActorID != "admin-1" {
			t.Fatalf("expected linked order cancelled through admin path, got %+v", cancel)
		}
	})

	t.Run("gateway reported failure", func(t *testing.T) {
		repo := &stubPaymentRepo{findByRef: func(context.Context, string) (domain.Payment, error) { return paid, nil }}
		gateway := &stubGateway{refundFn: func(context.Context, payments.PaymentContext, payments.RefundRequest) (payments.Refund, error) {
			return payments.Refund{Provider: payments.ProviderStripe, Status: "failed", Raw: []byte(`{"status":"failed"}`)}, nil
		}}
		svc := newTestPaymentService(t, PaymentServiceDeps{Payments: repo, Gateway: gateway})

		var gwErr *GatewayError
		if _, err := svc.RefundPayment(context.Background(), RefundPaymentCommand{Reference: "ref-1"}); !errors.As(err, &gwErr) || gwErr.Status != "failed" {
			t.Fatalf("expected gateway error with status, got %v", err)
		}
	})
}

func TestPaymentServiceUpdatePaymentStatus(t *testing.T) {
	pending := domain.Payment{ID: "pay-1", OrderID: "ord-1", UserID: "user-1", Status: domain.PaymentStatusPending, TransactionRef: "ref-1"}
	repo := &stubPaymentRepo{findFn: func(context.Context, string) (domain.Payment, error) { return pending, nil }}
	calls := 0
	orders := &stubOrderService{markPaidFn: func(_ context.Context, cmd MarkOrderPaidCommand) (Order, error) {
		calls++
		if cmd.OrderID != "ord-1" || cmd.PaymentDetails["paymentId"] != "pay-1" {
			t.Errorf("unexpected mark paid command %+v", cmd)
		}
		return Order{}, ErrOrderAlreadyPaid
	}}
	logger := &recordingLogger{}
	svc := newTestPaymentService(t, PaymentServiceDeps{Payments: repo, Orders: orders, Logger: logger.log})

	payment, err := svc.UpdatePaymentStatus(context.Background(), UpdatePaymentStatusCommand{PaymentID: "pay-1", Status: "PAID", ActorID: "admin-1"})
	if err != nil {
		t.Fatalf("update payment status: %v", err)
	}
	if payment.Status != domain.PaymentStatusPaid || calls != 1 {
		t.Fatalf("expected paid status and one mark paid call, got %+v calls=%d", payment, calls)
	}
	if logger.has("payment.order.mark_paid_failed") {
		t.Fatalf("already paid orders must be tolerated")
	}

	if _, err := svc.UpdatePaymentStatus(context.Background(), UpdatePaymentStatusCommand{PaymentID: "pay-1", Status: "refunded"}); !errors.Is(err, ErrPaymentInvalidInput) {
		t.Fatalf("expected refunds to be rejected on the override path, got %v", err)
	}
	if _, err := svc.UpdatePaymentStatus(context.Background(), UpdatePaymentStatusCommand{PaymentID: "pay-1", Status: "settled"}); !errors.Is(err, ErrPaymentInvalidInput) {
		t.Fatalf("expected unknown status rejected, got %v", err)
	}
}

func TestPaymentServiceInitializePayment(t *testing.T) {
	gateway := &stubGateway{initFn: func(_ context.Context, pc payments.PaymentContext, req payments.InitializeRequest) (payments.Initialization, error) {
		if req.Metadata["userId"] != "user-1" || req.Amount != 4700 || pc.Currency != "GHS" {
			t.Errorf("unexpected initialize request %+v %+v", pc, req)
		}
		return payments.Initialization{Provider: payments.ProviderPaystack, Reference: req.Reference, PublicKey: "pk_test"}, nil
	}}
	svc := newTestPaymentService(t, PaymentServiceDeps{Gateway: gateway})

	session, err := svc.InitializePayment(context.Background(), InitializePaymentCommand{UserID: "user-1", Amount: 4700, Email: "ama@example.com"})
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if session.Reference != "01JPAY0000000" || session.PublicKey != "pk_test" || session.Currency != "GHS" {
		t.Fatalf("unexpected session %+v", session)
	}
	if _, err := svc.InitializePayment(context.Background(), InitializePaymentCommand{UserID: "user-1"}); !errors.Is(err, ErrPaymentInvalidInput) {
		t.Fatalf("expected invalid amount error, got %v", err)
	}
}
