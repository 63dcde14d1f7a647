package handlers

import (
	"context"
	"net/http"

	domain "github.com/Prince-Affedzie/Freshy-Food-Backend/internal/domain"
	"github.com/Prince-Affedzie/Freshy-Food-Backend/internal/platform/auth"
	"github.com/Prince-Affedzie/Freshy-Food-Backend/internal/services"
)

type stubOrderService struct {
	createFn       func(context.Context, services.CreateOrderCommand) (services.Order, error)
	getFn          func(context.Context, services.GetOrderQuery) (services.OrderDetail, error)
	listMineFn     func(context.Context, services.MyOrdersFilter) (services.OrderListResult, error)
	listFn         func(context.Context, services.AdminOrdersFilter) (domain.CursorPage[services.Order], error)
	updateStatusFn func(context.Context, services.UpdateOrderStatusCommand) (services.Order, error)
	cancelFn       func(context.Context, services.CancelOrderCommand) (services.Order, error)
	markPaidFn     func(context.Context, services.MarkOrderPaidCommand) (services.Order, error)
	markDelivFn    func(context.Context, services.MarkOrderDeliveredCommand) (services.Order, error)
}

func (s *stubOrderService) CreateOrder(ctx context.Context, cmd services.CreateOrderCommand) (services.Order, error) {
	if s.createFn == nil {
		return services.Order{}, nil
	}
	return s.createFn(ctx, cmd)
}

func (s *stubOrderService) GetOrder(ctx context.Context, query services.GetOrderQuery) (services.OrderDetail, error) {
	if s.getFn == nil {
		return services.OrderDetail{}, nil
	}
	return s.getFn(ctx, query)
}

func (s *stubOrderService) ListMyOrders(ctx context.Context, filter services.MyOrdersFilter) (services.OrderListResult, error) {
	if s.listMineFn == nil {
		return services.OrderListResult{}, nil
	}
	return s.listMineFn(ctx, filter)
}

func (s *stubOrderService) ListOrders(ctx context.Context, filter services.AdminOrdersFilter) (domain.CursorPage[services.Order], error) {
	if s.listFn == nil {
		return domain.CursorPage[services.Order]{}, nil
	}
	return s.listFn(ctx, filter)
}

func (s *stubOrderService) UpdateOrderStatus(ctx context.Context, cmd services.UpdateOrderStatusCommand) (services.Order, error) {
	if s.updateStatusFn == nil {
		return services.Order{}, nil
	}
	return s.updateStatusFn(ctx, cmd)
}

func (s *stubOrderService) CancelOrder(ctx context.Context, cmd services.CancelOrderCommand) (services.Order, error) {
	if s.cancelFn == nil {
		return services.Order{}, nil
	}
	return s.cancelFn(ctx, cmd)
}

func (s *stubOrderService) MarkOrderPaid(ctx context.Context, cmd services.MarkOrderPaidCommand) (services.Order, error) {
	if s.markPaidFn == nil {
		return services.Order{}, nil
	}
	return s.markPaidFn(ctx, cmd)
}

func (s *stubOrderService) MarkOrderDelivered(ctx context.Context, cmd services.MarkOrderDeliveredCommand) (services.Order, error) {
	if s.markDelivFn == nil {
		return services.Order{}, nil
	}
	return s.markDelivFn(ctx, cmd)
}

type stubPaymentService struct {
	initFn         func(context.Context, services.InitializePaymentCommand) (services.PaymentSession, error)
	verifyFn       func(context.Context, services.VerifyPaymentCommand) (services.Payment, error)
	refundFn       func(context.Context, services.RefundPaymentCommand) (services.Payment, error)
	getFn          func(context.Context, string) (services.Payment, error)
	listFn         func(context.Context, services.PaymentListFilter) (domain.CursorPage[services.Payment], error)
	updateStatusFn func(context.Context, services.UpdatePaymentStatusCommand) (services.Payment, error)
}

func (s *stubPaymentService) InitializePayment(ctx context.Context, cmd services.InitializePaymentCommand) (services.PaymentSession, error) {
	if s.initFn == nil {
		return services.PaymentSession{}, nil
	}
	return s.initFn(ctx, cmd)
}

func (s *stubPaymentService) VerifyAndRecordPayment(ctx context.Context, cmd services.VerifyPaymentCommand) (services.Payment, error) {
	if s.verifyFn == nil {
		return services.Payment{}, nil
	}
	return s.verifyFn(ctx, cmd)
}

func (s *stubPaymentService) RefundPayment(ctx context.Context, cmd services.RefundPaymentCommand) (services.Payment, error) {
	if s.refundFn == nil {
		return services.Payment{}, nil
	}
	return s.refundFn(ctx, cmd)
}

func (s *stubPaymentService) GetPayment(ctx context.Context, paymentID string) (services.Payment, error) {
	if s.getFn == nil {
		return services.Payment{}, nil
	}
	return s.getFn(ctx, paymentID)
}

func (s *stubPaymentService) ListPayments(ctx context.Context, filter services.PaymentListFilter) (domain.CursorPage[services.Payment], error) {
	if s.listFn == nil {
		return domain.CursorPage[services.Payment]{}, nil
	}
	return s.listFn(ctx, filter)
}

func (s *stubPaymentService) UpdatePaymentStatus(ctx context.Context, cmd services.UpdatePaymentStatusCommand) (services.Payment, error) {
	if s.updateStatusFn == nil {
		return services.Payment{}, nil
	}
	return s.updateStatusFn(ctx, cmd)
}

// withIdentity stands in for the authenticator, which is nil in these tests.
func withIdentity(identity *auth.Identity) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), identity)))
		})
	}
}

func customerIdentity() *auth.Identity {
	return &auth.Identity{UserID: "user-1", Email: "ama@example.com", Roles: []string{auth.RoleCustomer}}
}

func adminIdentity() *auth.Identity {
	return &auth.Identity{UserID: "admin-1", Roles: []string{auth.RoleAdmin}}
}
