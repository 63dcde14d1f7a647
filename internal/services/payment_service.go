package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/Prince-Affedzie/Freshy-Food-Backend/internal/domain"
	"github.com/Prince-Affedzie/Freshy-Food-Backend/internal/payments"
	"github.com/Prince-Affedzie/Freshy-Food-Backend/internal/repositories"
)

const (
	paymentEventRecorded      = "payment.recorded"
	paymentEventRefunded      = "payment.refunded"
	paymentEventStatusChanged = "payment.status.changed"

	gatewayOutcomeSuccess  = "success"
	gatewayOutcomeFailure  = "failure"
	gatewayOutcomeTimeout  = "timeout"
	gatewayOutcomeDeclined = "declined"
)

var paymentStatuses = []PaymentStatus{
	domain.PaymentStatusPending,
	domain.PaymentStatusProcessing,
	domain.PaymentStatusPaid,
	domain.PaymentStatusRefunded,
	domain.PaymentStatusFailed,
}

// PaymentServiceDeps bundles collaborators required to construct the payment service.
type PaymentServiceDeps struct {
	Payments repositories.PaymentRepository
	Gateway  PaymentGateway
	// Orders is used by refunds and admin status overrides to keep the linked order consistent.
	Orders   OrderService
	Currency string
	// TrustClaimedAmount records the client's claimed amount even when the gateway settled a different one.
	TrustClaimedAmount bool
	Clock              func() time.Time
	IDGenerator        func() string
	Metrics            Metrics
	Logger             func(ctx context.Context, event string, fields map[string]any)
}

type paymentService struct {
	payments   repositories.PaymentRepository
	gateway    PaymentGateway
	orders     OrderService
	currency   string
	trustClaim bool
	clock      func() time.Time
	newID      func() string
	metrics    Metrics
	logger     func(context.Context, string, map[string]any)
}

// NewPaymentService wires dependencies into a concrete PaymentService implementation.
func NewPaymentService(deps PaymentServiceDeps) (PaymentService, error) {
	if deps.Payments == nil {
		return nil, errors.New("payment service: payment repository is required")
	}
	if deps.Gateway == nil {
		return nil, errors.New("payment service: gateway is required")
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

	return &paymentService{
		payments:   deps.Payments,
		gateway:    deps.Gateway,
		orders:     deps.Orders,
		currency:   currency,
		trustClaim: deps.TrustClaimedAmount,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:   idGen,
		metrics: metrics,
		logger:  logger,
	}, nil
}

func (s *paymentService) InitializePayment(ctx context.Context, cmd InitializePaymentCommand) (PaymentSession, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return PaymentSession{}, fmt.Errorf("%w: user id is required", ErrPaymentInvalidInput)
	}
	if cmd.Amount <= 0 {
		return PaymentSession{}, fmt.Errorf("%w: amount must be positive", ErrPaymentInvalidInput)
	}
	currency := s.currencyOrDefault(cmd.Currency)
	pc := payments.PaymentContext{PreferredProvider: cmd.PreferredProvider, Currency: currency}
	reference := s.newID()

	session, err := s.gateway.Initialize(ctx, pc, payments.InitializeRequest{
		Reference: reference,
		Amount:    cmd.Amount,
		Currency:  currency,
		Email:     strings.TrimSpace(cmd.Email),
		Metadata:  map[string]string{"userId": userID},
	})
	if err != nil {
		return PaymentSession{}, s.gatewayFailure(pc, "initialize", reference, err)
	}
	s.metrics.GatewayCall(session.Provider, "initialize", gatewayOutcomeSuccess)

	return PaymentSession{
		Provider:     session.Provider,
		Reference:    session.Reference,
		PublicKey:    session.PublicKey,
		ClientSecret: session.ClientSecret,
		Amount:       cmd.Amount,
		Currency:     currency,
	}, nil
}

func (s *paymentService) VerifyAndRecordPayment(ctx context.Context, cmd VerifyPaymentCommand) (Payment, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return Payment{}, fmt.Errorf("%w: user id is required", ErrPaymentInvalidInput)
	}
	reference, err := normaliseReference(cmd.Reference)
	if err != nil {
		return Payment{}, err
	}
	if cmd.ClaimedAmount < 0 {
		return Payment{}, fmt.Errorf("%w: amount must not be negative", ErrPaymentInvalidInput)
	}

	existing, err := s.payments.FindByReference(ctx, reference)
	switch {
	case err == nil:
		return s.recordedPayment(existing, userID, reference)
	case !isRepositoryNotFound(err):
		return Payment{}, s.mapRepositoryError(err)
	}

	currency := s.currencyOrDefault(cmd.Currency)
	pc := payments.PaymentContext{PreferredProvider: cmd.PreferredProvider, Currency: currency}
	txn, err := s.gateway.Verify(ctx, pc, reference)
	if err != nil {
		return Payment{}, s.gatewayFailure(pc, "verify", reference, err)
	}
	if txn.Status != payments.StatusSucceeded {
		s.metrics.GatewayCall(txn.Provider, "verify", gatewayOutcomeDeclined)
		s.logger(ctx, "payment.verify.declined", map[string]any{
			"reference": reference,
			"provider":  txn.Provider,
			"status":    txn.GatewayStatus,
		})
		return Payment{}, &GatewayError{
			Provider:  txn.Provider,
			Reference: reference,
			Status:    txn.GatewayStatus,
			Response:  txn.Raw,
		}
	}
	s.metrics.GatewayCall(txn.Provider, "verify", gatewayOutcomeSuccess)

	if !s.trustClaim && txn.Amount != cmd.ClaimedAmount {
		s.logger(ctx, "payment.verify.amount_mismatch", map[string]any{
			"reference": reference,
			"claimed":   cmd.ClaimedAmount,
			"settled":   txn.Amount,
		})
		return Payment{}, fmt.Errorf("%w: gateway settled %d, claimed %d", ErrPaymentAmountMismatch, txn.Amount, cmd.ClaimedAmount)
	}

	now := s.now()
	paymentCurrency := currency
	if txn.Currency != "" {
		paymentCurrency = txn.Currency
	}
	payment := Payment{
		ID:                reference,
		UserID:            userID,
		Amount:            cmd.ClaimedAmount,
		Currency:          paymentCurrency,
		Status:            domain.PaymentStatusPaid,
		Provider:          txn.Provider,
		TransactionRef:    reference,
		PaymentMethod:     txn.Channel,
		PaymentChannel:    txn.Bank,
		MobileMoneyNumber: txn.MobileMoneyNumber,
		GatewayAmount:     txn.Amount,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.payments.Insert(ctx, payment); err != nil {
		if !isRepositoryConflict(err) {
			return Payment{}, s.mapRepositoryError(err)
		}
		// A concurrent verification recorded the reference first.
		recorded, findErr := s.payments.FindByReference(ctx, reference)
		if findErr != nil {
			return Payment{}, s.mapRepositoryError(findErr)
		}
		return s.recordedPayment(recorded, userID, reference)
	}

	s.logger(ctx, paymentEventRecorded, map[string]any{
		"paymentId": payment.ID,
		"reference": reference,
		"provider":  payment.Provider,
		"amount":    payment.Amount,
	})
	return payment, nil
}

func (s *paymentService) RefundPayment(ctx context.Context, cmd RefundPaymentCommand) (Payment, error) {
	reference, err := normaliseReference(cmd.Reference)
	if err != nil {
		return Payment{}, err
	}
	payment, err := s.payments.FindByReference(ctx, reference)
	if err != nil {
		return Payment{}, s.mapRepositoryError(err)
	}
	if payment.Status != domain.PaymentStatusPaid {
		return Payment{}, fmt.Errorf("%w: payment is %s", ErrPaymentNotRefundable, payment.Status)
	}

	pc := payments.PaymentContext{PreferredProvider: payment.Provider, Currency: payment.Currency}
	refund, err := s.gateway.Refund(ctx, pc, payments.RefundRequest{
		Reference: payment.TransactionRef,
		Reason:    sanitizeFreeText(cmd.Reason, maxReasonLength),
	})
	if err != nil {
		return Payment{}, s.gatewayFailure(pc, "refund", reference, err)
	}
	switch strings.ToLower(refund.Status) {
	case "failed", "canceled", "cancelled":
		s.metrics.GatewayCall(refund.Provider, "refund", gatewayOutcomeDeclined)
		return Payment{}, &GatewayError{
			Provider:  refund.Provider,
			Reference: reference,
			Status:    refund.Status,
			Response:  refund.Raw,
		}
	}
	s.metrics.GatewayCall(refund.Provider, "refund", gatewayOutcomeSuccess)

	now := s.now()
	payment.Status = domain.PaymentStatusRefunded
	payment.RefundedAt = &now
	payment.UpdatedAt = now
	if err := s.payments.Update(ctx, payment); err != nil {
		// The gateway has refunded; the operator must reconcile the local record.
		s.logger(ctx, "payment.refund.persist_failed", map[string]any{
			"paymentId": payment.ID,
			"reference": reference,
			"error":     err.Error(),
		})
		return Payment{}, s.mapRepositoryError(err)
	}

	s.logger(ctx, paymentEventRefunded, map[string]any{
		"paymentId":    payment.ID,
		"reference":    reference,
		"actor":        actorOrSystem(cmd.ActorID),
		"refundStatus": refund.Status,
	})

	if payment.OrderID != "" && s.orders != nil {
		_, err := s.orders.UpdateOrderStatus(ctx, UpdateOrderStatusCommand{
			OrderID: payment.OrderID,
			Status:  string(domain.OrderStatusCancelled),
			ActorID: cmd.ActorID,
			Notes:   "Payment refunded",
		})
		if err != nil {
			s.logger(ctx, "payment.refund.order_cancel_failed", map[string]any{
				"paymentId": payment.ID,
				"orderId":   payment.OrderID,
				"error":     err.Error(),
			})
		}
	}
	return payment, nil
}

func (s *paymentService) GetPayment(ctx context.Context, paymentID string) (Payment, error) {
	paymentID = strings.TrimSpace(paymentID)
	if paymentID == "" {
		return Payment{}, fmt.Errorf("%w: payment id is required", ErrPaymentInvalidInput)
	}
	payment, err := s.payments.FindByID(ctx, paymentID)
	if err != nil {
		return Payment{}, s.mapRepositoryError(err)
	}
	return payment, nil
}

func (s *paymentService) ListPayments(ctx context.Context, filter PaymentListFilter) (domain.CursorPage[Payment], error) {
	listFilter := repositories.PaymentListFilter{
		UserID:     strings.TrimSpace(filter.UserID),
		Method:     strings.TrimSpace(filter.Method),
		DateRange:  domain.RangeQuery[time.Time]{From: filter.From, To: filter.To},
		Pagination: filter.Pagination,
	}
	for _, raw := range filter.Status {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		status, ok := parsePaymentStatus(raw)
		if !ok {
			return domain.CursorPage[Payment]{}, fmt.Errorf("%w: unknown status %q", ErrPaymentInvalidInput, raw)
		}
		listFilter.Status = append(listFilter.Status, string(status))
	}
	page, err := s.payments.List(ctx, listFilter)
	if err != nil {
		return domain.CursorPage[Payment]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

// UpdatePaymentStatus is the admin override. Refunds must go through RefundPayment so the gateway is called.
func (s *paymentService) UpdatePaymentStatus(ctx context.Context, cmd UpdatePaymentStatusCommand) (Payment, error) {
	target, ok := parsePaymentStatus(cmd.Status)
	if !ok {
		return Payment{}, fmt.Errorf("%w: unknown status %q", ErrPaymentInvalidInput, cmd.Status)
	}
	if target == domain.PaymentStatusRefunded {
		return Payment{}, fmt.Errorf("%w: refunds must be issued through the gateway", ErrPaymentInvalidInput)
	}
	payment, err := s.GetPayment(ctx, cmd.PaymentID)
	if err != nil {
		return Payment{}, err
	}
	if payment.Status == domain.PaymentStatusRefunded {
		return Payment{}, fmt.Errorf("%w: refunded payments are final", ErrPaymentInvalidInput)
	}
	if payment.Status == target {
		return payment, nil
	}

	previous := payment.Status
	payment.Status = target
	payment.UpdatedAt = s.now()
	if err := s.payments.Update(ctx, payment); err != nil {
		return Payment{}, s.mapRepositoryError(err)
	}
	s.logger(ctx, paymentEventStatusChanged, map[string]any{
		"paymentId":      payment.ID,
		"previousStatus": string(previous),
		"status":         string(target),
		"actor":          actorOrSystem(cmd.ActorID),
	})

	if target == domain.PaymentStatusPaid && payment.OrderID != "" && s.orders != nil {
		_, err := s.orders.MarkOrderPaid(ctx, MarkOrderPaidCommand{
			OrderID:        payment.OrderID,
			ActorID:        cmd.ActorID,
			PaymentDetails: paymentDetailsFromPayment(payment),
		})
		if err != nil && !errors.Is(err, ErrOrderAlreadyPaid) {
			s.logger(ctx, "payment.order.mark_paid_failed", map[string]any{
				"paymentId": payment.ID,
				"orderId":   payment.OrderID,
				"error":     err.Error(),
			})
		}
	}
	return payment, nil
}

// recordedPayment returns an already stored payment to its owner; any other user gets a conflict.
func (s *paymentService) recordedPayment(existing Payment, userID, reference string) (Payment, error) {
	if existing.UserID != userID {
		return Payment{}, fmt.Errorf("%w: reference %s already recorded", ErrPaymentConflict, reference)
	}
	return existing, nil
}

// normaliseReference trims a gateway reference and rejects values that cannot key a payment record.
func normaliseReference(raw string) (string, error) {
	reference := strings.TrimSpace(raw)
	switch {
	case reference == "":
		return "", fmt.Errorf("%w: reference is required", ErrPaymentInvalidInput)
	case reference == "." || reference == "..", strings.Contains(reference, "/"), strings.HasPrefix(reference, "__"):
		return "", fmt.Errorf("%w: reference %q is malformed", ErrPaymentInvalidInput, reference)
	}
	return reference, nil
}

func (s *paymentService) gatewayFailure(pc payments.PaymentContext, op, reference string, err error) error {
	provider, _ := s.gateway.Resolve(pc)
	gwErr := &GatewayError{Provider: provider, Reference: reference, Err: err}
	outcome := gatewayOutcomeFailure

	var providerErr *payments.ProviderError
	if errors.As(err, &providerErr) {
		if providerErr.Provider != "" {
			gwErr.Provider = providerErr.Provider
		}
		gwErr.Response = providerErr.Body
		if providerErr.Timeout() {
			outcome = gatewayOutcomeTimeout
		}
	}
	if errors.Is(err, payments.ErrUnsupportedProvider) {
		return fmt.Errorf("%w: %v", ErrPaymentInvalidInput, err)
	}
	s.metrics.GatewayCall(gwErr.Provider, op, outcome)
	return gwErr
}

func (s *paymentService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrPaymentNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrPaymentConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("payment: repository unavailable: %w", err)
		}
	}

	return err
}

func (s *paymentService) currencyOrDefault(currency string) string {
	if trimmed := strings.ToUpper(strings.TrimSpace(currency)); trimmed != "" {
		return trimmed
	}
	return s.currency
}

func (s *paymentService) now() time.Time {
	return s.clock()
}

func parsePaymentStatus(raw string) (PaymentStatus, bool) {
	normalised := strings.ToLower(strings.TrimSpace(raw))
	for _, status := range paymentStatuses {
		if normalised == string(status) {
			return status, true
		}
	}
	return "", false
}
