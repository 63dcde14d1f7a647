package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/Prince-Affedzie/Freshy-Food-Backend/internal/platform/httpx"
	"github.com/Prince-Affedzie/Freshy-Food-Backend/internal/platform/requestctx"
	"github.com/Prince-Affedzie/Freshy-Food-Backend/internal/services"
)

// writeServiceError maps service sentinels onto the JSON error envelope.
func writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}

	var stockErr *services.OutOfStockError
	if errors.As(err, &stockErr) {
		items := stockErr.Items
		if items == nil {
			items = []services.OutOfStockItem{}
		}
		httpx.WriteError(ctx, w, httpx.NewError("out_of_stock", "some items are out of stock", http.StatusConflict).
			WithDetails(map[string]any{"out_of_stock_items": items}))
		return
	}

	var gatewayErr *services.GatewayError
	if errors.As(err, &gatewayErr) {
		requestctx.Logger(ctx).Warn("payment gateway error",
			zap.String("provider", gatewayErr.Provider),
			zap.String("reference", gatewayErr.Reference),
			zap.String("gateway_status", gatewayErr.Status),
			zap.Error(err),
		)
		httpxErr := httpx.NewError("payment_gateway_error", "payment gateway request failed", http.StatusBadGateway)
		if raw := gatewayResponse(gatewayErr.Response); raw != nil {
			httpxErr = httpxErr.WithDetails(map[string]any{"gateway_response": raw})
		}
		httpx.WriteError(ctx, w, httpxErr)
		return
	}

	switch {
	case errors.Is(err, services.ErrOrderInvalidInput),
		errors.Is(err, services.ErrPaymentInvalidInput),
		errors.Is(err, services.ErrInventoryInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrPaymentNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("payment_not_found", "payment not found", http.StatusNotFound))
	case errors.Is(err, services.ErrInventoryProductNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", "product not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderForbidden):
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", "order belongs to another user", http.StatusForbidden))
	case errors.Is(err, services.ErrOrderInvalidTransition):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_status_transition", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrOrderNotCancellable):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_cancellable", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrOrderAlreadyPaid):
		httpx.WriteError(ctx, w, httpx.NewError("order_already_paid", "order is already paid", http.StatusConflict))
	case errors.Is(err, services.ErrOrderAlreadyDelivered):
		httpx.WriteError(ctx, w, httpx.NewError("order_already_delivered", "order is already delivered", http.StatusConflict))
	case errors.Is(err, services.ErrOrderConflict):
		httpx.WriteError(ctx, w, httpx.NewError("order_conflict", "order already exists", http.StatusConflict))
	case errors.Is(err, services.ErrPaymentNotRefundable):
		httpx.WriteError(ctx, w, httpx.NewError("payment_not_refundable", "only paid payments can be refunded", http.StatusConflict))
	case errors.Is(err, services.ErrPaymentAmountMismatch):
		httpx.WriteError(ctx, w, httpx.NewError("payment_amount_mismatch", err.Error(), http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrPaymentConflict):
		httpx.WriteError(ctx, w, httpx.NewError("payment_conflict", "transaction reference already recorded", http.StatusConflict))
	case errors.Is(err, services.ErrInventoryInsufficientStock):
		httpx.WriteError(ctx, w, httpx.NewError("insufficient_stock", "insufficient stock", http.StatusConflict))
	case errors.Is(err, context.DeadlineExceeded):
		httpx.WriteError(ctx, w, httpx.NewError("timeout", "request timed out", http.StatusGatewayTimeout))
	default:
		requestctx.Logger(ctx).Error("unhandled service error", zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("internal_server_error", "internal server error", http.StatusInternalServerError))
	}
}

// gatewayResponse returns the raw gateway body as JSON when it parses, otherwise as text.
func gatewayResponse(body []byte) any {
	if len(body) == 0 {
		return nil
	}
	if json.Valid(body) {
		return json.RawMessage(body)
	}
	return string(body)
}

func writeBadRequest(ctx context.Context, w http.ResponseWriter, message string) {
	httpx.WriteError(ctx, w, httpx.NewError("invalid_request", message, http.StatusBadRequest))
}

func writeUnauthenticated(ctx context.Context, w http.ResponseWriter) {
	httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
}

func writeServiceUnavailable(ctx context.Context, w http.ResponseWriter, name string) {
	httpx.WriteError(ctx, w, httpx.NewError(name+"_service_unavailable", name+" service unavailable", http.StatusServiceUnavailable))
}
