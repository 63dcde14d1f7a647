package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/Prince-Affedzie/Freshy-Food-Backend/internal/platform/auth"
	"github.com/Prince-Affedzie/Freshy-Food-Backend/internal/platform/httpx"
	"github.com/Prince-Affedzie/Freshy-Food-Backend/internal/services"
)

type updateOrderStatusRequest struct {
	Status string `json:"status"`
	Notes  string `json:"notes"`
}

type markOrderPaidRequest struct {
	PaymentDetails map[string]any `json:"paymentDetails"`
}

type updatePaymentStatusRequest struct {
	Status string `json:"status"`
}

type refundPaymentRequest struct {
	Reason string `json:"reason"`
}

// AdminHandlers serves the operator endpoints under /admin.
type AdminHandlers struct {
	authn    *auth.Authenticator
	orders   services.OrderService
	payments services.PaymentService
}

// NewAdminHandlers constructs admin handlers.
func NewAdminHandlers(authn *auth.Authenticator, orders services.OrderService, payments services.PaymentService) *AdminHandlers {
	return &AdminHandlers{
		authn:    authn,
		orders:   orders,
		payments: payments,
	}
}

// Routes registers the /admin endpoints.
func (h *AdminHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireAdmin())
	}
	r.Get("/orders", h.listOrders)
	r.Get("/orders/{orderID}", h.getOrder)
	r.Put("/orders/{orderID}/status", h.updateOrderStatus)
	r.Post("/orders/{orderID}:mark-paid", h.markOrderPaid)
	r.Post("/orders/{orderID}:mark-delivered", h.markOrderDelivered)

	r.Get("/payments", h.listPayments)
	r.Get("/payments/{paymentID}", h.getPayment)
	r.Put("/payments/{paymentID}/status", h.updatePaymentStatus)
	r.Post("/payments/{reference}:refund", h.refundPayment)
}

func (h *AdminHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeServiceUnavailable(ctx, w, "order")
		return
	}
	pagination, err := parsePagination(r)
	if err != nil {
		writeBadRequest(ctx, w, err.Error())
		return
	}

	query := r.URL.Query()
	filter := services.AdminOrdersFilter{
		UserID:     strings.TrimSpace(query.Get("user_id")),
		Status:     parseFilterValues(query["status"]),
		Sort:       strings.TrimSpace(query.Get("sort")),
		Pagination: pagination,
	}
	if filter.IsPaid, err = parseBoolParam(query.Get("is_paid")); err != nil {
		writeBadRequest(ctx, w, "is_paid "+err.Error())
		return
	}
	if filter.IsDelivered, err = parseBoolParam(query.Get("is_delivered")); err != nil {
		writeBadRequest(ctx, w, "is_delivered "+err.Error())
		return
	}
	if filter.From, err = parseTimeParam(query.Get("created_after")); err != nil {
		writeBadRequest(ctx, w, "created_after "+err.Error())
		return
	}
	if filter.To, err = parseTimeParam(query.Get("created_before")); err != nil {
		writeBadRequest(ctx, w, "created_before "+err.Error())
		return
	}

	page, err := h.orders.ListOrders(ctx, filter)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, orderListResponse{
		Items:         buildOrderList(page.Items),
		NextPageToken: strings.TrimSpace(page.NextPageToken),
	})
}

func (h *AdminHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeServiceUnavailable(ctx, w, "order")
		return
	}
	identity, ok := requireIdentity(r)
	if !ok {
		writeUnauthenticated(ctx, w)
		return
	}
	detail, err := h.orders.GetOrder(ctx, services.GetOrderQuery{
		OrderID:     strings.TrimSpace(chi.URLParam(r, "orderID")),
		RequesterID: identity.UserID,
		IsAdmin:     true,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, orderResponse{
		Order:    buildOrderPayload(detail.Order),
		Timeline: buildTimelinePayload(detail.Timeline),
	})
}

func (h *AdminHandlers) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeServiceUnavailable(ctx, w, "order")
		return
	}
	identity, ok := requireIdentity(r)
	if !ok {
		writeUnauthenticated(ctx, w)
		return
	}
	var req updateOrderStatusRequest
	if err := decodeJSONBody(r, maxCancelBodySize, &req, false); err != nil {
		writeBadRequest(ctx, w, err.Error())
		return
	}

	order, err := h.orders.UpdateOrderStatus(ctx, services.UpdateOrderStatusCommand{
		OrderID: strings.TrimSpace(chi.URLParam(r, "orderID")),
		Status:  strings.TrimSpace(req.Status),
		ActorID: identity.UserID,
		Notes:   req.Notes,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *AdminHandlers) markOrderPaid(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeServiceUnavailable(ctx, w, "order")
		return
	}
	identity, ok := requireIdentity(r)
	if !ok {
		writeUnauthenticated(ctx, w)
		return
	}
	var req markOrderPaidRequest
	if err := decodeJSONBody(r, maxCancelBodySize, &req, true); err != nil {
		writeBadRequest(ctx, w, err.Error())
		return
	}

	order, err := h.orders.MarkOrderPaid(ctx, services.MarkOrderPaidCommand{
		OrderID:        strings.TrimSpace(chi.URLParam(r, "orderID")),
		ActorID:        identity.UserID,
		PaymentDetails: req.PaymentDetails,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *AdminHandlers) markOrderDelivered(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeServiceUnavailable(ctx, w, "order")
		return
	}
	identity, ok := requireIdentity(r)
	if !ok {
		writeUnauthenticated(ctx, w)
		return
	}

	order, err := h.orders.MarkOrderDelivered(ctx, services.MarkOrderDeliveredCommand{
		OrderID: strings.TrimSpace(chi.URLParam(r, "orderID")),
		ActorID: identity.UserID,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *AdminHandlers) listPayments(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		writeServiceUnavailable(ctx, w, "payment")
		return
	}
	pagination, err := parsePagination(r)
	if err != nil {
		writeBadRequest(ctx, w, err.Error())
		return
	}

	query := r.URL.Query()
	filter := services.PaymentListFilter{
		UserID:     strings.TrimSpace(query.Get("user_id")),
		Status:     parseFilterValues(query["status"]),
		Method:     strings.TrimSpace(query.Get("method")),
		Pagination: pagination,
	}
	if filter.From, err = parseTimeParam(query.Get("created_after")); err != nil {
		writeBadRequest(ctx, w, "created_after "+err.Error())
		return
	}
	if filter.To, err = parseTimeParam(query.Get("created_before")); err != nil {
		writeBadRequest(ctx, w, "created_before "+err.Error())
		return
	}

	page, err := h.payments.ListPayments(ctx, filter)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, paymentListResponse{
		Items:         buildPaymentList(page.Items),
		NextPageToken: strings.TrimSpace(page.NextPageToken),
	})
}

func (h *AdminHandlers) getPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		writeServiceUnavailable(ctx, w, "payment")
		return
	}
	payment, err := h.payments.GetPayment(ctx, strings.TrimSpace(chi.URLParam(r, "paymentID")))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, paymentResponse{Payment: buildPaymentPayload(payment)})
}

func (h *AdminHandlers) updatePaymentStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		writeServiceUnavailable(ctx, w, "payment")
		return
	}
	identity, ok := requireIdentity(r)
	if !ok {
		writeUnauthenticated(ctx, w)
		return
	}
	var req updatePaymentStatusRequest
	if err := decodeJSONBody(r, maxCancelBodySize, &req, false); err != nil {
		writeBadRequest(ctx, w, err.Error())
		return
	}

	payment, err := h.payments.UpdatePaymentStatus(ctx, services.UpdatePaymentStatusCommand{
		PaymentID: strings.TrimSpace(chi.URLParam(r, "paymentID")),
		Status:    strings.TrimSpace(req.Status),
		ActorID:   identity.UserID,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, paymentResponse{Payment: buildPaymentPayload(payment)})
}

func (h *AdminHandlers) refundPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		writeServiceUnavailable(ctx, w, "payment")
		return
	}
	identity, ok := requireIdentity(r)
	if !ok {
		writeUnauthenticated(ctx, w)
		return
	}
	var req refundPaymentRequest
	if err := decodeJSONBody(r, maxCancelBodySize, &req, true); err != nil {
		writeBadRequest(ctx, w, err.Error())
		return
	}

	payment, err := h.payments.RefundPayment(ctx, services.RefundPaymentCommand{
		Reference: strings.TrimSpace(chi.URLParam(r, "reference")),
		ActorID:   identity.UserID,
		Reason:    req.Reason,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, paymentResponse{Payment: buildPaymentPayload(payment)})
}
