package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/Prince-Affedzie/Freshy-Food-Backend/internal/platform/auth"
	"github.com/Prince-Affedzie/Freshy-Food-Backend/internal/platform/httpx"
	"github.com/Prince-Affedzie/Freshy-Food-Backend/internal/services"
)

const maxCancelBodySize = 4 * 1024

type createOrderItemRequest struct {
	ProductID string `json:"productId"`
	Product   string `json:"product"`
	Quantity  int    `json:"quantity"`
	Unit      string `json:"unit"`
	Name      string `json:"name"`
}

type createOrderRequest struct {
	Items            []createOrderItemRequest `json:"orderItems"`
	ShippingAddress  shippingAddressPayload   `json:"shippingAddress"`
	DeliverySchedule deliverySchedulePayload  `json:"deliverySchedule"`
	DeliveryNote     string                   `json:"deliveryNote"`
	PaymentMethod    string                   `json:"paymentMethod"`
	PaymentID        string                   `json:"paymentId"`
	Package          *packagePayload          `json:"package"`
}

type cancelOrderRequest struct {
	Reason string `json:"reason"`
}

// OrderHandlers serves the customer facing order endpoints.
type OrderHandlers struct {
	authn       *auth.Authenticator
	orders      services.OrderService
	idempotency func(http.Handler) http.Handler
}

// NewOrderHandlers constructs order handlers. idempotency wraps checkout and may be nil.
func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderService, idempotency func(http.Handler) http.Handler) *OrderHandlers {
	return &OrderHandlers{
		authn:       authn,
		orders:      orders,
		idempotency: idempotency,
	}
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireCustomer())
	}
	if h.idempotency != nil {
		r.With(h.idempotency).Post("/", h.createOrder)
	} else {
		r.Post("/", h.createOrder)
	}
	r.Get("/", h.listMyOrders)
	r.Get("/{orderID}", h.getOrder)
	r.Post("/{orderID}:cancel", h.cancelOrder)
}

func (h *OrderHandlers) createOrder(w http.ResponseWriter, r *http.Request) {
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

	var req createOrderRequest
	if err := decodeJSONBody(r, maxBodySize, &req, false); err != nil {
		writeBadRequest(ctx, w, err.Error())
		return
	}

	items := make([]services.CreateOrderItem, 0, len(req.Items))
	for _, item := range req.Items {
		productID := strings.TrimSpace(item.ProductID)
		if productID == "" {
			productID = strings.TrimSpace(item.Product)
		}
		items = append(items, services.CreateOrderItem{
			ProductID: productID,
			Quantity:  item.Quantity,
			Unit:      strings.TrimSpace(item.Unit),
		})
	}

	cmd := services.CreateOrderCommand{
		UserID:          identity.UserID,
		Items:           items,
		ShippingAddress: req.ShippingAddress.toDomain(),
		DeliverySchedule: services.DeliverySchedule{
			PreferredDay:  strings.TrimSpace(req.DeliverySchedule.PreferredDay),
			PreferredTime: strings.TrimSpace(req.DeliverySchedule.PreferredTime),
		},
		DeliveryNote:  req.DeliveryNote,
		PaymentMethod: strings.TrimSpace(req.PaymentMethod),
		PaymentID:     strings.TrimSpace(req.PaymentID),
	}
	if req.Package != nil && strings.TrimSpace(req.Package.ID) != "" {
		cmd.Package = &services.OrderPackage{
			ID:         strings.TrimSpace(req.Package.ID),
			Name:       strings.TrimSpace(req.Package.Name),
			BasePrice:  req.Package.BasePrice,
			ValuePrice: req.Package.ValuePrice,
		}
	}

	order, err := h.orders.CreateOrder(ctx, cmd)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) listMyOrders(w http.ResponseWriter, r *http.Request) {
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
	pagination, err := parsePagination(r)
	if err != nil {
		writeBadRequest(ctx, w, err.Error())
		return
	}

	query := r.URL.Query()
	result, err := h.orders.ListMyOrders(ctx, services.MyOrdersFilter{
		UserID:     identity.UserID,
		Status:     strings.TrimSpace(query.Get("status")),
		Sort:       strings.TrimSpace(query.Get("sort")),
		Pagination: pagination,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, orderListResponse{
		Items:         buildOrderList(result.Page.Items),
		NextPageToken: strings.TrimSpace(result.Page.NextPageToken),
		Stats:         buildOrderStats(result.Stats),
	})
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
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
	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		writeBadRequest(ctx, w, "order id is required")
		return
	}

	detail, err := h.orders.GetOrder(ctx, services.GetOrderQuery{
		OrderID:     orderID,
		RequesterID: identity.UserID,
		IsAdmin:     identity.IsAdmin(),
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

func (h *OrderHandlers) cancelOrder(w http.ResponseWriter, r *http.Request) {
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
	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		writeBadRequest(ctx, w, "order id is required")
		return
	}

	var req cancelOrderRequest
	if err := decodeJSONBody(r, maxCancelBodySize, &req, true); err != nil {
		writeBadRequest(ctx, w, err.Error())
		return
	}

	order, err := h.orders.CancelOrder(ctx, services.CancelOrderCommand{
		OrderID:     orderID,
		RequesterID: identity.UserID,
		Reason:      req.Reason,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}
