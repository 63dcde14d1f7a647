package handlers

import (
	"strings"

	"github.com/Prince-Affedzie/Freshy-Food-Backend/internal/services"
)

type orderItemPayload struct {
	ProductID string `json:"productId"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	Unit      string `json:"unit"`
	Image     string `json:"image,omitempty"`
	Price     int64  `json:"price"`
	LineTotal int64  `json:"lineTotal"`
}

type shippingAddressPayload struct {
	Address         string `json:"address"`
	City            string `json:"city"`
	Region          string `json:"region,omitempty"`
	NearestLandmark string `json:"nearestLandmark,omitempty"`
	Phone           string `json:"phone"`
}

type deliverySchedulePayload struct {
	PreferredDay  string `json:"preferredDay,omitempty"`
	PreferredTime string `json:"preferredTime,omitempty"`
}

type packagePayload struct {
	ID         string `json:"id"`
	Name       string `json:"name,omitempty"`
	BasePrice  int64  `json:"basePrice,omitempty"`
	ValuePrice int64  `json:"valuePrice,omitempty"`
}

type statusHistoryPayload struct {
	Status    string `json:"status"`
	ChangedAt string `json:"changedAt"`
	ChangedBy string `json:"changedBy,omitempty"`
	Notes     string `json:"notes,omitempty"`
}

type timelineStepPayload struct {
	Label       string  `json:"label"`
	Description string  `json:"description,omitempty"`
	Completed   bool    `json:"completed"`
	At          *string `json:"at,omitempty"`
}

type orderPayload struct {
	ID                 string                  `json:"id"`
	OrderNumber        string                  `json:"orderNumber"`
	UserID             string                  `json:"userId"`
	PaymentID          string                  `json:"paymentId,omitempty"`
	Items              []orderItemPayload      `json:"orderItems"`
	ShippingAddress    shippingAddressPayload  `json:"shippingAddress"`
	DeliverySchedule   deliverySchedulePayload `json:"deliverySchedule"`
	DeliveryNote       string                  `json:"deliveryNote,omitempty"`
	Package            *packagePayload         `json:"package,omitempty"`
	PaymentMethod      string                  `json:"paymentMethod"`
	PaymentDetails     map[string]any          `json:"paymentDetails,omitempty"`
	Currency           string                  `json:"currency"`
	ItemsPrice         int64                   `json:"itemsPrice"`
	DeliveryFee        int64                   `json:"deliveryFee"`
	TotalPrice         int64                   `json:"totalPrice"`
	IsPaid             bool                    `json:"isPaid"`
	PaidAt             *string                 `json:"paidAt,omitempty"`
	IsDelivered        bool                    `json:"isDelivered"`
	DeliveredAt        *string                 `json:"deliveredAt,omitempty"`
	Status             string                  `json:"status"`
	StatusHistory      []statusHistoryPayload  `json:"statusHistory"`
	CancelledAt        *string                 `json:"cancelledAt,omitempty"`
	CancellationReason string                  `json:"cancellationReason,omitempty"`
	CancelledBy        string                  `json:"cancelledBy,omitempty"`
	CreatedAt          string                  `json:"createdAt"`
	UpdatedAt          string                  `json:"updatedAt,omitempty"`
}

type orderResponse struct {
	Order    orderPayload          `json:"order"`
	Timeline []timelineStepPayload `json:"timeline,omitempty"`
}

type orderListResponse struct {
	Items         []orderPayload  `json:"items"`
	NextPageToken string          `json:"nextPageToken,omitempty"`
	Stats         *orderStatsBody `json:"stats,omitempty"`
}

type orderStatsBody struct {
	Total      int            `json:"total"`
	TotalSpent int64          `json:"totalSpent"`
	ByStatus   map[string]int `json:"byStatus"`
}

type paymentPayload struct {
	ID                string  `json:"id"`
	OrderID           string  `json:"orderId,omitempty"`
	UserID            string  `json:"userId"`
	Amount            int64   `json:"amount"`
	Currency          string  `json:"currency"`
	Status            string  `json:"status"`
	Provider          string  `json:"provider"`
	TransactionRef    string  `json:"transactionRef"`
	PaymentMethod     string  `json:"paymentMethod,omitempty"`
	PaymentChannel    string  `json:"paymentChannel,omitempty"`
	MobileMoneyNumber string  `json:"mobileMoneyNumber,omitempty"`
	GatewayAmount     int64   `json:"gatewayAmount,omitempty"`
	RefundedAt        *string `json:"refundedAt,omitempty"`
	CreatedAt         string  `json:"createdAt"`
	UpdatedAt         string  `json:"updatedAt,omitempty"`
}

type paymentResponse struct {
	Payment paymentPayload `json:"payment"`
}

type paymentListResponse struct {
	Items         []paymentPayload `json:"items"`
	NextPageToken string           `json:"nextPageToken,omitempty"`
}

func buildOrderPayload(order services.Order) orderPayload {
	items := make([]orderItemPayload, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemPayload{
			ProductID: item.ProductID,
			Name:      item.Name,
			Quantity:  item.Quantity,
			Unit:      item.Unit,
			Image:     item.Image,
			Price:     item.Price,
			LineTotal: item.LineTotal(),
		})
	}

	history := make([]statusHistoryPayload, 0, len(order.StatusHistory))
	for _, entry := range order.StatusHistory {
		history = append(history, statusHistoryPayload{
			Status:    string(entry.Status),
			ChangedAt: formatTime(entry.ChangedAt),
			ChangedBy: entry.ChangedBy,
			Notes:     entry.Notes,
		})
	}

	payload := orderPayload{
		ID:          order.ID,
		OrderNumber: order.OrderNumber,
		UserID:      order.UserID,
		PaymentID:   order.PaymentID,
		Items:       items,
		ShippingAddress: shippingAddressPayload{
			Address:         order.ShippingAddress.Address,
			City:            order.ShippingAddress.City,
			Region:          order.ShippingAddress.Region,
			NearestLandmark: order.ShippingAddress.NearestLandmark,
			Phone:           order.ShippingAddress.Phone,
		},
		DeliverySchedule: deliverySchedulePayload{
			PreferredDay:  order.DeliverySchedule.PreferredDay,
			PreferredTime: order.DeliverySchedule.PreferredTime,
		},
		DeliveryNote:       order.DeliveryNote,
		PaymentMethod:      order.PaymentMethod,
		PaymentDetails:     order.PaymentDetails,
		Currency:           order.Currency,
		ItemsPrice:         order.ItemsPrice,
		DeliveryFee:        order.DeliveryFee,
		TotalPrice:         order.TotalPrice,
		IsPaid:             order.IsPaid,
		PaidAt:             formatTimePtr(order.PaidAt),
		IsDelivered:        order.IsDelivered,
		DeliveredAt:        formatTimePtr(order.DeliveredAt),
		Status:             string(order.Status),
		StatusHistory:      history,
		CancelledAt:        formatTimePtr(order.CancelledAt),
		CancellationReason: order.CancellationReason,
		CancelledBy:        order.CancelledBy,
		CreatedAt:          formatTime(order.CreatedAt),
		UpdatedAt:          formatTime(order.UpdatedAt),
	}
	if order.Package != nil {
		payload.Package = &packagePayload{
			ID:         order.Package.ID,
			Name:       order.Package.Name,
			BasePrice:  order.Package.BasePrice,
			ValuePrice: order.Package.ValuePrice,
		}
	}
	return payload
}

func buildTimelinePayload(steps []services.OrderTimelineStep) []timelineStepPayload {
	if len(steps) == 0 {
		return nil
	}
	out := make([]timelineStepPayload, 0, len(steps))
	for _, step := range steps {
		out = append(out, timelineStepPayload{
			Label:       step.Label,
			Description: step.Description,
			Completed:   step.Completed,
			At:          formatTimePtr(step.At),
		})
	}
	return out
}

func buildOrderList(orders []services.Order) []orderPayload {
	items := make([]orderPayload, 0, len(orders))
	for _, order := range orders {
		items = append(items, buildOrderPayload(order))
	}
	return items
}

func buildOrderStats(stats services.OrderStats) *orderStatsBody {
	byStatus := make(map[string]int, len(stats.ByStatus))
	for status, count := range stats.ByStatus {
		byStatus[string(status)] = count
	}
	return &orderStatsBody{
		Total:      stats.Total,
		TotalSpent: stats.TotalSpent,
		ByStatus:   byStatus,
	}
}

func buildPaymentPayload(payment services.Payment) paymentPayload {
	return paymentPayload{
		ID:                payment.ID,
		OrderID:           payment.OrderID,
		UserID:            payment.UserID,
		Amount:            payment.Amount,
		Currency:          payment.Currency,
		Status:            string(payment.Status),
		Provider:          payment.Provider,
		TransactionRef:    payment.TransactionRef,
		PaymentMethod:     payment.PaymentMethod,
		PaymentChannel:    payment.PaymentChannel,
		MobileMoneyNumber: payment.MobileMoneyNumber,
		GatewayAmount:     payment.GatewayAmount,
		RefundedAt:        formatTimePtr(payment.RefundedAt),
		CreatedAt:         formatTime(payment.CreatedAt),
		UpdatedAt:         formatTime(payment.UpdatedAt),
	}
}

func buildPaymentList(payments []services.Payment) []paymentPayload {
	items := make([]paymentPayload, 0, len(payments))
	for _, payment := range payments {
		items = append(items, buildPaymentPayload(payment))
	}
	return items
}

func (p shippingAddressPayload) toDomain() services.ShippingAddress {
	return services.ShippingAddress{
		Address:         strings.TrimSpace(p.Address),
		City:            strings.TrimSpace(p.City),
		Region:          strings.TrimSpace(p.Region),
		NearestLandmark: strings.TrimSpace(p.NearestLandmark),
		Phone:           strings.TrimSpace(p.Phone),
	}
}
