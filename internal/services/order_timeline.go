package services

import (
	"strings"
	"time"

	domain "github.com/Prince-Affedzie/Freshy-Food-Backend/internal/domain"
)

// buildOrderTimeline projects the status history into the steps shown to customers.
func buildOrderTimeline(order Order) []OrderTimelineStep {
	reachedAt := func(status OrderStatus) *time.Time {
		for _, entry := range order.StatusHistory {
			if entry.Status == status {
				at := entry.ChangedAt
				return &at
			}
		}
		return nil
	}

	progress := orderStatusRank[order.Status]
	if order.Status == domain.OrderStatusCancelled {
		progress = 0
		for _, entry := range order.StatusHistory {
			if rank, ok := orderStatusRank[entry.Status]; ok && rank > progress {
				progress = rank
			}
		}
	}

	placedAt := order.CreatedAt
	payment := OrderTimelineStep{
		Label:       "Payment",
		Description: "Awaiting payment",
		Completed:   order.IsPaid,
		At:          order.PaidAt,
	}
	if order.IsPaid {
		payment.Description = "Paid via " + paymentMethodLabel(order.PaymentMethod)
	}

	processing := OrderTimelineStep{
		Label:       "Processing",
		Description: "Preparing your items",
		Completed:   progress >= orderStatusRank[domain.OrderStatusProcessing],
	}
	if processing.Completed {
		processing.At = reachedAt(domain.OrderStatusProcessing)
	}

	outForDelivery := OrderTimelineStep{
		Label:       "Out for Delivery",
		Description: "On the way to your address",
		Completed:   progress >= orderStatusRank[domain.OrderStatusOutForDelivery],
	}
	if outForDelivery.Completed {
		outForDelivery.At = reachedAt(domain.OrderStatusOutForDelivery)
	}

	delivered := OrderTimelineStep{
		Label:       "Delivered",
		Description: "Expected delivery",
		Completed:   order.IsDelivered,
		At:          order.DeliveredAt,
	}
	if order.IsDelivered {
		delivered.Description = "Delivered successfully"
	}

	steps := []OrderTimelineStep{
		{Label: "Order Placed", Description: "Order received and confirmed", Completed: true, At: &placedAt},
		payment,
		processing,
		outForDelivery,
		delivered,
	}

	if order.Status == domain.OrderStatusCancelled {
		description := "Order cancelled"
		if reason := strings.TrimSpace(order.CancellationReason); reason != "" {
			description += ": " + reason
		}
		steps = append(steps, OrderTimelineStep{
			Label:       "Cancelled",
			Description: description,
			Completed:   true,
			At:          order.CancelledAt,
		})
	}
	return steps
}

func paymentMethodLabel(method string) string {
	method = strings.TrimSpace(strings.ReplaceAll(method, "_", " "))
	if method == "" {
		return "online payment"
	}
	return method
}
