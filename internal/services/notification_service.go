package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/Prince-Affedzie/Freshy-Food-Backend/internal/domain"
	"github.com/Prince-Affedzie/Freshy-Food-Backend/internal/repositories"
)

const (
	notificationChannelInbox    = "inbox"
	notificationChannelRealtime = "realtime"
	notificationChannelPush     = "push"

	notificationOutcomeDelivered = "delivered"
	notificationOutcomeDuplicate = "duplicate"
	notificationOutcomeFailed    = "failed"

	shortOrderChars = 6
)

var statusMessages = map[OrderStatus]string{
	domain.OrderStatusPending:        "🕒 Your order is pending confirmation.",
	domain.OrderStatusProcessing:     "👨‍🍳 Your order is being prepared.",
	domain.OrderStatusOutForDelivery: "🚚 Your order is on the way!",
	domain.OrderStatusDelivered:      "✅ Your order has been delivered. Enjoy!",
	domain.OrderStatusCancelled:      "❌ Your order has been cancelled.",
}

// RealtimeEvent is the live payload pushed on a user's realtime channel.
type RealtimeEvent struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	OrderID   string    `json:"orderId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// RealtimePublisher pushes an event to every live connection of a user.
type RealtimePublisher interface {
	PublishToUser(ctx context.Context, userID string, event RealtimeEvent) error
}

// PushSender delivers a device push notification.
type PushSender interface {
	Send(ctx context.Context, token, title, message string, data map[string]string) error
}

// NotificationServiceDeps bundles collaborators required to render and deliver notifications.
type NotificationServiceDeps struct {
	Orders      repositories.OrderRepository
	Customers   repositories.CustomerRepository
	Inbox       repositories.NotificationRepository
	Realtime    RealtimePublisher
	Push        PushSender
	Clock       func() time.Time
	IDGenerator func() string
	Metrics     Metrics
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type notificationService struct {
	orders    repositories.OrderRepository
	customers repositories.CustomerRepository
	inbox     repositories.NotificationRepository
	realtime  RealtimePublisher
	push      PushSender
	clock     func() time.Time
	newID     func() string
	metrics   Metrics
	logger    func(context.Context, string, map[string]any)
}

// NewNotificationService wires dependencies into a NotificationDeliverer.
func NewNotificationService(deps NotificationServiceDeps) (NotificationDeliverer, error) {
	if deps.Orders == nil {
		return nil, errors.New("notification service: order repository is required")
	}
	if deps.Customers == nil {
		return nil, errors.New("notification service: customer repository is required")
	}
	if deps.Inbox == nil {
		return nil, errors.New("notification service: notification repository is required")
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

	return &notificationService{
		orders:    deps.Orders,
		customers: deps.Customers,
		inbox:     deps.Inbox,
		realtime:  deps.Realtime,
		push:      deps.Push,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:   idGen,
		metrics: metrics,
		logger:  logger,
	}, nil
}

// Deliver renders the job and hands it to every recipient. Redelivering a job reuses its
// inbox ids, so recipients already reached are skipped. Per-recipient failures are logged and
// counted; an error is returned only when no recipient could be reached.
func (s *notificationService) Deliver(ctx context.Context, job NotificationJob) error {
	orderID := strings.TrimSpace(job.OrderID)
	if orderID == "" {
		return errors.New("notification: job has no order id")
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return fmt.Errorf("notification: load order %s: %w", orderID, err)
	}

	switch job.Type {
	case NotificationJobOrderPlaced:
		customer, err := s.customers.FindByID(ctx, order.UserID)
		if err != nil {
			return fmt.Errorf("notification: load customer %s: %w", order.UserID, err)
		}
		message := fmt.Sprintf("Hi %s, your order #%s has been received and is being processed.", greetingName(customer), shortOrderID(order.ID))
		return s.send(ctx, job, customer, "🛒 Order Confirmed", message, order.ID)

	case NotificationJobAdminNewOrder:
		customer, err := s.customers.FindByID(ctx, order.UserID)
		if err != nil {
			s.logger(ctx, "notification.customer.lookup_failed", map[string]any{
				"orderId": order.ID,
				"userId":  order.UserID,
				"error":   err.Error(),
			})
			customer = Customer{ID: order.UserID, Phone: order.ShippingAddress.Phone}
		}
		admins, err := s.customers.ListAdmins(ctx)
		if err != nil {
			return fmt.Errorf("notification: list admins: %w", err)
		}
		if len(admins) == 0 {
			return nil
		}
		var errs []error
		for _, admin := range admins {
			message := adminNewOrderMessage(admin.Role, order, customer)
			if err := s.send(ctx, job, admin, "📢 New Order", message, order.ID); err != nil {
				errs = append(errs, err)
			}
		}
		if len(errs) < len(admins) {
			return nil
		}
		return errors.Join(errs...)

	case NotificationJobStatusChanged:
		customer, err := s.customers.FindByID(ctx, order.UserID)
		if err != nil {
			return fmt.Errorf("notification: load customer %s: %w", order.UserID, err)
		}
		status := order.Status
		if parsed, ok := parseOrderStatus(job.Status); ok {
			status = parsed
		}
		message := fmt.Sprintf("Order #%s\n\n%s", shortOrderID(order.ID), statusChangedMessage(order, status))
		return s.send(ctx, job, customer, "📦 Order Status Updated", message, order.ID)

	default:
		return fmt.Errorf("%w %q", ErrNotificationUnknownJob, job.Type)
	}
}

// send delivers to each channel independently. It returns an error only when no channel
// reached the recipient. An inbox id that already exists means an earlier attempt delivered
// this job, and nothing is sent again.
func (s *notificationService) send(ctx context.Context, job NotificationJob, recipient Customer, title, message, orderID string) error {
	now := s.now()
	notification := Notification{
		ID:        s.notificationID(job, recipient.ID),
		UserID:    recipient.ID,
		Title:     title,
		Message:   message,
		CreatedAt: now,
	}

	var errs []error
	delivered := false
	err := s.inbox.Insert(ctx, notification)
	switch {
	case err == nil:
		delivered = true
		s.metrics.NotificationDelivered(notificationChannelInbox, notificationOutcomeDelivered)
	case isRepositoryConflict(err):
		s.metrics.NotificationDelivered(notificationChannelInbox, notificationOutcomeDuplicate)
		s.logger(ctx, "notification.duplicate_skipped", map[string]any{
			"notificationId": notification.ID,
			"userId":         recipient.ID,
			"orderId":        orderID,
		})
		return nil
	default:
		errs = append(errs, s.recordFailure(ctx, notificationChannelInbox, recipient.ID, orderID, err))
	}

	if s.realtime != nil {
		event := RealtimeEvent{
			ID:        notification.ID,
			Title:     title,
			Message:   message,
			OrderID:   orderID,
			CreatedAt: now,
		}
		if err := s.realtime.PublishToUser(ctx, recipient.ID, event); err != nil {
			errs = append(errs, s.recordFailure(ctx, notificationChannelRealtime, recipient.ID, orderID, err))
		} else {
			delivered = true
			s.metrics.NotificationDelivered(notificationChannelRealtime, notificationOutcomeDelivered)
		}
	}

	if token := strings.TrimSpace(recipient.PushToken); token != "" && s.push != nil {
		data := map[string]string{"orderId": orderID, "notificationId": notification.ID}
		if err := s.push.Send(ctx, token, title, message, data); err != nil {
			errs = append(errs, s.recordFailure(ctx, notificationChannelPush, recipient.ID, orderID, err))
		} else {
			delivered = true
			s.metrics.NotificationDelivered(notificationChannelPush, notificationOutcomeDelivered)
		}
	}
	if delivered {
		return nil
	}
	return errors.Join(errs...)
}

// notificationID is stable per job and recipient so a redelivered job maps to the same inbox document.
func (s *notificationService) notificationID(job NotificationJob, userID string) string {
	jobID := strings.TrimSpace(job.ID)
	if jobID == "" {
		return s.newID()
	}
	return jobID + "-" + strings.TrimSpace(userID)
}

func (s *notificationService) recordFailure(ctx context.Context, channel, userID, orderID string, err error) error {
	s.metrics.NotificationDelivered(channel, notificationOutcomeFailed)
	s.logger(ctx, "notification.delivery_failed", map[string]any{
		"channel": channel,
		"userId":  userID,
		"orderId": orderID,
		"error":   err.Error(),
	})
	return fmt.Errorf("notification %s to %s: %w", channel, userID, err)
}

func (s *notificationService) now() time.Time {
	return s.clock()
}

func adminNewOrderMessage(role string, order Order, customer Customer) string {
	switch strings.ToLower(strings.TrimSpace(role)) {
	case "superadmin":
		phone := customer.Phone
		if phone == "" {
			phone = order.ShippingAddress.Phone
		}
		return fmt.Sprintf("New order placed by %s (%s). Total Ghc%s", greetingName(customer), phone, formatAmount(order.TotalPrice))
	case "manager":
		return fmt.Sprintf("New customer order received. Order ID: %s", shortOrderID(order.ID))
	default:
		return "New order received."
	}
}

func statusChangedMessage(order Order, status OrderStatus) string {
	if message, ok := statusMessages[status]; ok {
		return message
	}
	return fmt.Sprintf("Your order #%s status has been updated to %s.", shortOrderID(order.ID), status)
}

func greetingName(customer Customer) string {
	if name := strings.TrimSpace(customer.FirstName); name != "" {
		return name
	}
	return "there"
}

func shortOrderID(id string) string {
	return strings.ToUpper(lastN(id, shortOrderChars))
}

// formatAmount renders pesewas as cedis with two decimals.
func formatAmount(minor int64) string {
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	return fmt.Sprintf("%s%d.%02d", sign, minor/100, minor%100)
}
