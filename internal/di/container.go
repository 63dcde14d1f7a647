package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Prince-Affedzie/Freshy-Food-Backend/internal/platform/config"
	"github.com/Prince-Affedzie/Freshy-Food-Backend/internal/repositories"
	"github.com/Prince-Affedzie/Freshy-Food-Backend/internal/services"
)

// EventLogger is the structured event callback every service accepts.
type EventLogger func(ctx context.Context, event string, fields map[string]any)

// Services bundles the service-layer contracts that handlers rely upon.
type Services struct {
	Orders        services.OrderService
	Payments      services.PaymentService
	Inventory     services.InventoryService
	Notifications services.NotificationDeliverer
}

// Dependencies carries the infrastructure built outside the container.
type Dependencies struct {
	Gateway services.PaymentGateway
	// Queue overrides the in-process channel queue, e.g. with the Pub/Sub publisher.
	Queue    services.NotificationQueue
	Realtime services.RealtimePublisher
	Push     services.PushSender
	Metrics  services.Metrics
	Logger   EventLogger
	Clock    func() time.Time
}

// Container wires repositories and services in a fixed order: stores, gateway, deliverer,
// queue, then the lifecycle engine that depends on the queue.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
	Queue        services.NotificationQueue

	local *services.ChannelQueue
}

// NewContainer constructs the runtime dependencies. Tests can supply in-memory registries.
func NewContainer(ctx context.Context, cfg config.Config, reg repositories.Registry, deps Dependencies) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}
	if deps.Gateway == nil {
		return nil, errors.New("payment gateway is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	deliverer, err := services.NewNotificationService(services.NotificationServiceDeps{
		Orders:    reg.Orders(),
		Customers: reg.Customers(),
		Inbox:     reg.Notifications(),
		Realtime:  deps.Realtime,
		Push:      deps.Push,
		Clock:     clock,
		Metrics:   deps.Metrics,
		Logger:    logger,
	})
	if err != nil {
		return nil, fmt.Errorf("notification service: %w", err)
	}

	c := &Container{
		Config:       cfg,
		Repositories: reg,
		Queue:        deps.Queue,
	}
	if c.Queue == nil {
		local, err := services.NewChannelQueue(services.ChannelQueueConfig{
			BufferSize: cfg.Notifications.BufferSize,
			Workers:    cfg.Notifications.Workers,
			Deliverer:  deliverer,
			Logger:     logger,
		})
		if err != nil {
			return nil, fmt.Errorf("notification queue: %w", err)
		}
		c.local = local
		c.Queue = local
	}

	inventory, err := services.NewInventoryService(services.InventoryServiceDeps{
		Inventory: reg.Inventory(),
		Logger:    logger,
	})
	if err != nil {
		return nil, fmt.Errorf("inventory service: %w", err)
	}

	fees := services.DeliveryFeeTable{
		CityFees:            cfg.Delivery.CityFees,
		DefaultFee:          cfg.Delivery.DefaultFee,
		FreeAbove:           cfg.Delivery.FreeAbove,
		SmallOrderBelow:     cfg.Delivery.SmallOrderBelow,
		SmallOrderSurcharge: cfg.Delivery.SmallOrderSurcharge,
	}
	orders, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:        reg.Orders(),
		Payments:      reg.Payments(),
		Products:      reg.Products(),
		Customers:     reg.Customers(),
		Inventory:     inventory,
		Notifications: c.Queue,
		DeliveryFees:  &fees,
		Currency:      cfg.Payments.Currency,
		Clock:         clock,
		Metrics:       deps.Metrics,
		Logger:        logger,
	})
	if err != nil {
		return nil, fmt.Errorf("order service: %w", err)
	}

	payments, err := services.NewPaymentService(services.PaymentServiceDeps{
		Payments:           reg.Payments(),
		Gateway:            deps.Gateway,
		Orders:             orders,
		Currency:           cfg.Payments.Currency,
		TrustClaimedAmount: !cfg.Payments.StrictAmountCheck,
		Clock:              clock,
		Metrics:            deps.Metrics,
		Logger:             logger,
	})
	if err != nil {
		return nil, fmt.Errorf("payment service: %w", err)
	}

	c.Services = Services{
		Orders:        orders,
		Payments:      payments,
		Inventory:     inventory,
		Notifications: deliverer,
	}
	return c, nil
}

// RunWorkers delivers queued notifications until ctx is cancelled or Close drains the queue.
// It returns immediately when notifications go through an external queue.
func (c *Container) RunWorkers(ctx context.Context) error {
	if c == nil || c.local == nil {
		return nil
	}
	return c.local.Run(ctx)
}

// Close stops accepting notification jobs and releases repository clients.
func (c *Container) Close(ctx context.Context) error {
	if c == nil {
		return nil
	}
	if c.local != nil {
		c.local.Close()
	}
	if c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}
