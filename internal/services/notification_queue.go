package services

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"
)

const (
	defaultQueueBuffer  = 256
	defaultQueueWorkers = 4
)

var (
	// ErrNotificationQueueFull indicates the in-process buffer is saturated and the job was dropped.
	ErrNotificationQueueFull = errors.New("notification: queue full")
	// ErrNotificationQueueClosed indicates the queue no longer accepts jobs.
	ErrNotificationQueueClosed = errors.New("notification: queue closed")
	// ErrNotificationUnknownJob indicates a job type the deliverer cannot render.
	ErrNotificationUnknownJob = errors.New("notification: unknown job type")
)

// ChannelQueueConfig configures an in-process notification queue.
type ChannelQueueConfig struct {
	BufferSize int
	Workers    int
	Deliverer  NotificationDeliverer
	Logger     func(ctx context.Context, event string, fields map[string]any)
}

// ChannelQueue buffers notification jobs in memory and delivers them from a fixed worker pool.
type ChannelQueue struct {
	jobs      chan NotificationJob
	workers   int
	deliverer NotificationDeliverer
	logger    func(context.Context, string, map[string]any)

	mu     sync.RWMutex
	closed bool
}

// NewChannelQueue constructs a ChannelQueue. Call Run to start delivering.
func NewChannelQueue(cfg ChannelQueueConfig) (*ChannelQueue, error) {
	if cfg.Deliverer == nil {
		return nil, errors.New("notification queue: deliverer is required")
	}
	buffer := cfg.BufferSize
	if buffer <= 0 {
		buffer = defaultQueueBuffer
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = defaultQueueWorkers
	}
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &ChannelQueue{
		jobs:      make(chan NotificationJob, buffer),
		workers:   workers,
		deliverer: cfg.Deliverer,
		logger:    logger,
	}, nil
}

// Enqueue never blocks: when the buffer is full the job is dropped and logged.
func (q *ChannelQueue) Enqueue(ctx context.Context, job NotificationJob) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrNotificationQueueClosed
	}
	select {
	case q.jobs <- job:
		return nil
	default:
		q.logger(ctx, "notification.queue_full", map[string]any{
			"type":    string(job.Type),
			"orderId": job.OrderID,
		})
		return ErrNotificationQueueFull
	}
}

// Run delivers jobs until ctx is cancelled or Close has been called and the buffer drained.
func (q *ChannelQueue) Run(ctx context.Context) error {
	group, groupCtx := errgroup.WithContext(ctx)
	for i := 0; i < q.workers; i++ {
		group.Go(func() error {
			for {
				select {
				case <-groupCtx.Done():
					return nil
				case job, ok := <-q.jobs:
					if !ok {
						return nil
					}
					q.deliver(groupCtx, job)
				}
			}
		})
	}
	return group.Wait()
}

// Close stops accepting jobs. Jobs already buffered are still delivered by Run.
func (q *ChannelQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.jobs)
}

func (q *ChannelQueue) deliver(ctx context.Context, job NotificationJob) {
	defer func() {
		if rec := recover(); rec != nil {
			q.logger(ctx, "notification.deliver_panic", map[string]any{
				"type":    string(job.Type),
				"orderId": job.OrderID,
				"panic":   rec,
			})
		}
	}()
	if err := q.deliverer.Deliver(ctx, job); err != nil {
		q.logger(ctx, "notification.deliver_failed", map[string]any{
			"type":    string(job.Type),
			"orderId": job.OrderID,
			"error":   err.Error(),
		})
	}
}
