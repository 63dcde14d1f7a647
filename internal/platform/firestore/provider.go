package firestore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/Prince-Affedzie/Freshy-Food-Backend/internal/platform/config"
)

const (
	defaultDialTimeout = 10 * time.Second
	defaultTxAttempts  = 5
	defaultTxTimeout   = 15 * time.Second

	envEmulatorHost = "FIRESTORE_EMULATOR_HOST"
	envProjectID    = "GOOGLE_CLOUD_PROJECT"
)

// ErrProviderClosed is returned once Close has run.
var ErrProviderClosed = errors.New("firestore: provider is closed")

// TxFunc runs inside a Firestore transaction and may be retried on contention.
type TxFunc func(ctx context.Context, tx *firestore.Transaction) error

// Provider owns the process-wide Firestore client. The client is dialled on first use so
// the API can start, and report not-ready, while Firestore is unreachable.
type Provider struct {
	cfg         config.FirestoreConfig
	dialTimeout time.Duration
	clientOpts  []option.ClientOption

	mu     sync.Mutex
	client *firestore.Client
	closed bool
}

// ProviderOption customises a Provider.
type ProviderOption func(*Provider)

// WithDialTimeout bounds client creation.
func WithDialTimeout(timeout time.Duration) ProviderOption {
	return func(p *Provider) {
		if timeout > 0 {
			p.dialTimeout = timeout
		}
	}
}

// WithClientOptions adds client options, e.g. an endpoint for tests.
func WithClientOptions(opts ...option.ClientOption) ProviderOption {
	return func(p *Provider) {
		p.clientOpts = append(p.clientOpts, opts...)
	}
}

func NewProvider(cfg config.FirestoreConfig, opts ...ProviderOption) *Provider {
	p := &Provider{cfg: cfg, dialTimeout: defaultDialTimeout}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// Client returns the shared client, creating it on the first call. A failed dial is not cached.
func (p *Provider) Client(ctx context.Context) (*firestore.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrProviderClosed
	}
	if p.client != nil {
		return p.client, nil
	}
	client, err := p.dial(ctx)
	if err != nil {
		return nil, err
	}
	p.client = client
	return client, nil
}

func (p *Provider) dial(ctx context.Context) (*firestore.Client, error) {
	projectID := strings.TrimSpace(p.cfg.ProjectID)
	if projectID == "" {
		projectID = strings.TrimSpace(os.Getenv(envProjectID))
	}
	if projectID == "" {
		return nil, errors.New("firestore: project id is required")
	}

	opts := append([]option.ClientOption(nil), p.clientOpts...)
	if host := p.emulatorHost(); host != "" {
		// The Go client reads the emulator host from the environment.
		if os.Getenv(envEmulatorHost) == "" {
			_ = os.Setenv(envEmulatorHost, host)
		}
		opts = append(opts,
			option.WithEndpoint(host),
			option.WithoutAuthentication(),
			option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
		)
	}

	dialCtx, cancel := context.WithTimeout(ctx, p.dialTimeout)
	defer cancel()
	client, err := firestore.NewClient(dialCtx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("firestore: create client: %w", err)
	}
	return client, nil
}

func (p *Provider) emulatorHost() string {
	if host := strings.TrimSpace(p.cfg.EmulatorHost); host != "" {
		return host
	}
	return strings.TrimSpace(os.Getenv(envEmulatorHost))
}

// RunTransaction runs fn in a read-write transaction with bounded retries and duration.
// Stock adjustments and idempotency reservations rely on it for atomic read-modify-write.
func (p *Provider) RunTransaction(ctx context.Context, fn TxFunc) error {
	if fn == nil {
		return errors.New("firestore: transaction function is nil")
	}
	client, err := p.Client(ctx)
	if err != nil {
		return err
	}

	txCtx := ctx
	if deadline, ok := ctx.Deadline(); !ok || time.Until(deadline) > defaultTxTimeout {
		var cancel context.CancelFunc
		txCtx, cancel = context.WithTimeout(ctx, defaultTxTimeout)
		defer cancel()
	}
	err = client.RunTransaction(txCtx, func(ctx context.Context, tx *firestore.Transaction) error {
		return fn(ctx, tx)
	}, firestore.MaxAttempts(defaultTxAttempts))
	return WrapError("transaction", err)
}

// Ping lists one collection to confirm the backend answers. Used by the readiness check.
func (p *Provider) Ping(ctx context.Context) error {
	client, err := p.Client(ctx)
	if err != nil {
		return err
	}
	iter := client.Collections(ctx)
	if _, err := iter.Next(); err != nil && !errors.Is(err, iterator.Done) {
		return WrapError("ping", err)
	}
	return nil
}

// Close releases the client. The Provider rejects further use afterwards.
func (p *Provider) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	client := p.client
	p.client = nil
	p.mu.Unlock()

	if client == nil {
		return nil
	}
	done := make(chan error, 1)
	go func() { done <- client.Close() }()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}
