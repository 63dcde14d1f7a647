package secrets

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	referencePrefix     = "secret://"
	defaultFallbackPath = ".secrets.local"
	defaultCacheTTL     = 10 * time.Minute
	meterName           = "github.com/Prince-Affedzie/Freshy-Food-Backend/internal/platform/secrets"
)

// ErrSecretNotFound is returned when neither Secret Manager nor the local fallback has the secret.
var ErrSecretNotFound = errors.New("secrets: secret not found")

// Client is the Secret Manager surface the fetcher needs.
type Client interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
	Close() error
}

// Config configures a Fetcher.
type Config struct {
	ProjectID string
	// FallbackPath is a KEY=value file consulted when Secret Manager has no such secret.
	// Only used when AllowFallback is set, which config enables outside production.
	FallbackPath  string
	AllowFallback bool
	CacheTTL      time.Duration
	Client        Client
	Logger        *zap.Logger
	Clock         func() time.Time
}

// Fetcher resolves secret://name[#version] references through Secret Manager.
type Fetcher struct {
	client     Client
	ownsClient bool
	projectID  string
	logger     *zap.Logger
	clock      func() time.Time
	ttl        time.Duration

	fallbackPath  string
	allowFallback bool
	fallbackOnce  sync.Once
	fallback      map[string]string

	mu    sync.Mutex
	cache map[string]cached

	latency metric.Float64Histogram
}

type cached struct {
	value     string
	fetchedAt time.Time
}

// NewFetcher builds a Fetcher. A Secret Manager client is created when Config.Client is nil.
func NewFetcher(ctx context.Context, cfg Config) (*Fetcher, error) {
	if strings.TrimSpace(cfg.ProjectID) == "" {
		return nil, errors.New("secrets: project id is required")
	}
	f := &Fetcher{
		client:        cfg.Client,
		projectID:     strings.TrimSpace(cfg.ProjectID),
		logger:        cfg.Logger,
		clock:         cfg.Clock,
		ttl:           cfg.CacheTTL,
		fallbackPath:  cfg.FallbackPath,
		allowFallback: cfg.AllowFallback,
		cache:         make(map[string]cached),
	}
	if f.logger == nil {
		f.logger = zap.NewNop()
	}
	if f.clock == nil {
		f.clock = time.Now
	}
	if f.ttl <= 0 {
		f.ttl = defaultCacheTTL
	}
	if f.fallbackPath == "" {
		f.fallbackPath = defaultFallbackPath
	}
	if f.client == nil {
		client, err := secretmanager.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("secrets: create secret manager client: %w", err)
		}
		f.client = client
		f.ownsClient = true
	}

	latency, err := otel.Meter(meterName).Float64Histogram("secrets.access.latency",
		metric.WithUnit("ms"),
		metric.WithDescription("Secret Manager access latency"))
	if err == nil {
		f.latency = latency
	}
	return f, nil
}

// ResolveSecret satisfies config.SecretResolver.
func (f *Fetcher) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f.Resolve(ctx, ref)
}

// Resolve returns the secret value for ref, serving from cache while fresh.
func (f *Fetcher) Resolve(ctx context.Context, ref string) (string, error) {
	name, version, err := parseReference(ref)
	if err != nil {
		return "", err
	}
	resource := fmt.Sprintf("projects/%s/secrets/%s/versions/%s", f.projectID, name, version)

	f.mu.Lock()
	entry, ok := f.cache[resource]
	f.mu.Unlock()
	if ok && f.clock().Sub(entry.fetchedAt) < f.ttl {
		return entry.value, nil
	}

	start := f.clock()
	resp, err := f.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: resource})
	f.recordLatency(ctx, start, err)
	if err != nil {
		if status.Code(err) == codes.NotFound || status.Code(err) == codes.PermissionDenied {
			if value, ok := f.fallbackValue(name); ok {
				f.logger.Warn("secret served from local fallback", zap.String("secret", name))
				return value, nil
			}
			return "", fmt.Errorf("%w: %s", ErrSecretNotFound, name)
		}
		return "", fmt.Errorf("secrets: access %s: %w", name, err)
	}

	value := strings.TrimSpace(string(resp.GetPayload().GetData()))
	f.mu.Lock()
	f.cache[resource] = cached{value: value, fetchedAt: f.clock()}
	f.mu.Unlock()
	return value, nil
}

// Close releases the Secret Manager client when the fetcher created it.
func (f *Fetcher) Close() error {
	if f.ownsClient && f.client != nil {
		return f.client.Close()
	}
	return nil
}

func (f *Fetcher) recordLatency(ctx context.Context, start time.Time, err error) {
	if f.latency == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = status.Code(err).String()
	}
	elapsed := float64(f.clock().Sub(start).Microseconds()) / 1000
	f.latency.Record(ctx, elapsed, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (f *Fetcher) fallbackValue(name string) (string, bool) {
	if !f.allowFallback {
		return "", false
	}
	f.fallbackOnce.Do(func() {
		f.fallback = readFallbackFile(f.fallbackPath)
	})
	value, ok := f.fallback[name]
	return value, ok
}

func parseReference(ref string) (name, version string, err error) {
	ref = strings.TrimSpace(ref)
	if !strings.HasPrefix(ref, referencePrefix) {
		return "", "", fmt.Errorf("secrets: unsupported reference %q", ref)
	}
	name, version, _ = strings.Cut(strings.TrimPrefix(ref, referencePrefix), "#")
	name = strings.Trim(strings.TrimSpace(name), "/")
	if name == "" || strings.Contains(name, "/") {
		return "", "", fmt.Errorf("secrets: invalid secret name in %q", ref)
	}
	version = strings.TrimSpace(version)
	if version == "" {
		version = "latest"
	}
	return name, version, nil
}

func readFallbackFile(path string) map[string]string {
	values := make(map[string]string)
	file, err := os.Open(path)
	if err != nil {
		return values
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		values[strings.TrimSpace(key)] = strings.Trim(strings.TrimSpace(value), `"`)
	}
	return values
}
