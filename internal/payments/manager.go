package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	// ProviderPaystack is the registration key of the Paystack adapter.
	ProviderPaystack = "paystack"
	// ProviderStripe is the registration key of the Stripe adapter.
	ProviderStripe = "stripe"

	defaultCallTimeout = 15 * time.Second
)

// Manager coordinates provider selection and bounds every gateway call with a timeout.
type Manager struct {
	providers       map[string]Provider
	defaultProvider string
	currencyRoutes  map[string]string
	callTimeout     time.Duration
}

// ManagerOption configures optional behaviour when building a Manager.
type ManagerOption func(*Manager)

// WithDefaultProvider overrides the default provider for currencies without explicit routing.
func WithDefaultProvider(provider string) ManagerOption {
	return func(m *Manager) {
		m.defaultProvider = provider
	}
}

// WithCurrencyRoutes configures static currency to provider mappings.
func WithCurrencyRoutes(routes map[string]string) ManagerOption {
	return func(m *Manager) {
		if len(routes) == 0 {
			return
		}
		if m.currencyRoutes == nil {
			m.currencyRoutes = make(map[string]string, len(routes))
		}
		for k, v := range routes {
			m.currencyRoutes[normaliseCurrency(k)] = strings.TrimSpace(v)
		}
	}
}

// WithCallTimeout bounds each gateway call.
func WithCallTimeout(timeout time.Duration) ManagerOption {
	return func(m *Manager) {
		if timeout > 0 {
			m.callTimeout = timeout
		}
	}
}

// NewManager constructs a Manager over the supplied providers. Paystack handles GHS unless routes say otherwise.
func NewManager(providers map[string]Provider, opts ...ManagerOption) (*Manager, error) {
	if len(providers) == 0 {
		return nil, errors.New("payments: at least one provider is required")
	}
	registered := make(map[string]Provider, len(providers))
	for k, v := range providers {
		key := strings.TrimSpace(strings.ToLower(k))
		if key == "" || v == nil {
			return nil, fmt.Errorf("payments: invalid provider registration for key %q", k)
		}
		registered[key] = v
	}
	m := &Manager{
		providers:   registered,
		callTimeout: defaultCallTimeout,
	}
	if _, ok := registered[ProviderPaystack]; ok {
		m.currencyRoutes = map[string]string{"GHS": ProviderPaystack}
	}
	if _, ok := registered[ProviderStripe]; ok {
		m.defaultProvider = ProviderStripe
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// PaymentContext defines the hints available when selecting a provider.
type PaymentContext struct {
	PreferredProvider string
	Currency          string
}

// Resolve returns the provider key that would serve the given context.
func (m *Manager) Resolve(paymentCtx PaymentContext) (string, error) {
	key, _, err := m.resolveProvider(paymentCtx)
	return key, err
}

func (m *Manager) resolveProvider(ctx PaymentContext) (string, Provider, error) {
	if m == nil {
		return "", nil, errors.New("payments: manager is nil")
	}
	if len(m.providers) == 0 {
		return "", nil, errors.New("payments: no providers registered")
	}
	if provider := strings.TrimSpace(strings.ToLower(ctx.PreferredProvider)); provider != "" {
		if p, ok := m.providers[provider]; ok {
			return provider, p, nil
		}
		return "", nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, provider)
	}
	if currency := normaliseCurrency(ctx.Currency); currency != "" && m.currencyRoutes != nil {
		if providerKey, ok := m.currencyRoutes[currency]; ok {
			provider := strings.TrimSpace(strings.ToLower(providerKey))
			if p, ok := m.providers[provider]; ok {
				return provider, p, nil
			}
		}
	}
	if def := strings.TrimSpace(strings.ToLower(m.defaultProvider)); def != "" {
		if p, ok := m.providers[def]; ok {
			return def, p, nil
		}
	}
	if len(m.providers) == 1 {
		for key, p := range m.providers {
			return key, p, nil
		}
	}
	return "", nil, ErrUnsupportedProvider
}

// Initialize delegates to the resolved provider.
func (m *Manager) Initialize(ctx context.Context, paymentCtx PaymentContext, req InitializeRequest) (Initialization, error) {
	key, provider, err := m.resolveProvider(paymentCtx)
	if err != nil {
		return Initialization{}, err
	}
	callCtx, cancel := m.bound(ctx)
	defer cancel()
	session, err := provider.Initialize(callCtx, req)
	if err != nil {
		return Initialization{}, m.annotate(key, "initialize", err)
	}
	session.Provider = key
	return session, nil
}

// Verify asks the resolved provider for the authoritative state of a transaction.
func (m *Manager) Verify(ctx context.Context, paymentCtx PaymentContext, reference string) (Transaction, error) {
	key, provider, err := m.resolveProvider(paymentCtx)
	if err != nil {
		return Transaction{}, err
	}
	callCtx, cancel := m.bound(ctx)
	defer cancel()
	txn, err := provider.Verify(callCtx, reference)
	if err != nil {
		return Transaction{}, m.annotate(key, "verify", err)
	}
	txn.Provider = key
	return txn, nil
}

// Refund delegates to the resolved provider.
func (m *Manager) Refund(ctx context.Context, paymentCtx PaymentContext, req RefundRequest) (Refund, error) {
	key, provider, err := m.resolveProvider(paymentCtx)
	if err != nil {
		return Refund{}, err
	}
	callCtx, cancel := m.bound(ctx)
	defer cancel()
	refund, err := provider.Refund(callCtx, req)
	if err != nil {
		return Refund{}, m.annotate(key, "refund", err)
	}
	refund.Provider = key
	return refund, nil
}

func (m *Manager) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.callTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, m.callTimeout)
}

func (m *Manager) annotate(provider, op string, err error) error {
	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		if providerErr.Provider == "" {
			providerErr.Provider = provider
		}
		return providerErr
	}
	return newProviderError(provider, op, 0, nil, err)
}
