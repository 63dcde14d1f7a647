package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Status enumerates the normalised transaction states shared across gateways.
type Status string

const (
	// StatusPending indicates the transaction is awaiting customer action or gateway confirmation.
	StatusPending Status = "pending"
	// StatusSucceeded indicates the gateway reports the transaction as successfully paid.
	StatusSucceeded Status = "succeeded"
	// StatusFailed indicates the gateway reports a failure or abandonment.
	StatusFailed Status = "failed"
	// StatusRefunded indicates the transaction has been refunded.
	StatusRefunded Status = "refunded"
)

var (
	// ErrUnsupportedProvider is returned when the manager cannot locate a provider.
	ErrUnsupportedProvider = errors.New("payments: unsupported provider")
	// ErrGatewayTimeout is returned when the gateway does not answer within the configured bound.
	ErrGatewayTimeout = errors.New("payments: gateway timeout")
)

// InitializeRequest describes a transaction the client is about to pay for.
type InitializeRequest struct {
	Reference string
	Amount    int64
	Currency  string
	Email     string
	Metadata  map[string]string
}

// Initialization carries the public parameters a client SDK needs to complete a payment.
type Initialization struct {
	Provider     string
	Reference    string
	PublicKey    string
	ClientSecret string
}

// Transaction is the gateway's authoritative view of a payment attempt.
type Transaction struct {
	Provider          string
	Reference         string
	Status            Status
	GatewayStatus     string
	Amount            int64
	Currency          string
	Channel           string
	Bank              string
	MobileMoneyNumber string
	PaidAt            *time.Time
	Raw               []byte
}

// RefundRequest defines a gateway refund attempt. A nil Amount refunds the full transaction.
type RefundRequest struct {
	Reference string
	Amount    *int64
	Reason    string
}

// Refund reports the outcome of a refund call.
type Refund struct {
	Provider  string
	Reference string
	Status    string
	Amount    int64
	Raw       []byte
}

// Provider defines the contract for gateway adapters to implement.
type Provider interface {
	Initialize(ctx context.Context, req InitializeRequest) (Initialization, error)
	Verify(ctx context.Context, reference string) (Transaction, error)
	Refund(ctx context.Context, req RefundRequest) (Refund, error)
}

// ProviderError describes a failed gateway call. Body holds the raw gateway response when one was received.
type ProviderError struct {
	Provider   string
	Op         string
	StatusCode int
	Body       []byte
	Err        error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	if e == nil {
		return ""
	}
	msg := fmt.Sprintf("payments: %s %s failed", e.Provider, e.Op)
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s with status %d", msg, e.StatusCode)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap exposes the underlying error.
func (e *ProviderError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Timeout reports whether the call failed because the gateway did not answer in time.
func (e *ProviderError) Timeout() bool {
	return e != nil && errors.Is(e.Err, ErrGatewayTimeout)
}

func newProviderError(provider, op string, statusCode int, body []byte, err error) *ProviderError {
	if errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("%w: %v", ErrGatewayTimeout, err)
	}
	return &ProviderError{
		Provider:   provider,
		Op:         op,
		StatusCode: statusCode,
		Body:       body,
		Err:        err,
	}
}

func normaliseCurrency(currency string) string {
	return strings.ToUpper(strings.TrimSpace(currency))
}
