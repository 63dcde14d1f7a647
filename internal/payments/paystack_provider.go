package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultPaystackBaseURL = "https://api.paystack.co"
	maxPaystackBodyBytes   = 1 << 20
)

// PaystackLogger defines the logging contract for Paystack provider operations.
type PaystackLogger func(ctx context.Context, event string, fields map[string]any)

// PaystackProviderConfig configures the PaystackProvider.
type PaystackProviderConfig struct {
	SecretKey  string
	PublicKey  string
	BaseURL    string
	HTTPClient *http.Client
	Logger     PaystackLogger
}

// PaystackProvider implements Provider against the Paystack REST API.
type PaystackProvider struct {
	secretKey string
	publicKey string
	baseURL   string
	client    *http.Client
	logger    PaystackLogger
}

// NewPaystackProvider constructs a Paystack provider.
func NewPaystackProvider(cfg PaystackProviderConfig) (*PaystackProvider, error) {
	secret := strings.TrimSpace(cfg.SecretKey)
	if secret == "" {
		return nil, errors.New("paystack: secret key is required")
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = defaultPaystackBaseURL
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("paystack: invalid base url: %w", err)
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &PaystackProvider{
		secretKey: secret,
		publicKey: strings.TrimSpace(cfg.PublicKey),
		baseURL:   base,
		client:    client,
		logger:    logger,
	}, nil
}

// Initialize returns the parameters the Paystack inline client needs. The reference is generated by the caller.
func (p *PaystackProvider) Initialize(_ context.Context, req InitializeRequest) (Initialization, error) {
	if p == nil {
		return Initialization{}, errors.New("paystack: provider is nil")
	}
	reference := strings.TrimSpace(req.Reference)
	if reference == "" {
		return Initialization{}, errors.New("paystack: reference is required")
	}
	return Initialization{
		Provider:  ProviderPaystack,
		Reference: reference,
		PublicKey: p.publicKey,
	}, nil
}

type paystackEnvelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type paystackTransaction struct {
	Status        string `json:"status"`
	Reference     string `json:"reference"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
	Channel       string `json:"channel"`
	PaidAt        string `json:"paid_at"`
	Authorization struct {
		Bank              string `json:"bank"`
		Channel           string `json:"channel"`
		MobileMoneyNumber string `json:"mobile_money_number"`
	} `json:"authorization"`
}

type paystackRefund struct {
	Status      string `json:"status"`
	Amount      int64  `json:"amount"`
	Transaction struct {
		Reference string `json:"reference"`
	} `json:"transaction"`
}

// Verify fetches the transaction from Paystack. A non-success transaction is returned without error; callers
// inspect Status and Raw.
func (p *PaystackProvider) Verify(ctx context.Context, reference string) (Transaction, error) {
	if p == nil {
		return Transaction{}, errors.New("paystack: provider is nil")
	}
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return Transaction{}, errors.New("paystack: reference is required")
	}

	body, err := p.do(ctx, "verify", http.MethodGet, "/transaction/verify/"+url.PathEscape(reference), nil)
	if err != nil {
		return Transaction{}, err
	}

	var env paystackEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Transaction{}, newProviderError(ProviderPaystack, "verify", http.StatusOK, body, fmt.Errorf("decode response: %w", err))
	}
	if !env.Status {
		return Transaction{}, newProviderError(ProviderPaystack, "verify", http.StatusOK, body, errors.New(env.Message))
	}
	var data paystackTransaction
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return Transaction{}, newProviderError(ProviderPaystack, "verify", http.StatusOK, body, fmt.Errorf("decode transaction: %w", err))
	}

	txn := Transaction{
		Provider:          ProviderPaystack,
		Reference:         defaultString(data.Reference, reference),
		Status:            paystackStatus(data.Status),
		GatewayStatus:     data.Status,
		Amount:            data.Amount,
		Currency:          normaliseCurrency(data.Currency),
		Channel:           data.Channel,
		Bank:              data.Authorization.Bank,
		MobileMoneyNumber: data.Authorization.MobileMoneyNumber,
		Raw:               body,
	}
	if paidAt, err := time.Parse(time.RFC3339Nano, data.PaidAt); err == nil {
		paidAt = paidAt.UTC()
		txn.PaidAt = &paidAt
	}

	p.logger(ctx, "payments.paystack.verified", map[string]any{
		"reference": txn.Reference,
		"status":    data.Status,
		"channel":   data.Channel,
	})
	return txn, nil
}

// Refund asks Paystack to refund the transaction. Only a successful API response is reported as success.
func (p *PaystackProvider) Refund(ctx context.Context, req RefundRequest) (Refund, error) {
	if p == nil {
		return Refund{}, errors.New("paystack: provider is nil")
	}
	reference := strings.TrimSpace(req.Reference)
	if reference == "" {
		return Refund{}, errors.New("paystack: reference is required")
	}

	payload := map[string]any{"transaction": reference}
	if req.Amount != nil {
		payload["amount"] = *req.Amount
	}
	if reason := strings.TrimSpace(req.Reason); reason != "" {
		payload["merchant_note"] = reason
	}

	body, err := p.do(ctx, "refund", http.MethodPost, "/refund", payload)
	if err != nil {
		return Refund{}, err
	}

	var env paystackEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Refund{}, newProviderError(ProviderPaystack, "refund", http.StatusOK, body, fmt.Errorf("decode response: %w", err))
	}
	if !env.Status {
		return Refund{}, newProviderError(ProviderPaystack, "refund", http.StatusOK, body, errors.New(env.Message))
	}
	var data paystackRefund
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return Refund{}, newProviderError(ProviderPaystack, "refund", http.StatusOK, body, fmt.Errorf("decode refund data: %w", err))
	}

	p.logger(ctx, "payments.paystack.refunded", map[string]any{
		"reference": reference,
		"status":    data.Status,
	})
	return Refund{
		Provider:  ProviderPaystack,
		Reference: defaultString(data.Transaction.Reference, reference),
		Status:    data.Status,
		Amount:    data.Amount,
		Raw:       body,
	}, nil
}

func (p *PaystackProvider) do(ctx context.Context, op, method, path string, payload any) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("paystack: encode %s payload: %w", op, err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("paystack: build %s request: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+p.secretKey)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return nil, newProviderError(ProviderPaystack, op, 0, nil, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPaystackBodyBytes))
	if err != nil {
		return nil, newProviderError(ProviderPaystack, op, resp.StatusCode, nil, fmt.Errorf("read response: %w", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, newProviderError(ProviderPaystack, op, resp.StatusCode, body, errors.New(http.StatusText(resp.StatusCode)))
	}
	return body, nil
}

func paystackStatus(status string) Status {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "success":
		return StatusSucceeded
	case "failed", "abandoned":
		return StatusFailed
	case "reversed":
		return StatusRefunded
	default:
		return StatusPending
	}
}

func defaultString(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}
