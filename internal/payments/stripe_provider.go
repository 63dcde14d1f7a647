package payments

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
)

// StripeLogger defines the logging contract for Stripe provider operations.
type StripeLogger func(ctx context.Context, event string, fields map[string]any)

type stripePaymentIntentAPI interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

type stripeRefundAPI interface {
	New(params *stripe.RefundParams) (*stripe.Refund, error)
}

type stripeClients struct {
	intents stripePaymentIntentAPI
	refunds stripeRefundAPI
}

// StripeProviderConfig configures the StripeProvider.
type StripeProviderConfig struct {
	APIKey         string
	PublishableKey string
	AccountID      string
	Backends       *stripe.Backends
	Logger         StripeLogger
	Clients        *stripeClients
}

// StripeProvider implements Provider with Stripe Payment Intents. The intent id is the transaction reference.
type StripeProvider struct {
	api            stripeClients
	publishableKey string
	account        string
	logger         StripeLogger
}

// NewStripeProvider constructs a Stripe Provider using the given configuration.
func NewStripeProvider(cfg StripeProviderConfig) (*StripeProvider, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" && cfg.Clients == nil {
		return nil, errors.New("stripe: api key is required")
	}

	var clients stripeClients
	if cfg.Clients != nil {
		clients = *cfg.Clients
	} else {
		sc := client.New(apiKey, cfg.Backends)
		clients = stripeClients{
			intents: sc.PaymentIntents,
			refunds: sc.Refunds,
		}
	}
	if clients.intents == nil || clients.refunds == nil {
		return nil, errors.New("stripe: incomplete client configuration")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &StripeProvider{
		api:            clients,
		publishableKey: strings.TrimSpace(cfg.PublishableKey),
		account:        strings.TrimSpace(cfg.AccountID),
		logger:         logger,
	}, nil
}

// Initialize creates a Payment Intent and returns its client secret.
func (p *StripeProvider) Initialize(ctx context.Context, req InitializeRequest) (Initialization, error) {
	if p == nil {
		return Initialization{}, errors.New("stripe: provider is nil")
	}
	if req.Amount <= 0 {
		return Initialization{}, errors.New("stripe: amount must be positive")
	}
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.Amount),
		Currency: stripe.String(strings.ToLower(defaultString(req.Currency, "usd"))),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	if p.account != "" {
		params.SetStripeAccount(p.account)
	}
	if reference := strings.TrimSpace(req.Reference); reference != "" {
		params.SetIdempotencyKey(reference)
		params.Metadata = map[string]string{"reference": reference}
	}
	for k, v := range req.Metadata {
		if params.Metadata == nil {
			params.Metadata = make(map[string]string, len(req.Metadata))
		}
		params.Metadata[k] = v
	}
	if email := strings.TrimSpace(req.Email); email != "" {
		params.ReceiptEmail = stripe.String(email)
	}

	intent, err := p.api.intents.New(params)
	if err != nil {
		return Initialization{}, newProviderError(ProviderStripe, "initialize", stripeHTTPStatus(err), stripeErrorBody(err), err)
	}
	p.logger(ctx, "payments.stripe.intent.created", map[string]any{
		"paymentIntent": intent.ID,
		"currency":      intent.Currency,
	})
	return Initialization{
		Provider:     ProviderStripe,
		Reference:    intent.ID,
		PublicKey:    p.publishableKey,
		ClientSecret: intent.ClientSecret,
	}, nil
}

// Verify retrieves the Payment Intent with its latest charge expanded.
func (p *StripeProvider) Verify(ctx context.Context, reference string) (Transaction, error) {
	if p == nil {
		return Transaction{}, errors.New("stripe: provider is nil")
	}
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return Transaction{}, errors.New("stripe: reference is required")
	}
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	params.AddExpand("latest_charge")
	if p.account != "" {
		params.SetStripeAccount(p.account)
	}
	intent, err := p.api.intents.Get(reference, params)
	if err != nil {
		return Transaction{}, newProviderError(ProviderStripe, "verify", stripeHTTPStatus(err), stripeErrorBody(err), err)
	}
	return stripeTransaction(intent), nil
}

// Refund creates a refund for the Payment Intent.
func (p *StripeProvider) Refund(ctx context.Context, req RefundRequest) (Refund, error) {
	if p == nil {
		return Refund{}, errors.New("stripe: provider is nil")
	}
	reference := strings.TrimSpace(req.Reference)
	if reference == "" {
		return Refund{}, errors.New("stripe: reference is required")
	}
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(reference),
	}
	params.Context = ctx
	if p.account != "" {
		params.SetStripeAccount(p.account)
	}
	if req.Amount != nil {
		params.Amount = stripe.Int64(*req.Amount)
	}
	if reason := mapStripeRefundReason(req.Reason); reason != "" {
		params.Reason = stripe.String(reason)
	}
	refund, err := p.api.refunds.New(params)
	if err != nil {
		return Refund{}, newProviderError(ProviderStripe, "refund", stripeHTTPStatus(err), stripeErrorBody(err), err)
	}
	p.logger(ctx, "payments.stripe.intent.refunded", map[string]any{
		"paymentIntent": reference,
		"refund":        refund.ID,
		"status":        refund.Status,
	})
	raw, _ := json.Marshal(refund)
	return Refund{
		Provider:  ProviderStripe,
		Reference: reference,
		Status:    string(refund.Status),
		Amount:    refund.Amount,
		Raw:       raw,
	}, nil
}

func stripeTransaction(intent *stripe.PaymentIntent) Transaction {
	if intent == nil {
		return Transaction{Provider: ProviderStripe}
	}

	status := StatusPending
	switch intent.Status {
	case stripe.PaymentIntentStatusSucceeded:
		status = StatusSucceeded
	case stripe.PaymentIntentStatusCanceled:
		status = StatusFailed
	}

	txn := Transaction{
		Provider:      ProviderStripe,
		Reference:     intent.ID,
		GatewayStatus: string(intent.Status),
		Amount:        intent.AmountReceived,
		Currency:      normaliseCurrency(string(intent.Currency)),
	}
	if txn.Amount == 0 {
		txn.Amount = intent.Amount
	}

	if charge := intent.LatestCharge; charge != nil {
		if charge.Paid {
			t := time.Unix(charge.Created, 0).UTC()
			txn.PaidAt = &t
		}
		if charge.Refunded {
			status = StatusRefunded
		}
		if details := charge.PaymentMethodDetails; details != nil {
			txn.Channel = string(details.Type)
			if details.Card != nil {
				txn.Bank = string(details.Card.Brand)
			}
		}
	}
	txn.Status = status

	if raw, err := json.Marshal(intent); err == nil {
		txn.Raw = raw
	}
	return txn
}

func stripeHTTPStatus(err error) int {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		return stripeErr.HTTPStatusCode
	}
	return 0
}

func stripeErrorBody(err error) []byte {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) && stripeErr.LastResponse != nil {
		return stripeErr.LastResponse.RawJSON
	}
	return nil
}

func mapStripeRefundReason(reason string) string {
	switch strings.ToLower(strings.TrimSpace(reason)) {
	case string(stripe.RefundReasonDuplicate):
		return string(stripe.RefundReasonDuplicate)
	case string(stripe.RefundReasonFraudulent):
		return string(stripe.RefundReasonFraudulent)
	case string(stripe.RefundReasonRequestedByCustomer):
		return string(stripe.RefundReasonRequestedByCustomer)
	default:
		return ""
	}
}
