package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/Prince-Affedzie/Freshy-Food-Backend/internal/platform/auth"
	"github.com/Prince-Affedzie/Freshy-Food-Backend/internal/platform/httpx"
	"github.com/Prince-Affedzie/Freshy-Food-Backend/internal/services"
)

type initializePaymentRequest struct {
	Amount   int64  `json:"amount"`
	Email    string `json:"email"`
	Currency string `json:"currency"`
	Provider string `json:"provider"`
}

type paymentSessionResponse struct {
	Provider     string `json:"provider"`
	Reference    string `json:"reference"`
	PublicKey    string `json:"publicKey,omitempty"`
	ClientSecret string `json:"clientSecret,omitempty"`
	Amount       int64  `json:"amount"`
	Currency     string `json:"currency"`
}

type verifyPaymentRequest struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Provider string `json:"provider"`
}

// PaymentHandlers serves the customer payment endpoints.
type PaymentHandlers struct {
	authn       *auth.Authenticator
	payments    services.PaymentService
	idempotency func(http.Handler) http.Handler
}

// NewPaymentHandlers constructs payment handlers. idempotency wraps verification and may be nil.
func NewPaymentHandlers(authn *auth.Authenticator, payments services.PaymentService, idempotency func(http.Handler) http.Handler) *PaymentHandlers {
	return &PaymentHandlers{
		authn:       authn,
		payments:    payments,
		idempotency: idempotency,
	}
}

// Routes registers /payments:initialize and /payments/{reference}:verify on the API root.
func (h *PaymentHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Group(func(group chi.Router) {
		if h.authn != nil {
			group.Use(h.authn.RequireCustomer())
		}
		group.Post("/payments:initialize", h.initializePayment)
		verify := http.Handler(http.HandlerFunc(h.verifyPayment))
		if h.idempotency != nil {
			verify = h.idempotency(verify)
		}
		group.Method(http.MethodPost, "/payments/{reference}:verify", verify)
	})
}

func (h *PaymentHandlers) initializePayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		writeServiceUnavailable(ctx, w, "payment")
		return
	}
	identity, ok := requireIdentity(r)
	if !ok {
		writeUnauthenticated(ctx, w)
		return
	}

	var req initializePaymentRequest
	if err := decodeJSONBody(r, maxCancelBodySize, &req, false); err != nil {
		writeBadRequest(ctx, w, err.Error())
		return
	}
	email := strings.TrimSpace(req.Email)
	if email == "" {
		email = identity.Email
	}

	session, err := h.payments.InitializePayment(ctx, services.InitializePaymentCommand{
		UserID:            identity.UserID,
		Email:             email,
		Amount:            req.Amount,
		Currency:          strings.TrimSpace(req.Currency),
		PreferredProvider: strings.TrimSpace(req.Provider),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, paymentSessionResponse{
		Provider:     session.Provider,
		Reference:    session.Reference,
		PublicKey:    session.PublicKey,
		ClientSecret: session.ClientSecret,
		Amount:       session.Amount,
		Currency:     session.Currency,
	})
}

func (h *PaymentHandlers) verifyPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		writeServiceUnavailable(ctx, w, "payment")
		return
	}
	identity, ok := requireIdentity(r)
	if !ok {
		writeUnauthenticated(ctx, w)
		return
	}
	reference := strings.TrimSpace(chi.URLParam(r, "reference"))
	if reference == "" {
		writeBadRequest(ctx, w, "payment reference is required")
		return
	}

	var req verifyPaymentRequest
	if err := decodeJSONBody(r, maxCancelBodySize, &req, true); err != nil {
		writeBadRequest(ctx, w, err.Error())
		return
	}

	payment, err := h.payments.VerifyAndRecordPayment(ctx, services.VerifyPaymentCommand{
		UserID:            identity.UserID,
		Reference:         reference,
		ClaimedAmount:     req.Amount,
		Currency:          strings.TrimSpace(req.Currency),
		PreferredProvider: strings.TrimSpace(req.Provider),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, paymentResponse{Payment: buildPaymentPayload(payment)})
}
