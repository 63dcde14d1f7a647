package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrOrderInvalidInput signals malformed or incomplete checkout or transition input.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderForbidden indicates the requester does not own the order.
	ErrOrderForbidden = errors.New("order: forbidden")
	// ErrOrderOutOfStock indicates one or more checkout items are unavailable.
	ErrOrderOutOfStock = errors.New("order: out of stock")
	// ErrOrderInvalidTransition indicates the requested status change is not permitted from the current status.
	ErrOrderInvalidTransition = errors.New("order: invalid status transition")
	// ErrOrderNotCancellable indicates the customer cancellation policy rejects the order.
	ErrOrderNotCancellable = errors.New("order: not cancellable")
	// ErrOrderAlreadyPaid guards repeated payment marking.
	ErrOrderAlreadyPaid = errors.New("order: already paid")
	// ErrOrderAlreadyDelivered guards repeated delivery marking.
	ErrOrderAlreadyDelivered = errors.New("order: already delivered")
	// ErrOrderConflict indicates a duplicate order id.
	ErrOrderConflict = errors.New("order: conflict")

	// ErrPaymentInvalidInput signals malformed payment input.
	ErrPaymentInvalidInput = errors.New("payment: invalid input")
	// ErrPaymentNotFound indicates the payment could not be located.
	ErrPaymentNotFound = errors.New("payment: not found")
	// ErrPaymentNotRefundable indicates the payment is not in paid status.
	ErrPaymentNotRefundable = errors.New("payment: not refundable")
	// ErrPaymentGateway indicates the payment gateway failed, timed out, or reported a non-successful transaction.
	ErrPaymentGateway = errors.New("payment: gateway error")
	// ErrPaymentAmountMismatch indicates the gateway settled a different amount than the client claimed.
	ErrPaymentAmountMismatch = errors.New("payment: amount mismatch")
	// ErrPaymentConflict indicates the transaction reference was already recorded.
	ErrPaymentConflict = errors.New("payment: conflict")

	// ErrInventoryInvalidInput signals a non-positive adjustment or missing product id.
	ErrInventoryInvalidInput = errors.New("inventory: invalid input")
	// ErrInventoryInsufficientStock indicates a decrement larger than the remaining stock.
	ErrInventoryInsufficientStock = errors.New("inventory: insufficient stock")
	// ErrInventoryProductNotFound indicates the product does not exist.
	ErrInventoryProductNotFound = errors.New("inventory: product not found")
)

// OutOfStockItem describes one checkout line that cannot be fulfilled.
type OutOfStockItem struct {
	ProductID string `json:"productId"`
	Name      string `json:"name"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
}

// OutOfStockError lists every unavailable checkout line so the client can substitute them in one step.
type OutOfStockError struct {
	Items []OutOfStockItem
}

func (e *OutOfStockError) Error() string {
	if e == nil || len(e.Items) == 0 {
		return ErrOrderOutOfStock.Error()
	}
	names := make([]string, 0, len(e.Items))
	for _, item := range e.Items {
		label := item.Name
		if label == "" {
			label = item.ProductID
		}
		names = append(names, label)
	}
	return fmt.Sprintf("%s: %s", ErrOrderOutOfStock.Error(), strings.Join(names, ", "))
}

func (e *OutOfStockError) Unwrap() error {
	return ErrOrderOutOfStock
}

// GatewayError reports a gateway failure with the raw gateway response for diagnostics.
type GatewayError struct {
	Provider  string
	Reference string
	Status    string
	Response  []byte
	Err       error
}

func (e *GatewayError) Error() string {
	if e == nil {
		return ErrPaymentGateway.Error()
	}
	msg := ErrPaymentGateway.Error()
	if e.Provider != "" {
		msg += " (" + e.Provider + ")"
	}
	if e.Reference != "" {
		msg += ": " + e.Reference
	}
	if e.Status != "" {
		msg += ": status " + e.Status
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *GatewayError) Unwrap() []error {
	if e == nil {
		return nil
	}
	if e.Err == nil {
		return []error{ErrPaymentGateway}
	}
	return []error{ErrPaymentGateway, e.Err}
}
