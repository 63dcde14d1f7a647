package repositories

import "fmt"

// InventoryErrorCode enumerates repository error causes for stock adjustments.
type InventoryErrorCode string

const (
	// InventoryErrorInsufficientStock indicates the decrement exceeds the remaining stock.
	InventoryErrorInsufficientStock InventoryErrorCode = "inventory_insufficient_stock"
	// InventoryErrorProductNotFound indicates the product document does not exist.
	InventoryErrorProductNotFound InventoryErrorCode = "inventory_product_not_found"
	// InventoryErrorInvalidQuantity indicates a non-positive adjustment.
	InventoryErrorInvalidQuantity InventoryErrorCode = "inventory_invalid_quantity"
)

// InventoryError wraps inventory-specific failures with machine readable codes.
type InventoryError struct {
	Op        string
	Code      InventoryErrorCode
	ProductID string
	Message   string
	Err       error
}

// Error implements the error interface.
func (e *InventoryError) Error() string {
	if e == nil {
		return ""
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

// Unwrap exposes the underlying error, if any.
func (e *InventoryError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewInventoryError constructs a typed inventory error.
func NewInventoryError(code InventoryErrorCode, productID string, message string, err error) *InventoryError {
	if message == "" {
		message = string(code)
	}
	return &InventoryError{
		Code:      code,
		ProductID: productID,
		Message:   message,
		Err:       err,
	}
}
