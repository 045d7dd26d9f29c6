package inventory

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrProductNotFound = errors.New("product not found")
	ErrOutOfStock      = errors.New("out of stock")
	ErrInvalidQuantity = errors.New("quantity must be positive")
)

// OutOfStockError identifies the line that could not be reserved.
type OutOfStockError struct {
	ProductID uuid.UUID
	Requested int64
	Available int64
}

func (e *OutOfStockError) Error() string {
	return fmt.Sprintf("product %s is out of stock: requested %d, available %d", e.ProductID, e.Requested, e.Available)
}

func (e *OutOfStockError) Is(target error) bool {
	return target == ErrOutOfStock
}

// NotFound wraps ErrProductNotFound with the missing id.
func NotFound(productID uuid.UUID) error {
	return fmt.Errorf("%w: %s", ErrProductNotFound, productID)
}
