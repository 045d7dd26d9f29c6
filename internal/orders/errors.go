package orders

import (
	"errors"
	"fmt"

	"fulfillment/models"
)

var (
	ErrOrderNotFound     = errors.New("order not found")
	ErrCustomerNotFound  = errors.New("customer not found")
	ErrEmptyOrder        = errors.New("order must contain at least one item")
	ErrInvalidRequest    = errors.New("invalid order request")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrConcurrentUpdate  = errors.New("order changed concurrently")

	// ErrAlreadyCancelled accompanies a successful no-op: the order was
	// cancelled before and its stock has already been returned.
	ErrAlreadyCancelled = errors.New("order already cancelled")

	// ErrDuplicateRequest is returned by a Store when the request key of an
	// inserted order is already taken.
	ErrDuplicateRequest = errors.New("duplicate order request key")
)

type TransitionError struct {
	From models.OrderStatus
	To   models.OrderStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot move order from %q to %q", e.From, e.To)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}
