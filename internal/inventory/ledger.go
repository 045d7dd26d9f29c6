package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Stock is the persistence primitive behind the ledger. Implementations must
// perform DecrementIfAvailable as a single conditional write.
type Stock interface {
	// DecrementIfAvailable subtracts qty only if the product has at least qty
	// units, reporting whether the write applied. A missing product yields
	// ErrProductNotFound.
	DecrementIfAvailable(ctx context.Context, productID uuid.UUID, qty int64) (bool, error)
	Increment(ctx context.Context, productID uuid.UUID, qty int64) error
	Available(ctx context.Context, productID uuid.UUID) (int64, error)
}

type Line struct {
	ProductID uuid.UUID
	Quantity  int64
}

type Ledger struct {
	stock  Stock
	logger *zap.Logger
}

func NewLedger(stock Stock, logger *zap.Logger) *Ledger {
	return &Ledger{
		stock:  stock,
		logger: logger,
	}
}

// Reserve takes qty units of a product. Insufficient stock is reported as an
// *OutOfStockError and never retried.
func (l *Ledger) Reserve(ctx context.Context, productID uuid.UUID, qty int64) error {
	if qty <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidQuantity, qty)
	}

	applied, err := l.stock.DecrementIfAvailable(ctx, productID, qty)
	if err != nil {
		return err
	}
	if applied {
		return nil
	}

	// The decrement already failed; this read only feeds the error message.
	available, err := l.stock.Available(ctx, productID)
	if err != nil {
		return err
	}
	return &OutOfStockError{ProductID: productID, Requested: qty, Available: available}
}

func (l *Ledger) Release(ctx context.Context, productID uuid.UUID, qty int64) error {
	if qty <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidQuantity, qty)
	}
	return l.stock.Increment(ctx, productID, qty)
}

// ReserveAll reserves every line or none. When a line fails, the lines
// already taken by this call are released before the error is returned.
func (l *Ledger) ReserveAll(ctx context.Context, lines []Line) error {
	reserved := make([]Line, 0, len(lines))
	for _, line := range lines {
		if err := l.Reserve(ctx, line.ProductID, line.Quantity); err != nil {
			if rbErr := l.ReleaseAll(ctx, reserved); rbErr != nil {
				return errors.Join(err, fmt.Errorf("rollback reservation: %w", rbErr))
			}
			return err
		}
		reserved = append(reserved, line)
	}
	return nil
}

// ReleaseAll returns stock for every line, newest first. It keeps going past
// individual failures and runs detached from ctx cancellation so a caller
// timeout cannot strand a half-finished rollback.
func (l *Ledger) ReleaseAll(ctx context.Context, lines []Line) error {
	ctx = context.WithoutCancel(ctx)

	var errs []error
	for i := len(lines) - 1; i >= 0; i-- {
		line := lines[i]
		if err := l.Release(ctx, line.ProductID, line.Quantity); err != nil {
			l.logger.Error("Failed to release stock",
				zap.String("product_id", line.ProductID.String()),
				zap.Int64("quantity", line.Quantity),
				zap.Error(err),
			)
			errs = append(errs, fmt.Errorf("release %s: %w", line.ProductID, err))
		}
	}
	return errors.Join(errs...)
}
