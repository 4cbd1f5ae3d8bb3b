package orders

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	pkgerrors "github.com/sportedge/sportedge-backend/pkg/errors"
	"github.com/sportedge/sportedge-backend/pkg/metrics"
)

// Placement failure kinds. Every error returned by PlaceOrder matches exactly
// one of these with errors.Is.
var (
	ErrEmptyCart         = errors.New("cart is empty")
	ErrVariationNotFound = errors.New("product variation not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrPersistence       = errors.New("order persistence failed")
)

// InsufficientStockError carries the variation that could not cover the
// requested quantity and what was available in the same locked read.
type InsufficientStockError struct {
	VariationID uuid.UUID
	Requested   int
	Available   int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for variation %s: requested %d, available %d", e.VariationID, e.Requested, e.Available)
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// VariationNotFoundError names the stale variation a cart line points at.
type VariationNotFoundError struct {
	VariationID uuid.UUID
}

func (e *VariationNotFoundError) Error() string {
	return fmt.Sprintf("product variation %s not found", e.VariationID)
}

func (e *VariationNotFoundError) Is(target error) bool {
	return target == ErrVariationNotFound
}

func emptyCartError() error {
	return pkgerrors.Wrap(pkgerrors.CodeValidation, ErrEmptyCart, "cart is empty").
		WithDetails(map[string]any{"reason": "empty_cart"})
}

func variationNotFoundError(variationID uuid.UUID) error {
	return pkgerrors.Wrap(pkgerrors.CodeStateConflict, &VariationNotFoundError{VariationID: variationID}, "product variation no longer exists").
		WithDetails(map[string]any{
			"reason":       "variation_not_found",
			"variation_id": variationID.String(),
		})
}

func insufficientStockError(variationID uuid.UUID, requested, available int) error {
	cause := &InsufficientStockError{VariationID: variationID, Requested: requested, Available: available}
	return pkgerrors.Wrap(pkgerrors.CodeStateConflict, cause, "not enough stock for product variation").
		WithDetails(map[string]any{
			"reason":       "insufficient_stock",
			"variation_id": variationID.String(),
			"requested":    requested,
			"available":    available,
		})
}

func persistenceError(cause error) error {
	return pkgerrors.Wrap(pkgerrors.CodeInternal, fmt.Errorf("%w: %w", ErrPersistence, cause), "failed to place order")
}

// classifyPlacement keeps validation failures as built and folds everything
// else into a persistence failure. The second result is the metrics outcome.
func classifyPlacement(err error) (error, string) {
	switch {
	case errors.Is(err, ErrEmptyCart):
		return typedOrSelf(err), metrics.OutcomeEmptyCart
	case errors.Is(err, ErrVariationNotFound):
		return typedOrSelf(err), metrics.OutcomeVariationNotFound
	case errors.Is(err, ErrInsufficientStock):
		return typedOrSelf(err), metrics.OutcomeInsufficientStock
	default:
		return persistenceError(err), metrics.OutcomePersistence
	}
}

func typedOrSelf(err error) error {
	if typed := pkgerrors.As(err); typed != nil {
		return typed
	}
	return err
}
