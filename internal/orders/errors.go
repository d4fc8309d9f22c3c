package orders

import (
	"fmt"

	"github.com/ariefcatur/go-saga-commerce/internal/apperr"
)

var (
	ErrOrderNotFound      = fmt.Errorf("order %w", apperr.ErrNotFound)
	ErrEmptyCart          = fmt.Errorf("%w: cart is empty", apperr.ErrValidation)
	ErrInvalidPaymentType = fmt.Errorf("%w: unknown payment type", apperr.ErrValidation)
	ErrMissingUser        = fmt.Errorf("%w: user is required", apperr.ErrValidation)
	ErrNotCancellable     = fmt.Errorf("%w: order cannot be cancelled", apperr.ErrConflict)
	ErrInvalidTransition  = fmt.Errorf("%w: status transition not allowed", apperr.ErrConflict)
)
