package catalog

import (
	"fmt"

	"github.com/ariefcatur/go-saga-commerce/internal/apperr"
)

var (
	ErrProductNotFound  = fmt.Errorf("product %w", apperr.ErrNotFound)
	ErrVariantNotFound  = fmt.Errorf("variant %w", apperr.ErrNotFound)
	ErrCategoryNotFound = fmt.Errorf("category %w", apperr.ErrNotFound)

	ErrSlugTaken = fmt.Errorf("%w: slug already in use", apperr.ErrConflict)
	ErrSKUTaken  = fmt.Errorf("%w: sku already in use", apperr.ErrConflict)

	ErrInvalidProduct  = fmt.Errorf("%w: product", apperr.ErrValidation)
	ErrInvalidVariant  = fmt.Errorf("%w: variant", apperr.ErrValidation)
	ErrInvalidCategory = fmt.Errorf("%w: category", apperr.ErrValidation)
)
