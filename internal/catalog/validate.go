package catalog

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// Slugify lowercases s and joins its letter and digit runs with single hyphens.
func Slugify(s string) string {
	var b strings.Builder
	pendingDash := false
	for _, r := range strings.ToLower(s) {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			b.WriteRune(r)
			pendingDash = false
			continue
		}
		pendingDash = true
	}
	return b.String()
}

func validateProduct(p Product) error {
	switch {
	case p.Name == "":
		return fmt.Errorf("%w: name is required", ErrInvalidProduct)
	case !slugPattern.MatchString(p.Slug):
		return fmt.Errorf("%w: invalid slug %q", ErrInvalidProduct, p.Slug)
	case p.SKU == "":
		return fmt.Errorf("%w: sku is required", ErrInvalidProduct)
	case p.Price.IsNegative():
		return fmt.Errorf("%w: price must not be negative", ErrInvalidProduct)
	case p.Stock < 0:
		return fmt.Errorf("%w: stock must not be negative", ErrInvalidProduct)
	}
	return nil
}

func validateVariant(v Variant) error {
	switch {
	case v.SKU == "":
		return fmt.Errorf("%w: sku is required", ErrInvalidVariant)
	case v.Name == "":
		return fmt.Errorf("%w: name is required", ErrInvalidVariant)
	case v.Price.IsNegative():
		return fmt.Errorf("%w: price must not be negative", ErrInvalidVariant)
	case v.Stock < 0:
		return fmt.Errorf("%w: stock must not be negative", ErrInvalidVariant)
	}
	return nil
}

func validateCategory(c Category) error {
	switch {
	case c.Name == "":
		return fmt.Errorf("%w: name is required", ErrInvalidCategory)
	case !slugPattern.MatchString(c.Slug):
		return fmt.Errorf("%w: invalid slug %q", ErrInvalidCategory, c.Slug)
	}
	return nil
}

func validatePriceFilter(q ListQuery) error {
	for _, v := range []string{q.MinPrice, q.MaxPrice} {
		if v == "" {
			continue
		}
		if _, err := decimal.NewFromString(v); err != nil {
			return fmt.Errorf("%w: invalid price filter %q", ErrInvalidProduct, v)
		}
	}
	return nil
}
