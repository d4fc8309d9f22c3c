// Package apperr holds the error kinds every service maps to a response.
// Packages wrap them in their own sentinels, e.g.
//
//	var ErrOrderNotFound = fmt.Errorf("order %w", apperr.ErrNotFound)
package apperr

import "errors"

var (
	ErrValidation = errors.New("invalid input")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
)
