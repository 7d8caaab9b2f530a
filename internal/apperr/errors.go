// Package apperr holds error kinds shared across packages.
package apperr

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrAlreadyExists    = errors.New("already exists")
	ErrInvalidInput     = errors.New("invalid input")
	ErrInvalidArguments = errors.New("invalid arguments")
)
