// Package apperr defines sentinel errors shared across the wiki layers.
package apperr

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrInvalidTitle  = errors.New("invalid title")
	ErrConflict      = errors.New("conflict")
)
