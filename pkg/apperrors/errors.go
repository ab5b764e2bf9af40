// Package apperrors defines error categories shared across packages.
// Wrap one of these with %w so callers can map failures with errors.Is.
package apperrors

import "errors"

var (
	ErrConflict       = errors.New("conflict")
	ErrInvalidRequest = errors.New("invalid request")
	ErrUpstream       = errors.New("upstream failure")
)
