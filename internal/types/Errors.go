package types

import "errors"

// Errors shared across the vault, quote and executor packages.
var (
	ErrInvalidALRange = errors.New("invalid A/L range: require 1.0 < floor <= ceiling")
	ErrALOutOfBounds  = errors.New("A/L ratio outside permitted bounds")
	ErrUnauthorized   = errors.New("caller is not authorized")
)
