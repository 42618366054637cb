package swap

import "errors"

// Validation failures are detected before any state mutation and are
// correctable by the caller. Oracle failures mean the caller should retry
// with a fresh sample. Everything else is a fatal integrity violation.
var (
	ErrAmountZero      = errors.New("swap: amount must be greater than zero")
	ErrInvalidTokenIn  = errors.New("swap: token in is not allow-listed")
	ErrInvalidTokenOut = errors.New("swap: token out is not allow-listed")
	ErrSameToken       = errors.New("swap: token in and token out cannot be the same")
	ErrOfferExists     = errors.New("swap: active offer already exists for depositor and token")
	ErrOfferNotFound   = errors.New("swap: offer not found")

	ErrInvalidPrice = errors.New("swap: oracle price must be positive")
	ErrStalePrice   = errors.New("swap: oracle price sample exceeds maximum age")

	ErrAmountOverflow = errors.New("swap: amount exceeds supported range")
	ErrVaultMismatch  = errors.New("swap: vault does not match derived authority")

	ErrConfigNotSet = errors.New("swap: module config not initialised")
)
