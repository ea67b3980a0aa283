package model

import "errors"

var (
	// ErrNotFound marks an unknown product, pending purchase or buyer.
	ErrNotFound = errors.New("not found")
	// ErrConflict marks a duplicate pending purchase or a double approval.
	ErrConflict = errors.New("conflict")
	// ErrUnauthorized marks a caller lacking the required entitlement.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidSecret marks a TOTP seed that is not valid base32.
	ErrInvalidSecret = errors.New("invalid secret")
	// ErrMissingSecret marks a product with no TOTP seed configured.
	ErrMissingSecret = errors.New("missing secret")
	// ErrStorage marks a persistence failure; the mutation must not be
	// assumed applied.
	ErrStorage = errors.New("storage failure")
)
