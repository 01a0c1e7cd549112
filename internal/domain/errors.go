package domain

import "errors"

// Common domain errors used across the application.
var (
	// ErrValidation is returned when a domain entity fails validation.
	// This is often wrapped with a more specific error message.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidEmail is returned when a client identity is empty or malformed.
	ErrInvalidEmail = errors.New("invalid email")

	// ErrInvalidDuration is returned when an entitlement duration is not positive.
	ErrInvalidDuration = errors.New("invalid duration")

	// ErrUnknownStyle is returned when a style name is not one of the fixed set.
	ErrUnknownStyle = errors.New("unknown style")

	// ErrStyleConsumed is returned when a style flag has already been consumed.
	ErrStyleConsumed = errors.New("style already consumed")
)
