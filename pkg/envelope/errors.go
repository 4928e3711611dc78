package envelope

import (
	"errors"
	"fmt"
)

// Construction/validation errors. All are recoverable locally; a
// rejected envelope is simply never registered with the lifecycle
// manager. Callers discriminate with errors.Is.
var (
	// ErrMalformed means header, payload or security context is
	// structurally absent.
	ErrMalformed = errors.New("envelope: malformed")

	// ErrUnknownProtocolClass means the header's class tag is outside
	// the closed enumeration.
	ErrUnknownProtocolClass = errors.New("envelope: unknown protocol class")

	// ErrPayloadTooLarge means the payload exceeds the class's
	// MaxPayloadBytes.
	ErrPayloadTooLarge = errors.New("envelope: payload too large")

	// ErrTTLExceedsPolicy means the header TTL exceeds the class's
	// MaxTTLMs.
	ErrTTLExceedsPolicy = errors.New("envelope: ttl exceeds policy")

	// ErrMissingRequiredField means a payload field required by the
	// class is absent.
	ErrMissingRequiredField = errors.New("envelope: missing required field")

	// ErrInsufficientSecurityTier means the declared tier is below the
	// class minimum.
	ErrInsufficientSecurityTier = errors.New("envelope: insufficient security tier")
)

func missingFieldError(name string) error {
	return fmt.Errorf("%w: %q", ErrMissingRequiredField, name)
}
