package envelope

import "fmt"

// Validator checks envelopes against the closed per-class policy
// table. Validation is pure and deterministic and runs identically at
// construction time and on every receipt; there is no trust-on-send
// shortcut.
type Validator struct{}

// NewValidator returns a Validator over the built-in policy table.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate checks env in a fixed order: structure and header
// invariants, class lookup, payload size, TTL, required fields,
// security tier. The first failed check determines the returned error.
func (v *Validator) Validate(env *Envelope) error {
	if env == nil {
		return ErrMalformed
	}
	if env.Header.ID == "" {
		return fmt.Errorf("%w: empty header id", ErrMalformed)
	}
	if env.Payload.Fields == nil {
		return fmt.Errorf("%w: no payload", ErrMalformed)
	}
	if env.Security.Tier == 0 {
		return fmt.Errorf("%w: no security context", ErrMalformed)
	}

	// Header invariants hold on receipt as well as at construction. The
	// expiry identity keeps a forged ExpiresAtMs from outliving the TTL
	// the ceiling check below approved.
	if env.Header.ExpiresAtMs != env.Header.CreatedAtMs+env.Header.TTLMs {
		return fmt.Errorf("%w: expiry %d != creation %d + ttl %d",
			ErrMalformed, env.Header.ExpiresAtMs, env.Header.CreatedAtMs, env.Header.TTLMs)
	}
	if env.Header.HopCount > env.Header.MaxHops {
		return fmt.Errorf("%w: hop count %d > max hops %d",
			ErrMalformed, env.Header.HopCount, env.Header.MaxHops)
	}

	policy, ok := PolicyFor(env.Header.Class)
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownProtocolClass, uint8(env.Header.Class))
	}

	if size := env.Payload.Size(); size > policy.MaxPayloadBytes {
		return fmt.Errorf("%w: %d > %d bytes for %s",
			ErrPayloadTooLarge, size, policy.MaxPayloadBytes, env.Header.Class)
	}

	if env.Header.TTLMs > policy.MaxTTLMs {
		return fmt.Errorf("%w: %dms > %dms for %s",
			ErrTTLExceedsPolicy, env.Header.TTLMs, policy.MaxTTLMs, env.Header.Class)
	}

	for _, name := range policy.RequiredFields {
		if _, ok := env.Payload.Fields[name]; !ok {
			return missingFieldError(name)
		}
	}

	if env.Security.Tier < policy.MinTier {
		return fmt.Errorf("%w: %s < %s for %s",
			ErrInsufficientSecurityTier, env.Security.Tier, policy.MinTier, env.Header.Class)
	}

	return nil
}
