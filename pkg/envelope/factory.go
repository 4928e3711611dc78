package envelope

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math"
	"time"
)

// DefaultMinTTLMs is the absolute TTL floor applied when BuildOptions
// does not supply one. No envelope ever gets a shorter life, no matter
// how far gravity collapses.
const DefaultMinTTLMs = 100

// Default algorithm identifiers declared on new envelopes. They must
// stay inside the negotiator's allow-lists.
const (
	DefaultKeyExchange     = "X25519"
	DefaultSignature       = "Ed25519"
	DefaultSymmetricCipher = "XChaCha20-Poly1305"
	DefaultHash            = "SHA-512"
	DefaultMAC             = "HMAC-SHA256"
)

// GravitySource supplies the current effective gravity G in (0, 1]
// used to scale envelope TTLs.
type GravitySource interface {
	Effective() float64
}

// BuildOptions tunes a single envelope construction. The zero value
// yields class defaults throughout.
type BuildOptions struct {
	// TTLMs overrides the class default TTL when > 0. The validator
	// still enforces the class ceiling.
	TTLMs int64

	// MinTTLMs overrides DefaultMinTTLMs when > 0.
	MinTTLMs int64

	// Tier overrides the declared security tier. It is raised to the
	// class minimum if set lower; tiers are never downgraded.
	Tier SecurityTier

	Source      string
	Destination string
	Priority    uint8

	// MaxHops bounds the routing path; defaults to 8.
	MaxHops uint8

	Flags Flags

	// VanishMethod defaults to VanishZeroize.
	VanishMethod VanishMethod

	// KeyRefs are opaque key-material pointers handed to the cipher
	// provider.
	KeyRefs []string
}

// Factory builds envelopes. It never mutates shared state; registering
// the result with the lifecycle manager is the caller's job, after
// passing it through the Validator.
type Factory struct {
	gravity GravitySource
}

// NewFactory returns a Factory that derives TTL scaling from gravity.
func NewFactory(gravity GravitySource) *Factory {
	return &Factory{gravity: gravity}
}

// Build assembles an unvalidated envelope for class around fields.
//
// The TTL is the class default (or the option override) scaled by the
// current effective gravity and floored at the minimum TTL, so
// envelopes live shorter lives under load but never collapse to zero.
func (f *Factory) Build(class ProtocolClass, fields map[string][]byte, opts BuildOptions) (*Envelope, error) {
	policy, ok := PolicyFor(class)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownProtocolClass, uint8(class))
	}

	baseTTL := policy.DefaultTTLMs
	if opts.TTLMs > 0 {
		baseTTL = opts.TTLMs
	}
	minTTL := int64(DefaultMinTTLMs)
	if opts.MinTTLMs > 0 {
		minTTL = opts.MinTTLMs
	}

	g := 1.0
	if f.gravity != nil {
		g = f.gravity.Effective()
	}
	if g <= 0 || g > 1 {
		return nil, fmt.Errorf("effective gravity %v out of (0,1]", g)
	}

	adjustedTTL := int64(math.Round(float64(baseTTL) * g))
	if adjustedTTL < minTTL {
		adjustedTTL = minTTL
	}

	tier := policy.MinTier
	if opts.Tier > tier {
		tier = opts.Tier
	}

	maxHops := opts.MaxHops
	if maxHops == 0 {
		maxHops = 8
	}
	method := opts.VanishMethod
	if method == 0 {
		method = VanishZeroize
	}

	now := time.Now().UnixMilli()
	id, err := newEnvelopeID(now)
	if err != nil {
		return nil, fmt.Errorf("generating envelope id: %w", err)
	}

	flags := opts.Flags
	if opts.Destination == BroadcastDestination {
		flags |= FlagBroadcast
	}

	return &Envelope{
		Header: Header{
			ID:          id,
			Class:       class,
			Source:      opts.Source,
			Destination: opts.Destination,
			CreatedAtMs: now,
			TTLMs:       adjustedTTL,
			ExpiresAtMs: now + adjustedTTL,
			MaxHops:     maxHops,
			Priority:    opts.Priority,
			Flags:       flags,
		},
		Payload: Payload{
			Class:  class,
			Fields: fields,
		},
		Security: SecurityContext{
			KeyExchange:     DefaultKeyExchange,
			Signature:       DefaultSignature,
			SymmetricCipher: DefaultSymmetricCipher,
			Hash:            DefaultHash,
			MAC:             DefaultMAC,
			KeyRefs:         opts.KeyRefs,
			Tier:            tier,
		},
		VanishMethod: method,
	}, nil
}

// newEnvelopeID builds a globally unique id: millisecond time prefix
// plus a 64-bit random suffix.
func newEnvelopeID(nowMs int64) (string, error) {
	suffix := make([]byte, 8)
	if _, err := rand.Read(suffix); err != nil {
		return "", err
	}
	return fmt.Sprintf("%013x-%s", nowMs, hex.EncodeToString(suffix)), nil
}
