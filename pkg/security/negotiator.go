// Package security holds the security-context negotiator and the
// cipher-provider capability consumed by the envelope subsystem.
package security

import (
	"errors"
	"fmt"

	"github.com/ghostbridge/ghostbridge/pkg/envelope"
)

// ErrUnsupportedAlgorithm means a declared algorithm identifier is
// outside the closed allow-list for its kind. Non-recoverable for the
// envelope instance; the caller must force-vanish it, never retry with
// weaker parameters.
var ErrUnsupportedAlgorithm = errors.New("security: unsupported algorithm")

// Closed allow-lists. An identifier outside its list is rejected
// regardless of tier.
var (
	allowedKeyExchange = map[string]bool{
		"X25519":    true,
		"ECDH-P256": true,
	}
	allowedSignature = map[string]bool{
		"Ed25519":    true,
		"ECDSA-P256": true,
	}
	allowedSymmetricCipher = map[string]bool{
		"XChaCha20-Poly1305": true,
		"ChaCha20-Poly1305":  true,
		"AES-256-GCM":        true,
	}
)

// Negotiator verifies that an envelope's declared cryptographic
// algorithm set is a supported combination before the envelope may
// materialize. It runs on every receive path before the payload is
// unwrapped, independent of (and after) the validator's tier check.
type Negotiator struct{}

// NewNegotiator returns a Negotiator over the built-in allow-lists.
func NewNegotiator() *Negotiator {
	return &Negotiator{}
}

// Verify checks each declared algorithm identifier against its
// allow-list.
func (n *Negotiator) Verify(sc *envelope.SecurityContext) error {
	if sc == nil {
		return fmt.Errorf("%w: no security context", ErrUnsupportedAlgorithm)
	}
	if !allowedKeyExchange[sc.KeyExchange] {
		return unsupported("key-exchange", sc.KeyExchange)
	}
	if !allowedSignature[sc.Signature] {
		return unsupported("signature", sc.Signature)
	}
	if !allowedSymmetricCipher[sc.SymmetricCipher] {
		return unsupported("symmetric-cipher", sc.SymmetricCipher)
	}
	return nil
}

func unsupported(kind, value string) error {
	return fmt.Errorf("%w: %s %q", ErrUnsupportedAlgorithm, kind, value)
}
