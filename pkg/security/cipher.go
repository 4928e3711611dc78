package security

import "errors"

// KeyRef is an opaque pointer to key material held by a cipher
// provider. Raw key bytes never leave the provider.
type KeyRef string

// Cipher-provider failure modes. Every provider error is non-retryable
// and must be surfaced unchanged to the caller.
var (
	// ErrAuthenticationFailed means a ciphertext or signature failed
	// authentication. Non-recoverable; the envelope instance must be
	// force-vanished.
	ErrAuthenticationFailed = errors.New("security: authentication failed")

	// ErrMalformedInput means the input could not be parsed at all.
	ErrMalformedInput = errors.New("security: malformed input")

	// ErrUnknownKeyRef means the provider holds no material for the
	// reference.
	ErrUnknownKeyRef = errors.New("security: unknown key ref")

	// ErrCipherUnavailable means the capability is not present on this
	// system (no keystore, no TEE). Callers must treat the capability
	// as absent, not retry.
	ErrCipherUnavailable = errors.New("security: cipher provider unavailable")
)

// CipherProvider is the capability interface the envelope subsystem
// consumes for all cryptography. Implementations may be backed by
// anything from an in-process keyring to hardware key storage; the
// subsystem only sees key references and the failure modes above.
type CipherProvider interface {
	Encrypt(plaintext []byte, key KeyRef) ([]byte, error)
	Decrypt(ciphertext []byte, key KeyRef) ([]byte, error)
	Sign(message []byte, key KeyRef) ([]byte, error)
	Verify(message, signature []byte, key KeyRef) error

	// Purge irrevocably drops the key material behind a reference.
	// Purging an unknown ref is a no-op.
	Purge(key KeyRef)
}

// UnavailableProvider is the explicit "capability absent" variant.
// Every operation fails with ErrCipherUnavailable.
type UnavailableProvider struct{}

// Encrypt always fails with ErrCipherUnavailable.
func (UnavailableProvider) Encrypt([]byte, KeyRef) ([]byte, error) {
	return nil, ErrCipherUnavailable
}

// Decrypt always fails with ErrCipherUnavailable.
func (UnavailableProvider) Decrypt([]byte, KeyRef) ([]byte, error) {
	return nil, ErrCipherUnavailable
}

// Sign always fails with ErrCipherUnavailable.
func (UnavailableProvider) Sign([]byte, KeyRef) ([]byte, error) {
	return nil, ErrCipherUnavailable
}

// Verify always fails with ErrCipherUnavailable.
func (UnavailableProvider) Verify([]byte, []byte, KeyRef) error {
	return ErrCipherUnavailable
}

// Purge is a no-op.
func (UnavailableProvider) Purge(KeyRef) {}

var _ CipherProvider = UnavailableProvider{}
