package security

import (
	"crypto/ed25519"
	"crypto/rand"
	"sync"

	"golang.org/x/crypto/chacha20poly1305"
)

// XChaChaProvider is an in-process CipherProvider backed by
// XChaCha20-Poly1305 for AEAD and Ed25519 for signatures. Key material
// lives only inside the provider, addressed by opaque refs.
type XChaChaProvider struct {
	mu      sync.RWMutex
	keys    map[KeyRef][]byte
	signers map[KeyRef]ed25519.PrivateKey
}

// NewXChaChaProvider returns an empty provider.
func NewXChaChaProvider() *XChaChaProvider {
	return &XChaChaProvider{
		keys:    make(map[KeyRef][]byte),
		signers: make(map[KeyRef]ed25519.PrivateKey),
	}
}

// GenerateKey creates fresh symmetric key material behind ref,
// replacing any previous material.
func (p *XChaChaProvider) GenerateKey(ref KeyRef) error {
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := rand.Read(key); err != nil {
		return err
	}
	p.mu.Lock()
	p.keys[ref] = key
	p.mu.Unlock()
	return nil
}

// GenerateSigner creates a fresh Ed25519 keypair behind ref.
func (p *XChaChaProvider) GenerateSigner(ref KeyRef) error {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.signers[ref] = priv
	p.mu.Unlock()
	return nil
}

// Encrypt seals plaintext under the key behind ref. The random nonce
// is prepended to the ciphertext.
func (p *XChaChaProvider) Encrypt(plaintext []byte, ref KeyRef) ([]byte, error) {
	p.mu.RLock()
	key, ok := p.keys[ref]
	p.mu.RUnlock()
	if !ok {
		return nil, ErrUnknownKeyRef
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt opens a ciphertext produced by Encrypt. Authentication
// failures map to ErrAuthenticationFailed, truncated input to
// ErrMalformedInput.
func (p *XChaChaProvider) Decrypt(ciphertext []byte, ref KeyRef) ([]byte, error) {
	p.mu.RLock()
	key, ok := p.keys[ref]
	p.mu.RUnlock()
	if !ok {
		return nil, ErrUnknownKeyRef
	}
	if len(ciphertext) < chacha20poly1305.NonceSizeX+chacha20poly1305.Overhead {
		return nil, ErrMalformedInput
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	nonce := ciphertext[:chacha20poly1305.NonceSizeX]
	plaintext, err := aead.Open(nil, nonce, ciphertext[chacha20poly1305.NonceSizeX:], nil)
	if err != nil {
		return nil, ErrAuthenticationFailed
	}
	return plaintext, nil
}

// Sign signs message with the Ed25519 key behind ref.
func (p *XChaChaProvider) Sign(message []byte, ref KeyRef) ([]byte, error) {
	p.mu.RLock()
	priv, ok := p.signers[ref]
	p.mu.RUnlock()
	if !ok {
		return nil, ErrUnknownKeyRef
	}
	return ed25519.Sign(priv, message), nil
}

// Verify checks an Ed25519 signature made by Sign.
func (p *XChaChaProvider) Verify(message, signature []byte, ref KeyRef) error {
	p.mu.RLock()
	priv, ok := p.signers[ref]
	p.mu.RUnlock()
	if !ok {
		return ErrUnknownKeyRef
	}
	if len(signature) != ed25519.SignatureSize {
		return ErrMalformedInput
	}
	pub := priv.Public().(ed25519.PublicKey)
	if !ed25519.Verify(pub, message, signature) {
		return ErrAuthenticationFailed
	}
	return nil
}

// Purge overwrites and drops the material behind ref.
func (p *XChaChaProvider) Purge(ref KeyRef) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if key, ok := p.keys[ref]; ok {
		for i := range key {
			key[i] = 0
		}
		delete(p.keys, ref)
	}
	if priv, ok := p.signers[ref]; ok {
		for i := range priv {
			priv[i] = 0
		}
		delete(p.signers, ref)
	}
}

var _ CipherProvider = (*XChaChaProvider)(nil)
