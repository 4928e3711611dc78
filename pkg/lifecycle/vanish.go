package lifecycle

import (
	"github.com/ghostbridge/ghostbridge/pkg/envelope"
	"github.com/ghostbridge/ghostbridge/pkg/security"
)

// VanishStrategy destroys an envelope's payload and key-pointer
// material. Vanish is a logical guarantee of inaccessibility; physical
// wipe guarantees belong to the memory-wiping collaborator behind the
// cipher provider.
type VanishStrategy interface {
	Vanish(env *envelope.Envelope) error
}

// KeyPurger is the slice of the cipher provider the zeroize strategy
// needs: dropping key material behind a reference.
type KeyPurger interface {
	Purge(key security.KeyRef)
}

// ZeroizeStrategy overwrites payload fields in place and purges every
// key reference through the cipher provider.
type ZeroizeStrategy struct {
	Purger KeyPurger
}

// Vanish zeroizes env's payload and purges its key refs.
func (s ZeroizeStrategy) Vanish(env *envelope.Envelope) error {
	env.Payload.Zeroize()
	if s.Purger != nil {
		for _, ref := range env.Security.KeyRefs {
			s.Purger.Purge(security.KeyRef(ref))
		}
	}
	env.Security.KeyRefs = nil
	env.Security.Auth = envelope.AuthMaterial{}
	return nil
}

// DropStrategy releases references without overwriting. Used where the
// payload is already ciphertext and the key purge alone makes it
// unrecoverable.
type DropStrategy struct {
	Purger KeyPurger
}

// Vanish drops env's payload and key refs.
func (s DropStrategy) Vanish(env *envelope.Envelope) error {
	env.Payload.Fields = nil
	if s.Purger != nil {
		for _, ref := range env.Security.KeyRefs {
			s.Purger.Purge(security.KeyRef(ref))
		}
	}
	env.Security.KeyRefs = nil
	return nil
}

func defaultStrategies(purger KeyPurger) map[envelope.VanishMethod]VanishStrategy {
	return map[envelope.VanishMethod]VanishStrategy{
		envelope.VanishZeroize: ZeroizeStrategy{Purger: purger},
		envelope.VanishDrop:    DropStrategy{Purger: purger},
	}
}
