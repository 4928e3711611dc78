// Package envelope defines the ephemeral secure envelope data model:
// headers, security contexts, protocol classes and the per-class policy
// table, together with the factory and validator that produce and check
// envelope instances.
package envelope

import "fmt"

// ProtocolClass identifies the category of an envelope.
//
// Classes are a closed set. Each class carries a fixed policy (payload
// ceiling, TTL ceiling and default, minimum security tier, resource
// constraints) looked up via PolicyFor.
type ProtocolClass uint8

const (
	// ClassWhisper is the smallest, shortest-lived class for direct
	// one-to-one messages.
	ClassWhisper ProtocolClass = iota + 1
	// ClassBridge carries relayed messages between two endpoints.
	ClassBridge
	// ClassMesh carries multi-hop mesh traffic.
	ClassMesh
	// ClassTunnel carries long-lived tunneled streams of fragments.
	ClassTunnel
)

var classNames = map[ProtocolClass]string{
	ClassWhisper: "WHISPER",
	ClassBridge:  "BRIDGE",
	ClassMesh:    "MESH",
	ClassTunnel:  "TUNNEL",
}

// String returns the string representation of a ProtocolClass.
func (c ProtocolClass) String() string {
	if name, ok := classNames[c]; ok {
		return name
	}
	return fmt.Sprintf("Unknown(%d)", uint8(c))
}

// Classes returns all known protocol classes in declaration order.
func Classes() []ProtocolClass {
	return []ProtocolClass{ClassWhisper, ClassBridge, ClassMesh, ClassTunnel}
}

// SecurityTier is the ordered classification of the minimum acceptable
// cryptographic strength for an envelope. Higher values are stronger.
type SecurityTier uint8

const (
	// TierVulnerable offers no meaningful protection.
	TierVulnerable SecurityTier = iota + 1
	// TierResistant resists passive observation.
	TierResistant
	// TierSafe resists active attackers.
	TierSafe
)

var tierNames = map[SecurityTier]string{
	TierVulnerable: "VULNERABLE",
	TierResistant:  "RESISTANT",
	TierSafe:       "SAFE",
}

// String returns the string representation of a SecurityTier.
func (t SecurityTier) String() string {
	if name, ok := tierNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Unknown(%d)", uint8(t))
}

// Flags is the envelope flag set.
type Flags uint8

const (
	// FlagRequiresAck requests an acknowledgement from the receiver.
	FlagRequiresAck Flags = 1 << iota
	// FlagBroadcast marks the envelope as addressed to all peers.
	FlagBroadcast
	// FlagRequiresPFS requires forward-secret key material.
	FlagRequiresPFS
	// FlagVanishOnRead vanishes the envelope after the first payload read.
	FlagVanishOnRead
)

// Has reports whether all bits of f2 are set in f.
func (f Flags) Has(f2 Flags) bool { return f&f2 == f2 }

// BroadcastDestination is the sentinel destination identifier meaning
// "all reachable peers".
const BroadcastDestination = "*"

// VanishMethod selects the strategy used to destroy an envelope's
// payload and key pointers when it vanishes.
type VanishMethod uint8

const (
	// VanishZeroize overwrites payload fields and drops key pointers.
	VanishZeroize VanishMethod = iota + 1
	// VanishDrop releases references without overwriting.
	VanishDrop
)

var vanishMethodNames = map[VanishMethod]string{
	VanishZeroize: "Zeroize",
	VanishDrop:    "Drop",
}

// String returns the string representation of a VanishMethod.
func (m VanishMethod) String() string {
	if name, ok := vanishMethodNames[m]; ok {
		return name
	}
	return fmt.Sprintf("Unknown(%d)", uint8(m))
}

// Header identifies one message instance.
//
// Invariants, enforced by the factory and re-checked by the validator:
// ExpiresAtMs == CreatedAtMs + TTLMs, HopCount <= MaxHops, and TTLMs
// never exceeds the class's MaxTTLMs.
type Header struct {
	// ID is globally unique: millisecond time prefix plus random suffix.
	ID string

	// Class tags the envelope's protocol class.
	Class ProtocolClass

	// Source identifies the sending peer.
	Source string

	// Destination identifies the receiving peer, or
	// BroadcastDestination.
	Destination string

	// CreatedAtMs is the creation time, Unix milliseconds.
	CreatedAtMs int64

	// TTLMs is the envelope's time to live in milliseconds.
	TTLMs int64

	// ExpiresAtMs is CreatedAtMs + TTLMs.
	ExpiresAtMs int64

	// HopCount is the number of hops taken so far.
	HopCount uint8

	// MaxHops bounds HopCount.
	MaxHops uint8

	// Route is the ordered hop path, empty until routed.
	Route []string

	// Priority orders delivery, higher first.
	Priority uint8

	// Flags is the envelope flag set.
	Flags Flags
}

// AuthMaterial carries the authentication bytes attached to an
// envelope's security context.
type AuthMaterial struct {
	MAC        []byte
	Signature  []byte
	SignerID   string
	SignedAtMs int64
}

// SecurityContext declares the negotiated algorithm identifiers and
// key-material pointers for one envelope.
//
// KeyRefs are opaque identifiers resolved by the cipher provider; raw
// key bytes are never stored here.
type SecurityContext struct {
	// KeyExchange, Signature, SymmetricCipher, Hash and MAC name the
	// negotiated algorithms. They are checked against closed
	// allow-lists before an envelope may materialize.
	KeyExchange     string
	Signature       string
	SymmetricCipher string
	Hash            string
	MAC             string

	// KeyRefs are opaque key-material pointers.
	KeyRefs []string

	// Auth is the attached authentication material.
	Auth AuthMaterial

	// Tier is the declared security tier. It must be at least the
	// protocol class's minimum; the validator rejects anything lower
	// rather than downgrading.
	Tier SecurityTier
}

// Payload is the protocol-class-tagged payload wrapper. Fields carries
// the named payload fields; the class policy lists which names are
// required.
type Payload struct {
	Class  ProtocolClass
	Fields map[string][]byte
}

// Size returns the total payload size in bytes, the sum of all field
// values. This is the quantity bounded by the class's MaxPayloadBytes.
func (p Payload) Size() int {
	total := 0
	for _, v := range p.Fields {
		total += len(v)
	}
	return total
}

// Zeroize overwrites every payload field in place and drops the field
// map. The logical content is unrecoverable through this struct
// afterwards.
func (p *Payload) Zeroize() {
	for _, v := range p.Fields {
		for i := range v {
			v[i] = 0
		}
	}
	p.Fields = nil
}

// Envelope is the unit that is transmitted: header, tagged payload,
// security context and the vanish method to apply at end of life.
//
// Envelopes are fully independent instances; there is no pooling. After
// vanish the payload and the security context's key pointers are
// logically zeroized, and only sanitized header metadata survives in
// the vanish history.
type Envelope struct {
	Header   Header
	Payload  Payload
	Security SecurityContext

	// VanishMethod selects the destruction strategy applied by the
	// lifecycle manager.
	VanishMethod VanishMethod
}
