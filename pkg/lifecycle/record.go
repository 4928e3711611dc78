package lifecycle

import (
	"fmt"
	"time"

	"github.com/ghostbridge/ghostbridge/pkg/envelope"
)

// State is the runtime lifecycle state of one envelope instance.
type State uint8

const (
	// StateMaterializing is the transient initial state while runtime
	// resources are constructed.
	StateMaterializing State = iota + 1
	// StateMaterialized means the envelope is usable for send and
	// receive.
	StateMaterialized
	// StateVanished is terminal: payload and key pointers are purged.
	StateVanished
)

var stateNames = map[State]string{
	StateMaterializing: "MATERIALIZING",
	StateMaterialized:  "MATERIALIZED",
	StateVanished:      "VANISHED",
}

// String returns the string representation of a State.
func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Unknown(%d)", uint8(s))
}

// InstanceID is the opaque identifier handed to callers in place of a
// record reference. Only the Manager holds records.
type InstanceID string

// record is the materialization record for one live envelope. Owned
// exclusively by the Manager; all fields are guarded by the Manager's
// mutex.
type record struct {
	state          State
	env            *envelope.Envelope
	materializedAt time.Time
	vanishDeadline time.Time
	method         envelope.VanishMethod
	resources      envelope.ResourceConstraints
}

// HistoryEntry is the sanitized trace of a vanished envelope: header
// metadata and the vanish reason, never payload or key material.
type HistoryEntry struct {
	ID             string
	Class          envelope.ProtocolClass
	Source         string
	Destination    string
	CreatedAtMs    int64
	TTLMs          int64
	ExpiresAtMs    int64
	MaterializedMs int64
	VanishedMs     int64
	Method         envelope.VanishMethod
	Reason         string
}

// HistorySink receives vanish history entries, typically for
// persistence across restarts. Sink failures are logged, never fatal.
type HistorySink interface {
	Append(entry HistoryEntry) error
}
