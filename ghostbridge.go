// Package ghostbridge wires the ephemeral secure envelope subsystem
// together: envelope construction and validation, gravity-driven TTL
// policy, the materialize/vanish lifecycle, security negotiation, and
// transport plumbing.
//
// A GhostBridge composes envelopes locally, sends and receives them
// through the configured transport, and guarantees that every
// materialized instance vanishes, whether by expiry sweep, read
// trigger, explicit burn, or shutdown.
package ghostbridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ghostbridge/ghostbridge/pkg/envelope"
	"github.com/ghostbridge/ghostbridge/pkg/gravity"
	"github.com/ghostbridge/ghostbridge/pkg/lifecycle"
	"github.com/ghostbridge/ghostbridge/pkg/security"
	"github.com/ghostbridge/ghostbridge/pkg/signals"
	"github.com/ghostbridge/ghostbridge/pkg/transport"
)

// ErrUnreadable is the only error surfaced for a received envelope
// that fails decoding, validation or security checks. The instance is
// vanished (or never materialized) and the detailed cause is kept out
// of the caller's reach to avoid oracle attacks.
var ErrUnreadable = errors.New("ghostbridge: unreadable message")

// GhostBridge is the facade over the envelope subsystem.
type GhostBridge struct {
	config Config

	policy     *gravity.Policy
	collector  *signals.Collector
	factory    *envelope.Factory
	validator  *envelope.Validator
	negotiator *security.Negotiator
	manager    *lifecycle.Manager
	transport  transport.Transport

	ownsTransport bool

	gravityBits atomic.Uint64
	quantum     atomic.Bool

	stopCh   chan struct{}
	stopOnce sync.Once
	log      *slog.Logger
}

// New builds and starts a GhostBridge: the expiry sweep and the
// gravity refresh loop run until Close.
func New(config Config) (*GhostBridge, error) {
	config = config.withDefaults()

	ownsTransport := false
	if config.Transport == nil {
		config.Transport = transport.NewLoopback(64)
		ownsTransport = true
	}

	gb := &GhostBridge{
		config:        config,
		policy:        gravity.NewPolicy(config.MinTTLMs, config.MinSyncMs),
		collector:     signals.NewCollector(),
		validator:     envelope.NewValidator(),
		negotiator:    security.NewNegotiator(),
		transport:     config.Transport,
		ownsTransport: ownsTransport,
		stopCh:        make(chan struct{}),
		log:           config.Logger,
	}
	gb.factory = envelope.NewFactory(gb)
	gb.gravityBits.Store(math.Float64bits(1.0))

	gb.manager = lifecycle.NewManager(lifecycle.Options{
		SweepInterval: config.SweepInterval,
		HistoryLimit:  config.HistoryLimit,
		Sink:          config.HistorySink,
		Purger:        config.Cipher,
		Logger:        config.Logger,
	})
	gb.manager.Start()

	go gb.refreshLoop()

	return gb, nil
}

// Effective returns the most recently computed effective gravity.
// Implements envelope.GravitySource.
func (gb *GhostBridge) Effective() float64 {
	return math.Float64frombits(gb.gravityBits.Load())
}

// IsQuantumMode reports whether gravity has collapsed below the
// quantum threshold; new envelopes are pinned to the minimum TTL while
// it holds.
func (gb *GhostBridge) IsQuantumMode() bool {
	return gb.quantum.Load()
}

// SetThreatScore forwards the active-threat score in [0, 1] to the
// signal collector.
func (gb *GhostBridge) SetThreatScore(score float64) {
	gb.collector.SetThreatScore(score)
}

// SetBatteryDrain forwards the battery drain ratio in [0, 1] to the
// signal collector.
func (gb *GhostBridge) SetBatteryDrain(drain float64) {
	gb.collector.SetBatteryDrain(drain)
}

// refreshLoop samples signals and recomputes gravity. The tick
// interval itself is gravity-scaled through SyncInterval, floored at
// the minimum sync interval.
func (gb *GhostBridge) refreshLoop() {
	interval := time.Duration(gb.config.BaseSyncMs) * time.Millisecond
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-gb.stopCh:
			return
		case <-timer.C:
			g := gb.refreshGravity()
			interval = time.Duration(gb.policy.SyncInterval(gb.config.BaseSyncMs, g)) * time.Millisecond
			timer.Reset(interval)
		}
	}
}

// refreshGravity recomputes and stores effective gravity from a fresh
// signal sample, logging quantum-mode transitions.
func (gb *GhostBridge) refreshGravity() float64 {
	energy := gravity.ComputeEnergy(gb.collector.Sample())
	g := gb.policy.EffectiveGravity(energy)
	gb.gravityBits.Store(math.Float64bits(g))

	quantum := gb.policy.IsQuantumMode(g)
	if quantum != gb.quantum.Swap(quantum) {
		if quantum {
			gb.log.Warn("entering quantum mode", "gravity", g, "energy", energy)
		} else {
			gb.log.Info("leaving quantum mode", "gravity", g, "energy", energy)
		}
	}
	return g
}

// Compose builds, validates and materializes a locally originated
// envelope, returning its instance id.
func (gb *GhostBridge) Compose(class envelope.ProtocolClass, fields map[string][]byte, opts envelope.BuildOptions) (lifecycle.InstanceID, error) {
	if opts.Source == "" {
		opts.Source = gb.config.Source
	}
	if opts.MinTTLMs == 0 {
		opts.MinTTLMs = gb.config.MinTTLMs
	}

	env, err := gb.factory.Build(class, fields, opts)
	if err != nil {
		return "", err
	}
	if err := gb.validator.Validate(env); err != nil {
		return "", err
	}
	return gb.manager.Materialize(env)
}

// Send serializes and transmits a materialized envelope. Transport
// errors are propagated unchanged; the subsystem never retries.
func (gb *GhostBridge) Send(ctx context.Context, id lifecycle.InstanceID) error {
	frame, err := gb.manager.Encode(id)
	if err != nil {
		return err
	}
	return gb.transport.Send(ctx, frame)
}

// Receive blocks for the next envelope from the transport, then
// re-runs the full construction-time checks: decode, validation,
// security negotiation, expiry. Any failure vanishes the instance and
// yields only ErrUnreadable. Transport errors pass through unchanged.
func (gb *GhostBridge) Receive(ctx context.Context) (lifecycle.InstanceID, error) {
	frame, err := gb.transport.Receive(ctx)
	if err != nil {
		return "", err
	}

	env, err := envelope.Decode(frame)
	if err != nil {
		gb.log.Debug("dropping undecodable frame", "err", err)
		return "", ErrUnreadable
	}

	if err := gb.validator.Validate(env); err != nil {
		gb.log.Debug("dropping invalid envelope", "id", env.Header.ID, "err", err)
		return "", ErrUnreadable
	}

	if err := gb.negotiator.Verify(&env.Security); err != nil {
		// Security failures are non-recoverable for the instance:
		// vanish anything live under this id, never downgrade.
		gb.manager.Vanish(lifecycle.InstanceID(env.Header.ID), "security")
		gb.log.Debug("dropping envelope with unsupported algorithms", "id", env.Header.ID, "err", err)
		return "", ErrUnreadable
	}

	id, err := gb.manager.Materialize(env)
	if err != nil {
		gb.log.Debug("dropping unmaterializable envelope", "id", env.Header.ID, "err", err)
		return "", ErrUnreadable
	}
	return id, nil
}

// ReadPayload grants callback-scoped access to a materialized
// envelope's payload fields. See lifecycle.Manager.ReadPayload.
func (gb *GhostBridge) ReadPayload(id lifecycle.InstanceID, fn func(fields map[string][]byte) error) error {
	return gb.manager.ReadPayload(id, fn)
}

// Burn explicitly vanishes an instance. Idempotent.
func (gb *GhostBridge) Burn(id lifecycle.InstanceID, reason string) {
	gb.manager.Vanish(id, reason)
}

// LiveCount returns the number of materialized instances.
func (gb *GhostBridge) LiveCount() int {
	return gb.manager.LiveCount()
}

// History returns the bounded in-memory vanish history.
func (gb *GhostBridge) History() []lifecycle.HistoryEntry {
	return gb.manager.History()
}

// Close stops the background loops, vanishes all live instances, and
// closes the transport if the bridge owns it.
func (gb *GhostBridge) Close() error {
	gb.stopOnce.Do(func() { close(gb.stopCh) })
	gb.manager.Close()
	if gb.ownsTransport {
		if err := gb.transport.Close(); err != nil {
			return fmt.Errorf("closing transport: %w", err)
		}
	}
	return nil
}

var _ envelope.GravitySource = (*GhostBridge)(nil)
