package lifecycle

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ghostbridge/ghostbridge/pkg/envelope"
	"github.com/ghostbridge/ghostbridge/pkg/logging"
)

// Lifecycle errors.
var (
	// ErrProtocolNotReady means the instance is not in MATERIALIZED
	// state (never materialized, already vanished, or expired).
	// Recoverable; the caller may construct a new envelope.
	ErrProtocolNotReady = errors.New("lifecycle: protocol not ready")

	// ErrAlreadyMaterialized means an instance with the same id is
	// already live, e.g. a duplicate delivery.
	ErrAlreadyMaterialized = errors.New("lifecycle: already materialized")

	// ErrExpired means the envelope's deadline passed before it could
	// materialize.
	ErrExpired = errors.New("lifecycle: envelope expired")
)

// DefaultSweepInterval is how often the background sweep vanishes
// expired instances.
const DefaultSweepInterval = time.Second

// DefaultHistoryLimit bounds the in-memory vanish history.
const DefaultHistoryLimit = 1000

// ReasonExpired is the vanish reason recorded by the sweep.
const ReasonExpired = "expired"

// ReasonRead is the vanish reason for auto-vanish-on-read envelopes.
const ReasonRead = "read"

// Options configures a Manager. Zero values select defaults.
type Options struct {
	Clock         Clock
	SweepInterval time.Duration
	HistoryLimit  int

	// Sink receives sanitized history entries for persistence. May be
	// nil.
	Sink HistorySink

	// Purger is handed to the built-in vanish strategies so key
	// material is dropped at vanish time. May be nil.
	Purger KeyPurger

	// Strategies overrides individual vanish strategies.
	Strategies map[envelope.VanishMethod]VanishStrategy

	Logger *slog.Logger
}

// Manager owns every live materialization record. It is the only
// component that may mutate the live table; everyone else works with
// opaque InstanceIDs and callback-scoped payload access.
type Manager struct {
	mu      sync.Mutex
	live    map[InstanceID]*record
	history []HistoryEntry

	strategies   map[envelope.VanishMethod]VanishStrategy
	sink         HistorySink
	clock        Clock
	sweepEvery   time.Duration
	historyLimit int
	log          *slog.Logger

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewManager returns a Manager. Call Start to run the background
// sweep; without it only explicit Vanish/Sweep calls expire instances.
func NewManager(opts Options) *Manager {
	if opts.Clock == nil {
		opts.Clock = realClock{}
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = DefaultSweepInterval
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = DefaultHistoryLimit
	}
	if opts.Logger == nil {
		opts.Logger = logging.Logger
	}

	strategies := defaultStrategies(opts.Purger)
	for method, s := range opts.Strategies {
		strategies[method] = s
	}

	return &Manager{
		live:         make(map[InstanceID]*record),
		strategies:   strategies,
		sink:         opts.Sink,
		clock:        opts.Clock,
		sweepEvery:   opts.SweepInterval,
		historyLimit: opts.HistoryLimit,
		log:          opts.Logger,
		stopCh:       make(chan struct{}),
	}
}

// Start launches the periodic expiry sweep.
func (m *Manager) Start() {
	go m.sweepLoop()
}

// Close stops the sweep and vanishes every remaining live instance.
// Live records are never persisted, so a restarted process always
// begins with zero materialized instances.
func (m *Manager) Close() {
	m.stopOnce.Do(func() { close(m.stopCh) })

	m.mu.Lock()
	defer m.mu.Unlock()
	for id := range m.live {
		m.vanishLocked(id, "shutdown")
	}
}

// Materialize registers env and schedules its expiry. The
// MATERIALIZING state is held only inside this call: registration is
// all-or-nothing, so a failure leaves no trace of the instance.
func (m *Manager) Materialize(env *envelope.Envelope) (InstanceID, error) {
	if env == nil || env.Header.ID == "" {
		return "", fmt.Errorf("%w: no envelope", ErrProtocolNotReady)
	}

	policy, ok := envelope.PolicyFor(env.Header.Class)
	if !ok {
		return "", fmt.Errorf("%w: class %d", ErrProtocolNotReady, uint8(env.Header.Class))
	}

	id := InstanceID(env.Header.ID)
	now := m.clock.Now()
	deadline := time.UnixMilli(env.Header.ExpiresAtMs)
	if !deadline.After(now) {
		return "", fmt.Errorf("%w: deadline %s", ErrExpired, deadline)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.live[id]; exists {
		return "", fmt.Errorf("%w: %s", ErrAlreadyMaterialized, id)
	}

	rec := &record{
		state:          StateMaterializing,
		env:            env,
		materializedAt: now,
		vanishDeadline: deadline,
		method:         env.VanishMethod,
		resources:      policy.Resources,
	}
	rec.state = StateMaterialized
	m.live[id] = rec

	m.log.Debug("envelope materialized",
		"id", string(id),
		"class", env.Header.Class.String(),
		"ttl_ms", env.Header.TTLMs)
	return id, nil
}

// ReadPayload grants callback-scoped read access to the instance's
// payload fields. The map must not be retained or mutated; it is only
// valid for the duration of the call. Envelopes flagged
// FlagVanishOnRead vanish immediately after the callback returns.
func (m *Manager) ReadPayload(id InstanceID, fn func(fields map[string][]byte) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, err := m.readyLocked(id)
	if err != nil {
		return err
	}

	if err := fn(rec.env.Payload.Fields); err != nil {
		return err
	}

	if rec.env.Header.Flags.Has(envelope.FlagVanishOnRead) {
		m.vanishLocked(id, ReasonRead)
	}
	return nil
}

// Encode serializes the instance's envelope for transmission without
// leaking a reference to it.
func (m *Manager) Encode(id InstanceID) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, err := m.readyLocked(id)
	if err != nil {
		return nil, err
	}
	return envelope.Encode(rec.env)
}

// Resources returns the per-class resource constraints recorded at
// materialize time.
func (m *Manager) Resources(id InstanceID) (envelope.ResourceConstraints, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, err := m.readyLocked(id)
	if err != nil {
		return envelope.ResourceConstraints{}, err
	}
	return rec.resources, nil
}

// readyLocked returns the record for id if it is MATERIALIZED and not
// past its deadline. Must be called with mu held.
func (m *Manager) readyLocked(id InstanceID) (*record, error) {
	rec, ok := m.live[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProtocolNotReady, id)
	}
	if rec.state != StateMaterialized {
		return nil, fmt.Errorf("%w: %s is %s", ErrProtocolNotReady, id, rec.state)
	}
	if !rec.vanishDeadline.After(m.clock.Now()) {
		m.vanishLocked(id, ReasonExpired)
		return nil, fmt.Errorf("%w: %s expired", ErrProtocolNotReady, id)
	}
	return rec, nil
}

// Vanish irreversibly destroys the instance. Idempotent: vanishing an
// unknown or already-vanished id is a no-op, not an error. Concurrent
// calls are serialized so the strategy runs exactly once.
func (m *Manager) Vanish(id InstanceID, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vanishLocked(id, reason)
}

// vanishLocked performs the MATERIALIZED -> VANISHED transition. Must
// be called with mu held.
func (m *Manager) vanishLocked(id InstanceID, reason string) {
	rec, ok := m.live[id]
	if !ok {
		return
	}

	strategy, ok := m.strategies[rec.method]
	if !ok {
		strategy = ZeroizeStrategy{}
	}
	if err := strategy.Vanish(rec.env); err != nil {
		// Vanish is a logical guarantee; the instance is removed even
		// when the strategy fails.
		m.log.Error("vanish strategy failed",
			"id", string(id),
			"method", rec.method.String(),
			"err", err)
	}

	rec.state = StateVanished
	delete(m.live, id)

	entry := HistoryEntry{
		ID:             string(id),
		Class:          rec.env.Header.Class,
		Source:         rec.env.Header.Source,
		Destination:    rec.env.Header.Destination,
		CreatedAtMs:    rec.env.Header.CreatedAtMs,
		TTLMs:          rec.env.Header.TTLMs,
		ExpiresAtMs:    rec.env.Header.ExpiresAtMs,
		MaterializedMs: rec.materializedAt.UnixMilli(),
		VanishedMs:     m.clock.Now().UnixMilli(),
		Method:         rec.method,
		Reason:         reason,
	}
	m.history = append(m.history, entry)
	if len(m.history) > m.historyLimit {
		m.history = m.history[len(m.history)-m.historyLimit:]
	}
	if m.sink != nil {
		if err := m.sink.Append(entry); err != nil {
			m.log.Error("history sink append failed", "id", string(id), "err", err)
		}
	}

	m.log.Debug("envelope vanished", "id", string(id), "reason", reason)
}

// Sweep vanishes every instance whose deadline has passed. The
// background loop calls this on each tick; tests may call it directly.
func (m *Manager) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	swept := 0
	for id, rec := range m.live {
		if !rec.vanishDeadline.After(now) {
			m.vanishLocked(id, ReasonExpired)
			swept++
		}
	}
	return swept
}

func (m *Manager) sweepLoop() {
	ticker := time.NewTicker(m.sweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}

// LiveCount returns the number of materialized instances.
func (m *Manager) LiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.live)
}

// History returns a copy of the bounded in-memory vanish history,
// oldest first.
func (m *Manager) History() []HistoryEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]HistoryEntry, len(m.history))
	copy(out, m.history)
	return out
}
