package lifecycle

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ghostbridge/ghostbridge/pkg/envelope"
	"github.com/ghostbridge/ghostbridge/pkg/security"
)

// fakeClock is a manually advanced Clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// countingStrategy records how many times it ran.
type countingStrategy struct {
	mu    sync.Mutex
	calls int
	fail  bool
}

func (s *countingStrategy) Vanish(env *envelope.Envelope) error {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	env.Payload.Zeroize()
	if s.fail {
		return errors.New("wipe failed")
	}
	return nil
}

func (s *countingStrategy) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func testEnvelope(t *testing.T, clk Clock, ttlMs int64) *envelope.Envelope {
	t.Helper()
	now := clk.Now().UnixMilli()
	return &envelope.Envelope{
		Header: envelope.Header{
			ID:          fmt.Sprintf("env-%d-%s", now, t.Name()),
			Class:       envelope.ClassWhisper,
			CreatedAtMs: now,
			TTLMs:       ttlMs,
			ExpiresAtMs: now + ttlMs,
			MaxHops:     8,
		},
		Payload: envelope.Payload{
			Class:  envelope.ClassWhisper,
			Fields: map[string][]byte{"body": []byte("boo")},
		},
		Security: envelope.SecurityContext{
			Tier:    envelope.TierResistant,
			KeyRefs: []string{"k1"},
		},
		VanishMethod: envelope.VanishZeroize,
	}
}

func newTestManager(clk Clock) *Manager {
	return NewManager(Options{Clock: clk})
}

func TestMaterializeThenReadPayload(t *testing.T) {
	t.Parallel()
	clk := &fakeClock{now: time.Now()}
	m := newTestManager(clk)

	id, err := m.Materialize(testEnvelope(t, clk, 30000))
	if err != nil {
		t.Fatalf("materialize: %v", err)
	}
	if m.LiveCount() != 1 {
		t.Fatalf("live = %d, want 1", m.LiveCount())
	}

	var got []byte
	err = m.ReadPayload(id, func(fields map[string][]byte) error {
		got = append(got, fields["body"]...)
		return nil
	})
	if err != nil {
		t.Fatalf("read payload: %v", err)
	}
	if string(got) != "boo" {
		t.Fatalf("payload = %q, want %q", got, "boo")
	}
}

func TestMaterializeDuplicateID(t *testing.T) {
	t.Parallel()
	clk := &fakeClock{now: time.Now()}
	m := newTestManager(clk)
	env := testEnvelope(t, clk, 30000)

	if _, err := m.Materialize(env); err != nil {
		t.Fatalf("materialize: %v", err)
	}
	if _, err := m.Materialize(env); !errors.Is(err, ErrAlreadyMaterialized) {
		t.Fatalf("err = %v, want ErrAlreadyMaterialized", err)
	}
}

func TestMaterializeExpiredRejected(t *testing.T) {
	t.Parallel()
	clk := &fakeClock{now: time.Now()}
	m := newTestManager(clk)

	env := testEnvelope(t, clk, 50)
	clk.Advance(100 * time.Millisecond)

	if _, err := m.Materialize(env); !errors.Is(err, ErrExpired) {
		t.Fatalf("err = %v, want ErrExpired", err)
	}
	if m.LiveCount() != 0 {
		t.Fatal("expired envelope must not register")
	}
}

func TestVanishIdempotent(t *testing.T) {
	t.Parallel()
	clk := &fakeClock{now: time.Now()}
	strategy := &countingStrategy{}
	m := NewManager(Options{
		Clock: clk,
		Strategies: map[envelope.VanishMethod]VanishStrategy{
			envelope.VanishZeroize: strategy,
		},
	})

	id, err := m.Materialize(testEnvelope(t, clk, 30000))
	if err != nil {
		t.Fatalf("materialize: %v", err)
	}

	m.Vanish(id, "burn")
	m.Vanish(id, "burn")

	if strategy.count() != 1 {
		t.Fatalf("strategy ran %d times, want 1", strategy.count())
	}
	if m.LiveCount() != 0 {
		t.Fatalf("live = %d, want 0", m.LiveCount())
	}
	if len(m.History()) != 1 {
		t.Fatalf("history = %d entries, want 1", len(m.History()))
	}
}

func TestVanishConcurrentRunsStrategyOnce(t *testing.T) {
	t.Parallel()
	clk := &fakeClock{now: time.Now()}
	strategy := &countingStrategy{}
	m := NewManager(Options{
		Clock: clk,
		Strategies: map[envelope.VanishMethod]VanishStrategy{
			envelope.VanishZeroize: strategy,
		},
	})

	id, err := m.Materialize(testEnvelope(t, clk, 30000))
	if err != nil {
		t.Fatalf("materialize: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Vanish(id, "race")
		}()
	}
	wg.Wait()

	if strategy.count() != 1 {
		t.Fatalf("strategy ran %d times, want 1", strategy.count())
	}
}

func TestVanishStrategyFailureStillRemoves(t *testing.T) {
	t.Parallel()
	clk := &fakeClock{now: time.Now()}
	strategy := &countingStrategy{fail: true}
	m := NewManager(Options{
		Clock: clk,
		Strategies: map[envelope.VanishMethod]VanishStrategy{
			envelope.VanishZeroize: strategy,
		},
	})

	id, err := m.Materialize(testEnvelope(t, clk, 30000))
	if err != nil {
		t.Fatalf("materialize: %v", err)
	}

	m.Vanish(id, "burn")
	if m.LiveCount() != 0 {
		t.Fatal("instance must be removed even when the strategy fails")
	}
}

func TestSweepExpiresInstances(t *testing.T) {
	t.Parallel()
	clk := &fakeClock{now: time.Now()}
	m := newTestManager(clk)

	id, err := m.Materialize(testEnvelope(t, clk, 50))
	if err != nil {
		t.Fatalf("materialize: %v", err)
	}

	if swept := m.Sweep(); swept != 0 {
		t.Fatalf("swept %d before expiry, want 0", swept)
	}

	clk.Advance(60 * time.Millisecond)
	if swept := m.Sweep(); swept != 1 {
		t.Fatalf("swept %d after expiry, want 1", swept)
	}

	err = m.ReadPayload(id, func(map[string][]byte) error { return nil })
	if !errors.Is(err, ErrProtocolNotReady) {
		t.Fatalf("err = %v, want ErrProtocolNotReady", err)
	}

	history := m.History()
	if len(history) != 1 || history[0].Reason != ReasonExpired {
		t.Fatalf("history = %+v, want one expired entry", history)
	}
}

func TestReadAfterDeadlineNotReady(t *testing.T) {
	t.Parallel()
	clk := &fakeClock{now: time.Now()}
	m := newTestManager(clk)

	id, err := m.Materialize(testEnvelope(t, clk, 50))
	if err != nil {
		t.Fatalf("materialize: %v", err)
	}

	// Deadline passes but no sweep has run yet; access must still be
	// refused and the instance lazily vanished.
	clk.Advance(100 * time.Millisecond)
	err = m.ReadPayload(id, func(map[string][]byte) error { return nil })
	if !errors.Is(err, ErrProtocolNotReady) {
		t.Fatalf("err = %v, want ErrProtocolNotReady", err)
	}
	if m.LiveCount() != 0 {
		t.Fatal("expired instance must be vanished on access")
	}
}

func TestVanishOnReadFlag(t *testing.T) {
	t.Parallel()
	clk := &fakeClock{now: time.Now()}
	m := newTestManager(clk)

	env := testEnvelope(t, clk, 30000)
	env.Header.Flags |= envelope.FlagVanishOnRead

	id, err := m.Materialize(env)
	if err != nil {
		t.Fatalf("materialize: %v", err)
	}

	err = m.ReadPayload(id, func(fields map[string][]byte) error {
		if string(fields["body"]) != "boo" {
			t.Fatal("payload must be intact during the first read")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("first read: %v", err)
	}

	err = m.ReadPayload(id, func(map[string][]byte) error { return nil })
	if !errors.Is(err, ErrProtocolNotReady) {
		t.Fatalf("second read err = %v, want ErrProtocolNotReady", err)
	}
}

func TestHistorySanitizedAndBounded(t *testing.T) {
	t.Parallel()
	clk := &fakeClock{now: time.Now()}
	m := NewManager(Options{Clock: clk, HistoryLimit: 10})

	for i := 0; i < 25; i++ {
		env := testEnvelope(t, clk, 30000)
		env.Header.ID = fmt.Sprintf("env-%d", i)
		id, err := m.Materialize(env)
		if err != nil {
			t.Fatalf("materialize %d: %v", i, err)
		}
		m.Vanish(id, "burn")
	}

	history := m.History()
	if len(history) != 10 {
		t.Fatalf("history = %d entries, want 10", len(history))
	}
	if history[0].ID != "env-15" || history[9].ID != "env-24" {
		t.Fatalf("history window wrong: first %s last %s", history[0].ID, history[9].ID)
	}
	for _, entry := range history {
		if entry.Reason != "burn" || entry.TTLMs != 30000 {
			t.Fatalf("entry not sanitized header metadata: %+v", entry)
		}
	}
}

func TestZeroizeStrategyPurgesPayloadAndKeys(t *testing.T) {
	t.Parallel()
	clk := &fakeClock{now: time.Now()}
	purger := &recordingPurger{}
	m := NewManager(Options{Clock: clk, Purger: purger})

	env := testEnvelope(t, clk, 30000)
	body := env.Payload.Fields["body"]

	id, err := m.Materialize(env)
	if err != nil {
		t.Fatalf("materialize: %v", err)
	}
	m.Vanish(id, "burn")

	for _, b := range body {
		if b != 0 {
			t.Fatal("payload bytes must be zeroized")
		}
	}
	if len(purger.purged) != 1 || purger.purged[0] != "k1" {
		t.Fatalf("purged = %v, want [k1]", purger.purged)
	}
}

func TestCloseVanishesAllLiveInstances(t *testing.T) {
	t.Parallel()
	clk := &fakeClock{now: time.Now()}
	m := newTestManager(clk)

	for i := 0; i < 5; i++ {
		env := testEnvelope(t, clk, 30000)
		env.Header.ID = fmt.Sprintf("close-%d", i)
		if _, err := m.Materialize(env); err != nil {
			t.Fatalf("materialize %d: %v", i, err)
		}
	}

	m.Close()
	if m.LiveCount() != 0 {
		t.Fatalf("live = %d after close, want 0", m.LiveCount())
	}
	if len(m.History()) != 5 {
		t.Fatalf("history = %d entries, want 5", len(m.History()))
	}
}

func TestBackgroundSweepVanishesShortTTL(t *testing.T) {
	t.Parallel()
	m := NewManager(Options{SweepInterval: 20 * time.Millisecond})
	m.Start()
	defer m.Close()

	now := time.Now().UnixMilli()
	env := &envelope.Envelope{
		Header: envelope.Header{
			ID:          "short-ttl",
			Class:       envelope.ClassWhisper,
			CreatedAtMs: now,
			TTLMs:       50,
			ExpiresAtMs: now + 50,
		},
		Payload: envelope.Payload{
			Class:  envelope.ClassWhisper,
			Fields: map[string][]byte{"body": []byte("x")},
		},
		Security:     envelope.SecurityContext{Tier: envelope.TierResistant},
		VanishMethod: envelope.VanishZeroize,
	}
	id, err := m.Materialize(env)
	if err != nil {
		t.Fatalf("materialize: %v", err)
	}

	// 50ms TTL plus a couple of sweep intervals of slack.
	deadline := time.Now().Add(500 * time.Millisecond)
	for m.LiveCount() > 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if m.LiveCount() != 0 {
		t.Fatal("sweep did not vanish expired instance")
	}

	err = m.ReadPayload(id, func(map[string][]byte) error { return nil })
	if !errors.Is(err, ErrProtocolNotReady) {
		t.Fatalf("err = %v, want ErrProtocolNotReady", err)
	}
}

type recordingPurger struct {
	mu     sync.Mutex
	purged []string
}

func (p *recordingPurger) Purge(key security.KeyRef) {
	p.mu.Lock()
	p.purged = append(p.purged, string(key))
	p.mu.Unlock()
}
