package gravity

import (
	"math"

	"github.com/dgraph-io/ristretto"
)

const (
	// EReference is the energy at which gravity has decayed to 1/e.
	EReference = 5.0

	// Floor bounds gravity away from zero so downstream divisions are
	// safe.
	Floor = 1e-6

	// QuantumThreshold is the gravity below which the system is in
	// quantum mode: every new envelope is pinned to the minimum TTL.
	QuantumThreshold = 1e-4

	// quantizeStep buckets energy for memoization. Gravity is computed
	// from the bucket's lower edge, so equal buckets yield identical
	// results and monotonicity is preserved across bucket boundaries.
	quantizeStep = 0.25

	// cacheEntries bounds the memoization cache.
	cacheEntries = 256
)

// Defaults for the absolute duration floors.
const (
	DefaultMinTTLMs  = 100
	DefaultMinSyncMs = 250
)

// Policy maps energy to effective gravity and derives TTL and
// sync-interval scaling from it. The mapping is pure; the embedded
// cache only memoizes exp over quantized energy buckets and can never
// go stale.
type Policy struct {
	// MinTTLMs and MinSyncMs are the absolute duration floors. The
	// policy never yields a zero or negative duration regardless of
	// how small gravity becomes.
	MinTTLMs  int64
	MinSyncMs int64

	cache *ristretto.Cache
}

// NewPolicy returns a Policy with the given duration floors; zero
// values select the defaults.
func NewPolicy(minTTLMs, minSyncMs int64) *Policy {
	if minTTLMs <= 0 {
		minTTLMs = DefaultMinTTLMs
	}
	if minSyncMs <= 0 {
		minSyncMs = DefaultMinSyncMs
	}

	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: cacheEntries * 10,
		MaxCost:     cacheEntries,
		BufferItems: 64,
	})
	if err != nil {
		// Config is constant; this cannot fail at runtime.
		panic(err)
	}

	return &Policy{
		MinTTLMs:  minTTLMs,
		MinSyncMs: minSyncMs,
		cache:     cache,
	}
}

// EffectiveGravity computes G = exp(-energy/EReference), clamped to
// [Floor, 1]. Monotonically decreasing in energy and continuous up to
// the quantization step.
func (p *Policy) EffectiveGravity(energy float64) float64 {
	if energy <= 0 {
		return 1.0
	}

	bucket := int64(energy / quantizeStep)
	if p.cache != nil {
		if v, ok := p.cache.Get(bucket); ok {
			if g, ok := v.(float64); ok {
				return g
			}
		}
	}

	// Lower bucket edge keeps equal buckets identical and ordering
	// intact across buckets.
	quantized := float64(bucket) * quantizeStep
	g := math.Exp(-quantized / EReference)
	if g < Floor {
		g = Floor
	}
	if g > 1 {
		g = 1
	}

	if p.cache != nil {
		p.cache.Set(bucket, g, 1)
	}
	return g
}

// TTLScaling returns the TTL multiplier for a gravity value. TTL
// scales linearly with gravity.
func (p *Policy) TTLScaling(g float64) float64 {
	return g
}

// IsQuantumMode reports whether gravity has collapsed below the
// quantum threshold.
func (p *Policy) IsQuantumMode(g float64) bool {
	return g < QuantumThreshold
}

// SyncInterval derives the sync interval from a base interval and
// gravity: round(base / max(g, Floor)), floored at MinSyncMs. This is
// the inverse of TTL scaling.
func (p *Policy) SyncInterval(baseMs int64, g float64) int64 {
	if g < Floor {
		g = Floor
	}
	interval := int64(math.Round(float64(baseMs) / g))
	if interval < p.MinSyncMs {
		interval = p.MinSyncMs
	}
	return interval
}

// AdjustTTL applies gravity scaling to a base TTL with the configured
// floor: max(round(base*g), MinTTLMs).
func (p *Policy) AdjustTTL(baseMs int64, g float64) int64 {
	adjusted := int64(math.Round(float64(baseMs) * p.TTLScaling(g)))
	if adjusted < p.MinTTLMs {
		adjusted = p.MinTTLMs
	}
	return adjusted
}
