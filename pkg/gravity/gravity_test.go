package gravity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEffectiveGravityMonotonicDecrease(t *testing.T) {
	t.Parallel()
	policy := NewPolicy(0, 0)

	prev := 2.0
	for e := 0.0; e < 300; e += 0.1 {
		g := policy.EffectiveGravity(e)
		assert.LessOrEqual(t, g, prev, "energy %v", e)
		assert.Greater(t, g, 0.0, "energy %v", e)
		assert.LessOrEqual(t, g, 1.0, "energy %v", e)
		prev = g
	}
}

func TestEffectiveGravityBounds(t *testing.T) {
	t.Parallel()
	policy := NewPolicy(0, 0)

	assert.Equal(t, 1.0, policy.EffectiveGravity(0))
	assert.Equal(t, 1.0, policy.EffectiveGravity(-5))

	// Huge energy hits the floor, never zero.
	g := policy.EffectiveGravity(1e6)
	assert.Equal(t, Floor, g)
}

func TestEffectiveGravityDeterministicAcrossCache(t *testing.T) {
	t.Parallel()
	policy := NewPolicy(0, 0)

	for i := 0; i < 3; i++ {
		assert.Equal(t, policy.EffectiveGravity(7.3), policy.EffectiveGravity(7.3))
	}

	// Same quantization bucket, same result.
	assert.Equal(t, policy.EffectiveGravity(7.30), policy.EffectiveGravity(7.31))
}

func TestQuantumMode(t *testing.T) {
	t.Parallel()
	policy := NewPolicy(0, 0)

	assert.False(t, policy.IsQuantumMode(1))
	assert.False(t, policy.IsQuantumMode(QuantumThreshold))
	assert.True(t, policy.IsQuantumMode(QuantumThreshold/2))

	// Energy large enough to collapse gravity below the threshold.
	g := policy.EffectiveGravity(100)
	assert.True(t, policy.IsQuantumMode(g))
}

func TestAdjustTTLFloor(t *testing.T) {
	t.Parallel()
	policy := NewPolicy(100, 0)

	assert.Equal(t, int64(30000), policy.AdjustTTL(30000, 1))
	assert.Equal(t, int64(15000), policy.AdjustTTL(30000, 0.5))

	// As g -> 0 the floor always holds.
	assert.Equal(t, int64(100), policy.AdjustTTL(30000, 1e-6))
	assert.Equal(t, int64(100), policy.AdjustTTL(1, Floor))
}

func TestSyncIntervalInverseOfGravity(t *testing.T) {
	t.Parallel()
	policy := NewPolicy(0, 250)

	// Full gravity: base interval unchanged.
	assert.Equal(t, int64(5000), policy.SyncInterval(5000, 1))

	// Half gravity: base / g.
	assert.Equal(t, int64(10000), policy.SyncInterval(5000, 0.5))

	// Interval never drops below the floor.
	assert.Equal(t, int64(250), policy.SyncInterval(100, 1))
}

func TestComputeEnergyWeightsAndClamps(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 0.0, ComputeEnergy(Signals{}))

	// Out-of-range ratios clamp to [0, 1].
	clamped := ComputeEnergy(Signals{CPULoad: 9, ThreatScore: -3})
	assert.Equal(t, weightCPU, clamped)

	full := ComputeEnergy(Signals{
		CPULoad:        1,
		BatteryDrain:   1,
		ThreatScore:    1,
		MemoryPressure: 1,
	})
	assert.InDelta(t, weightCPU+weightBattery+weightThreat+weightMemory, full, 1e-9)

	withCounters := ComputeEnergy(Signals{
		PacketsPerSecond:  1000,
		ActiveConnections: 100,
	})
	assert.InDelta(t, 1000*weightPackets+100*weightConnections, withCounters, 1e-9)

	// Negative counters contribute nothing.
	assert.Equal(t, 0.0, ComputeEnergy(Signals{PacketsPerSecond: -10, ActiveConnections: -5}))
}
