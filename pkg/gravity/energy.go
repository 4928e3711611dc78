// Package gravity turns raw system signals into the bounded control
// scalar that drives envelope TTL and sync-interval scaling.
//
// The model is a plain monotonic backpressure function: signals are
// folded into a non-negative "energy", and effective gravity
// G = exp(-energy/EReference) decays from 1 toward a small floor as
// energy grows. Low gravity means a loaded or threatened system, so
// envelopes live shorter lives and sync backs off by the inverse
// factor.
package gravity

// Signals are the raw inputs to the energy model. Ratio fields are
// expected in [0, 1] and are clamped there; counters must be
// non-negative.
type Signals struct {
	PacketsPerSecond  float64
	CPULoad           float64
	BatteryDrain      float64
	ThreatScore       float64
	ActiveConnections int
	MemoryPressure    float64
}

// Fixed energy weights. Ratio signals contribute up to their weight;
// counter signals contribute linearly.
const (
	weightPackets     = 0.002
	weightCPU         = 2.0
	weightBattery     = 1.5
	weightThreat      = 4.0
	weightConnections = 0.01
	weightMemory      = 1.5
)

// ComputeEnergy folds signals into a non-negative energy scalar. It is
// pure and side-effect free; callers supply fresh signals and any
// caching belongs to Policy.
func ComputeEnergy(s Signals) float64 {
	e := clampNonNeg(s.PacketsPerSecond)*weightPackets +
		clampRatio(s.CPULoad)*weightCPU +
		clampRatio(s.BatteryDrain)*weightBattery +
		clampRatio(s.ThreatScore)*weightThreat +
		float64(maxInt(s.ActiveConnections, 0))*weightConnections +
		clampRatio(s.MemoryPressure)*weightMemory
	if e < 0 {
		return 0
	}
	return e
}

func clampRatio(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func clampNonNeg(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
