// Package signals collects the raw system readings fed to the energy
// model. Probes that are unavailable on the host degrade to zeroed
// readings instead of failing; threat score and battery drain have no
// portable probe and are supplied by external collaborators.
package signals

import (
	"sync"
	"time"

	"github.com/shirou/gopsutil/cpu"
	"github.com/shirou/gopsutil/mem"
	gopsnet "github.com/shirou/gopsutil/net"

	"github.com/ghostbridge/ghostbridge/pkg/gravity"
)

// Collector samples system probes into gravity.Signals. Safe for
// concurrent use.
type Collector struct {
	mu sync.Mutex

	threatScore  float64
	batteryDrain float64

	lastSample  time.Time
	lastPackets uint64
}

// NewCollector returns a Collector with zeroed external inputs.
func NewCollector() *Collector {
	return &Collector{}
}

// SetThreatScore records the active-threat score in [0, 1], supplied
// by the device-integrity collaborator.
func (c *Collector) SetThreatScore(score float64) {
	c.mu.Lock()
	c.threatScore = score
	c.mu.Unlock()
}

// SetBatteryDrain records the battery drain ratio in [0, 1], supplied
// by the energy-telemetry collaborator.
func (c *Collector) SetBatteryDrain(drain float64) {
	c.mu.Lock()
	c.batteryDrain = drain
	c.mu.Unlock()
}

// Sample reads every probe once and returns the combined signals.
// Probe errors leave the corresponding field at zero.
func (c *Collector) Sample() gravity.Signals {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := gravity.Signals{
		ThreatScore:  c.threatScore,
		BatteryDrain: c.batteryDrain,
	}

	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		s.CPULoad = percents[0] / 100
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		s.MemoryPressure = vm.UsedPercent / 100
	}

	if conns, err := gopsnet.Connections("tcp"); err == nil {
		s.ActiveConnections = len(conns)
	}

	if counters, err := gopsnet.IOCounters(false); err == nil && len(counters) > 0 {
		total := counters[0].PacketsSent + counters[0].PacketsRecv
		now := time.Now()
		if !c.lastSample.IsZero() && total >= c.lastPackets {
			elapsed := now.Sub(c.lastSample).Seconds()
			if elapsed > 0 {
				s.PacketsPerSecond = float64(total-c.lastPackets) / elapsed
			}
		}
		c.lastSample = now
		c.lastPackets = total
	}

	return s
}
