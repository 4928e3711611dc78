package envelope

// ResourceConstraints is the per-class resource budget copied into each
// materialization record.
type ResourceConstraints struct {
	MaxLatencyMs    int64
	MaxBandwidthBps int64
	MaxMemoryBytes  int64
	MaxCPUShare     float64
}

// ClassPolicy is the fixed policy for one protocol class.
type ClassPolicy struct {
	MaxPayloadBytes int
	MaxTTLMs        int64
	DefaultTTLMs    int64
	MinTier         SecurityTier

	// RequiredFields lists the payload field names that must be
	// present for this class.
	RequiredFields []string

	Resources ResourceConstraints
}

// classPolicies is the closed policy table. The payload/TTL/tier values
// are wire-compatibility constants and must not change.
var classPolicies = map[ProtocolClass]ClassPolicy{
	ClassWhisper: {
		MaxPayloadBytes: 1024,
		MaxTTLMs:        30_000,
		DefaultTTLMs:    30_000,
		MinTier:         TierResistant,
		RequiredFields:  []string{"body"},
		Resources: ResourceConstraints{
			MaxLatencyMs:    500,
			MaxBandwidthBps: 32 * 1024,
			MaxMemoryBytes:  256 * 1024,
			MaxCPUShare:     0.05,
		},
	},
	ClassBridge: {
		MaxPayloadBytes: 8192,
		MaxTTLMs:        300_000,
		DefaultTTLMs:    300_000,
		MinTier:         TierSafe,
		RequiredFields:  []string{"body", "bridge_id"},
		Resources: ResourceConstraints{
			MaxLatencyMs:    2_000,
			MaxBandwidthBps: 128 * 1024,
			MaxMemoryBytes:  1024 * 1024,
			MaxCPUShare:     0.10,
		},
	},
	ClassMesh: {
		MaxPayloadBytes: 16384,
		MaxTTLMs:        600_000,
		DefaultTTLMs:    600_000,
		MinTier:         TierSafe,
		RequiredFields:  []string{"body", "mesh_id"},
		Resources: ResourceConstraints{
			MaxLatencyMs:    5_000,
			MaxBandwidthBps: 256 * 1024,
			MaxMemoryBytes:  2 * 1024 * 1024,
			MaxCPUShare:     0.15,
		},
	},
	ClassTunnel: {
		MaxPayloadBytes: 32768,
		MaxTTLMs:        1_800_000,
		DefaultTTLMs:    1_800_000,
		MinTier:         TierSafe,
		RequiredFields:  []string{"body", "tunnel_id", "endpoint"},
		Resources: ResourceConstraints{
			MaxLatencyMs:    10_000,
			MaxBandwidthBps: 512 * 1024,
			MaxMemoryBytes:  4 * 1024 * 1024,
			MaxCPUShare:     0.25,
		},
	},
}

// PolicyFor returns the policy for a protocol class. ok is false for an
// unknown class.
func PolicyFor(class ProtocolClass) (ClassPolicy, bool) {
	p, ok := classPolicies[class]
	return p, ok
}
