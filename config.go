package ghostbridge

import (
	"log/slog"
	"time"

	"github.com/ghostbridge/ghostbridge/pkg/lifecycle"
	"github.com/ghostbridge/ghostbridge/pkg/logging"
	"github.com/ghostbridge/ghostbridge/pkg/security"
	"github.com/ghostbridge/ghostbridge/pkg/transport"
)

// Config configures a GhostBridge. Zero values select defaults.
type Config struct {
	// Transport carries serialized envelopes. Defaults to an owned
	// in-process loopback, which the bridge closes on Close.
	Transport transport.Transport

	// Cipher resolves key references. Defaults to an in-process
	// XChaCha20-Poly1305 provider.
	Cipher security.CipherProvider

	// HistorySink persists sanitized vanish history. May be nil.
	HistorySink lifecycle.HistorySink

	// Source is the identifier stamped on locally composed envelopes.
	Source string

	// SweepInterval is the expiry sweep tick. Defaults to 1s.
	SweepInterval time.Duration

	// MinTTLMs and MinSyncMs are absolute duration floors.
	MinTTLMs  int64
	MinSyncMs int64

	// BaseSyncMs is the gravity refresh interval at G = 1. Defaults
	// to 5000.
	BaseSyncMs int64

	// HistoryLimit bounds the in-memory vanish history.
	HistoryLimit int

	Logger *slog.Logger
}

func (c Config) withDefaults() Config {
	if c.Cipher == nil {
		c.Cipher = security.NewXChaChaProvider()
	}
	if c.Source == "" {
		c.Source = "ghost-local"
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = lifecycle.DefaultSweepInterval
	}
	if c.BaseSyncMs <= 0 {
		c.BaseSyncMs = 5000
	}
	if c.Logger == nil {
		c.Logger = logging.Logger
	}
	return c
}
