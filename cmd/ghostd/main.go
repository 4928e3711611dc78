package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ghostbridge/ghostbridge"
	"github.com/ghostbridge/ghostbridge/internal/config"
	"github.com/ghostbridge/ghostbridge/internal/history"
	"github.com/ghostbridge/ghostbridge/pkg/envelope"
	"github.com/ghostbridge/ghostbridge/pkg/logging"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	if *debug {
		logging.SetLevel(slog.LevelDebug)
	}
	logger := logging.Logger

	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			logger.Error("loading config", "err", err)
			os.Exit(1)
		}
	}

	store, err := history.NewStore(history.StoreConfig{
		Path:   cfg.HistoryPath,
		Limit:  cfg.HistoryLimit,
		Logger: logrus.New(),
	})
	if err != nil {
		logger.Error("opening history store", "err", err)
		os.Exit(1)
	}
	defer store.Close()

	bridge, err := ghostbridge.New(ghostbridge.Config{
		HistorySink:   store,
		Source:        cfg.Source,
		SweepInterval: time.Duration(cfg.SweepIntervalMs) * time.Millisecond,
		MinTTLMs:      cfg.MinTTLMs,
		MinSyncMs:     cfg.MinSyncMs,
		BaseSyncMs:    cfg.BaseSyncMs,
		HistoryLimit:  cfg.HistoryLimit,
	})
	if err != nil {
		logger.Error("starting bridge", "err", err)
		os.Exit(1)
	}
	defer bridge.Close()

	logger.Info("ghostd started",
		"source", cfg.Source,
		"sweepIntervalMs", cfg.SweepIntervalMs,
		"historyPath", cfg.HistoryPath)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig.String())
		cancel()
	}()

	// Demo traffic over the built-in loopback: compose a whisper every
	// few seconds, receive it back, read it once.
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	seq := 0
	for {
		select {
		case <-ctx.Done():
			logger.Info("ghostd stopping", "live", bridge.LiveCount())
			return
		case <-ticker.C:
			seq++
			id, err := bridge.Compose(envelope.ClassWhisper, map[string][]byte{
				"body": []byte(fmt.Sprintf("heartbeat %d", seq)),
			}, envelope.BuildOptions{
				Destination: envelope.BroadcastDestination,
				Flags:       envelope.FlagVanishOnRead,
			})
			if err != nil {
				logger.Error("composing heartbeat", "err", err)
				continue
			}
			if err := bridge.Send(ctx, id); err != nil {
				logger.Error("sending heartbeat", "err", err)
				continue
			}
			// Same process plays both ends of the loopback; release
			// the sender's instance so the received copy can
			// materialize under the same id.
			bridge.Burn(id, "sent")

			recvID, err := bridge.Receive(ctx)
			if err != nil {
				if !errors.Is(err, ghostbridge.ErrUnreadable) {
					logger.Error("receiving heartbeat", "err", err)
				}
				continue
			}
			err = bridge.ReadPayload(recvID, func(fields map[string][]byte) error {
				logger.Info("heartbeat delivered",
					"body", string(fields["body"]),
					"quantum", bridge.IsQuantumMode(),
					"gravity", bridge.Effective())
				return nil
			})
			if err != nil {
				logger.Error("reading heartbeat", "err", err)
			}
		}
	}
}
