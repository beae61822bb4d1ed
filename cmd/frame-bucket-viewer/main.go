package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/frame-bucket/viewer/internal/config"
	"github.com/frame-bucket/viewer/internal/metrics"
	"github.com/frame-bucket/viewer/internal/signaling"
	"github.com/frame-bucket/viewer/internal/sink"
	"github.com/frame-bucket/viewer/internal/viewer"
	"github.com/frame-bucket/viewer/internal/webrtcpeer"
)

var (
	// Set via -ldflags at build time. Values may be empty in local/dev builds.
	buildCommit = ""
	buildTime   = ""
)

// mediaSink is what main needs from a sink: the session-facing Bind plus a
// Close that waits for track readers to drain.
type mediaSink interface {
	viewer.MediaSink
	Close() error
}

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger, err := config.NewLogger(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	slog.SetDefault(logger)

	api, err := webrtcpeer.NewAPI(logger)
	if err != nil {
		logger.Error("failed to configure webrtc", "err", err)
		os.Exit(2)
	}

	commit, builtAt := resolveBuildInfo(buildCommit, buildTime)
	logger.Info("starting frame-bucket-viewer",
		"commit", commit,
		"build_time", builtAt,
		"relay_url", cfg.RelayURL,
		"producer_id", cfg.ProducerID,
		"display_name", cfg.DisplayName,
		"mode", cfg.Mode,
		"sink", cfg.Sink,
	)

	mediaOut, err := newSink(cfg, logger)
	if err != nil {
		logger.Error("failed to open sink", "err", err)
		os.Exit(2)
	}

	registry := metrics.New()

	connectedCh := make(chan struct{}, 1)
	disconnectedCh := make(chan struct{}, 1)
	errCh := make(chan error, 1)

	session := viewer.Open(mediaOut, cfg.RelayURL, cfg.ProducerID, viewer.Callbacks{
		OnConnected: func() {
			select {
			case connectedCh <- struct{}{}:
			default:
			}
		},
		OnDisconnected: func() {
			select {
			case disconnectedCh <- struct{}{}:
			default:
			}
		},
		OnError: func(err error) {
			select {
			case errCh <- err:
			default:
			}
		},
	}, viewer.Options{
		Dial: func(ctx context.Context, relayURL string, cb signaling.ChannelCallbacks) (viewer.ControlChannel, error) {
			ch, err := signaling.Dial(ctx, relayURL, cb, logger)
			if err != nil {
				return nil, err
			}
			return ch, nil
		},
		NewPeer: func() (viewer.PeerConnection, error) {
			return webrtcpeer.New(api, webrtcpeer.Options{
				ICEServers:       cfg.ICEServers,
				KeyframeInterval: cfg.KeyframeInterval,
				Logger:           logger,
			})
		},
		DisplayName: cfg.DisplayName,
		Logger:      logger,
		Metrics:     registry,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	exitCode := 0
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case <-disconnectedCh:
		// No reconnection; a supervisor restarts the process to retry.
		logger.Info("session disconnected, exiting")
	case err := <-errCh:
		logger.Error("session failed", "err", err)
		exitCode = 1
	}

	session.Close()
	if err := mediaOut.Close(); err != nil {
		logger.Error("sink close failed", "err", err)
	}

	for name, value := range registry.Snapshot() {
		logger.Info("final counter", "name", name, "value", value)
	}
	os.Exit(exitCode)
}

func newSink(cfg config.Config, logger *slog.Logger) (mediaSink, error) {
	switch cfg.Sink {
	case config.SinkStats:
		return sink.NewStats(logger, cfg.StatsInterval), nil
	case config.SinkRTPDump:
		f, err := os.Create(cfg.RTPDumpPath)
		if err != nil {
			return nil, fmt.Errorf("create %s: %w", cfg.RTPDumpPath, err)
		}
		return sink.NewRTPDump(f, logger), nil
	default:
		return nil, fmt.Errorf("unsupported sink %q", cfg.Sink)
	}
}

func resolveBuildInfo(commit, buildTime string) (string, string) {
	// Prefer ldflags-injected values (production builds) but fall back to the Go
	// build info when available (useful for `go run` / dev builds).
	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				if commit == "" {
					commit = s.Value
				}
			case "vcs.time":
				if buildTime == "" {
					buildTime = s.Value
				}
			}
		}
	}
	if commit == "" {
		commit = "unknown"
	}
	if buildTime == "" {
		buildTime = "unknown"
	}
	return commit, buildTime
}
