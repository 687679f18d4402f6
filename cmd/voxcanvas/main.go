// Command voxcanvas runs the voice interview call server: it answers
// telephony webhooks, bridges each call to a realtime AI session, persists
// transcripts, and generates post-call reports.
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

	"github.com/voxcanvas/voxcanvas/internal/config"
	"github.com/voxcanvas/voxcanvas/internal/health"
	"github.com/voxcanvas/voxcanvas/internal/interview"
	"github.com/voxcanvas/voxcanvas/internal/observe"
	"github.com/voxcanvas/voxcanvas/internal/relay"
	"github.com/voxcanvas/voxcanvas/internal/report"
	"github.com/voxcanvas/voxcanvas/internal/server"
	"github.com/voxcanvas/voxcanvas/pkg/realtime"
	"github.com/voxcanvas/voxcanvas/pkg/transcript"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "voxcanvas: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "voxcanvas: %v\n", err)
		}
		return 1
	}

	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("voxcanvas starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Observability ─────────────────────────────────────────────────────────
	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Storage ───────────────────────────────────────────────────────────────
	sink, reports, probes, closeStorage, err := buildStorage(ctx, cfg.Storage)
	if err != nil {
		slog.Error("failed to initialise storage", "err", err)
		return 1
	}
	defer closeStorage()

	// ── Interview context ─────────────────────────────────────────────────────
	interviews := interview.NewStore(interview.Profile{
		Research: cfg.Interview.Research,
		Style:    cfg.Interview.Style,
	})

	// ── Realtime session provider ─────────────────────────────────────────────
	var rtOpts []realtime.Option
	if cfg.Realtime.Model != "" {
		rtOpts = append(rtOpts, realtime.WithModel(cfg.Realtime.Model))
	}
	if cfg.Realtime.BaseURL != "" {
		rtOpts = append(rtOpts, realtime.WithBaseURL(cfg.Realtime.BaseURL))
	}
	provider := realtime.New(cfg.Realtime.APIKey, rtOpts...)

	openSession := func(ctx context.Context, sc realtime.SessionConfig) relay.UpstreamSession {
		if cfg.Realtime.Voice != "" {
			sc.Voice = cfg.Realtime.Voice
		}
		if cfg.Realtime.Temperature != 0 {
			sc.Temperature = cfg.Realtime.Temperature
		}
		return provider.Open(ctx, sc)
	}

	// ── Report generator ──────────────────────────────────────────────────────
	var reporter relay.Reporter
	summarizerKey := cfg.Summarizer.APIKey
	if summarizerKey == "" {
		summarizerKey = cfg.Realtime.APIKey
	}
	if summarizerKey == "" {
		slog.Warn("no summarizer api key configured; report generation disabled")
	} else {
		models := cfg.Summarizer.FallbackModels
		if cfg.Summarizer.Model != "" {
			models = append([]string{cfg.Summarizer.Model}, models...)
		}
		genOpts := []report.Option{report.WithModels(models)}
		if cfg.Summarizer.BaseURL != "" {
			genOpts = append(genOpts, report.WithBaseURL(cfg.Summarizer.BaseURL))
		}
		gen, err := report.New(summarizerKey, reports, interviews.Snapshot, genOpts...)
		if err != nil {
			slog.Error("failed to initialise report generator", "err", err)
			return 1
		}
		reporter = gen
	}

	// ── HTTP server ───────────────────────────────────────────────────────────
	srv, err := server.New(server.Config{
		Server:      cfg.Server,
		Greeting:    cfg.Interview.Greeting,
		Interview:   interviews,
		OpenSession: openSession,
		Sink:        sink,
		Reports:     reports,
		Reporter:    reporter,
		Probes:      probes,
	})
	if err != nil {
		slog.Error("failed to initialise server", "err", err)
		return 1
	}

	slog.Info("server ready — press Ctrl+C to shut down",
		"storage", storageBackend(cfg.Storage),
		"model", cfg.Realtime.Model,
	)

	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	slog.Info("goodbye")
	return 0
}

// buildStorage creates the configured transcript persistence backend and its
// readiness probes. The returned closer is safe to call even on error paths.
func buildStorage(ctx context.Context, cfg config.StorageConfig) (transcript.Sink, transcript.ReportStore, []health.Probe, func(), error) {
	switch storageBackend(cfg) {
	case config.StoragePostgres:
		store, err := transcript.NewPGStore(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, nil, func() {}, err
		}
		probe := health.Probe{Name: "storage", Fn: store.Ping}
		return store, store, []health.Probe{probe}, store.Close, nil

	default:
		store, err := transcript.NewFileStore(cfg.Dir)
		if err != nil {
			return nil, nil, nil, func() {}, err
		}
		return store, store, nil, func() {}, nil
	}
}

// storageBackend resolves the effective backend, defaulting to file.
func storageBackend(cfg config.StorageConfig) config.StorageBackend {
	if cfg.Backend == "" {
		return config.StorageFile
	}
	return cfg.Backend
}

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
