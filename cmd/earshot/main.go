// Command earshot is the main entry point for the earshot voice capture
// server. It records one utterance per request from the configured capture
// device and returns the transcript.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/earshot/internal/app"
	"github.com/MrWong99/earshot/internal/config"
	"github.com/MrWong99/earshot/internal/observe"
	"github.com/MrWong99/earshot/internal/recorder"
	"github.com/MrWong99/earshot/pkg/history/postgres"
)

// version is overwritten at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "", "path to the YAML configuration file (default: environment only)")
	listenOnce := flag.Bool("listen-once", false, "record a single utterance, print the transcript and exit")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := loadConfig(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "earshot: config file %q not found\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "earshot: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	logger := newLogger(level)
	slog.SetDefault(logger)

	slog.Info("earshot starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	tel, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "earshot",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	met, err := observe.NewMetrics(tel.MeterProvider)
	if err != nil {
		slog.Error("failed to create metrics", "err", err)
		return 1
	}

	// ── Providers ─────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	providers, closers, err := buildProviders(cfg, reg, met, logger)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}
	defer closeAll(closers)

	appOpts := []app.Option{
		app.WithLogger(logger),
		app.WithLevelVar(level),
		app.WithMetrics(met),
		app.WithMetricsHandler(tel.Handler()),
	}

	// ── Session history (optional PostgreSQL) ─────────────────────────────────
	if dsn := cfg.History.PostgresDSN; dsn != "" {
		store, err := postgres.NewStore(ctx, dsn)
		if err != nil {
			slog.Error("failed to open history store", "err", err)
			return 1
		}
		defer store.Close()
		appOpts = append(appOpts, app.WithHistory(store))
		slog.Info("session history persisted in postgres")
	}

	application, err := app.New(cfg, providers, appOpts...)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	if *listenOnce {
		return listenOnceAndExit(ctx, application)
	}

	printStartupSummary(cfg)

	// ── Serve ─────────────────────────────────────────────────────────────────
	srv := &http.Server{
		Addr:    cfg.Server.ListenAddr,
		Handler: application.Handler(),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if tls := cfg.Server.TLS; tls != nil {
			err = srv.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received, stopping")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if *configPath != "" {
		watcher, err := config.NewWatcher(*configPath, application.ApplyConfig,
			config.WithEnv(config.OSEnv),
			config.WithWatcherLogger(logger),
		)
		if err != nil {
			slog.Error("failed to start config watcher", "err", err)
			return 1
		}
		g.Go(func() error { return watcher.Run(gctx) })
	}

	slog.Info("server ready", "addr", cfg.Server.ListenAddr, "tls", cfg.Server.TLS != nil)

	if err := g.Wait(); err != nil {
		slog.Error("server error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// loadConfig reads the YAML file at path with environment overrides, or
// builds the config from the environment alone when path is empty.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.FromEnv(config.OSEnv)
	}
	return config.Load(path, config.OSEnv)
}

// listenOnceAndExit records a single utterance from the capture device and
// prints the transcript to stdout.
func listenOnceAndExit(ctx context.Context, application *app.App) int {
	res, err := application.Listen(ctx, "cli")
	if err != nil {
		slog.Error("listen failed", "err", err)
		return 1
	}
	if de, ok := res.Result.(recorder.DeviceError); ok {
		slog.Error("recording failed", "err", de.Err)
		return 1
	}
	if !res.Heard() {
		fmt.Println(app.MessageNoSpeech)
		return 0
	}
	fmt.Println(res.Transcript)
	return 0
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║         earshot: startup summary      ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("STT", cfg.Providers.STT.Name, cfg.Providers.STT.Model)
	printProvider("TTS", cfg.Providers.TTS.Name, cfg.Providers.TTS.Model)
	printProvider("VAD", cfg.Providers.VAD.Name, "")
	printProvider("Audio", cfg.Providers.Audio.Name, "")
	fmt.Printf("║  STT fallbacks   : %-19d ║\n", len(cfg.Providers.STTFallbacks))
	fmt.Printf("║  Sample rate     : %-19d ║\n", cfg.Recording.SampleRate)
	fmt.Printf("║  Silence timeout : %-19s ║\n", cfg.Recording.SilenceTimeout)
	fmt.Printf("║  Overall timeout : %-19s ║\n", cfg.Recording.OverallTimeout)
	if cfg.History.PostgresDSN != "" {
		fmt.Printf("║  History         : %-19s ║\n", "postgres")
	} else {
		fmt.Printf("║  History         : %-19s ║\n", fmt.Sprintf("memory (%d)", cfg.History.Capacity))
	}
	fmt.Printf("║  Listen addr     : %-19s ║\n", cfg.Server.ListenAddr)
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, model string) {
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, providerLabel(name, model))
}

// providerLabel formats a provider for the summary box, truncated to fit.
func providerLabel(name, model string) string {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	if len(value) > 19 {
		value = value[:16] + "..."
	}
	return value
}

// ── Logger ─────────────────────────────────────────────────────────────────────

// newLogger returns a text logger whose level follows lv, so the config
// watcher can change it at runtime.
func newLogger(lv *slog.LevelVar) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lv}))
}

func closeAll(closers []io.Closer) {
	for _, c := range closers {
		if err := c.Close(); err != nil {
			slog.Warn("provider close error", "err", err)
		}
	}
}
