// Command sightrelay runs the assistive-vision gateway: it accepts camera
// frames from clients, throttles them per session, and relays admitted
// frames to a vision model, streaming the guidance text back.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/AltairaLabs/SightRelay/admission"
	"github.com/AltairaLabs/SightRelay/config"
	"github.com/AltairaLabs/SightRelay/logger"
	"github.com/AltairaLabs/SightRelay/media"
	"github.com/AltairaLabs/SightRelay/metrics"
	"github.com/AltairaLabs/SightRelay/relay"
	"github.com/AltairaLabs/SightRelay/server"
	"github.com/AltairaLabs/SightRelay/session"
	"github.com/AltairaLabs/SightRelay/statestore"
	"github.com/AltairaLabs/SightRelay/telemetry"
	"github.com/AltairaLabs/SightRelay/version"
)

const shutdownGrace = 10 * time.Second

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.GetVersionInfo())
		return
	}

	if err := run(*configPath); err != nil {
		logger.Error("Gateway exited", "error", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Fields)
	logger.Info("Starting sightrelay", version.GetBuildInfo()...)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Telemetry.Endpoint != "" {
		tp, err := telemetry.NewTracerProvider(ctx, cfg.Telemetry.Endpoint, "sightrelay")
		if err != nil {
			return fmt.Errorf("telemetry setup failed: %w", err)
		}
		telemetry.Setup(tp)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
			defer cancel()
			if err := tp.Shutdown(shutdownCtx); err != nil {
				logger.Warn("Trace provider shutdown failed", "error", err)
			}
		}()
	} else {
		telemetry.Setup(nil)
	}

	store := newStateStore(cfg)
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("State store close failed", "error", err)
		}
	}()

	registry := session.NewRegistry(session.RegistryConfig{
		Store:       store,
		Controller:  admission.NewController(cfg.Admission.RateLimit, cfg.Admission.RateWindow()),
		MinInterval: cfg.Admission.MinFrameInterval(),
		IdleTTL:     cfg.Admission.SessionIdleTTL(),
	})
	registry.StartEvictionSweep(ctx)

	normalizer := media.NewNormalizer(media.NormalizeConfig{
		MaxWidth:  cfg.Image.MaxWidth,
		MaxHeight: cfg.Image.MaxHeight,
		Quality:   cfg.Image.Quality,
	})

	rel := relay.New(relay.Config{
		BaseURL:           cfg.Upstream.BaseURL,
		APIKey:            cfg.Upstream.APIKey,
		Model:             cfg.Upstream.Model,
		SystemPrompt:      cfg.Upstream.SystemPrompt,
		DefaultUserPrompt: config.DefaultPrompt,
		Timeout:           cfg.Upstream.Timeout(),
	})

	exporter := metrics.NewExporter(fmt.Sprintf(":%d", cfg.Server.MetricsPort))

	serverOpts := []server.Option{
		server.WithPort(cfg.Server.Port),
		server.WithMaxBodySize(cfg.Server.MaxBodyBytes),
	}
	if cfg.Server.MetricsPort == 0 {
		// No dedicated metrics listener: expose /metrics on the API port.
		serverOpts = append(serverOpts, server.WithMetricsHandler(exporter.Handler()))
	}
	srv := server.New(registry, normalizer, rel, serverOpts...)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("API server listening",
			"port", cfg.Server.Port, "model", cfg.Upstream.Model)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	})

	if cfg.Server.MetricsPort != 0 {
		g.Go(func() error {
			logger.Info("Metrics server listening", "port", cfg.Server.MetricsPort)
			if err := exporter.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("API server shutdown failed", "error", err)
		}
		if cfg.Server.MetricsPort != 0 {
			if err := exporter.Shutdown(shutdownCtx); err != nil {
				logger.Warn("Metrics server shutdown failed", "error", err)
			}
		}
		return nil
	})

	return g.Wait()
}

// newStateStore picks Redis when configured, in-memory otherwise.
func newStateStore(cfg *config.Config) statestore.Store {
	if cfg.Redis.Addr == "" {
		logger.Info("Using in-memory admission state store")
		return statestore.NewMemoryStore()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	opts := []statestore.RedisOption{
		statestore.WithTTL(cfg.Admission.SessionIdleTTL()),
	}
	if cfg.Redis.Prefix != "" {
		opts = append(opts, statestore.WithPrefix(cfg.Redis.Prefix))
	}

	logger.Info("Using Redis admission state store", "addr", cfg.Redis.Addr)
	return statestore.NewRedisStore(client, opts...)
}
