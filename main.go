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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/ekaya-inc/ekaya-answer/pkg/config"
	"github.com/ekaya-inc/ekaya-answer/pkg/generation"
	"github.com/ekaya-inc/ekaya-answer/pkg/handlers"
	"github.com/ekaya-inc/ekaya-answer/pkg/llm"
	"github.com/ekaya-inc/ekaya-answer/pkg/logging"
	"github.com/ekaya-inc/ekaya-answer/pkg/metrics"
	"github.com/ekaya-inc/ekaya-answer/pkg/middleware"
	"github.com/ekaya-inc/ekaya-answer/pkg/state"
)

// Version is set at build time via ldflags
var Version = "dev"

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", config.DefaultConfigFile, "Path to YAML config file")
	printConfig := flag.Bool("print-config", false, "Print the effective configuration and exit")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadFile(*configPath, Version)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if *printConfig {
		out, err := yaml.Marshal(cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode config: %v\n", err)
			os.Exit(1)
		}
		fmt.Print(string(out))
		return
	}

	logger, err := newLogger(cfg.Env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	// Log startup configuration
	logger.Info("Configuration loaded",
		zap.String("environment", cfg.Env),
		zap.String("version", cfg.Version),
		zap.String("base_url", logging.SanitizeURL(cfg.OpenAI.BaseURL)),
		zap.String("model", cfg.OpenAI.Model),
		zap.Bool("api_key_set", cfg.OpenAI.APIKey != ""),
		zap.Int("max_retries", cfg.Generation.MaxRetries),
		zap.Duration("backoff_step", cfg.Generation.BackoffStep))

	endpoint := llm.Endpoint{
		BaseURL:            cfg.OpenAI.BaseURL,
		APIKey:             cfg.OpenAI.APIKey,
		EndpointIdentifier: cfg.OpenAI.EndpointIdentifier,
		UserSession:        cfg.OpenAI.UserSession,
	}

	streamer, err := llm.NewOpenAIStreamer(endpoint, &http.Client{Timeout: cfg.OpenAI.RequestTimeout}, logger)
	if err != nil {
		logger.Fatal("Failed to create streaming client", zap.Error(err))
	}
	lister := llm.NewHTTPModelLister(nil, endpoint, logger)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(cfg.Metrics, registry)

	breaker := llm.NewCircuitBreaker(llm.CircuitBreakerConfig{
		Name:       "model listing",
		Threshold:  cfg.ListingBreaker.Threshold,
		ResetAfter: cfg.ListingBreaker.ResetAfter,
	})

	store := state.NewStore(cfg.Generation.MaxLogEntries, logger)
	generator := generation.NewGenerator(streamer, lister, generation.SettingsFromConfig(cfg), logger,
		generation.WithLogSink(store),
		generation.WithMetrics(collector),
		generation.WithCircuitBreaker(breaker))
	service := generation.NewService(generator, store, generation.Markers{
		Start: cfg.Generation.ReasoningStartMarker,
		End:   cfg.Generation.ReasoningEndMarker,
	}, logger)

	mux := http.NewServeMux()

	// Register handlers
	handlers.NewHealthHandler(cfg, service, logger).RegisterRoutes(mux)
	handlers.NewGenerationHandler(service, lister, cfg, logger).RegisterRoutes(mux)
	mux.Handle("GET /metrics", collector.Handler())

	handler := middleware.RequestID()(middleware.RequestLogger(logger)(mux))

	server := &http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting ekaya-answer",
			zap.String("addr", server.Addr),
			zap.String("version", cfg.Version))
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	case <-ctx.Done():
		logger.Info("Shutting down")
	}

	// Streams stay open until their generation ends, so stop generations first.
	if n := service.Registry().InterruptAll(); n > 0 {
		logger.Info("Interrupted running generations", zap.Int("count", n))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed", zap.Error(err))
	}
}

func newLogger(env string) (*zap.Logger, error) {
	if env == "local" || env == "dev" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
