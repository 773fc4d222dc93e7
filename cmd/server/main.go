package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"insights-gateway/internal/config"
	"insights-gateway/internal/engine"
	_ "insights-gateway/internal/engine/rules/core"
	"insights-gateway/internal/intake"
	"insights-gateway/internal/logger"
	"insights-gateway/internal/metrics"
	"insights-gateway/internal/server"
	"insights-gateway/internal/stats"
	"insights-gateway/internal/tracing"
	"insights-gateway/internal/version"
	"insights-gateway/internal/worker"
	"insights-gateway/internal/workspace"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	zlog "github.com/rs/zerolog/log"
)

func main() {
	start := time.Now()

	// ====================================================================
	// Config & logging
	// ====================================================================
	//
	// config.Load exits on malformed values or a missing RULE_PACKAGES.
	// Everything after this point logs through zerolog.
	// ====================================================================
	cfg := config.Load()
	logger.Init(cfg)
	log := zlog.Logger

	ctx := context.Background()

	shutdownTracing, err := tracing.Setup(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("tracing setup failed")
	}

	// ====================================================================
	// Rule packages
	// ====================================================================
	//
	// Packages register themselves from init(). Names in RULE_PACKAGES that
	// nothing registered are logged and skipped; the rest still load.
	// ====================================================================
	rules, err := engine.LoadPackages(cfg.RulePackages)
	if err != nil {
		log.Error().Err(err).
			Strs("available", engine.ListPackages()).
			Msg("some rule packages failed to load")
	}
	for _, p := range rules.Packages() {
		log.Info().Str("package", p.Name).Str("version", p.Version).Int("rules", len(p.Rules)).Msg("rule package loaded")
	}

	// ====================================================================
	// Counters
	// ====================================================================
	versions := map[string]any{}
	for k, v := range version.Versions() {
		versions[k] = v
	}
	for k, v := range rules.Versions() {
		versions[k] = v
	}
	st := stats.New(start, versions)
	m := metrics.New()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	if err := st.Register(reg); err != nil {
		log.Fatal().Err(err).Msg("register stats collectors")
	}
	if err := m.Register(reg); err != nil {
		log.Fatal().Err(err).Msg("register metrics collectors")
	}

	// ====================================================================
	// Persistence
	// ====================================================================
	//
	// Without bucket + key id + secret the persister is a no-op; uploads are
	// still evaluated and answered.
	// ====================================================================
	var store worker.ObjectStore
	if cfg.PersistenceEnabled() {
		u, err := worker.NewS3Uploader(ctx, cfg, m)
		if err != nil {
			log.Fatal().Err(err).Msg("s3 client init failed")
		}
		store = u
	} else {
		log.Warn().Msg("Archive persistence to S3 is disabled")
	}

	// ====================================================================
	// Pipeline & HTTP
	// ====================================================================
	pers := worker.NewPersister(cfg, store)
	proc := worker.NewProcessor(
		workspace.NewManager(cfg.WorkDir),
		worker.NewDispatcher(cfg, rules),
		pers,
		st,
	)
	h := server.NewHandler(proc, intake.New(config.MaxUploadSize), st, m, engineHost(cfg))

	// Uploads can be 100 MiB and evaluation takes minutes, so there is no
	// write timeout; ReadHeaderTimeout still guards against slow clients.
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server.NewRouter(h, reg),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// ====================================================================
	// Graceful shutdown
	// ====================================================================
	//
	// SIGTERM/SIGINT: stop accepting, let in-flight uploads finish (their
	// workspaces are released by the handlers), then flush spans.
	// ====================================================================
	idle := make(chan struct{})
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

		sig := <-sigCh
		log.Info().Str("signal", sig.String()).Msg("shutdown signal received")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("http shutdown")
		}
		if err := shutdownTracing(ctx); err != nil {
			log.Error().Err(err).Msg("tracing shutdown")
		}
		close(idle)
	}()

	log.Info().
		Str("addr", cfg.HTTPAddr).
		Str("version", version.Gateway).
		Str("work_dir", cfg.WorkDir).
		Str("uploader_log_dir", cfg.UploaderLogDir).
		Bool("persistence", pers.Enabled()).
		Msg("insights gateway listening")

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("http server terminated")
	}

	<-idle
	log.Info().Str("counters", m.String()).Msg("shutdown complete")
}

// engineHost is reported in X-Engine-Host.
func engineHost(cfg config.Config) string {
	if h, err := os.Hostname(); err == nil && strings.TrimSpace(h) != "" {
		return h
	}
	return cfg.InstanceID
}
