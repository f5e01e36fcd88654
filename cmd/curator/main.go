// Package main wires together the curator service binary.
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
	"go.uber.org/zap"

	"github.com/mstanton/curator/internal/api"
	"github.com/mstanton/curator/internal/archive"
	"github.com/mstanton/curator/internal/clock/system"
	"github.com/mstanton/curator/internal/config"
	"github.com/mstanton/curator/internal/enrich"
	"github.com/mstanton/curator/internal/id/uuid"
	"github.com/mstanton/curator/internal/linkcheck"
	"github.com/mstanton/curator/internal/logging"
	"github.com/mstanton/curator/internal/persist"
	"github.com/mstanton/curator/internal/progress"
	"github.com/mstanton/curator/internal/progress/sinks"
	"github.com/mstanton/curator/internal/runner"
	"github.com/mstanton/curator/internal/store"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend, err := persist.New(persist.Config{Dir: cfg.Storage.DataDir}, logger.Named("persist"))
	if err != nil {
		logger.Fatal("persistence init failed", zap.Error(err))
	}
	clock := system.New()
	idGen := uuid.New()
	st, err := store.New(backend, clock, logger.Named("store"))
	if err != nil {
		logger.Fatal("store init failed", zap.Error(err))
	}

	registry := prometheus.NewRegistry()
	promSink, err := sinks.NewPrometheusSink(registry)
	if err != nil {
		logger.Fatal("prometheus sink init failed", zap.Error(err))
	}
	hub := progress.NewHub(
		progress.Config{BaseContext: ctx, Logger: logger.Named("progress")},
		sinks.NewLogSink(logger.Named("runs")),
		promSink,
	)

	suggestClient, err := enrich.NewSuggestClient(cfg.Enrichment.SuggestAPIURL)
	if err != nil {
		// Enrichment stays unavailable without credentials; the rest of the
		// service still runs.
		logger.Warn("enrichment suggestions disabled", zap.Error(err))
	}

	var runners api.Runners
	if suggestClient != nil {
		enricher := enrich.NewService(suggestClient, enrich.Options{
			UserAgent:    cfg.Enrichment.UserAgent,
			FetchTimeout: cfg.FetchTimeout(),
			MaxTextRunes: cfg.Enrichment.MaxTextRunes,
		}, logger.Named("enrich"))
		runners.Enrichment = runner.NewEnrichment(
			st, enricher, hub, idGen, clock, logger.Named("enrichment"),
			runner.WithWorkers(cfg.Enrichment.Workers),
			runner.WithClaimDelay(cfg.EnrichmentClaimDelay()),
		)
	}
	prober := linkcheck.New(linkcheck.Config{
		Timeout:   cfg.ProbeTimeout(),
		UserAgent: cfg.Enrichment.UserAgent,
	}, logger.Named("linkcheck"))
	runners.Reachability = runner.NewReachability(
		st, prober, hub, clock, logger.Named("reachability"),
		runner.WithWorkers(cfg.Reachability.Workers),
		runner.WithClaimDelay(cfg.ReachabilityClaimDelay()),
	)

	archiver := archive.New(st, backend.Dir, clock, idGen, logger.Named("archive"))

	apiServer := api.NewServer(
		ctx, st, backend, archiver, runners, idGen, registry,
		time.Duration(cfg.Server.RequestTimeoutSec)*time.Second,
		logger.Named("api"),
	)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       time.Duration(cfg.Server.ReadTimeoutSec) * time.Second,
		WriteTimeout:      time.Duration(cfg.Server.WriteTimeoutSec) * time.Second,
	}

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	// Stop claiming new work first so the final flush sees settled state.
	if runners.Enrichment != nil {
		runners.Enrichment.Cancel()
	}
	runners.Reachability.Cancel()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	if err := hub.Close(shutdownCtx); err != nil {
		logger.Error("progress hub close error", zap.Error(err))
	}
	if err := st.ForceSaveAll(shutdownCtx); err != nil {
		logger.Error("final flush failed", zap.Error(err))
	}
	if err := backend.Close(shutdownCtx); err != nil {
		logger.Error("backend close error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}
