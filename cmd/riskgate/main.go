package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"riskgate/internal/cfg"
	"riskgate/internal/dashboard"
	"riskgate/internal/engine"
	"riskgate/internal/metrics"
	"riskgate/internal/policy"
	"riskgate/internal/server"
	"riskgate/internal/store"
)

func main() {
	_ = godotenv.Load()
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	c, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.New()
	mw := metrics.NewWrapper(m)

	st := initializeStore(c)
	if st != nil {
		defer st.Close()
	}

	eng, err := engine.Load(c.ArtifactPath)
	if err != nil {
		if errors.Is(err, engine.ErrNotReady) {
			log.Warn().Str("path", c.ArtifactPath).Msg("no artifact found, serving not ready until reload")
			mw.SetEngineReady(false)
			eng = nil
		} else {
			log.Fatal().Err(err).Msg("artifact load failed")
		}
	}

	pol, err := policy.New(c.TauLow, c.TauHigh)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid decision thresholds")
	}

	var dash *dashboard.Dashboard
	if c.DashboardPort > 0 {
		dash = dashboard.New(st, c.DashboardPort)
		if err := dash.Start(); err != nil {
			log.Fatal().Err(err).Msg("dashboard start failed")
		}
		defer dash.Stop()
	}

	var broadcaster server.Broadcaster
	if dash != nil {
		broadcaster = dash
	}
	srv := server.New(eng, pol, st, mw, broadcaster, c.ArtifactPath, c.ServerPort)

	startMetricsServer(ctx, c.MetricsPort)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("scoring server failed")
			cancel()
		}
	}()

	waitForShutdown(ctx, cancel)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("scoring server shutdown failed")
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		log.Info().Msg("all goroutines stopped")
	case <-time.After(10 * time.Second):
		log.Warn().Msg("shutdown timeout, forcing exit")
	}
}

// initializeStore opens the decision audit store when DATA_PATH is
// configured.
func initializeStore(c cfg.Settings) *store.Store {
	if c.DataPath == "" {
		return nil
	}
	st, err := store.New(c.DataPath)
	if err != nil {
		log.Warn().Err(err).Msg("audit store initialization failed, continuing without persistence")
		return nil
	}
	return st
}

// startMetricsServer starts the Prometheus metrics HTTP server.
func startMetricsServer(ctx context.Context, port int) {
	go func() {
		mux := http.NewServeMux()
		mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("OK"))
		})
		mux.Handle("/metrics", promhttp.Handler())

		server := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		}

		go func() {
			<-ctx.Done()
			if err := server.Shutdown(context.Background()); err != nil {
				log.Error().Err(err).Msg("failed to shutdown metrics server")
			}
		}()

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("metrics server failed")
		}
	}()
}

// waitForShutdown blocks until a signal arrives or the context ends.
func waitForShutdown(ctx context.Context, cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		log.Info().Msg("shutdown signal received")
	case <-ctx.Done():
		log.Info().Msg("context canceled")
	}

	log.Info().Msg("shutting down gracefully...")
	cancel()
}
