package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	router "github.com/dkeye/roulette/internal/adapters/http"
	"github.com/dkeye/roulette/internal/adapters/rtc"
	"github.com/dkeye/roulette/internal/app"
	"github.com/dkeye/roulette/internal/app/orch"
	"github.com/dkeye/roulette/internal/config"
	"github.com/dkeye/roulette/internal/metrics"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}
	if cfg.Mode == "release" {
		// JSON lines in production.
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(promReg)

	reg := app.NewRegistry()
	presence := app.NewBroadcaster(reg, m)
	policy := app.SimplePolicy{}
	matchmaker := app.NewMatchmaker(reg, presence, cfg.MatchRetryInterval, rtc.ICEServers(cfg.ICEServers), m)
	relay := app.NewSessionRelay(reg, presence, matchmaker, policy, m)
	sweeper := app.NewSweeper(reg, relay, cfg.SweepInterval, cfg.StaleAfter)

	o := &orch.Orchestrator{
		Registry:   reg,
		Matchmaker: matchmaker,
		Relay:      relay,
		Presence:   presence,
		Policy:     policy,
	}

	r := router.SetupRouter(ctx, cfg, o, promReg)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", addr).Msg("roulette server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return sweeper.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		err := srv.Shutdown(shutdownCtx)
		o.Shutdown()
		return err
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("server error")
		os.Exit(1)
	}
	log.Info().Msg("Server exited gracefully")
}
