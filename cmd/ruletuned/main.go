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

	"github.com/crewportal/ruletune/internal/alerting"
	"github.com/crewportal/ruletune/internal/alerting/api"
	"github.com/crewportal/ruletune/internal/alerting/scheduler"
	"github.com/crewportal/ruletune/internal/config"
	"github.com/fox-gonic/fox"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

func main() {
	log.Info().Msg("Starting ruletune daemon")
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	cfg.ApplyLogging()
	if !strings.EqualFold(cfg.Logging.Level, "debug") && !strings.EqualFold(cfg.Logging.Level, "trace") {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := alerting.NewServer(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize rule tuning")
	}
	defer srv.Close()
	srv.Recorder().WithProcessCollectors()

	// publish the current thresholds before the first run
	if _, err := srv.Rules().LoadRules(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to load rule table")
	}

	runner, err := srv.Runner(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create analyzer")
	}
	sched := scheduler.New(cfg.Scheduler.Cron, runner, srv.Patcher(), cfg.Scheduler.AutoApply)
	if err := sched.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start scheduler")
	}
	defer sched.Stop()

	router := fox.New()
	api.NewApi(router, srv.Rules(), sched, srv.ReportFile(), srv.Recorder().Handler(), cfg.Scheduler.APIToken)
	httpSrv := &http.Server{Addr: cfg.Scheduler.BindAddr, Handler: router, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		log.Info().Msgf("Starting server on %s", cfg.Scheduler.BindAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("http server failed")
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown failed")
	}
	log.Info().Msg("ruletune daemon exit...")
}
