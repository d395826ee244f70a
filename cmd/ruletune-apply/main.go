package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/crewportal/ruletune/internal/alerting"
	"github.com/crewportal/ruletune/internal/alerting/service/optimizer"
	"github.com/crewportal/ruletune/internal/config"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	cfg.ApplyLogging()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = run(ctx, cfg)
	stop()
	if err != nil {
		log.Fatal().Err(err).Msg("applying optimization report failed")
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	srv, err := alerting.NewServer(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := srv.Close(); err != nil {
			log.Warn().Err(err).Msg("close failed")
		}
	}()

	res, err := srv.Patcher().Run(ctx)
	if err != nil {
		return err
	}
	optimizer.PrintApplyResult(os.Stdout, res)

	if err := srv.Recorder().Push(ctx); err != nil {
		log.Warn().Err(err).Msg("push metrics failed")
	}
	return nil
}
