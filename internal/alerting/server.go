package alerting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/crewportal/ruletune/internal/alerting/database"
	"github.com/crewportal/ruletune/internal/alerting/lock"
	"github.com/crewportal/ruletune/internal/alerting/metrics"
	"github.com/crewportal/ruletune/internal/alerting/notify"
	"github.com/crewportal/ruletune/internal/alerting/service/analyzer"
	"github.com/crewportal/ruletune/internal/alerting/service/optimizer"
	"github.com/crewportal/ruletune/internal/alerting/service/ruleset"
	"github.com/crewportal/ruletune/internal/config"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Server holds the wired rule-tuning components shared by the commands.
type Server struct {
	config   *config.Config
	store    *ruleset.FileStore
	rules    *ruleset.Manager
	recorder *metrics.Recorder
	closers  []func() error
}

// NewServer wires the rule store with its optional collaborators. Change logging, the
// Redis lock and Kafka notifications are skipped when not configured; a configured
// collaborator that cannot be reached is logged and skipped as well.
func NewServer(ctx context.Context, cfg *config.Config) (*Server, error) {
	s := &Server{config: cfg, recorder: metrics.NewRecorder(cfg.Metrics.PushgatewayURL, cfg.Metrics.Job)}

	locker := lock.Multi{lock.NewFileLock(cfg.Ruleset.LockFile, config.ParseDuration(cfg.Ruleset.LockTimeout, 30*time.Second))}
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		s.closers = append(s.closers, rdb.Close)
		locker = append(locker, lock.NewRedisLock(rdb, cfg.Redis.LockKey, config.ParseDuration(cfg.Redis.LockTTL, 5*time.Minute)))
	}
	s.store = ruleset.NewFileStore(cfg.Ruleset.RulesFile, locker)

	var logs ruleset.ChangeLogStore
	if cfg.Database.Host != "" {
		if db, err := database.New(ctx, cfg.Database.DSN()); err == nil {
			pg := ruleset.NewPgChangeLogStore(db)
			if err := pg.EnsureSchema(ctx); err != nil {
				log.Error().Err(err).Msg("change log schema init failed; running without change log")
				_ = db.Close()
			} else {
				logs = pg
				s.closers = append(s.closers, db.Close)
			}
		} else {
			log.Error().Err(err).Msg("change log DB init failed; running without change log")
		}
	}

	var publisher ruleset.ChangePublisher
	if len(cfg.Notify.Brokers) > 0 {
		kn, err := notify.NewKafkaNotifier(cfg.Notify.Brokers, cfg.Notify.Topic)
		if err != nil {
			return nil, fmt.Errorf("create change notifier: %w", err)
		}
		publisher = kn
		s.closers = append(s.closers, kn.Close)
	}

	s.rules = ruleset.NewManager(s.store, logs, ruleset.NewExporterSync(s.recorder.Registry()), publisher)
	log.Info().
		Str("rules", cfg.Ruleset.RulesFile).
		Str("report", cfg.Ruleset.ReportFile).
		Bool("change_log", logs != nil).
		Bool("redis_lock", cfg.Redis.Addr != "").
		Bool("notify", publisher != nil).
		Msg("rule tuning initialized")
	return s, nil
}

func (s *Server) Rules() *ruleset.Manager { return s.rules }

func (s *Server) Recorder() *metrics.Recorder { return s.recorder }

func (s *Server) ReportFile() string { return s.config.Ruleset.ReportFile }

// Runner builds the analyze stage with the configured history source.
func (s *Server) Runner(ctx context.Context) (*optimizer.Runner, error) {
	cfg := s.config
	var source analyzer.HistorySource
	switch cfg.Analyzer.Source {
	case "prometheus":
		src, err := analyzer.NewPrometheusSource(cfg.Prometheus.URL, cfg.Analyzer.Signals,
			config.ParseDuration(cfg.Analyzer.Step, time.Hour), config.ParseDuration(cfg.Prometheus.QueryTimeout, 30*time.Second))
		if err != nil {
			return nil, err
		}
		source = src
	case "postgres":
		if cfg.History.DSN == "" {
			return nil, errors.New("analyzer source postgres requires history.dsn")
		}
		src, pool, err := analyzer.ConnectPostgresSource(ctx, cfg.History.DSN, cfg.Analyzer.Signals)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, func() error { pool.Close(); return nil })
		source = src
	default:
		return nil, fmt.Errorf("unknown analyzer source %q", cfg.Analyzer.Source)
	}

	a, err := analyzer.New(source, analyzer.Config{
		Lookback:       config.ParseDuration(cfg.Analyzer.Lookback, 720*time.Hour),
		Step:           config.ParseDuration(cfg.Analyzer.Step, time.Hour),
		Percentile:     cfg.Analyzer.Percentile,
		Headroom:       config.FloatOr(cfg.Analyzer.Headroom, config.DefaultHeadroom),
		MaxChangeRatio: config.FloatOr(cfg.Analyzer.MaxChangeRatio, config.DefaultMaxChangeRatio),
		MinSamples:     cfg.Analyzer.MinSamples,
	})
	if err != nil {
		return nil, err
	}
	return optimizer.NewRunner(s.rules, a, cfg.Ruleset.ReportFile,
		config.ParseDuration(cfg.Analyzer.Timeout, 2*time.Minute), s.recorder), nil
}

// Patcher builds the apply stage.
func (s *Server) Patcher() *optimizer.Patcher {
	return optimizer.NewPatcher(s.rules, s.config.Ruleset.ReportFile, s.recorder)
}

// Close releases collaborators in reverse order of creation.
func (s *Server) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}
