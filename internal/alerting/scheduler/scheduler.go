package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/crewportal/ruletune/internal/alerting/service/analyzer"
	"github.com/crewportal/ruletune/internal/alerting/service/ruleset"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// ErrRunInProgress is returned by RunOnce while another run holds the scheduler.
var ErrRunInProgress = errors.New("optimization run already in progress")

const historySize = 20

type Runner interface {
	Run(ctx context.Context) (*analyzer.Result, error)
}

type Patcher interface {
	Run(ctx context.Context) (*ruleset.ApplyResult, error)
}

// RunRecord summarizes one scheduled or manual run.
type RunRecord struct {
	RunID      string    `json:"runId,omitempty"`
	Trigger    string    `json:"trigger"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
	Proposals  int       `json:"proposals"`
	Applied    int       `json:"applied"`
	Warnings   int       `json:"warnings"`
	Error      string    `json:"error,omitempty"`
}

// Scheduler runs analyze (and optionally apply) on a cron schedule.
type Scheduler struct {
	cron      *cron.Cron
	spec      string
	runner    Runner
	patcher   Patcher
	autoApply bool

	running sync.Mutex
	mu      sync.RWMutex
	history []RunRecord
	ctx     context.Context
}

func New(spec string, runner Runner, patcher Patcher, autoApply bool) *Scheduler {
	logger := cronLogger{}
	return &Scheduler{
		cron:      cron.New(cron.WithLogger(logger), cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger))),
		spec:      spec,
		runner:    runner,
		patcher:   patcher,
		autoApply: autoApply,
		ctx:       context.Background(),
	}
}

// Start registers the job and starts the cron loop. Jobs run with ctx.
func (s *Scheduler) Start(ctx context.Context) error {
	s.ctx = ctx
	id, err := s.cron.AddFunc(s.spec, func() {
		if _, err := s.RunOnce(s.ctx, "cron"); err != nil && !errors.Is(err, ErrRunInProgress) {
			log.Error().Err(err).Msg("scheduled optimization failed")
		}
	})
	if err != nil {
		return fmt.Errorf("schedule %q: %w", s.spec, err)
	}
	s.cron.Start()
	log.Info().Str("schedule", s.spec).Time("next_run", s.cron.Entry(id).Next).Bool("auto_apply", s.autoApply).Msg("scheduler started")
	return nil
}

// Stop waits for a running job to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	log.Info().Msg("scheduler stopped")
}

// Trigger runs once under the scheduler's context, so callers going away does not abort the run.
func (s *Scheduler) Trigger(trigger string) (RunRecord, error) {
	return s.RunOnce(s.ctx, trigger)
}

// RunOnce analyzes and, when auto-apply is on, patches the rule table.
func (s *Scheduler) RunOnce(ctx context.Context, trigger string) (RunRecord, error) {
	if !s.running.TryLock() {
		return RunRecord{}, ErrRunInProgress
	}
	defer s.running.Unlock()

	rec := RunRecord{Trigger: trigger, StartedAt: time.Now().UTC()}
	err := s.run(ctx, &rec)
	rec.FinishedAt = time.Now().UTC()
	if err != nil {
		rec.Error = err.Error()
	}
	s.record(rec)
	return rec, err
}

func (s *Scheduler) run(ctx context.Context, rec *RunRecord) error {
	res, err := s.runner.Run(ctx)
	if err != nil {
		return err
	}
	rec.RunID = res.Report.RunID
	rec.Proposals = len(res.Report.Optimizations)
	rec.Warnings = len(res.Warnings)
	if !s.autoApply || s.patcher == nil || rec.Proposals == 0 {
		return nil
	}
	applied, err := s.patcher.Run(ctx)
	if err != nil {
		return err
	}
	rec.Applied = len(applied.Changes)
	rec.Warnings += len(applied.Warnings)
	return nil
}

func (s *Scheduler) record(rec RunRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, rec)
	if len(s.history) > historySize {
		s.history = s.history[len(s.history)-historySize:]
	}
}

// History returns recent runs, newest first.
func (s *Scheduler) History() []RunRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]RunRecord, len(s.history))
	for i, rec := range s.history {
		out[len(s.history)-1-i] = rec
	}
	return out
}

// cronLogger routes cron's own logging through zerolog.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	log.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	log.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}
