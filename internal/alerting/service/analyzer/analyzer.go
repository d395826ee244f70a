package analyzer

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/crewportal/ruletune/internal/alerting/service/report"
	"github.com/crewportal/ruletune/internal/alerting/service/ruleset"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Config tunes how proposals are derived from history.
type Config struct {
	Lookback       time.Duration
	Step           time.Duration
	Percentile     float64 // 0 < p <= 1
	Headroom       float64 // multiplier added on top of the percentile
	MaxChangeRatio float64 // largest relative move per run; 0 disables clamping
	MinSamples     int
}

// Result is one analysis pass: the report plus the keys that could not be analyzed.
type Result struct {
	Report   *report.OptimizationReport
	Warnings []ruleset.Warning
	Skipped  []string
}

type Analyzer struct {
	source HistorySource
	cfg    Config
	now    func() time.Time
}

func New(source HistorySource, cfg Config) (*Analyzer, error) {
	if source == nil {
		return nil, errors.New("analyzer: history source is nil")
	}
	if cfg.Percentile <= 0 || cfg.Percentile > 1 {
		return nil, fmt.Errorf("analyzer: percentile %v out of range (0, 1]", cfg.Percentile)
	}
	if cfg.Headroom < 0 || cfg.MaxChangeRatio < 0 {
		return nil, errors.New("analyzer: headroom and maxChangeRatio must be non-negative")
	}
	if cfg.Lookback <= 0 || cfg.Step <= 0 {
		return nil, errors.New("analyzer: lookback and step must be positive")
	}
	if cfg.MinSamples < 1 {
		cfg.MinSamples = 1
	}
	return &Analyzer{source: source, cfg: cfg, now: time.Now}, nil
}

// Analyze proposes new values for every rule in table. Source failures for a single key
// become warnings; cancellation of ctx aborts the whole pass.
func (a *Analyzer) Analyze(ctx context.Context, table *ruleset.Table) (*Result, error) {
	end := a.now().UTC()
	start := end.Add(-a.cfg.Lookback)
	res := &Result{Report: &report.OptimizationReport{
		RunID:         uuid.NewString(),
		GeneratedAt:   end,
		Optimizations: []report.Optimization{},
	}}

	for _, rule := range table.Rules() {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("analyze: %w", err)
		}
		opt, ok, err := a.analyzeRule(ctx, rule, start, end)
		switch {
		case err != nil && ctx.Err() != nil:
			return nil, fmt.Errorf("analyze %s: %w", rule.Key, ctx.Err())
		case errors.Is(err, ErrNoSignal):
			log.Debug().Str("rule", rule.Key).Msg("no history signal configured, skipping")
			res.Skipped = append(res.Skipped, rule.Key)
		case err != nil:
			log.Warn().Err(err).Str("rule", rule.Key).Msg("analysis failed for rule")
			res.Warnings = append(res.Warnings, ruleset.Warning{Key: rule.Key, Err: err})
		case !ok:
			res.Skipped = append(res.Skipped, rule.Key)
		default:
			res.Report.Optimizations = append(res.Report.Optimizations, opt)
		}
	}
	log.Info().
		Str("run_id", res.Report.RunID).
		Int("proposals", len(res.Report.Optimizations)).
		Int("warnings", len(res.Warnings)).
		Int("skipped", len(res.Skipped)).
		Msg("analysis finished")
	return res, nil
}

// analyzeRule returns ok=false when there is not enough history or nothing would change.
func (a *Analyzer) analyzeRule(ctx context.Context, rule ruleset.AlertRule, start, end time.Time) (report.Optimization, bool, error) {
	counts, err := a.source.Counts(ctx, rule.Key, start, end, a.cfg.Step)
	if err != nil {
		return report.Optimization{}, false, err
	}
	if len(counts) < a.cfg.MinSamples {
		log.Debug().Str("rule", rule.Key).Int("samples", len(counts)).Int("min", a.cfg.MinSamples).Msg("not enough samples")
		return report.Optimization{}, false, nil
	}
	pc := percentile(counts, a.cfg.Percentile)
	threshold := a.propose(pc, rule.Threshold, 0)
	reason := fmt.Sprintf("%s=%s over %d samples", a.label(), report.FormatNumber(round2(pc)), len(counts))

	nr := report.NewRule{Threshold: threshold}
	if rule.TimeoutHours != nil {
		ages, err := a.source.AgesHours(ctx, rule.Key, start, end)
		switch {
		case errors.Is(err, ErrNoSignal):
		case err != nil:
			return report.Optimization{}, false, err
		case len(ages) < a.cfg.MinSamples:
			log.Debug().Str("rule", rule.Key).Int("samples", len(ages)).Msg("not enough age samples")
		default:
			pa := percentile(ages, a.cfg.Percentile)
			nr.TimeoutHours = report.Float(a.propose(pa, *rule.TimeoutHours, 1))
			reason += fmt.Sprintf(", age %s=%sh", a.label(), report.FormatNumber(round2(pa)))
		}
	}

	thresholdSame := nr.Threshold == rule.Threshold
	timeoutSame := nr.TimeoutHours == nil || *nr.TimeoutHours == *rule.TimeoutHours
	if thresholdSame && timeoutSame {
		return report.Optimization{}, false, nil
	}
	return report.Optimization{
		Key:      rule.Key,
		NewRule:  nr,
		Previous: &report.NewRule{Threshold: rule.Threshold, TimeoutHours: rule.TimeoutHours},
		Reason:   reason,
	}, true, nil
}

// propose turns an observed percentile into a whole-number proposal, bounded relative
// to current and never below floor.
func (a *Analyzer) propose(observed, current, floor float64) float64 {
	v := math.Ceil(observed * (1 + a.cfg.Headroom))
	if current > 0 && a.cfg.MaxChangeRatio > 0 {
		lo := math.Ceil(current * (1 - a.cfg.MaxChangeRatio))
		hi := math.Floor(current * (1 + a.cfg.MaxChangeRatio))
		if hi < lo {
			// no whole number within the band
			return current
		}
		v = math.Min(math.Max(v, lo), hi)
	}
	return math.Max(v, floor)
}

func (a *Analyzer) label() string {
	return "p" + strconv.FormatFloat(round2(a.cfg.Percentile*100), 'f', -1, 64)
}

// percentile uses the nearest-rank method on a sorted copy of values.
func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	s := append([]float64(nil), values...)
	sort.Float64s(s)
	rank := int(math.Ceil(p*float64(len(s)))) - 1
	if rank < 0 {
		rank = 0
	}
	if rank >= len(s) {
		rank = len(s) - 1
	}
	return s[rank]
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
