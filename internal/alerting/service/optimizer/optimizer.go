package optimizer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/crewportal/ruletune/internal/alerting/service/analyzer"
	"github.com/crewportal/ruletune/internal/alerting/service/report"
	"github.com/crewportal/ruletune/internal/alerting/service/ruleset"
	"github.com/rs/zerolog/log"
)

// Analyzer is the part of analyzer.Analyzer the runner depends on.
type Analyzer interface {
	Analyze(ctx context.Context, table *ruleset.Table) (*analyzer.Result, error)
}

type RuleLoader interface {
	LoadRules(ctx context.Context) (*ruleset.Table, error)
}

type ReportApplier interface {
	ApplyReport(ctx context.Context, rep *report.OptimizationReport) (*ruleset.ApplyResult, error)
}

// Observer receives run outcomes; metrics.Recorder implements it.
type Observer interface {
	ObserveAnalyze(started time.Time, proposals, warnings int)
	ObserveApply(started time.Time, applied, warnings int)
}

// Runner performs the analyze stage: load rules, analyze history under a deadline and
// persist the report.
type Runner struct {
	rules      RuleLoader
	analyzer   Analyzer
	reportPath string
	timeout    time.Duration
	observer   Observer
}

// NewRunner wires a runner. timeout bounds the analysis; 0 leaves it to ctx. observer may be nil.
func NewRunner(rules RuleLoader, a Analyzer, reportPath string, timeout time.Duration, observer Observer) *Runner {
	return &Runner{rules: rules, analyzer: a, reportPath: reportPath, timeout: timeout, observer: observer}
}

func (r *Runner) Run(ctx context.Context) (*analyzer.Result, error) {
	started := time.Now()
	table, err := r.rules.LoadRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}

	actx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	res, err := r.analyzer.Analyze(actx, table)
	if err != nil {
		return nil, fmt.Errorf("analyze: %w", err)
	}
	if err := report.Write(r.reportPath, res.Report); err != nil {
		return nil, err
	}
	log.Info().
		Str("report", r.reportPath).
		Str("run_id", res.Report.RunID).
		Int("proposals", len(res.Report.Optimizations)).
		Msg("optimization report written")
	if r.observer != nil {
		r.observer.ObserveAnalyze(started, len(res.Report.Optimizations), len(res.Warnings))
	}
	return res, nil
}

// Patcher performs the apply stage: read the report and patch the rule table.
type Patcher struct {
	rules      ReportApplier
	reportPath string
	observer   Observer
}

func NewPatcher(rules ReportApplier, reportPath string, observer Observer) *Patcher {
	return &Patcher{rules: rules, reportPath: reportPath, observer: observer}
}

// Run applies the report at the configured path. A missing report is not an error and
// leaves the rule table untouched.
func (p *Patcher) Run(ctx context.Context) (*ruleset.ApplyResult, error) {
	started := time.Now()
	rep, err := report.Read(p.reportPath)
	if errors.Is(err, report.ErrNoReport) {
		log.Info().Str("report", p.reportPath).Msg("no optimization report; nothing to apply")
		return &ruleset.ApplyResult{}, nil
	}
	if err != nil {
		return nil, err
	}
	res, err := p.rules.ApplyReport(ctx, rep)
	if err != nil {
		return nil, fmt.Errorf("apply report: %w", err)
	}
	if p.observer != nil {
		p.observer.ObserveApply(started, len(res.Changes), len(res.Warnings))
	}
	return res, nil
}

// PrintSummary writes the operator-facing summary of an analyze run.
func PrintSummary(w io.Writer, res *analyzer.Result) {
	n := len(res.Report.Optimizations)
	if n == 0 {
		fmt.Fprintln(w, "No rule changes suggested.")
	} else {
		fmt.Fprintf(w, "%d rule change(s) suggested:\n", n)
		for _, line := range report.Summary(res.Report) {
			fmt.Fprintf(w, "  %s\n", line)
		}
	}
	for _, warn := range res.Warnings {
		fmt.Fprintf(w, "warning: %s\n", warn.Error())
	}
}

// PrintApplyResult writes the operator-facing summary of an apply run.
func PrintApplyResult(w io.Writer, res *ruleset.ApplyResult) {
	for _, c := range res.Changes {
		line := fmt.Sprintf("updated %s: threshold %s -> %s", c.Key,
			report.FormatNumber(c.OldThreshold), report.FormatNumber(c.NewThreshold))
		if c.TimeoutChanged() {
			line += fmt.Sprintf(", timeoutHours %s -> %s",
				report.FormatNumber(*c.OldTimeoutHours), report.FormatNumber(*c.NewTimeoutHours))
		}
		fmt.Fprintln(w, line)
	}
	for _, warn := range res.Warnings {
		fmt.Fprintf(w, "warning: %s\n", warn.Error())
	}
	switch {
	case res.Written:
		fmt.Fprintf(w, "%d rule(s) updated.\n", len(res.Changes))
	case len(res.Unchanged) > 0:
		fmt.Fprintln(w, "Rules already match the report; file left unchanged.")
	default:
		fmt.Fprintln(w, "Nothing to apply.")
	}
}
