package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Stage names used as the stage label.
const (
	StageAnalyze = "analyze"
	StageApply   = "apply"
)

// Recorder owns the process registry for run metrics. A one-shot command pushes it to a
// Pushgateway; the daemon serves it.
type Recorder struct {
	reg *prometheus.Registry

	lastSuccess *prometheus.GaugeVec
	duration    *prometheus.GaugeVec
	proposals   prometheus.Gauge
	applied     prometheus.Gauge
	warnings    *prometheus.GaugeVec

	pushURL string
	job     string
}

// NewRecorder builds a recorder. pushURL may be empty, in which case Push is a no-op.
func NewRecorder(pushURL, job string) *Recorder {
	reg := prometheus.NewRegistry()
	r := &Recorder{
		reg: reg,
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ruletune_last_success_timestamp_seconds",
			Help: "Unix time of the last successful run per stage",
		}, []string{"stage"}),
		duration: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ruletune_stage_duration_seconds",
			Help: "Duration of the last run per stage",
		}, []string{"stage"}),
		proposals: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ruletune_proposals",
			Help: "Number of optimizations in the last report",
		}),
		applied: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ruletune_changes_applied",
			Help: "Number of rules changed by the last apply",
		}),
		warnings: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ruletune_warnings",
			Help: "Number of per-rule warnings in the last run per stage",
		}, []string{"stage"}),
		pushURL: pushURL,
		job:     job,
	}
	reg.MustRegister(r.lastSuccess, r.duration, r.proposals, r.applied, r.warnings)
	return r
}

// Registry exposes the registry so other collectors (rule gauges) can share it.
func (r *Recorder) Registry() *prometheus.Registry { return r.reg }

// WithProcessCollectors adds Go runtime and process collectors; used by the daemon.
func (r *Recorder) WithProcessCollectors() *Recorder {
	r.reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return r
}

func (r *Recorder) ObserveAnalyze(started time.Time, proposals, warnings int) {
	r.duration.WithLabelValues(StageAnalyze).Set(time.Since(started).Seconds())
	r.proposals.Set(float64(proposals))
	r.warnings.WithLabelValues(StageAnalyze).Set(float64(warnings))
	r.lastSuccess.WithLabelValues(StageAnalyze).SetToCurrentTime()
}

func (r *Recorder) ObserveApply(started time.Time, applied, warnings int) {
	r.duration.WithLabelValues(StageApply).Set(time.Since(started).Seconds())
	r.applied.Set(float64(applied))
	r.warnings.WithLabelValues(StageApply).Set(float64(warnings))
	r.lastSuccess.WithLabelValues(StageApply).SetToCurrentTime()
}

// Push sends the registry to the configured Pushgateway, replacing the job's group.
func (r *Recorder) Push(ctx context.Context) error {
	if r.pushURL == "" {
		return nil
	}
	if err := push.New(r.pushURL, r.job).Gatherer(r.reg).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics to %s: %w", r.pushURL, err)
	}
	return nil
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}
