package ruleset

import (
	"github.com/prometheus/client_golang/prometheus"
)

// ExporterSync is a ThresholdSync that exposes current rule values as gauges, so
// dashboards can overlay thresholds on the signals they gate.
type ExporterSync struct {
	threshold *prometheus.GaugeVec
	timeout   *prometheus.GaugeVec
}

func NewExporterSync(reg prometheus.Registerer) *ExporterSync {
	e := &ExporterSync{
		threshold: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ruletune_rule_threshold",
			Help: "Current alert rule threshold",
		}, []string{"rule"}),
		timeout: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ruletune_rule_timeout_hours",
			Help: "Current alert rule escalation timeout in hours",
		}, []string{"rule"}),
	}
	if reg != nil {
		reg.MustRegister(e.threshold, e.timeout)
	}
	return e
}

func (e *ExporterSync) SyncRule(r AlertRule) {
	e.threshold.WithLabelValues(r.Key).Set(r.Threshold)
	if r.TimeoutHours != nil {
		e.timeout.WithLabelValues(r.Key).Set(*r.TimeoutHours)
	} else {
		e.timeout.DeleteLabelValues(r.Key)
	}
}
