package ruleset

import (
	"context"
	"time"

	"github.com/crewportal/ruletune/internal/alerting/service/report"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Manager coordinates the rule store with change logging, threshold sync and change
// notifications. The store is the source of truth: once the table is written, failures of
// the other collaborators are logged and do not fail the patch.
type Manager struct {
	store     Store
	logs      ChangeLogStore
	sync      ThresholdSync
	publisher ChangePublisher
	now       func() time.Time
}

// NewManager wires a manager. Any collaborator except store may be nil.
func NewManager(store Store, logs ChangeLogStore, sync ThresholdSync, publisher ChangePublisher) *Manager {
	return &Manager{store: store, logs: logs, sync: sync, publisher: publisher, now: time.Now}
}

// LoadRules reads the table and mirrors it into the threshold sync.
func (m *Manager) LoadRules(ctx context.Context) (*Table, error) {
	t, err := m.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	if m.sync != nil {
		for _, r := range t.Rules() {
			m.sync.SyncRule(r)
		}
	}
	return t, nil
}

// ApplyReport applies every optimization of rep to the store.
func (m *Manager) ApplyReport(ctx context.Context, rep *report.OptimizationReport) (*ApplyResult, error) {
	if rep == nil || len(rep.Optimizations) == 0 {
		return &ApplyResult{}, nil
	}
	res, err := m.store.Apply(ctx, rep.Optimizations)
	if err != nil {
		return nil, err
	}
	for _, w := range res.Warnings {
		log.Warn().Str("rule", w.Key).Err(w.Err).Msg("optimization skipped")
	}
	if !res.Written {
		return res, nil
	}

	for _, c := range res.Changes {
		log.Info().
			Str("rule", c.Key).
			Float64("old_threshold", c.OldThreshold).
			Float64("new_threshold", c.NewThreshold).
			Bool("timeout_changed", c.TimeoutChanged()).
			Msg("rule patched")
		if err := m.RecordChangeLog(ctx, rep.RunID, c); err != nil {
			log.Error().Err(err).Str("rule", c.Key).Msg("record change log failed")
		}
	}
	if m.sync != nil {
		if t, err := m.store.Load(ctx); err == nil {
			for _, r := range t.Rules() {
				m.sync.SyncRule(r)
			}
		} else {
			log.Warn().Err(err).Msg("reload rules for threshold sync failed")
		}
	}
	if m.publisher != nil {
		if err := m.publisher.Publish(ctx, rep.RunID, res.Changes); err != nil {
			log.Error().Err(err).Int("changes", len(res.Changes)).Msg("publish rule changes failed")
		}
	}
	return res, nil
}

// RecordChangeLog writes one audit record for c.
func (m *Manager) RecordChangeLog(ctx context.Context, runID string, c Change) error {
	if m.logs == nil {
		return nil
	}
	oldTh, newTh := c.OldThreshold, c.NewThreshold
	entry := &ChangeLog{
		ID:              uuid.NewString(),
		RunID:           runID,
		RuleKey:         c.Key,
		ChangeType:      classifyChange(c),
		OldThreshold:    &oldTh,
		NewThreshold:    &newTh,
		OldTimeoutHours: c.OldTimeoutHours,
		NewTimeoutHours: c.NewTimeoutHours,
		ChangeTime:      m.now().UTC(),
	}
	return m.logs.InsertChangeLog(ctx, entry)
}

func classifyChange(c Change) string {
	switch {
	case c.ThresholdChanged() && c.TimeoutChanged():
		return "Threshold+Timeout"
	case c.TimeoutChanged():
		return "Timeout"
	default:
		return "Threshold"
	}
}
