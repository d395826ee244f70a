package ruleset

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/crewportal/ruletune/internal/alerting/service/report"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memChangeLogs struct {
	logs []*ChangeLog
	err  error
}

func (m *memChangeLogs) InsertChangeLog(ctx context.Context, log *ChangeLog) error {
	if m.err != nil {
		return m.err
	}
	m.logs = append(m.logs, log)
	return nil
}

type recordingPublisher struct {
	runID   string
	changes []Change
	calls   int
}

func (p *recordingPublisher) Publish(ctx context.Context, runID string, changes []Change) error {
	p.calls++
	p.runID = runID
	p.changes = append(p.changes, changes...)
	return nil
}

func TestManager_ApplyReport(t *testing.T) {
	ctx := context.Background()
	path := writeRules(t, crewRules)
	logs := &memChangeLogs{}
	reg := prometheus.NewRegistry()
	sync := NewExporterSync(reg)
	pub := &recordingPublisher{}
	mgr := NewManager(NewFileStore(path, nil), logs, sync, pub)
	mgr.now = func() time.Time { return time.Date(2026, 10, 17, 3, 0, 0, 0, time.UTC) }

	_, err := mgr.LoadRules(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10.0, testutil.ToFloat64(sync.threshold.WithLabelValues("PENDING_REQUESTS")))

	rep := &report.OptimizationReport{RunID: "run-42", Optimizations: []report.Optimization{
		opt("PENDING_REQUESTS", 12, report.Float(30)),
		opt("FAILED_SWAPS", 3, nil),
		opt("UNKNOWN_RULE", 1, nil),
	}}
	res, err := mgr.ApplyReport(ctx, rep)
	require.NoError(t, err)
	require.True(t, res.Written)
	require.Len(t, res.Changes, 1)
	assert.Equal(t, []string{"FAILED_SWAPS"}, res.Unchanged)
	require.Len(t, res.Warnings, 1)

	// change log
	require.Len(t, logs.logs, 1)
	l := logs.logs[0]
	assert.Equal(t, "run-42", l.RunID)
	assert.Equal(t, "PENDING_REQUESTS", l.RuleKey)
	assert.Equal(t, "Threshold+Timeout", l.ChangeType)
	assert.Equal(t, 10.0, *l.OldThreshold)
	assert.Equal(t, 12.0, *l.NewThreshold)
	assert.Equal(t, 24.0, *l.OldTimeoutHours)
	assert.Equal(t, 30.0, *l.NewTimeoutHours)
	assert.NotEmpty(t, l.ID)
	assert.Equal(t, mgr.now().UTC(), l.ChangeTime)

	// gauges follow the file
	assert.Equal(t, 12.0, testutil.ToFloat64(sync.threshold.WithLabelValues("PENDING_REQUESTS")))
	assert.Equal(t, 30.0, testutil.ToFloat64(sync.timeout.WithLabelValues("PENDING_REQUESTS")))

	// notification
	assert.Equal(t, 1, pub.calls)
	assert.Equal(t, "run-42", pub.runID)
	require.Len(t, pub.changes, 1)
	assert.Equal(t, "PENDING_REQUESTS", pub.changes[0].Key)
}

func TestManager_NoWriteNoSideEffects(t *testing.T) {
	path := writeRules(t, crewRules)
	logs := &memChangeLogs{}
	pub := &recordingPublisher{}
	mgr := NewManager(NewFileStore(path, nil), logs, nil, pub)

	res, err := mgr.ApplyReport(context.Background(), &report.OptimizationReport{Optimizations: []report.Optimization{
		opt("FAILED_SWAPS", 3, nil),
	}})
	require.NoError(t, err)
	assert.False(t, res.Written)
	assert.Empty(t, logs.logs)
	assert.Equal(t, 0, pub.calls)
}

func TestManager_EmptyReport(t *testing.T) {
	mgr := NewManager(NewFileStore("/does/not/matter.yaml", nil), nil, nil, nil)
	res, err := mgr.ApplyReport(context.Background(), &report.OptimizationReport{})
	require.NoError(t, err)
	assert.False(t, res.Written)
}

func TestManager_ChangeLogFailureDoesNotFailPatch(t *testing.T) {
	path := writeRules(t, crewRules)
	mgr := NewManager(NewFileStore(path, nil), &memChangeLogs{err: errors.New("db down")}, nil, nil)

	res, err := mgr.ApplyReport(context.Background(), &report.OptimizationReport{Optimizations: []report.Optimization{
		opt("FAILED_SWAPS", 4, nil),
	}})
	require.NoError(t, err)
	assert.True(t, res.Written)
}

func TestClassifyChange(t *testing.T) {
	assert.Equal(t, "Threshold", classifyChange(Change{OldThreshold: 1, NewThreshold: 2}))
	assert.Equal(t, "Timeout", classifyChange(Change{OldThreshold: 1, NewThreshold: 1, OldTimeoutHours: report.Float(1), NewTimeoutHours: report.Float(2)}))
	assert.Equal(t, "Threshold+Timeout", classifyChange(Change{OldThreshold: 1, NewThreshold: 2, OldTimeoutHours: report.Float(1), NewTimeoutHours: report.Float(2)}))
}
