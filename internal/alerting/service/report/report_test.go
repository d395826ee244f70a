package report

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadMissingReport(t *testing.T) {
	_, err := Read(filepath.Join(t.TempDir(), "absent.json"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoReport))
}

func TestReadMalformedReport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"optimizations": [`), 0644))

	_, err := Read(path)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNoReport))
}

func TestReadRejectsEntryWithoutThreshold(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.json")
	body := `{"optimizations":[{"key":"PENDING_REQUESTS","newRule":{"timeoutHours":30}}]}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))

	_, err := Read(path)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNoReport))
	assert.Contains(t, err.Error(), "threshold is required")
}

func TestReadAcceptsZeroThreshold(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.json")
	body := `{"optimizations":[{"key":"FAILED_SWAPS","newRule":{"threshold":0}}]}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))

	rep, err := Read(path)
	require.NoError(t, err)
	require.Len(t, rep.Optimizations, 1)
	assert.Equal(t, 0.0, rep.Optimizations[0].NewRule.Threshold)
	assert.Nil(t, rep.Optimizations[0].NewRule.TimeoutHours)
}

func TestWriteOverwritesAndReadsBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "var", "report.json")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte("stale"), 0644))

	rep := &OptimizationReport{
		RunID:       "run-1",
		GeneratedAt: time.Date(2026, 10, 1, 3, 0, 0, 0, time.UTC),
		Optimizations: []Optimization{
			{Key: "FAILED_SWAPS", NewRule: NewRule{Threshold: 5}},
			{Key: "PENDING_REQUESTS", NewRule: NewRule{Threshold: 12, TimeoutHours: Float(36)}},
		},
	}
	require.NoError(t, Write(path, rep))

	got, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, "run-1", got.RunID)
	require.Len(t, got.Optimizations, 2)
	assert.Nil(t, got.Optimizations[0].NewRule.TimeoutHours)
	require.NotNil(t, got.Optimizations[1].NewRule.TimeoutHours)
	assert.Equal(t, 36.0, *got.Optimizations[1].NewRule.TimeoutHours)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "stale")
	// threshold-only entries must not carry a timeoutHours field
	assert.Contains(t, string(raw), `"threshold": 5`)
}

func TestWriteEmptyReportKeepsArray(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.json")
	require.NoError(t, Write(path, &OptimizationReport{}))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"optimizations": []`)
}

func TestSummary(t *testing.T) {
	rep := &OptimizationReport{Optimizations: []Optimization{
		{
			Key:      "PENDING_REQUESTS",
			NewRule:  NewRule{Threshold: 12, TimeoutHours: Float(36)},
			Previous: &NewRule{Threshold: 10, TimeoutHours: Float(24)},
			Reason:   "p95=10",
		},
		{Key: "FAILED_SWAPS", NewRule: NewRule{Threshold: 4.5}},
	}}
	lines := Summary(rep)
	require.Len(t, lines, 2)
	assert.Equal(t, "PENDING_REQUESTS: threshold 10 -> 12, timeoutHours 24 -> 36 (p95=10)", lines[0])
	assert.Equal(t, "FAILED_SWAPS: threshold -> 4.5", lines[1])
}
