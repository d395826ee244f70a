package ruleset

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/crewportal/ruletune/internal/alerting/service/report"
)

// AlertRule is one entry of the rule table. Key is the stable identifier the alerting code
// looks rules up by (e.g. PENDING_REQUESTS). TimeoutHours is nil when the rule never escalates.
type AlertRule struct {
	Key          string   `json:"key"`
	Threshold    float64  `json:"threshold"`
	TimeoutHours *float64 `json:"timeoutHours,omitempty"`
	Description  string   `json:"description"`
}

// Validate checks threshold >= 0 and, when set, timeoutHours > 0.
func (r AlertRule) Validate() error {
	return validateValues(r.Key, r.Threshold, r.TimeoutHours)
}

func validateValues(key string, threshold float64, timeoutHours *float64) error {
	if key == "" {
		return fmt.Errorf("%w: empty key", ErrInvalidRule)
	}
	if !isFinite(threshold) || threshold < 0 {
		return fmt.Errorf("%w: %s threshold %v must be a non-negative number", ErrInvalidRule, key, threshold)
	}
	if timeoutHours != nil && (!isFinite(*timeoutHours) || *timeoutHours <= 0) {
		return fmt.Errorf("%w: %s timeoutHours %v must be positive", ErrInvalidRule, key, *timeoutHours)
	}
	return nil
}

// Change records the before/after values of one rule touched by a patch.
type Change struct {
	Key             string   `json:"key"`
	OldThreshold    float64  `json:"oldThreshold"`
	NewThreshold    float64  `json:"newThreshold"`
	OldTimeoutHours *float64 `json:"oldTimeoutHours,omitempty"`
	NewTimeoutHours *float64 `json:"newTimeoutHours,omitempty"`
}

func (c Change) ThresholdChanged() bool { return !sameValue(c.OldThreshold, c.NewThreshold) }

func (c Change) TimeoutChanged() bool {
	if c.OldTimeoutHours == nil || c.NewTimeoutHours == nil {
		return false
	}
	return !sameValue(*c.OldTimeoutHours, *c.NewTimeoutHours)
}

// Warning is a per-key problem that skipped one report entry without failing the patch.
type Warning struct {
	Key string
	Err error
}

func (w Warning) Error() string { return w.Key + ": " + w.Err.Error() }
func (w Warning) Unwrap() error { return w.Err }

// ApplyResult summarizes one patch. Written is false when no value differed from the file.
type ApplyResult struct {
	Changes   []Change
	Warnings  []Warning
	Unchanged []string
	Written   bool
}

// ChangeLog captures before/after values for auditing.
type ChangeLog struct {
	ID              string
	RunID           string
	RuleKey         string
	ChangeType      string // Threshold | Timeout | Threshold+Timeout
	OldThreshold    *float64
	NewThreshold    *float64
	OldTimeoutHours *float64
	NewTimeoutHours *float64
	ChangeTime      time.Time
}

// Store abstracts the rule table document.
type Store interface {
	Load(ctx context.Context) (*Table, error)
	Apply(ctx context.Context, opts []report.Optimization) (*ApplyResult, error)
}

// Locker guards the read-modify-write of the rule table.
type Locker interface {
	Lock(ctx context.Context) (unlock func() error, err error)
}

// ChangeLogStore persists change logs.
type ChangeLogStore interface {
	InsertChangeLog(ctx context.Context, log *ChangeLog) error
}

// ThresholdSync mirrors current rule values into a monitoring backend.
type ThresholdSync interface {
	SyncRule(r AlertRule)
}

// ChangePublisher tells downstream alerting code that rules changed.
type ChangePublisher interface {
	Publish(ctx context.Context, runID string, changes []Change) error
}

func isFinite(f float64) bool { return !math.IsNaN(f) && !math.IsInf(f, 0) }

const valueEpsilon = 1e-9

func sameValue(a, b float64) bool { return math.Abs(a-b) <= valueEpsilon }
