package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/crewportal/ruletune/internal/fileutil"
)

// ErrNoReport is returned by Read when no report file exists. Callers treat it as nothing to do.
var ErrNoReport = errors.New("optimization report not found")

// NewRule carries the proposed values for one rule. TimeoutHours is nil when the
// analyzer has no opinion on the timeout.
type NewRule struct {
	Threshold    float64  `json:"threshold"`
	TimeoutHours *float64 `json:"timeoutHours,omitempty"`
}

// UnmarshalJSON rejects entries without a threshold so they never patch a rule to zero.
func (r *NewRule) UnmarshalJSON(data []byte) error {
	var raw struct {
		Threshold    *float64 `json:"threshold"`
		TimeoutHours *float64 `json:"timeoutHours"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.Threshold == nil {
		return errors.New("newRule: threshold is required")
	}
	r.Threshold = *raw.Threshold
	r.TimeoutHours = raw.TimeoutHours
	return nil
}

// Optimization is one proposed rule change.
type Optimization struct {
	Key      string   `json:"key"`
	NewRule  NewRule  `json:"newRule"`
	Previous *NewRule `json:"previous,omitempty"`
	Reason   string   `json:"reason,omitempty"`
}

// OptimizationReport is the batch handed from the analyzer to the patcher.
type OptimizationReport struct {
	RunID         string         `json:"runId,omitempty"`
	GeneratedAt   time.Time      `json:"generatedAt"`
	Optimizations []Optimization `json:"optimizations"`
}

// Write serializes rep as indented JSON and atomically replaces any report at path.
func Write(path string, rep *OptimizationReport) error {
	if rep == nil {
		return fmt.Errorf("write report: nil report")
	}
	if rep.Optimizations == nil {
		rep.Optimizations = []Optimization{}
	}
	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	data = append(data, '\n')
	if err := fileutil.WriteFileAtomic(path, data, 0644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

// Read loads the report at path. A missing file yields ErrNoReport; malformed JSON is an error.
func Read(path string) (*OptimizationReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNoReport
		}
		return nil, fmt.Errorf("read report %s: %w", path, err)
	}
	var rep OptimizationReport
	if err := json.Unmarshal(data, &rep); err != nil {
		return nil, fmt.Errorf("parse report %s: %w", path, err)
	}
	return &rep, nil
}

// Summary renders one human-readable line per proposal.
func Summary(rep *OptimizationReport) []string {
	if rep == nil {
		return nil
	}
	lines := make([]string, 0, len(rep.Optimizations))
	for _, o := range rep.Optimizations {
		line := o.Key + ": threshold " + describe(prevThreshold(o), &o.NewRule.Threshold)
		if o.NewRule.TimeoutHours != nil {
			var prev *float64
			if o.Previous != nil {
				prev = o.Previous.TimeoutHours
			}
			line += ", timeoutHours " + describe(prev, o.NewRule.TimeoutHours)
		}
		if o.Reason != "" {
			line += " (" + o.Reason + ")"
		}
		lines = append(lines, line)
	}
	return lines
}

func prevThreshold(o Optimization) *float64 {
	if o.Previous == nil {
		return nil
	}
	return &o.Previous.Threshold
}

func describe(prev, next *float64) string {
	if prev == nil {
		return "-> " + FormatNumber(*next)
	}
	return FormatNumber(*prev) + " -> " + FormatNumber(*next)
}

// FormatNumber prints v with the shortest exact representation, without exponent.
func FormatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }
