package analyzer

import (
	"context"
	"errors"
	"time"

	"github.com/crewportal/ruletune/internal/config"
)

// ErrNoSignal means no history query is configured for the rule key.
var ErrNoSignal = errors.New("no history signal configured")

// HistorySource returns observed history for one rule key.
//
// Counts returns the number of pending items per step across [start, end].
// AgesHours returns the ages in hours of items that were pending in the window.
type HistorySource interface {
	Counts(ctx context.Context, key string, start, end time.Time, step time.Duration) ([]float64, error)
	AgesHours(ctx context.Context, key string, start, end time.Time) ([]float64, error)
}

type signals map[string]config.SignalConfig

func (s signals) count(key string) (string, error) {
	if q := s[key].CountQuery; q != "" {
		return q, nil
	}
	return "", ErrNoSignal
}

func (s signals) age(key string) (string, error) {
	if q := s[key].AgeQuery; q != "" {
		return q, nil
	}
	return "", ErrNoSignal
}
