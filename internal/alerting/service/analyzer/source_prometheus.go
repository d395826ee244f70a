package analyzer

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/crewportal/ruletune/internal/config"
	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
	"github.com/rs/zerolog/log"
)

// PrometheusSource reads history with range queries. Each rule key maps to a PromQL
// expression; every sample of every returned series counts as one observation.
type PrometheusSource struct {
	api          v1.API
	signals      signals
	ageStep      time.Duration
	queryTimeout time.Duration
}

func NewPrometheusSource(address string, sig map[string]config.SignalConfig, ageStep, queryTimeout time.Duration) (*PrometheusSource, error) {
	client, err := api.NewClient(api.Config{Address: address})
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus client: %w", err)
	}
	return newPrometheusSource(v1.NewAPI(client), sig, ageStep, queryTimeout), nil
}

func newPrometheusSource(a v1.API, sig map[string]config.SignalConfig, ageStep, queryTimeout time.Duration) *PrometheusSource {
	if ageStep <= 0 {
		ageStep = time.Hour
	}
	return &PrometheusSource{api: a, signals: sig, ageStep: ageStep, queryTimeout: queryTimeout}
}

func (s *PrometheusSource) Counts(ctx context.Context, key string, start, end time.Time, step time.Duration) ([]float64, error) {
	q, err := s.signals.count(key)
	if err != nil {
		return nil, err
	}
	return s.queryRange(ctx, q, v1.Range{Start: start, End: end, Step: step})
}

func (s *PrometheusSource) AgesHours(ctx context.Context, key string, start, end time.Time) ([]float64, error) {
	q, err := s.signals.age(key)
	if err != nil {
		return nil, err
	}
	return s.queryRange(ctx, q, v1.Range{Start: start, End: end, Step: s.ageStep})
}

func (s *PrometheusSource) queryRange(ctx context.Context, query string, r v1.Range) ([]float64, error) {
	if s.queryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.queryTimeout)
		defer cancel()
	}
	result, warnings, err := s.api.QueryRange(ctx, query, r)
	if err != nil {
		return nil, fmt.Errorf("failed to query prometheus: %w", err)
	}
	if len(warnings) > 0 {
		log.Warn().Strs("warnings", warnings).Str("query", query).Msg("prometheus returned warnings")
	}
	matrix, ok := result.(model.Matrix)
	if !ok {
		return nil, fmt.Errorf("unexpected result type: %T", result)
	}
	return flatten(matrix), nil
}

func flatten(matrix model.Matrix) []float64 {
	var values []float64
	for _, series := range matrix {
		for _, pair := range series.Values {
			v := float64(pair.Value)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			values = append(values, v)
		}
	}
	return values
}
