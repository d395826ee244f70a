package analyzer

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/crewportal/ruletune/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const matrixResponse = `{"status":"success","data":{"resultType":"matrix","result":[
{"metric":{"base":"AMS"},"values":[[1760670000,"3"],[1760673600,"5"]]},
{"metric":{"base":"FRA"},"values":[[1760670000,"1"],[1760673600,"NaN"]]}
]}}`

func TestPrometheusSource_Counts(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "/api/v1/query_range", r.URL.Path)
		gotQuery = r.Form.Get("query")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(matrixResponse))
	}))
	defer srv.Close()

	src, err := NewPrometheusSource(srv.URL, map[string]config.SignalConfig{
		"FAILED_SWAPS": {CountQuery: `sum by (base) (crew_failed_swaps)`},
	}, time.Hour, 5*time.Second)
	require.NoError(t, err)

	end := time.Now()
	values, err := src.Counts(context.Background(), "FAILED_SWAPS", end.Add(-2*time.Hour), end, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, `sum by (base) (crew_failed_swaps)`, gotQuery)
	assert.Equal(t, []float64{3, 5, 1}, values)
}

func TestPrometheusSource_NoSignal(t *testing.T) {
	src, err := NewPrometheusSource("http://127.0.0.1:1", map[string]config.SignalConfig{
		"FAILED_SWAPS": {CountQuery: "x"},
	}, 0, 0)
	require.NoError(t, err)

	_, err = src.Counts(context.Background(), "PENDING_REQUESTS", time.Now(), time.Now(), time.Hour)
	assert.True(t, errors.Is(err, ErrNoSignal))
	_, err = src.AgesHours(context.Background(), "FAILED_SWAPS", time.Now(), time.Now())
	assert.True(t, errors.Is(err, ErrNoSignal))
}

func TestPrometheusSource_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"status":"error","errorType":"bad_data","error":"parse error"}`))
	}))
	defer srv.Close()

	src, err := NewPrometheusSource(srv.URL, map[string]config.SignalConfig{"FAILED_SWAPS": {CountQuery: "("}}, 0, 0)
	require.NoError(t, err)
	_, err = src.Counts(context.Background(), "FAILED_SWAPS", time.Now().Add(-time.Hour), time.Now(), time.Minute)
	assert.Error(t, err)
}
