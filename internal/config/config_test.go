package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFile_Defaults(t *testing.T) {
	t.Setenv("RULETUNE_RULES_FILE", "")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	cfg, err := LoadFile("")
	require.NoError(t, err)

	assert.Equal(t, "configs/alert_rules.yaml", cfg.Ruleset.RulesFile)
	assert.Equal(t, "configs/alert_rules.yaml.lock", cfg.Ruleset.LockFile)
	assert.Equal(t, "var/optimization-report.json", cfg.Ruleset.ReportFile)
	assert.Equal(t, "prometheus", cfg.Analyzer.Source)
	assert.Equal(t, 0.95, cfg.Analyzer.Percentile)
	assert.Equal(t, 24, cfg.Analyzer.MinSamples)
	require.NotNil(t, cfg.Analyzer.Headroom)
	assert.Equal(t, 0.2, *cfg.Analyzer.Headroom)
	require.NotNil(t, cfg.Analyzer.MaxChangeRatio)
	assert.Equal(t, 0.5, *cfg.Analyzer.MaxChangeRatio)
	assert.Equal(t, "0 3 * * *", cfg.Scheduler.Cron)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Notify.Brokers)
}

func TestLoadFile_Overlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"ruleset": {"rulesFile": "/etc/crew/alert_rules.yaml"},
		"analyzer": {"percentile": 0.9, "signals": {"FAILED_SWAPS": {"countQuery": "sum(crew_failed_swaps)"}}},
		"scheduler": {"autoApply": true}
	}`), 0644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "/etc/crew/alert_rules.yaml", cfg.Ruleset.RulesFile)
	assert.Equal(t, "/etc/crew/alert_rules.yaml.lock", cfg.Ruleset.LockFile)
	assert.Equal(t, 0.9, cfg.Analyzer.Percentile)
	assert.Equal(t, "sum(crew_failed_swaps)", cfg.Analyzer.Signals["FAILED_SWAPS"].CountQuery)
	assert.True(t, cfg.Scheduler.AutoApply)
}

func TestLoadFile_ExplicitZeroHeadroomAndRatio(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"analyzer": {"headroom": 0, "maxChangeRatio": 0}}`), 0644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	require.NotNil(t, cfg.Analyzer.Headroom)
	assert.Equal(t, 0.0, *cfg.Analyzer.Headroom)
	require.NotNil(t, cfg.Analyzer.MaxChangeRatio)
	assert.Equal(t, 0.0, *cfg.Analyzer.MaxChangeRatio)
}

func TestFloatOr(t *testing.T) {
	assert.Equal(t, 0.5, FloatOr(nil, 0.5))
	assert.Equal(t, 0.0, FloatOr(floatPtr(0), 0.5))
}

func TestLoadFile_Errors(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{"), 0644))
	_, err = LoadFile(path)
	assert.Error(t, err)
}

func TestParseDuration(t *testing.T) {
	assert.Equal(t, time.Minute, ParseDuration("", time.Minute))
	assert.Equal(t, time.Minute, ParseDuration("soon", time.Minute))
	assert.Equal(t, 90*time.Second, ParseDuration(" 90s ", time.Minute))
}

func TestDatabaseDSN(t *testing.T) {
	c := DatabaseConfig{Host: "db", Port: 5432, User: "u", Password: "p", DBName: "ruletune", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=ruletune sslmode=disable", c.DSN())
}
