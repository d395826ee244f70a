package config

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Config struct {
	Logging    LoggingConfig    `json:"logging"`
	Ruleset    RulesetConfig    `json:"ruleset"`
	Analyzer   AnalyzerConfig   `json:"analyzer"`
	Prometheus PrometheusConfig `json:"prometheus"`
	Database   DatabaseConfig   `json:"database"`
	History    HistoryConfig    `json:"history"`
	Redis      RedisConfig      `json:"redis"`
	Metrics    MetricsConfig    `json:"metrics"`
	Notify     NotifyConfig     `json:"notify"`
	Scheduler  SchedulerConfig  `json:"scheduler"`
}

type LoggingConfig struct {
	Level   string `json:"level"`
	Console bool   `json:"console"`
}

type RulesetConfig struct {
	RulesFile   string `json:"rulesFile"`
	ReportFile  string `json:"reportFile"`
	LockFile    string `json:"lockFile"`    // defaults to <rulesFile>.lock
	LockTimeout string `json:"lockTimeout"` // e.g. "30s"
}

// SignalConfig binds a rule key to the history queries the analyzer runs for it.
// CountQuery yields the observed pending counts; AgeQuery yields pending ages in hours.
type SignalConfig struct {
	CountQuery string `json:"countQuery"`
	AgeQuery   string `json:"ageQuery"`
}

const (
	DefaultHeadroom       = 0.2
	DefaultMaxChangeRatio = 0.5
)

type AnalyzerConfig struct {
	Source         string                  `json:"source"` // prometheus | postgres
	Timeout        string                  `json:"timeout"`
	Lookback       string                  `json:"lookback"`
	Step           string                  `json:"step"`
	Percentile     float64                 `json:"percentile"`
	Headroom       *float64                `json:"headroom"`       // nil means default; 0 is honored
	MaxChangeRatio *float64                `json:"maxChangeRatio"` // nil means default; 0 disables clamping
	MinSamples     int                     `json:"minSamples"`
	Signals        map[string]SignalConfig `json:"signals"`
}

type PrometheusConfig struct {
	URL          string `json:"url"`
	QueryTimeout string `json:"queryTimeout"`
}

// DatabaseConfig points at the change-log database. An empty Host disables change logging.
type DatabaseConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"dbname"`
	SSLMode  string `json:"sslmode"`
}

func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

type HistoryConfig struct {
	DSN string `json:"dsn"`
}

type RedisConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	LockKey  string `json:"lockKey"`
	LockTTL  string `json:"lockTTL"`
}

type MetricsConfig struct {
	PushgatewayURL string `json:"pushgatewayURL"`
	Job            string `json:"job"`
}

type NotifyConfig struct {
	Brokers []string `json:"brokers"`
	Topic   string   `json:"topic"`
}

type SchedulerConfig struct {
	Cron      string `json:"cron"`
	BindAddr  string `json:"bindAddr"`
	AutoApply bool   `json:"autoApply"`
	APIToken  string `json:"apiToken"` // bearer token for POST routes; empty disables auth
}

// Load builds the config from env defaults, overlays the JSON file given by -f and
// fills defaults for fields the file left empty.
func Load() (*Config, error) {
	configFile := flag.String("f", "", "Path to configuration file")
	flag.Parse()
	return LoadFile(*configFile)
}

func LoadFile(configFile string) (*Config, error) {
	cfg := &Config{
		Logging: LoggingConfig{
			Level:   getEnv("LOG_LEVEL", "info"),
			Console: getEnv("LOG_CONSOLE", "") == "true",
		},
		Ruleset: RulesetConfig{
			RulesFile:   getEnv("RULETUNE_RULES_FILE", "configs/alert_rules.yaml"),
			ReportFile:  getEnv("RULETUNE_REPORT_FILE", "var/optimization-report.json"),
			LockFile:    getEnv("RULETUNE_LOCK_FILE", ""),
			LockTimeout: getEnv("RULETUNE_LOCK_TIMEOUT", "30s"),
		},
		Analyzer: AnalyzerConfig{
			Source:  getEnv("ANALYZER_SOURCE", "prometheus"),
			Timeout: getEnv("ANALYZER_TIMEOUT", "2m"),
		},
		Prometheus: PrometheusConfig{
			URL:          getEnv("PROMETHEUS_URL", "http://localhost:9090"),
			QueryTimeout: getEnv("PROMETHEUS_QUERY_TIMEOUT", "30s"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", ""),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "admin"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "ruletune"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		History: HistoryConfig{
			DSN: getEnv("HISTORY_DSN", ""),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			LockKey:  getEnv("REDIS_LOCK_KEY", "ruletune:lock"),
			LockTTL:  getEnv("REDIS_LOCK_TTL", "5m"),
		},
		Metrics: MetricsConfig{
			PushgatewayURL: getEnv("PUSHGATEWAY_URL", ""),
			Job:            getEnv("PUSHGATEWAY_JOB", "ruletune"),
		},
		Notify: NotifyConfig{
			Topic: getEnv("RULETUNE_NOTIFY_TOPIC", "alert-rule-changes"),
		},
		Scheduler: SchedulerConfig{
			Cron:     getEnv("RULETUNE_CRON", "0 3 * * *"),
			BindAddr: getEnv("RULETUNE_BIND_ADDR", "0.0.0.0:8090"),
			APIToken: getEnv("RULETUNE_API_TOKEN", ""),
		},
	}
	if brokers := getEnv("KAFKA_BROKERS", ""); brokers != "" {
		cfg.Notify.Brokers = strings.Split(brokers, ",")
	}

	if configFile != "" {
		if err := loadFromFile(cfg, configFile); err != nil {
			return nil, err
		}
	}

	// fill reasonable defaults when fields omitted in file
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Ruleset.RulesFile == "" {
		cfg.Ruleset.RulesFile = "configs/alert_rules.yaml"
	}
	if cfg.Ruleset.ReportFile == "" {
		cfg.Ruleset.ReportFile = "var/optimization-report.json"
	}
	if cfg.Ruleset.LockFile == "" {
		cfg.Ruleset.LockFile = cfg.Ruleset.RulesFile + ".lock"
	}
	if cfg.Ruleset.LockTimeout == "" {
		cfg.Ruleset.LockTimeout = "30s"
	}
	if cfg.Analyzer.Source == "" {
		cfg.Analyzer.Source = "prometheus"
	}
	if cfg.Analyzer.Timeout == "" {
		cfg.Analyzer.Timeout = "2m"
	}
	if cfg.Analyzer.Lookback == "" {
		cfg.Analyzer.Lookback = "720h"
	}
	if cfg.Analyzer.Step == "" {
		cfg.Analyzer.Step = "1h"
	}
	if cfg.Analyzer.Percentile == 0 {
		cfg.Analyzer.Percentile = 0.95
	}
	if cfg.Analyzer.Headroom == nil {
		cfg.Analyzer.Headroom = floatPtr(DefaultHeadroom)
	}
	if cfg.Analyzer.MaxChangeRatio == nil {
		cfg.Analyzer.MaxChangeRatio = floatPtr(DefaultMaxChangeRatio)
	}
	if cfg.Analyzer.MinSamples == 0 {
		cfg.Analyzer.MinSamples = 24
	}
	if cfg.Prometheus.QueryTimeout == "" {
		cfg.Prometheus.QueryTimeout = "30s"
	}
	if cfg.Redis.LockKey == "" {
		cfg.Redis.LockKey = "ruletune:lock"
	}
	if cfg.Redis.LockTTL == "" {
		cfg.Redis.LockTTL = "5m"
	}
	if cfg.Metrics.Job == "" {
		cfg.Metrics.Job = "ruletune"
	}
	if cfg.Notify.Topic == "" {
		cfg.Notify.Topic = "alert-rule-changes"
	}
	if cfg.Scheduler.Cron == "" {
		cfg.Scheduler.Cron = "0 3 * * *"
	}
	if cfg.Scheduler.BindAddr == "" {
		cfg.Scheduler.BindAddr = "0.0.0.0:8090"
	}

	return cfg, nil
}

// ApplyLogging configures the global zerolog logger from the logging section.
func (c *Config) ApplyLogging() {
	if c.Logging.Console {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	switch strings.ToLower(c.Logging.Level) {
	case "trace":
		zerolog.SetGlobalLevel(zerolog.TraceLevel)
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn", "warning":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

func loadFromFile(cfg *Config, filePath string) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", filePath, err)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", filePath, err)
	}

	return nil
}

// ParseDuration returns d when s is empty or unparsable.
func ParseDuration(s string, d time.Duration) time.Duration {
	if strings.TrimSpace(s) == "" {
		return d
	}
	if v, err := time.ParseDuration(strings.TrimSpace(s)); err == nil {
		return v
	}
	return d
}

// FloatOr returns *p, or d when p is nil.
func FloatOr(p *float64, d float64) float64 {
	if p == nil {
		return d
	}
	return *p
}

func floatPtr(v float64) *float64 { return &v }

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
