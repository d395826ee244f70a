package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/crewportal/ruletune/internal/alerting/scheduler"
	"github.com/crewportal/ruletune/internal/alerting/service/report"
	"github.com/crewportal/ruletune/internal/alerting/service/ruleset"
	"github.com/crewportal/ruletune/internal/middleware"
	"github.com/fox-gonic/fox"
	"github.com/rs/zerolog/log"
)

const (
	ErrorCodeInvalidParameter = "INVALID_PARAMETER"
	ErrorCodeUnauthorized     = "UNAUTHORIZED"
	ErrorCodeNotFound         = "NOT_FOUND"
	ErrorCodeConflict         = "CONFLICT"
	ErrorCodeInternalError    = "INTERNAL_ERROR"
)

type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

type RuleLoader interface {
	LoadRules(ctx context.Context) (*ruleset.Table, error)
}

type Runs interface {
	Trigger(trigger string) (scheduler.RunRecord, error)
	History() []scheduler.RunRecord
}

// Api serves the rule table, the pending report and run history, and lets operators
// trigger a run.
type Api struct {
	rules      RuleLoader
	runs       Runs
	reportPath string
	metrics    http.Handler
	token      string
}

// NewApi registers routes on router. runs and metrics may be nil. A non-empty token is
// required as bearer token on POST routes.
func NewApi(router *fox.Engine, rules RuleLoader, runs Runs, reportPath string, metrics http.Handler, token string) *Api {
	api := &Api{rules: rules, runs: runs, reportPath: reportPath, metrics: metrics, token: token}
	api.setupRouters(router)
	return api
}

func (api *Api) setupRouters(router *fox.Engine) {
	router.GET("/v1/alert-rules", api.ListRules)
	router.GET("/v1/alert-rules/:key", api.GetRule)
	router.GET("/v1/optimizations", api.ListRuns)
	router.GET("/v1/optimizations/report", api.GetReport)
	router.POST("/v1/optimizations/run", api.TriggerRun)
	if api.metrics != nil {
		router.GET("/metrics", api.Metrics)
	}
}

type rulesResponse struct {
	Items []ruleset.AlertRule `json:"items"`
	Total int                 `json:"total"`
}

// ListRules returns the rule table in file order (GET /v1/alert-rules).
func (api *Api) ListRules(c *fox.Context) {
	table, err := api.rules.LoadRules(c.Request.Context())
	if err != nil {
		log.Error().Err(err).Msg("failed to load rules")
		sendError(c, http.StatusInternalServerError, ErrorCodeInternalError, "failed to load rules")
		return
	}
	rules := table.Rules()
	c.JSON(http.StatusOK, rulesResponse{Items: rules, Total: len(rules)})
}

// GetRule returns one rule (GET /v1/alert-rules/:key).
func (api *Api) GetRule(c *fox.Context) {
	key := ruleset.NormalizeKey(c.Param("key"))
	if key == "" {
		sendError(c, http.StatusBadRequest, ErrorCodeInvalidParameter, "missing rule key")
		return
	}
	table, err := api.rules.LoadRules(c.Request.Context())
	if err != nil {
		log.Error().Err(err).Msg("failed to load rules")
		sendError(c, http.StatusInternalServerError, ErrorCodeInternalError, "failed to load rules")
		return
	}
	rule, ok := table.Get(key)
	if !ok {
		sendError(c, http.StatusNotFound, ErrorCodeNotFound, "rule "+key+" not found")
		return
	}
	c.JSON(http.StatusOK, rule)
}

// GetReport returns the last written optimization report (GET /v1/optimizations/report).
func (api *Api) GetReport(c *fox.Context) {
	rep, err := report.Read(api.reportPath)
	if errors.Is(err, report.ErrNoReport) {
		sendError(c, http.StatusNotFound, ErrorCodeNotFound, "no optimization report")
		return
	}
	if err != nil {
		log.Error().Err(err).Str("report", api.reportPath).Msg("failed to read report")
		sendError(c, http.StatusInternalServerError, ErrorCodeInternalError, "failed to read report")
		return
	}
	c.JSON(http.StatusOK, rep)
}

// ListRuns returns recent runs, newest first (GET /v1/optimizations).
func (api *Api) ListRuns(c *fox.Context) {
	var items []scheduler.RunRecord
	if api.runs != nil {
		items = api.runs.History()
	}
	if items == nil {
		items = []scheduler.RunRecord{}
	}
	c.JSON(http.StatusOK, map[string]any{"items": items})
}

// TriggerRun runs one optimization synchronously (POST /v1/optimizations/run).
func (api *Api) TriggerRun(c *fox.Context) {
	if err := middleware.Authenticate(c.Request, api.token); err != nil {
		sendError(c, http.StatusUnauthorized, ErrorCodeUnauthorized, "missing or invalid bearer token")
		return
	}
	if api.runs == nil {
		sendError(c, http.StatusNotFound, ErrorCodeNotFound, "scheduler disabled")
		return
	}
	rec, err := api.runs.Trigger("manual")
	switch {
	case errors.Is(err, scheduler.ErrRunInProgress):
		sendError(c, http.StatusConflict, ErrorCodeConflict, err.Error())
	case err != nil:
		log.Error().Err(err).Msg("manual optimization run failed")
		c.JSON(http.StatusInternalServerError, rec)
	default:
		c.JSON(http.StatusOK, rec)
	}
}

// Metrics exposes the process registry (GET /metrics).
func (api *Api) Metrics(c *fox.Context) {
	api.metrics.ServeHTTP(c.Writer, c.Request)
}

func sendError(c *fox.Context, status int, code, message string) {
	c.JSON(status, ErrorResponse{Error: ErrorDetail{Code: code, Message: message}})
}
