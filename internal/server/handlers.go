package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/gackouhamady/bnpp-risk-insights/internal/anomaly"
	"github.com/gackouhamady/bnpp-risk-insights/internal/datamart"
	"github.com/gackouhamady/bnpp-risk-insights/internal/etl"
	"github.com/gackouhamady/bnpp-risk-insights/internal/features"
	"github.com/gackouhamady/bnpp-risk-insights/internal/logging"
	"github.com/gackouhamady/bnpp-risk-insights/internal/models"
	"github.com/gackouhamady/bnpp-risk-insights/internal/pipeline"
	"github.com/gackouhamady/bnpp-risk-insights/internal/report"
	"github.com/gackouhamady/bnpp-risk-insights/internal/scoring"
	"github.com/gackouhamady/bnpp-risk-insights/internal/validation"
)

// maxAnomalyResults caps how many scored transactions one response carries.
const maxAnomalyResults = 100

// HealthResponse for health check endpoints
type HealthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	Checks    map[string]string `json:"checks,omitempty"`
	Timestamp string            `json:"timestamp"`
}

func (s *Server) healthHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	healthy, statuses := s.checks.CheckAll(ctx)

	checks := make(map[string]string, len(statuses))
	for _, st := range statuses {
		if st.Healthy {
			checks[st.Name] = "healthy"
		} else {
			checks[st.Name] = "unhealthy"
		}
	}

	status := "healthy"
	httpStatus := http.StatusOK
	if !healthy {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, HealthResponse{
		Status:    status,
		Version:   "0.1.0",
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) livenessHandler(c *gin.Context) {
	if !s.healthy.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func (s *Server) infoHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":        "Risk Insights",
		"description": "Datamart-backed default, churn, and anomaly scoring",
		"version":     "0.1.0",
	})
}

// scoreDefaultHandler handles POST /v1/scores/default
func (s *Server) scoreDefaultHandler(c *gin.Context) {
	var req struct {
		AccountID int64 `json:"account_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}
	if errs := validation.Validate(validation.PositiveID("account_id", req.AccountID)); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": errs.Error()})
		return
	}

	prob, err := s.scoring.ScoreDefault(c.Request.Context(), req.AccountID)
	if err != nil {
		s.scoringError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"account_id":   req.AccountID,
		"default_risk": prob,
	})
}

// scoreChurnHandler handles POST /v1/scores/churn
func (s *Server) scoreChurnHandler(c *gin.Context) {
	var req struct {
		ClientID int64 `json:"client_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}
	if errs := validation.Validate(validation.PositiveID("client_id", req.ClientID)); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": errs.Error()})
		return
	}

	prob, err := s.scoring.ScoreChurn(c.Request.Context(), req.ClientID)
	if err != nil {
		s.scoringError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"client_id":  req.ClientID,
		"churn_risk": prob,
	})
}

// anomaliesHandler handles POST /v1/anomalies
func (s *Server) anomaliesHandler(c *gin.Context) {
	var req struct {
		Contamination float64 `json:"contamination"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}
	contamination := req.Contamination
	if contamination == 0 {
		contamination = s.cfg.DefaultContamination
	}
	if errs := validation.Validate(validation.ContaminationRange("contamination", contamination)); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": errs.Error()})
		return
	}

	results, err := s.scoring.ScoreAnomalies(c.Request.Context(), contamination)
	if err != nil {
		s.scoringError(c, err)
		return
	}

	flagged := make([]anomaly.Result, 0)
	for _, r := range results {
		if r.IsAnomaly {
			flagged = append(flagged, r)
		}
	}
	sort.Slice(flagged, func(i, j int) bool { return flagged[i].Score > flagged[j].Score })
	if len(flagged) > maxAnomalyResults {
		flagged = flagged[:maxAnomalyResults]
	}

	c.JSON(http.StatusOK, gin.H{
		"contamination": contamination,
		"scored":        len(results),
		"flagged":       len(flagged),
		"anomalies":     flagged,
	})
}

// defaultFeaturesHandler handles GET /v1/features/default/:id
func (s *Server) defaultFeaturesHandler(c *gin.Context) {
	id, _ := strconv.ParseInt(c.Param("id"), 10, 64)

	feats, err := s.scoring.AggregateDefaultFeatures(c.Request.Context(), id)
	if err != nil {
		s.scoringError(c, err)
		return
	}
	c.JSON(http.StatusOK, feats)
}

// churnFeaturesHandler handles GET /v1/features/churn/:id
func (s *Server) churnFeaturesHandler(c *gin.Context) {
	id, _ := strconv.ParseInt(c.Param("id"), 10, 64)

	feats, err := s.scoring.AggregateChurnFeatures(c.Request.Context(), id)
	if err != nil {
		s.scoringError(c, err)
		return
	}
	c.JSON(http.StatusOK, feats)
}

// runPipelineHandler handles POST /v1/pipeline/runs
func (s *Server) runPipelineHandler(c *gin.Context) {
	r, err := s.pipeline.Run(c.Request.Context())
	if err != nil {
		var stageErr *pipeline.StageFailure
		stage := "unknown"
		if errors.As(err, &stageErr) {
			stage = stageErr.Stage
		}

		status := http.StatusInternalServerError
		code := "pipeline_failed"
		switch {
		case errors.Is(err, models.ErrModelUnavailable), errors.Is(err, datamart.ErrUnavailable):
			status = http.StatusServiceUnavailable
			code = "upstream_unavailable"
		case errors.Is(err, etl.ErrMalformedInput), errors.Is(err, etl.ErrUnknownAccount),
			errors.Is(err, anomaly.ErrInvalidContamination):
			status = http.StatusUnprocessableEntity
			code = "bad_input"
		}

		logging.L(c.Request.Context()).Error("pipeline run failed", "stage", stage, "error", err)
		c.JSON(status, gin.H{"error": code, "stage": stage, "message": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"run_id":          r.RunID,
		"timestamp":       r.Timestamp,
		"accounts_scored": len(r.DefaultRiskSummary),
		"clients_scored":  len(r.ChurnRiskSummary),
		"anomalies":       len(r.Anomalies),
	})
}

// exportHandler handles POST /v1/exports
func (s *Server) exportHandler(c *gin.Context) {
	paths, err := s.exporter.Export(c.Request.Context(), time.Now())
	if err != nil {
		logging.L(c.Request.Context()).Error("export failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "export_failed",
			"message": "Failed to export datamart tables",
		})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"files": paths})
}

// latestReportHandler handles GET /v1/reports/latest
func (s *Server) latestReportHandler(c *gin.Context) {
	if pg, ok := s.reportSink.(*report.PostgresSink); ok {
		r, err := pg.Latest(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "No report has been persisted yet",
			})
			return
		}
		c.JSON(http.StatusOK, r)
		return
	}

	r, err := latestFileReport(s.cfg.ReportDir)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": "No report has been persisted yet",
		})
		return
	}
	c.JSON(http.StatusOK, r)
}

// latestFileReport finds the newest report JSON under dir. Filenames embed
// the timestamp, so lexicographic order is chronological.
func latestFileReport(dir string) (*report.Report, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "report_*.json"))
	if err != nil || len(matches) == 0 {
		return nil, errors.New("no reports found")
	}
	sort.Strings(matches)

	raw, err := os.ReadFile(matches[len(matches)-1])
	if err != nil {
		return nil, err
	}
	var r report.Report
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// scoringError maps scoring-layer errors onto HTTP status codes.
func (s *Server) scoringError(c *gin.Context, err error) {
	ctx := c.Request.Context()
	switch {
	case errors.Is(err, scoring.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": "No transactions for the requested entity",
		})
	case errors.Is(err, models.ErrModelUnavailable), errors.Is(err, datamart.ErrUnavailable):
		logging.L(ctx).Error("upstream unavailable", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "upstream_unavailable",
			"message": "A required model or the datamart is unavailable",
		})
	case errors.Is(err, anomaly.ErrInvalidContamination):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "contamination must be in (0, 0.5]",
		})
	case errors.Is(err, anomaly.ErrEmptyInput), errors.Is(err, features.ErrNoTransactions),
		errors.Is(err, features.ErrZeroDaySpan), errors.Is(err, features.ErrMissingAccount):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":   "unprocessable",
			"message": err.Error(),
		})
	default:
		logging.L(ctx).Error("scoring failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An unexpected error occurred",
		})
	}
}
