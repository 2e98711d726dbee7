// Package server is the JSON API over brand analyses, plus health and
// Prometheus endpoints.
package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"brandpulse/internal/analysis"
	"brandpulse/internal/domain"
	"brandpulse/internal/logger"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	defaultListLimit = 20
	maxListLimit     = 200
)

type Service interface {
	Analyze(ctx context.Context, brand string, days int) (analysis.AnalyzeResult, error)
	Reclassify(ctx context.Context, runID string) (analysis.AnalyzeResult, error)
	Report(ctx context.Context, runID string) (analysis.RunReport, error)
	Runs(ctx context.Context, brand string, limit int) ([]domain.Run, error)
	GenerateInsights(ctx context.Context, runID string) (domain.InsightReport, error)
	Insights(ctx context.Context, runID string) (domain.InsightReport, error)
}

// Pinger reports store health for /healthz.
type Pinger interface {
	Ping(ctx context.Context) error
}

type RouterConfig struct {
	Service Service
	Health  Pinger
	Logger  *logger.Logger
	// Metrics serves /metrics. Defaults to the default Prometheus gatherer.
	Metrics http.Handler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = promhttp.Handler()
	}
	h := &handler{svc: cfg.Service, health: cfg.Health}

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(cfg.Logger))

	router.GET("/healthz", h.healthz)
	router.GET("/metrics", gin.WrapH(cfg.Metrics))

	api := router.Group("/api")
	{
		api.POST("/analyses", h.createAnalysis)
		api.GET("/analyses", h.listAnalyses)
		api.GET("/analyses/:id", h.getAnalysis)
		api.POST("/analyses/:id/reclassify", h.reclassify)
		api.POST("/analyses/:id/insights", h.generateInsights)
		api.GET("/analyses/:id/insights", h.getInsights)
	}
	return router
}

type Server struct {
	srv *http.Server
	log *logger.Logger
}

func New(addr string, cfg RouterConfig) *Server {
	log := cfg.Logger
	if log == nil {
		log = logger.Nop()
	}
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           NewRouter(cfg),
			ReadHeaderTimeout: 10 * time.Second,
		},
		log: log,
	}
}

// Run serves until ctx ends, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", "addr", s.srv.Addr)
		errCh <- s.srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.srv.Shutdown(shutdownCtx)
	}
}

func requestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}

type handler struct {
	svc    Service
	health Pinger
}

type createAnalysisRequest struct {
	Brand string `json:"brand"`
	Days  int    `json:"days"`
}

type analysisResponse struct {
	Run           domain.Run `json:"run"`
	Fetched       int        `json:"fetched"`
	Skipped       int        `json:"skipped"`
	Candidates    int        `json:"candidates"`
	Classified    int        `json:"classified"`
	FailedBatches int        `json:"failed_batches"`
	Unclassified  int        `json:"unclassified"`
	Requeued      int        `json:"requeued"`
	CostEstimate  string     `json:"cost_estimate"`
	Summary       string     `json:"summary"`
}

func toAnalysisResponse(r analysis.AnalyzeResult) analysisResponse {
	return analysisResponse{
		Run:           r.Run,
		Fetched:       r.Fetched,
		Skipped:       r.Skipped,
		Candidates:    r.Candidates,
		Classified:    r.Classified,
		FailedBatches: r.FailedBatches,
		Unclassified:  r.Unclassified,
		Requeued:      r.Requeued,
		CostEstimate:  r.Cost(),
		Summary:       analysis.FormatAnalyzeSummary(r),
	}
}

// GET /healthz
func (h *handler) healthz(c *gin.Context) {
	if h.health != nil {
		if err := h.health.Ping(c.Request.Context()); err != nil {
			RespondError(c, http.StatusServiceUnavailable, "unhealthy", err)
			return
		}
	}
	c.String(http.StatusOK, "ok")
}

// POST /api/analyses
func (h *handler) createAnalysis(c *gin.Context) {
	var req createAnalysisRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	if req.Days == 0 {
		req.Days = 7
	}
	result, err := h.svc.Analyze(c.Request.Context(), strings.TrimSpace(req.Brand), req.Days)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toAnalysisResponse(result))
}

// GET /api/analyses?brand=&limit=
func (h *handler) listAnalyses(c *gin.Context) {
	limit := defaultListLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			RespondError(c, http.StatusBadRequest, "invalid_request", errors.New("limit must be a positive integer"))
			return
		}
		if n > maxListLimit {
			n = maxListLimit
		}
		limit = n
	}
	runs, err := h.svc.Runs(c.Request.Context(), strings.TrimSpace(c.Query("brand")), limit)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	if runs == nil {
		runs = []domain.Run{}
	}
	c.JSON(http.StatusOK, gin.H{"analyses": runs})
}

// GET /api/analyses/:id
func (h *handler) getAnalysis(c *gin.Context) {
	rep, err := h.svc.Report(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	pairs := rep.Pairs
	if pairs == nil {
		pairs = []domain.RecordWithClassification{}
	}
	c.JSON(http.StatusOK, gin.H{
		"run":            rep.Run,
		"aggregate":      rep.Aggregate,
		"percentages":    rep.Aggregate.Percentages(),
		"top_categories": rep.Aggregate.TopCategories(3),
		"posts":          pairs,
	})
}

// POST /api/analyses/:id/reclassify
func (h *handler) reclassify(c *gin.Context) {
	result, err := h.svc.Reclassify(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, toAnalysisResponse(result))
}

// POST /api/analyses/:id/insights
func (h *handler) generateInsights(c *gin.Context) {
	report, err := h.svc.GenerateInsights(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// GET /api/analyses/:id/insights
func (h *handler) getInsights(c *gin.Context) {
	report, err := h.svc.Insights(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}
