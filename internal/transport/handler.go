package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/menuocr/constants"
	"github.com/joseph-ayodele/menuocr/internal/common"
	"github.com/joseph-ayodele/menuocr/internal/pipeline"
	"github.com/joseph-ayodele/menuocr/internal/repository"
	"github.com/joseph-ayodele/menuocr/internal/server"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Menus is the shared menu façade (server.MenuService).
type Menus interface {
	Process(ctx context.Context, ref string) (pipeline.Output, error)
	Validate(ctx context.Context, text string) (server.ValidateResponse, error)
	Score(text string) (server.ScoreResponse, error)
}

type RunLister interface {
	ListRuns(ctx context.Context, limit int) ([]repository.MenuRun, error)
}

type RunExporter interface {
	RunsXLSX(ctx context.Context, limit int) ([]byte, error)
}

type Config struct {
	MaxRequestBytes int64
	RequestTimeout  time.Duration
}

type ProcessRequest struct {
	Image string `json:"image" binding:"required"`
}

type TextRequest struct {
	Text string `json:"text"`
}

type ErrorResponse struct {
	Error    string             `json:"error"`
	Message  string             `json:"message,omitempty"`
	RunID    string             `json:"runId,omitempty"`
	Decision constants.Decision `json:"decision,omitempty"`
}

type handler struct {
	menus    Menus
	runs     RunLister
	exporter RunExporter
	cfg      Config
	logger   *slog.Logger
}

// NewHandler builds the HTTP API. runs and exporter may be nil when no audit
// store is configured; their routes then answer 503.
func NewHandler(menus Menus, runs RunLister, exporter RunExporter, cfg Config, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &handler{menus: menus, runs: runs, exporter: exporter, cfg: cfg, logger: logger}

	r := gin.New()
	r.Use(
		gin.Recovery(),
		requestID(),
		accessLog(logger),
		requestSizeLimiter(cfg.MaxRequestBytes),
		errorHandler(logger),
	)

	r.GET("/health", healthCheck)
	v1 := r.Group("/v1")
	v1.POST("/menus/process", h.processMenu)
	v1.POST("/menus/validate", h.validateMenu)
	v1.POST("/menus/score", h.scoreMenu)
	v1.GET("/runs", h.listRuns)
	v1.GET("/runs/export", h.exportRuns)

	return r
}

func (h *handler) withTimeout(c *gin.Context) (context.Context, context.CancelFunc) {
	if h.cfg.RequestTimeout <= 0 {
		return context.WithCancel(c.Request.Context())
	}
	return context.WithTimeout(c.Request.Context(), h.cfg.RequestTimeout)
}

func (h *handler) processMenu(c *gin.Context) {
	ctx, cancel := h.withTimeout(c)
	defer cancel()

	var req ProcessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.logger, bindStatus(err), "invalid request format", err)
		return
	}

	out, err := h.menus.Process(ctx, req.Image)
	if err != nil {
		if out.Decision == constants.DecisionRetry {
			h.logger.Error("http.process.failed", "req_id", common.RequestIDFromContext(ctx), "run_id", out.RunID, "error", err)
			c.AbortWithStatusJSON(common.HTTPStatus(err), ErrorResponse{
				Error:    http.StatusText(common.HTTPStatus(err)),
				Message:  err.Error(),
				RunID:    out.RunID.String(),
				Decision: out.Decision,
			})
			return
		}
		respondError(c, h.logger, common.HTTPStatus(err), "menu processing failed", err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *handler) validateMenu(c *gin.Context) {
	ctx, cancel := h.withTimeout(c)
	defer cancel()

	var req TextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.logger, bindStatus(err), "invalid request format", err)
		return
	}
	out, err := h.menus.Validate(ctx, req.Text)
	if err != nil {
		respondError(c, h.logger, common.HTTPStatus(err), "validation failed", err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *handler) scoreMenu(c *gin.Context) {
	var req TextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.logger, bindStatus(err), "invalid request format", err)
		return
	}
	out, err := h.menus.Score(req.Text)
	if err != nil {
		respondError(c, h.logger, common.HTTPStatus(err), "scoring failed", err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *handler) listRuns(c *gin.Context) {
	if h.runs == nil {
		respondError(c, h.logger, http.StatusServiceUnavailable, "run history unavailable", errors.New("no database configured"))
		return
	}
	limit, err := limitParam(c)
	if err != nil {
		respondError(c, h.logger, http.StatusBadRequest, "invalid limit", err)
		return
	}
	runs, err := h.runs.ListRuns(c.Request.Context(), limit)
	if err != nil {
		_ = c.Error(err)
		return
	}
	if runs == nil {
		runs = []repository.MenuRun{}
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

func (h *handler) exportRuns(c *gin.Context) {
	if h.exporter == nil {
		respondError(c, h.logger, http.StatusServiceUnavailable, "run export unavailable", errors.New("no database configured"))
		return
	}
	limit, err := limitParam(c)
	if err != nil {
		respondError(c, h.logger, http.StatusBadRequest, "invalid limit", err)
		return
	}
	b, err := h.exporter.RunsXLSX(c.Request.Context(), limit)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="menu-runs-%s.xlsx"`, time.Now().UTC().Format("20060102")))
	c.Data(http.StatusOK, xlsxContentType, b)
}

// bindStatus separates oversized bodies from malformed ones.
func bindStatus(err error) int {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusBadRequest
}

func limitParam(c *gin.Context) (int, error) {
	raw := c.Query("limit")
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 || n > 1000 {
		return 0, fmt.Errorf("limit must be between 0 and 1000, got %q", raw)
	}
	return n, nil
}

func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "available",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// Middleware and helper functions
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(server.RequestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}
		c.Request = c.Request.WithContext(common.WithRequestID(c.Request.Context(), id))
		c.Header(server.RequestIDHeader, id)
		c.Next()
	}
}

func accessLog(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("http.request",
			"req_id", common.RequestIDFromContext(c.Request.Context()),
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"ip", c.ClientIP(),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
	}
}

func requestSizeLimiter(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if maxBytes > 0 {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}
		c.Next()
	}
}

func errorHandler(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 && !c.Writer.Written() {
			err := c.Errors.Last().Err
			respondError(c, logger, common.HTTPStatus(err), "request processing failed", err)
		}
	}
}

func respondError(c *gin.Context, logger *slog.Logger, code int, message string, err error) {
	logger.Error("http.request.failed",
		"req_id", common.RequestIDFromContext(c.Request.Context()),
		"status", code,
		"message", message,
		"path", c.Request.URL.Path,
		"method", c.Request.Method,
		"error", err,
	)
	c.AbortWithStatusJSON(code, ErrorResponse{
		Error:   http.StatusText(code),
		Message: fmt.Sprintf("%s: %v", message, err),
	})
}
