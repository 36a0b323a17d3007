package transport

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"path"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/alexandrurinzescu-afk/vaultguard-revolution/internal/config"
	apperrors "github.com/alexandrurinzescu-afk/vaultguard-revolution/internal/errors"
	"github.com/alexandrurinzescu-afk/vaultguard-revolution/internal/logger"
	"github.com/alexandrurinzescu-afk/vaultguard-revolution/internal/observer"
	"github.com/alexandrurinzescu-afk/vaultguard-revolution/internal/ocr"
	"github.com/alexandrurinzescu-afk/vaultguard-revolution/internal/repository"
	"github.com/alexandrurinzescu-afk/vaultguard-revolution/internal/service"
	"github.com/alexandrurinzescu-afk/vaultguard-revolution/internal/storage"
	"github.com/alexandrurinzescu-afk/vaultguard-revolution/pkg/models"
	"github.com/alexandrurinzescu-afk/vaultguard-revolution/pkg/validation"
)

// Version is reported by the health endpoint
const Version = "1.0.0"

// StatsProvider exposes pipeline counters
type StatsProvider interface {
	GetMetrics() observer.Metrics
}

// EngineInfo describes the OCR engine behind the pipeline
type EngineInfo interface {
	ResolveMode(requested models.Mode) models.Mode
	Capabilities() ocr.Capabilities
	EngineName() string
}

// AnalyzeURLRequest is the body of POST /v1/analyze-url
type AnalyzeURLRequest struct {
	URL  string `json:"url" binding:"required"`
	Mode string `json:"mode,omitempty"`
}

// NewHandler wires the HTTP routes
func NewHandler(svc service.PipelineService, fetcher storage.ImageFetcher, stats StatsProvider, engine EngineInfo, cfg *config.Config) http.Handler {
	r := gin.New()

	r.Use(
		gin.Recovery(),
		requestLogger(),
		requestSizeLimiter(cfg.MaxRequestBodySize),
		errorHandler(),
	)

	urls := validation.NewURLValidator(cfg.AllowedImageHosts...)

	r.GET("/health", healthCheck(engine))
	v1 := r.Group("/v1")
	{
		v1.GET("/stats", statsHandler(stats))
		v1.POST("/analyze", analyzeUpload(svc, cfg))
		v1.POST("/analyze-url", analyzeURL(svc, fetcher, urls, cfg))
		v1.POST("/classify", classifyText(svc))
	}

	return r
}

func requestMode(raw string) (models.Mode, error) {
	if raw == "" {
		return models.ModeWindowsSecurity, nil
	}
	return models.ParseMode(raw)
}

func analyzeUpload(svc service.PipelineService, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), cfg.RequestTimeout)
		defer cancel()

		mode, err := requestMode(c.PostForm("mode"))
		if err != nil {
			respondError(c, apperrors.GetStatusCode(err), "invalid mode", err)
			return
		}

		fh, err := c.FormFile("image")
		if err != nil {
			respondError(c, http.StatusBadRequest, "missing image upload", apperrors.NewValidationError("form field \"image\" is required", err))
			return
		}
		f, err := fh.Open()
		if err != nil {
			respondError(c, http.StatusBadRequest, "cannot read upload", apperrors.NewValidationError("cannot open upload", err))
			return
		}
		defer f.Close()

		img, err := repository.Decode(f)
		if err != nil {
			respondError(c, apperrors.GetStatusCode(err), "invalid image", err)
			return
		}

		payload, err := svc.Assess(ctx, fh.Filename, img, mode)
		if err != nil {
			respondError(c, apperrors.GetStatusCode(err), "analysis failed", err)
			return
		}
		c.JSON(http.StatusOK, payload)
	}
}

func analyzeURL(svc service.PipelineService, fetcher storage.ImageFetcher, urls *validation.URLValidator, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), cfg.RequestTimeout)
		defer cancel()

		var req AnalyzeURLRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, http.StatusBadRequest, "invalid request format", apperrors.NewValidationError("invalid JSON body", err))
			return
		}
		if err := urls.ValidateImageURL(req.URL); err != nil {
			respondError(c, apperrors.GetStatusCode(err), "invalid image URL", err)
			return
		}
		mode, err := requestMode(req.Mode)
		if err != nil {
			respondError(c, apperrors.GetStatusCode(err), "invalid mode", err)
			return
		}

		logger.WithFields(logrus.Fields{
			"url":  req.URL,
			"mode": mode,
		}).Debug("Fetching image")

		img, err := fetcher.FetchImage(ctx, req.URL)
		if err != nil {
			if !apperrors.IsType(err, apperrors.ErrorTypeImageRead) {
				if errors.Is(err, context.DeadlineExceeded) {
					err = apperrors.NewEngineTimeoutError("image fetch timeout", err)
				} else {
					err = apperrors.NewNetworkError("failed to fetch image", err)
				}
			}
			respondError(c, apperrors.GetStatusCode(err), "failed to fetch image", err)
			return
		}

		name := req.URL
		if u, perr := url.Parse(req.URL); perr == nil && u.Path != "" {
			name = path.Base(u.Path)
		}
		payload, err := svc.Assess(ctx, name, img, mode)
		if err != nil {
			respondError(c, apperrors.GetStatusCode(err), "analysis failed", err)
			return
		}
		c.JSON(http.StatusOK, payload)
	}
}

func classifyText(svc service.PipelineService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.ClassifyRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, http.StatusBadRequest, "invalid request format", apperrors.NewValidationError("invalid JSON body", err))
			return
		}
		assessment, err := svc.ClassifyText(req.Text)
		if err != nil {
			respondError(c, apperrors.GetStatusCode(err), "classification failed", err)
			return
		}
		c.JSON(http.StatusOK, assessment)
	}
}

func healthCheck(engine EngineInfo) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, models.HealthResponse{
			Status:       "available",
			Version:      Version,
			Time:         time.Now().UTC().Format(time.RFC3339),
			Engine:       engine.EngineName() + " " + engine.Capabilities().Version,
			PreferredOCR: engine.ResolveMode(models.ModeWindowsSecurity),
		})
	}
}

func statsHandler(stats StatsProvider) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, stats.GetMetrics())
	}
}

// Middleware and helper functions
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.WithFields(logrus.Fields{
			"method":             c.Request.Method,
			"path":               c.Request.URL.Path,
			"status":             c.Writer.Status(),
			"ip":                 c.ClientIP(),
			"processing_time_ms": time.Since(start).Milliseconds(),
		}).Info("Request handled")
	}
}

func requestSizeLimiter(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

func errorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 && !c.Writer.Written() {
			err := c.Errors.Last().Err
			respondError(c, determineStatusCode(err), "request processing failed", err)
		}
	}
}

func determineStatusCode(err error) int {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes an ErrorResponse. Application errors report their type, e.g.
// {"error": "empty_text"}; anything else reports the HTTP status text.
func respondError(c *gin.Context, code int, message string, err error) {
	logger.WithError(err).WithFields(logrus.Fields{
		"status_code": code,
		"message":     message,
		"path":        c.Request.URL.Path,
		"method":      c.Request.Method,
		"ip":          c.ClientIP(),
	}).Error("Request failed")

	resp := models.ErrorResponse{Error: http.StatusText(code), Message: message}
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		resp.Error = string(appErr.Type)
		if appErr.Type != apperrors.ErrorTypeEmptyText {
			resp.Message = message + ": " + appErr.Message
		} else {
			resp.Message = ""
		}
	}
	c.AbortWithStatusJSON(code, resp)
}
