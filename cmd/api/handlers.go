package main

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/therealutkarshpriyadarshi/vidrelay/internal/config"
	"github.com/therealutkarshpriyadarshi/vidrelay/internal/extractor"
	"github.com/therealutkarshpriyadarshi/vidrelay/internal/logging"
	"github.com/therealutkarshpriyadarshi/vidrelay/internal/metrics"
	"github.com/therealutkarshpriyadarshi/vidrelay/internal/middleware"
	"github.com/therealutkarshpriyadarshi/vidrelay/internal/relay"
	"github.com/therealutkarshpriyadarshi/vidrelay/pkg/models"
)

// VideoService resolves metadata and direct media URLs
type VideoService interface {
	FetchMetadata(ctx context.Context, reference string) (*models.VideoMetadata, error)
	ResolveDownload(ctx context.Context, reference, quality string) (*models.DownloadResolution, error)
}

// MediaRelay copies a resolved media URL to the caller
type MediaRelay interface {
	Stream(ctx context.Context, w http.ResponseWriter, res *models.DownloadResolution) (relay.State, error)
}

// HealthChecker reports whether an optional backend is reachable
type HealthChecker interface {
	Ping(ctx context.Context) error
}

type API struct {
	cfg    *config.Config
	videos VideoService
	relay  MediaRelay
	redis  HealthChecker
	logger *logging.Logger
}

// NewAPI creates the handler set. redis may be nil.
func NewAPI(cfg *config.Config, videos VideoService, mediaRelay MediaRelay, redis HealthChecker, logger *logging.Logger) *API {
	return &API{
		cfg:    cfg,
		videos: videos,
		relay:  mediaRelay,
		redis:  redis,
		logger: logger,
	}
}

// Status endpoint
func (api *API) root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":             "ok",
		"message":            "YouTube Download API is running",
		"environment":        api.cfg.Environment,
		"api_key_configured": api.cfg.APIKeyConfigured(),
		"endpoints": gin.H{
			"info":     "/api/info/:videoId",
			"formats":  "/api/formats/:videoId",
			"download": "/api/download/:videoId?quality=:quality",
			"stream":   "/api/stream/:videoId?quality=:quality",
			"debug":    "/api/debug/auth",
		},
		"auth": gin.H{
			"required": !api.cfg.Auth.AllowAnonymous || api.cfg.APIKeyConfigured(),
			"header":   middleware.APIKeyHeader,
		},
	})
}

// Auth diagnostics. Only lengths and flags are reported, never the secret
// or the request headers.
func (api *API) debugAuth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"message": "Auth debug information",
		"debug": gin.H{
			"apiKeyConfigured":  api.cfg.APIKeyConfigured(),
			"apiKeyLength":      len(strings.TrimSpace(api.cfg.Auth.APIKey)),
			"receivedKeyLength": len(strings.TrimSpace(c.GetHeader(middleware.APIKeyHeader))),
			"environment":       api.cfg.Environment,
		},
	})
}

// Health check endpoint
func (api *API) healthCheck(c *gin.Context) {
	if api.redis != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		if err := api.redis.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  err.Error(),
			})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
	})
}

// Get video info
func (api *API) getInfo(c *gin.Context) {
	api.serveMetadata(c, "Failed to get video info")
}

// Get video formats
func (api *API) getFormats(c *gin.Context) {
	api.serveMetadata(c, "Failed to get video formats")
}

func (api *API) serveMetadata(c *gin.Context, label string) {
	info, err := api.videos.FetchMetadata(c.Request.Context(), c.Param("videoId"))
	if err != nil {
		api.respondError(c, label, err)
		return
	}

	c.JSON(http.StatusOK, info)
}

// Resolve a direct download URL
func (api *API) getDownload(c *gin.Context) {
	quality := qualityParam(c)

	res, err := api.videos.ResolveDownload(c.Request.Context(), c.Param("videoId"), quality)
	if err != nil {
		api.respondError(c, "Failed to get download URL", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":              "success",
		"download_url":        res.URL,
		"title":               res.Title,
		"ext":                 res.Ext,
		"quality":             res.Quality,
		"thumbnail":           res.Thumbnail,
		"duration":            res.Duration,
		"filesize":            res.Filesize,
		"available_qualities": models.QualityNames(),
	})
}

// Stream media bytes through the service
func (api *API) streamVideo(c *gin.Context) {
	quality := qualityParam(c)
	ctx := c.Request.Context()

	res, err := api.videos.ResolveDownload(ctx, c.Param("videoId"), quality)
	if err != nil {
		api.respondError(c, "Failed to stream video", err)
		return
	}

	state, err := api.relay.Stream(ctx, c.Writer, res)
	if err == nil {
		return
	}

	logger := middleware.RequestLogger(c, api.logger).WithVideoID(c.Param("videoId")).WithError(err)

	if state != relay.StateFailedMidStream {
		var connErr *relay.ConnectError
		label := "Streaming failed"
		if errors.As(err, &connErr) {
			label = "Failed to start stream"
		}
		logger.Error(label)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   label,
			"message": err.Error(),
		})
		return
	}

	// Headers and part of the body are out. Drop the connection so the
	// client sees a truncated transfer instead of a short success.
	logger.Warn("Relay failed mid-stream, aborting connection")
	panic(http.ErrAbortHandler)
}

func (api *API) respondError(c *gin.Context, label string, err error) {
	logger := middleware.RequestLogger(c, api.logger).WithVideoID(c.Param("videoId"))

	if errors.Is(err, extractor.ErrInvalidReference) {
		metrics.RecordError("api", "invalid_reference")
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   label,
			"message": err.Error(),
		})
		return
	}

	var xerr *extractor.ExtractionError
	if errors.As(err, &xerr) {
		logger.WithField("operation", xerr.Op).ErrorWithErr(label, err)
	} else {
		logger.ErrorWithErr(label, err)
	}
	metrics.RecordError("api", "extraction")

	c.JSON(http.StatusInternalServerError, gin.H{
		"error":   label,
		"message": err.Error(),
	})
}

// qualityParam reads ?quality=, falling back to ?format= and then the default
func qualityParam(c *gin.Context) string {
	if q := c.Query("quality"); q != "" {
		return q
	}
	if f := c.Query("format"); f != "" {
		return f
	}
	return models.DefaultQuality
}
