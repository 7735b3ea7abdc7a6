package main

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/therealutkarshpriyadarshi/vidrelay/internal/middleware"
)

// setupRouter wires middleware and routes. limiter may be nil when rate
// limiting is disabled.
func setupRouter(api *API, limiter middleware.Limiter) (*gin.Engine, error) {
	router := gin.New()

	// Client IPs feed the rate limiter, so forwarded headers are only
	// honoured from configured proxies.
	if err := router.SetTrustedProxies(api.cfg.Server.TrustedProxies); err != nil {
		return nil, fmt.Errorf("invalid server.trustedProxies: %w", err)
	}

	router.Use(
		middleware.Logger(api.logger),
		middleware.Recovery(api.logger),
		middleware.Metrics(),
		middleware.Tracing(),
		middleware.CORS(),
	)

	// Unauthenticated
	router.GET("/", api.root)
	router.GET("/health", api.healthCheck)
	router.GET("/api/debug/auth", api.debugAuth)

	protected := []gin.HandlerFunc{middleware.APIKeyAuth(api.cfg.Auth, api.logger)}
	if limiter != nil {
		protected = append(protected, middleware.RateLimit(limiter, api.logger))
	}

	v := router.Group("/api", protected...)
	{
		v.GET("/info/:videoId", api.getInfo)
		v.GET("/formats/:videoId", api.getFormats)
		v.GET("/download/:videoId", api.getDownload)
		v.GET("/stream/:videoId", api.streamVideo)
	}

	return router, nil
}
