package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/therealutkarshpriyadarshi/vidrelay/internal/config"
	"github.com/therealutkarshpriyadarshi/vidrelay/internal/logging"
	"github.com/therealutkarshpriyadarshi/vidrelay/internal/metrics"
)

const (
	// APIKeyHeader carries the shared secret
	APIKeyHeader = "X-API-Key"

	AuthContextKey = "authenticated"
)

// APIKeyAuth compares the X-API-Key header against the configured secret.
// Both sides are whitespace-trimmed; the comparison is exact and
// case-sensitive. With no secret configured requests pass only in
// anonymous (test) mode.
func APIKeyAuth(cfg config.AuthConfig, logger *logging.Logger) gin.HandlerFunc {
	expected := []byte(strings.TrimSpace(cfg.APIKey))

	return func(c *gin.Context) {
		if len(expected) == 0 {
			if cfg.AllowAnonymous {
				logger.Warnf("No API key configured, allowing request to %s", c.Request.URL.Path)
				c.Set(AuthContextKey, false)
				c.Next()
				return
			}
			metrics.RecordAuthFailure("unconfigured")
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
				"error":   "Service Unavailable",
				"message": "API key is not configured",
			})
			return
		}

		received := c.GetHeader(APIKeyHeader)
		if received == "" {
			metrics.RecordAuthFailure("missing")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":           "Unauthorized",
				"message":         "API key is missing",
				"required_header": APIKeyHeader,
			})
			return
		}

		if subtle.ConstantTimeCompare([]byte(strings.TrimSpace(received)), expected) != 1 {
			metrics.RecordAuthFailure("mismatch")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "Unauthorized",
				"message": "Invalid API key",
			})
			return
		}

		c.Set(AuthContextKey, true)
		c.Next()
	}
}
