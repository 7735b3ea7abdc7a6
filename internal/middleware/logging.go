package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/therealutkarshpriyadarshi/vidrelay/internal/logging"
)

const (
	RequestIDHeader = "X-Request-ID"
	RequestIDKey    = "request_id"
)

// Logger middleware assigns a request id and logs request details. The log
// entry is written from a defer so aborted connections are logged too.
func Logger(logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Set(RequestIDKey, requestID)
		c.Header(RequestIDHeader, requestID)

		defer func() {
			logger.WithRequestID(requestID).LogHTTPRequest(
				c.Request.Method,
				path,
				c.ClientIP(),
				c.Writer.Status(),
				time.Since(start),
			)
		}()

		c.Next()
	}
}

// RequestLogger returns a logger tagged with the current request id
func RequestLogger(c *gin.Context, logger *logging.Logger) *logging.Logger {
	if id := c.GetString(RequestIDKey); id != "" {
		return logger.WithRequestID(id)
	}
	return logger
}
