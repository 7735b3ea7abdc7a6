package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/therealutkarshpriyadarshi/vidrelay/internal/tracing"
)

// Tracing opens a span per request and hands it down through the request
// context, so extractor spans become its children.
func Tracing() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := tracing.StartSpan(c.Request.Context(), "http "+c.Request.Method)
		defer tracing.FinishSpan(span)

		tracing.SetTag(span, "http.method", c.Request.Method)
		tracing.SetTag(span, "http.url", c.Request.URL.Path)
		if id := c.GetString(RequestIDKey); id != "" {
			tracing.SetTag(span, "request_id", id)
		}

		c.Request = c.Request.WithContext(ctx)
		c.Next()

		tracing.SetTag(span, "http.route", c.FullPath())
		tracing.SetTag(span, "http.status_code", c.Writer.Status())
	}
}
