package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/therealutkarshpriyadarshi/vidrelay/internal/logging"
	"github.com/therealutkarshpriyadarshi/vidrelay/internal/metrics"
)

// Recovery turns handler panics into 500 responses. http.ErrAbortHandler is
// re-raised so net/http drops the connection, which is how a relay that
// fails after headers were sent signals truncation to the client.
func Recovery(logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}

			metrics.RecordError("http", "panic")
			logger.WithField("stack", string(debug.Stack())).Errorf("Panic recovered: %v", rec)

			if c.Writer.Written() {
				c.Abort()
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error": "Internal Server Error",
			})
		}()

		c.Next()
	}
}
