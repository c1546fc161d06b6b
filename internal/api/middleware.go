package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	statusWarnThreshold  = 400
	statusErrorThreshold = 500
	requestIDHeader      = "X-Request-ID"
)

// RequestLogger is a Gin middleware that tags each request with an ID and logs
// its outcome through logger. Handlers can read the ID from the response header.
func RequestLogger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := c.GetHeader(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header(requestIDHeader, requestID)

		c.Next()

		status := c.Writer.Status()
		evt := logger.Info()
		switch {
		case status >= statusErrorThreshold:
			evt = logger.Error()
		case status >= statusWarnThreshold:
			evt = logger.Warn()
		}
		path := c.Request.URL.Path
		if raw := c.Request.URL.RawQuery; raw != "" {
			path += "?" + raw
		}
		if len(c.Errors) > 0 {
			evt = evt.Str("gin_errors", c.Errors.String())
		}
		evt.
			Str("request_id", requestID).
			Int("status", status).
			Str("method", c.Request.Method).
			Str("path", path).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Int("bytes", c.Writer.Size()).
			Msg("http request completed")
	}
}
