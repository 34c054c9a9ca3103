package response

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	// ContextKeyRequestID is the Gin context key for the request ID.
	ContextKeyRequestID = "request_id"
	// ContextKeyLogger holds the request-scoped logger.
	ContextKeyLogger = "request_logger"

	headerRequestID = "X-Request-ID"
)

// RequestContext tags every request with an ID and a logger carrying it,
// plus the session id when the route has one. Each request is logged once
// on completion; server errors at warn, the rest at debug.
func RequestContext(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := c.GetHeader(headerRequestID)
		if reqID == "" {
			reqID = uuid.New().String()
		}
		c.Set(ContextKeyRequestID, reqID)
		c.Header(headerRequestID, reqID)

		lc := log.With().Str("request_id", reqID)
		if sid := c.Param("session_id"); sid != "" {
			lc = lc.Str("session_id", sid)
		}
		reqLog := lc.Logger()
		c.Set(ContextKeyLogger, &reqLog)

		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		ev := reqLog.Debug()
		if status >= 500 {
			ev = reqLog.Warn()
		}
		ev.Str("method", c.Request.Method).
			Str("route", c.FullPath()).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Msg("request")
	}
}

// Logger returns the request-scoped logger, or a disabled one outside
// RequestContext.
func Logger(c *gin.Context) *zerolog.Logger {
	if v, ok := c.Get(ContextKeyLogger); ok {
		if l, ok := v.(*zerolog.Logger); ok {
			return l
		}
	}
	nop := zerolog.Nop()
	return &nop
}
