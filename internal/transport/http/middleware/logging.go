package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// Logging пишет одну строку access-лога на запрос.
// Ответы 4xx/5xx уже залогированы обработчиком с деталями, здесь только уровень.
func Logging(logger *log.Entry) gin.HandlerFunc {
	if logger == nil {
		logger = log.New().WithField("component", "http")
	}
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		status := c.Writer.Status()
		entry := logger.WithFields(log.Fields{
			"request_id": RequestIDFrom(c),
			"method":     c.Request.Method,
			"route":      route,
			"status":     status,
			"dur_ms":     time.Since(start).Milliseconds(),
			"resp_bytes": c.Writer.Size(),
			"remote":     c.ClientIP(),
		})
		if len(c.Params) > 0 {
			entry = entry.WithField("params", c.Params)
		}

		switch {
		case status >= http.StatusInternalServerError:
			entry.Error("http_request")
		case status >= http.StatusBadRequest:
			entry.Warn("http_request")
		default:
			entry.Info("http_request")
		}
	}
}
