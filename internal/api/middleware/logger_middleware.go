package middleware

import (
	"net/http"
	"time"

	"norelock.dev/nowplaying/bot/internal/utils"
)

// LoggerMiddleware handles request logging for the API.
type LoggerMiddleware struct {
	logger *utils.Logger
}

// NewLoggerMiddleware creates a new logger middleware.
func NewLoggerMiddleware(logger *utils.Logger) *LoggerMiddleware {
	return &LoggerMiddleware{
		logger: logger.Named("http"),
	}
}

// Logger is a middleware that logs HTTP requests.
func (m *LoggerMiddleware) Logger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		m.logger.Info("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rw.statusCode,
			"duration", time.Since(start).String(),
			"ip", utils.GetRequestIP(r),
		)
	})
}

// responseWriter captures the status code written by the handler.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
