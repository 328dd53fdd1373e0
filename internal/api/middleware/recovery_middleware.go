// Package middleware contains HTTP middleware for the API.
package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"norelock.dev/nowplaying/bot/internal/utils"
)

// RecoveryMiddleware handles panic recovery for the API.
type RecoveryMiddleware struct {
	logger *utils.Logger
}

// NewRecoveryMiddleware creates a new recovery middleware.
func NewRecoveryMiddleware(logger *utils.Logger) *RecoveryMiddleware {
	return &RecoveryMiddleware{
		logger: logger.Named("recovery"),
	}
}

// Recovery is a middleware that recovers from panics.
func (m *RecoveryMiddleware) Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				m.logger.Error("Panic recovered", fmt.Errorf("panic: %v", err),
					"stack", string(debug.Stack()),
					"method", r.Method,
					"path", r.URL.Path,
					"ip", utils.GetRequestIP(r),
				)
				utils.RespondWithError(w, http.StatusInternalServerError, "Internal server error")
			}
		}()

		next.ServeHTTP(w, r)
	})
}
