package httpapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/eventhub/internal/common"
	"github.com/dmitrijs2005/eventhub/internal/logging"
	"github.com/dmitrijs2005/eventhub/internal/server/auth"
	"github.com/go-chi/chi/v5/middleware"
)

// RequireAuth admits requests carrying a valid "Bearer" access token and
// puts auth.Identity on their context. It never reads the user store.
func RequireAuth(v Verifier, l logging.Logger, m *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r.Header.Get("Authorization"))
			if token == "" {
				m.authFailures.WithLabelValues(failureReason(common.ErrMissingToken)).Inc()
				respondMessage(w, http.StatusUnauthorized, "Unauthorized, no token")
				return
			}

			claims, err := v.VerifyToken(token)
			if err != nil {
				reason := failureReason(err)
				m.authFailures.WithLabelValues(reason).Inc()
				l.Warn(r.Context(), "bearer token rejected", "reason", reason, "path", r.URL.Path, "error", err)
				respondMessage(w, http.StatusUnauthorized, "Unauthorized, invalid token")
				return
			}

			ctx := auth.WithIdentity(r.Context(), auth.Identity{ID: claims.Subject})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(header string) string {
	if !strings.HasPrefix(header, common.BearerPrefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, common.BearerPrefix))
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.metrics.requests.WithLabelValues(r.Method, strconv.Itoa(status)).Inc()
		s.logger.Info(r.Context(), "request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start).String(),
		)
	})
}
