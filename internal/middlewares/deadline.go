package middlewares

import (
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// ExtendDeadlineMiddleware moves the connection read and write deadlines of a request to
// now + timeout, overriding the server-wide timeouts for routes that wait on slow upstreams.
func ExtendDeadlineMiddleware(timeout time.Duration, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if timeout > 0 {
				deadline := time.Now().Add(timeout)
				rc := http.NewResponseController(w)
				if err := rc.SetReadDeadline(deadline); err != nil && !errors.Is(err, http.ErrNotSupported) {
					logger.Warn("Failed to extend read deadline", zap.String("path", r.URL.Path), zap.Error(err))
				}
				if err := rc.SetWriteDeadline(deadline); err != nil && !errors.Is(err, http.ErrNotSupported) {
					logger.Warn("Failed to extend write deadline", zap.String("path", r.URL.Path), zap.Error(err))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
