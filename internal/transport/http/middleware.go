package httptransport

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"narration-service/internal/logger"
)

type statusWriter struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

// RequestLogger logs one line per request. 5xx go out at error level.
func RequestLogger(log *logger.Logger) func(http.Handler) http.Handler {
	log = log.With("component", "http")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sw := &statusWriter{ResponseWriter: w}
			start := time.Now()

			// chi middleware.RequestID кладёт id в контекст
			reqID := middleware.GetReqID(r.Context())

			next.ServeHTTP(sw, r)

			kv := []any{
				"req_id", reqID,
				"method", r.Method,
				"path", r.URL.Path,
				"status", sw.status,
				"bytes", sw.bytes,
				"duration_ms", time.Since(start).Milliseconds(),
			}
			if sw.status >= http.StatusInternalServerError {
				log.Error("request", kv...)
				return
			}
			log.Info("request", kv...)
		})
	}
}
