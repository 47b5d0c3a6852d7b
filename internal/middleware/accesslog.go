package middleware

import (
	"net/http"
	"time"

	"github.com/gridwise/utility-rates/pkg/logger"
)

// AccessLog logs one line per request. The development profile enables it;
// production runs without access logging.
func AccessLog(log *logger.Logger, next http.Handler) http.Handler {
	if log == nil {
		log = logger.NewDefault("http")
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(rec, r)

		log.WithField("method", r.Method).
			WithField("path", r.URL.Path).
			WithField("status", rec.status).
			WithField("duration_ms", time.Since(start).Milliseconds()).
			WithField("remote", r.RemoteAddr).
			Info("request")
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
