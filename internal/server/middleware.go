package server

import (
	"net/http"
	"time"

	"github.com/dreamware/ncmerge/internal/ctxlog"
)

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(b)
	r.bytes += n
	return n, err
}

// withLogging attaches a request-scoped logger to the context and logs
// each completed request.
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		logger := s.logger.With("method", r.Method, "path", r.URL.Path)
		if name := r.URL.Query().Get("name"); name != "" {
			logger = logger.With("dataset", name)
		}
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r.WithContext(ctxlog.WithLogger(r.Context(), logger)))

		if rec.status == 0 {
			rec.status = http.StatusOK
		}
		logger.Debug("request complete", "status", rec.status, "bytes", rec.bytes, "duration", time.Since(start))
	})
}
