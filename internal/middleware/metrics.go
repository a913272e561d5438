package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/jwhitden/muster/internal/monitoring"
)

// Metrics returns middleware that records request counts and latencies.
// The route pattern matched by the ServeMux is used as the path label so
// parameterized routes do not explode label cardinality. The wrapped
// handler must see the same *Request the mux routed, so apply this inside
// any middleware that calls WithContext.
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		path := r.Pattern
		if path == "" {
			path = "unmatched"
		}
		monitoring.TrackHTTPRequest(r.Method, path, strconv.Itoa(rec.status), time.Since(start))
	})
}
