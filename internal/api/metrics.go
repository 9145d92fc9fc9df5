package api

import (
	"net/http"
	"strconv"

	"dronehub/internal/metrics"
)

// statusRecorder captures the status code a handler writes so countRequests
// can label the metric after ServeHTTP returns.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// countRequests wraps next with dronehub_http_requests_total, labeled by
// the matched mux pattern (available via r.Pattern once ServeMux has
// routed the request) and status class.
func countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		pattern := r.Pattern
		if pattern == "" {
			pattern = "unmatched"
		}
		statusClass := strconv.Itoa(rec.status/100) + "xx"
		metrics.HTTPRequestsTotal.WithLabelValues(pattern, statusClass).Inc()
	})
}
