package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
)

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// HTTPMiddleware records every request in the aggregator and the Prometheus
// collectors. Endpoints are keyed by their mux route template so path
// parameters collapse into one series; install it with Router.Use.
func HTTPMiddleware(agg *Aggregator) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return instrument(agg, next, routeTemplate, routeTemplate)
	}
}

// UnmatchedHandler instruments the router's not-found and method-not-allowed
// handlers, which run outside Router.Use. The aggregator keys them by raw
// path; Prometheus gets a single "unmatched" route label.
func UnmatchedHandler(agg *Aggregator, next http.Handler) http.Handler {
	return instrument(agg, next, rawPath, func(*http.Request) string { return UnmatchedRoute })
}

// UnmatchedRoute labels Prometheus series for requests that matched no route
const UnmatchedRoute = "unmatched"

func instrument(agg *Aggregator, next http.Handler, endpoint, label func(*http.Request) string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(rw, r)

		elapsed := time.Since(start)
		route := label(r)
		statusCode := strconv.Itoa(rw.statusCode)

		agg.Record(EndpointKey(r.Method, endpoint(r)), rw.statusCode, elapsed)
		HTTPRequestsTotal.WithLabelValues(r.Method, route, statusCode).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(elapsed.Seconds())

		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rw.statusCode).
			Dur("duration", elapsed).
			Msg("HTTP request")
	})
}

func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return rawPath(r)
}

func rawPath(r *http.Request) string {
	return r.URL.Path
}
