package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_http_requests_total",
			Help: "Total number of HTTP requests received by the API.",
		},
		[]string{"route", "method", "status"},
	)

	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_http_request_duration_seconds",
			Help:    "Duration of HTTP requests handled by the API.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method", "status"},
	)

	dispatchAcceptanceDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "api_dispatch_acceptance_duration_seconds",
			Help:    "Time from dispatch creation to officer acceptance.",
			Buckets: []float64{15, 30, 60, 90, 120, 150, 180, 240, 300, 600},
		},
	)

	dispatchThreeMinuteRuleTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_dispatch_three_minute_rule_total",
			Help: "Dispatch acceptances partitioned by whether the three-minute rule was met.",
		},
		[]string{"met"},
	)

	dispatchResponseDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "api_dispatch_response_duration_seconds",
			Help:    "Time from dispatch creation to officer arrival on scene.",
			Buckets: []float64{60, 120, 180, 300, 600, 900, 1200, 1800, 2700, 3600},
		},
	)

	dispatchCompletionDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_dispatch_completion_duration_seconds",
			Help:    "Time from arrival to report verification per verdict.",
			Buckets: []float64{120, 300, 600, 900, 1200, 1800, 2700, 3600, 5400, 7200},
		},
		[]string{"verdict"},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDurationSeconds,
		dispatchAcceptanceDurationSeconds,
		dispatchThreeMinuteRuleTotal,
		dispatchResponseDurationSeconds,
		dispatchCompletionDurationSeconds,
	)
}

// metricsMiddleware records basic request metrics for Prometheus (RPS and latency).
func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		durationSeconds := time.Since(start).Seconds()
		status := strconv.Itoa(ww.Status())
		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}

		httpRequestsTotal.WithLabelValues(route, r.Method, status).Inc()
		httpRequestDurationSeconds.WithLabelValues(route, r.Method, status).Observe(durationSeconds)
	})
}

func observeAcceptance(seconds int64, met bool) {
	if seconds < 0 {
		return
	}
	dispatchAcceptanceDurationSeconds.Observe(float64(seconds))
	dispatchThreeMinuteRuleTotal.WithLabelValues(strconv.FormatBool(met)).Inc()
}

func observeResponse(seconds int64) {
	if seconds < 0 {
		return
	}
	dispatchResponseDurationSeconds.Observe(float64(seconds))
}

func observeCompletion(seconds int64, valid bool) {
	if seconds < 0 {
		return
	}
	verdict := "invalid"
	if valid {
		verdict = "valid"
	}
	dispatchCompletionDurationSeconds.WithLabelValues(verdict).Observe(float64(seconds))
}
