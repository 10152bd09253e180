package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.metricsMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:8080", "https://console.patrol-dispatch.local"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", s.handleHealth)
	r.Route("/v1", func(v1 chi.Router) {
		// All core calls pass the access-control boundary: the officer id
		// used by every operation comes from the verified token subject.
		v1.Use(s.authMw.Middleware)

		v1.Post("/dispatches", s.handleCreateDispatch)
		v1.Get("/dispatches/{dispatchID}", s.handleGetDispatch)
		v1.Get("/stations/{stationID}/dispatches/pending", s.handleListPendingForStation)

		v1.Post("/dispatches/{dispatchID}/accept", s.handleAccept)
		v1.Post("/dispatches/{dispatchID}/decline", s.handleDecline)
		v1.Post("/dispatches/{dispatchID}/en-route", s.handleMarkEnRoute)
		v1.Post("/dispatches/{dispatchID}/arrived", s.handleMarkArrived)
		v1.Post("/dispatches/{dispatchID}/verify", s.handleVerifyReport)
		v1.Post("/dispatches/{dispatchID}/cancel", s.handleCancel)

		v1.Put("/officers/me/location", s.handleUpdateOfficerLocation)
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		duration := time.Since(start)
		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", duration).
			Msg("http request")
	})
}
