package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"aquacare-relay/internal/logger"
)

// SetupRelayRouter serves device websocket connections on any path.
func SetupRelayRouter(apiHandler *APIHandler) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/*", apiHandler.HandleWebSocket)

	return r
}

// SetupHTTPRouter serves the index, health, metrics and operator endpoints.
func SetupHTTPRouter(apiHandler *APIHandler) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.GetHead)

	r.Get("/", apiHandler.Index)
	r.Get("/health", apiHandler.Health)
	r.Handle("/metrics", promhttp.Handler())

	if apiHandler.auth != nil && apiHandler.auth.Enabled() {
		r.Route("/api", func(r chi.Router) {
			r.Post("/login", apiHandler.Login)
			r.Group(func(r chi.Router) {
				r.Use(apiHandler.auth.Middleware)
				r.Get("/thresholds", apiHandler.ListThresholds)
				r.Put("/thresholds/{metric}", apiHandler.PutThreshold)
				r.Get("/sensors", apiHandler.LatestReading)
			})
		})
	}

	return r
}

// requestLogger logs each request with zerolog once it completes.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		log := logger.WithComponent("http")
		log.Info().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote_addr", r.RemoteAddr).
			Int("status", ww.Status()).
			Int("response_size", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Msg("request completed")
	})
}
