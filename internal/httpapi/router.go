// Package httpapi exposes the platform's narrow external HTTP surface: job
// submission, the worker-runtime callback, and vendor event-router ingress
// (§1/§2.2 — the full REST API is out of core scope, these three entry
// points are the only ones an outside caller needs).
package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/epam/rule-engine/internal/app"
	"github.com/epam/rule-engine/internal/platform/logging"
	"github.com/epam/rule-engine/internal/platform/metrics"
)

type handler struct {
	app *app.Application
	log *logging.Logger
}

// NewRouter returns the HTTP handler for the rule engine's external surface.
func NewRouter(application *app.Application, log *logging.Logger) http.Handler {
	h := &handler{app: application, log: log}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger(log))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.health)
	r.Get("/system/descriptors", h.systemDescriptors)
	r.Handle("/metrics", metrics.Handler())

	r.Post("/jobs", h.submitJob)
	r.Post("/internal/worker-callback", h.workerCallback)
	r.Post("/events/cloudtrail", h.cloudTrailEvents)
	r.Post("/events/maestro", h.maestroEvents)

	return r
}

// requestLogger logs each request at Info with its trace id (chi's
// RequestID) carried through as the platform's trace id field.
func requestLogger(log *logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			traceID := middleware.GetReqID(r.Context())
			ctx := logging.WithTraceID(r.Context(), traceID)
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))
			log.WithContext(ctx).WithField("status", ww.Status()).
				WithField("method", r.Method).WithField("path", r.URL.Path).
				Info("http request")
		})
	}
}
