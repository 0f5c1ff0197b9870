// Package api is the HTTP surface of the mailroom service: a chi router,
// the middleware chain, and handlers for template preview, notification
// dispatch, and health checks.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// healthCheckTimeout bounds the total time spent on health probes.
const healthCheckTimeout = 2 * time.Second

// HealthProbe is a named check against one critical dependency.
type HealthProbe interface {
	Name() string
	Check(ctx context.Context) error
}

// RouterConfig carries the handlers and probes mounted by NewRouter.
type RouterConfig struct {
	Render        *RenderHandler
	Notifications *NotificationHandler
	Probes        []HealthProbe
	Logger        *slog.Logger
}

// NewRouter builds the full HTTP handler: recovery outermost, then request
// IDs, then request logging, then the versioned routes.
func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(Recoverer(logger))
	r.Use(RequestID)
	r.Use(RequestLogger(logger))

	r.Get("/healthz", handleHealth(cfg.Probes))

	r.Route("/v1", func(r chi.Router) {
		if cfg.Render != nil {
			r.Post("/render", cfg.Render.HandlePreview)
		}
		if cfg.Notifications != nil {
			r.Route("/notifications", cfg.Notifications.RegisterRoutes)
		}
	})

	return r
}

// componentStatus is the health state of a single dependency.
type componentStatus struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// healthResponse is the body for GET /healthz.
type healthResponse struct {
	Status     string                     `json:"status"`
	Components map[string]componentStatus `json:"components,omitempty"`
}

// handleHealth runs every probe under a shared deadline. Returns 200 when
// all probes pass and 503 when any dependency is unhealthy.
func handleHealth(probes []HealthProbe) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if len(probes) == 0 {
			JSON(w, r, http.StatusOK, healthResponse{Status: "healthy"})
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()

		components := make(map[string]componentStatus, len(probes))
		healthy := true
		for _, probe := range probes {
			if err := probe.Check(ctx); err != nil {
				healthy = false
				components[probe.Name()] = componentStatus{
					Status:  "unhealthy",
					Message: err.Error(),
				}
				continue
			}
			components[probe.Name()] = componentStatus{Status: "healthy"}
		}

		resp := healthResponse{Status: "healthy", Components: components}
		status := http.StatusOK
		if !healthy {
			resp.Status = "unhealthy"
			status = http.StatusServiceUnavailable
		}
		JSON(w, r, status, resp)
	}
}
