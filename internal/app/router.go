package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/pharmatrade/pharmatrade/internal/inventory"
	"github.com/pharmatrade/pharmatrade/internal/medicines"
	"github.com/pharmatrade/pharmatrade/internal/notification"
	"github.com/pharmatrade/pharmatrade/internal/observability"
	"github.com/pharmatrade/pharmatrade/internal/pharmacies"
	"github.com/pharmatrade/pharmatrade/internal/trading"
	"github.com/pharmatrade/pharmatrade/internal/users"
	"github.com/pharmatrade/pharmatrade/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger              *slog.Logger
	Config              *Config
	Identity            IdentityResolver
	UsersHandler        *users.Handler
	PharmaciesHandler   *pharmacies.Handler
	MedicinesHandler    *medicines.Handler
	InventoryHandler    *inventory.Handler
	TradingHandler      *trading.Handler
	NotificationHandler *notification.Handler
	JobHandler          *jobs.Handler
	Metrics             *observability.Metrics
}

// NewRouter constructs the chi.Router with application defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		if params.Identity != nil {
			r.Use(IdentityMiddleware(params.Identity, params.Logger))
		}
		if params.UsersHandler != nil {
			r.Route("/users", params.UsersHandler.MountRoutes)
		}
		if params.PharmaciesHandler != nil {
			r.Route("/pharmacies", params.PharmaciesHandler.MountRoutes)
		}
		if params.MedicinesHandler != nil {
			r.Route("/medicines", params.MedicinesHandler.MountRoutes)
		}
		if params.InventoryHandler != nil {
			r.Route("/inventory", params.InventoryHandler.MountRoutes)
		}
		if params.TradingHandler != nil {
			r.Route("/transactions", params.TradingHandler.MountRoutes)
		}
		if params.NotificationHandler != nil {
			r.Route("/notifications", params.NotificationHandler.MountRoutes)
		}
		if params.JobHandler != nil {
			r.Route("/jobs", params.JobHandler.MountRoutes)
		}
	})

	return r
}
