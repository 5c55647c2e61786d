package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/unrolled/secure"

	"github.com/pharmatrade/pharmatrade/internal/observability"
	"github.com/pharmatrade/pharmatrade/internal/platform/httpx"
	"github.com/pharmatrade/pharmatrade/internal/shared"
)

// PharmacistHeader carries the caller's user identifier on API requests.
const PharmacistHeader = "X-Pharmacist-Id"

// IdentityResolver maps a pharmacist identifier to the acting user and pharmacy.
type IdentityResolver interface {
	Resolve(ctx context.Context, pharmacistID string) (shared.Actor, error)
}

// MiddlewareConfig aggregates dependencies shared by the middleware stack.
type MiddlewareConfig struct {
	Logger  *slog.Logger
	Config  *Config
	Metrics *observability.Metrics
}

// MiddlewareStack installs the base middleware chain.
func MiddlewareStack(cfg MiddlewareConfig) []func(http.Handler) http.Handler {
	secureMiddleware := secure.New(secure.Options{
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		BrowserXssFilter:      true,
		ReferrerPolicy:        "strict-origin-when-cross-origin",
		FeaturePolicy:         "none",
		ContentSecurityPolicy: "default-src 'self'",
		SSLRedirect:           cfg.Config != nil && cfg.Config.IsProduction(),
		SSLProxyHeaders:       map[string]string{"X-Forwarded-Proto": "https"},
	})

	timeout := 30 * time.Second
	if cfg.Config != nil && cfg.Config.AppRequestTimeout > 0 {
		timeout = cfg.Config.AppRequestTimeout
	}

	middlewares := []func(http.Handler) http.Handler{
		middleware.RealIP,
		middleware.RequestID,
		middleware.Recoverer,
		middleware.Timeout(timeout),
		func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if err := secureMiddleware.Process(w, r); err != nil {
					cfg.Logger.Warn("secure headers blocked request", slog.Any("error", err))
					http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
					return
				}
				next.ServeHTTP(w, r)
			})
		},
		middleware.Compress(5),
		httprate.Limit(120, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)),
	}
	if cfg.Metrics != nil {
		middlewares = append(middlewares, func(next http.Handler) http.Handler {
			return cfg.Metrics.Middleware(next)
		})
	}
	return middlewares
}

// IdentityMiddleware resolves the pharmacist header into an Actor on the
// request context. Requests without a resolvable identity are rejected.
func IdentityMiddleware(resolver IdentityResolver, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			pharmacistID := r.Header.Get(PharmacistHeader)
			if pharmacistID == "" {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "pharmacist identifier header is required")
				return
			}
			actor, err := resolver.Resolve(r.Context(), pharmacistID)
			if err != nil {
				logger.Warn("identity resolution failed",
					slog.String("pharmacist_id", pharmacistID),
					slog.Any("error", err))
				httpx.Problem(w, http.StatusForbidden, "Forbidden", "unknown pharmacist identifier")
				return
			}
			next.ServeHTTP(w, r.WithContext(shared.ContextWithActor(r.Context(), actor)))
		})
	}
}
