package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Prince-Affedzie/Freshy-Food-Backend/internal/platform/httpx"
)

const (
	apiPrefix         = "/api/v1"
	requestTimeout    = 60 * time.Second
	errorNotFoundCode = "route_not_found"
)

// RouteRegistrar adds a handler set's routes to r.
type RouteRegistrar func(r chi.Router)

// routeGroup is a prefix under /api/v1. An empty prefix registers on the API root.
type routeGroup struct {
	prefix      string
	registrar   RouteRegistrar
	middlewares []func(http.Handler) http.Handler
}

type routerConfig struct {
	middlewares []func(http.Handler) http.Handler
	health      *HealthHandlers
	metricsPath string
	metrics     http.Handler
	groups      map[string]*routeGroup
}

// Option customises NewRouter.
type Option func(*routerConfig)

// NewRouter assembles the HTTP surface: health checks and metrics at the root, and the
// customer, payment, admin and internal groups under /api/v1. A group without
// handlers answers 501 so partial deployments fail loudly.
func NewRouter(opts ...Option) chi.Router {
	cfg := &routerConfig{
		middlewares: []func(http.Handler) http.Handler{
			middleware.RequestID,
			middleware.RealIP,
			middleware.Timeout(requestTimeout),
		},
		metricsPath: "/metrics",
		groups: map[string]*routeGroup{
			"orders":   {prefix: "/orders"},
			"payments": {},
			"admin":    {prefix: "/admin"},
			"internal": {prefix: "/internal"},
		},
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.health == nil {
		cfg.health = NewHealthHandlers()
	}

	r := chi.NewRouter()
	for _, mw := range cfg.middlewares {
		if mw != nil {
			r.Use(mw)
		}
	}
	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError(errorNotFoundCode,
			fmt.Sprintf("no route for %s", req.URL.Path), http.StatusNotFound))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("method_not_allowed",
			fmt.Sprintf("%s is not allowed on %s", req.Method, req.URL.Path), http.StatusMethodNotAllowed))
	})

	r.Get("/healthz", cfg.health.Healthz)
	r.Get("/readyz", cfg.health.Readyz)
	if cfg.metrics != nil {
		r.Method(http.MethodGet, cfg.metricsPath, cfg.metrics)
	}

	r.Route(apiPrefix, func(api chi.Router) {
		for _, name := range []string{"orders", "payments", "admin", "internal"} {
			mountGroup(api, name, cfg.groups[name])
		}
	})
	return r
}

func mountGroup(api chi.Router, name string, g *routeGroup) {
	if g.prefix == "" {
		// Payment paths carry custom verbs (/payments:initialize) so they cannot share a chi sub-route.
		if g.registrar != nil {
			api.Group(func(root chi.Router) {
				root.Use(g.middlewares...)
				g.registrar(root)
			})
		}
		return
	}
	api.Route(g.prefix, func(sub chi.Router) {
		sub.Use(g.middlewares...)
		if g.registrar == nil {
			registerNotImplemented(sub, name)
			return
		}
		g.registrar(sub)
	})
}

// WithMiddlewares appends router-wide middleware after the request id, real ip and timeout defaults.
func WithMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) { cfg.middlewares = append(cfg.middlewares, mw...) }
}

func WithHealthHandlers(h *HealthHandlers) Option {
	return func(cfg *routerConfig) { cfg.health = h }
}

// WithMetricsHandler serves handler on path, or /metrics when path is empty.
func WithMetricsHandler(path string, handler http.Handler) Option {
	return func(cfg *routerConfig) {
		if path != "" {
			cfg.metricsPath = path
		}
		cfg.metrics = handler
	}
}

func WithOrderRoutes(reg RouteRegistrar) Option { return withGroup("orders", reg) }

func WithPaymentRoutes(reg RouteRegistrar) Option { return withGroup("payments", reg) }

func WithAdminRoutes(reg RouteRegistrar) Option { return withGroup("admin", reg) }

func WithInternalRoutes(reg RouteRegistrar) Option { return withGroup("internal", reg) }

// WithInternalMiddlewares guards the /internal group, e.g. with push token verification.
func WithInternalMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		g := cfg.groups["internal"]
		for _, m := range mw {
			if m != nil {
				g.middlewares = append(g.middlewares, m)
			}
		}
	}
}

func withGroup(name string, reg RouteRegistrar) Option {
	return func(cfg *routerConfig) { cfg.groups[name].registrar = reg }
}

func registerNotImplemented(r chi.Router, name string) {
	handler := func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("not_implemented",
			fmt.Sprintf("%s routes are not configured", name), http.StatusNotImplemented))
	}
	r.HandleFunc("/", handler)
	r.HandleFunc("/*", handler)
}
