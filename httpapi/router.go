package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimid "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// HealthCheck reports one dependency. A nil error means healthy.
type HealthCheck func(ctx context.Context) error

type RouterConfig struct {
	Engine Engine
	Log    zerolog.Logger

	// Registerer receives the HTTP histogram; Gatherer backs /metrics.
	// Either may be nil.
	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer

	Health map[string]HealthCheck

	// RateLimit is a ulule formatted rate ("300-M"). Empty disables it.
	RateLimit   string
	TrustProxy  bool
	Development bool
}

// NewRouter wires the recovery and login endpoints.
func NewRouter(cfg RouterConfig) (http.Handler, error) {
	r := chi.NewRouter()
	r.Use(chimid.RequestID)
	if cfg.TrustProxy {
		r.Use(chimid.RealIP)
	}
	r.Use(requestLogger(cfg.Log))
	r.Use(chimid.Recoverer)
	if cfg.Registerer != nil {
		r.Use(requestDuration(cfg.Registerer))
	}
	r.Use(secureHeaders(cfg.Development))

	r.Get("/healthz", healthHandler(cfg.Health))
	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	limit, err := ipRateLimit(cfg.RateLimit, cfg.TrustProxy)
	if err != nil {
		return nil, err
	}

	h := NewHandler(cfg.Engine, cfg.Log)
	r.Group(func(r chi.Router) {
		if limit != nil {
			r.Use(limit)
		}
		r.Use(chimid.AllowContentType("application/json"))
		r.Post("/recovery/request", h.RequestReset)
		r.Post("/recovery/confirm", h.ConfirmReset)
		r.Post("/login", h.Login)
	})
	return r, nil
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		resp := healthResponse{Status: "ok"}
		if len(checks) > 0 {
			resp.Checks = make(map[string]string, len(checks))
		}
		for name, check := range checks {
			if err := check(ctx); err != nil {
				resp.Checks[name] = "down"
				resp.Status = "unhealthy"
				continue
			}
			resp.Checks[name] = "ok"
		}
		code := http.StatusOK
		if resp.Status != "ok" {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, resp)
	}
}
