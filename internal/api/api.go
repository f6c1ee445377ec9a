package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"tenant-provisioner/internal/auth"
	"tenant-provisioner/internal/manager"
	"tenant-provisioner/internal/metrics"
	"tenant-provisioner/internal/model"
)

// Provisioner runs one provisioning attempt.
type Provisioner interface {
	RegisterNewTenant(ctx context.Context, tenantID string) (*manager.Outcome, error)
}

// Registry reads provisioning records.
type Registry interface {
	GetTenant(ctx context.Context, tenantID string) (*model.TenantRecord, error)
	ListTenants(ctx context.Context) ([]model.TenantRecord, error)
	Ping(ctx context.Context) error
}

type API struct {
	Provisioner    Provisioner
	Registry       Registry
	Auth           *auth.Authenticator
	RequestTimeout time.Duration
	Logger         *zap.Logger
}

// NewAPI wires the handlers. A nil authenticator leaves /tenants open.
func NewAPI(p Provisioner, registry Registry, authenticator *auth.Authenticator, requestTimeout time.Duration, logger *zap.Logger) *API {
	return &API{
		Provisioner:    p,
		Registry:       registry,
		Auth:           authenticator,
		RequestTimeout: requestTimeout,
		Logger:         logger,
	}
}

func (a *API) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(a.Logger))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", a.Health)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/tenants", func(r chi.Router) {
		if a.Auth != nil {
			r.Use(a.Auth.Middleware)
		}

		// Bounded by provisioning.timeout, not the request timeout.
		r.Post("/{tenantId}", a.RegisterTenant)

		r.Group(func(r chi.Router) {
			if a.RequestTimeout > 0 {
				r.Use(middleware.Timeout(a.RequestTimeout))
			}
			r.Get("/", a.ListTenants)
			r.Get("/{tenantId}", a.GetTenant)
		})
	})

	return r
}

func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r)

			logger.Info("HTTP request",
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)))
		})
	}
}
