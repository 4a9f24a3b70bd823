package main

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/medtrail/pkg/audit"
	"github.com/platinummonkey/medtrail/pkg/auth"
	"github.com/platinummonkey/medtrail/pkg/httputil"
	"github.com/platinummonkey/medtrail/pkg/lab"
	"github.com/platinummonkey/medtrail/pkg/middleware"
	"github.com/platinummonkey/medtrail/pkg/observability"
)

// routerDeps is everything the public router needs
type routerDeps struct {
	logger       *observability.Logger
	metrics      *observability.Metrics
	tokens       *auth.TokenManager
	authRequired bool
	maxBodyBytes int64
	trustHeaders bool

	queries  *audit.QueryService
	composer *audit.Composer
	recorder lab.Recorder
	labRepo  *lab.Repository
	limiter  middleware.Limiter
}

func newRouter(d routerDeps) *mux.Router {
	router := mux.NewRouter()
	router.Use(
		httputil.RequestIDMiddleware,
		httputil.RecoveryMiddleware(d.logger),
		httputil.LoggingMiddleware(d.logger),
	)
	if d.metrics != nil {
		router.Use(observability.HTTPMetricsMiddleware(d.metrics))
	}
	if d.maxBodyBytes > 0 {
		router.Use(httputil.MaxBytesMiddleware(d.maxBodyBytes))
	}
	if d.tokens != nil {
		router.Use(middleware.NewAuthMiddleware(d.tokens, !d.authRequired).Handler)
	}

	// The audit read route gets its own limiter and, with auth on, admin-only access
	auditRouter := router.NewRoute().Subrouter()
	if d.tokens != nil && d.authRequired {
		auditRouter.Use(middleware.RequireRole(auth.RoleAdmin))
	}
	if d.limiter != nil {
		auditRouter.Use(middleware.RateLimit(d.limiter, d.logger))
	}
	audit.NewHandlers(d.queries, d.composer).RegisterRoutes(auditRouter)

	lab.NewHandlers(d.labRepo, d.recorder, d.trustHeaders).RegisterRoutes(router)

	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteNotFound(w, "route not found")
	})
	return router
}
