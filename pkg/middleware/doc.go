// Package middleware holds the request guards placed in front of medtrail's
// routes: bearer-token authentication, role checks and rate limiting.
//
//	authMW := middleware.NewAuthMiddleware(tokens, !cfg.Auth.Required)
//	router.Use(authMW.Handler)
//	logs.Use(middleware.RateLimit(limiter, logger))
package middleware
