// Package middleware provides HTTP middleware for authentication, authorization, and rate limiting.
//
// AuthMiddleware is the authorization gate. It validates the bearer token and
// stores the caller's auth.Principal in the request context:
//
//	gate := middleware.NewAuthMiddleware(tokenIssuer)
//	protected.Use(gate.Handler)
//	admin.Use(middleware.RequireRole(auth.RoleAdmin))
//
// Handlers read the caller with GetPrincipal.
//
// # Rate Limiting
//
// Login and registration are guarded per client IP. RateLimiter keeps token
// buckets in process; DistributedRateLimiter shares fixed-window counters
// through Redis. Both satisfy Limiter:
//
//	limiter := middleware.NewDistributedRateLimiter(redisClient, middleware.DefaultLoginRateLimitConfig(), "")
//	guard := middleware.NewRateLimitMiddleware(limiter, "login")
//
// Limiter errors fail open.
package middleware
