// Package middleware provides request-scoped context, tracing, and the
// coarse per-process abuse guard.
package middleware

import (
	"context"
	"time"

	"parlor/internal/observability"

	"github.com/gofiber/fiber/v2"
)

// ContextMiddleware injects the request ID and client IP from Fiber into the
// request context so the context-aware logger sees them in deep layers.
func ContextMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := c.UserContext()
		if rid, ok := c.Locals("requestid").(string); ok {
			ctx = context.WithValue(ctx, observability.RequestIDKey, rid)
		}
		ctx = observability.WithClientIP(ctx, c.IP())
		c.SetUserContext(ctx)
		return c.Next()
	}
}

// RequestLogging logs one line per completed request.
func RequestLogging() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		observability.Logger.InfoContext(c.UserContext(), "request completed",
			"method", c.Method(),
			"path", c.Path(),
			"status", c.Response().StatusCode(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return err
	}
}
