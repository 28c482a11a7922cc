package middleware

import (
	"sync"

	"parlor/internal/observability"

	"github.com/gofiber/fiber/v2"
)

// IPGuard is the coarse pre-storage abuse brake: it counts every request per
// IP for the lifetime of the process and rejects past a fixed ceiling. The
// counts are in-memory and not windowed; a restart resets them.
type IPGuard struct {
	mu      sync.Mutex
	counts  map[string]int64
	ceiling int64
}

// NewIPGuard creates a guard with the given ceiling. A ceiling of 0
// disables the guard.
func NewIPGuard(ceiling int64) *IPGuard {
	return &IPGuard{counts: make(map[string]int64), ceiling: ceiling}
}

// Allow records one request from ip and reports whether it is under the
// ceiling.
func (g *IPGuard) Allow(ip string) bool {
	if g.ceiling <= 0 {
		return true
	}
	g.mu.Lock()
	g.counts[ip]++
	over := g.counts[ip] > g.ceiling
	g.mu.Unlock()
	return !over
}

// Handler returns the fiber middleware for the guard.
func (g *IPGuard) Handler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !g.Allow(c.IP()) {
			observability.RateLimitedTotal.WithLabelValues("process").Inc()
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"code":    1000,
				"message": "too many requests from this address",
			})
		}
		return c.Next()
	}
}
