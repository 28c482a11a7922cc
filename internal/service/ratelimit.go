package service

import (
	"context"
	"time"

	"parlor/internal/models"
	"parlor/internal/observability"
	"parlor/internal/repository"
)

// rateLimitWindow is the trailing window both submission guards count over.
const rateLimitWindow = 10 * time.Minute

// defaultRateLimit applies when the corresponding config key is unset.
const defaultRateLimit = 10

// RateLimiter guards comment submissions with two windowed counters: one per
// source IP and one across all IPs. Thresholds come from the config store; a
// threshold of zero disables that guard entirely (its count query is skipped).
type RateLimiter struct {
	comments repository.CommentRepository
	settings *ConfigService
	// now is swappable for tests.
	now func() time.Time
}

// NewRateLimiter creates a RateLimiter over the comment table.
func NewRateLimiter(comments repository.CommentRepository, settings *ConfigService) *RateLimiter {
	return &RateLimiter{
		comments: comments,
		settings: settings,
		now:      time.Now,
	}
}

type limitResult struct {
	exceeded bool
	err      error
}

// Check returns a rate-limit error when either guard's threshold is exceeded.
// Both counters are evaluated concurrently before either decision is made,
// bounding added latency to the slower of the two count queries.
func (l *RateLimiter) Check(ctx context.Context, ip string) error {
	perIP := l.settings.GetInt(ctx, KeyLimitPerIP, defaultRateLimit)
	all := l.settings.GetInt(ctx, KeyLimitAll, defaultRateLimit)

	since := l.now().Add(-rateLimitWindow).UnixMilli()

	ipCh := make(chan limitResult, 1)
	allCh := make(chan limitResult, 1)

	go func() {
		if perIP <= 0 {
			ipCh <- limitResult{}
			return
		}
		count, err := l.comments.CountSubmissionsSince(ctx, since, ip)
		ipCh <- limitResult{exceeded: err == nil && count >= int64(perIP), err: err}
	}()
	go func() {
		if all <= 0 {
			allCh <- limitResult{}
			return
		}
		count, err := l.comments.CountSubmissionsSince(ctx, since, "")
		allCh <- limitResult{exceeded: err == nil && count >= int64(all), err: err}
	}()

	ipRes := <-ipCh
	allRes := <-allCh

	if ipRes.err != nil {
		return ipRes.err
	}
	if allRes.err != nil {
		return allRes.err
	}

	if ipRes.exceeded {
		observability.RateLimitedTotal.WithLabelValues("ip").Inc()
		return models.NewRateLimitedError("You are commenting too fast, please try again in a few minutes")
	}
	if allRes.exceeded {
		observability.RateLimitedTotal.WithLabelValues("global").Inc()
		return models.NewRateLimitedError("Comments are coming in too fast right now, please try again shortly")
	}
	return nil
}
