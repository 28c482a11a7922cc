// Package service implements the application's domain logic on top of the
// repository layer.
package service

import (
	"context"
	"strconv"
	"time"

	"parlor/internal/cache"
	"parlor/internal/repository"

	"github.com/redis/go-redis/v9"
)

// Dynamic configuration keys consumed by handlers. The stored map is
// schemaless; unknown keys round-trip untouched.
const (
	KeyAdminPassHash   = "adminPassHash"
	KeyCORSAllowList   = "corsAllowList"
	KeyCommentPageSize = "commentPageSize"
	KeyLimitPerIP      = "limitPerIP"
	KeyLimitAll        = "limitAll"
	KeyForbiddenWords  = "forbiddenWords"
	KeyChallengeSecret = "challengeSecret"
	KeyImageStorage    = "imageStorage"
	KeyImageHostURL    = "imageHostURL"
	KeyImageHostToken  = "imageHostToken"
	KeyOwnerEmail      = "ownerEmail"
	KeySiteName        = "siteName"
	KeySiteURL         = "siteURL"
)

const (
	configCacheKey = "parlor:config"
	configCacheTTL = time.Minute
)

// publicConfigKeys is the subset exposed to unauthenticated clients.
var publicConfigKeys = []string{KeySiteName, KeySiteURL, KeyCommentPageSize, KeyImageStorage}

// ConfigService is a read-through cache over the single stored
// configuration record, with partial merge-write semantics.
type ConfigService struct {
	repo repository.ConfigRepository
	rdb  *redis.Client
}

// NewConfigService creates a ConfigService. rdb may be nil; the cache layer
// then degrades to direct reads.
func NewConfigService(repo repository.ConfigRepository, rdb *redis.Client) *ConfigService {
	return &ConfigService{repo: repo, rdb: rdb}
}

// All returns the full stored map, reading through the cache.
func (s *ConfigService) All(ctx context.Context) (map[string]string, error) {
	values := map[string]string{}
	err := cache.CacheAside(ctx, s.rdb, configCacheKey, &values, configCacheTTL, func() error {
		loaded, err := s.repo.Load(ctx)
		if err != nil {
			return err
		}
		for k, v := range loaded {
			values[k] = v
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return values, nil
}

// Get returns one value, or "" when the key is unset.
func (s *ConfigService) Get(ctx context.Context, key string) (string, error) {
	values, err := s.All(ctx)
	if err != nil {
		return "", err
	}
	return values[key], nil
}

// GetInt returns one value parsed as an integer, or def when the key is
// unset or unparseable.
func (s *ConfigService) GetInt(ctx context.Context, key string, def int) int {
	raw, err := s.Get(ctx, key)
	if err != nil || raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

// Merge overlays the given keys onto the stored map and persists the union.
// An empty overlay is a no-op: partial admin edits must never clobber
// unrelated settings. The merge reads the source of truth directly, not the
// cache, and invalidates the cache afterwards.
func (s *ConfigService) Merge(ctx context.Context, overlay map[string]string) error {
	if len(overlay) == 0 {
		return nil
	}

	current, err := s.repo.Load(ctx)
	if err != nil {
		return err
	}
	for k, v := range overlay {
		current[k] = v
	}
	if err := s.repo.Save(ctx, current); err != nil {
		return err
	}

	// Best-effort invalidation; a stale entry expires within the TTL anyway.
	_ = cache.Invalidate(ctx, s.rdb, configCacheKey)
	return nil
}

// PublicView returns the subset of settings safe for any client.
func (s *ConfigService) PublicView(ctx context.Context) (map[string]string, error) {
	values, err := s.All(ctx)
	if err != nil {
		return nil, err
	}
	view := map[string]string{}
	for _, key := range publicConfigKeys {
		if v, ok := values[key]; ok {
			view[key] = v
		}
	}
	return view, nil
}

// AdminView returns every setting except the admin password hash.
func (s *ConfigService) AdminView(ctx context.Context) (map[string]string, error) {
	values, err := s.All(ctx)
	if err != nil {
		return nil, err
	}
	view := map[string]string{}
	for k, v := range values {
		if k == KeyAdminPassHash {
			continue
		}
		view[k] = v
	}
	return view, nil
}
