package repository

import (
	"context"
	"time"

	"parlor/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CounterRepository provides per-URL page view counters.
type CounterRepository interface {
	// Increment atomically bumps the hit count for url, creating the row on
	// first use and refreshing the denormalized title, then returns the
	// resulting counter.
	Increment(ctx context.Context, url, title string) (*models.Counter, error)
	Get(ctx context.Context, url string) (*models.Counter, error)
}

type counterRepository struct {
	db *gorm.DB
}

// NewCounterRepository creates a new CounterRepository
func NewCounterRepository(db *gorm.DB) CounterRepository {
	return &counterRepository{db: db}
}

func (r *counterRepository) Increment(ctx context.Context, url, title string) (*models.Counter, error) {
	now := time.Now().UnixMilli()
	counter := models.Counter{
		URL:     url,
		Title:   title,
		Hits:    1,
		Updated: now,
	}

	// Insert-or-update-on-conflict keeps concurrent increments from losing
	// updates; the increment happens inside the database.
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "url"}},
			DoUpdates: clause.Assignments(map[string]any{
				"hits":    gorm.Expr("counters.hits + 1"),
				"title":   title,
				"updated": now,
			}),
		}).
		Create(&counter).Error
	if err != nil {
		return nil, err
	}

	return r.Get(ctx, url)
}

func (r *counterRepository) Get(ctx context.Context, url string) (*models.Counter, error) {
	var counter models.Counter
	if err := r.db.WithContext(ctx).First(&counter, "url = ?", url).Error; err != nil {
		return nil, err
	}
	return &counter, nil
}
