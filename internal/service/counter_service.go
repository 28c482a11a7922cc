package service

import (
	"context"

	"parlor/internal/models"
	"parlor/internal/repository"
)

// CounterService increments and reads per-URL page-view counters.
type CounterService struct {
	counters repository.CounterRepository
}

func NewCounterService(counters repository.CounterRepository) *CounterService {
	return &CounterService{counters: counters}
}

// Hit increments the counter for url, refreshes its stored title, and
// returns the post-increment state. Every read is an increment.
func (s *CounterService) Hit(ctx context.Context, url, title string) (*models.Counter, error) {
	if url == "" {
		return nil, models.NewValidationError("url is required")
	}
	counter, err := s.counters.Increment(ctx, url, title)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return counter, nil
}
