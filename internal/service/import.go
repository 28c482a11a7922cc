package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"parlor/internal/models"
	"parlor/internal/observability"

	"github.com/google/uuid"
)

// ImportAdapter parses an uploaded export from another comment system into
// comment records ready for persistence.
type ImportAdapter interface {
	Parse(ctx context.Context, file string) ([]*models.Comment, error)
}

// ImportService persists adapter output through the same save path as live
// submissions. Per-record failures accumulate into the returned log instead
// of aborting the batch.
type ImportService struct {
	comments commentSaver
	adapters map[string]ImportAdapter
}

type commentSaver interface {
	Create(ctx context.Context, c *models.Comment) error
}

// NewImportService registers the built-in adapters.
func NewImportService(comments commentSaver) *ImportService {
	return &ImportService{
		comments: comments,
		adapters: map[string]ImportAdapter{
			"json": jsonAdapter{},
		},
	}
}

// Register adds or replaces an adapter for a source name.
func (s *ImportService) Register(source string, adapter ImportAdapter) {
	s.adapters[strings.ToLower(source)] = adapter
}

// Import parses file with the adapter named by source and saves each record.
// The returned text is a human-readable log of the batch outcome.
func (s *ImportService) Import(ctx context.Context, r Requester, source, file string) (string, error) {
	if !r.IsAdmin {
		return "", models.NewUnauthorizedError("admin access required")
	}
	adapter, ok := s.adapters[strings.ToLower(source)]
	if !ok {
		return "", models.NewValidationError("unknown import source: " + source)
	}

	comments, err := adapter.Parse(ctx, file)
	if err != nil {
		return "", models.NewValidationError("import file could not be parsed: " + err.Error())
	}

	var log strings.Builder
	fmt.Fprintf(&log, "parsed %d comments from source %q\n", len(comments), source)

	saved := 0
	for i, c := range comments {
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		if err := c.EncodeLikes(); err != nil {
			fmt.Fprintf(&log, "record %d: likes could not be encoded: %v\n", i, err)
			continue
		}
		if err := s.comments.Create(ctx, c); err != nil {
			fmt.Fprintf(&log, "record %d (%s): save failed: %v\n", i, c.ID, err)
			continue
		}
		saved++
	}
	fmt.Fprintf(&log, "imported %d of %d comments", saved, len(comments))
	observability.Logger.InfoContext(ctx, "import finished", "source", source, "parsed", len(comments), "saved", saved)
	return log.String(), nil
}

// jsonAdapter reads a plain JSON array of comment objects, the format
// produced by the export operation.
type jsonAdapter struct{}

func (jsonAdapter) Parse(_ context.Context, file string) ([]*models.Comment, error) {
	var comments []*models.Comment
	if err := json.Unmarshal([]byte(file), &comments); err != nil {
		return nil, err
	}
	for _, c := range comments {
		if c.URL == "" {
			return nil, fmt.Errorf("comment %q has no url", c.ID)
		}
	}
	return comments, nil
}
