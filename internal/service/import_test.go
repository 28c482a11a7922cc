package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"parlor/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type saverStub struct {
	mu       sync.Mutex
	saved    []*models.Comment
	createFn func(ctx context.Context, c *models.Comment) error
}

func (s *saverStub) Create(ctx context.Context, c *models.Comment) error {
	if s.createFn != nil {
		if err := s.createFn(ctx, c); err != nil {
			return err
		}
	}
	s.mu.Lock()
	s.saved = append(s.saved, c)
	s.mu.Unlock()
	return nil
}

func TestImportRequiresAdmin(t *testing.T) {
	t.Parallel()

	svc := NewImportService(&saverStub{})
	_, err := svc.Import(context.Background(), Requester{}, "json", "[]")
	assertUnauthorizedError(t, err)
}

func TestImportUnknownSource(t *testing.T) {
	t.Parallel()

	svc := NewImportService(&saverStub{})
	_, err := svc.Import(context.Background(), Requester{IsAdmin: true}, "carrier-pigeon", "x")
	assertValidationError(t, err)
}

func TestImportJSONSavesRecords(t *testing.T) {
	t.Parallel()

	saver := &saverStub{}
	svc := NewImportService(saver)

	file := `[
		{"id": "a", "url": "/old/", "comment": "first", "likes": ["t1", "t2"]},
		{"url": "/old/", "comment": "second"}
	]`
	log, err := svc.Import(context.Background(), Requester{IsAdmin: true}, "JSON", file)
	require.NoError(t, err)
	assert.Contains(t, log, "parsed 2 comments")
	assert.Contains(t, log, "imported 2 of 2")

	require.Len(t, saver.saved, 2)
	assert.Equal(t, "a", saver.saved[0].ID)
	// Records without an id get one assigned before the save.
	assert.NotEmpty(t, saver.saved[1].ID)
	// The likes list is serialized into the stored column.
	assert.JSONEq(t, `["t1","t2"]`, saver.saved[0].Likes)
}

func TestImportJSONRejectsRecordWithoutURL(t *testing.T) {
	t.Parallel()

	svc := NewImportService(&saverStub{})
	_, err := svc.Import(context.Background(), Requester{IsAdmin: true}, "json",
		`[{"id": "a", "comment": "orphan"}]`)
	assertValidationError(t, err)
}

func TestImportContinuesPastSaveFailures(t *testing.T) {
	t.Parallel()

	saver := &saverStub{
		createFn: func(_ context.Context, c *models.Comment) error {
			if c.ID == "bad" {
				return errors.New("duplicate key")
			}
			return nil
		},
	}
	svc := NewImportService(saver)

	file := `[
		{"id": "good-1", "url": "/p/", "comment": "x"},
		{"id": "bad", "url": "/p/", "comment": "y"},
		{"id": "good-2", "url": "/p/", "comment": "z"}
	]`
	log, err := svc.Import(context.Background(), Requester{IsAdmin: true}, "json", file)
	require.NoError(t, err)
	assert.Contains(t, log, "save failed")
	assert.Contains(t, log, "imported 2 of 3")
	assert.Len(t, saver.saved, 2)
}

func TestImportCustomAdapter(t *testing.T) {
	t.Parallel()

	saver := &saverStub{}
	svc := NewImportService(saver)
	svc.Register("fixed", adapterFunc(func(context.Context, string) ([]*models.Comment, error) {
		return []*models.Comment{{ID: "fx", URL: "/p/", Body: "from adapter"}}, nil
	}))

	log, err := svc.Import(context.Background(), Requester{IsAdmin: true}, "fixed", "ignored")
	require.NoError(t, err)
	assert.Contains(t, log, "imported 1 of 1")
	require.Len(t, saver.saved, 1)
	assert.Equal(t, "fx", saver.saved[0].ID)
}

type adapterFunc func(ctx context.Context, file string) ([]*models.Comment, error)

func (f adapterFunc) Parse(ctx context.Context, file string) ([]*models.Comment, error) {
	return f(ctx, file)
}
