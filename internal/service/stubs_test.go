package service

import (
	"context"
	"sync"
	"time"

	"parlor/internal/models"
	"parlor/internal/repository"
)

// commentRepoStub is a stub for repository.CommentRepository.
type commentRepoStub struct {
	createFn          func(context.Context, *models.Comment) error
	getByIDFn         func(context.Context, string) (*models.Comment, error)
	pageTopLevelFn    func(context.Context, repository.TopLevelQuery) ([]*models.Comment, error)
	pinnedFn          func(context.Context, string, repository.Viewer, int) ([]*models.Comment, error)
	repliesByRootsFn  func(context.Context, []string, repository.Viewer) ([]*models.Comment, error)
	countTopLevelFn   func(context.Context, string, repository.Viewer) (int64, error)
	adminSearchFn     func(context.Context, repository.AdminQuery) ([]*models.Comment, int64, error)
	updateFieldsFn    func(context.Context, string, map[string]any) error
	deleteFn          func(context.Context, string) error
	setSpamFn         func(context.Context, string, bool, int64) error
	updateLikesFn     func(context.Context, string, string) error
	countSinceFn      func(context.Context, int64, string) (int64, error)
	countByURLsFn     func(context.Context, []string, bool) ([]repository.URLCount, error)
	recentFn          func(context.Context, []string, bool, int) ([]*models.Comment, error)
	exportAllFn       func(context.Context) ([]*models.Comment, error)
}

func (s *commentRepoStub) Create(ctx context.Context, c *models.Comment) error {
	return s.createFn(ctx, c)
}
func (s *commentRepoStub) GetByID(ctx context.Context, id string) (*models.Comment, error) {
	return s.getByIDFn(ctx, id)
}
func (s *commentRepoStub) PageTopLevel(ctx context.Context, q repository.TopLevelQuery) ([]*models.Comment, error) {
	return s.pageTopLevelFn(ctx, q)
}
func (s *commentRepoStub) Pinned(ctx context.Context, url string, v repository.Viewer, limit int) ([]*models.Comment, error) {
	return s.pinnedFn(ctx, url, v, limit)
}
func (s *commentRepoStub) RepliesByRoots(ctx context.Context, roots []string, v repository.Viewer) ([]*models.Comment, error) {
	return s.repliesByRootsFn(ctx, roots, v)
}
func (s *commentRepoStub) CountTopLevel(ctx context.Context, url string, v repository.Viewer) (int64, error) {
	return s.countTopLevelFn(ctx, url, v)
}
func (s *commentRepoStub) AdminSearch(ctx context.Context, q repository.AdminQuery) ([]*models.Comment, int64, error) {
	return s.adminSearchFn(ctx, q)
}
func (s *commentRepoStub) UpdateFields(ctx context.Context, id string, set map[string]any) error {
	return s.updateFieldsFn(ctx, id, set)
}
func (s *commentRepoStub) Delete(ctx context.Context, id string) error {
	return s.deleteFn(ctx, id)
}
func (s *commentRepoStub) SetSpam(ctx context.Context, id string, spam bool, updated int64) error {
	return s.setSpamFn(ctx, id, spam, updated)
}
func (s *commentRepoStub) UpdateLikes(ctx context.Context, id string, likes string) error {
	return s.updateLikesFn(ctx, id, likes)
}
func (s *commentRepoStub) CountSubmissionsSince(ctx context.Context, since int64, ip string) (int64, error) {
	return s.countSinceFn(ctx, since, ip)
}
func (s *commentRepoStub) CountByURLs(ctx context.Context, urls []string, includeReply bool) ([]repository.URLCount, error) {
	return s.countByURLsFn(ctx, urls, includeReply)
}
func (s *commentRepoStub) Recent(ctx context.Context, urls []string, includeReply bool, limit int) ([]*models.Comment, error) {
	return s.recentFn(ctx, urls, includeReply, limit)
}
func (s *commentRepoStub) ExportAll(ctx context.Context) ([]*models.Comment, error) {
	return s.exportAllFn(ctx)
}

func noopCommentRepo() *commentRepoStub {
	return &commentRepoStub{
		createFn:  func(context.Context, *models.Comment) error { return nil },
		getByIDFn: func(context.Context, string) (*models.Comment, error) { return &models.Comment{}, nil },
		pageTopLevelFn: func(context.Context, repository.TopLevelQuery) ([]*models.Comment, error) {
			return nil, nil
		},
		pinnedFn: func(context.Context, string, repository.Viewer, int) ([]*models.Comment, error) {
			return nil, nil
		},
		repliesByRootsFn: func(context.Context, []string, repository.Viewer) ([]*models.Comment, error) {
			return nil, nil
		},
		countTopLevelFn: func(context.Context, string, repository.Viewer) (int64, error) { return 0, nil },
		adminSearchFn: func(context.Context, repository.AdminQuery) ([]*models.Comment, int64, error) {
			return nil, 0, nil
		},
		updateFieldsFn: func(context.Context, string, map[string]any) error { return nil },
		deleteFn:       func(context.Context, string) error { return nil },
		setSpamFn:      func(context.Context, string, bool, int64) error { return nil },
		updateLikesFn:  func(context.Context, string, string) error { return nil },
		countSinceFn:   func(context.Context, int64, string) (int64, error) { return 0, nil },
		countByURLsFn: func(context.Context, []string, bool) ([]repository.URLCount, error) {
			return nil, nil
		},
		recentFn: func(context.Context, []string, bool, int) ([]*models.Comment, error) {
			return nil, nil
		},
		exportAllFn: func(context.Context) ([]*models.Comment, error) { return nil, nil },
	}
}

// memConfigRepo is an in-memory repository.ConfigRepository.
type memConfigRepo struct {
	mu     sync.Mutex
	values map[string]string
	saves  int
}

func newMemConfigRepo(values map[string]string) *memConfigRepo {
	if values == nil {
		values = map[string]string{}
	}
	return &memConfigRepo{values: values}
}

func (r *memConfigRepo) Load(context.Context) (map[string]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]string, len(r.values))
	for k, v := range r.values {
		out[k] = v
	}
	return out, nil
}

func (r *memConfigRepo) Save(_ context.Context, values map[string]string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values = make(map[string]string, len(values))
	for k, v := range values {
		r.values[k] = v
	}
	r.saves++
	return nil
}

func testSettings(values map[string]string) *ConfigService {
	return NewConfigService(newMemConfigRepo(values), nil)
}

// spamStub classifies via a function field, defaulting to "not spam".
type spamStub struct {
	checkFn func(context.Context, *models.Comment) (bool, error)
}

func (s *spamStub) Check(ctx context.Context, c *models.Comment) (bool, error) {
	if s.checkFn == nil {
		return false, nil
	}
	return s.checkFn(ctx, c)
}

// notifierStub records notification calls.
type notifierStub struct {
	mu     sync.Mutex
	owner  []*models.Comment
	replies []*models.Comment
}

func (n *notifierStub) NotifyOwner(_ context.Context, c *models.Comment) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.owner = append(n.owner, c)
	return nil
}

func (n *notifierStub) NotifyReply(_ context.Context, c, _ *models.Comment) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.replies = append(n.replies, c)
	return nil
}

// verifierStub accepts or rejects every challenge.
type verifierStub struct {
	err error
}

func (v *verifierStub) Verify(context.Context, string, string) error { return v.err }

func newTestCommentService(repo repository.CommentRepository, settings *ConfigService) *CommentService {
	svc := NewCommentService(
		repo,
		settings,
		NewRateLimiter(repo, settings),
		&spamStub{},
		&notifierStub{},
		&verifierStub{},
	)
	// Keep background-bound tests fast.
	svc.wait = 50 * time.Millisecond
	return svc
}
