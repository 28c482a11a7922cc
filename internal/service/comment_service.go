package service

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"parlor/internal/models"
	"parlor/internal/observability"
	"parlor/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	defaultPageSize = 8
	// pinnedCeiling bounds the pinned block prepended to an uncursored first
	// page regardless of the configured page size.
	pinnedCeiling = 50
	// farFuture is the sentinel cursor meaning "from the newest".
	farFuture = int64(1) << 60
	// backgroundWait bounds how long a submission response waits on the
	// post-persist classification pass. The pass itself is never cancelled.
	backgroundWait = 5 * time.Second

	maxRecentPageSize = 100
)

// Requester identifies the caller of a comment operation.
type Requester struct {
	Token   string
	IP      string
	IsAdmin bool
}

// SubmitInput carries the client-supplied fields of a submission.
type SubmitInput struct {
	URL       string `json:"url"`
	Href      string `json:"href"`
	Nick      string `json:"nick"`
	Mail      string `json:"mail"`
	Link      string `json:"link"`
	Body      string `json:"comment"`
	PID       string `json:"pid"`
	RID       string `json:"rid"`
	UserAgent string `json:"ua"`
	Challenge string `json:"challenge"`
}

// GetInput selects one page of a URL's comment stream.
type GetInput struct {
	URL    string `json:"url"`
	Before int64  `json:"before"`
}

// CommentService implements the comment engine: threaded paginated reads,
// the submission pipeline, moderation, likes, import and export.
type CommentService struct {
	comments repository.CommentRepository
	settings *ConfigService
	limiter  *RateLimiter
	spam     SpamChecker
	notifier Notifier
	verifier ChallengeVerifier

	now func() time.Time
	// idGen is swappable for deterministic tests.
	idGen func() string
	// wait bounds the response-side wait on background work.
	wait time.Duration
}

// NewCommentService wires the comment engine and its collaborators.
func NewCommentService(
	comments repository.CommentRepository,
	settings *ConfigService,
	limiter *RateLimiter,
	spam SpamChecker,
	notifier Notifier,
	verifier ChallengeVerifier,
) *CommentService {
	return &CommentService{
		comments: comments,
		settings: settings,
		limiter:  limiter,
		spam:     spam,
		notifier: notifier,
		verifier: verifier,
		now:      time.Now,
		idGen:    uuid.NewString,
		wait:     backgroundWait,
	}
}

func (s *CommentService) viewer(r Requester) repository.Viewer {
	return repository.Viewer{UID: r.Token}
}

// Get returns one page of a URL's comment threads. An absent cursor selects
// the newest page and merges the pinned block in front of it; pinned
// comments never count toward the continuation flag.
func (s *CommentService) Get(ctx context.Context, r Requester, in GetInput) (*models.CommentPage, error) {
	if in.URL == "" {
		return nil, models.NewValidationError("url is required")
	}

	limit := s.settings.GetInt(ctx, KeyCommentPageSize, defaultPageSize)
	if limit <= 0 {
		limit = defaultPageSize
	}

	before := in.Before
	firstPage := before <= 0
	if firstPage {
		before = farFuture
	}
	v := s.viewer(r)

	page, err := s.comments.PageTopLevel(ctx, repository.TopLevelQuery{
		URL:    in.URL,
		Before: before,
		Limit:  limit,
		Viewer: v,
	})
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	more := len(page) > limit
	if more {
		page = page[:limit]
	}

	var roots []*models.Comment
	if firstPage {
		pinned, err := s.comments.Pinned(ctx, in.URL, v, pinnedCeiling)
		if err != nil {
			return nil, models.NewInternalError(err)
		}
		roots = append(pinned, page...)
	} else {
		roots = page
	}

	if err := s.attachReplies(ctx, v, roots); err != nil {
		return nil, models.NewInternalError(err)
	}

	count, err := s.comments.CountTopLevel(ctx, in.URL, v)
	if err != nil {
		return nil, models.NewInternalError(err)
	}

	if roots == nil {
		roots = []*models.Comment{}
	}
	return &models.CommentPage{Comments: roots, Count: count, More: more}, nil
}

// attachReplies batch-fetches every reply whose thread root is on this page
// and maps them under their roots, oldest first. A page with no roots issues
// no query at all.
func (s *CommentService) attachReplies(ctx context.Context, v repository.Viewer, roots []*models.Comment) error {
	if len(roots) == 0 {
		return nil
	}
	ids := make([]string, len(roots))
	byID := make(map[string]*models.Comment, len(roots))
	for i, c := range roots {
		ids[i] = c.ID
		byID[c.ID] = c
		c.Replies = []*models.Comment{}
	}
	replies, err := s.comments.RepliesByRoots(ctx, ids, v)
	if err != nil {
		return err
	}
	for _, reply := range replies {
		if root, ok := byID[reply.RID]; ok {
			root.Replies = append(root.Replies, reply)
		}
	}
	return nil
}

// Submit runs the submission pipeline: validate, rate-limit, challenge,
// build, persist, respond, then classify and notify in the background.
func (s *CommentService) Submit(ctx context.Context, r Requester, in SubmitInput) (*models.Comment, error) {
	if in.URL == "" || strings.TrimSpace(in.Body) == "" {
		return nil, models.NewValidationError("url and comment are required")
	}

	if err := s.limiter.Check(ctx, r.IP); err != nil {
		return nil, err
	}
	if err := s.verifier.Verify(ctx, in.Challenge, r.IP); err != nil {
		return nil, err
	}

	c, err := s.buildComment(ctx, r, in)
	if err != nil {
		return nil, err
	}

	spam, err := s.spam.Check(ctx, c)
	if err != nil {
		observability.Logger.WarnContext(ctx, "spam pre-check failed", "error", err)
	}
	c.IsSpam = spam

	if err := s.comments.Create(ctx, c); err != nil {
		return nil, models.NewInternalError(err)
	}
	observability.SubmissionsTotal.Inc()

	s.afterSubmit(ctx, c)
	return c, nil
}

func (s *CommentService) buildComment(ctx context.Context, r Requester, in SubmitInput) (*models.Comment, error) {
	now := s.now().UnixMilli()
	c := &models.Comment{
		ID:        s.idGen(),
		UID:       r.Token,
		Nick:      strings.TrimSpace(in.Nick),
		Mail:      strings.TrimSpace(in.Mail),
		Link:      strings.TrimSpace(in.Link),
		IP:        r.IP,
		UserAgent: in.UserAgent,
		URL:       in.URL,
		Href:      in.Href,
		Body:      RenderBody(in.Body),
		Likes:     "[]",
		LikeList:  []string{},
		Created:   now,
		Updated:   now,
	}
	if c.Nick == "" {
		c.Nick = "Anonymous"
	}
	if c.Mail != "" {
		sum := md5.Sum([]byte(strings.ToLower(c.Mail)))
		c.MailHash = hex.EncodeToString(sum[:])
	}

	if owner, err := s.settings.Get(ctx, KeyOwnerEmail); err == nil && owner != "" {
		c.IsOwner = r.IsAdmin && strings.EqualFold(c.Mail, owner)
	}

	if in.PID != "" {
		parent, err := s.comments.GetByID(ctx, in.PID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, models.NewValidationError("parent comment does not exist")
			}
			return nil, models.NewInternalError(err)
		}
		c.PID = parent.ID
		// The thread root is the parent itself when the parent is top-level,
		// otherwise the parent's root.
		if parent.RID == "" {
			c.RID = parent.ID
		} else {
			c.RID = parent.RID
		}
		if in.RID != "" && in.RID != c.RID {
			return nil, models.NewValidationError("rid does not match the parent's thread")
		}
	} else if in.RID != "" {
		return nil, models.NewValidationError("rid requires a pid")
	}
	return c, nil
}

// afterSubmit runs final classification and notification detached from the
// request, waiting at most s.wait before letting the response go out. The
// work itself runs to completion either way; its outcome is only logged.
func (s *CommentService) afterSubmit(ctx context.Context, c *models.Comment) {
	fields := map[string]interface{}{"comment_id": c.ID, "url": c.URL}
	done := make(chan struct{})

	go func() {
		defer close(done)
		bg := context.WithoutCancel(ctx)
		observability.LogAsyncOperationStart(bg, "post_submit", fields)

		spam, err := s.spam.Check(bg, c)
		if err != nil {
			observability.LogAsyncOperationError(bg, "post_submit", err, fields)
		} else if spam != c.IsSpam {
			if err := s.comments.SetSpam(bg, c.ID, spam, s.now().UnixMilli()); err != nil {
				observability.LogAsyncOperationError(bg, "post_submit", err, fields)
			} else {
				c.IsSpam = spam
				observability.SpamFlipsTotal.Inc()
			}
		}

		if !c.IsSpam {
			if err := s.notifier.NotifyOwner(bg, c); err != nil {
				observability.LogAsyncOperationError(bg, "notify_owner", err, fields)
			}
			if c.PID != "" {
				if parent, err := s.comments.GetByID(bg, c.PID); err == nil {
					if err := s.notifier.NotifyReply(bg, c, parent); err != nil {
						observability.LogAsyncOperationError(bg, "notify_reply", err, fields)
					}
				}
			}
		}
		observability.LogAsyncOperationEnd(bg, "post_submit", fields)
	}()

	select {
	case <-done:
	case <-time.After(s.wait):
		observability.Logger.InfoContext(ctx, "post-submit work still running, responding early", "comment_id", c.ID)
	}
}

// LikeToggle flips the caller's membership in a comment's like set. The
// read-modify-write is not transactional; concurrent toggles from one
// identity may interleave.
func (s *CommentService) LikeToggle(ctx context.Context, r Requester, id string) error {
	if id == "" {
		return models.NewValidationError("id is required")
	}
	c, err := s.comments.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.NewNotFoundError("comment", id)
		}
		return models.NewInternalError(err)
	}

	found := false
	next := make([]string, 0, len(c.LikeList))
	for _, uid := range c.LikeList {
		if uid == r.Token {
			found = true
			continue
		}
		next = append(next, uid)
	}
	if !found {
		next = append(next, r.Token)
	}
	c.LikeList = next
	if err := c.EncodeLikes(); err != nil {
		return models.NewInternalError(err)
	}
	if err := s.comments.UpdateLikes(ctx, id, c.Likes); err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

// AdminListInput is the admin search request.
type AdminListInput struct {
	Per     int    `json:"per"`
	Page    int    `json:"page"`
	Type    string `json:"type"`
	Keyword string `json:"keyword"`
}

// AdminList searches all comments, spam included, bypassing the viewer
// visibility predicate.
func (s *CommentService) AdminList(ctx context.Context, r Requester, in AdminListInput) (*models.AdminCommentPage, error) {
	if !r.IsAdmin {
		return nil, models.NewUnauthorizedError("admin access required")
	}
	if in.Per <= 0 {
		in.Per = 10
	}
	if in.Page <= 0 {
		in.Page = 1
	}
	filter := models.FilterAll
	switch in.Type {
	case "VISIBLE":
		filter = models.FilterVisible
	case "HIDDEN":
		filter = models.FilterHidden
	}

	comments, count, err := s.comments.AdminSearch(ctx, repository.AdminQuery{
		Filter:  filter,
		Keyword: in.Keyword,
		Page:    in.Page,
		Per:     in.Per,
	})
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	if comments == nil {
		comments = []*models.Comment{}
	}
	return &models.AdminCommentPage{Comments: comments, Count: count, Page: in.Page, Per: in.Per}, nil
}

// mutableFields maps client-facing field names to their columns. Anything
// outside this table is rejected before any SQL is built.
var mutableFields = map[string]string{
	"nick":    "nick",
	"mail":    "mail",
	"link":    "link",
	"comment": "body",
	"isSpam":  "is_spam",
	"top":     "top",
	"avatar":  "avatar",
}

// AdminUpdate applies an allow-listed subset of fields to one comment.
func (s *CommentService) AdminUpdate(ctx context.Context, r Requester, id string, set map[string]any) error {
	if !r.IsAdmin {
		return models.NewUnauthorizedError("admin access required")
	}
	if id == "" {
		return models.NewValidationError("id is required")
	}
	if len(set) == 0 {
		return models.NewValidationError("set must not be empty")
	}

	columns := make(map[string]any, len(set)+1)
	for field, value := range set {
		col, ok := mutableFields[field]
		if !ok {
			return models.NewValidationError("field cannot be updated: " + field)
		}
		if col == "body" {
			str, ok := value.(string)
			if !ok {
				return models.NewValidationError("comment must be a string")
			}
			value = RenderBody(str)
		}
		columns[col] = value
	}
	columns["updated"] = s.now().UnixMilli()

	if err := s.comments.UpdateFields(ctx, id, columns); err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

// AdminDelete removes one comment by id.
func (s *CommentService) AdminDelete(ctx context.Context, r Requester, id string) error {
	if !r.IsAdmin {
		return models.NewUnauthorizedError("admin access required")
	}
	if id == "" {
		return models.NewValidationError("id is required")
	}
	if err := s.comments.Delete(ctx, id); err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

// Export dumps every comment, spam included, oldest first.
func (s *CommentService) Export(ctx context.Context, r Requester) ([]*models.Comment, error) {
	if !r.IsAdmin {
		return nil, models.NewUnauthorizedError("admin access required")
	}
	comments, err := s.comments.ExportAll(ctx)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	if comments == nil {
		comments = []*models.Comment{}
	}
	return comments, nil
}

// CountsInput selects per-URL comment counts.
type CountsInput struct {
	URLs         []string `json:"urls"`
	IncludeReply bool     `json:"includeReply"`
}

// Counts returns visible comment counts for a set of URLs. URLs with no
// comments are reported explicitly with a zero count.
func (s *CommentService) Counts(ctx context.Context, in CountsInput) ([]repository.URLCount, error) {
	if len(in.URLs) == 0 {
		return nil, models.NewValidationError("urls is required")
	}
	counts, err := s.comments.CountByURLs(ctx, in.URLs, in.IncludeReply)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	byURL := make(map[string]int64, len(counts))
	for _, c := range counts {
		byURL[c.URL] = c.Count
	}
	out := make([]repository.URLCount, len(in.URLs))
	for i, url := range in.URLs {
		out[i] = repository.URLCount{URL: url, Count: byURL[url]}
	}
	return out, nil
}

// RecentInput selects the newest visible comments across URLs.
type RecentInput struct {
	URLs         []string `json:"urls"`
	IncludeReply bool     `json:"includeReply"`
	PageSize     int      `json:"pageSize"`
}

// Recent returns the newest visible comments, optionally scoped to URLs.
func (s *CommentService) Recent(ctx context.Context, in RecentInput) ([]*models.Comment, error) {
	limit := in.PageSize
	if limit <= 0 {
		limit = 10
	}
	if limit > maxRecentPageSize {
		limit = maxRecentPageSize
	}
	comments, err := s.comments.Recent(ctx, in.URLs, in.IncludeReply, limit)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	if comments == nil {
		comments = []*models.Comment{}
	}
	return comments, nil
}
