// Package repository provides data access layer implementations for the application.
package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"parlor/internal/models"
	"parlor/internal/stmtcache"

	"gorm.io/gorm"
)

// Viewer identifies the requester for visibility-filtered reads. A comment is
// visible when it is not marked spam or when the viewer authored it; admin
// views bypass the predicate through AdminSearch/ExportAll instead.
type Viewer struct {
	UID string
}

// TopLevelQuery selects one page of top-level, non-pinned comments.
type TopLevelQuery struct {
	URL string
	// Before is the exclusive cursor on created (epoch ms).
	Before int64
	// Limit is the page size; the query fetches Limit+1 rows so the caller
	// can derive the continuation flag without a count query.
	Limit  int
	Viewer Viewer
}

// AdminQuery selects an offset-based page for admin tooling.
type AdminQuery struct {
	Filter  models.SpamFilter
	Keyword string
	Page    int // 1-based
	Per     int
}

// URLCount is a per-URL comment count row.
type URLCount struct {
	URL   string `json:"url"`
	Count int64  `json:"count"`
}

// CommentRepository defines interface for comment operations
type CommentRepository interface {
	Create(ctx context.Context, comment *models.Comment) error
	GetByID(ctx context.Context, id string) (*models.Comment, error)
	PageTopLevel(ctx context.Context, q TopLevelQuery) ([]*models.Comment, error)
	Pinned(ctx context.Context, url string, v Viewer, limit int) ([]*models.Comment, error)
	RepliesByRoots(ctx context.Context, roots []string, v Viewer) ([]*models.Comment, error)
	CountTopLevel(ctx context.Context, url string, v Viewer) (int64, error)
	AdminSearch(ctx context.Context, q AdminQuery) ([]*models.Comment, int64, error)
	UpdateFields(ctx context.Context, id string, set map[string]any) error
	Delete(ctx context.Context, id string) error
	SetSpam(ctx context.Context, id string, spam bool, updated int64) error
	UpdateLikes(ctx context.Context, id string, likes string) error
	CountSubmissionsSince(ctx context.Context, since int64, ip string) (int64, error)
	CountByURLs(ctx context.Context, urls []string, includeReply bool) ([]URLCount, error)
	Recent(ctx context.Context, urls []string, includeReply bool, limit int) ([]*models.Comment, error)
	ExportAll(ctx context.Context) ([]*models.Comment, error)
}

type commentRepository struct {
	db    *gorm.DB
	stmts *stmtcache.Cache
}

// NewCommentRepository creates a new CommentRepository. The statement cache
// serves the two query families whose shape varies at runtime: the
// reply-batch membership query and the dynamic admin field update.
func NewCommentRepository(db *gorm.DB, stmts *stmtcache.Cache) CommentRepository {
	return &commentRepository{db: db, stmts: stmts}
}

// commentColumns is the fixed select list used by raw statement-cache
// queries. Scan order in scanComment must match.
const commentColumns = "id, uid, nick, mail, mail_hash, link, ip, user_agent, is_owner, " +
	"url, href, pid, rid, body, is_spam, top, likes, avatar, created, updated"

func scanComment(rows *sql.Rows) (*models.Comment, error) {
	var c models.Comment
	if err := rows.Scan(
		&c.ID, &c.UID, &c.Nick, &c.Mail, &c.MailHash, &c.Link, &c.IP, &c.UserAgent, &c.IsOwner,
		&c.URL, &c.Href, &c.PID, &c.RID, &c.Body, &c.IsSpam, &c.Top, &c.Likes, &c.Avatar,
		&c.Created, &c.Updated,
	); err != nil {
		return nil, err
	}
	c.DecodeLikes()
	return &c, nil
}

func decodeAll(comments []*models.Comment) {
	for _, c := range comments {
		c.DecodeLikes()
	}
}

// visible scopes a query to the viewer's visibility predicate.
func visible(v Viewer) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("is_spam = ? OR uid = ?", false, v.UID)
	}
}

func (r *commentRepository) Create(ctx context.Context, comment *models.Comment) error {
	return r.db.WithContext(ctx).Create(comment).Error
}

func (r *commentRepository) GetByID(ctx context.Context, id string) (*models.Comment, error) {
	var comment models.Comment
	if err := r.db.WithContext(ctx).First(&comment, "id = ?", id).Error; err != nil {
		return nil, err
	}
	comment.DecodeLikes()
	return &comment, nil
}

func (r *commentRepository) PageTopLevel(ctx context.Context, q TopLevelQuery) ([]*models.Comment, error) {
	var comments []*models.Comment
	err := r.db.WithContext(ctx).
		Scopes(visible(q.Viewer)).
		Where("url = ? AND rid = ? AND top = ? AND created < ?", q.URL, "", false, q.Before).
		Order("created desc").
		Limit(q.Limit + 1).
		Find(&comments).Error
	if err != nil {
		return nil, err
	}
	decodeAll(comments)
	return comments, nil
}

func (r *commentRepository) Pinned(ctx context.Context, url string, v Viewer, limit int) ([]*models.Comment, error) {
	var comments []*models.Comment
	err := r.db.WithContext(ctx).
		Scopes(visible(v)).
		Where("url = ? AND rid = ? AND top = ?", url, "", true).
		Order("created desc").
		Limit(limit).
		Find(&comments).Error
	if err != nil {
		return nil, err
	}
	decodeAll(comments)
	return comments, nil
}

// RepliesByRoots fetches every visible reply whose thread root is in roots,
// oldest first, through a width-keyed cached statement. Callers must
// short-circuit on an empty roots set.
func (r *commentRepository) RepliesByRoots(ctx context.Context, roots []string, v Viewer) ([]*models.Comment, error) {
	if len(roots) == 0 {
		return nil, fmt.Errorf("replies query requires at least one thread root id")
	}

	n := len(roots)
	stmt, err := r.stmts.Get(ctx, stmtcache.CountKey("replies_in", n), func(d stmtcache.Dialect) string {
		return fmt.Sprintf(
			"SELECT %s FROM comments WHERE rid IN (%s) AND (is_spam = %s OR uid = %s) ORDER BY created ASC",
			commentColumns,
			d.Placeholders(1, n),
			d.Placeholder(n+1),
			d.Placeholder(n+2),
		)
	})
	if err != nil {
		return nil, err
	}

	args := make([]any, 0, n+2)
	for _, root := range roots {
		args = append(args, root)
	}
	args = append(args, false, v.UID)

	rows, err := stmt.QueryContext(ctx, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var comments []*models.Comment
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, err
		}
		comments = append(comments, c)
	}
	return comments, rows.Err()
}

func (r *commentRepository) CountTopLevel(ctx context.Context, url string, v Viewer) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Comment{}).
		Scopes(visible(v)).
		Where("url = ? AND rid = ?", url, "").
		Count(&count).Error
	return count, err
}

func (r *commentRepository) AdminSearch(ctx context.Context, q AdminQuery) ([]*models.Comment, int64, error) {
	base := r.db.WithContext(ctx).Model(&models.Comment{})

	switch q.Filter {
	case models.FilterVisible:
		base = base.Where("is_spam = ?", false)
	case models.FilterHidden:
		base = base.Where("is_spam = ?", true)
	}

	if q.Keyword != "" {
		kw := "%" + strings.ToLower(q.Keyword) + "%"
		base = base.Where(
			"LOWER(nick) LIKE ? OR LOWER(mail) LIKE ? OR LOWER(link) LIKE ? OR LOWER(ip) LIKE ? OR LOWER(body) LIKE ? OR LOWER(url) LIKE ? OR LOWER(href) LIKE ?",
			kw, kw, kw, kw, kw, kw, kw,
		)
	}

	var count int64
	if err := base.Count(&count).Error; err != nil {
		return nil, 0, err
	}

	var comments []*models.Comment
	err := base.
		Order("created desc").
		Limit(q.Per).
		Offset((q.Page - 1) * q.Per).
		Find(&comments).Error
	if err != nil {
		return nil, 0, err
	}
	decodeAll(comments)
	return comments, count, nil
}

// UpdateFields applies an arbitrary subset of columns through a cached
// statement keyed by the lexicographically sorted column set, so the compiled
// SQL and the bound arguments always agree on field order. Column names must
// come from the service-level allow-list, never from client input.
func (r *commentRepository) UpdateFields(ctx context.Context, id string, set map[string]any) error {
	if len(set) == 0 {
		return nil
	}

	cols := make([]string, 0, len(set))
	for col := range set {
		cols = append(cols, col)
	}
	normalized := stmtcache.NormalizeFields(cols)

	stmt, err := r.stmts.Get(ctx, stmtcache.FieldsKey("update_fields", normalized), func(d stmtcache.Dialect) string {
		assigns := make([]string, len(normalized))
		for i, col := range normalized {
			assigns[i] = fmt.Sprintf("%s = %s", col, d.Placeholder(i+1))
		}
		return fmt.Sprintf("UPDATE comments SET %s WHERE id = %s",
			strings.Join(assigns, ", "), d.Placeholder(len(normalized)+1))
	})
	if err != nil {
		return err
	}

	args := make([]any, 0, len(normalized)+1)
	for _, col := range normalized {
		args = append(args, set[col])
	}
	args = append(args, id)

	_, err = stmt.ExecContext(ctx, args...)
	return err
}

func (r *commentRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Delete(&models.Comment{}, "id = ?", id).Error
}

func (r *commentRepository) SetSpam(ctx context.Context, id string, spam bool, updated int64) error {
	return r.db.WithContext(ctx).
		Model(&models.Comment{}).
		Where("id = ?", id).
		Updates(map[string]any{"is_spam": spam, "updated": updated}).Error
}

func (r *commentRepository) UpdateLikes(ctx context.Context, id string, likes string) error {
	return r.db.WithContext(ctx).
		Model(&models.Comment{}).
		Where("id = ?", id).
		Update("likes", likes).Error
}

// CountSubmissionsSince counts comments created after since. An empty ip
// counts submissions from all addresses.
func (r *commentRepository) CountSubmissionsSince(ctx context.Context, since int64, ip string) (int64, error) {
	q := r.db.WithContext(ctx).
		Model(&models.Comment{}).
		Where("created > ?", since)
	if ip != "" {
		q = q.Where("ip = ?", ip)
	}
	var count int64
	err := q.Count(&count).Error
	return count, err
}

func (r *commentRepository) CountByURLs(ctx context.Context, urls []string, includeReply bool) ([]URLCount, error) {
	q := r.db.WithContext(ctx).
		Model(&models.Comment{}).
		Select("url, COUNT(*) as count").
		Where("url IN ? AND is_spam = ?", urls, false)
	if !includeReply {
		q = q.Where("rid = ?", "")
	}
	var counts []URLCount
	err := q.Group("url").Scan(&counts).Error
	return counts, err
}

func (r *commentRepository) Recent(ctx context.Context, urls []string, includeReply bool, limit int) ([]*models.Comment, error) {
	q := r.db.WithContext(ctx).
		Where("is_spam = ?", false)
	if len(urls) > 0 {
		q = q.Where("url IN ?", urls)
	}
	if !includeReply {
		q = q.Where("rid = ?", "")
	}

	var comments []*models.Comment
	if err := q.Order("created desc").Limit(limit).Find(&comments).Error; err != nil {
		return nil, err
	}
	decodeAll(comments)
	return comments, nil
}

func (r *commentRepository) ExportAll(ctx context.Context) ([]*models.Comment, error) {
	var comments []*models.Comment
	if err := r.db.WithContext(ctx).Order("created asc").Find(&comments).Error; err != nil {
		return nil, err
	}
	decodeAll(comments)
	return comments, nil
}
