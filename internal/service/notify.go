package service

import (
	"context"

	"parlor/internal/models"
	"parlor/internal/observability"
)

// Notifier delivers new-comment notifications: to the site owner for every
// non-spam comment, and to the parent author when the comment is a reply.
// Delivery happens off the request path; failures are logged, never
// surfaced to the submitter.
type Notifier interface {
	NotifyOwner(ctx context.Context, c *models.Comment) error
	NotifyReply(ctx context.Context, c, parent *models.Comment) error
}

// LogNotifier records notifications to the structured log. It stands in
// wherever no mail transport is configured.
type LogNotifier struct{}

func (LogNotifier) NotifyOwner(ctx context.Context, c *models.Comment) error {
	observability.Logger.InfoContext(ctx, "owner notification",
		"comment_id", c.ID,
		"url", c.URL,
		"nick", c.Nick,
	)
	return nil
}

func (LogNotifier) NotifyReply(ctx context.Context, c, parent *models.Comment) error {
	observability.Logger.InfoContext(ctx, "reply notification",
		"comment_id", c.ID,
		"parent_id", parent.ID,
		"parent_mail_hash", parent.MailHash,
	)
	return nil
}
