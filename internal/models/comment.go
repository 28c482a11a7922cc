// Package models contains data structures for the application's domain models.
package models

import (
	"encoding/json"
)

// Comment represents a single comment or reply on a page.
//
// Timestamps are epoch milliseconds. Created is set once at submission and
// never mutated; Updated changes on moderation or admin edits only.
type Comment struct {
	ID        string `gorm:"primaryKey;size:36" json:"id"`
	UID       string `gorm:"size:64;index" json:"uid"`
	Nick      string `gorm:"size:128" json:"nick"`
	Mail      string `gorm:"size:256" json:"mail"`
	MailHash  string `gorm:"size:64" json:"mailHash"`
	Link      string `gorm:"size:512" json:"link"`
	IP        string `gorm:"size:64" json:"ip"`
	UserAgent string `gorm:"size:512" json:"ua"`
	IsOwner   bool   `json:"isOwner"`

	URL  string `gorm:"size:512;index:idx_comments_url_created" json:"url"`
	Href string `gorm:"size:512" json:"href"`
	// PID is the immediate parent comment id, empty for top-level comments.
	PID string `gorm:"column:pid;size:36" json:"pid"`
	// RID is the thread root (top-level ancestor) id. Empty iff the comment
	// itself is top-level.
	RID string `gorm:"column:rid;size:36;index" json:"rid"`

	Body   string `gorm:"type:text" json:"comment"`
	IsSpam bool   `gorm:"index" json:"isSpam"`
	Top    bool   `json:"top"`

	// Likes is the serialized like set (JSON array of identity tokens).
	Likes string `gorm:"type:text" json:"-"`
	// LikeList is the deserialized like set, populated on every read.
	LikeList []string `gorm:"-" json:"likes"`

	Avatar  string `gorm:"size:512" json:"avatar,omitempty"`
	Created int64  `gorm:"index:idx_comments_url_created" json:"created"`
	Updated int64  `json:"updated"`

	// Replies holds the comment's reply chain on threaded reads.
	Replies []*Comment `gorm:"-" json:"replies,omitempty"`
}

// DecodeLikes populates LikeList from the serialized Likes column.
func (c *Comment) DecodeLikes() {
	c.LikeList = []string{}
	if c.Likes == "" {
		return
	}
	// Tolerate malformed rows rather than failing the whole read.
	_ = json.Unmarshal([]byte(c.Likes), &c.LikeList)
}

// EncodeLikes serializes LikeList back into the Likes column.
func (c *Comment) EncodeLikes() error {
	if c.LikeList == nil {
		c.LikeList = []string{}
	}
	b, err := json.Marshal(c.LikeList)
	if err != nil {
		return err
	}
	c.Likes = string(b)
	return nil
}

// SpamFilter selects which comments an admin listing includes.
type SpamFilter int

const (
	// FilterVisible selects comments not marked spam.
	FilterVisible SpamFilter = iota
	// FilterHidden selects comments marked spam.
	FilterHidden
	// FilterAll selects every comment regardless of spam status.
	FilterAll
)
