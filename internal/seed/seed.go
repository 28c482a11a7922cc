// Package seed provides database seeding utilities for development and testing.
package seed

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"log"
	"math/rand"
	"strings"
	"time"

	"parlor/internal/models"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Options configuration for the seeder
type Options struct {
	NumPages        int
	CommentsPerPage int
	ShouldClean     bool
}

// Run populates the comment and counter tables with fake pages, threads and
// hit counts.
func Run(db *gorm.DB, opts Options) error {
	if opts.NumPages <= 0 {
		opts.NumPages = 10
	}
	if opts.CommentsPerPage <= 0 {
		opts.CommentsPerPage = 20
	}

	if opts.ShouldClean {
		log.Println("Cleaning existing data...")
		for _, model := range []any{&models.Comment{}, &models.Counter{}} {
			if err := db.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(model).Error; err != nil {
				return fmt.Errorf("cleaning table: %w", err)
			}
		}
	}

	for p := 0; p < opts.NumPages; p++ {
		url := fmt.Sprintf("/posts/%s/", gofakeit.Slogan())
		url = strings.ToLower(strings.ReplaceAll(url, " ", "-"))
		title := gofakeit.Sentence(4)

		if err := seedPage(db, url, opts.CommentsPerPage); err != nil {
			return err
		}

		counter := &models.Counter{
			URL:     url,
			Title:   title,
			Hits:    int64(rand.Intn(5000)),
			Updated: time.Now().UnixMilli(),
		}
		if err := db.Create(counter).Error; err != nil {
			return fmt.Errorf("seeding counter for %s: %w", url, err)
		}
	}

	log.Printf("Seeded %d pages with up to %d comments each", opts.NumPages, opts.CommentsPerPage)
	return nil
}

func seedPage(db *gorm.DB, url string, count int) error {
	base := time.Now().Add(-30 * 24 * time.Hour)
	var roots []*models.Comment

	for i := 0; i < count; i++ {
		c := fakeComment(url, base.Add(time.Duration(i)*time.Hour))

		// Roughly a third of comments reply to an earlier thread.
		if len(roots) > 0 && rand.Intn(3) == 0 {
			root := roots[rand.Intn(len(roots))]
			c.RID = root.ID
			c.PID = root.ID
		} else {
			if rand.Intn(20) == 0 {
				c.Top = true
			}
			roots = append(roots, c)
		}

		if err := db.Create(c).Error; err != nil {
			return fmt.Errorf("seeding comment on %s: %w", url, err)
		}
	}
	return nil
}

func fakeComment(url string, created time.Time) *models.Comment {
	mail := gofakeit.Email()
	sum := md5.Sum([]byte(strings.ToLower(mail)))

	likes := make([]string, rand.Intn(5))
	for i := range likes {
		likes[i] = uuid.NewString()
	}

	c := &models.Comment{
		ID:        uuid.NewString(),
		UID:       uuid.NewString(),
		Nick:      gofakeit.Username(),
		Mail:      mail,
		MailHash:  hex.EncodeToString(sum[:]),
		Link:      gofakeit.URL(),
		IP:        gofakeit.IPv4Address(),
		UserAgent: gofakeit.UserAgent(),
		URL:       url,
		Href:      "https://example.com" + url,
		Body:      "<p>" + gofakeit.Paragraph(1, 3, 10, " ") + "</p>",
		IsSpam:    rand.Intn(25) == 0,
		LikeList:  likes,
		Created:   created.UnixMilli(),
		Updated:   created.UnixMilli(),
	}
	_ = c.EncodeLikes()
	return c
}
