package service

import (
	"context"
	"regexp"
	"strings"

	"parlor/internal/models"
)

// SpamChecker classifies a comment before and after persistence. Pre-check
// runs synchronously inside the submission path; Recheck runs in the
// background and may flip the flag after the comment is stored.
type SpamChecker interface {
	Check(ctx context.Context, c *models.Comment) (bool, error)
}

var linkPattern = regexp.MustCompile(`https?://`)

// maxBodyLinks is the number of links tolerated before a comment is treated
// as link spam.
const maxBodyLinks = 6

// WordListChecker flags comments containing any configured forbidden word
// or an excessive number of links. Words are read from the config store on
// every check so admin edits take effect without a restart.
type WordListChecker struct {
	settings *ConfigService
}

// NewWordListChecker creates the default heuristic checker.
func NewWordListChecker(settings *ConfigService) *WordListChecker {
	return &WordListChecker{settings: settings}
}

func (w *WordListChecker) Check(ctx context.Context, c *models.Comment) (bool, error) {
	if len(linkPattern.FindAllStringIndex(c.Body, maxBodyLinks+1)) > maxBodyLinks {
		return true, nil
	}
	raw, err := w.settings.Get(ctx, KeyForbiddenWords)
	if err != nil {
		return false, err
	}
	if raw == "" {
		return false, nil
	}
	haystack := strings.ToLower(c.Nick + " " + c.Mail + " " + c.Link + " " + c.Body)
	for _, word := range strings.Split(raw, ",") {
		word = strings.ToLower(strings.TrimSpace(word))
		if word != "" && strings.Contains(haystack, word) {
			return true, nil
		}
	}
	return false, nil
}
