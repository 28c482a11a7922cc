package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"parlor/internal/config"
	"parlor/internal/database"
	"parlor/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestApp(t *testing.T) (*Server, *fiber.App) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	cfg := &config.Config{
		Port:           "0",
		Env:            "test",
		DBDriver:       "sqlite",
		RequestCeiling: 1_000_000,
		UploadDir:      t.TempDir(),
		UploadBaseURL:  "/images",
	}
	srv, err := NewServerWithDeps(cfg, db, nil)
	require.NoError(t, err)
	return srv, srv.App()
}

func postEvent(t *testing.T, app *fiber.App, body any) *models.Response {
	t.Helper()

	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/event", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")

	res, err := app.Test(req, int(10*time.Second/time.Millisecond))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, res.StatusCode)

	var out models.Response
	require.NoError(t, json.NewDecoder(res.Body).Decode(&out))
	return &out
}

func TestDispatchUnsupportedEvent(t *testing.T) {
	_, app := newTestApp(t)

	resp := postEvent(t, app, fiber.Map{"event": "TIME_TRAVEL"})
	assert.Equal(t, models.CodeUnsupported, resp.Code)
	assert.Contains(t, resp.Message, "TIME_TRAVEL")
}

func TestDispatchEchoesIssuedToken(t *testing.T) {
	_, app := newTestApp(t)

	resp := postEvent(t, app, fiber.Map{"event": "GET_CONFIG"})
	assert.Equal(t, models.CodeOK, resp.Code)
	assert.NotEmpty(t, resp.AccessToken)

	// A caller that already has a token gets nothing echoed back.
	resp = postEvent(t, app, fiber.Map{"event": "GET_CONFIG", "accessToken": "mine"})
	assert.Empty(t, resp.AccessToken)
}

func TestDispatchAdminEventsRequireLogin(t *testing.T) {
	_, app := newTestApp(t)

	for _, event := range []string{
		"COMMENT_GET_FOR_ADMIN",
		"COMMENT_SET_FOR_ADMIN",
		"COMMENT_DELETE_FOR_ADMIN",
		"COMMENT_EXPORT_FOR_ADMIN",
		"GET_CONFIG_FOR_ADMIN",
		"SET_CONFIG",
	} {
		resp := postEvent(t, app, fiber.Map{
			"event": event,
			"id":    "x",
			"set":   fiber.Map{"nick": "n"},
		})
		assert.Equalf(t, models.CodeNeedLogin, resp.Code, "event %s", event)
	}
}

func TestPasswordLifecycleOverDispatch(t *testing.T) {
	_, app := newTestApp(t)

	status := postEvent(t, app, fiber.Map{"event": "GET_PASSWORD_STATUS"})
	require.Equal(t, models.CodeOK, status.Code)
	data := status.Data.(map[string]any)
	assert.Equal(t, false, data["status"])

	set := postEvent(t, app, fiber.Map{"event": "SET_PASSWORD", "password": "hunter2"})
	require.Equal(t, models.CodeOK, set.Code)
	adminToken := set.AccessToken
	require.NotEmpty(t, adminToken)

	// Changing the password now requires the admin token.
	denied := postEvent(t, app, fiber.Map{"event": "SET_PASSWORD", "password": "other"})
	assert.Equal(t, models.CodeNeedLogin, denied.Code)

	login := postEvent(t, app, fiber.Map{"event": "LOGIN", "password": "hunter2"})
	require.Equal(t, models.CodeOK, login.Code)
	assert.Equal(t, adminToken, login.AccessToken)

	badLogin := postEvent(t, app, fiber.Map{"event": "LOGIN", "password": "wrong"})
	assert.Equal(t, models.CodeNeedLogin, badLogin.Code)

	admin := postEvent(t, app, fiber.Map{"event": "GET_CONFIG_FOR_ADMIN", "accessToken": adminToken})
	assert.Equal(t, models.CodeOK, admin.Code)
}

func TestSubmitAndReadOverDispatch(t *testing.T) {
	_, app := newTestApp(t)

	submit := postEvent(t, app, fiber.Map{
		"event":   "COMMENT_SUBMIT",
		"url":     "/post/",
		"nick":    "Ada",
		"comment": "hello *there*",
	})
	require.Equal(t, models.CodeOK, submit.Code, submit.Message)
	id := submit.Data.(map[string]any)["id"].(string)
	assert.NotEmpty(t, id)

	page := postEvent(t, app, fiber.Map{"event": "COMMENT_GET", "url": "/post/"})
	require.Equal(t, models.CodeOK, page.Code, page.Message)
	payload := page.Data.(map[string]any)
	comments := payload["comments"].([]any)
	require.Len(t, comments, 1)
	first := comments[0].(map[string]any)
	assert.Equal(t, id, first["id"])
	assert.Contains(t, first["comment"], "<em>there</em>")
	assert.Equal(t, float64(1), payload["count"])
	assert.Equal(t, false, payload["more"])
}

func TestHiddenCommentInvisibleToOthersOverDispatch(t *testing.T) {
	srv, app := newTestApp(t)

	submit := postEvent(t, app, fiber.Map{
		"event":       "COMMENT_SUBMIT",
		"url":         "/post/",
		"comment":     "borderline",
		"accessToken": "author-token",
	})
	require.Equal(t, models.CodeOK, submit.Code)
	id := submit.Data.(map[string]any)["id"].(string)

	// Moderation hides it out of band.
	require.NoError(t, srv.commentRepo.SetSpam(context.Background(), id, true, time.Now().UnixMilli()))

	authorPage := postEvent(t, app, fiber.Map{
		"event": "COMMENT_GET", "url": "/post/", "accessToken": "author-token",
	})
	authorComments := authorPage.Data.(map[string]any)["comments"].([]any)
	assert.Len(t, authorComments, 1)

	strangerPage := postEvent(t, app, fiber.Map{
		"event": "COMMENT_GET", "url": "/post/", "accessToken": "stranger-token",
	})
	strangerComments := strangerPage.Data.(map[string]any)["comments"].([]any)
	assert.Empty(t, strangerComments)
}

func TestLikeToggleOverDispatch(t *testing.T) {
	_, app := newTestApp(t)

	submit := postEvent(t, app, fiber.Map{
		"event": "COMMENT_SUBMIT", "url": "/post/", "comment": "likeable",
	})
	require.Equal(t, models.CodeOK, submit.Code)
	id := submit.Data.(map[string]any)["id"].(string)

	like := postEvent(t, app, fiber.Map{"event": "COMMENT_LIKE", "id": id, "accessToken": "fan"})
	require.Equal(t, models.CodeOK, like.Code)

	page := postEvent(t, app, fiber.Map{"event": "COMMENT_GET", "url": "/post/"})
	first := page.Data.(map[string]any)["comments"].([]any)[0].(map[string]any)
	likes := first["likes"].([]any)
	require.Len(t, likes, 1)
	assert.Equal(t, "fan", likes[0])

	// Toggling again empties the set.
	postEvent(t, app, fiber.Map{"event": "COMMENT_LIKE", "id": id, "accessToken": "fan"})
	page = postEvent(t, app, fiber.Map{"event": "COMMENT_GET", "url": "/post/"})
	first = page.Data.(map[string]any)["comments"].([]any)[0].(map[string]any)
	assert.Empty(t, first["likes"])
}

func TestCounterOverDispatch(t *testing.T) {
	_, app := newTestApp(t)

	for i := 1; i <= 3; i++ {
		resp := postEvent(t, app, fiber.Map{"event": "COUNTER_GET", "url": "/post/", "title": "Post"})
		require.Equal(t, models.CodeOK, resp.Code)
		hits := resp.Data.(map[string]any)["time"].(float64)
		assert.Equal(t, float64(i), hits)
	}
}

func TestImportExportRoundTrip(t *testing.T) {
	_, app := newTestApp(t)

	set := postEvent(t, app, fiber.Map{"event": "SET_PASSWORD", "password": "pw"})
	adminToken := set.AccessToken
	require.NotEmpty(t, adminToken)

	records := []fiber.Map{
		{"id": "imp-1", "url": "/old/", "comment": "migrated", "nick": "Old Timer", "created": 1000},
		{"id": "imp-2", "url": "/old/", "comment": "also migrated", "created": 2000},
	}
	raw, err := json.Marshal(records)
	require.NoError(t, err)

	imp := postEvent(t, app, fiber.Map{
		"event":       "COMMENT_IMPORT_FOR_ADMIN",
		"accessToken": adminToken,
		"source":      "json",
		"file":        string(raw),
	})
	require.Equal(t, models.CodeOK, imp.Code, imp.Message)
	assert.Contains(t, imp.Data.(map[string]any)["log"], "imported 2 of 2")

	exp := postEvent(t, app, fiber.Map{
		"event":       "COMMENT_EXPORT_FOR_ADMIN",
		"accessToken": adminToken,
	})
	require.Equal(t, models.CodeOK, exp.Code)
	exported := exp.Data.(map[string]any)["comments"].([]any)
	assert.Len(t, exported, 2)

	unknown := postEvent(t, app, fiber.Map{
		"event":       "COMMENT_IMPORT_FOR_ADMIN",
		"accessToken": adminToken,
		"source":      "carrier-pigeon",
		"file":        "x",
	})
	assert.Equal(t, models.CodeFailure, unknown.Code)
}

func TestRootAliasDispatches(t *testing.T) {
	_, app := newTestApp(t)

	raw := []byte(`{"event":"GET_CONFIG"}`)
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	res, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.StatusCode)
}

func TestAdminSetOverDispatch(t *testing.T) {
	_, app := newTestApp(t)

	set := postEvent(t, app, fiber.Map{"event": "SET_PASSWORD", "password": "pw"})
	adminToken := set.AccessToken

	submit := postEvent(t, app, fiber.Map{"event": "COMMENT_SUBMIT", "url": "/post/", "comment": "original"})
	id := submit.Data.(map[string]any)["id"].(string)

	update := postEvent(t, app, fiber.Map{
		"event":       "COMMENT_SET_FOR_ADMIN",
		"accessToken": adminToken,
		"id":          id,
		"set":         fiber.Map{"nick": "Renamed", "top": true},
	})
	require.Equal(t, models.CodeOK, update.Code, update.Message)

	list := postEvent(t, app, fiber.Map{
		"event":       "COMMENT_GET_FOR_ADMIN",
		"accessToken": adminToken,
		"per":         10,
		"page":        1,
	})
	require.Equal(t, models.CodeOK, list.Code)
	rows := list.Data.(map[string]any)["comments"].([]any)
	require.Len(t, rows, 1)
	row := rows[0].(map[string]any)
	assert.Equal(t, "Renamed", row["nick"])
	assert.Equal(t, true, row["top"])

	del := postEvent(t, app, fiber.Map{
		"event":       "COMMENT_DELETE_FOR_ADMIN",
		"accessToken": adminToken,
		"id":          id,
	})
	require.Equal(t, models.CodeOK, del.Code)

	page := postEvent(t, app, fiber.Map{"event": "COMMENT_GET", "url": "/post/"})
	assert.Empty(t, page.Data.(map[string]any)["comments"])
}

func TestPaginationMonotonicCursorOverDispatch(t *testing.T) {
	srv, app := newTestApp(t)

	// Seed 5 top-level comments with distinct timestamps, page size 2.
	for i := 0; i < 5; i++ {
		resp := postEvent(t, app, fiber.Map{
			"event":   "COMMENT_SUBMIT",
			"url":     "/post/",
			"comment": fmt.Sprintf("comment %d", i),
		})
		require.Equal(t, models.CodeOK, resp.Code)
		id := resp.Data.(map[string]any)["id"].(string)
		require.NoError(t, srv.commentRepo.UpdateFields(context.Background(), id, map[string]any{"created": int64(1000 + i)}))
	}
	adminToken := postEvent(t, app, fiber.Map{"event": "SET_PASSWORD", "password": "pw"}).AccessToken
	cfgResp := postEvent(t, app, fiber.Map{
		"event":       "SET_CONFIG",
		"accessToken": adminToken,
		"config":      fiber.Map{"commentPageSize": "2"},
	})
	require.Equal(t, models.CodeOK, cfgResp.Code)

	var seen []string
	before := float64(0)
	for pages := 0; pages < 5; pages++ {
		payload := fiber.Map{"event": "COMMENT_GET", "url": "/post/"}
		if before > 0 {
			payload["before"] = before
		}
		resp := postEvent(t, app, payload)
		require.Equal(t, models.CodeOK, resp.Code)
		data := resp.Data.(map[string]any)
		comments := data["comments"].([]any)
		if len(comments) == 0 {
			break
		}
		for _, c := range comments {
			row := c.(map[string]any)
			seen = append(seen, row["id"].(string))
			before = row["created"].(float64)
		}
		if data["more"] == false {
			break
		}
	}

	// No duplicates, no gaps: all 5 comments paged through exactly once.
	assert.Len(t, seen, 5)
	unique := map[string]struct{}{}
	for _, id := range seen {
		unique[id] = struct{}{}
	}
	assert.Len(t, unique, 5)
}
