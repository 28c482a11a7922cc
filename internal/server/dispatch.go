package server

import (
	"errors"

	"parlor/internal/models"
	"parlor/internal/observability"
	"parlor/internal/service"

	"github.com/gofiber/fiber/v2"
)

// eventHandler fills in the response envelope for one operation. Handlers
// set resp.Data (and, for the auth operations, resp.AccessToken); the
// dispatcher owns the code/message fields.
type eventHandler func(c *fiber.Ctx, r service.Requester, resp *models.Response) error

func (s *Server) buildDispatchTable() map[string]eventHandler {
	return map[string]eventHandler{
		"COMMENT_GET":              s.handleCommentGet,
		"COMMENT_SUBMIT":           s.handleCommentSubmit,
		"COMMENT_LIKE":             s.handleCommentLike,
		"COMMENT_GET_FOR_ADMIN":    s.handleAdminList,
		"COMMENT_SET_FOR_ADMIN":    s.handleAdminSet,
		"COMMENT_DELETE_FOR_ADMIN": s.handleAdminDelete,
		"COMMENT_IMPORT_FOR_ADMIN": s.handleAdminImport,
		"COMMENT_EXPORT_FOR_ADMIN": s.handleAdminExport,
		"COUNTER_GET":              s.handleCounterGet,
		"GET_COMMENTS_COUNT":       s.handleCommentsCount,
		"GET_RECENT_COMMENTS":      s.handleRecentComments,
		"GET_CONFIG":               s.handleGetConfig,
		"GET_CONFIG_FOR_ADMIN":     s.handleGetConfigForAdmin,
		"SET_CONFIG":               s.handleSetConfig,
		"LOGIN":                    s.handleLogin,
		"SET_PASSWORD":             s.handleSetPassword,
		"GET_PASSWORD_STATUS":      s.handlePasswordStatus,
		"UPLOAD_IMAGE":             s.handleUploadImage,
	}
}

// DispatchEvent is the single widget entry point: it decodes the request
// envelope, resolves the caller's identity, routes on the event name, and
// wraps the result or error in the response envelope. Every outcome is an
// HTTP 200; failures speak through the envelope code.
func (s *Server) DispatchEvent(c *fiber.Ctx) error {
	var env models.RequestEnvelope
	if err := c.BodyParser(&env); err != nil {
		return c.JSON(models.Response{Code: models.CodeFailure, Message: "request body is not valid JSON"})
	}

	ctx := observability.WithEvent(c.UserContext(), env.Event)
	c.SetUserContext(ctx)

	token, issued := s.identity.EnsureToken(env.AccessToken)
	r := service.Requester{
		Token:   token,
		IP:      c.IP(),
		IsAdmin: s.identity.IsAdmin(ctx, token),
	}

	resp := &models.Response{Code: models.CodeOK}
	if issued {
		resp.AccessToken = token
	}

	handler, ok := s.handlers[env.Event]
	var err error
	if !ok {
		err = models.NewUnsupportedEventError(env.Event)
	} else {
		err = handler(c, r, resp)
	}

	outcome := "ok"
	if err != nil {
		outcome = "error"
		resp.Code = models.EnvelopeCode(err)
		resp.Message = userMessage(err)
		resp.Data = nil

		var appErr *models.AppError
		if errors.As(err, &appErr) && appErr.Err != nil {
			observability.Logger.ErrorContext(ctx, "event failed",
				"code", appErr.Code, "error", appErr.Err.Error())
		}
	}
	observability.EventsTotal.WithLabelValues(env.Event, outcome).Inc()

	return c.JSON(resp)
}

// userMessage extracts the client-safe message from an error.
func userMessage(err error) string {
	var appErr *models.AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}

// decode parses the operation-specific fields from the request body.
func decode(c *fiber.Ctx, dest any) error {
	if err := c.BodyParser(dest); err != nil {
		return models.NewValidationError("request body is not valid JSON")
	}
	return nil
}
