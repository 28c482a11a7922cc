package server

import (
	"parlor/internal/models"
	"parlor/internal/service"

	"github.com/gofiber/fiber/v2"
)

func (s *Server) handleLogin(c *fiber.Ctx, _ service.Requester, resp *models.Response) error {
	var in struct {
		Password string `json:"password"`
	}
	if err := decode(c, &in); err != nil {
		return err
	}
	if in.Password == "" {
		return models.NewValidationError("password is required")
	}

	token, err := s.identity.Login(c.UserContext(), in.Password)
	if err != nil {
		return models.NewInternalError(err)
	}
	if token == "" {
		return models.NewUnauthorizedError("password is wrong or not yet configured")
	}
	resp.AccessToken = token
	return nil
}

func (s *Server) handleSetPassword(c *fiber.Ctx, r service.Requester, resp *models.Response) error {
	var in struct {
		Password string `json:"password"`
	}
	if err := decode(c, &in); err != nil {
		return err
	}
	if in.Password == "" {
		return models.NewValidationError("password is required")
	}

	configured, err := s.identity.PasswordConfigured(c.UserContext())
	if err != nil {
		return models.NewInternalError(err)
	}
	// First run sets the password freely; changing it afterwards requires an
	// admin session.
	if configured && !r.IsAdmin {
		return models.NewUnauthorizedError("log in before changing the password")
	}

	token, err := s.identity.SetPassword(c.UserContext(), in.Password)
	if err != nil {
		return models.NewInternalError(err)
	}
	resp.AccessToken = token
	return nil
}

func (s *Server) handlePasswordStatus(c *fiber.Ctx, r service.Requester, resp *models.Response) error {
	configured, err := s.identity.PasswordConfigured(c.UserContext())
	if err != nil {
		return models.NewInternalError(err)
	}
	resp.Data = fiber.Map{"status": configured, "isAdmin": r.IsAdmin}
	return nil
}
