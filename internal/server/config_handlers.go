package server

import (
	"parlor/internal/models"
	"parlor/internal/service"

	"github.com/gofiber/fiber/v2"
)

func (s *Server) handleGetConfig(c *fiber.Ctx, _ service.Requester, resp *models.Response) error {
	view, err := s.settings.PublicView(c.UserContext())
	if err != nil {
		return models.NewInternalError(err)
	}
	resp.Data = view
	return nil
}

func (s *Server) handleGetConfigForAdmin(c *fiber.Ctx, r service.Requester, resp *models.Response) error {
	if !r.IsAdmin {
		return models.NewUnauthorizedError("admin access required")
	}
	view, err := s.settings.AdminView(c.UserContext())
	if err != nil {
		return models.NewInternalError(err)
	}
	resp.Data = view
	return nil
}

func (s *Server) handleSetConfig(c *fiber.Ctx, r service.Requester, resp *models.Response) error {
	if !r.IsAdmin {
		return models.NewUnauthorizedError("admin access required")
	}
	var in struct {
		Config map[string]string `json:"config"`
	}
	if err := decode(c, &in); err != nil {
		return err
	}
	// The password hash moves only through SET_PASSWORD.
	delete(in.Config, service.KeyAdminPassHash)
	if err := s.settings.Merge(c.UserContext(), in.Config); err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (s *Server) handleUploadImage(c *fiber.Ctx, r service.Requester, resp *models.Response) error {
	var in struct {
		Photo string `json:"photo"`
	}
	if err := decode(c, &in); err != nil {
		return err
	}
	link, err := s.images.Upload(c.UserContext(), r, in.Photo)
	if err != nil {
		return err
	}
	resp.Data = fiber.Map{"url": link}
	return nil
}
