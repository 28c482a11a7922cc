package server

import (
	"parlor/internal/models"
	"parlor/internal/service"

	"github.com/gofiber/fiber/v2"
)

func (s *Server) handleAdminList(c *fiber.Ctx, r service.Requester, resp *models.Response) error {
	var in service.AdminListInput
	if err := decode(c, &in); err != nil {
		return err
	}
	page, err := s.comments.AdminList(c.UserContext(), r, in)
	if err != nil {
		return err
	}
	resp.Data = page
	return nil
}

func (s *Server) handleAdminSet(c *fiber.Ctx, r service.Requester, resp *models.Response) error {
	var in struct {
		ID  string         `json:"id"`
		Set map[string]any `json:"set"`
	}
	if err := decode(c, &in); err != nil {
		return err
	}
	return s.comments.AdminUpdate(c.UserContext(), r, in.ID, in.Set)
}

func (s *Server) handleAdminDelete(c *fiber.Ctx, r service.Requester, resp *models.Response) error {
	var in struct {
		ID string `json:"id"`
	}
	if err := decode(c, &in); err != nil {
		return err
	}
	return s.comments.AdminDelete(c.UserContext(), r, in.ID)
}

func (s *Server) handleAdminImport(c *fiber.Ctx, r service.Requester, resp *models.Response) error {
	var in struct {
		Source string `json:"source"`
		File   string `json:"file"`
	}
	if err := decode(c, &in); err != nil {
		return err
	}
	log, err := s.importer.Import(c.UserContext(), r, in.Source, in.File)
	if err != nil {
		return err
	}
	resp.Data = fiber.Map{"log": log}
	return nil
}

func (s *Server) handleAdminExport(c *fiber.Ctx, r service.Requester, resp *models.Response) error {
	comments, err := s.comments.Export(c.UserContext(), r)
	if err != nil {
		return err
	}
	resp.Data = fiber.Map{"comments": comments}
	return nil
}
