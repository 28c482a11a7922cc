package server

import (
	"parlor/internal/models"
	"parlor/internal/service"

	"github.com/gofiber/fiber/v2"
)

func (s *Server) handleCommentGet(c *fiber.Ctx, r service.Requester, resp *models.Response) error {
	var in service.GetInput
	if err := decode(c, &in); err != nil {
		return err
	}
	page, err := s.comments.Get(c.UserContext(), r, in)
	if err != nil {
		return err
	}
	resp.Data = page
	return nil
}

func (s *Server) handleCommentSubmit(c *fiber.Ctx, r service.Requester, resp *models.Response) error {
	var in service.SubmitInput
	if err := decode(c, &in); err != nil {
		return err
	}
	if in.UserAgent == "" {
		in.UserAgent = c.Get(fiber.HeaderUserAgent)
	}
	comment, err := s.comments.Submit(c.UserContext(), r, in)
	if err != nil {
		return err
	}
	resp.Data = fiber.Map{"id": comment.ID}
	return nil
}

func (s *Server) handleCommentLike(c *fiber.Ctx, r service.Requester, resp *models.Response) error {
	var in struct {
		ID string `json:"id"`
	}
	if err := decode(c, &in); err != nil {
		return err
	}
	return s.comments.LikeToggle(c.UserContext(), r, in.ID)
}

func (s *Server) handleCommentsCount(c *fiber.Ctx, _ service.Requester, resp *models.Response) error {
	var in service.CountsInput
	if err := decode(c, &in); err != nil {
		return err
	}
	counts, err := s.comments.Counts(c.UserContext(), in)
	if err != nil {
		return err
	}
	resp.Data = counts
	return nil
}

func (s *Server) handleRecentComments(c *fiber.Ctx, _ service.Requester, resp *models.Response) error {
	var in service.RecentInput
	if err := decode(c, &in); err != nil {
		return err
	}
	comments, err := s.comments.Recent(c.UserContext(), in)
	if err != nil {
		return err
	}
	resp.Data = comments
	return nil
}

func (s *Server) handleCounterGet(c *fiber.Ctx, _ service.Requester, resp *models.Response) error {
	var in struct {
		URL   string `json:"url"`
		Title string `json:"title"`
	}
	if err := decode(c, &in); err != nil {
		return err
	}
	counter, err := s.counters.Hit(c.UserContext(), in.URL, in.Title)
	if err != nil {
		return err
	}
	resp.Data = counter
	return nil
}
