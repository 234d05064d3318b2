package server

import (
	"time"

	"rally/internal/models"
	"rally/internal/service"

	"github.com/gofiber/fiber/v2"
)

// CreatePost handles POST /api/posts
func (s *Server) CreatePost(c *fiber.Ctx) error {
	var req struct {
		Title       string    `json:"title"`
		Description string    `json:"description"`
		Location    string    `json:"location"`
		ExpiresAt   time.Time `json:"expires_at"`
		Tags        []string  `json:"tags"`
	}
	if err := parseBody(c, &req); err != nil {
		return nil
	}

	post, err := s.services.Posts.CreatePost(c.UserContext(), service.CreatePostInput{
		UserID:      currentUserID(c),
		Title:       req.Title,
		Description: req.Description,
		Location:    req.Location,
		ExpiresAt:   req.ExpiresAt,
		Tags:        req.Tags,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(post)
}

// GetPost handles GET /api/posts/:id
func (s *Server) GetPost(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	post, err := s.services.Posts.GetPost(c.UserContext(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(post)
}

// ToggleReaction handles POST /api/posts/:id/reactions. Sending the type the
// user already holds removes it; a different type replaces it.
func (s *Server) ToggleReaction(c *fiber.Ctx) error {
	postID, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	var req struct {
		Type string `json:"type"`
	}
	if err := parseBody(c, &req); err != nil {
		return nil
	}
	if req.Type == "" {
		req.Type = models.ReactionInterested
	}

	result, err := s.services.Reactions.ToggleReaction(c.UserContext(), service.ToggleReactionInput{
		PostID: postID,
		UserID: currentUserID(c),
		Type:   req.Type,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(result)
}

// CheckConversionPrompt handles POST /api/posts/:id/conversion-prompt
func (s *Server) CheckConversionPrompt(c *fiber.Ctx) error {
	postID, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	result, err := s.services.Gate.CheckAndPrompt(c.UserContext(), postID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(result)
}

// DismissConversionPrompt handles POST /api/posts/:id/conversion-prompt/dismiss
func (s *Server) DismissConversionPrompt(c *fiber.Ctx) error {
	postID, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	post, err := s.services.Gate.Dismiss(c.UserContext(), postID, currentUserID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(post)
}
