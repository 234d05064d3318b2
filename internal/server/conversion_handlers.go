package server

import (
	"time"

	"rally/internal/service"

	"github.com/gofiber/fiber/v2"
)

type convertRequest struct {
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	Location     string    `json:"location"`
	StartTime    time.Time `json:"start_time"`
	EndTime      time.Time `json:"end_time"`
	MaxAttendees *int      `json:"max_attendees"`
	IsPaid       bool      `json:"is_paid"`
	PriceCents   int       `json:"price_cents"`
	Currency     string    `json:"currency"`
	// Tags nil keeps the post's tags; an empty list clears them.
	Tags   *[]string `json:"tags"`
	Status string    `json:"status"`
}

// ConvertPost handles POST /api/posts/:id/convert
func (s *Server) ConvertPost(c *fiber.Ctx) error {
	postID, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	var req convertRequest
	if err := parseBody(c, &req); err != nil {
		return nil
	}

	result, err := s.services.Conversions.Convert(c.UserContext(), service.ConvertInput{
		PostID:       postID,
		ActingUserID: currentUserID(c),
		Title:        req.Title,
		Description:  req.Description,
		Location:     req.Location,
		StartTime:    req.StartTime,
		EndTime:      req.EndTime,
		MaxAttendees: req.MaxAttendees,
		IsPaid:       req.IsPaid,
		PriceCents:   req.PriceCents,
		Currency:     req.Currency,
		Tags:         req.Tags,
		Status:       req.Status,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(result)
}

// GetConversion handles GET /api/posts/:id/conversion
func (s *Server) GetConversion(c *fiber.Ctx) error {
	postID, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	record, err := s.services.Conversions.GetConversion(c.UserContext(), postID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(record)
}

// RefreshConversionRate handles POST /api/activities/:id/conversion-rate
func (s *Server) RefreshConversionRate(c *fiber.Ctx) error {
	activityID, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	if err := s.requireHost(c, activityID); err != nil {
		return respondError(c, err)
	}
	record, err := s.services.Conversions.RefreshConversionRate(c.UserContext(), activityID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(record)
}
