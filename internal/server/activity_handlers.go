package server

import (
	"time"

	"rally/internal/models"
	"rally/internal/service"

	"github.com/gofiber/fiber/v2"
)

// CreateActivity handles POST /api/activities
func (s *Server) CreateActivity(c *fiber.Ctx) error {
	var req struct {
		Title        string    `json:"title"`
		Description  string    `json:"description"`
		Location     string    `json:"location"`
		StartTime    time.Time `json:"start_time"`
		EndTime      time.Time `json:"end_time"`
		MaxAttendees *int      `json:"max_attendees"`
		IsPaid       bool      `json:"is_paid"`
		PriceCents   int       `json:"price_cents"`
		Currency     string    `json:"currency"`
		Tags         []string  `json:"tags"`
		Status       string    `json:"status"`
	}
	if err := parseBody(c, &req); err != nil {
		return nil
	}

	activity, err := s.services.Activities.CreateActivity(c.UserContext(), service.CreateActivityInput{
		HostID:       currentUserID(c),
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
	return c.Status(fiber.StatusCreated).JSON(activity)
}

// GetActivity handles GET /api/activities/:id
func (s *Server) GetActivity(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	activity, err := s.services.Activities.GetActivity(c.UserContext(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(activity)
}

// UpdateActivityStatus handles PUT /api/activities/:id/status
func (s *Server) UpdateActivityStatus(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	var req struct {
		Status string `json:"status"`
	}
	if err := parseBody(c, &req); err != nil {
		return nil
	}
	activity, err := s.services.Activities.UpdateStatus(c.UserContext(), id, currentUserID(c), req.Status)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(activity)
}

// UpdateActivityCapacity handles PUT /api/activities/:id/capacity. A null
// max_attendees removes the cap.
func (s *Server) UpdateActivityCapacity(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	var req struct {
		MaxAttendees *int `json:"max_attendees"`
	}
	if err := parseBody(c, &req); err != nil {
		return nil
	}
	activity, promoted, err := s.services.Activities.UpdateCapacity(c.UserContext(), id, currentUserID(c), req.MaxAttendees)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"activity": activity,
		"promoted": promoted,
	})
}

// ReconcileActivity handles POST /api/activities/:id/reconcile
func (s *Server) ReconcileActivity(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	if err := s.requireHost(c, id); err != nil {
		return respondError(c, err)
	}
	result, err := s.services.Activities.Reconcile(c.UserContext(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(result)
}

// GetAttendanceStats handles GET /api/activities/:id/stats
func (s *Server) GetAttendanceStats(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	stats, err := s.services.Reservations.Stats(c.UserContext(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(stats)
}

// requireHost returns an authorization error unless the current user hosts
// the activity.
func (s *Server) requireHost(c *fiber.Ctx, activityID uint) error {
	activity, err := s.services.Activities.GetActivity(c.UserContext(), activityID)
	if err != nil {
		return err
	}
	if activity.HostID != currentUserID(c) {
		return models.NewUnauthorizedError("only the host can do this")
	}
	return nil
}
