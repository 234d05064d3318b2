package server

import (
	"rally/internal/service"

	"github.com/gofiber/fiber/v2"
)

// PreviewReservation handles GET /api/activities/:id/rsvps/preview. It reports
// whether a reservation now would be attending or waitlisted.
func (s *Server) PreviewReservation(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	preview, err := s.services.Reservations.Preview(c.UserContext(), id, currentUserID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(preview)
}

// ListReservations handles GET /api/activities/:id/rsvps
func (s *Server) ListReservations(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	rsvps, err := s.services.Reservations.List(c.UserContext(), id, currentUserID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(rsvps)
}

// CreateReservation handles POST /api/activities/:id/rsvps
func (s *Server) CreateReservation(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	var req struct {
		PaymentIntentID *string `json:"payment_intent_id"`
		PaymentStatus   string  `json:"payment_status"`
	}
	if len(c.Body()) > 0 {
		if err := parseBody(c, &req); err != nil {
			return nil
		}
	}

	rsvp, err := s.services.Reservations.Create(c.UserContext(), service.CreateReservationInput{
		ActivityID:      id,
		UserID:          currentUserID(c),
		PaymentIntentID: req.PaymentIntentID,
		PaymentStatus:   req.PaymentStatus,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(rsvp)
}

// UpdateReservation handles PUT /api/rsvps/:id
func (s *Server) UpdateReservation(c *fiber.Ctx) error {
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
	rsvp, err := s.services.Reservations.Update(c.UserContext(), service.UpdateReservationInput{
		RsvpID:       id,
		ActingUserID: currentUserID(c),
		Status:       req.Status,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(rsvp)
}

// CancelReservation handles DELETE /api/rsvps/:id. The holder or the host may
// cancel; the freed spot goes to the head of the waitlist.
func (s *Server) CancelReservation(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	rsvp, err := s.services.Reservations.Cancel(c.UserContext(), id, currentUserID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(rsvp)
}

// MarkAttended handles POST /api/rsvps/:id/attended
func (s *Server) MarkAttended(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	rsvp, err := s.services.Reservations.MarkAttended(c.UserContext(), id, currentUserID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(rsvp)
}
