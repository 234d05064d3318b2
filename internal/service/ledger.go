package service

import "rally/internal/models"

// CountReactions is the authoritative reaction count for a snapshot of one
// post's reaction rows: one per reacting user, whatever the type.
func CountReactions(rows []models.Reaction) int {
	seen := make(map[uint]struct{}, len(rows))
	for _, r := range rows {
		seen[r.UserID] = struct{}{}
	}
	return len(seen)
}

// ReactionBreakdown counts a snapshot of reaction rows per type.
func ReactionBreakdown(rows []models.Reaction) map[string]int {
	out := make(map[string]int, len(models.ReactionTypes))
	for _, r := range rows {
		out[r.Type]++
	}
	return out
}

// AttendanceTally counts reservations by state.
type AttendanceTally struct {
	Attending int `json:"attending"`
	Maybe     int `json:"maybe"`
	Waitlist  int `json:"waitlist"`
	Declined  int `json:"declined"`
	Attended  int `json:"attended"`
}

// TallyAttendance counts a snapshot of one activity's reservations. Attending
// is the value current_attendees must equal.
func TallyAttendance(rsvps []models.Rsvp) AttendanceTally {
	var t AttendanceTally
	for _, r := range rsvps {
		switch r.Status {
		case models.RsvpStatusAttending:
			t.Attending++
		case models.RsvpStatusMaybe:
			t.Maybe++
		case models.RsvpStatusWaitlist:
			t.Waitlist++
		case models.RsvpStatusDeclined:
			t.Declined++
		}
		if r.Attended {
			t.Attended++
		}
	}
	return t
}
