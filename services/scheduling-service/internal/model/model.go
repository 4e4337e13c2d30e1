package model

import "time"

const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

// KnownStatus reports whether s is one of the appointment statuses.
func KnownStatus(s string) bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

type Appointment struct {
	ID             string
	OrganizationID string
	ServiceID      string
	StaffID        string // empty when the service is not staff-bound
	ClientID       string // empty for anonymous public bookings
	ClientName     string
	ClientContact  string
	StartTime      time.Time
	EndTime        time.Time
	Status         string
	Notes          string
	CancelReason   string
	CancelledAt    *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type Service struct {
	ID                  string
	OrganizationID      string
	StaffID             string // optional staff binding
	Name                string
	DurationMinutes     int
	SlotIntervalMinutes int
	IsActive            bool
}

// WeeklyHours is one weekday's working window. The same row shape backs both
// organization business hours (OwnerID = organization id) and staff-specific
// overrides (OwnerID = staff id).
type WeeklyHours struct {
	OwnerID    string
	Weekday    time.Weekday
	StartClock string // "HH:MM" wall clock, interpreted in UTC
	EndClock   string
	IsActive   bool
}
