package storage

import (
	"context"
	"time"

	"github.com/dkoval/bookslot/services/scheduling-service/internal/model"
)

// CreateAppointmentInput carries a fully validated booking request into the
// serialized check-and-insert. EndTime has already been re-derived from the
// service duration; ScheduleKey names the calendar the interval must be
// exclusive on ("staff:<id>" when staff-bound, otherwise "org:<id>").
type CreateAppointmentInput struct {
	OrganizationID string
	ServiceID      string
	StaffID        string
	ClientID       string
	ClientName     string
	ClientContact  string
	Notes          string
	StartTime      time.Time
	EndTime        time.Time
	ScheduleKey    string
}

// Store is the engine's view of persistence. Service, staff and hours rows
// are administered elsewhere and only read here; appointments are the one
// resource this engine mutates.
//
// CreateAppointment must serialize with every concurrent CreateAppointment
// for the same ScheduleKey: re-check overlap against committed state and
// insert in one transaction, returning ErrConflict when the interval is
// taken. CancelAppointment and TransitionAppointment must apply the
// lifecycle rules under a row lock and return ErrInvalidState on violations.
type Store interface {
	GetService(ctx context.Context, serviceID string) (model.Service, error)
	ListStaffHours(ctx context.Context, staffID string) ([]model.WeeklyHours, error)
	ListOrganizationHours(ctx context.Context, organizationID string) ([]model.WeeklyHours, error)

	// ListActiveAppointments returns non-cancelled appointments for the
	// scheduling key whose interval intersects [from, to).
	ListActiveAppointments(ctx context.Context, scheduleKey string, from, to time.Time) ([]model.Appointment, error)

	CreateAppointment(ctx context.Context, in CreateAppointmentInput) (model.Appointment, error)
	GetAppointment(ctx context.Context, appointmentID string) (model.Appointment, error)
	CancelAppointment(ctx context.Context, appointmentID, reason string) (model.Appointment, error)
	TransitionAppointment(ctx context.Context, appointmentID, newStatus string) (model.Appointment, error)
	ListByOrganization(ctx context.Context, organizationID string, limit int) ([]model.Appointment, error)
}
