// Package booking is the engine's front door: it validates requests, resolves
// the effective working window, and drives the serialized check-and-insert in
// the store. Slot reads are deliberately cheap and may go stale; the booking
// path re-derives everything and is the only place correctness is enforced.
package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dkoval/bookslot/services/scheduling-service/internal/availability"
	"github.com/dkoval/bookslot/services/scheduling-service/internal/model"
	"github.com/dkoval/bookslot/services/scheduling-service/internal/storage"
)

var ErrValidation = errors.New("validation failed")

type Engine struct {
	store  storage.Store
	logger *slog.Logger
	tracer trace.Tracer
	now    func() time.Time
}

func New(store storage.Store, logger *slog.Logger) *Engine {
	return &Engine{
		store:  store,
		logger: logger,
		tracer: otel.Tracer("scheduling/booking"),
		now:    time.Now,
	}
}

type CreateBookingInput struct {
	ServiceID     string
	StaffID       string
	StartTime     time.Time
	ClientID      string
	ClientName    string
	ClientContact string
	Notes         string
}

// AvailableSlots enumerates the date's candidate slots for a service, each
// flagged against the current booking set. Closed days come back as an empty
// slice, not an error. Safe for anonymous callers.
func (e *Engine) AvailableSlots(ctx context.Context, serviceID string, date time.Time, staffID string) ([]availability.Slot, error) {
	svc, staff, err := e.resolveService(ctx, serviceID, staffID)
	if err != nil {
		return nil, err
	}

	win, ok, err := e.resolveWindow(ctx, svc, staff, date)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []availability.Slot{}, nil
	}

	existing, err := e.store.ListActiveAppointments(ctx, scheduleKey(staff, svc.OrganizationID), win.Start, win.End)
	if err != nil {
		return nil, err
	}
	return availability.Generate(win, svc.DurationMinutes, svc.SlotIntervalMinutes, existing), nil
}

// CreateBooking re-derives the end time and the working window from current
// state (client-supplied durations are never trusted) and hands the conflict
// re-check plus insert to the store as one serialized transaction. A stale
// slot listing therefore surfaces as storage.ErrConflict, never as a double
// booking.
func (e *Engine) CreateBooking(ctx context.Context, in CreateBookingInput) (model.Appointment, error) {
	ctx, span := e.tracer.Start(ctx, "CreateBooking", trace.WithAttributes(
		attribute.String("service_id", in.ServiceID),
	))
	defer span.End()

	if strings.TrimSpace(in.ClientName) == "" {
		return model.Appointment{}, fmt.Errorf("%w: client name is required", ErrValidation)
	}
	if in.StartTime.IsZero() {
		return model.Appointment{}, fmt.Errorf("%w: start time is required", ErrValidation)
	}
	if in.StartTime.Before(e.now()) {
		return model.Appointment{}, fmt.Errorf("%w: start time is in the past", ErrValidation)
	}

	svc, staff, err := e.resolveService(ctx, in.ServiceID, in.StaffID)
	if err != nil {
		return model.Appointment{}, err
	}

	// The offset in a client-supplied RFC3339 start is presentation only.
	// Normalizing to UTC here keeps weekday and window resolution in the
	// same location the slot listing uses, so a shifted offset cannot land
	// a booking outside working hours.
	start := in.StartTime.UTC()
	end := start.Add(time.Duration(svc.DurationMinutes) * time.Minute)

	win, ok, err := e.resolveWindow(ctx, svc, staff, start)
	if err != nil {
		return model.Appointment{}, err
	}
	if !ok {
		return model.Appointment{}, fmt.Errorf("%w: no availability on %s", ErrValidation, start.Format("2006-01-02"))
	}
	if start.Before(win.Start) || end.After(win.End) {
		return model.Appointment{}, fmt.Errorf("%w: requested time is outside working hours", ErrValidation)
	}

	appt, err := e.store.CreateAppointment(ctx, storage.CreateAppointmentInput{
		OrganizationID: svc.OrganizationID,
		ServiceID:      svc.ID,
		StaffID:        staff,
		ClientID:       in.ClientID,
		ClientName:     strings.TrimSpace(in.ClientName),
		ClientContact:  strings.TrimSpace(in.ClientContact),
		Notes:          in.Notes,
		StartTime:      start,
		EndTime:        end,
		ScheduleKey:    scheduleKey(staff, svc.OrganizationID),
	})
	if err != nil {
		return model.Appointment{}, err
	}

	e.logger.Info("appointment booked",
		"appointment_id", appt.ID,
		"service_id", appt.ServiceID,
		"staff_id", appt.StaffID,
		"start", appt.StartTime.UTC().Format(time.RFC3339),
	)
	return appt, nil
}

// CancelBooking cancels from any non-terminal state. Re-cancelling returns
// the record unchanged.
func (e *Engine) CancelBooking(ctx context.Context, appointmentID, reason string) (model.Appointment, error) {
	if strings.TrimSpace(appointmentID) == "" {
		return model.Appointment{}, fmt.Errorf("%w: appointment id is required", ErrValidation)
	}
	if strings.TrimSpace(reason) == "" {
		return model.Appointment{}, fmt.Errorf("%w: cancellation reason is required", ErrValidation)
	}

	appt, err := e.store.CancelAppointment(ctx, appointmentID, strings.TrimSpace(reason))
	if err != nil {
		return model.Appointment{}, err
	}
	e.logger.Info("appointment cancelled", "appointment_id", appt.ID, "reason", appt.CancelReason)
	return appt, nil
}

// TransitionBooking applies an administrative status change. Cancellation
// goes through CancelBooking so a reason is always captured.
func (e *Engine) TransitionBooking(ctx context.Context, appointmentID, newStatus string) (model.Appointment, error) {
	if strings.TrimSpace(appointmentID) == "" {
		return model.Appointment{}, fmt.Errorf("%w: appointment id is required", ErrValidation)
	}
	if !model.KnownStatus(newStatus) {
		return model.Appointment{}, fmt.Errorf("%w: unknown status %q", ErrValidation, newStatus)
	}
	if newStatus == model.StatusCancelled {
		return model.Appointment{}, fmt.Errorf("%w: use cancellation, which requires a reason", ErrValidation)
	}

	appt, err := e.store.TransitionAppointment(ctx, appointmentID, newStatus)
	if err != nil {
		return model.Appointment{}, err
	}
	e.logger.Info("appointment status changed", "appointment_id", appt.ID, "status", appt.Status)
	return appt, nil
}

func (e *Engine) ListAppointments(ctx context.Context, organizationID string, limit int) ([]model.Appointment, error) {
	if strings.TrimSpace(organizationID) == "" {
		return nil, fmt.Errorf("%w: organization id is required", ErrValidation)
	}
	return e.store.ListByOrganization(ctx, organizationID, limit)
}

// resolveService loads the service and settles the effective staff member:
// an explicit staff id must agree with the service's binding when both exist.
func (e *Engine) resolveService(ctx context.Context, serviceID, staffID string) (model.Service, string, error) {
	if strings.TrimSpace(serviceID) == "" {
		return model.Service{}, "", fmt.Errorf("%w: service id is required", ErrValidation)
	}
	svc, err := e.store.GetService(ctx, serviceID)
	if err != nil {
		return model.Service{}, "", err
	}
	if !svc.IsActive {
		return model.Service{}, "", fmt.Errorf("%w: service %s is not active", ErrValidation, serviceID)
	}
	if svc.DurationMinutes <= 0 {
		return model.Service{}, "", fmt.Errorf("%w: service %s has non-positive duration", ErrValidation, serviceID)
	}
	if svc.SlotIntervalMinutes <= 0 {
		return model.Service{}, "", fmt.Errorf("%w: service %s has non-positive slot interval", ErrValidation, serviceID)
	}

	staff := strings.TrimSpace(staffID)
	if svc.StaffID != "" {
		if staff != "" && staff != svc.StaffID {
			return model.Service{}, "", fmt.Errorf("%w: service is bound to a different staff member", ErrValidation)
		}
		staff = svc.StaffID
	}
	return svc, staff, nil
}

// resolveWindow always works in UTC so the window for a given instant does
// not depend on the location attached to the caller's time value.
func (e *Engine) resolveWindow(ctx context.Context, svc model.Service, staff string, date time.Time) (availability.Window, bool, error) {
	date = date.UTC()

	var staffHours []model.WeeklyHours
	var err error
	if staff != "" {
		staffHours, err = e.store.ListStaffHours(ctx, staff)
		if err != nil {
			return availability.Window{}, false, err
		}
	}
	orgHours, err := e.store.ListOrganizationHours(ctx, svc.OrganizationID)
	if err != nil {
		return availability.Window{}, false, err
	}

	win, ok, err := availability.Resolve(date, staffHours, orgHours)
	if err != nil {
		// Hours rows are admin-owned input; a malformed row is their bug, not
		// the booker's, but the request still cannot proceed.
		return availability.Window{}, false, fmt.Errorf("resolve working hours: %w", err)
	}
	return win, ok, nil
}

func scheduleKey(staffID, organizationID string) string {
	if staffID != "" {
		return "staff:" + staffID
	}
	return "org:" + organizationID
}
