package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dkoval/bookslot/libs/db"
	"github.com/dkoval/bookslot/services/scheduling-service/internal/calendar"
	"github.com/dkoval/bookslot/services/scheduling-service/internal/lifecycle"
	"github.com/dkoval/bookslot/services/scheduling-service/internal/model"
	"github.com/dkoval/bookslot/services/scheduling-service/internal/outbox"
	"github.com/dkoval/bookslot/services/scheduling-service/internal/storage"
)

type Store struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

func New(pool *db.Pool, outboxRepo *outbox.Repository) *Store {
	return &Store{pool: pool, outbox: outboxRepo}
}

var _ storage.Store = (*Store)(nil)

const appointmentColumns = `
	id, organization_id, service_id, staff_id, client_id, client_name, client_contact,
	start_time, end_time, status, notes, COALESCE(cancel_reason, ''), cancelled_at, created_at, updated_at`

func (s *Store) GetService(ctx context.Context, serviceID string) (model.Service, error) {
	var svc model.Service
	err := s.pool.QueryRow(ctx, `
		SELECT id, organization_id, staff_id, name, duration_minutes, slot_interval_minutes, is_active
		FROM services
		WHERE id = $1
	`, serviceID).Scan(
		&svc.ID,
		&svc.OrganizationID,
		&svc.StaffID,
		&svc.Name,
		&svc.DurationMinutes,
		&svc.SlotIntervalMinutes,
		&svc.IsActive,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Service{}, fmt.Errorf("service %s: %w", serviceID, storage.ErrNotFound)
	}
	if err != nil {
		return model.Service{}, err
	}
	return svc, nil
}

func (s *Store) ListStaffHours(ctx context.Context, staffID string) ([]model.WeeklyHours, error) {
	return s.listHours(ctx, `
		SELECT staff_id, weekday, start_clock, end_clock, is_active
		FROM staff_availability
		WHERE staff_id = $1
		ORDER BY weekday
	`, staffID)
}

func (s *Store) ListOrganizationHours(ctx context.Context, organizationID string) ([]model.WeeklyHours, error) {
	return s.listHours(ctx, `
		SELECT organization_id, weekday, start_clock, end_clock, is_active
		FROM business_hours
		WHERE organization_id = $1
		ORDER BY weekday
	`, organizationID)
}

func (s *Store) listHours(ctx context.Context, query, ownerID string) ([]model.WeeklyHours, error) {
	rows, err := s.pool.Query(ctx, query, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.WeeklyHours
	for rows.Next() {
		var wh model.WeeklyHours
		var weekday int
		if err := rows.Scan(&wh.OwnerID, &weekday, &wh.StartClock, &wh.EndClock, &wh.IsActive); err != nil {
			return nil, err
		}
		wh.Weekday = time.Weekday(weekday)
		out = append(out, wh)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (s *Store) ListActiveAppointments(ctx context.Context, scheduleKey string, from, to time.Time) ([]model.Appointment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE schedule_key = $1
			AND status <> 'cancelled'
			AND start_time < $3
			AND end_time > $2
		ORDER BY start_time ASC
	`, scheduleKey, from, to)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

// CreateAppointment is the serialized section of the booking path. The
// advisory lock keyed by (schedule key, date) makes concurrent bookings for
// the same staff/day take turns; the overlap re-check then runs against
// committed state, so at most one of any racing overlapping pair can insert.
// The exclusion constraint on the table is the backstop and also maps to
// ErrConflict.
func (s *Store) CreateAppointment(ctx context.Context, in storage.CreateAppointmentInput) (model.Appointment, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return model.Appointment{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	lockKey := in.ScheduleKey + "|" + in.StartTime.UTC().Format("2006-01-02")
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, lockKey); err != nil {
		return model.Appointment{}, err
	}

	existing, err := s.listActiveAppointmentsTx(ctx, tx, in.ScheduleKey, in.StartTime, in.EndTime)
	if err != nil {
		return model.Appointment{}, err
	}
	for _, a := range existing {
		if calendar.Overlaps(in.StartTime, in.EndTime, a.StartTime, a.EndTime) {
			return model.Appointment{}, storage.ErrConflict
		}
	}

	appt := model.Appointment{
		ID:             uuid.NewString(),
		OrganizationID: in.OrganizationID,
		ServiceID:      in.ServiceID,
		StaffID:        in.StaffID,
		ClientID:       in.ClientID,
		ClientName:     in.ClientName,
		ClientContact:  in.ClientContact,
		Notes:          in.Notes,
		StartTime:      in.StartTime,
		EndTime:        in.EndTime,
		Status:         model.StatusPending,
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO appointments
			(id, organization_id, service_id, staff_id, client_id, client_name, client_contact,
			 schedule_key, start_time, end_time, status, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at, updated_at
	`, appt.ID, appt.OrganizationID, appt.ServiceID, appt.StaffID, appt.ClientID, appt.ClientName,
		appt.ClientContact, in.ScheduleKey, appt.StartTime, appt.EndTime, appt.Status, appt.Notes,
	).Scan(&appt.CreatedAt, &appt.UpdatedAt)
	if err != nil {
		if isExclusionViolation(err) {
			return model.Appointment{}, storage.ErrConflict
		}
		return model.Appointment{}, err
	}

	if err := s.insertEvent(ctx, tx, outbox.EventAppointmentBooked, appt, map[string]any{
		"appointment_id":  appt.ID,
		"organization_id": appt.OrganizationID,
		"service_id":      appt.ServiceID,
		"staff_id":        appt.StaffID,
		"client_contact":  appt.ClientContact,
		"start_time":      appt.StartTime.UTC().Format(time.RFC3339),
		"end_time":        appt.EndTime.UTC().Format(time.RFC3339),
	}); err != nil {
		return model.Appointment{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return model.Appointment{}, err
	}
	return appt, nil
}

func (s *Store) GetAppointment(ctx context.Context, appointmentID string) (model.Appointment, error) {
	appt, err := scanAppointment(s.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, appointmentID))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Appointment{}, fmt.Errorf("appointment %s: %w", appointmentID, storage.ErrNotFound)
	}
	return appt, err
}

func (s *Store) CancelAppointment(ctx context.Context, appointmentID, reason string) (model.Appointment, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return model.Appointment{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	appt, err := s.getForUpdate(ctx, tx, appointmentID)
	if err != nil {
		return model.Appointment{}, err
	}

	// Cancelling twice is a no-op, not an error.
	if appt.Status == model.StatusCancelled {
		return appt, nil
	}
	if !lifecycle.CanTransition(appt.Status, model.StatusCancelled) {
		return model.Appointment{}, fmt.Errorf("cancel from %s: %w", appt.Status, storage.ErrInvalidState)
	}

	var cancelledAt time.Time
	err = tx.QueryRow(ctx, `
		UPDATE appointments
		SET status = 'cancelled',
			cancel_reason = $2,
			cancelled_at = now(),
			updated_at = now()
		WHERE id = $1
		RETURNING cancelled_at, updated_at
	`, appointmentID, reason).Scan(&cancelledAt, &appt.UpdatedAt)
	if err != nil {
		return model.Appointment{}, err
	}
	appt.Status = model.StatusCancelled
	appt.CancelReason = reason
	appt.CancelledAt = &cancelledAt

	if err := s.insertEvent(ctx, tx, outbox.EventAppointmentCancelled, appt, map[string]any{
		"appointment_id":  appt.ID,
		"organization_id": appt.OrganizationID,
		"staff_id":        appt.StaffID,
		"start_time":      appt.StartTime.UTC().Format(time.RFC3339),
		"end_time":        appt.EndTime.UTC().Format(time.RFC3339),
		"cancelled_at":    cancelledAt.UTC().Format(time.RFC3339),
		"reason":          reason,
	}); err != nil {
		return model.Appointment{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return model.Appointment{}, err
	}
	return appt, nil
}

func (s *Store) TransitionAppointment(ctx context.Context, appointmentID, newStatus string) (model.Appointment, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return model.Appointment{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	appt, err := s.getForUpdate(ctx, tx, appointmentID)
	if err != nil {
		return model.Appointment{}, err
	}
	if !lifecycle.CanTransition(appt.Status, newStatus) {
		return model.Appointment{}, fmt.Errorf("transition %s -> %s: %w", appt.Status, newStatus, storage.ErrInvalidState)
	}

	previous := appt.Status
	err = tx.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
			updated_at = now()
		WHERE id = $1
		RETURNING updated_at
	`, appointmentID, newStatus).Scan(&appt.UpdatedAt)
	if err != nil {
		return model.Appointment{}, err
	}
	appt.Status = newStatus

	if err := s.insertEvent(ctx, tx, outbox.EventAppointmentStatusChanged, appt, map[string]any{
		"appointment_id":  appt.ID,
		"organization_id": appt.OrganizationID,
		"from":            previous,
		"to":              newStatus,
	}); err != nil {
		return model.Appointment{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return model.Appointment{}, err
	}
	return appt, nil
}

func (s *Store) ListByOrganization(ctx context.Context, organizationID string, limit int) ([]model.Appointment, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE organization_id = $1
		ORDER BY start_time DESC
		LIMIT $2
	`, organizationID, limit)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (s *Store) listActiveAppointmentsTx(ctx context.Context, tx pgx.Tx, scheduleKey string, from, to time.Time) ([]model.Appointment, error) {
	rows, err := tx.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE schedule_key = $1
			AND status <> 'cancelled'
			AND start_time < $3
			AND end_time > $2
	`, scheduleKey, from, to)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (s *Store) getForUpdate(ctx context.Context, tx pgx.Tx, appointmentID string) (model.Appointment, error) {
	appt, err := scanAppointment(tx.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
		FOR UPDATE
	`, appointmentID))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Appointment{}, fmt.Errorf("appointment %s: %w", appointmentID, storage.ErrNotFound)
	}
	return appt, err
}

func (s *Store) insertEvent(ctx context.Context, tx pgx.Tx, eventType string, appt model.Appointment, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return s.outbox.Insert(ctx, tx, outbox.Event{
		AggregateType: "appointment",
		AggregateID:   appt.ID,
		EventType:     eventType,
		Payload:       body,
	})
}

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var appt model.Appointment
	var cancelledAt *time.Time
	err := row.Scan(
		&appt.ID,
		&appt.OrganizationID,
		&appt.ServiceID,
		&appt.StaffID,
		&appt.ClientID,
		&appt.ClientName,
		&appt.ClientContact,
		&appt.StartTime,
		&appt.EndTime,
		&appt.Status,
		&appt.Notes,
		&appt.CancelReason,
		&cancelledAt,
		&appt.CreatedAt,
		&appt.UpdatedAt,
	)
	if err != nil {
		return model.Appointment{}, err
	}
	appt.CancelledAt = cancelledAt
	return appt, nil
}

func collectAppointments(rows pgx.Rows) ([]model.Appointment, error) {
	defer rows.Close()

	var out []model.Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, appt)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func isExclusionViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23P01"
}
