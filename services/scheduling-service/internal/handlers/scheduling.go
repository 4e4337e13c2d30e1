package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dkoval/bookslot/services/scheduling-service/internal/availability"
	"github.com/dkoval/bookslot/services/scheduling-service/internal/booking"
	"github.com/dkoval/bookslot/services/scheduling-service/internal/model"
	"github.com/dkoval/bookslot/services/scheduling-service/internal/storage"
)

// Engine is what the HTTP layer needs from the booking engine.
type Engine interface {
	AvailableSlots(ctx context.Context, serviceID string, date time.Time, staffID string) ([]availability.Slot, error)
	CreateBooking(ctx context.Context, in booking.CreateBookingInput) (model.Appointment, error)
	CancelBooking(ctx context.Context, appointmentID, reason string) (model.Appointment, error)
	TransitionBooking(ctx context.Context, appointmentID, newStatus string) (model.Appointment, error)
	ListAppointments(ctx context.Context, organizationID string, limit int) ([]model.Appointment, error)
}

type SchedulingHandler struct {
	engine Engine
	logger *slog.Logger
	now    func() time.Time
}

func NewSchedulingHandler(engine Engine, logger *slog.Logger) *SchedulingHandler {
	return &SchedulingHandler{engine: engine, logger: logger, now: time.Now}
}

type slotItem struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Available bool   `json:"available"`
}

type bookRequest struct {
	ServiceID     string `json:"service_id"`
	StaffID       string `json:"staff_id"`
	StartTime     string `json:"start_time"`
	ClientName    string `json:"client_name"`
	ClientContact string `json:"client_contact"`
	Notes         string `json:"notes"`
}

type cancelRequest struct {
	AppointmentID string `json:"appointment_id"`
	Reason        string `json:"reason"`
}

type transitionRequest struct {
	AppointmentID string `json:"appointment_id"`
	Status        string `json:"status"`
}

type appointmentItem struct {
	AppointmentID string `json:"appointment_id"`
	ServiceID     string `json:"service_id"`
	StaffID       string `json:"staff_id,omitempty"`
	ClientName    string `json:"client_name"`
	StartTime     string `json:"start_time"`
	EndTime       string `json:"end_time"`
	Status        string `json:"status"`
	CancelReason  string `json:"cancel_reason,omitempty"`
	CancelledAt   string `json:"cancelled_at,omitempty"`
	CreatedAt     string `json:"created_at"`
}

// Slots serves the anonymous availability listing. Slots that have already
// started are dropped so callers cannot be offered times in the past.
func (h *SchedulingHandler) Slots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	serviceID := strings.TrimSpace(r.URL.Query().Get("service_id"))
	staffID := strings.TrimSpace(r.URL.Query().Get("staff_id"))
	dateStr := strings.TrimSpace(r.URL.Query().Get("date"))
	if serviceID == "" || dateStr == "" {
		http.Error(w, "service_id and date are required", http.StatusBadRequest)
		return
	}
	date, err := time.Parse("2006-01-02", dateStr)
	if err != nil {
		http.Error(w, "invalid date, want YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	slots, err := h.engine.AvailableSlots(r.Context(), serviceID, date, staffID)
	if err != nil {
		h.writeError(w, r, err, "failed to list slots")
		return
	}

	now := h.now()
	items := make([]slotItem, 0, len(slots))
	for _, s := range slots {
		if s.Start.Before(now) {
			continue
		}
		items = append(items, slotItem{
			StartTime: s.Start.UTC().Format(time.RFC3339),
			EndTime:   s.End.UTC().Format(time.RFC3339),
			Available: s.Available,
		})
	}
	writeJSON(w, http.StatusOK, items)
}

// Book creates an appointment on behalf of an anonymous public caller.
func (h *SchedulingHandler) Book(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req bookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	start, err := time.Parse(time.RFC3339, req.StartTime)
	if err != nil {
		http.Error(w, "invalid start_time, want RFC3339", http.StatusBadRequest)
		return
	}

	appt, err := h.engine.CreateBooking(r.Context(), booking.CreateBookingInput{
		ServiceID:     req.ServiceID,
		StaffID:       req.StaffID,
		StartTime:     start,
		ClientName:    req.ClientName,
		ClientContact: req.ClientContact,
		Notes:         req.Notes,
	})
	if err != nil {
		h.writeError(w, r, err, "failed to create booking")
		return
	}
	writeJSON(w, http.StatusCreated, toAppointmentItem(appt))
}

// List returns the authenticated caller's organization appointments.
func (h *SchedulingHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	limit := 50
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}

	appts, err := h.engine.ListAppointments(r.Context(), claims.OrgID, limit)
	if err != nil {
		h.writeError(w, r, err, "failed to list appointments")
		return
	}
	items := make([]appointmentItem, 0, len(appts))
	for _, a := range appts {
		items = append(items, toAppointmentItem(a))
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *SchedulingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req cancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	appt, err := h.engine.CancelBooking(r.Context(), strings.TrimSpace(req.AppointmentID), req.Reason)
	if err != nil {
		h.writeError(w, r, err, "failed to cancel appointment")
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentItem(appt))
}

func (h *SchedulingHandler) Transition(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req transitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	appt, err := h.engine.TransitionBooking(r.Context(), strings.TrimSpace(req.AppointmentID), strings.TrimSpace(req.Status))
	if err != nil {
		h.writeError(w, r, err, "failed to update appointment")
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentItem(appt))
}

// writeError maps engine and storage errors onto HTTP statuses. Anything
// unrecognized is logged and answered with a generic 500 so internals do not
// leak to anonymous callers.
func (h *SchedulingHandler) writeError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	switch {
	case errors.Is(err, booking.ErrValidation):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, storage.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, storage.ErrConflict):
		http.Error(w, "slot no longer available", http.StatusConflict)
	case errors.Is(err, storage.ErrInvalidState):
		http.Error(w, "appointment state does not allow this change", http.StatusConflict)
	default:
		h.logger.Error(fallback, "err", err, "path", r.URL.Path)
		http.Error(w, fallback, http.StatusInternalServerError)
	}
}

func toAppointmentItem(a model.Appointment) appointmentItem {
	item := appointmentItem{
		AppointmentID: a.ID,
		ServiceID:     a.ServiceID,
		StaffID:       a.StaffID,
		ClientName:    a.ClientName,
		StartTime:     a.StartTime.UTC().Format(time.RFC3339),
		EndTime:       a.EndTime.UTC().Format(time.RFC3339),
		Status:        a.Status,
		CancelReason:  a.CancelReason,
		CreatedAt:     a.CreatedAt.UTC().Format(time.RFC3339),
	}
	if a.CancelledAt != nil {
		item.CancelledAt = a.CancelledAt.UTC().Format(time.RFC3339)
	}
	return item
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "failed to build response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
