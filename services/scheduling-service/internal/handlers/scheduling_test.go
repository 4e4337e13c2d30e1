package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dkoval/bookslot/libs/auth"
	"github.com/dkoval/bookslot/services/scheduling-service/internal/availability"
	"github.com/dkoval/bookslot/services/scheduling-service/internal/booking"
	"github.com/dkoval/bookslot/services/scheduling-service/internal/model"
	"github.com/dkoval/bookslot/services/scheduling-service/internal/storage"
)

type fakeEngine struct {
	availableSlots    func(ctx context.Context, serviceID string, date time.Time, staffID string) ([]availability.Slot, error)
	createBooking     func(ctx context.Context, in booking.CreateBookingInput) (model.Appointment, error)
	cancelBooking     func(ctx context.Context, appointmentID, reason string) (model.Appointment, error)
	transitionBooking func(ctx context.Context, appointmentID, newStatus string) (model.Appointment, error)
	listAppointments  func(ctx context.Context, organizationID string, limit int) ([]model.Appointment, error)
}

func (f *fakeEngine) AvailableSlots(ctx context.Context, serviceID string, date time.Time, staffID string) ([]availability.Slot, error) {
	return f.availableSlots(ctx, serviceID, date, staffID)
}

func (f *fakeEngine) CreateBooking(ctx context.Context, in booking.CreateBookingInput) (model.Appointment, error) {
	return f.createBooking(ctx, in)
}

func (f *fakeEngine) CancelBooking(ctx context.Context, appointmentID, reason string) (model.Appointment, error) {
	return f.cancelBooking(ctx, appointmentID, reason)
}

func (f *fakeEngine) TransitionBooking(ctx context.Context, appointmentID, newStatus string) (model.Appointment, error) {
	return f.transitionBooking(ctx, appointmentID, newStatus)
}

func (f *fakeEngine) ListAppointments(ctx context.Context, organizationID string, limit int) ([]model.Appointment, error) {
	return f.listAppointments(ctx, organizationID, limit)
}

func newTestHandler(engine Engine) *SchedulingHandler {
	h := NewSchedulingHandler(engine, slog.New(slog.NewTextHandler(io.Discard, nil)))
	h.now = func() time.Time { return time.Date(2035, time.March, 5, 9, 30, 0, 0, time.UTC) }
	return h
}

func TestSlots(t *testing.T) {
	base := time.Date(2035, time.March, 5, 9, 0, 0, 0, time.UTC)
	h := newTestHandler(&fakeEngine{
		availableSlots: func(_ context.Context, serviceID string, date time.Time, staffID string) ([]availability.Slot, error) {
			if serviceID != "svc-1" || staffID != "staff-1" {
				t.Fatalf("unexpected args: %q %q", serviceID, staffID)
			}
			if !date.Equal(time.Date(2035, time.March, 5, 0, 0, 0, 0, time.UTC)) {
				t.Fatalf("date = %v", date)
			}
			return []availability.Slot{
				{Start: base, End: base.Add(30 * time.Minute), Available: true},
				{Start: base.Add(30 * time.Minute), End: base.Add(time.Hour), Available: true},
				{Start: base.Add(time.Hour), End: base.Add(90 * time.Minute), Available: false},
				{Start: base.Add(2 * time.Hour), End: base.Add(150 * time.Minute), Available: true},
			}, nil
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/public/slots?service_id=svc-1&staff_id=staff-1&date=2035-03-05", nil)
	rec := httptest.NewRecorder()
	h.Slots(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var items []slotItem
	if err := json.Unmarshal(rec.Body.Bytes(), &items); err != nil {
		t.Fatalf("decode: %v", err)
	}
	// The 09:00 slot is already underway at the frozen 09:30 clock; the one
	// starting exactly at 09:30 is still offered.
	if len(items) != 3 {
		t.Fatalf("len(items) = %d, want 3 (only the started slot dropped)", len(items))
	}
	if items[0].StartTime != "2035-03-05T09:30:00Z" {
		t.Fatalf("first slot = %s, want the 09:30 boundary slot", items[0].StartTime)
	}
	if !items[0].Available || items[1].Available || !items[2].Available {
		t.Fatalf("availability flags wrong: %+v", items)
	}
}

func TestSlotsBadRequest(t *testing.T) {
	h := newTestHandler(&fakeEngine{})
	for _, target := range []string{
		"/api/v1/public/slots",
		"/api/v1/public/slots?service_id=svc-1",
		"/api/v1/public/slots?service_id=svc-1&date=March+5",
	} {
		rec := httptest.NewRecorder()
		h.Slots(rec, httptest.NewRequest(http.MethodGet, target, nil))
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: status = %d, want 400", target, rec.Code)
		}
	}
}

func TestBook(t *testing.T) {
	start := time.Date(2035, time.March, 5, 10, 0, 0, 0, time.UTC)
	h := newTestHandler(&fakeEngine{
		createBooking: func(_ context.Context, in booking.CreateBookingInput) (model.Appointment, error) {
			if in.ServiceID != "svc-1" || in.ClientName != "Dana" || !in.StartTime.Equal(start) {
				t.Fatalf("unexpected input: %+v", in)
			}
			return model.Appointment{
				ID:         "appt-1",
				ServiceID:  in.ServiceID,
				ClientName: in.ClientName,
				StartTime:  in.StartTime,
				EndTime:    in.StartTime.Add(30 * time.Minute),
				Status:     model.StatusPending,
			}, nil
		},
	})

	body := `{"service_id":"svc-1","client_name":"Dana","start_time":"2035-03-05T10:00:00Z"}`
	rec := httptest.NewRecorder()
	h.Book(rec, httptest.NewRequest(http.MethodPost, "/api/v1/public/book", strings.NewReader(body)))

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var item appointmentItem
	if err := json.Unmarshal(rec.Body.Bytes(), &item); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if item.AppointmentID != "appt-1" || item.Status != model.StatusPending {
		t.Fatalf("response = %+v", item)
	}
}

func TestBookErrorMapping(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantBody   string
	}{
		{"validation", fmt.Errorf("%w: client name is required", booking.ErrValidation), http.StatusBadRequest, "client name is required"},
		{"not found", fmt.Errorf("service svc-1: %w", storage.ErrNotFound), http.StatusNotFound, "not found"},
		{"conflict", storage.ErrConflict, http.StatusConflict, "slot no longer available"},
		{"internal", fmt.Errorf("connection refused"), http.StatusInternalServerError, "failed to create booking"},
	}
	for _, tc := range cases {
		h := newTestHandler(&fakeEngine{
			createBooking: func(_ context.Context, _ booking.CreateBookingInput) (model.Appointment, error) {
				return model.Appointment{}, tc.err
			},
		})
		body := `{"service_id":"svc-1","client_name":"Dana","start_time":"2035-03-05T10:00:00Z"}`
		rec := httptest.NewRecorder()
		h.Book(rec, httptest.NewRequest(http.MethodPost, "/api/v1/public/book", strings.NewReader(body)))
		if rec.Code != tc.wantStatus {
			t.Fatalf("%s: status = %d, want %d", tc.name, rec.Code, tc.wantStatus)
		}
		if !strings.Contains(rec.Body.String(), tc.wantBody) {
			t.Fatalf("%s: body = %q, want substring %q", tc.name, rec.Body.String(), tc.wantBody)
		}
	}
}

func TestBookRejectsBadPayload(t *testing.T) {
	h := newTestHandler(&fakeEngine{})
	for _, body := range []string{"not json", `{"service_id":"svc-1","start_time":"tomorrow"}`} {
		rec := httptest.NewRecorder()
		h.Book(rec, httptest.NewRequest(http.MethodPost, "/api/v1/public/book", strings.NewReader(body)))
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("body %q: status = %d, want 400", body, rec.Code)
		}
	}
}

func TestCancel(t *testing.T) {
	now := time.Now()
	h := newTestHandler(&fakeEngine{
		cancelBooking: func(_ context.Context, appointmentID, reason string) (model.Appointment, error) {
			if appointmentID != "appt-1" || reason != "client request" {
				t.Fatalf("args = %q %q", appointmentID, reason)
			}
			return model.Appointment{ID: appointmentID, Status: model.StatusCancelled, CancelReason: reason, CancelledAt: &now}, nil
		},
	})

	body := `{"appointment_id":"appt-1","reason":"client request"}`
	rec := httptest.NewRecorder()
	h.Cancel(rec, httptest.NewRequest(http.MethodPost, "/api/v1/appointments/cancel", strings.NewReader(body)))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var item appointmentItem
	if err := json.Unmarshal(rec.Body.Bytes(), &item); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if item.Status != model.StatusCancelled || item.CancelledAt == "" {
		t.Fatalf("response = %+v", item)
	}
}

func TestTransitionInvalidState(t *testing.T) {
	h := newTestHandler(&fakeEngine{
		transitionBooking: func(_ context.Context, _, _ string) (model.Appointment, error) {
			return model.Appointment{}, fmt.Errorf("pending -> completed: %w", storage.ErrInvalidState)
		},
	})

	body := `{"appointment_id":"appt-1","status":"completed"}`
	rec := httptest.NewRecorder()
	h.Transition(rec, httptest.NewRequest(http.MethodPost, "/api/v1/appointments/transition", strings.NewReader(body)))

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
}

func TestListRequiresAuth(t *testing.T) {
	h := newTestHandler(&fakeEngine{})
	rec := httptest.NewRecorder()
	h.List(rec, httptest.NewRequest(http.MethodGet, "/api/v1/appointments", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestListWithAuth(t *testing.T) {
	const secret = "test-secret"
	h := newTestHandler(&fakeEngine{
		listAppointments: func(_ context.Context, organizationID string, limit int) ([]model.Appointment, error) {
			if organizationID != "org-1" {
				t.Fatalf("organization = %q", organizationID)
			}
			if limit != 10 {
				t.Fatalf("limit = %d, want 10", limit)
			}
			return []model.Appointment{{ID: "appt-1", OrganizationID: organizationID, Status: model.StatusConfirmed}}, nil
		},
	})
	handler := WithAuth(secret, "admin", "staff")(http.HandlerFunc(h.List))

	token, err := auth.SignHS256(auth.Claims{
		Sub:   "user-1",
		OrgID: "org-1",
		Role:  "admin",
		Exp:   time.Now().Add(time.Hour).Unix(),
	}, secret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/appointments?limit=10", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var items []appointmentItem
	if err := json.Unmarshal(rec.Body.Bytes(), &items); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(items) != 1 || items[0].AppointmentID != "appt-1" {
		t.Fatalf("items = %+v", items)
	}
}

func TestWithAuthRejects(t *testing.T) {
	const secret = "test-secret"
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	handler := WithAuth(secret, "admin")(next)

	userToken, err := auth.SignHS256(auth.Claims{Sub: "user-1", OrgID: "org-1", Role: "viewer", Exp: time.Now().Add(time.Hour).Unix()}, secret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	orgless, err := auth.SignHS256(auth.Claims{Sub: "user-1", Role: "admin", Exp: time.Now().Add(time.Hour).Unix()}, secret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"no token", "", http.StatusUnauthorized},
		{"garbage", "Bearer nope", http.StatusUnauthorized},
		{"wrong role", "Bearer " + userToken, http.StatusForbidden},
		{"no organization", "Bearer " + orgless, http.StatusForbidden},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/appointments", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != tc.want {
			t.Fatalf("%s: status = %d, want %d", tc.name, rec.Code, tc.want)
		}
	}
}
