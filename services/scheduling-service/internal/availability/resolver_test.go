package availability

import (
	"testing"
	"time"

	"github.com/dkoval/bookslot/services/scheduling-service/internal/model"
)

// 2026-03-02 is a Monday.
var monday = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

func TestResolveStaffOverrideWins(t *testing.T) {
	staff := []model.WeeklyHours{
		{OwnerID: "staff-1", Weekday: time.Monday, StartClock: "10:00", EndClock: "14:00", IsActive: true},
	}
	org := []model.WeeklyHours{
		{OwnerID: "org-1", Weekday: time.Monday, StartClock: "09:00", EndClock: "17:00", IsActive: true},
	}

	win, ok, err := Resolve(monday, staff, org)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if !ok {
		t.Fatal("expected a window")
	}
	if !win.StaffSpecific {
		t.Fatal("expected staff-specific window")
	}
	if !win.Start.Equal(monday.Add(10*time.Hour)) || !win.End.Equal(monday.Add(14*time.Hour)) {
		t.Fatalf("expected 10:00-14:00, got %s-%s", win.Start, win.End)
	}
}

func TestResolveOrganizationFallback(t *testing.T) {
	org := []model.WeeklyHours{
		{OwnerID: "org-1", Weekday: time.Monday, StartClock: "09:00", EndClock: "17:00", IsActive: true},
	}

	win, ok, err := Resolve(monday, nil, org)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if !ok {
		t.Fatal("expected a window")
	}
	if win.StaffSpecific {
		t.Fatal("expected organization window")
	}
	if !win.Start.Equal(monday.Add(9*time.Hour)) || !win.End.Equal(monday.Add(17*time.Hour)) {
		t.Fatalf("expected 09:00-17:00, got %s-%s", win.Start, win.End)
	}
}

func TestResolveInactiveStaffRowFallsThrough(t *testing.T) {
	staff := []model.WeeklyHours{
		{OwnerID: "staff-1", Weekday: time.Monday, StartClock: "10:00", EndClock: "14:00", IsActive: false},
	}
	org := []model.WeeklyHours{
		{OwnerID: "org-1", Weekday: time.Monday, StartClock: "09:00", EndClock: "17:00", IsActive: true},
	}

	win, ok, err := Resolve(monday, staff, org)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if !ok || win.StaffSpecific {
		t.Fatalf("expected fallback to organization hours, got ok=%v staffSpecific=%v", ok, win.StaffSpecific)
	}
}

func TestResolveClosedDay(t *testing.T) {
	org := []model.WeeklyHours{
		// Tuesday only; Monday has no row at all.
		{OwnerID: "org-1", Weekday: time.Tuesday, StartClock: "09:00", EndClock: "17:00", IsActive: true},
	}

	_, ok, err := Resolve(monday, nil, org)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if ok {
		t.Fatal("expected closed day")
	}

	// All rows inactive counts as closed too.
	org[0].Weekday = time.Monday
	org[0].IsActive = false
	_, ok, err = Resolve(monday, nil, org)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if ok {
		t.Fatal("expected closed day with inactive row")
	}
}

func TestResolveRejectsMalformedRows(t *testing.T) {
	org := []model.WeeklyHours{
		{OwnerID: "org-1", Weekday: time.Monday, StartClock: "9am", EndClock: "17:00", IsActive: true},
	}
	if _, _, err := Resolve(monday, nil, org); err == nil {
		t.Fatal("expected error for malformed start clock")
	}

	org[0].StartClock = "17:00"
	org[0].EndClock = "09:00"
	if _, _, err := Resolve(monday, nil, org); err == nil {
		t.Fatal("expected error for inverted window")
	}
}
