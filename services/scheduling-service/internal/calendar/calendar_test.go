package calendar

import (
	"errors"
	"testing"
	"time"
)

func TestParseClock(t *testing.T) {
	h, m, err := ParseClock("09:30")
	if err != nil {
		t.Fatalf("ParseClock failed: %v", err)
	}
	if h != 9 || m != 30 {
		t.Fatalf("expected 9:30, got %d:%d", h, m)
	}

	h, m, err = ParseClock("23:59")
	if err != nil {
		t.Fatalf("ParseClock failed: %v", err)
	}
	if h != 23 || m != 59 {
		t.Fatalf("expected 23:59, got %d:%d", h, m)
	}
}

func TestParseClockRejectsMalformed(t *testing.T) {
	for _, s := range []string{"", "9:30", "09.30", "24:00", "09:60", "ab:cd", "09:3", "009:30"} {
		if _, _, err := ParseClock(s); !errors.Is(err, ErrClockFormat) {
			t.Fatalf("expected ErrClockFormat for %q, got %v", s, err)
		}
	}
}

func TestCombine(t *testing.T) {
	date := time.Date(2026, 3, 2, 15, 44, 31, 12, time.UTC)
	got := Combine(date, 9, 30)
	want := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestAddMinutes(t *testing.T) {
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	if got := AddMinutes(base, 45); !got.Equal(base.Add(45 * time.Minute)) {
		t.Fatalf("unexpected result: %s", got)
	}
	if got := AddMinutes(base, -15); !got.Equal(base.Add(-15 * time.Minute)) {
		t.Fatalf("unexpected result: %s", got)
	}
}

func TestOverlapsHalfOpen(t *testing.T) {
	at := func(h, m int) time.Time {
		return time.Date(2026, 3, 2, h, m, 0, 0, time.UTC)
	}

	// Touching endpoints do not overlap.
	if Overlaps(at(9, 0), at(9, 30), at(9, 30), at(10, 0)) {
		t.Fatal("[09:00,09:30) should not overlap [09:30,10:00)")
	}
	if Overlaps(at(9, 30), at(10, 0), at(9, 0), at(9, 30)) {
		t.Fatal("touching endpoints should not overlap (reversed order)")
	}

	if !Overlaps(at(9, 0), at(9, 31), at(9, 30), at(10, 0)) {
		t.Fatal("one minute of intersection should overlap")
	}
	if !Overlaps(at(9, 0), at(10, 0), at(9, 15), at(9, 45)) {
		t.Fatal("contained interval should overlap")
	}
	if !Overlaps(at(9, 15), at(9, 45), at(9, 0), at(10, 0)) {
		t.Fatal("containing interval should overlap")
	}
	if Overlaps(at(9, 0), at(9, 30), at(11, 0), at(11, 30)) {
		t.Fatal("disjoint intervals should not overlap")
	}
}
