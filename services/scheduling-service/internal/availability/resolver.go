package availability

import (
	"fmt"
	"time"

	"github.com/dkoval/bookslot/services/scheduling-service/internal/calendar"
	"github.com/dkoval/bookslot/services/scheduling-service/internal/model"
)

// Window is the effective working window for one calendar date.
type Window struct {
	Start         time.Time
	End           time.Time
	StaffSpecific bool
}

// Resolve picks the working window for the given date. A staff override row
// for that weekday wins outright; organization hours are the fallback; with
// neither (or only inactive rows) the day is closed. Windows are never merged
// or intersected across the two tiers.
//
// All inputs are explicit and nothing is cached between calls.
func Resolve(date time.Time, staffHours, orgHours []model.WeeklyHours) (Window, bool, error) {
	weekday := date.Weekday()

	if row, ok := activeRowFor(staffHours, weekday); ok {
		win, err := windowFromRow(date, row, true)
		return win, err == nil, err
	}
	if row, ok := activeRowFor(orgHours, weekday); ok {
		win, err := windowFromRow(date, row, false)
		return win, err == nil, err
	}
	return Window{}, false, nil
}

func activeRowFor(rows []model.WeeklyHours, weekday time.Weekday) (model.WeeklyHours, bool) {
	for _, row := range rows {
		if row.Weekday == weekday && row.IsActive {
			return row, true
		}
	}
	return model.WeeklyHours{}, false
}

func windowFromRow(date time.Time, row model.WeeklyHours, staffSpecific bool) (Window, error) {
	startH, startM, err := calendar.ParseClock(row.StartClock)
	if err != nil {
		return Window{}, fmt.Errorf("start clock for weekday %d: %w", row.Weekday, err)
	}
	endH, endM, err := calendar.ParseClock(row.EndClock)
	if err != nil {
		return Window{}, fmt.Errorf("end clock for weekday %d: %w", row.Weekday, err)
	}

	start := calendar.Combine(date, startH, startM)
	end := calendar.Combine(date, endH, endM)
	if !end.After(start) {
		return Window{}, fmt.Errorf("weekday %d: window end %s not after start %s", row.Weekday, row.EndClock, row.StartClock)
	}
	return Window{Start: start, End: end, StaffSpecific: staffSpecific}, nil
}
