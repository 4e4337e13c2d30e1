package availability

import (
	"time"

	"github.com/dkoval/bookslot/services/scheduling-service/internal/calendar"
	"github.com/dkoval/bookslot/services/scheduling-service/internal/model"
)

// Slot is one bookable candidate of exactly the service duration, aligned to
// the slot interval within the working window.
type Slot struct {
	Start     time.Time
	End       time.Time
	Available bool
}

// Generate walks the window from its start in interval steps and emits every
// slot whose full duration fits before the window end. A slot is unavailable
// when it overlaps any non-cancelled appointment. Pure function of its inputs.
//
// Zero slots come back when the duration exceeds the window; no partial slot
// is ever emitted. Callers validate duration/interval, so non-positive values
// yield nil rather than an error.
func Generate(win Window, durationMinutes, intervalMinutes int, existing []model.Appointment) []Slot {
	if durationMinutes <= 0 || intervalMinutes <= 0 {
		return nil
	}
	if !win.End.After(win.Start) {
		return nil
	}

	var slots []Slot
	for cursor := win.Start; ; cursor = calendar.AddMinutes(cursor, intervalMinutes) {
		end := calendar.AddMinutes(cursor, durationMinutes)
		if end.After(win.End) {
			break
		}
		slots = append(slots, Slot{
			Start:     cursor,
			End:       end,
			Available: !blocked(cursor, end, existing),
		})
	}
	return slots
}

func blocked(start, end time.Time, existing []model.Appointment) bool {
	for _, a := range existing {
		if a.Status == model.StatusCancelled {
			continue
		}
		if calendar.Overlaps(start, end, a.StartTime, a.EndTime) {
			return true
		}
	}
	return false
}
