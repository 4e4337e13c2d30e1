// Package lifecycle owns the appointment status machine. Bookings start as
// pending; confirm/complete are administrative; cancellation is terminal and
// frees the interval because everything else filters on status != cancelled.
package lifecycle

import "github.com/dkoval/bookslot/services/scheduling-service/internal/model"

var allowedFrom = map[string][]string{
	model.StatusConfirmed: {model.StatusPending},
	model.StatusCompleted: {model.StatusConfirmed},
	model.StatusCancelled: {model.StatusPending, model.StatusConfirmed},
}

func CanTransition(from, to string) bool {
	for _, s := range allowedFrom[to] {
		if s == from {
			return true
		}
	}
	return false
}
