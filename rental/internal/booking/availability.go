package booking

import (
	"github.com/transtrike/Rent-A-Car-Exam/rental/internal/model"
)

// IsAvailable reports whether a car with the given reservations is free for
// the requested interval. Terminal reservations (canceled, used) never block;
// outstanding ones block iff their period overlaps the requested one.
func IsAvailable(reservations []model.Reservation, requested Interval) bool {
	for _, r := range reservations {
		if r.Status.Terminal() {
			continue
		}
		existing := Interval{Start: r.StartDate, End: r.TillDate}
		if existing.Overlaps(requested) {
			return false
		}
	}
	return true
}

// HasOutstanding reports whether any non-terminal reservation exists,
// regardless of dates. Listing without an interval uses this.
func HasOutstanding(reservations []model.Reservation) bool {
	for _, r := range reservations {
		if !r.Status.Terminal() {
			return true
		}
	}
	return false
}
