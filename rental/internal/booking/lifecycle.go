package booking

import (
	"time"

	"github.com/pkg/errors"

	"github.com/transtrike/Rent-A-Car-Exam/rental/internal/errs"
	"github.com/transtrike/Rent-A-Car-Exam/rental/internal/model"
)

// allowTransition is the reservation status graph. A reservation starts in
// AWAITED; CANCELED and USED are terminal, OVERDUE can still be returned.
var allowTransition = map[model.Status][]model.Status{
	model.StatusAwaited:  {model.StatusActive, model.StatusCanceled, model.StatusOverDue},
	model.StatusActive:   {model.StatusUsed, model.StatusOverDue},
	model.StatusOverDue:  {model.StatusUsed},
	model.StatusCanceled: {},
	model.StatusUsed:     {},
}

// CanTransition reports whether from -> to is an allowed lifecycle move.
func CanTransition(from, to model.Status) bool {
	for _, s := range allowTransition[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Transition validates the lifecycle move. Same-state requests are rejected:
// there are no silent no-ops.
func Transition(from, to model.Status) error {
	if !CanTransition(from, to) {
		return errors.Wrapf(errs.ErrInvalidStateTransition, "%s -> %s", from, to)
	}
	return nil
}

// IsOverdue reports whether the reservation's due date has passed while it
// is still outstanding. The periodic sweep uses this to drive the OVERDUE
// transition.
func IsOverdue(r model.Reservation, now time.Time) bool {
	if r.Status != model.StatusAwaited && r.Status != model.StatusActive {
		return false
	}
	return !Interval{Start: r.StartDate, End: r.TillDate}.Contains(now) && now.After(r.StartDate)
}
