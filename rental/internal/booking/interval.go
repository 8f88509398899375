package booking

import (
	"time"

	"github.com/transtrike/Rent-A-Car-Exam/rental/internal/errs"
)

// Interval is a half-open rental period [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

// NewInterval validates that end is strictly after start.
func NewInterval(start, end time.Time) (Interval, error) {
	if !start.Before(end) {
		return Interval{}, errs.ErrInvalidInterval
	}
	return Interval{Start: start, End: end}, nil
}

// Overlaps reports whether the two intervals share any instant.
// Half-open semantics: adjacent intervals ([a,b) and [b,c)) do not overlap.
func (i Interval) Overlaps(other Interval) bool {
	return i.Start.Before(other.End) && other.Start.Before(i.End)
}

// Contains reports whether t falls inside the interval.
func (i Interval) Contains(t time.Time) bool {
	return !t.Before(i.Start) && t.Before(i.End)
}
