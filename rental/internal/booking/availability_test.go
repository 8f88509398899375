package booking

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/transtrike/Rent-A-Car-Exam/rental/internal/model"
)

func reservation(status model.Status, from, till string) model.Reservation {
	return model.Reservation{
		Status:    status,
		StartDate: date(from),
		TillDate:  date(till),
	}
}

func TestIsAvailable(t *testing.T) {
	t.Parallel()

	var tests = []struct {
		name         string
		reservations []model.Reservation
		requested    Interval
		want         bool
	}{
		{
			name:      "no reservations at all",
			requested: Interval{date("2024-01-01"), date("2024-01-10")},
			want:      true,
		},
		{
			name: "active reservation overlaps",
			reservations: []model.Reservation{
				reservation(model.StatusActive, "2024-01-01", "2024-01-10"),
			},
			requested: Interval{date("2024-01-05"), date("2024-01-08")},
			want:      false,
		},
		{
			name: "request starts on due date",
			reservations: []model.Reservation{
				reservation(model.StatusActive, "2024-01-01", "2024-01-10"),
			},
			requested: Interval{date("2024-01-10"), date("2024-01-15")},
			want:      true,
		},
		{
			name: "awaited reservation blocks",
			reservations: []model.Reservation{
				reservation(model.StatusAwaited, "2024-03-01", "2024-03-10"),
			},
			requested: Interval{date("2024-03-05"), date("2024-03-06")},
			want:      false,
		},
		{
			name: "overdue reservation still blocks",
			reservations: []model.Reservation{
				reservation(model.StatusOverDue, "2024-01-01", "2024-01-10"),
			},
			requested: Interval{date("2024-01-05"), date("2024-01-08")},
			want:      false,
		},
		{
			name: "canceled reservation does not block",
			reservations: []model.Reservation{
				reservation(model.StatusCanceled, "2024-01-01", "2024-01-10"),
			},
			requested: Interval{date("2024-01-05"), date("2024-01-08")},
			want:      true,
		},
		{
			name: "used reservation does not block",
			reservations: []model.Reservation{
				reservation(model.StatusUsed, "2024-01-01", "2024-01-10"),
			},
			requested: Interval{date("2024-01-05"), date("2024-01-08")},
			want:      true,
		},
		{
			name: "disjoint outstanding reservation does not block",
			reservations: []model.Reservation{
				reservation(model.StatusAwaited, "2024-05-01", "2024-05-10"),
			},
			requested: Interval{date("2024-01-05"), date("2024-01-08")},
			want:      true,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, IsAvailable(tt.reservations, tt.requested))
		})
	}
}

func TestHasOutstanding(t *testing.T) {
	t.Parallel()

	require.False(t, HasOutstanding(nil))
	require.False(t, HasOutstanding([]model.Reservation{
		reservation(model.StatusUsed, "2024-01-01", "2024-01-10"),
		reservation(model.StatusCanceled, "2024-02-01", "2024-02-10"),
	}))
	require.True(t, HasOutstanding([]model.Reservation{
		reservation(model.StatusUsed, "2024-01-01", "2024-01-10"),
		reservation(model.StatusAwaited, "2024-02-01", "2024-02-10"),
	}))
}
