package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/transtrike/Rent-A-Car-Exam/rental/internal/booking"
	"github.com/transtrike/Rent-A-Car-Exam/rental/internal/errs"
	"github.com/transtrike/Rent-A-Car-Exam/rental/internal/model"
)

const (
	testCarUid    = "a7e4b6f0-4a11-47f2-a54e-2fd1a1ec1200"
	testRenterUid = "21f8a662-44d8-4914-8912-1ae060ab5a61"
	testResUid    = "0942f253-2a81-4be2-92b4-6a4e574e2911"
)

func newRepo(t *testing.T) (*repository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	r, err := NewRepository(sqlx.NewDb(db, "pgx"), zap.NewExample().Named("test"), time.Second)
	require.NoError(t, err)
	return r, mock
}

func date(s string) time.Time {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return t
}

func carRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "car_uid", "brand", "model", "year", "passengers_count",
		"description", "price_per_day", "picture_url", "status",
	}).AddRow(1, testCarUid, "Lada", "Vesta", 2020, 5, "", 4500, "", nil)
}

func reservationRows(rows ...[]driverValue) *sqlmock.Rows {
	r := sqlmock.NewRows([]string{
		"id", "reservation_uid", "car_uid", "renter_uid", "status", "start_date", "till_date",
	})
	for _, row := range rows {
		r.AddRow(row...)
	}
	return r
}

type driverValue = driver.Value

// expectRentAttempt queues one full successful rent transaction.
func expectRentAttempt(mock sqlmock.Sqlmock, existing *sqlmock.Rows, iv booking.Interval) {
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .+ FROM car WHERE").
		WithArgs(testCarUid).
		WillReturnRows(carRows())
	mock.ExpectQuery("SELECT .+ FROM reservation WHERE").
		WithArgs(testCarUid).
		WillReturnRows(existing)
	mock.ExpectQuery("INSERT INTO reservation").
		WillReturnRows(reservationRows(
			[]driverValue{1, testResUid, testCarUid, testRenterUid, "AWAITED", iv.Start, iv.End},
		))
	mock.ExpectExec("update car c set status").
		WithArgs(testCarUid, model.StatusCanceled, model.StatusUsed).
		WillReturnResult(sqlmock.NewResult(0, 1))
}

func TestRepository_RentCar(t *testing.T) {
	t.Parallel()

	iv, err := booking.NewInterval(date("2024-01-01"), date("2024-01-10"))
	require.NoError(t, err)
	serErr := &pgconn.PgError{Code: pgerrcode.SerializationFailure}

	t.Run("ok", func(t *testing.T) {
		t.Parallel()
		r, mock := newRepo(t)
		expectRentAttempt(mock, reservationRows(), iv)
		mock.ExpectCommit()

		res, err := r.RentCar(context.Background(), testCarUid, testRenterUid, iv)
		require.NoError(t, err)
		require.Equal(t, testResUid, res.ReservationUid)
		require.Equal(t, model.StatusAwaited, res.Status)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("car not found", func(t *testing.T) {
		t.Parallel()
		r, mock := newRepo(t)
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT .+ FROM car WHERE").
			WithArgs(testCarUid).
			WillReturnError(sql.ErrNoRows)
		mock.ExpectRollback()

		_, err := r.RentCar(context.Background(), testCarUid, testRenterUid, iv)
		require.ErrorIs(t, err, errs.ErrNotFound)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("overlapping outstanding reservation rolls back", func(t *testing.T) {
		t.Parallel()
		r, mock := newRepo(t)
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT .+ FROM car WHERE").
			WithArgs(testCarUid).
			WillReturnRows(carRows())
		mock.ExpectQuery("SELECT .+ FROM reservation WHERE").
			WithArgs(testCarUid).
			WillReturnRows(reservationRows(
				[]driverValue{1, "bbbb2222-0000-0000-0000-000000000000", testCarUid,
					"99999999-9999-9999-9999-999999999999", "ACTIVE",
					date("2024-01-05"), date("2024-01-15")},
			))
		mock.ExpectRollback()

		_, err := r.RentCar(context.Background(), testCarUid, testRenterUid, iv)
		require.ErrorIs(t, err, errs.ErrAlreadyRented)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("terminal reservation does not block", func(t *testing.T) {
		t.Parallel()
		r, mock := newRepo(t)
		expectRentAttempt(mock, reservationRows(
			[]driverValue{1, "bbbb2222-0000-0000-0000-000000000000", testCarUid,
				"99999999-9999-9999-9999-999999999999", "CANCELED",
				date("2024-01-05"), date("2024-01-15")},
		), iv)
		mock.ExpectCommit()

		res, err := r.RentCar(context.Background(), testCarUid, testRenterUid, iv)
		require.NoError(t, err)
		require.Equal(t, testResUid, res.ReservationUid)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("serialization failure retried once then ok", func(t *testing.T) {
		t.Parallel()
		r, mock := newRepo(t)
		expectRentAttempt(mock, reservationRows(), iv)
		mock.ExpectCommit().WillReturnError(serErr)
		expectRentAttempt(mock, reservationRows(), iv)
		mock.ExpectCommit()

		res, err := r.RentCar(context.Background(), testCarUid, testRenterUid, iv)
		require.NoError(t, err)
		require.Equal(t, testResUid, res.ReservationUid)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("serialization failure twice surfaces already rented", func(t *testing.T) {
		t.Parallel()
		r, mock := newRepo(t)
		expectRentAttempt(mock, reservationRows(), iv)
		mock.ExpectCommit().WillReturnError(serErr)
		expectRentAttempt(mock, reservationRows(), iv)
		mock.ExpectCommit().WillReturnError(serErr)

		_, err := r.RentCar(context.Background(), testCarUid, testRenterUid, iv)
		require.ErrorIs(t, err, errs.ErrAlreadyRented)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestRepository_UpdateRentalStatus(t *testing.T) {
	t.Parallel()

	t.Run("recomputes car status from outstanding reservations", func(t *testing.T) {
		t.Parallel()
		r, mock := newRepo(t)
		mock.ExpectBegin()
		mock.ExpectQuery("update reservation set status").
			WithArgs(model.StatusCanceled, testResUid, model.StatusAwaited).
			WillReturnRows(reservationRows(
				[]driverValue{1, testResUid, testCarUid, testRenterUid, "CANCELED",
					date("2024-01-01"), date("2024-01-10")},
			))
		mock.ExpectExec("update car c set status").
			WithArgs(testCarUid, model.StatusCanceled, model.StatusUsed).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		res, err := r.UpdateRentalStatus(context.Background(), testResUid, model.StatusAwaited, model.StatusCanceled)
		require.NoError(t, err)
		require.Equal(t, model.StatusCanceled, res.Status)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("lost guard on an existing reservation is an invalid transition", func(t *testing.T) {
		t.Parallel()
		r, mock := newRepo(t)
		mock.ExpectBegin()
		mock.ExpectQuery("update reservation set status").
			WithArgs(model.StatusActive, testResUid, model.StatusAwaited).
			WillReturnError(sql.ErrNoRows)
		mock.ExpectQuery("SELECT .+ FROM reservation WHERE").
			WithArgs(testResUid).
			WillReturnRows(reservationRows(
				[]driverValue{1, testResUid, testCarUid, testRenterUid, "CANCELED",
					date("2024-01-01"), date("2024-01-10")},
			))
		mock.ExpectRollback()

		_, err := r.UpdateRentalStatus(context.Background(), testResUid, model.StatusAwaited, model.StatusActive)
		require.ErrorIs(t, err, errs.ErrInvalidStateTransition)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestMapErr(t *testing.T) {
	t.Parallel()

	require.NoError(t, mapErr(nil))
	require.ErrorIs(t, mapErr(sql.ErrNoRows), errs.ErrNotFound)
	require.ErrorIs(t, mapErr(context.DeadlineExceeded), errs.ErrStoreUnavailable)
	require.ErrorIs(t,
		mapErr(&pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: "car_brand_model_key"}),
		errs.ErrAlreadyExists)

	var pgErr *pgconn.PgError
	other := &pgconn.PgError{Code: pgerrcode.SerializationFailure}
	require.ErrorAs(t, mapErr(other), &pgErr)
	require.True(t, isSerializationFailure(other))
}
