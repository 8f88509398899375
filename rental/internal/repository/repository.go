package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/transtrike/Rent-A-Car-Exam/pkg/auth"
	"github.com/transtrike/Rent-A-Car-Exam/rental/internal/booking"
	"github.com/transtrike/Rent-A-Car-Exam/rental/internal/errs"
	"github.com/transtrike/Rent-A-Car-Exam/rental/internal/model"
)

//go:generate go run github.com/golang/mock/mockgen -source=repository.go -destination=mocks/mock.go

type Repository interface {
	CreateCar(ctx context.Context, car model.Car) (model.Car, error)
	GetCar(ctx context.Context, carUid string) (model.Car, error)
	ListCars(ctx context.Context) ([]model.Car, error)
	UpdateCar(ctx context.Context, car model.Car) (model.Car, error)
	DeleteCar(ctx context.Context, carUid string) error

	RentCar(ctx context.Context, carUid, renterUid string, iv booking.Interval) (model.Reservation, error)
	GetReservation(ctx context.Context, reservationUid string) (model.Reservation, error)
	ListReservations(ctx context.Context) ([]model.Reservation, error)
	ListReservationsForCar(ctx context.Context, carUid string) ([]model.Reservation, error)
	ListReservationsByRenter(ctx context.Context, renterUid string) ([]model.Reservation, error)
	ListCarsRentedByUser(ctx context.Context, renterUid string) ([]model.Car, error)
	ListDueReservations(ctx context.Context, now time.Time) ([]model.Reservation, error)
	UpdateRentalStatus(ctx context.Context, reservationUid string, from, to model.Status) (model.Reservation, error)

	CreateUser(ctx context.Context, user model.User) (model.User, error)
	GetUser(ctx context.Context, userUid string) (model.User, error)
	GetUserByUsername(ctx context.Context, username string) (model.User, error)
	UpdateUser(ctx context.Context, userUid string, user model.User) (model.User, error)
	DeleteUser(ctx context.Context, userUid string) error
	SetUserRole(ctx context.Context, userUid string, role auth.Role) error
}

type repository struct {
	db      *sqlx.DB
	log     *zap.Logger
	timeout time.Duration
}

func NewRepository(db *sqlx.DB, log *zap.Logger, timeout time.Duration) (*repository, error) {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &repository{
		db:      db,
		log:     log.Named("repo"),
		timeout: timeout,
	}, nil
}

const (
	carTableName         = `car`
	reservationTableName = `reservation`

	carColumns         = `id, car_uid, brand, model, year, passengers_count, description, price_per_day, picture_url, status`
	reservationColumns = `id, reservation_uid, car_uid, renter_uid, status, start_date, till_date`
)

var qb = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// The car row carries the status of its earliest outstanding reservation,
// null when the car is free. Recomputed after every reservation change so
// that one reservation reaching a terminal state cannot mislabel a car that
// still has another outstanding one.
const recomputeCarStatusQuery = `
	update car c set status = (
		select r.status
		from reservation r
		where r.car_uid = c.car_uid and r.status not in ($2, $3)
		order by r.start_date
		limit 1
	)
	where c.car_uid = $1`

// opCtx bounds every store call so that a stalled database surfaces
// ErrStoreUnavailable instead of blocking the caller.
func (r *repository) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.timeout)
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return errs.ErrNotFound
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return errors.Wrap(errs.ErrStoreUnavailable, err.Error())
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		return errors.Wrap(errs.ErrAlreadyExists, pgErr.ConstraintName)
	}
	return err
}

func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.SerializationFailure
}

func (r *repository) CreateCar(ctx context.Context, car model.Car) (model.Car, error) {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	q, args, err := qb.Insert(carTableName).
		Columns("car_uid", "brand", "model", "year", "passengers_count", "description", "price_per_day", "picture_url").
		Values(uuid.New(), car.Brand, car.Model, car.Year, car.PassengersCount, car.Description, car.PricePerDay, car.PictureUrl).
		Suffix("returning " + carColumns).
		ToSql()
	if err != nil {
		return model.Car{}, err
	}
	var created model.Car
	if err := r.db.GetContext(ctx, &created, q, args...); err != nil {
		r.log.Error("CreateCar", zap.String("q", q), zap.Error(err))
		return model.Car{}, mapErr(err)
	}
	return created, nil
}

func (r *repository) GetCar(ctx context.Context, carUid string) (model.Car, error) {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	q, args, err := qb.Select(carColumns).
		From(carTableName).
		Where(sq.Eq{"car_uid": carUid}).
		ToSql()
	if err != nil {
		return model.Car{}, err
	}
	var car model.Car
	if err := r.db.GetContext(ctx, &car, q, args...); err != nil {
		return model.Car{}, mapErr(err)
	}
	return car, nil
}

func (r *repository) ListCars(ctx context.Context) ([]model.Car, error) {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	q, args, err := qb.Select(carColumns).
		From(carTableName).
		OrderBy("brand", "model").
		ToSql()
	if err != nil {
		return nil, err
	}
	var cars []model.Car
	if err := r.db.SelectContext(ctx, &cars, q, args...); err != nil {
		return nil, mapErr(err)
	}
	return cars, nil
}

func (r *repository) UpdateCar(ctx context.Context, car model.Car) (model.Car, error) {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	q, args, err := qb.Update(carTableName).
		Set("brand", car.Brand).
		Set("model", car.Model).
		Set("year", car.Year).
		Set("passengers_count", car.PassengersCount).
		Set("description", car.Description).
		Set("price_per_day", car.PricePerDay).
		Set("picture_url", car.PictureUrl).
		Where(sq.Eq{"car_uid": car.CarUid}).
		Suffix("returning " + carColumns).
		ToSql()
	if err != nil {
		return model.Car{}, err
	}
	var updated model.Car
	if err := r.db.GetContext(ctx, &updated, q, args...); err != nil {
		r.log.Error("UpdateCar", zap.String("q", q), zap.Error(err))
		return model.Car{}, mapErr(err)
	}
	return updated, nil
}

// DeleteCar removes the car; its reservations go with it (FK cascade).
func (r *repository) DeleteCar(ctx context.Context, carUid string) error {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	q, args, err := qb.Delete(carTableName).
		Where(sq.Eq{"car_uid": carUid}).
		ToSql()
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return mapErr(err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// RentCar is the booking critical section: availability re-check and
// reservation insert run in one serializable transaction with the car row
// locked, so two concurrent requests for the same car cannot both commit.
// Retried once on a serialization failure.
func (r *repository) RentCar(ctx context.Context, carUid, renterUid string, iv booking.Interval) (model.Reservation, error) {
	res, err := r.rentCarTx(ctx, carUid, renterUid, iv)
	if isSerializationFailure(err) {
		r.log.Warn("RentCar serialization failure, retrying", zap.String("carUid", carUid))
		res, err = r.rentCarTx(ctx, carUid, renterUid, iv)
	}
	if isSerializationFailure(err) {
		return model.Reservation{}, errs.ErrAlreadyRented
	}
	return res, err
}

func (r *repository) rentCarTx(ctx context.Context, carUid, renterUid string, iv booking.Interval) (model.Reservation, error) {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return model.Reservation{}, mapErr(err)
	}
	defer tx.Rollback() //nolint:errcheck

	q, args, err := qb.Select(carColumns).
		From(carTableName).
		Where(sq.Eq{"car_uid": carUid}).
		Suffix("for update").
		ToSql()
	if err != nil {
		return model.Reservation{}, err
	}
	var car model.Car
	if err := tx.GetContext(ctx, &car, q, args...); err != nil {
		return model.Reservation{}, mapErr(err)
	}

	q, args, err = qb.Select(reservationColumns).
		From(reservationTableName).
		Where(sq.Eq{"car_uid": carUid}).
		ToSql()
	if err != nil {
		return model.Reservation{}, err
	}
	var reservations []model.Reservation
	if err := tx.SelectContext(ctx, &reservations, q, args...); err != nil {
		return model.Reservation{}, mapErr(err)
	}

	if !booking.IsAvailable(reservations, iv) {
		return model.Reservation{}, errs.ErrAlreadyRented
	}

	q, args, err = qb.Insert(reservationTableName).
		Columns("reservation_uid", "car_uid", "renter_uid", "status", "start_date", "till_date").
		Values(uuid.New(), carUid, renterUid, model.StatusAwaited, iv.Start, iv.End).
		Suffix("returning " + reservationColumns).
		ToSql()
	if err != nil {
		return model.Reservation{}, err
	}
	var created model.Reservation
	if err := tx.GetContext(ctx, &created, q, args...); err != nil {
		r.log.Error("RentCar insert", zap.String("q", q), zap.Error(err))
		return model.Reservation{}, mapErr(err)
	}

	if _, err := tx.ExecContext(ctx, recomputeCarStatusQuery,
		carUid, model.StatusCanceled, model.StatusUsed); err != nil {
		return model.Reservation{}, mapErr(err)
	}

	if err := tx.Commit(); err != nil {
		return model.Reservation{}, mapErr(err)
	}
	return created, nil
}

func (r *repository) GetReservation(ctx context.Context, reservationUid string) (model.Reservation, error) {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	q, args, err := qb.Select(reservationColumns).
		From(reservationTableName).
		Where(sq.Eq{"reservation_uid": reservationUid}).
		ToSql()
	if err != nil {
		return model.Reservation{}, err
	}
	var res model.Reservation
	if err := r.db.GetContext(ctx, &res, q, args...); err != nil {
		return model.Reservation{}, mapErr(err)
	}
	return res, nil
}

func (r *repository) ListReservations(ctx context.Context) ([]model.Reservation, error) {
	return r.listReservations(ctx, nil)
}

func (r *repository) ListReservationsForCar(ctx context.Context, carUid string) ([]model.Reservation, error) {
	return r.listReservations(ctx, sq.Eq{"car_uid": carUid})
}

func (r *repository) ListReservationsByRenter(ctx context.Context, renterUid string) ([]model.Reservation, error) {
	return r.listReservations(ctx, sq.Eq{"renter_uid": renterUid})
}

func (r *repository) listReservations(ctx context.Context, pred sq.Sqlizer) ([]model.Reservation, error) {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	b := qb.Select(reservationColumns).
		From(reservationTableName).
		OrderBy("start_date")
	if pred != nil {
		b = b.Where(pred)
	}
	q, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}
	var reservations []model.Reservation
	if err := r.db.SelectContext(ctx, &reservations, q, args...); err != nil {
		return nil, mapErr(err)
	}
	return reservations, nil
}

func (r *repository) ListCarsRentedByUser(ctx context.Context, renterUid string) ([]model.Car, error) {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	q := `
	select distinct c.id, c.car_uid, c.brand, c.model, c.year, c.passengers_count,
		c.description, c.price_per_day, c.picture_url, c.status
	from car c
	join reservation r on r.car_uid = c.car_uid
	where r.renter_uid = $1
	order by c.brand, c.model`

	var cars []model.Car
	if err := r.db.SelectContext(ctx, &cars, q, renterUid); err != nil {
		return nil, mapErr(err)
	}
	return cars, nil
}

func (r *repository) ListDueReservations(ctx context.Context, now time.Time) ([]model.Reservation, error) {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	q, args, err := qb.Select(reservationColumns).
		From(reservationTableName).
		Where(sq.Eq{"status": []model.Status{model.StatusAwaited, model.StatusActive}}).
		Where(sq.LtOrEq{"till_date": now}).
		ToSql()
	if err != nil {
		return nil, err
	}
	var reservations []model.Reservation
	if err := r.db.SelectContext(ctx, &reservations, q, args...); err != nil {
		return nil, mapErr(err)
	}
	return reservations, nil
}

// UpdateRentalStatus moves the reservation from -> to and recomputes the
// car's denormalized status in one transaction. The from guard rejects a
// concurrent transition that got there first.
func (r *repository) UpdateRentalStatus(ctx context.Context, reservationUid string, from, to model.Status) (model.Reservation, error) {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return model.Reservation{}, mapErr(err)
	}
	defer tx.Rollback() //nolint:errcheck

	q := `
	update reservation set status = $1
	where reservation_uid = $2 and status = $3
	returning ` + reservationColumns

	var res model.Reservation
	if err := tx.GetContext(ctx, &res, q, to, reservationUid, from); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// gone, or somebody else transitioned it first
			if _, getErr := r.GetReservation(ctx, reservationUid); errors.Is(getErr, errs.ErrNotFound) {
				return model.Reservation{}, errs.ErrNotFound
			}
			return model.Reservation{}, errors.Wrapf(errs.ErrInvalidStateTransition, "%s -> %s", from, to)
		}
		return model.Reservation{}, mapErr(err)
	}

	if _, err := tx.ExecContext(ctx, recomputeCarStatusQuery,
		res.CarUid, model.StatusCanceled, model.StatusUsed); err != nil {
		return model.Reservation{}, mapErr(err)
	}

	if err := tx.Commit(); err != nil {
		return model.Reservation{}, mapErr(err)
	}
	return res, nil
}
