package service

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/transtrike/Rent-A-Car-Exam/pkg/auth"
	"github.com/transtrike/Rent-A-Car-Exam/rental/internal/booking"
	"github.com/transtrike/Rent-A-Car-Exam/rental/internal/errs"
	"github.com/transtrike/Rent-A-Car-Exam/rental/internal/model"
	"github.com/transtrike/Rent-A-Car-Exam/rental/internal/repository"
)

type Service struct {
	log    *zap.Logger
	repo   repository.Repository
	queue  Enqueuer
	topic  string
	jwtCfg auth.Config
	now    func() time.Time
}

type Option func(*Service)

// WithQueue enables rental event publishing.
func WithQueue(queue Enqueuer, topic string) Option {
	return func(s *Service) {
		s.queue = queue
		s.topic = topic
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func NewService(repo repository.Repository, log *zap.Logger, jwtCfg auth.Config, ops ...Option) *Service {
	s := &Service{
		log:    log,
		repo:   repo,
		jwtCfg: jwtCfg,
		now:    time.Now,
	}
	for _, op := range ops {
		op(s)
	}
	return s
}

/* Car catalog. Create/edit/delete are admin-only. */

func (s *Service) CreateCar(ctx context.Context, p auth.Principal, req model.CreateCarRequest) (model.Car, error) {
	if !p.IsAdmin() {
		return model.Car{}, errs.ErrUnauthorized
	}
	return s.repo.CreateCar(ctx, model.Car{
		Brand:           req.Brand,
		Model:           req.Model,
		Year:            req.Year,
		PassengersCount: req.PassengersCount,
		Description:     req.Description,
		PricePerDay:     req.PricePerDay,
		PictureUrl:      req.PictureUrl,
	})
}

func (s *Service) GetCar(ctx context.Context, carUid string) (model.Car, error) {
	return s.repo.GetCar(ctx, carUid)
}

func (s *Service) ListAllCars(ctx context.Context, p auth.Principal) ([]model.Car, error) {
	if !p.IsAdmin() {
		return nil, errs.ErrUnauthorized
	}
	return s.repo.ListCars(ctx)
}

func (s *Service) EditCar(ctx context.Context, p auth.Principal, carUid string, req model.CreateCarRequest) (model.Car, error) {
	if !p.IsAdmin() {
		return model.Car{}, errs.ErrUnauthorized
	}
	return s.repo.UpdateCar(ctx, model.Car{
		CarUid:          carUid,
		Brand:           req.Brand,
		Model:           req.Model,
		Year:            req.Year,
		PassengersCount: req.PassengersCount,
		Description:     req.Description,
		PricePerDay:     req.PricePerDay,
		PictureUrl:      req.PictureUrl,
	})
}

func (s *Service) DeleteCar(ctx context.Context, p auth.Principal, carUid string) error {
	if !p.IsAdmin() {
		return errs.ErrUnauthorized
	}
	return s.repo.DeleteCar(ctx, carUid)
}

// ListAvailableCars returns cars free for the interval, or, when iv is nil,
// cars with no outstanding reservation at all.
func (s *Service) ListAvailableCars(ctx context.Context, iv *booking.Interval) ([]model.Car, error) {
	cars, err := s.repo.ListCars(ctx)
	if err != nil {
		return nil, err
	}
	reservations, err := s.repo.ListReservations(ctx)
	if err != nil {
		return nil, err
	}
	byCar := make(map[string][]model.Reservation, len(cars))
	for _, r := range reservations {
		byCar[r.CarUid] = append(byCar[r.CarUid], r)
	}

	available := make([]model.Car, 0, len(cars))
	for _, car := range cars {
		if iv == nil {
			if !booking.HasOutstanding(byCar[car.CarUid]) {
				available = append(available, car)
			}
			continue
		}
		if booking.IsAvailable(byCar[car.CarUid], *iv) {
			available = append(available, car)
		}
	}
	return available, nil
}

func (s *Service) ListCarsRentedByUser(ctx context.Context, p auth.Principal) ([]model.Car, error) {
	return s.repo.ListCarsRentedByUser(ctx, p.UserUid)
}

/* Booking engine. */

// RentCar validates the interval before touching the store, then delegates
// the availability-check-and-insert to the repository's atomic transaction.
func (s *Service) RentCar(ctx context.Context, p auth.Principal, req model.RentCarRequest) (model.Reservation, error) {
	iv, err := booking.NewInterval(req.StartDate.Time, req.TillDate.Time)
	if err != nil {
		return model.Reservation{}, err
	}
	res, err := s.repo.RentCar(ctx, req.CarUid, p.UserUid, iv)
	if err != nil {
		return model.Reservation{}, err
	}
	s.emit(model.EventRented, res)
	return res, nil
}

func (s *Service) GetReservations(ctx context.Context, p auth.Principal) ([]model.Reservation, error) {
	return s.repo.ListReservationsByRenter(ctx, p.UserUid)
}

// PickupReservation confirms the handover: AWAITED -> ACTIVE.
func (s *Service) PickupReservation(ctx context.Context, p auth.Principal, reservationUid string) (model.Reservation, error) {
	return s.transition(ctx, p, reservationUid, model.StatusActive, model.EventPickedUp)
}

// ReturnReservation confirms the return: ACTIVE (or OVERDUE) -> USED.
func (s *Service) ReturnReservation(ctx context.Context, p auth.Principal, reservationUid string) (model.Reservation, error) {
	return s.transition(ctx, p, reservationUid, model.StatusUsed, model.EventReturned)
}

// CancelReservation drops a not-yet-started rental: AWAITED -> CANCELED.
func (s *Service) CancelReservation(ctx context.Context, p auth.Principal, reservationUid string) (model.Reservation, error) {
	return s.transition(ctx, p, reservationUid, model.StatusCanceled, model.EventCanceled)
}

func (s *Service) transition(ctx context.Context, p auth.Principal, reservationUid string, to model.Status, event model.EventType) (model.Reservation, error) {
	res, err := s.repo.GetReservation(ctx, reservationUid)
	if err != nil {
		return model.Reservation{}, err
	}
	if res.RenterUid != p.UserUid && !p.IsAdmin() {
		return model.Reservation{}, errs.ErrUnauthorized
	}
	if err := booking.Transition(res.Status, to); err != nil {
		return model.Reservation{}, err
	}
	updated, err := s.repo.UpdateRentalStatus(ctx, reservationUid, res.Status, to)
	if err != nil {
		return model.Reservation{}, err
	}
	s.emit(event, updated)
	return updated, nil
}

// MarkOverdue is the periodic sweep: every outstanding reservation past its
// due date moves to OVERDUE. Returns the number of reservations moved.
func (s *Service) MarkOverdue(ctx context.Context) (int, error) {
	now := s.now()
	due, err := s.repo.ListDueReservations(ctx, now)
	if err != nil {
		return 0, err
	}
	var moved int
	for _, res := range due {
		if !booking.IsOverdue(res, now) {
			continue
		}
		updated, err := s.repo.UpdateRentalStatus(ctx, res.ReservationUid, res.Status, model.StatusOverDue)
		if err != nil {
			// a concurrent return beat the sweep, nothing to do
			if errors.Is(err, errs.ErrInvalidStateTransition) || errors.Is(err, errs.ErrNotFound) {
				continue
			}
			return moved, err
		}
		s.emit(model.EventOverDue, updated)
		moved++
	}
	return moved, nil
}
