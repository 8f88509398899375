package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/transtrike/Rent-A-Car-Exam/pkg/auth"
	"github.com/transtrike/Rent-A-Car-Exam/rental/internal/booking"
	"github.com/transtrike/Rent-A-Car-Exam/rental/internal/errs"
	"github.com/transtrike/Rent-A-Car-Exam/rental/internal/model"
	repo_mocks "github.com/transtrike/Rent-A-Car-Exam/rental/internal/repository/mocks"
	"github.com/transtrike/Rent-A-Car-Exam/rental/internal/service"
)

var (
	renter = auth.Principal{UserUid: "21f8a662-44d8-4914-8912-1ae060ab5a61", Username: "renter", Role: auth.RoleUser}
	admin  = auth.Principal{UserUid: "847a3d8e-6d57-41fa-b1f9-23bc00a15b12", Username: "boss", Role: auth.RoleAdmin}
)

func date(s string) time.Time {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return t
}

func newService(t *testing.T) (*service.Service, *repo_mocks.MockRepository) {
	t.Helper()
	c := gomock.NewController(t)
	t.Cleanup(c.Finish)
	repo := repo_mocks.NewMockRepository(c)
	log := zap.NewExample().Named("test")
	return service.NewService(repo, log, auth.Config{Secret: "test", TTL: time.Hour}), repo
}

func TestService_RentCar(t *testing.T) {
	t.Parallel()

	t.Run("ok", func(t *testing.T) {
		t.Parallel()
		svc, repo := newService(t)

		iv, err := booking.NewInterval(date("2024-01-01"), date("2024-01-10"))
		require.NoError(t, err)

		want := model.Reservation{
			ReservationUid: "0942f253-2a81-4be2-92b4-6a4e574e2911",
			CarUid:         "a7e4b6f0-4a11-47f2-a54e-2fd1a1ec1200",
			RenterUid:      renter.UserUid,
			Status:         model.StatusAwaited,
			StartDate:      iv.Start,
			TillDate:       iv.End,
		}
		repo.EXPECT().
			RentCar(gomock.Any(), want.CarUid, renter.UserUid, iv).
			Return(want, nil)

		got, err := svc.RentCar(context.Background(), renter, model.RentCarRequest{
			CarUid:    want.CarUid,
			StartDate: model.Date{Time: iv.Start},
			TillDate:  model.Date{Time: iv.End},
		})
		require.NoError(t, err)
		require.Equal(t, want, got)
	})

	t.Run("invalid interval fails before any store access", func(t *testing.T) {
		t.Parallel()
		svc, _ := newService(t)

		_, err := svc.RentCar(context.Background(), renter, model.RentCarRequest{
			CarUid:    "a7e4b6f0-4a11-47f2-a54e-2fd1a1ec1200",
			StartDate: model.Date{Time: date("2024-02-01")},
			TillDate:  model.Date{Time: date("2024-01-01")},
		})
		require.ErrorIs(t, err, errs.ErrInvalidInterval)
	})

	t.Run("already rented", func(t *testing.T) {
		t.Parallel()
		svc, repo := newService(t)

		repo.EXPECT().
			RentCar(gomock.Any(), gomock.Any(), renter.UserUid, gomock.Any()).
			Return(model.Reservation{}, errs.ErrAlreadyRented)

		_, err := svc.RentCar(context.Background(), renter, model.RentCarRequest{
			CarUid:    "a7e4b6f0-4a11-47f2-a54e-2fd1a1ec1200",
			StartDate: model.Date{Time: date("2024-01-05")},
			TillDate:  model.Date{Time: date("2024-01-08")},
		})
		require.ErrorIs(t, err, errs.ErrAlreadyRented)
	})
}

func TestService_AdminOnlyCarMutations(t *testing.T) {
	t.Parallel()

	req := model.CreateCarRequest{
		Brand:           "Lada",
		Model:           "Vesta",
		Year:            2020,
		PassengersCount: 5,
		PricePerDay:     4500,
	}

	t.Run("create forbidden for renter, no store call", func(t *testing.T) {
		t.Parallel()
		svc, _ := newService(t)
		_, err := svc.CreateCar(context.Background(), renter, req)
		require.ErrorIs(t, err, errs.ErrUnauthorized)
	})

	t.Run("edit forbidden for renter, no store call", func(t *testing.T) {
		t.Parallel()
		svc, _ := newService(t)
		_, err := svc.EditCar(context.Background(), renter, "a7e4b6f0-4a11-47f2-a54e-2fd1a1ec1200", req)
		require.ErrorIs(t, err, errs.ErrUnauthorized)
	})

	t.Run("delete forbidden for renter, no store call", func(t *testing.T) {
		t.Parallel()
		svc, _ := newService(t)
		err := svc.DeleteCar(context.Background(), renter, "a7e4b6f0-4a11-47f2-a54e-2fd1a1ec1200")
		require.ErrorIs(t, err, errs.ErrUnauthorized)
	})

	t.Run("create ok for admin", func(t *testing.T) {
		t.Parallel()
		svc, repo := newService(t)
		repo.EXPECT().
			CreateCar(gomock.Any(), gomock.Any()).
			Return(model.Car{CarUid: "a7e4b6f0-4a11-47f2-a54e-2fd1a1ec1200", Brand: req.Brand, Model: req.Model}, nil)
		car, err := svc.CreateCar(context.Background(), admin, req)
		require.NoError(t, err)
		require.Equal(t, req.Brand, car.Brand)
	})
}

func TestService_ListAvailableCars(t *testing.T) {
	t.Parallel()

	carFree := model.Car{CarUid: "11111111-1111-1111-1111-111111111111", Brand: "Skoda", Model: "Octavia"}
	carTaken := model.Car{CarUid: "22222222-2222-2222-2222-222222222222", Brand: "VW", Model: "Golf"}
	carReturned := model.Car{CarUid: "33333333-3333-3333-3333-333333333333", Brand: "Opel", Model: "Astra"}

	reservations := []model.Reservation{
		{
			ReservationUid: "aaaa1111-0000-0000-0000-000000000000",
			CarUid:         carTaken.CarUid,
			Status:         model.StatusActive,
			StartDate:      date("2024-01-01"),
			TillDate:       date("2024-01-10"),
		},
		{
			ReservationUid: "bbbb2222-0000-0000-0000-000000000000",
			CarUid:         carReturned.CarUid,
			Status:         model.StatusUsed,
			StartDate:      date("2024-01-01"),
			TillDate:       date("2024-01-10"),
		},
	}

	t.Run("without interval only cars with no outstanding reservation", func(t *testing.T) {
		t.Parallel()
		svc, repo := newService(t)
		repo.EXPECT().ListCars(gomock.Any()).Return([]model.Car{carFree, carTaken, carReturned}, nil)
		repo.EXPECT().ListReservations(gomock.Any()).Return(reservations, nil)

		cars, err := svc.ListAvailableCars(context.Background(), nil)
		require.NoError(t, err)
		require.Equal(t, []model.Car{carFree, carReturned}, cars)
	})

	t.Run("with overlapping interval the taken car is excluded", func(t *testing.T) {
		t.Parallel()
		svc, repo := newService(t)
		repo.EXPECT().ListCars(gomock.Any()).Return([]model.Car{carFree, carTaken, carReturned}, nil)
		repo.EXPECT().ListReservations(gomock.Any()).Return(reservations, nil)

		iv, err := booking.NewInterval(date("2024-01-05"), date("2024-01-08"))
		require.NoError(t, err)
		cars, err := svc.ListAvailableCars(context.Background(), &iv)
		require.NoError(t, err)
		require.Equal(t, []model.Car{carFree, carReturned}, cars)
	})

	t.Run("with adjacent interval the taken car is included", func(t *testing.T) {
		t.Parallel()
		svc, repo := newService(t)
		repo.EXPECT().ListCars(gomock.Any()).Return([]model.Car{carFree, carTaken, carReturned}, nil)
		repo.EXPECT().ListReservations(gomock.Any()).Return(reservations, nil)

		iv, err := booking.NewInterval(date("2024-01-10"), date("2024-01-15"))
		require.NoError(t, err)
		cars, err := svc.ListAvailableCars(context.Background(), &iv)
		require.NoError(t, err)
		require.Equal(t, []model.Car{carFree, carTaken, carReturned}, cars)
	})
}

func TestService_ReservationTransitions(t *testing.T) {
	t.Parallel()

	res := model.Reservation{
		ReservationUid: "0942f253-2a81-4be2-92b4-6a4e574e2911",
		CarUid:         "a7e4b6f0-4a11-47f2-a54e-2fd1a1ec1200",
		RenterUid:      renter.UserUid,
		Status:         model.StatusAwaited,
		StartDate:      date("2024-01-01"),
		TillDate:       date("2024-01-10"),
	}

	t.Run("pickup moves awaited to active", func(t *testing.T) {
		t.Parallel()
		svc, repo := newService(t)
		repo.EXPECT().GetReservation(gomock.Any(), res.ReservationUid).Return(res, nil)
		updated := res
		updated.Status = model.StatusActive
		repo.EXPECT().
			UpdateRentalStatus(gomock.Any(), res.ReservationUid, model.StatusAwaited, model.StatusActive).
			Return(updated, nil)

		got, err := svc.PickupReservation(context.Background(), renter, res.ReservationUid)
		require.NoError(t, err)
		require.Equal(t, model.StatusActive, got.Status)
	})

	t.Run("return of an awaited reservation is rejected", func(t *testing.T) {
		t.Parallel()
		svc, repo := newService(t)
		repo.EXPECT().GetReservation(gomock.Any(), res.ReservationUid).Return(res, nil)

		_, err := svc.ReturnReservation(context.Background(), renter, res.ReservationUid)
		require.ErrorIs(t, err, errs.ErrInvalidStateTransition)
	})

	t.Run("foreign reservation is rejected", func(t *testing.T) {
		t.Parallel()
		svc, repo := newService(t)
		repo.EXPECT().GetReservation(gomock.Any(), res.ReservationUid).Return(res, nil)

		stranger := auth.Principal{UserUid: "99999999-9999-9999-9999-999999999999", Role: auth.RoleUser}
		_, err := svc.CancelReservation(context.Background(), stranger, res.ReservationUid)
		require.ErrorIs(t, err, errs.ErrUnauthorized)
	})

	t.Run("admin may cancel a foreign awaited reservation", func(t *testing.T) {
		t.Parallel()
		svc, repo := newService(t)
		repo.EXPECT().GetReservation(gomock.Any(), res.ReservationUid).Return(res, nil)
		updated := res
		updated.Status = model.StatusCanceled
		repo.EXPECT().
			UpdateRentalStatus(gomock.Any(), res.ReservationUid, model.StatusAwaited, model.StatusCanceled).
			Return(updated, nil)

		got, err := svc.CancelReservation(context.Background(), admin, res.ReservationUid)
		require.NoError(t, err)
		require.Equal(t, model.StatusCanceled, got.Status)
	})
}

func TestService_MarkOverdue(t *testing.T) {
	t.Parallel()

	c := gomock.NewController(t)
	defer c.Finish()
	repo := repo_mocks.NewMockRepository(c)
	log := zap.NewExample().Named("test")

	now := date("2024-01-15")
	svc := service.NewService(repo, log, auth.Config{Secret: "test", TTL: time.Hour},
		service.WithClock(func() time.Time { return now }))

	due := []model.Reservation{
		{
			ReservationUid: "aaaa1111-0000-0000-0000-000000000000",
			CarUid:         "11111111-1111-1111-1111-111111111111",
			Status:         model.StatusActive,
			StartDate:      date("2024-01-01"),
			TillDate:       date("2024-01-10"),
		},
		{
			ReservationUid: "bbbb2222-0000-0000-0000-000000000000",
			CarUid:         "22222222-2222-2222-2222-222222222222",
			Status:         model.StatusAwaited,
			StartDate:      date("2024-01-02"),
			TillDate:       date("2024-01-12"),
		},
	}
	repo.EXPECT().ListDueReservations(gomock.Any(), now).Return(due, nil)
	first := due[0]
	first.Status = model.StatusOverDue
	repo.EXPECT().
		UpdateRentalStatus(gomock.Any(), due[0].ReservationUid, model.StatusActive, model.StatusOverDue).
		Return(first, nil)
	// the second one was returned concurrently, the sweep skips it
	repo.EXPECT().
		UpdateRentalStatus(gomock.Any(), due[1].ReservationUid, model.StatusAwaited, model.StatusOverDue).
		Return(model.Reservation{}, errors.Wrap(errs.ErrInvalidStateTransition, "AWAITED -> OVERDUE"))

	moved, err := svc.MarkOverdue(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, moved)
}

func TestService_Accounts(t *testing.T) {
	t.Parallel()

	editReq := model.EditUserRequest{
		Email:     "renter@example.com",
		FirstName: "Ivan",
		LastName:  "Petrov",
	}

	t.Run("edit own profile", func(t *testing.T) {
		t.Parallel()
		svc, repo := newService(t)
		repo.EXPECT().
			UpdateUser(gomock.Any(), renter.UserUid, model.User{
				Email:     editReq.Email,
				FirstName: editReq.FirstName,
				LastName:  editReq.LastName,
			}).
			Return(model.User{UserUid: renter.UserUid, Email: editReq.Email}, nil)

		user, err := svc.EditUser(context.Background(), renter, renter.UserUid, editReq)
		require.NoError(t, err)
		require.Equal(t, editReq.Email, user.Email)
	})

	t.Run("edit of a foreign profile is forbidden, no store call", func(t *testing.T) {
		t.Parallel()
		svc, _ := newService(t)
		_, err := svc.EditUser(context.Background(), renter, admin.UserUid, editReq)
		require.ErrorIs(t, err, errs.ErrUnauthorized)
	})

	t.Run("admin may delete any account", func(t *testing.T) {
		t.Parallel()
		svc, repo := newService(t)
		repo.EXPECT().DeleteUser(gomock.Any(), renter.UserUid).Return(nil)
		require.NoError(t, svc.DeleteUser(context.Background(), admin, renter.UserUid))
	})

	t.Run("delete of a foreign account is forbidden, no store call", func(t *testing.T) {
		t.Parallel()
		svc, _ := newService(t)
		err := svc.DeleteUser(context.Background(), renter, admin.UserUid)
		require.ErrorIs(t, err, errs.ErrUnauthorized)
	})

	t.Run("promote stores the admin role", func(t *testing.T) {
		t.Parallel()
		svc, repo := newService(t)
		repo.EXPECT().SetUserRole(gomock.Any(), renter.UserUid, auth.RoleAdmin).Return(nil)
		require.NoError(t, svc.PromoteToAdmin(context.Background(), admin, renter.UserUid))
	})

	t.Run("promote requires admin, no store call", func(t *testing.T) {
		t.Parallel()
		svc, _ := newService(t)
		err := svc.PromoteToAdmin(context.Background(), renter, admin.UserUid)
		require.ErrorIs(t, err, errs.ErrUnauthorized)
	})
}

func TestService_Login(t *testing.T) {
	t.Parallel()

	t.Run("unknown user", func(t *testing.T) {
		t.Parallel()
		svc, repo := newService(t)
		repo.EXPECT().GetUserByUsername(gomock.Any(), "ghost").Return(model.User{}, errs.ErrNotFound)

		_, err := svc.Login(context.Background(), model.LoginRequest{Username: "ghost", Password: "whatever"})
		require.ErrorIs(t, err, errs.ErrUnauthorized)
	})

	t.Run("wrong password", func(t *testing.T) {
		t.Parallel()
		svc, repo := newService(t)
		repo.EXPECT().GetUserByUsername(gomock.Any(), "renter").Return(model.User{
			UserUid:      renter.UserUid,
			Username:     "renter",
			PasswordHash: "$2a$10$7EqJtq98hPqEX7fNZaFWoOhi5B0cnOUZRp0Xrh3pW1Qh1QO3G0y/e",
			Role:         auth.RoleUser,
		}, nil)

		_, err := svc.Login(context.Background(), model.LoginRequest{Username: "renter", Password: "wrong"})
		require.ErrorIs(t, err, errs.ErrUnauthorized)
	})
}
