package handler

import (
	"context"

	"github.com/transtrike/Rent-A-Car-Exam/pkg/auth"
	"github.com/transtrike/Rent-A-Car-Exam/rental/internal/booking"
	"github.com/transtrike/Rent-A-Car-Exam/rental/internal/model"
	"github.com/transtrike/Rent-A-Car-Exam/rental/internal/service"
)

//go:generate go run github.com/golang/mock/mockgen -source=service.go -destination=mocks/mock.go

type CarService interface {
	CreateCar(ctx context.Context, p auth.Principal, req model.CreateCarRequest) (model.Car, error)
	GetCar(ctx context.Context, carUid string) (model.Car, error)
	ListAllCars(ctx context.Context, p auth.Principal) ([]model.Car, error)
	EditCar(ctx context.Context, p auth.Principal, carUid string, req model.CreateCarRequest) (model.Car, error)
	DeleteCar(ctx context.Context, p auth.Principal, carUid string) error
	ListAvailableCars(ctx context.Context, iv *booking.Interval) ([]model.Car, error)
	ListCarsRentedByUser(ctx context.Context, p auth.Principal) ([]model.Car, error)
}

type RentalService interface {
	RentCar(ctx context.Context, p auth.Principal, req model.RentCarRequest) (model.Reservation, error)
	GetReservations(ctx context.Context, p auth.Principal) ([]model.Reservation, error)
	PickupReservation(ctx context.Context, p auth.Principal, reservationUid string) (model.Reservation, error)
	ReturnReservation(ctx context.Context, p auth.Principal, reservationUid string) (model.Reservation, error)
	CancelReservation(ctx context.Context, p auth.Principal, reservationUid string) (model.Reservation, error)
}

type UserService interface {
	Register(ctx context.Context, req model.RegisterRequest) (model.User, error)
	Login(ctx context.Context, req model.LoginRequest) (model.TokenResponse, error)
	GetUser(ctx context.Context, p auth.Principal, userUid string) (model.User, error)
	EditUser(ctx context.Context, p auth.Principal, userUid string, req model.EditUserRequest) (model.User, error)
	DeleteUser(ctx context.Context, p auth.Principal, userUid string) error
	PromoteToAdmin(ctx context.Context, p auth.Principal, userUid string) error
}

var (
	_ CarService    = (*service.Service)(nil)
	_ RentalService = (*service.Service)(nil)
	_ UserService   = (*service.Service)(nil)
)
