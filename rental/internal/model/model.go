package model

import (
	"strings"
	"time"

	"github.com/transtrike/Rent-A-Car-Exam/pkg/auth"
)

// Status is the closed car/reservation lifecycle vocabulary.
type Status string

const (
	StatusAwaited  Status = "AWAITED"
	StatusActive   Status = "ACTIVE"
	StatusCanceled Status = "CANCELED"
	StatusUsed     Status = "USED"
	StatusOverDue  Status = "OVERDUE"
)

// Terminal reports whether no further transition is possible. A terminal
// reservation never blocks availability. OVERDUE is not terminal: a late
// return still moves it to USED.
func (s Status) Terminal() bool {
	return s == StatusCanceled || s == StatusUsed
}

type Car struct {
	ID              int     `json:"-" db:"id"`
	CarUid          string  `json:"carUid" db:"car_uid"`
	Brand           string  `json:"brand" db:"brand"`
	Model           string  `json:"model" db:"model"`
	Year            int     `json:"year" db:"year"`
	PassengersCount int     `json:"passengersCount" db:"passengers_count"`
	Description     string  `json:"description" db:"description"`
	PricePerDay     int64   `json:"pricePerDay" db:"price_per_day"`
	PictureUrl      string  `json:"pictureUrl" db:"picture_url"`
	Status          *Status `json:"status,omitempty" db:"status"`
}

type Reservation struct {
	ID             int       `json:"-" db:"id"`
	ReservationUid string    `json:"reservationUid" db:"reservation_uid"`
	CarUid         string    `json:"carUid" db:"car_uid"`
	RenterUid      string    `json:"renterUid" db:"renter_uid"`
	Status         Status    `json:"status" db:"status"`
	StartDate      time.Time `json:"startDate" db:"start_date"`
	TillDate       time.Time `json:"tillDate" db:"till_date"`
}

type User struct {
	ID           int       `json:"-" db:"id"`
	UserUid      string    `json:"userUid" db:"user_uid"`
	Username     string    `json:"username" db:"username"`
	Email        string    `json:"email" db:"email"`
	FirstName    string    `json:"firstName" db:"first_name"`
	MiddleName   string    `json:"middleName" db:"middle_name"`
	LastName     string    `json:"lastName" db:"last_name"`
	EGN          string    `json:"egn" db:"egn"`
	PasswordHash string    `json:"-" db:"password_hash"`
	Role         auth.Role `json:"role" db:"role"`
}

// Date is a date-only JSON value ("2024-01-01").
type Date struct {
	time.Time `json:",inline"`
}

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.Format(time.DateOnly) + `"`), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		return nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return err
	}
	d.Time = t
	return nil
}

type CreateCarRequest struct {
	Brand           string `json:"brand" validate:"required"`
	Model           string `json:"model" validate:"required"`
	Year            int    `json:"year" validate:"required,gte=1900"`
	PassengersCount int    `json:"passengersCount" validate:"required,gte=1"`
	Description     string `json:"description"`
	PricePerDay     int64  `json:"pricePerDay" validate:"required,gt=0"`
	PictureUrl      string `json:"pictureUrl"`
}

type RentCarRequest struct {
	CarUid    string `json:"carUid" validate:"required,uuid"`
	StartDate Date   `json:"startDate" validate:"required"`
	TillDate  Date   `json:"tillDate" validate:"required"`
}

type RegisterRequest struct {
	Username   string `json:"username" validate:"required,min=3"`
	Email      string `json:"email" validate:"required,email"`
	Password   string `json:"password" validate:"required,min=8"`
	FirstName  string `json:"firstName" validate:"required"`
	MiddleName string `json:"middleName"`
	LastName   string `json:"lastName" validate:"required"`
	EGN        string `json:"egn" validate:"required,len=10,numeric"`
}

type EditUserRequest struct {
	Email      string `json:"email" validate:"required,email"`
	FirstName  string `json:"firstName" validate:"required"`
	MiddleName string `json:"middleName"`
	LastName   string `json:"lastName" validate:"required"`
}

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type TokenResponse struct {
	Token string `json:"token"`
}

type EventType string

const (
	EventRented   EventType = "RENTED"
	EventPickedUp EventType = "PICKED_UP"
	EventReturned EventType = "RETURNED"
	EventCanceled EventType = "CANCELED"
	EventOverDue  EventType = "OVERDUE"
)

// RentalEvent is published to kafka on every lifecycle change.
type RentalEvent struct {
	Type           EventType `json:"type"`
	ReservationUid string    `json:"reservationUid"`
	CarUid         string    `json:"carUid"`
	RenterUid      string    `json:"renterUid"`
	Status         Status    `json:"status"`
	At             time.Time `json:"at"`
}
