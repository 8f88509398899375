package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/transtrike/Rent-A-Car-Exam/pkg/auth"
	"github.com/transtrike/Rent-A-Car-Exam/pkg/validate"
	"github.com/transtrike/Rent-A-Car-Exam/rental/internal/booking"
	"github.com/transtrike/Rent-A-Car-Exam/rental/internal/errs"
	"github.com/transtrike/Rent-A-Car-Exam/rental/internal/model"
)

type Handler struct {
	carSvc    CarService
	rentalSvc RentalService
	userSvc   UserService
	jwtCfg    auth.Config
	log       *zap.Logger
}

func New(carSvc CarService, rentalSvc RentalService, userSvc UserService, jwtCfg auth.Config, log *zap.Logger) *Handler {
	return &Handler{
		carSvc:    carSvc,
		rentalSvc: rentalSvc,
		userSvc:   userSvc,
		jwtCfg:    jwtCfg,
		log:       log,
	}
}

func (h *Handler) NewRouter() *echo.Echo {
	e := echo.New()
	const (
		baseRPS = 10
		apiRPS  = 100
	)
	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize: 4 << 10, // 4 KB
	}))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{http.MethodGet, http.MethodOptions, http.MethodHead, http.MethodPut, http.MethodPatch, http.MethodPost, http.MethodDelete},
		AllowCredentials: true,
	}))

	base := e.Group("", newRateLimiterMW(baseRPS))
	base.GET("/manage/health", h.Health)

	e.Validator = validate.NewCustomValidator()
	api := e.Group("/api/v1",
		middleware.RequestLoggerWithConfig(requestLoggerConfig(h.log)),
		middleware.RequestID(),
		newRateLimiterMW(apiRPS),
	)

	api.POST("/auth/register", h.Register)
	api.POST("/auth/login", h.Login)

	api.GET("/cars", h.ListAvailableCars)
	api.GET("/cars/:carUid", h.GetCar)

	authorized := api.Group("", jwtAuthentication(h.jwtCfg))
	authorized.GET("/cars/all", h.ListAllCars)
	authorized.POST("/cars", h.CreateCar)
	authorized.PUT("/cars/:carUid", h.EditCar)
	authorized.DELETE("/cars/:carUid", h.DeleteCar)

	authorized.POST("/rentals", h.RentCar)
	authorized.GET("/rentals", h.GetReservations)
	authorized.GET("/rentals/cars", h.ListCarsRentedByUser)
	authorized.POST("/rentals/:reservationUid/pickup", h.PickupReservation)
	authorized.POST("/rentals/:reservationUid/return", h.ReturnReservation)
	authorized.POST("/rentals/:reservationUid/cancel", h.CancelReservation)

	authorized.GET("/users/:userUid", h.GetUser)
	authorized.PUT("/users/:userUid", h.EditUser)
	authorized.DELETE("/users/:userUid", h.DeleteUser)
	authorized.POST("/users/:userUid/promote", h.PromoteToAdmin)

	return e
}

func (h *Handler) Health(c echo.Context) error {
	return c.String(http.StatusOK, "OK")
}

// toHTTPError maps the service error taxonomy onto status codes.
func toHTTPError(err error) *echo.HTTPError {
	switch {
	case errors.Is(err, errs.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, errs.ErrAlreadyExists),
		errors.Is(err, errs.ErrAlreadyRented),
		errors.Is(err, errs.ErrInvalidStateTransition):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, errs.ErrInvalidInterval):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, errs.ErrUnauthorized):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, errs.ErrStoreUnavailable):
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

func principal(c echo.Context) (auth.Principal, error) {
	p, err := auth.FromContext(c.Request().Context())
	if err != nil {
		return auth.Principal{}, echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	}
	return p, nil
}

/* Cars */

func (h *Handler) CreateCar(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	var req model.CreateCarRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	car, err := h.carSvc.CreateCar(c.Request().Context(), p, req)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusCreated, car)
}

func (h *Handler) GetCar(c echo.Context) error {
	carUid := c.Param("carUid")
	if carUid == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "empty carUid")
	}
	car, err := h.carSvc.GetCar(c.Request().Context(), carUid)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, car)
}

func (h *Handler) ListAllCars(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	cars, err := h.carSvc.ListAllCars(c.Request().Context(), p)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, cars)
}

// ListAvailableCars lists cars free for the from/till query interval, or
// cars with no outstanding reservation when the interval is omitted.
func (h *Handler) ListAvailableCars(c echo.Context) error {
	var iv *booking.Interval

	from, till := c.QueryParam("from"), c.QueryParam("till")
	if from != "" || till != "" {
		start, err := time.Parse(time.DateOnly, from)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid from date")
		}
		end, err := time.Parse(time.DateOnly, till)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid till date")
		}
		interval, err := booking.NewInterval(start, end)
		if err != nil {
			return toHTTPError(err)
		}
		iv = &interval
	}

	cars, err := h.carSvc.ListAvailableCars(c.Request().Context(), iv)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, cars)
}

func (h *Handler) EditCar(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	carUid := c.Param("carUid")
	if carUid == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "empty carUid")
	}
	var req model.CreateCarRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	car, err := h.carSvc.EditCar(c.Request().Context(), p, carUid, req)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, car)
}

func (h *Handler) DeleteCar(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	carUid := c.Param("carUid")
	if carUid == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "empty carUid")
	}
	if err := h.carSvc.DeleteCar(c.Request().Context(), p, carUid); err != nil {
		return toHTTPError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ListCarsRentedByUser(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	cars, err := h.carSvc.ListCarsRentedByUser(c.Request().Context(), p)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, cars)
}

/* Rentals */

func (h *Handler) RentCar(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	var req model.RentCarRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	res, err := h.rentalSvc.RentCar(c.Request().Context(), p, req)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusCreated, res)
}

func (h *Handler) GetReservations(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	reservations, err := h.rentalSvc.GetReservations(c.Request().Context(), p)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, reservations)
}

func (h *Handler) PickupReservation(c echo.Context) error {
	return h.rentalTransition(c, h.rentalSvc.PickupReservation)
}

func (h *Handler) ReturnReservation(c echo.Context) error {
	return h.rentalTransition(c, h.rentalSvc.ReturnReservation)
}

func (h *Handler) CancelReservation(c echo.Context) error {
	return h.rentalTransition(c, h.rentalSvc.CancelReservation)
}

func (h *Handler) rentalTransition(c echo.Context, fn func(ctx context.Context, p auth.Principal, reservationUid string) (model.Reservation, error)) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	reservationUid := c.Param("reservationUid")
	if reservationUid == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "empty reservationUid")
	}
	res, err := fn(c.Request().Context(), p, reservationUid)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, res)
}

/* Users */

func (h *Handler) Register(c echo.Context) error {
	var req model.RegisterRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	user, err := h.userSvc.Register(c.Request().Context(), req)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusCreated, user)
}

func (h *Handler) Login(c echo.Context) error {
	var req model.LoginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	token, err := h.userSvc.Login(c.Request().Context(), req)
	if err != nil {
		if errors.Is(err, errs.ErrUnauthorized) {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid credentials")
		}
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, token)
}

func (h *Handler) GetUser(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	userUid := c.Param("userUid")
	if userUid == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "empty userUid")
	}
	user, err := h.userSvc.GetUser(c.Request().Context(), p, userUid)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, user)
}

func (h *Handler) EditUser(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	userUid := c.Param("userUid")
	if userUid == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "empty userUid")
	}
	var req model.EditUserRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	user, err := h.userSvc.EditUser(c.Request().Context(), p, userUid, req)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, user)
}

func (h *Handler) DeleteUser(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	userUid := c.Param("userUid")
	if userUid == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "empty userUid")
	}
	if err := h.userSvc.DeleteUser(c.Request().Context(), p, userUid); err != nil {
		return toHTTPError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) PromoteToAdmin(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	userUid := c.Param("userUid")
	if userUid == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "empty userUid")
	}
	if err := h.userSvc.PromoteToAdmin(c.Request().Context(), p, userUid); err != nil {
		return toHTTPError(err)
	}
	return c.NoContent(http.StatusOK)
}
