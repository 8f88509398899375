package service

import (
	"context"

	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"

	"github.com/transtrike/Rent-A-Car-Exam/pkg/auth"
	"github.com/transtrike/Rent-A-Car-Exam/rental/internal/errs"
	"github.com/transtrike/Rent-A-Car-Exam/rental/internal/model"
)

func (s *Service) Register(ctx context.Context, req model.RegisterRequest) (model.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return model.User{}, errors.Wrap(err, "hash password")
	}
	return s.repo.CreateUser(ctx, model.User{
		Username:     req.Username,
		Email:        req.Email,
		EGN:          req.EGN,
		FirstName:    req.FirstName,
		MiddleName:   req.MiddleName,
		LastName:     req.LastName,
		PasswordHash: string(hash),
		Role:         auth.RoleUser,
	})
}

func (s *Service) Login(ctx context.Context, req model.LoginRequest) (model.TokenResponse, error) {
	user, err := s.repo.GetUserByUsername(ctx, req.Username)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return model.TokenResponse{}, errs.ErrUnauthorized
		}
		return model.TokenResponse{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return model.TokenResponse{}, errs.ErrUnauthorized
	}
	token, err := auth.NewToken(s.jwtCfg, auth.Principal{
		UserUid:  user.UserUid,
		Username: user.Username,
		Role:     user.Role,
	})
	if err != nil {
		return model.TokenResponse{}, errors.Wrap(err, "issue token")
	}
	return model.TokenResponse{Token: token}, nil
}

func (s *Service) GetUser(ctx context.Context, p auth.Principal, userUid string) (model.User, error) {
	if userUid != p.UserUid && !p.IsAdmin() {
		return model.User{}, errs.ErrUnauthorized
	}
	return s.repo.GetUser(ctx, userUid)
}

// EditUser updates the profile fields, restricted to the user themselves or
// an admin.
func (s *Service) EditUser(ctx context.Context, p auth.Principal, userUid string, req model.EditUserRequest) (model.User, error) {
	if userUid != p.UserUid && !p.IsAdmin() {
		return model.User{}, errs.ErrUnauthorized
	}
	return s.repo.UpdateUser(ctx, userUid, model.User{
		Email:      req.Email,
		FirstName:  req.FirstName,
		MiddleName: req.MiddleName,
		LastName:   req.LastName,
	})
}

// DeleteUser removes the account, restricted to the user themselves or an
// admin. Their reservations are removed with it.
func (s *Service) DeleteUser(ctx context.Context, p auth.Principal, userUid string) error {
	if userUid != p.UserUid && !p.IsAdmin() {
		return errs.ErrUnauthorized
	}
	return s.repo.DeleteUser(ctx, userUid)
}

func (s *Service) PromoteToAdmin(ctx context.Context, p auth.Principal, userUid string) error {
	if !p.IsAdmin() {
		return errs.ErrUnauthorized
	}
	return s.repo.SetUserRole(ctx, userUid, auth.RoleAdmin)
}
