package repository

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/transtrike/Rent-A-Car-Exam/pkg/auth"
	"github.com/transtrike/Rent-A-Car-Exam/rental/internal/errs"
	"github.com/transtrike/Rent-A-Car-Exam/rental/internal/model"
)

const (
	usersTableName = `users`
	userColumns    = `id, user_uid, username, email, egn, first_name, middle_name, last_name, password_hash, role`
)

// CreateUser relies on the unique constraints on username/email/egn;
// a violation surfaces as ErrAlreadyExists.
func (r *repository) CreateUser(ctx context.Context, user model.User) (model.User, error) {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	q, args, err := qb.Insert(usersTableName).
		Columns("user_uid", "username", "email", "egn", "first_name", "middle_name", "last_name", "password_hash", "role").
		Values(uuid.New(), user.Username, user.Email, user.EGN,
			user.FirstName, user.MiddleName, user.LastName, user.PasswordHash, user.Role).
		Suffix("returning " + userColumns).
		ToSql()
	if err != nil {
		return model.User{}, err
	}
	var created model.User
	if err := r.db.GetContext(ctx, &created, q, args...); err != nil {
		r.log.Error("CreateUser", zap.String("q", q), zap.Error(err))
		return model.User{}, mapErr(err)
	}
	return created, nil
}

func (r *repository) GetUser(ctx context.Context, userUid string) (model.User, error) {
	return r.getUser(ctx, sq.Eq{"user_uid": userUid})
}

func (r *repository) GetUserByUsername(ctx context.Context, username string) (model.User, error) {
	return r.getUser(ctx, sq.Eq{"username": username})
}

func (r *repository) getUser(ctx context.Context, pred sq.Sqlizer) (model.User, error) {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	q, args, err := qb.Select(userColumns).
		From(usersTableName).
		Where(pred).
		Limit(1).
		ToSql()
	if err != nil {
		return model.User{}, err
	}
	var user model.User
	if err := r.db.GetContext(ctx, &user, q, args...); err != nil {
		return model.User{}, mapErr(err)
	}
	return user, nil
}

// UpdateUser edits the profile fields; username and EGN are immutable.
func (r *repository) UpdateUser(ctx context.Context, userUid string, user model.User) (model.User, error) {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	q, args, err := qb.Update(usersTableName).
		Set("email", user.Email).
		Set("first_name", user.FirstName).
		Set("middle_name", user.MiddleName).
		Set("last_name", user.LastName).
		Where(sq.Eq{"user_uid": userUid}).
		Suffix("returning " + userColumns).
		ToSql()
	if err != nil {
		return model.User{}, err
	}
	var updated model.User
	if err := r.db.GetContext(ctx, &updated, q, args...); err != nil {
		r.log.Error("UpdateUser", zap.String("q", q), zap.Error(err))
		return model.User{}, mapErr(err)
	}
	return updated, nil
}

// DeleteUser removes the user; their reservations go with them (FK cascade).
func (r *repository) DeleteUser(ctx context.Context, userUid string) error {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	q, args, err := qb.Delete(usersTableName).
		Where(sq.Eq{"user_uid": userUid}).
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

func (r *repository) SetUserRole(ctx context.Context, userUid string, role auth.Role) error {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	q, args, err := qb.Update(usersTableName).
		Set("role", role).
		Where(sq.Eq{"user_uid": userUid}).
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
