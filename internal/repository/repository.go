package repository

import (
	"context"
	"database/sql"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/eventium/auth-service/internal/errs"
	"github.com/eventium/auth-service/internal/model"
)

//go:generate go run github.com/golang/mock/mockgen -source=repository.go -destination=mocks/mock.go

type Repository interface {
	FindByEmail(ctx context.Context, email string) (model.User, error)
	FindByID(ctx context.Context, id string) (model.User, error)
	Create(ctx context.Context, user model.CreateUser) (model.User, error)
	MarkVerified(ctx context.Context, email, externalUserID string) (model.User, error)
}

type repository struct {
	db  *sqlx.DB
	log *zap.Logger
}

func NewRepository(db *sqlx.DB, log *zap.Logger) (*repository, error) {
	return &repository{
		db:  db,
		log: log.Named("repo"),
	}, nil
}

const (
	usersTableName = `users`
)

var qb = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var userColumns = []string{"id", "email", "username", "first_name", "last_name", "role", "verified", "external_user_id", "created_at"}

func (r *repository) FindByEmail(ctx context.Context, email string) (model.User, error) {
	query, args, err := qb.Select(userColumns...).
		From(usersTableName).
		Where(sq.Eq{"email": email}).
		Limit(1).
		ToSql()
	if err != nil {
		return model.User{}, err
	}

	var user model.User
	if err := r.db.GetContext(ctx, &user, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.User{}, errs.ErrNotFound
		}
		return model.User{}, err
	}
	return user, nil
}

func (r *repository) FindByID(ctx context.Context, id string) (model.User, error) {
	query, args, err := qb.Select(userColumns...).
		From(usersTableName).
		Where(sq.Eq{"id": id}).
		Limit(1).
		ToSql()
	if err != nil {
		return model.User{}, err
	}

	var user model.User
	if err := r.db.GetContext(ctx, &user, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.User{}, errs.ErrNotFound
		}
		return model.User{}, err
	}
	return user, nil
}

func (r *repository) Create(ctx context.Context, user model.CreateUser) (model.User, error) {
	role := user.Role
	if role == "" {
		role = model.RoleUser
	}
	query, args, err := qb.Insert(usersTableName).
		Columns("id", "email", "username", "first_name", "last_name", "role", "verified", "external_user_id").
		Values(uuid.New(), user.Email, user.Username, user.FirstName, user.LastName, role, user.Verified, user.ExternalUserID).
		Suffix("returning " + columnList()).
		ToSql()
	if err != nil {
		return model.User{}, err
	}

	var created model.User
	if err := r.db.GetContext(ctx, &created, query, args...); err != nil {
		if isUniqueViolation(err) {
			return model.User{}, errs.ErrEmailExists
		}
		r.log.Error("Create", zap.String("q", query), zap.Error(err))
		return model.User{}, err
	}
	return created, nil
}

func (r *repository) MarkVerified(ctx context.Context, email, externalUserID string) (model.User, error) {
	query, args, err := qb.Update(usersTableName).
		Set("verified", true).
		Set("external_user_id", externalUserID).
		Where(sq.Eq{"email": email}).
		Suffix("returning " + columnList()).
		ToSql()
	if err != nil {
		return model.User{}, err
	}

	var user model.User
	if err := r.db.GetContext(ctx, &user, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.User{}, errs.ErrNotFound
		}
		return model.User{}, err
	}
	return user, nil
}

// isUniqueViolation reports whether err is a Postgres unique-constraint
// violation (SQLSTATE 23505). The remap to the domain conflict error happens
// here so two concurrent inserts race at the storage layer and the loser
// still observes a conflict, not a raw driver error.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

func columnList() string {
	return strings.Join(userColumns, ", ")
}
