package service

import (
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/upay2home/auth-backend/internal/util"
)

var (
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrInvalidResetRequest = errors.New("invalid request")
	ErrPasswordTooShort    = util.ErrPasswordTooShort
	ErrResetTokenInvalid   = errors.New("invalid or expired token")
	ErrInvalidGoogleToken  = errors.New("invalid google token")
	ErrUnauthorized        = errors.New("unauthorized")
)

func isNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
