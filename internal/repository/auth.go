// Package repository provides PostgreSQL persistence for users and their
// stored credentials.
package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/atinyakov/LoginKeeper/internal/models"
)

// PostgresAuthRepository stores the accounts whose certificate Common Name
// identifies a session.
type PostgresAuthRepository struct {
	DB *sql.DB
}

func NewPostgresAuthRepository(db *sql.DB) *PostgresAuthRepository {
	return &PostgresAuthRepository{DB: db}
}

// Session looks login up and reports it as an authenticated session when the
// account exists. An unknown login is an unauthenticated session, not an error.
func (s *PostgresAuthRepository) Session(ctx context.Context, login string) (models.Session, error) {
	var user string
	err := s.DB.QueryRowContext(ctx, `SELECT login FROM users WHERE login = $1`, login).Scan(&user)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Session{}, nil
	}
	if err != nil {
		return models.Session{}, err
	}
	return models.Session{Authenticated: true, User: user}, nil
}

// CreateUser inserts the account and reports whether it was new. A taken
// login leaves the table unchanged and returns false.
func (s *PostgresAuthRepository) CreateUser(ctx context.Context, login string) (bool, error) {
	res, err := s.DB.ExecContext(ctx,
		`INSERT INTO users (login) VALUES ($1) ON CONFLICT (login) DO NOTHING`,
		login,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
