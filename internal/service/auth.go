// Package service provides the business logic of the storage backend,
// delegating persistence to repository interfaces.
package service

import (
	"context"
	"errors"
	"strings"

	"github.com/atinyakov/LoginKeeper/internal/models"
)

// ErrUserExists is returned by Register for a login that is already taken.
var ErrUserExists = errors.New("user already exists")

// AuthRepository defines the persistence operations
// required by the authentication service.
type AuthRepository interface {
	// Session returns the session of login; unknown logins are unauthenticated.
	Session(ctx context.Context, login string) (models.Session, error)
	// CreateUser inserts login and reports false when it was already taken.
	CreateUser(ctx context.Context, login string) (bool, error)
}

// Service implements authentication operations by delegating
// to an AuthRepository.
type Service struct {
	repo AuthRepository
}

// NewAuthService constructs a new Service using the provided repository.
func NewAuthService(repo AuthRepository) *Service {
	return &Service{repo: repo}
}

// Register validates login and creates the user. The login becomes the
// Common Name of the user's certificate.
func (s *Service) Register(ctx context.Context, login string) error {
	if login == "" || strings.ContainsAny(login, " \t\r\n/") {
		return ValidationError("login must be non-empty and contain no spaces or slashes")
	}
	created, err := s.repo.CreateUser(ctx, login)
	if err != nil {
		return err
	}
	if !created {
		return ErrUserExists
	}
	return nil
}

// Session reports whether login names a registered user. An empty login
// (no client certificate) is unauthenticated.
func (s *Service) Session(ctx context.Context, login string) (models.Session, error) {
	if login == "" {
		return models.Session{}, nil
	}
	return s.repo.Session(ctx, login)
}
