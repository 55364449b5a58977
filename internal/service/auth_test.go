package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atinyakov/LoginKeeper/internal/models"
)

type mockAuthRepo struct {
	SessionFunc    func(ctx context.Context, login string) (models.Session, error)
	CreateUserFunc func(ctx context.Context, login string) (bool, error)
}

func (m *mockAuthRepo) Session(ctx context.Context, login string) (models.Session, error) {
	return m.SessionFunc(ctx, login)
}
func (m *mockAuthRepo) CreateUser(ctx context.Context, login string) (bool, error) {
	return m.CreateUserFunc(ctx, login)
}

func TestRegister(t *testing.T) {
	var registered []string
	repo := &mockAuthRepo{
		CreateUserFunc: func(ctx context.Context, login string) (bool, error) {
			if login == "taken" {
				return false, nil
			}
			registered = append(registered, login)
			return true, nil
		},
	}
	svc := NewAuthService(repo)

	require.NoError(t, svc.Register(context.Background(), "carol"))
	assert.Equal(t, []string{"carol"}, registered)

	assert.ErrorIs(t, svc.Register(context.Background(), "taken"), ErrUserExists)
}

func TestRegister_InvalidLogin(t *testing.T) {
	svc := NewAuthService(&mockAuthRepo{})
	for _, login := range []string{"", "with space", "a/b"} {
		err := svc.Register(context.Background(), login)
		assert.True(t, IsValidation(err), login)
	}
}

func TestRegister_RepoError(t *testing.T) {
	wantErr := errors.New("db error")
	svc := NewAuthService(&mockAuthRepo{
		CreateUserFunc: func(ctx context.Context, login string) (bool, error) { return false, wantErr },
	})
	assert.ErrorIs(t, svc.Register(context.Background(), "dave"), wantErr)
}

func TestSession(t *testing.T) {
	calls := 0
	svc := NewAuthService(&mockAuthRepo{
		SessionFunc: func(ctx context.Context, login string) (models.Session, error) {
			calls++
			if login == "alice" {
				return models.Session{Authenticated: true, User: login}, nil
			}
			return models.Session{}, nil
		},
	})

	s, err := svc.Session(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, models.Session{Authenticated: true, User: "alice"}, s)

	s, err = svc.Session(context.Background(), "ghost")
	require.NoError(t, err)
	assert.False(t, s.Authenticated)

	s, err = svc.Session(context.Background(), "")
	require.NoError(t, err)
	assert.False(t, s.Authenticated)
	assert.Equal(t, 2, calls, "no lookup without a certificate")
}
