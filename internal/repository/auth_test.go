package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atinyakov/LoginKeeper/internal/models"
)

var sessionQuery = regexp.QuoteMeta(`SELECT login FROM users WHERE login = $1`)

func setupAuthMock(t *testing.T) (*PostgresAuthRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresAuthRepository(db), mock
}

func TestSession_Known(t *testing.T) {
	repo, mock := setupAuthMock(t)
	mock.ExpectQuery(sessionQuery).
		WithArgs("alice").
		WillReturnRows(sqlmock.NewRows([]string{"login"}).AddRow("alice"))

	s, err := repo.Session(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, models.Session{Authenticated: true, User: "alice"}, s)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSession_Unknown(t *testing.T) {
	repo, mock := setupAuthMock(t)
	mock.ExpectQuery(sessionQuery).
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"login"}))

	s, err := repo.Session(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Equal(t, models.Session{}, s)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSession_Error(t *testing.T) {
	repo, mock := setupAuthMock(t)
	mock.ExpectQuery(sessionQuery).
		WithArgs("user3").
		WillReturnError(errors.New("query failed"))

	_, err := repo.Session(context.Background(), "user3")
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateUser(t *testing.T) {
	insert := regexp.QuoteMeta(`INSERT INTO users (login) VALUES ($1) ON CONFLICT (login) DO NOTHING`)

	for _, tc := range []struct {
		name     string
		affected int64
		want     bool
	}{
		{"new login", 1, true},
		{"taken login", 0, false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			repo, mock := setupAuthMock(t)
			mock.ExpectExec(insert).
				WithArgs("newuser").
				WillReturnResult(sqlmock.NewResult(0, tc.affected))

			created, err := repo.CreateUser(context.Background(), "newuser")
			require.NoError(t, err)
			assert.Equal(t, tc.want, created)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestCreateUser_Error(t *testing.T) {
	repo, mock := setupAuthMock(t)
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO users (login) VALUES ($1)`)).
		WithArgs("dupuser").
		WillReturnError(errors.New("insert failed"))

	_, err := repo.CreateUser(context.Background(), "dupuser")
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
