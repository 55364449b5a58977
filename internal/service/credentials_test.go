package service

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atinyakov/LoginKeeper/internal/health"
	"github.com/atinyakov/LoginKeeper/internal/metrics"
	"github.com/atinyakov/LoginKeeper/internal/models"
)

type mockCredentialRepo struct {
	SearchFunc         func(ctx context.Context, login string, f models.SearchFilter) ([]models.StoredCredential, error)
	ExistsFunc         func(ctx context.Context, login, website, username string) (bool, error)
	CreateFunc         func(ctx context.Context, login string, c models.StoredCredential) error
	GetByIDFunc        func(ctx context.Context, login, id string) (models.StoredCredential, error)
	ToggleFavoriteFunc func(ctx context.Context, login, id string, now int64) (bool, error)
	DeleteFunc         func(ctx context.Context, login, id string, now int64) error
}

func (m *mockCredentialRepo) Search(ctx context.Context, login string, f models.SearchFilter) ([]models.StoredCredential, error) {
	return m.SearchFunc(ctx, login, f)
}
func (m *mockCredentialRepo) Exists(ctx context.Context, login, website, username string) (bool, error) {
	return m.ExistsFunc(ctx, login, website, username)
}
func (m *mockCredentialRepo) Create(ctx context.Context, login string, c models.StoredCredential) error {
	return m.CreateFunc(ctx, login, c)
}
func (m *mockCredentialRepo) GetByID(ctx context.Context, login, id string) (models.StoredCredential, error) {
	return m.GetByIDFunc(ctx, login, id)
}
func (m *mockCredentialRepo) ToggleFavorite(ctx context.Context, login, id string, now int64) (bool, error) {
	return m.ToggleFavoriteFunc(ctx, login, id, now)
}
func (m *mockCredentialRepo) Delete(ctx context.Context, login, id string, now int64) error {
	return m.DeleteFunc(ctx, login, id, now)
}

func newTestService(repo CredentialRepository, m *metrics.Metrics) *CredentialService {
	svc := NewCredentialService(repo, m, nil)
	svc.now = func() time.Time { return time.Unix(1_700_000_000, 0) }
	svc.newID = func() string { return "id-1" }
	return svc
}

func scrape(t *testing.T, m *metrics.Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	return rec.Body.String()
}

func TestCreate(t *testing.T) {
	var stored models.StoredCredential
	repo := &mockCredentialRepo{
		CreateFunc: func(ctx context.Context, login string, c models.StoredCredential) error {
			assert.Equal(t, "alice", login)
			stored = c
			return nil
		},
	}
	m := metrics.New()
	svc := newTestService(repo, m)

	got, err := svc.Create(context.Background(), "alice", models.NewCredential{
		Website:   "example.com",
		URL:       "https://example.com/login",
		Username:  "a@x.com",
		Password:  "pw",
		AutoSaved: true,
	})
	require.NoError(t, err)

	want := models.StoredCredential{
		ID:        "id-1",
		Website:   "example.com",
		URL:       "https://example.com/login",
		Username:  "a@x.com",
		Password:  "pw",
		Category:  "General",
		AutoSaved: true,
		CreatedAt: 1_700_000_000,
		UpdatedAt: 1_700_000_000,
	}
	assert.Equal(t, want, got)
	assert.Equal(t, want, stored)
	assert.Contains(t, scrape(t, m), "loginkeeper_credentials_created_total 1")
}

func TestCreate_MissingField(t *testing.T) {
	svc := newTestService(&mockCredentialRepo{}, nil)

	tests := []struct {
		in   models.NewCredential
		want string
	}{
		{models.NewCredential{Username: "u", Password: "p"}, "Missing required field: website"},
		{models.NewCredential{Website: "w", Password: "p"}, "Missing required field: username"},
		{models.NewCredential{Website: "w", Username: "u"}, "Missing required field: password"},
	}
	for _, tt := range tests {
		_, err := svc.Create(context.Background(), "alice", tt.in)
		require.Error(t, err)
		assert.True(t, IsValidation(err))
		assert.Equal(t, tt.want, err.Error())
	}
}

func TestCreate_Duplicate(t *testing.T) {
	repo := &mockCredentialRepo{
		CreateFunc: func(ctx context.Context, login string, c models.StoredCredential) error { return ErrDuplicate },
	}
	m := metrics.New()
	svc := newTestService(repo, m)

	_, err := svc.Create(context.Background(), "alice", models.NewCredential{Website: "w", Username: "u", Password: "p"})
	assert.ErrorIs(t, err, ErrDuplicate)
	assert.Contains(t, scrape(t, m), "loginkeeper_credentials_created_total 0")
}

func TestExists(t *testing.T) {
	repo := &mockCredentialRepo{
		ExistsFunc: func(ctx context.Context, login, website, username string) (bool, error) {
			return website == "example.com" && username == "a@x.com", nil
		},
	}
	m := metrics.New()
	svc := newTestService(repo, m)

	ok, err := svc.Exists(context.Background(), "alice", models.ExistsQuery{Website: "example.com", Username: "a@x.com"})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.Exists(context.Background(), "alice", models.ExistsQuery{Website: "example.com", Username: "b"})
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = svc.Exists(context.Background(), "alice", models.ExistsQuery{Username: "b"})
	assert.True(t, IsValidation(err))

	body := scrape(t, m)
	assert.Contains(t, body, `loginkeeper_exists_checks_total{result="found"} 1`)
	assert.Contains(t, body, `loginkeeper_exists_checks_total{result="missing"} 1`)
}

func TestExists_RepoError(t *testing.T) {
	wantErr := errors.New("db down")
	svc := newTestService(&mockCredentialRepo{
		ExistsFunc: func(ctx context.Context, login, website, username string) (bool, error) { return false, wantErr },
	}, nil)

	_, err := svc.Exists(context.Background(), "alice", models.ExistsQuery{Website: "w"})
	assert.ErrorIs(t, err, wantErr)
}

func TestDeleteAndFavoriteStampNow(t *testing.T) {
	var deletedAt, toggledAt int64
	svc := newTestService(&mockCredentialRepo{
		DeleteFunc: func(ctx context.Context, login, id string, now int64) error {
			deletedAt = now
			return nil
		},
		ToggleFavoriteFunc: func(ctx context.Context, login, id string, now int64) (bool, error) {
			toggledAt = now
			return true, nil
		},
	}, nil)

	require.NoError(t, svc.Delete(context.Background(), "alice", "c1"))
	fav, err := svc.ToggleFavorite(context.Background(), "alice", "c1")
	require.NoError(t, err)
	assert.True(t, fav)
	assert.EqualValues(t, 1_700_000_000, deletedAt)
	assert.EqualValues(t, 1_700_000_000, toggledAt)
}

func TestHealth(t *testing.T) {
	svc := newTestService(&mockCredentialRepo{
		SearchFunc: func(ctx context.Context, login string, f models.SearchFilter) ([]models.StoredCredential, error) {
			assert.Equal(t, models.SearchFilter{}, f)
			return []models.StoredCredential{
				{Website: "a", Password: "p"},
				{Website: "b", Password: "p"},
			}, nil
		},
	}, nil)

	sum, err := svc.Health(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Total)
	assert.Equal(t, 2, sum.Reused)
	require.Len(t, sum.ReusedSets, 1)
	assert.Equal(t, []string{"a", "b"}, sum.ReusedSets[0].Sites)
}

func TestCheckStrength(t *testing.T) {
	svc := newTestService(&mockCredentialRepo{}, nil)

	c, err := svc.CheckStrength("Tr0ub4dor&9Zz!")
	require.NoError(t, err)
	assert.Equal(t, health.VeryStrong, c.Level)

	_, err = svc.CheckStrength("")
	assert.True(t, IsValidation(err))
}
