package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/atinyakov/LoginKeeper/internal/health"
	"github.com/atinyakov/LoginKeeper/internal/metrics"
	"github.com/atinyakov/LoginKeeper/internal/models"
	"github.com/atinyakov/LoginKeeper/internal/repository"
)

// ValidationError is a client error whose text is safe to return verbatim.
type ValidationError string

func (e ValidationError) Error() string { return string(e) }

var (
	ErrDuplicate = repository.ErrDuplicate
	ErrNotFound  = repository.ErrNotFound
)

// CredentialRepository defines the persistence operations needed by the
// CredentialService.
type CredentialRepository interface {
	Search(ctx context.Context, login string, f models.SearchFilter) ([]models.StoredCredential, error)
	Exists(ctx context.Context, login, website, username string) (bool, error)
	Create(ctx context.Context, login string, c models.StoredCredential) error
	GetByID(ctx context.Context, login, id string) (models.StoredCredential, error)
	ToggleFavorite(ctx context.Context, login, id string, now int64) (bool, error)
	Delete(ctx context.Context, login, id string, now int64) error
}

// CredentialService implements the credential store operations for one
// authenticated user at a time.
type CredentialService struct {
	repo    CredentialRepository
	metrics *metrics.Metrics
	log     *zap.Logger

	now   func() time.Time
	newID func() string
}

// NewCredentialService constructs a CredentialService. m and log may be nil.
func NewCredentialService(repo CredentialRepository, m *metrics.Metrics, log *zap.Logger) *CredentialService {
	if log == nil {
		log = zap.NewNop()
	}
	return &CredentialService{
		repo:    repo,
		metrics: m,
		log:     log,
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

func (s *CredentialService) Search(ctx context.Context, login string, f models.SearchFilter) ([]models.StoredCredential, error) {
	return s.repo.Search(ctx, login, f)
}

func (s *CredentialService) Get(ctx context.Context, login, id string) (models.StoredCredential, error) {
	return s.repo.GetByID(ctx, login, id)
}

// Exists checks the (website, username) uniqueness key.
func (s *CredentialService) Exists(ctx context.Context, login string, q models.ExistsQuery) (bool, error) {
	if q.Website == "" {
		return false, ValidationError("Website is required")
	}
	found, err := s.repo.Exists(ctx, login, q.Website, q.Username)
	if err != nil {
		return false, err
	}
	s.metrics.ExistsChecked(found)
	return found, nil
}

// Create stores a new credential. A live credential with the same website
// and username yields ErrDuplicate.
func (s *CredentialService) Create(ctx context.Context, login string, nc models.NewCredential) (models.StoredCredential, error) {
	for _, f := range []struct{ name, value string }{
		{"website", nc.Website},
		{"username", nc.Username},
		{"password", nc.Password},
	} {
		if f.value == "" {
			return models.StoredCredential{}, ValidationError("Missing required field: " + f.name)
		}
	}
	category := nc.Category
	if category == "" {
		category = string(models.General)
	}

	now := s.now().Unix()
	c := models.StoredCredential{
		ID:        s.newID(),
		Website:   nc.Website,
		URL:       nc.URL,
		Username:  nc.Username,
		Password:  nc.Password,
		Category:  category,
		Notes:     nc.Notes,
		AutoSaved: nc.AutoSaved,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Create(ctx, login, c); err != nil {
		return models.StoredCredential{}, err
	}
	s.metrics.CredentialCreated()
	s.log.Info("credential stored",
		zap.String("id", c.ID),
		zap.String("website", c.Website),
		zap.Bool("auto_saved", c.AutoSaved),
	)
	return c, nil
}

func (s *CredentialService) ToggleFavorite(ctx context.Context, login, id string) (bool, error) {
	return s.repo.ToggleFavorite(ctx, login, id, s.now().Unix())
}

func (s *CredentialService) Delete(ctx context.Context, login, id string) error {
	return s.repo.Delete(ctx, login, id, s.now().Unix())
}

// Health analyses every live credential of the user.
func (s *CredentialService) Health(ctx context.Context, login string) (health.Summary, error) {
	creds, err := s.repo.Search(ctx, login, models.SearchFilter{})
	if err != nil {
		return health.Summary{}, err
	}
	return health.Analyze(creds), nil
}

// CheckStrength assesses a password without storing it.
func (s *CredentialService) CheckStrength(password string) (health.Check, error) {
	if password == "" {
		return health.Check{}, ValidationError("Password is required")
	}
	return health.Inspect(password), nil
}

// IsValidation reports whether err should be shown to the client as a 400.
func IsValidation(err error) bool {
	var v ValidationError
	return errors.As(err, &v)
}
