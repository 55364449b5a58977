package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/atinyakov/LoginKeeper/internal/models"
)

var (
	// ErrDuplicate is returned when a live credential with the same website
	// and username already exists for the user.
	ErrDuplicate = errors.New("credential already exists")
	// ErrNotFound is returned when no live credential has the given ID.
	ErrNotFound = errors.New("credential not found")
)

const uniqueViolation = pq.ErrorCode("23505")

const credentialColumns = `id, website, url, username, password, category, notes, favorite, auto_saved, created_at, updated_at`

// PostgresCredentialRepository stores credentials in PostgreSQL. Deletion is
// soft; the cleaner in package db purges old tombstones.
type PostgresCredentialRepository struct {
	DB *sql.DB
}

func NewPostgresCredentialRepository(db *sql.DB) *PostgresCredentialRepository {
	return &PostgresCredentialRepository{DB: db}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// Search lists the user's live credentials matching f, ordered by website.
func (r *PostgresCredentialRepository) Search(ctx context.Context, login string, f models.SearchFilter) ([]models.StoredCredential, error) {
	var (
		sb   strings.Builder
		args = []any{login}
	)
	sb.WriteString(`SELECT ` + credentialColumns + ` FROM credentials WHERE user_login = $1 AND deleted = false`)
	if f.Query != "" {
		args = append(args, "%"+likeEscaper.Replace(f.Query)+"%")
		n := len(args)
		fmt.Fprintf(&sb, ` AND (website ILIKE $%d OR username ILIKE $%d OR notes ILIKE $%d)`, n, n, n)
	}
	if f.Category != "" {
		args = append(args, f.Category)
		fmt.Fprintf(&sb, ` AND category = $%d`, len(args))
	}
	if f.FavoritesOnly {
		sb.WriteString(` AND favorite = true`)
	}
	sb.WriteString(` ORDER BY website ASC`)

	rows, err := r.DB.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("search credentials: %w", err)
	}
	defer rows.Close()

	creds := []models.StoredCredential{}
	for rows.Next() {
		c, err := scanCredential(rows)
		if err != nil {
			return nil, err
		}
		creds = append(creds, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("search credentials: %w", err)
	}
	return creds, nil
}

// Exists reports whether a live credential with this website and username
// exists for the user.
func (r *PostgresCredentialRepository) Exists(ctx context.Context, login, website, username string) (bool, error) {
	var exists bool
	err := r.DB.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM credentials
			WHERE user_login = $1 AND website = $2 AND username = $3 AND deleted = false
		)
	`, login, website, username).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check credential: %w", err)
	}
	return exists, nil
}

// Create inserts c for the user. c.ID and the timestamps must be set.
func (r *PostgresCredentialRepository) Create(ctx context.Context, login string, c models.StoredCredential) error {
	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO credentials (id, user_login, website, url, username, password, category, notes, favorite, auto_saved, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, c.ID, login, c.Website, c.URL, c.Username, c.Password, c.Category, c.Notes, c.Favorite, c.AutoSaved, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return ErrDuplicate
		}
		return fmt.Errorf("insert credential: %w", err)
	}
	return nil
}

// GetByID returns one live credential of the user.
func (r *PostgresCredentialRepository) GetByID(ctx context.Context, login, id string) (models.StoredCredential, error) {
	row := r.DB.QueryRowContext(ctx, `
		SELECT `+credentialColumns+` FROM credentials
		WHERE user_login = $1 AND id = $2 AND deleted = false
	`, login, id)
	c, err := scanCredential(row)
	if errors.Is(err, sql.ErrNoRows) {
		return c, ErrNotFound
	}
	return c, err
}

// ToggleFavorite flips the favorite flag and returns the new value.
func (r *PostgresCredentialRepository) ToggleFavorite(ctx context.Context, login, id string, now int64) (bool, error) {
	var fav bool
	err := r.DB.QueryRowContext(ctx, `
		UPDATE credentials SET favorite = NOT favorite, updated_at = $3
		WHERE user_login = $1 AND id = $2 AND deleted = false
		RETURNING favorite
	`, login, id, now).Scan(&fav)
	if errors.Is(err, sql.ErrNoRows) {
		return false, ErrNotFound
	}
	if err != nil {
		return false, fmt.Errorf("toggle favorite: %w", err)
	}
	return fav, nil
}

// Delete marks the credential deleted. updated_at records the deletion time
// for the purge cutoff.
func (r *PostgresCredentialRepository) Delete(ctx context.Context, login, id string, now int64) error {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE credentials SET deleted = true, updated_at = $3
		WHERE user_login = $1 AND id = $2 AND deleted = false
	`, login, id, now)
	if err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCredential(s scanner) (models.StoredCredential, error) {
	var c models.StoredCredential
	err := s.Scan(&c.ID, &c.Website, &c.URL, &c.Username, &c.Password, &c.Category,
		&c.Notes, &c.Favorite, &c.AutoSaved, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return c, err
		}
		return c, fmt.Errorf("scan: %w", err)
	}
	return c, nil
}
