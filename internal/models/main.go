// Package models defines the core data structures shared by the capture
// engine, the storage-backend client and the storage backend itself.
package models

import "time"

// User represents an account of the storage backend.
type User struct {
	// Login is the certificate Common Name the user registered with.
	Login string
}

// CapturedCredential is a username/password pair recorded from a page visit
// before the page navigates away.
type CapturedCredential struct {
	Username string `json:"username"`
	Password string `json:"password"`
	// Website is the bare hostname of the page, e.g. "accounts.example.com".
	Website string `json:"website"`
	// URL is the full page address.
	URL string `json:"url"`
	// Timestamp is stamped at finalization.
	Timestamp time.Time `json:"-"`
}

// Complete reports whether both halves of the credential are present.
func (c CapturedCredential) Complete() bool {
	return c.Username != "" && c.Password != ""
}

// StoredCredential is a credential persisted by the storage backend.
type StoredCredential struct {
	// ID is the unique identifier of the record.
	ID string `json:"id"`
	// Website is the site key the credential belongs to.
	Website string `json:"website"`
	// URL is the page address the credential was captured from, if any.
	URL      string `json:"url"`
	Username string `json:"username"`
	Password string `json:"password"`
	// Category is one of the Category constants or a user-defined name.
	Category string `json:"category"`
	Notes    string `json:"notes"`
	Favorite bool   `json:"favorite"`
	// AutoSaved marks records created by the capture engine.
	AutoSaved bool `json:"auto_saved"`
	// CreatedAt and UpdatedAt are Unix seconds.
	CreatedAt int64 `json:"created_at"`
	UpdatedAt int64 `json:"updated_at"`
}

// NewCredential is the payload of a create request.
type NewCredential struct {
	Website   string `json:"website"`
	URL       string `json:"url"`
	Username  string `json:"username"`
	Password  string `json:"password"`
	Category  string `json:"category"`
	Notes     string `json:"notes"`
	AutoSaved bool   `json:"auto_saved"`
}

// ExistsQuery identifies a credential by its uniqueness key.
type ExistsQuery struct {
	Website  string `json:"website"`
	Username string `json:"username"`
}

// Session is the result of session introspection.
type Session struct {
	Authenticated bool   `json:"authenticated"`
	User          string `json:"user,omitempty"`
}

// Category names a group of credentials.
type Category string

const (
	// General is the default category.
	General       Category = "General"
	SocialMedia   Category = "Social Media"
	Email         Category = "Email"
	Banking       Category = "Banking"
	Shopping      Category = "Shopping"
	Work          Category = "Work"
	Entertainment Category = "Entertainment"
	Other         Category = "Other"
)

// SearchFilter narrows a credential listing. Zero values match everything.
type SearchFilter struct {
	// Query is matched case-insensitively against website, username and notes.
	Query         string
	Category      string
	FavoritesOnly bool
}
