package ports

// Package ports defines interfaces (hexagonal ports) for auth-related behavior.
// Implementations live in internal/adapters; orchestration in internal/service.

import (
	"context"
	"errors"

	domainauth "github.com/target/ldap-user-collection/internal/domain/auth"
)

// Directory checks credentials against an external identity source.
// Implementations never return protocol errors; failures collapse to DirectoryRejected.
type Directory interface {
	Authenticate(ctx context.Context, username, password string) domainauth.DirectoryResult
}

// ErrSessionNotFound is returned by SessionStore.Get for unknown or expired sessions.
var ErrSessionNotFound = errors.New("session not found")

// SessionStore persists and retrieves user sessions.
type SessionStore interface {
	Save(ctx context.Context, sess domainauth.Session) error
	Get(ctx context.Context, id string) (domainauth.Session, error)
	Delete(ctx context.Context, id string) error
}

// SessionManager is the per-request handle on the caller's session.
type SessionManager interface {
	// Current returns the session data, or nil when the caller has none.
	Current() *domainauth.Session
	// Set binds the session to a resource path and user id; Save persists it.
	Set(path, uid string)
	// Regenerate discards any stored session and starts an empty one under a new id.
	Regenerate(ctx context.Context) error
	Save(ctx context.Context) error
	// Remove deletes the session. Removing an absent session is not an error.
	Remove(ctx context.Context) error
}
