package auth

// Package auth contains simple hand-written test doubles for auth ports.
// These are lightweight and suitable for unit tests without codegen.

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	domainauth "github.com/target/ldap-user-collection/internal/domain/auth"
	"github.com/target/ldap-user-collection/internal/ports"
)

// Ensure compile-time conformance to ports.
var (
	_ ports.Directory      = (*StaticDirectory)(nil)
	_ ports.SessionStore   = (*MemorySessionStore)(nil)
	_ ports.SessionManager = (*MemorySession)(nil)
)

// StaticDirectory simulates a directory with a fixed credential table.
type StaticDirectory struct {
	AuthenticateFunc func(ctx context.Context, username, password string) domainauth.DirectoryResult

	// Users maps username to password.
	Users map[string]string
	// Result overrides the outcome reported for accepted credentials (default DirectoryAuthenticated).
	Result domainauth.DirectoryResult

	mu    sync.Mutex
	calls []string
}

// NewStaticDirectory creates a StaticDirectory accepting the given username/password pairs.
func NewStaticDirectory(users map[string]string) *StaticDirectory {
	return &StaticDirectory{Users: users}
}

func (d *StaticDirectory) Authenticate(ctx context.Context, username, password string) domainauth.DirectoryResult {
	d.mu.Lock()
	d.calls = append(d.calls, username)
	d.mu.Unlock()

	if d.AuthenticateFunc != nil {
		return d.AuthenticateFunc(ctx, username, password)
	}
	want, ok := d.Users[username]
	if !ok || password == "" || want != password {
		return domainauth.DirectoryRejected
	}
	if d.Result != domainauth.DirectoryRejected {
		return d.Result
	}
	return domainauth.DirectoryAuthenticated
}

// Calls returns the usernames the directory was asked about, in order.
func (d *StaticDirectory) Calls() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.calls...)
}

// MemorySessionStore is an in-memory session store for unit tests.
type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]domainauth.Session
}

// NewMemorySessionStore creates a new in-memory session store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		sessions: make(map[string]domainauth.Session),
	}
}

func (m *MemorySessionStore) Save(_ context.Context, sess domainauth.Session) error {
	if sess.ID == "" {
		return errors.New("session ID cannot be empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[sess.ID] = sess
	return nil
}

func (m *MemorySessionStore) Get(_ context.Context, id string) (domainauth.Session, error) {
	if id == "" {
		return domainauth.Session{}, ErrNotFound
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[id]
	if !ok {
		return domainauth.Session{}, ErrNotFound
	}
	return sess, nil
}

func (m *MemorySessionStore) Delete(_ context.Context, id string) error {
	if id == "" {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

// Len returns the number of stored sessions.
func (m *MemorySessionStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// ErrNotFound is returned by mocks when a session is not present.
var ErrNotFound = ports.ErrSessionNotFound

// MemorySession is a per-request session handle that records what the orchestrator did to it.
type MemorySession struct {
	Data    *domainauth.Session
	Saved       int
	Removed     int
	Regenerated int

	SaveErr   error
	RemoveErr error
}

// NewMemorySession returns a handle with no session data.
func NewMemorySession() *MemorySession {
	return &MemorySession{}
}

// NewAuthenticatedSession returns a handle already bound to uid at path.
func NewAuthenticatedSession(path, uid string) *MemorySession {
	return &MemorySession{Data: &domainauth.Session{
		ID:        uuid.New().String(),
		Path:      path,
		UID:       uid,
		ExpiresAt: time.Now().Add(time.Hour),
	}}
}

func (s *MemorySession) Current() *domainauth.Session { return s.Data }

func (s *MemorySession) Set(path, uid string) {
	if s.Data == nil {
		s.Data = &domainauth.Session{}
	}
	s.Data.Path = path
	s.Data.UID = uid
}

// Regenerate replaces the session data with an empty session under a new id.
func (s *MemorySession) Regenerate(context.Context) error {
	s.Data = &domainauth.Session{ID: uuid.New().String()}
	s.Regenerated++
	return nil
}

func (s *MemorySession) Save(context.Context) error {
	if s.SaveErr != nil {
		return s.SaveErr
	}
	if s.Data == nil {
		s.Data = &domainauth.Session{}
	}
	if s.Data.ID == "" {
		s.Data.ID = uuid.New().String()
	}
	s.Saved++
	return nil
}

func (s *MemorySession) Remove(context.Context) error {
	if s.RemoveErr != nil {
		return s.RemoveErr
	}
	s.Data = nil
	s.Removed++
	return nil
}
