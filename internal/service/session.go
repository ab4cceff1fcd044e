package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	domainauth "github.com/target/ldap-user-collection/internal/domain/auth"
	"github.com/target/ldap-user-collection/internal/ports"
)

// DefaultSessionTTL bounds a session when no TTL is configured.
const DefaultSessionTTL = 24 * time.Hour

// SessionServiceOptions groups dependencies for SessionService.
type SessionServiceOptions struct {
	Store  ports.SessionStore
	TTL    time.Duration
	Logger *slog.Logger
}

// SessionService loads per-request session handles from a SessionStore.
type SessionService struct {
	store  ports.SessionStore
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time
}

// NewSessionService constructs a new SessionService.
func NewSessionService(opts SessionServiceOptions) *SessionService {
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionService{
		store:  opts.Store,
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
	}
}

// Load returns a handle for the session with the given id.
// Unknown, empty, or expired ids yield an empty handle; only store failures are errors.
func (s *SessionService) Load(ctx context.Context, id string) (*StoredSession, error) {
	h := &StoredSession{svc: s}
	if id == "" {
		return h, nil
	}

	sess, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ports.ErrSessionNotFound) {
			return h, nil
		}
		return nil, fmt.Errorf("get session: %w", err)
	}

	if s.now().After(sess.ExpiresAt) {
		if deleteErr := s.store.Delete(ctx, id); deleteErr != nil {
			s.logger.WarnContext(ctx, "failed to delete expired session", "error", deleteErr)
		}
		return h, nil
	}

	h.data = &sess
	return h, nil
}

// StoredSession is the ports.SessionManager for one request, backed by a SessionStore.
type StoredSession struct {
	svc  *SessionService
	data *domainauth.Session
}

var _ ports.SessionManager = (*StoredSession)(nil)

// Current returns the session data, or nil when there is none.
func (h *StoredSession) Current() *domainauth.Session {
	return h.data
}

// Set binds the session to path and uid. It takes effect on Save.
func (h *StoredSession) Set(path, uid string) {
	if h.data == nil {
		h.data = &domainauth.Session{}
	}
	h.data.Path = path
	h.data.UID = uid
}

// Save persists the session, assigning an id on first save and renewing its expiry.
func (h *StoredSession) Save(ctx context.Context) error {
	if h.data == nil {
		h.data = &domainauth.Session{}
	}
	if h.data.ID == "" {
		h.data.ID = generateSessionID()
	}
	h.data.ExpiresAt = h.svc.now().Add(h.svc.ttl)

	if err := h.svc.store.Save(ctx, *h.data); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Regenerate deletes the stored session, if any, and replaces it with an empty session under a fresh id.
// Logins call it so an id known before authentication never carries the new identity.
func (h *StoredSession) Regenerate(ctx context.Context) error {
	if h.data != nil && h.data.ID != "" {
		if err := h.svc.store.Delete(ctx, h.data.ID); err != nil {
			return fmt.Errorf("delete previous session: %w", err)
		}
	}
	h.data = &domainauth.Session{ID: generateSessionID()}
	return nil
}

// Remove deletes the session. It is a no-op when there is no session.
func (h *StoredSession) Remove(ctx context.Context) error {
	if h.data == nil {
		return nil
	}
	id := h.data.ID
	h.data = nil
	if err := h.svc.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// generateSessionID creates a cryptographically secure random session ID.
func generateSessionID() string {
	// Use UUID for session ID - it's URL-safe and has good entropy
	return uuid.New().String()
}
