package httpx

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	apperrors "github.com/target/ldap-user-collection/internal/errors"
	"github.com/target/ldap-user-collection/internal/service"
)

// UserService is the collection the handler serves; *service.UserCollection implements it.
type UserService interface {
	Path() string
	Handle(ctx context.Context, req *service.Request) (*service.Response, error)
}

// SessionLoader resolves the caller's session; *service.SessionService implements it.
type SessionLoader interface {
	Load(ctx context.Context, id string) (*service.StoredSession, error)
}

// UserHandlers adapts HTTP requests onto the user collection.
type UserHandlers struct {
	Svc          UserService
	Sessions     SessionLoader
	RootKey      string
	CookieDomain string
	MaxBodyBytes int64
	Logger       *slog.Logger
}

func (h *UserHandlers) logger() *slog.Logger {
	if h.Logger == nil {
		return slog.Default()
	}
	return h.Logger
}

// ServeHTTP handles every method on the collection path and below it.
func (h *UserHandlers) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	query, err := parseQuery(r.URL.Query())
	if err != nil {
		RenderError(w, r, err, h.logger())
		return
	}

	limit := h.MaxBodyBytes
	if limit <= 0 {
		limit = DefaultMaxBodyBytes
	}
	body, err := decodeBody(w, r, limit)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			WriteError(w, ErrorParams{Code: http.StatusRequestEntityTooLarge, ErrCode: "body_too_large", Err: err})
			return
		}
		RenderError(w, r, apperrors.Validation("invalid JSON body: "+err.Error()), h.logger())
		return
	}

	req := &service.Request{
		Method: r.Method,
		URL:    h.subPath(r.URL.Path),
		Query:  query,
		Body:   body,
		Root:   h.isRoot(r),
	}
	if h.Sessions != nil {
		var sid string
		if c, cookieErr := r.Cookie(SessionCookieName); cookieErr == nil {
			sid = c.Value
		}
		stored, loadErr := h.Sessions.Load(r.Context(), sid)
		if loadErr != nil {
			RenderError(w, r, loadErr, h.logger())
			return
		}
		req.Session = &cookieSession{StoredSession: stored, w: w, r: r, domain: h.CookieDomain}
	}

	resp, err := h.Svc.Handle(r.Context(), req)
	if err != nil {
		RenderError(w, r, err, h.logger())
		return
	}
	if resp.Body == nil {
		w.WriteHeader(resp.Status)
		return
	}
	WriteJSON(w, resp.Status, resp.Body)
}

// subPath returns the request path below the collection mount, without a trailing slash.
func (h *UserHandlers) subPath(p string) string {
	sub := strings.TrimPrefix(p, h.Svc.Path())
	return strings.TrimSuffix(sub, "/")
}

func (h *UserHandlers) isRoot(r *http.Request) bool {
	if h.RootKey == "" {
		return false
	}
	got := r.Header.Get(RootKeyHeader)
	return subtle.ConstantTimeCompare([]byte(got), []byte(h.RootKey)) == 1
}
