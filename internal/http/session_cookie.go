package httpx

import (
	"context"
	"net/http"
	"strings"
	"time"

	domainauth "github.com/target/ldap-user-collection/internal/domain/auth"
	"github.com/target/ldap-user-collection/internal/ports"
	"github.com/target/ldap-user-collection/internal/service"
)

// cookieSession mirrors session saves and removals into the sid cookie of the response.
type cookieSession struct {
	*service.StoredSession
	w      http.ResponseWriter
	r      *http.Request
	domain string
}

var _ ports.SessionManager = (*cookieSession)(nil)

func (s *cookieSession) Save(ctx context.Context) error {
	if err := s.StoredSession.Save(ctx); err != nil {
		return err
	}
	if cur := s.Current(); cur != nil {
		setSessionCookie(s.w, s.r, s.domain, *cur)
	}
	return nil
}

// Remove deletes the stored session and always clears the cookie, even when no session was loaded.
func (s *cookieSession) Remove(ctx context.Context) error {
	err := s.StoredSession.Remove(ctx)
	clearCookie(s.w, s.r, s.domain)
	return err
}

func isSecure(r *http.Request) bool {
	return r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}

// setSessionCookie writes the session cookie based on the session's expiry.
func setSessionCookie(w http.ResponseWriter, r *http.Request, domain string, s domainauth.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    s.ID,
		Path:     "/",
		Domain:   domain,
		HttpOnly: true,
		Secure:   isSecure(r),
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(time.Until(s.ExpiresAt).Seconds()),
	})
}

// clearCookie expires the session cookie, mirroring the attributes used when setting it.
func clearCookie(w http.ResponseWriter, r *http.Request, domain string) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		Domain:   domain,
		HttpOnly: true,
		Secure:   isSecure(r),
		MaxAge:   -1,
		Expires:  time.Unix(0, 0).UTC(),
		SameSite: http.SameSiteLaxMode,
	})
}
