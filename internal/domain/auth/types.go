package auth

// Package auth contains domain-level types for authentication and sessions.
// It is pure and free of framework/adapter concerns.

import "time"

// DirectoryResult is the outcome of a directory credential check.
// Protocol errors never escape a directory; they collapse into one of these values.
type DirectoryResult int

const (
	// DirectoryRejected covers wrong credentials and any protocol failure.
	DirectoryRejected DirectoryResult = iota
	// DirectoryAuthenticated means the directory accepted the credentials.
	DirectoryAuthenticated
	// DirectoryBoundSearchFailed means the bind succeeded but the follow-up entry lookup failed.
	DirectoryBoundSearchFailed
)

// Accepted reports whether the credentials were proven by the directory.
// A successful bind is the credential check, so a failed follow-up search still counts.
func (r DirectoryResult) Accepted() bool {
	return r == DirectoryAuthenticated || r == DirectoryBoundSearchFailed
}

func (r DirectoryResult) String() string {
	switch r {
	case DirectoryAuthenticated:
		return "authenticated"
	case DirectoryBoundSearchFailed:
		return "bound_search_failed"
	default:
		return "rejected"
	}
}

// Session is the server-side record we persist for a login.
// ID is an opaque session identifier; Path scopes it to a resource and UID names the user.
type Session struct {
	ID        string    `json:"id"`
	Path      string    `json:"path,omitempty"`
	UID       string    `json:"uid,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Authenticated reports whether the session is bound to a user of the resource at path.
func (s Session) Authenticated(path string) bool {
	return s.UID != "" && s.Path == path
}
