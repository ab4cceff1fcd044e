package devauth

// Package devauth provides a simple, config-driven Directory for local development.

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"

	domainauth "github.com/target/ldap-user-collection/internal/domain/auth"
	"github.com/target/ldap-user-collection/internal/ports"
)

var _ ports.Directory = (*Directory)(nil)

// Config lists the accepted credentials as "username:password" pairs.
type Config struct {
	Users []string
}

// Directory implements ports.Directory from a static credential list.
type Directory struct {
	users map[string]string
}

// NewDirectory parses Config into a Directory. At least one user is required.
func NewDirectory(cfg Config) (*Directory, error) {
	users := make(map[string]string, len(cfg.Users))
	for _, entry := range cfg.Users {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		name, pw, ok := strings.Cut(entry, ":")
		if !ok || name == "" || pw == "" {
			return nil, fmt.Errorf("dev auth: invalid user entry %q, want username:password", name)
		}
		users[name] = pw
	}
	if len(users) == 0 {
		return nil, errors.New("dev auth: at least one user is required")
	}
	return &Directory{users: users}, nil
}

// Authenticate accepts a username whose configured password matches.
func (d *Directory) Authenticate(_ context.Context, username, password string) domainauth.DirectoryResult {
	want, ok := d.users[username]
	if !ok || password == "" {
		return domainauth.DirectoryRejected
	}
	if subtle.ConstantTimeCompare([]byte(want), []byte(password)) != 1 {
		return domainauth.DirectoryRejected
	}
	return domainauth.DirectoryAuthenticated
}
