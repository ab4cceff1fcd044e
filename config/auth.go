package config

import (
	"fmt"
	"strings"
	"time"
)

// DirectoryKind selects the external directory used to verify credentials.
type DirectoryKind string

const (
	// DirectoryLDAP binds against an LDAP/AD server.
	DirectoryLDAP DirectoryKind = "ldap"
	// DirectoryOIDC uses the OAuth2 resource owner password grant against an OIDC provider.
	DirectoryOIDC DirectoryKind = "oidc"
	// DirectoryStatic checks a fixed set of credentials (development only).
	DirectoryStatic DirectoryKind = "static"
)

// UnmarshalText implements encoding.TextUnmarshaler for DirectoryKind.
func (d *DirectoryKind) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	switch v {
	case "ldap", "oidc", "static":
		*d = DirectoryKind(v)
		return nil
	default:
		return fmt.Errorf("invalid DirectoryKind: %q (valid options: ldap, oidc, static)", v)
	}
}

// LDAPConfig contains settings for the LDAP directory client.
type LDAPConfig struct {
	URL string `env:"URL" envDefault:"ldap://localhost:389"`
	// BindTemplate turns a username into a bind name; %s is replaced with the username.
	// Use "%s@corp.example.com" for AD UPN binds or "uid=%s,ou=people,dc=example,dc=com" for DN binds.
	BindTemplate string `env:"BIND_TEMPLATE" envDefault:"%s"`
	// SearchBaseDN enables a post-bind lookup of the user entry when set.
	SearchBaseDN string `env:"SEARCH_BASE_DN"`
	// SearchFilter is the post-bind lookup filter; %s is replaced with the escaped username.
	SearchFilter string `env:"SEARCH_FILTER" envDefault:"(sAMAccountName=%s)"`
	// ServiceBindDN and ServicePassword let pooled connections be rebound after a user check.
	ServiceBindDN      string        `env:"SERVICE_BIND_DN"`
	ServicePassword    string        `env:"SERVICE_PASSWORD"`
	PoolSize           int           `env:"POOL_SIZE"            envDefault:"4"`
	Timeout            time.Duration `env:"TIMEOUT"              envDefault:"10s"`
	InsecureSkipVerify bool          `env:"INSECURE_SKIP_VERIFY" envDefault:"false"`
}

// OAuthConfig contains OIDC settings used for password-grant directory checks.
type OAuthConfig struct {
	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET"`
	Scope        string `env:"SCOPE"         envDefault:"openid profile"`
	DiscoveryURL string `env:"DISCOVERY_URL"`
}

// DevAuthConfig lists static credentials accepted when AUTH_DIRECTORY=static.
type DevAuthConfig struct {
	// Users is a list of "username:password" pairs.
	Users []string `env:"USERS" envDefault:"dev:dev" envSeparator:";"`
}

// AuthConfig groups all authentication-related configuration.
type AuthConfig struct {
	// ResourcePath is the path the user collection is mounted at and sessions are scoped to.
	ResourcePath string `env:"AUTH_RESOURCE_PATH" envDefault:"/users"`

	// LocalHashing stores salted password hashes locally so repeat logins skip the directory.
	LocalHashing bool `env:"AUTH_LOCAL_HASHING" envDefault:"true"`

	// Directory selects the external directory implementation.
	Directory DirectoryKind `env:"AUTH_DIRECTORY" envDefault:"ldap"`

	// RootKey grants root privileges to requests presenting it in the X-Root-Key header.
	// Empty disables root access over HTTP.
	RootKey string `env:"AUTH_ROOT_KEY"`

	// SessionTTL bounds how long a login session stays valid.
	SessionTTL time.Duration `env:"AUTH_SESSION_TTL" envDefault:"24h"`

	LDAP    LDAPConfig    `envPrefix:"LDAP_"`
	OAuth   OAuthConfig   `envPrefix:"OAUTH_"`
	DevAuth DevAuthConfig `envPrefix:"DEV_AUTH_"`
}

// Sanitize normalises auth settings.
func (a *AuthConfig) Sanitize() {
	a.ResourcePath = "/" + strings.Trim(strings.TrimSpace(a.ResourcePath), "/")
	if a.ResourcePath == "/" {
		a.ResourcePath = "/users"
	}
	if a.SessionTTL <= 0 {
		a.SessionTTL = 24 * time.Hour
	}
	if a.LDAP.PoolSize < 1 {
		a.LDAP.PoolSize = 1
	}
	if a.LDAP.Timeout <= 0 {
		a.LDAP.Timeout = 10 * time.Second
	}
	if !strings.Contains(a.LDAP.BindTemplate, "%s") {
		a.LDAP.BindTemplate = "%s"
	}
	if !strings.Contains(a.LDAP.SearchFilter, "%s") {
		a.LDAP.SearchFilter = "(sAMAccountName=%s)"
	}
}
