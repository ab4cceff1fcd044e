package ldap

// Package ldap provides an LDAP/Active Directory credential directory.
// A user is authenticated by binding as that user; an optional search then
// confirms the entry exists under the configured base DN.

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	goldap "github.com/go-ldap/ldap/v3"
	"golang.org/x/sync/errgroup"

	domainauth "github.com/target/ldap-user-collection/internal/domain/auth"
	"github.com/target/ldap-user-collection/internal/ports"
)

var _ ports.Directory = (*Directory)(nil)

// ErrClosed is returned when the directory has been closed.
var ErrClosed = errors.New("ldap directory closed")

// Conn is the subset of *ldap.Conn the directory needs.
type Conn interface {
	Bind(username, password string) error
	Search(req *goldap.SearchRequest) (*goldap.SearchResult, error)
	Close() error
}

// DialFunc opens a new directory connection.
type DialFunc func(ctx context.Context) (Conn, error)

// Config holds configuration for the LDAP directory.
type Config struct {
	URL                string
	BindTemplate       string
	SearchBaseDN       string
	SearchFilter       string
	ServiceBindDN      string
	ServicePassword    string
	PoolSize           int
	Timeout            time.Duration
	InsecureSkipVerify bool
	Dial               DialFunc // Optional, defaults to DialURL with Timeout and TLS settings
	Logger             *slog.Logger
}

// Directory implements ports.Directory with a fixed-size pool of connections.
// Pool slots hold nil until first use or until Open warms them.
type Directory struct {
	cfg    Config
	dial   DialFunc
	pool   chan Conn
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
}

// NewDirectory validates cfg and builds a Directory. No connections are opened yet.
func NewDirectory(cfg Config) (*Directory, error) {
	if cfg.URL == "" && cfg.Dial == nil {
		return nil, errors.New("ldap URL is required")
	}
	if !strings.Contains(cfg.BindTemplate, "%s") {
		cfg.BindTemplate = "%s"
	}
	if cfg.SearchBaseDN != "" && !strings.Contains(cfg.SearchFilter, "%s") {
		return nil, errors.New("ldap search filter must contain %s")
	}
	if cfg.PoolSize < 1 {
		cfg.PoolSize = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	d := &Directory{
		cfg:    cfg,
		pool:   make(chan Conn, cfg.PoolSize),
		logger: logger.With("component", "ldap_directory"),
	}
	d.dial = cfg.Dial
	if d.dial == nil {
		d.dial = d.dialURL
	}
	for range cfg.PoolSize {
		d.pool <- nil
	}
	return d, nil
}

func (d *Directory) dialURL(_ context.Context) (Conn, error) {
	c, err := goldap.DialURL(d.cfg.URL,
		goldap.DialWithDialer(&net.Dialer{Timeout: d.cfg.Timeout}),
		goldap.DialWithTLSConfig(&tls.Config{
			InsecureSkipVerify: d.cfg.InsecureSkipVerify, //nolint:gosec // opt-in for lab directories
			MinVersion:         tls.VersionTLS12,
		}),
	)
	if err != nil {
		return nil, err
	}
	c.SetTimeout(d.cfg.Timeout)
	return c, nil
}

// Open dials every pool slot concurrently and binds the service account when configured.
// Failing fast here surfaces a bad URL or service credential at startup.
func (d *Directory) Open(ctx context.Context) error {
	slots := make([]Conn, 0, d.cfg.PoolSize)
	for range d.cfg.PoolSize {
		c, err := d.acquire(ctx)
		if err != nil {
			d.releaseAll(slots)
			return err
		}
		slots = append(slots, c)
	}

	g, gctx := errgroup.WithContext(ctx)
	for i := range slots {
		if slots[i] != nil {
			continue
		}
		g.Go(func() error {
			c, err := d.connect(gctx)
			if err != nil {
				return err
			}
			slots[i] = c
			return nil
		})
	}
	err := g.Wait()
	if err != nil {
		for i, c := range slots {
			if c != nil {
				_ = c.Close()
				slots[i] = nil
			}
		}
	}
	d.releaseAll(slots)
	if err != nil {
		return fmt.Errorf("open ldap pool: %w", err)
	}
	return nil
}

// Close closes idle pooled connections. Connections in use are closed on release.
func (d *Directory) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()

	var errs []error
	for {
		select {
		case c := <-d.pool:
			if c != nil {
				if err := c.Close(); err != nil {
					errs = append(errs, err)
				}
			}
		default:
			return errors.Join(errs...)
		}
	}
}

// Authenticate binds as the user and, when a search base is configured, looks the user up.
func (d *Directory) Authenticate(ctx context.Context, username, password string) domainauth.DirectoryResult {
	// An empty password would be an unauthenticated bind, which servers accept.
	if username == "" || password == "" {
		return domainauth.DirectoryRejected
	}

	c, err := d.acquire(ctx)
	if err != nil {
		d.logger.DebugContext(ctx, "acquire connection failed", "error", err)
		return domainauth.DirectoryRejected
	}
	if c == nil {
		c, err = d.connect(ctx)
		if err != nil {
			d.release(nil)
			d.logger.DebugContext(ctx, "dial failed", "error", err)
			return domainauth.DirectoryRejected
		}
	}

	result, healthy := d.check(ctx, c, username, password)
	if healthy && !d.restore(ctx, c) {
		healthy = false
	}
	if !healthy {
		_ = c.Close()
		c = nil
	}
	d.release(c)
	return result
}

func (d *Directory) check(ctx context.Context, c Conn, username, password string) (domainauth.DirectoryResult, bool) {
	if err := c.Bind(d.bindName(username), password); err != nil {
		d.logger.DebugContext(ctx, "user bind failed", "username", username, "error", err)
		return domainauth.DirectoryRejected, !isConnectionError(err)
	}
	if d.cfg.SearchBaseDN == "" {
		return domainauth.DirectoryAuthenticated, true
	}

	req := goldap.NewSearchRequest(
		d.cfg.SearchBaseDN,
		goldap.ScopeWholeSubtree, goldap.NeverDerefAliases,
		2, int(d.cfg.Timeout/time.Second), false,
		fmt.Sprintf(d.cfg.SearchFilter, goldap.EscapeFilter(username)),
		[]string{"dn"},
		nil,
	)
	res, err := c.Search(req)
	switch {
	case err != nil && goldap.IsErrorWithCode(err, goldap.LDAPResultOperationsError):
		// The server says the connection is not bound, so the bind did not stick.
		d.logger.DebugContext(ctx, "search after bind not permitted", "username", username, "error", err)
		return domainauth.DirectoryRejected, true
	case err != nil:
		d.logger.DebugContext(ctx, "search after bind failed", "username", username, "error", err)
		return domainauth.DirectoryBoundSearchFailed, !isConnectionError(err)
	case len(res.Entries) == 0:
		d.logger.DebugContext(ctx, "user entry not found", "username", username)
		return domainauth.DirectoryRejected, true
	default:
		return domainauth.DirectoryAuthenticated, true
	}
}

// restore rebinds the service account so a pooled connection never stays bound as a user.
func (d *Directory) restore(ctx context.Context, c Conn) bool {
	if d.cfg.ServiceBindDN == "" {
		return true
	}
	if err := c.Bind(d.cfg.ServiceBindDN, d.cfg.ServicePassword); err != nil {
		d.logger.WarnContext(ctx, "service rebind failed, dropping connection", "error", err)
		return false
	}
	return true
}

func (d *Directory) connect(ctx context.Context) (Conn, error) {
	c, err := d.dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("dial ldap: %w", err)
	}
	if d.cfg.ServiceBindDN != "" {
		if err := c.Bind(d.cfg.ServiceBindDN, d.cfg.ServicePassword); err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("service bind: %w", err)
		}
	}
	return c, nil
}

// bindName applies the bind template. DN templates get the username DN-escaped.
func (d *Directory) bindName(username string) string {
	if strings.Contains(d.cfg.BindTemplate, "=") {
		username = goldap.EscapeDN(username)
	}
	return fmt.Sprintf(d.cfg.BindTemplate, username)
}

func (d *Directory) acquire(ctx context.Context) (Conn, error) {
	d.mu.Lock()
	closed := d.closed
	d.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}
	select {
	case c := <-d.pool:
		return c, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (d *Directory) release(c Conn) {
	d.mu.Lock()
	closed := d.closed
	d.mu.Unlock()
	if closed && c != nil {
		_ = c.Close()
		c = nil
	}
	d.pool <- c
}

func (d *Directory) releaseAll(conns []Conn) {
	for _, c := range conns {
		d.release(c)
	}
}

func isConnectionError(err error) bool {
	return goldap.IsErrorWithCode(err, goldap.ErrorNetwork)
}
