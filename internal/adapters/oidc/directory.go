package oidc

// Package oidc provides an OIDC-backed credential directory.
// Credentials are checked with the OAuth2 resource owner password grant;
// when the openid scope is requested the returned ID token is verified too.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	domainauth "github.com/target/ldap-user-collection/internal/domain/auth"
	"github.com/target/ldap-user-collection/internal/ports"
)

var _ ports.Directory = (*Directory)(nil)

// Directory implements ports.Directory against an OIDC provider.
type Directory struct {
	config     *oauth2.Config
	httpClient *http.Client
	verifier   *gooidc.IDTokenVerifier
	logger     *slog.Logger
}

// DirectoryConfig holds configuration for the OIDC directory.
type DirectoryConfig struct {
	ClientID     string
	ClientSecret string
	Scope        string
	DiscoveryURL string
	HTTPClient   *http.Client // Optional, defaults to a client with a 30s timeout
	Logger       *slog.Logger
}

// DiscoveryDocument represents the OIDC discovery document.
type DiscoveryDocument struct {
	Issuer                string `json:"issuer"`
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
	UserinfoEndpoint      string `json:"userinfo_endpoint"`
	JwksURI               string `json:"jwks_uri"`
}

// NewDirectory creates a new OIDC directory. It fetches the discovery document once.
func NewDirectory(ctx context.Context, config DirectoryConfig) (*Directory, error) {
	if config.ClientID == "" {
		return nil, errors.New("client ID is required")
	}
	if config.DiscoveryURL == "" {
		return nil, errors.New("discovery URL is required")
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, httpClient)
	issuer := strings.TrimSuffix(config.DiscoveryURL, "/")
	issuer = strings.TrimSuffix(issuer, "/.well-known/openid-configuration")
	op, err := gooidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc new provider: %w", err)
	}

	return &Directory{
		config: &oauth2.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			Scopes:       strings.Fields(config.Scope),
			Endpoint:     op.Endpoint(),
		},
		httpClient: httpClient,
		verifier:   op.Verifier(&gooidc.Config{ClientID: config.ClientID}),
		logger:     logger.With("component", "oidc_directory"),
	}, nil
}

// Authenticate exchanges the credentials for a token. Any failure is reported as rejected.
func (d *Directory) Authenticate(ctx context.Context, username, password string) domainauth.DirectoryResult {
	if username == "" || password == "" {
		return domainauth.DirectoryRejected
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, d.httpClient)
	token, err := d.config.PasswordCredentialsToken(ctx, username, password)
	if err != nil {
		d.logger.DebugContext(ctx, "password grant failed", "username", username, "error", err)
		return domainauth.DirectoryRejected
	}

	if !d.hasOpenIDScope() {
		return domainauth.DirectoryAuthenticated
	}
	if err := d.verifyIDToken(ctx, token, username); err != nil {
		d.logger.DebugContext(ctx, "id_token rejected", "username", username, "error", err)
		return domainauth.DirectoryRejected
	}
	return domainauth.DirectoryAuthenticated
}

// idTokenADClaims represents a superset of OIDC and AD/ADFS claim shapes.
type idTokenADClaims struct {
	Sub               string `json:"sub"`
	SamAccountName    string `json:"samaccountname"`
	PreferredUsername string `json:"preferred_username"`
}

// subject returns the account name asserted by the token using precedence rules.
func (c idTokenADClaims) subject() string {
	return firstNonEmpty(c.SamAccountName, c.PreferredUsername)
}

func (d *Directory) verifyIDToken(ctx context.Context, tok *oauth2.Token, username string) error {
	rawID, err := getIDTokenFromToken(tok)
	if err != nil {
		return err
	}
	idTok, err := d.verifier.Verify(ctx, rawID)
	if err != nil {
		return fmt.Errorf("verify id_token: %w", err)
	}
	var claims idTokenADClaims
	if claimsErr := idTok.Claims(&claims); claimsErr != nil {
		return fmt.Errorf("parse id_token claims: %w", claimsErr)
	}
	if sub := claims.subject(); sub != "" && !strings.EqualFold(sub, username) {
		return errors.New("id_token subject does not match username")
	}
	return nil
}

// firstNonEmpty returns the first non-empty string from vals, or empty string if none.
func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// hasOpenIDScope reports whether the configured scopes include "openid".
func (d *Directory) hasOpenIDScope() bool {
	return slices.Contains(d.config.Scopes, "openid")
}

// getIDTokenFromToken extracts the id_token from oauth2.Token.
func getIDTokenFromToken(tok *oauth2.Token) (string, error) {
	if tok == nil {
		return "", errors.New("nil token")
	}
	raw := tok.Extra("id_token")
	s, ok := raw.(string)
	if !ok || s == "" {
		return "", errors.New("missing id_token in token response")
	}
	return s, nil
}
