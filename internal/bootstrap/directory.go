package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/target/ldap-user-collection/config"
	"github.com/target/ldap-user-collection/internal/adapters/devauth"
	"github.com/target/ldap-user-collection/internal/adapters/ldap"
	"github.com/target/ldap-user-collection/internal/adapters/oidc"
	"github.com/target/ldap-user-collection/internal/ports"
)

// Directory is a credential directory plus the function that releases its resources.
type Directory struct {
	ports.Directory
	Close func() error
}

func noClose() error { return nil }

// BuildDirectory constructs the directory selected by AUTH_DIRECTORY.
// The LDAP pool is opened eagerly so a bad service credential fails startup.
func BuildDirectory(ctx context.Context, cfg config.AuthConfig, logger *slog.Logger) (Directory, error) {
	if logger == nil {
		logger = slog.Default()
	}
	dirLogger := logger.With("component", "directory", "kind", string(cfg.Directory))

	switch cfg.Directory {
	case config.DirectoryLDAP:
		dir, err := ldap.NewDirectory(ldap.Config{
			URL:                cfg.LDAP.URL,
			BindTemplate:       cfg.LDAP.BindTemplate,
			SearchBaseDN:       cfg.LDAP.SearchBaseDN,
			SearchFilter:       cfg.LDAP.SearchFilter,
			ServiceBindDN:      cfg.LDAP.ServiceBindDN,
			ServicePassword:    cfg.LDAP.ServicePassword,
			PoolSize:           cfg.LDAP.PoolSize,
			Timeout:            cfg.LDAP.Timeout,
			InsecureSkipVerify: cfg.LDAP.InsecureSkipVerify,
			Logger:             dirLogger,
		})
		if err != nil {
			return Directory{}, fmt.Errorf("create ldap directory: %w", err)
		}
		if err := dir.Open(ctx); err != nil {
			return Directory{}, fmt.Errorf("open ldap directory: %w", err)
		}
		dirLogger.InfoContext(ctx, "ldap directory ready", "url", cfg.LDAP.URL, "pool_size", cfg.LDAP.PoolSize)
		return Directory{Directory: dir, Close: dir.Close}, nil

	case config.DirectoryOIDC:
		dir, err := oidc.NewDirectory(ctx, oidc.DirectoryConfig{
			ClientID:     cfg.OAuth.ClientID,
			ClientSecret: cfg.OAuth.ClientSecret,
			Scope:        cfg.OAuth.Scope,
			DiscoveryURL: cfg.OAuth.DiscoveryURL,
			Logger:       dirLogger,
		})
		if err != nil {
			return Directory{}, fmt.Errorf("create oidc directory: %w", err)
		}
		return Directory{Directory: dir, Close: noClose}, nil

	case config.DirectoryStatic:
		dir, err := devauth.NewDirectory(devauth.Config{Users: cfg.DevAuth.Users})
		if err != nil {
			return Directory{}, fmt.Errorf("create static directory: %w", err)
		}
		dirLogger.WarnContext(ctx, "using static development directory")
		return Directory{Directory: dir, Close: noClose}, nil

	default:
		return Directory{}, fmt.Errorf("unknown directory %q", cfg.Directory)
	}
}
