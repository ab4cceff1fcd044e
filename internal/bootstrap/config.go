package bootstrap

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/target/ldap-user-collection/config"
)

// InitLogger initializes the structured logger. Development mode logs at debug level.
func InitLogger(isDev bool) *slog.Logger {
	level := slog.LevelInfo
	if isDev {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
	return logger
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (config.AppConfig, error) {
	// Load .env file if it exists (development)
	if err := godotenv.Load(); err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			return config.AppConfig{}, fmt.Errorf("load .env file: %w", err)
		}
	}

	var cfg config.AppConfig
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}

	cfg.Sanitize()
	return cfg, nil
}

// ldapRequirements, oidcRequirements and staticRequirements list the settings each directory needs.
type ldapRequirements struct {
	URL string `validate:"required,url"`
}

type oidcRequirements struct {
	ClientID     string `validate:"required"`
	DiscoveryURL string `validate:"required,url"`
}

type staticRequirements struct {
	Users []string `validate:"min=1,dive,contains=:"`
}

// ValidateConfig checks that the selected directory is fully configured.
func ValidateConfig(cfg *config.AppConfig) error {
	if cfg == nil {
		return errors.New("config is required")
	}
	v := validator.New(validator.WithRequiredStructEnabled())

	var req any
	switch cfg.Auth.Directory {
	case config.DirectoryLDAP:
		req = ldapRequirements{URL: cfg.Auth.LDAP.URL}
	case config.DirectoryOIDC:
		req = oidcRequirements{ClientID: cfg.Auth.OAuth.ClientID, DiscoveryURL: cfg.Auth.OAuth.DiscoveryURL}
	case config.DirectoryStatic:
		if !cfg.IsDev {
			slog.Default().Warn("static directory selected outside development mode")
		}
		req = staticRequirements{Users: cfg.Auth.DevAuth.Users}
	default:
		return fmt.Errorf("unknown directory %q", cfg.Auth.Directory)
	}

	if err := v.Struct(req); err != nil {
		return fmt.Errorf("invalid %s directory config: %w", cfg.Auth.Directory, err)
	}
	return nil
}
