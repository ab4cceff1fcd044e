package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/target/ldap-user-collection/internal/bootstrap"
	"github.com/target/ldap-user-collection/internal/service"
)

// collection is the slice of the user collection the commands drive.
type collection interface {
	Handle(ctx context.Context, req *service.Request) (*service.Response, error)
}

// env carries what commands need from the outside world.
type env struct {
	logger *slog.Logger
	// open returns the collection and a function releasing its resources.
	open func(ctx context.Context) (collection, func() error, error)
	// migrate applies the schema.
	migrate func(ctx context.Context) error
}

// newInfraEnv connects to the configured Postgres database. Sessions and the
// credential directory are not needed for administrative writes.
func newInfraEnv(logger *slog.Logger) *env {
	return &env{
		logger: logger,
		open: func(ctx context.Context) (collection, func() error, error) {
			cfg, err := bootstrap.LoadConfig()
			if err != nil {
				return nil, nil, err
			}
			db, err := bootstrap.ConnectDB(ctx, cfg.Postgres, logger)
			if err != nil {
				return nil, nil, fmt.Errorf("connect db: %w", err)
			}
			if !cfg.Auth.LocalHashing {
				logger.WarnContext(ctx, "local hashing is disabled; passwords passed to this tool are discarded")
			}
			container, err := bootstrap.NewServices(&bootstrap.ServiceDeps{
				Config: &cfg,
				DB:     db,
				Logger: logger,
			})
			if err != nil {
				return nil, nil, errors.Join(err, db.Close())
			}
			closer := func() error {
				return errors.Join(container.Close(), db.Close())
			}
			return container.Users, closer, nil
		},
		migrate: func(ctx context.Context) error {
			cfg, err := bootstrap.LoadConfig()
			if err != nil {
				return err
			}
			db, err := bootstrap.ConnectDB(ctx, cfg.Postgres, logger)
			if err != nil {
				return fmt.Errorf("connect db: %w", err)
			}
			migrateErr := bootstrap.RunMigrations(ctx, db, logger)
			if closeErr := db.Close(); closeErr != nil {
				logger.ErrorContext(ctx, "close database failed", "error", closeErr)
			}
			return migrateErr
		},
	}
}
