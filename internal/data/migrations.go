package data

import (
	"context"
	"database/sql"

	"github.com/target/ldap-user-collection/internal/migrate"
)

// RunMigrations creates the users schema by delegating to the migrate package.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	return migrate.Run(ctx, db)
}
