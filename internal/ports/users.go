package ports

import (
	"context"

	"github.com/target/ldap-user-collection/internal/domain/model"
)

// UserStore is the record store behind the user collection.
// Lookups of a missing id return an errors.NotFound AppError; FindFirst returns (nil, nil) instead.
type UserStore interface {
	FindFirst(ctx context.Context, filter model.UserFilter) (*model.User, error)
	Find(ctx context.Context, q model.UserQuery) ([]*model.User, error)
	Get(ctx context.Context, id string, fields model.Fields) (*model.User, error)
	Count(ctx context.Context, filter model.UserFilter) (int, error)
	// IndexOf returns the zero-based position of id within the query ordering, or -1.
	IndexOf(ctx context.Context, id string, q model.UserQuery) (int, error)
	Create(ctx context.Context, in model.UserInput) (*model.User, error)
	Update(ctx context.Context, id string, in model.UserInput) (*model.User, error)
	Remove(ctx context.Context, id string) error
}
