package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/target/ldap-user-collection/internal/data/database"
	"github.com/target/ldap-user-collection/internal/data/pgxutil"
	"github.com/target/ldap-user-collection/internal/domain/model"
	apperrors "github.com/target/ldap-user-collection/internal/errors"
	"github.com/target/ldap-user-collection/internal/ports"
)

var _ ports.UserStore = (*UserRepo)(nil)

const usersTable = "users"

// SQL query constants for static queries.
const (
	userGetByIDQuery = `
		SELECT id, username, password, properties, created_at, updated_at
		FROM users
		WHERE id = $1`

	userInsertQuery = `
		INSERT INTO users (username, password, properties, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		RETURNING id, username, password, properties, created_at, updated_at`

	userDeleteQuery = `DELETE FROM users WHERE id = $1`

	userReturning = " RETURNING id, username, password, properties, created_at, updated_at"
)

// userColumns returns the column list for dynamic queries.
func userColumns() []string {
	return []string{"id", "username", "password", "properties", "created_at", "updated_at"}
}

// UserRepo is the Postgres-backed user record store.
// Stored records are returned whole; projections are applied after the scan.
type UserRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

// NewUserRepo creates a new UserRepo with real time provider.
func NewUserRepo(db *sql.DB) *UserRepo {
	return &UserRepo{DB: db, timeProvider: RealTimeProvider{}}
}

// NewUserRepoWithTimeProvider creates a UserRepo with a custom time provider (useful for tests).
func NewUserRepoWithTimeProvider(db *sql.DB, tp TimeProvider) *UserRepo {
	return &UserRepo{DB: db, timeProvider: tp}
}

// FindFirst returns the first record matching filter, or nil when none does.
func (r *UserRepo) FindFirst(ctx context.Context, filter model.UserFilter) (*model.User, error) {
	users, err := r.Find(ctx, model.UserQuery{Filter: filter, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return nil, nil
	}
	return users[0], nil
}

// Find lists records matching the query.
func (r *UserRepo) Find(ctx context.Context, q model.UserQuery) ([]*model.User, error) {
	conds, ok := filterConditions(q.Filter)
	if !ok {
		return []*model.User{}, nil
	}

	opts := []database.ListQueryOption{
		database.WithColumns(userColumns()...),
		database.WithConditions(conds...),
	}
	opts = append(opts, orderOptions(q.Sort)...)
	if q.Limit > 0 {
		opts = append(opts, database.WithLimit(q.Limit))
	}
	if q.Skip > 0 {
		opts = append(opts, database.WithOffset(q.Skip))
	}
	query, args := database.BuildListQuery(database.NewListQueryOptions(usersTable, opts...))

	var rowsOut []model.User
	if err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		rowsOut, err = pgx.CollectRows(rows, pgx.RowToStructByName[model.User])
		return err
	}); err != nil {
		return nil, fmt.Errorf("failed to list users: %w", apperrors.MapDBError(err))
	}

	res := make([]*model.User, len(rowsOut))
	for i := range rowsOut {
		res[i] = rowsOut[i].Project(q.Fields)
	}
	return res, nil
}

// Get retrieves a record by id.
func (r *UserRepo) Get(ctx context.Context, id string, fields model.Fields) (*model.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, apperrors.NotFoundf("user %s not found", id)
	}

	var u model.User
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, userGetByIDQuery, id)
		if err != nil {
			return err
		}
		defer rows.Close()
		u, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[model.User])
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFoundf("user %s not found", id)
		}
		return nil, fmt.Errorf("failed to get user: %w", apperrors.MapDBError(err))
	}
	return u.Project(fields), nil
}

// Count returns the number of records matching filter.
func (r *UserRepo) Count(ctx context.Context, filter model.UserFilter) (int, error) {
	conds, ok := filterConditions(filter)
	if !ok {
		return 0, nil
	}
	query, args := database.BuildListQuery(database.NewListQueryOptions(usersTable,
		database.WithCountOnly(),
		database.WithConditions(conds...),
	))

	var n int
	if err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		return conn.QueryRow(ctx, query, args...).Scan(&n)
	}); err != nil {
		return 0, fmt.Errorf("failed to count users: %w", apperrors.MapDBError(err))
	}
	return n, nil
}

// IndexOf returns the zero-based position of id among the records the query
// selects, in query order. Paging is ignored. It returns -1 when id is not selected.
func (r *UserRepo) IndexOf(ctx context.Context, id string, q model.UserQuery) (int, error) {
	if _, err := uuid.Parse(id); err != nil {
		return -1, nil
	}
	conds, ok := filterConditions(q.Filter)
	if !ok {
		return -1, nil
	}

	opts := append([]database.ListQueryOption{database.WithConditions(conds...)}, orderOptions(q.Sort)...)
	query, args := database.BuildIndexQuery(database.NewListQueryOptions(usersTable, opts...), model.IDField, id)

	var pos int
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		return conn.QueryRow(ctx, query, args...).Scan(&pos)
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return -1, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to index user: %w", apperrors.MapDBError(err))
	}
	return pos, nil
}

// Create inserts a record. A duplicate username surfaces as a conflict on the username field.
func (r *UserRepo) Create(ctx context.Context, in model.UserInput) (*model.User, error) {
	if in.Username == nil || strings.TrimSpace(*in.Username) == "" {
		return nil, apperrors.ValidationField(model.UsernameField, "is required")
	}
	props := in.Properties
	if props == nil {
		props = map[string]any{}
	}

	var out model.User
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, userInsertQuery,
			*in.Username,
			in.Password,
			props,
			r.timeProvider.Now(),
		)
		if err != nil {
			return err
		}
		defer rows.Close()
		out, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[model.User])
		return err
	})
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return &out, nil
}

// Update applies the set fields of in. Properties are merged into the stored document.
func (r *UserRepo) Update(ctx context.Context, id string, in model.UserInput) (*model.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, apperrors.NotFoundf("user %s not found", id)
	}
	if in.IsEmpty() {
		return r.Get(ctx, id, nil)
	}

	setClause, args := r.buildUpdateClause(in)
	args = append(args, id)
	query := "UPDATE users SET " + setClause + " WHERE id = $" + strconv.Itoa(len(args)) + userReturning

	var out model.User
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		out, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[model.User])
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFoundf("user %s not found", id)
		}
		return nil, apperrors.MapDBError(err)
	}
	return &out, nil
}

// buildUpdateClause builds the SET clause and args for the set fields of in.
func (r *UserRepo) buildUpdateClause(in model.UserInput) (string, []any) {
	setParts := make([]string, 0, 4)
	args := make([]any, 0, 5)
	nextIdx := func() int { return len(args) + 1 }

	if in.Username != nil {
		setParts = append(setParts, fmt.Sprintf("username = $%d", nextIdx()))
		args = append(args, *in.Username)
	}
	if in.Password != nil {
		setParts = append(setParts, fmt.Sprintf("password = $%d", nextIdx()))
		args = append(args, *in.Password)
	}
	if len(in.Properties) > 0 {
		setParts = append(setParts, fmt.Sprintf("properties = properties || $%d::jsonb", nextIdx()))
		args = append(args, in.Properties)
	}
	setParts = append(setParts, fmt.Sprintf("updated_at = $%d", nextIdx()))
	args = append(args, r.timeProvider.Now())

	return strings.Join(setParts, ", "), args
}

// Remove deletes a record by id.
func (r *UserRepo) Remove(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return apperrors.NotFoundf("user %s not found", id)
	}

	var affected int64
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		ct, err := conn.Exec(ctx, userDeleteQuery, id)
		if err != nil {
			return err
		}
		affected = ct.RowsAffected()
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", apperrors.MapDBError(err))
	}
	if affected == 0 {
		return apperrors.NotFoundf("user %s not found", id)
	}
	return nil
}

// --- helpers ---

// filterConditions translates a filter into WHERE conditions.
// ok is false when the filter can never match, such as a malformed id.
func filterConditions(f model.UserFilter) ([]database.Condition, bool) {
	var conds []database.Condition
	if f.ID != "" {
		if _, err := uuid.Parse(f.ID); err != nil {
			return nil, false
		}
		conds = append(conds, database.WhereCond(model.IDField, database.Equal, f.ID))
	}
	if f.Username != nil {
		conds = append(conds, database.WhereCond(model.UsernameField, database.Equal, *f.Username))
	}
	if len(f.Properties) > 0 {
		conds = append(conds, database.WhereCond("properties", database.Contains, f.Properties))
	}
	return conds, true
}

// orderOptions maps sort keys to ORDER BY options. id is always the final tie-breaker
// so paging and IndexOf agree on one total order.
func orderOptions(keys []model.SortKey) []database.ListQueryOption {
	opts := make([]database.ListQueryOption, 0, len(keys)+2)
	for _, k := range keys {
		opts = append(opts, database.WithOrderBy(k.Field, sortDir(k.Desc)))
	}
	if len(keys) == 0 {
		opts = append(opts, database.WithOrderBy("created_at", sortDirAsc))
	}
	return append(opts, database.WithOrderBy(model.IDField, sortDirAsc))
}

const (
	sortDirAsc  = "ASC"
	sortDirDesc = "DESC"
)

func sortDir(desc bool) string {
	if desc {
		return sortDirDesc
	}
	return sortDirAsc
}
