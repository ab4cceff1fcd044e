package database

import (
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
)

type ConditionType string

const (
	Equal    ConditionType = "="
	NotEqual ConditionType = "!="
	ILike    ConditionType = "ILIKE"
	In       ConditionType = "IN"
	// Contains matches a jsonb column against a JSON document (@>).
	Contains      ConditionType = "@>"
	Custom        ConditionType = "CUSTOM"
	defaultLimit                = -1
	defaultOffset               = -1

	// rankColumn names the zero-based position produced by BuildIndexQuery.
	rankColumn = "pos"
)

var placeholderRe = regexp.MustCompile(`\$(\d+)`)

type Condition struct {
	Field    string
	Type     ConditionType
	Value    any
	rawQuery *string
}

func WhereCond(field string, condType ConditionType, value any) Condition {
	if condType == Custom {
		//nolint:forbidigo // panic prevents misuse; custom conditions must provide raw SQL via WhereRawCond.
		panic("Use WhereRawCond for Custom type")
	}
	return Condition{Field: field, Type: condType, Value: value}
}

func WhereRawCond(rawQuery string, params ...any) Condition {
	queryStr := rawQuery
	var value any = params
	if len(params) == 0 {
		value = nil
	} else if len(params) == 1 {
		value = params[0]
	}
	return Condition{Type: Custom, rawQuery: &queryStr, Value: value}
}

// Order is one ORDER BY key.
type Order struct {
	Column string
	Desc   bool
}

type ListQueryOptions struct {
	Table      string
	Columns    []string
	CountOnly  bool
	Conditions []Condition
	OrderBy    []Order
	Limit      int
	Offset     int
}

type ListQueryOption func(*ListQueryOptions)

func NewListQueryOptions(table string, opts ...ListQueryOption) *ListQueryOptions {
	options := &ListQueryOptions{
		Table:  table,
		Limit:  defaultLimit,
		Offset: defaultOffset,
	}
	for _, opt := range opts {
		opt(options)
	}
	return options
}

// WithColumns sets the columns to select.
func WithColumns(cols ...string) ListQueryOption {
	return func(o *ListQueryOptions) {
		o.Columns = cols
	}
}

// WithCondition adds a single condition.
func WithCondition(cond Condition) ListQueryOption {
	return func(o *ListQueryOptions) {
		o.Conditions = append(o.Conditions, cond)
	}
}

// WithConditions appends conditions.
func WithConditions(conds ...Condition) ListQueryOption {
	return func(o *ListQueryOptions) {
		o.Conditions = append(o.Conditions, conds...)
	}
}

// WithOrderBy appends an ordering key. Direction is "ASC" or "DESC", case-insensitive.
func WithOrderBy(column, direction string) ListQueryOption {
	return func(o *ListQueryOptions) {
		o.OrderBy = append(o.OrderBy, Order{
			Column: column,
			Desc:   strings.EqualFold(strings.TrimSpace(direction), "DESC"),
		})
	}
}

// WithLimit sets the limit. Accepts 0.
func WithLimit(limit int) ListQueryOption {
	return func(o *ListQueryOptions) {
		if limit >= 0 {
			o.Limit = limit
		}
	}
}

// WithOffset sets the offset. Accepts 0.
func WithOffset(offset int) ListQueryOption {
	return func(o *ListQueryOptions) {
		if offset >= 0 {
			o.Offset = offset
		}
	}
}

// WithCountOnly sets the query to count only.
func WithCountOnly() ListQueryOption {
	return func(o *ListQueryOptions) {
		o.CountOnly = true
	}
}

func sanitizeIdentifier(ident string) string {
	return pgx.Identifier{ident}.Sanitize()
}

// sanitizeQualifiedIdentifier quotes each part of "table.column".
func sanitizeQualifiedIdentifier(ident string) string {
	return pgx.Identifier(strings.Split(ident, ".")).Sanitize()
}

func buildSelectClause(options *ListQueryOptions) string {
	if options.CountOnly {
		return "SELECT COUNT(*) "
	}
	if len(options.Columns) == 0 {
		return "SELECT * "
	}
	cols := make([]string, len(options.Columns))
	for i, col := range options.Columns {
		cols[i] = sanitizeQualifiedIdentifier(col)
	}
	return fmt.Sprintf("SELECT %s ", strings.Join(cols, ", "))
}

func buildOrderClause(order []Order) string {
	if len(order) == 0 {
		return ""
	}
	parts := make([]string, len(order))
	for i, o := range order {
		dir := "ASC"
		if o.Desc {
			dir = "DESC"
		}
		parts[i] = sanitizeQualifiedIdentifier(o.Column) + " " + dir
	}
	return "ORDER BY " + strings.Join(parts, ", ")
}

func buildPaginationClause(options *ListQueryOptions, paramCount int, args []any) (string, []any) {
	var clause strings.Builder
	// Sentinels mean "not set"; 0 is a valid explicit value.
	if options.Limit != defaultLimit {
		fmt.Fprintf(&clause, " LIMIT $%d", paramCount)
		args = append(args, options.Limit)
		paramCount++
	}
	if options.Offset != defaultOffset {
		fmt.Fprintf(&clause, " OFFSET $%d", paramCount)
		args = append(args, options.Offset)
	}
	return clause.String(), args
}

func buildFromWhere(options *ListQueryOptions) (string, []any, int) {
	var query strings.Builder
	query.WriteString("FROM ")
	query.WriteString(sanitizeIdentifier(options.Table))
	whereClause, whereArgs, next := buildWhereClause(options.Conditions, 1)
	if whereClause != "" {
		query.WriteString(" ")
		query.WriteString(whereClause)
	}
	return query.String(), whereArgs, next
}

// BuildListQuery constructs a SQL query string and arguments from options, sanitizing identifiers.
//
// Example usage:
//
//	options := NewListQueryOptions("users",
//		WithColumns("id", "username"),
//		WithCondition(WhereCond("username", Equal, "alice")),
//		WithCondition(WhereCond("properties", Contains, `{"team":"red"}`)),
//		WithOrderBy("created_at", "DESC"),
//		WithLimit(10),
//	)
//	query, args := BuildListQuery(options)
func BuildListQuery(options *ListQueryOptions) (string, []any) {
	if options == nil {
		return "", nil
	}

	fromWhere, args, next := buildFromWhere(options)
	query := buildSelectClause(options) + fromWhere
	if options.CountOnly {
		return query, args
	}

	if order := buildOrderClause(options.OrderBy); order != "" {
		query += " " + order
	}
	pagination, args := buildPaginationClause(options, next, args)
	return query + pagination, args
}

// BuildIndexQuery returns a query selecting the zero-based position of the row whose
// keyColumn equals key, within the filtered rows in options.OrderBy order.
// Limit, offset and columns are ignored. The query yields no row when key is absent.
func BuildIndexQuery(options *ListQueryOptions, keyColumn string, key any) (string, []any) {
	if options == nil {
		return "", nil
	}

	fromWhere, args, next := buildFromWhere(options)
	over := buildOrderClause(options.OrderBy)
	col := sanitizeIdentifier(keyColumn)
	pos := sanitizeIdentifier(rankColumn)

	query := fmt.Sprintf(
		"SELECT %s FROM (SELECT %s, ROW_NUMBER() OVER (%s) - 1 AS %s %s) ranked WHERE %s = $%d",
		pos, col, over, pos, fromWhere, col, next,
	)
	return query, append(args, key)
}

func handleStandardCondition(cond Condition, field string, paramCount int) (string, []any, int) {
	return fmt.Sprintf("%s %s $%d", field, cond.Type, paramCount), []any{cond.Value}, paramCount + 1
}

func handleContainsCondition(cond Condition, field string, paramCount int) (string, []any, int) {
	return fmt.Sprintf("%s @> $%d::jsonb", field, paramCount), []any{cond.Value}, paramCount + 1
}

func handleInCondition(cond Condition, field string, paramCount int) (string, []any, int) {
	// Accept any slice type via reflection
	rv := reflect.ValueOf(cond.Value)
	if rv.Kind() != reflect.Slice || rv.Len() == 0 {
		return "", nil, paramCount
	}

	placeholders := make([]string, rv.Len())
	args := make([]any, rv.Len())
	for i := range rv.Len() {
		placeholders[i] = fmt.Sprintf("$%d", paramCount)
		args[i] = rv.Index(i).Interface()
		paramCount++
	}
	return fmt.Sprintf("%s IN (%s)", field, strings.Join(placeholders, ", ")), args, paramCount
}

func handleCustomCondition(cond Condition, paramCount int) (string, []any, int) {
	if cond.rawQuery == nil || *cond.rawQuery == "" {
		return "", nil, paramCount
	}
	conditionStr := *cond.rawQuery
	if cond.Value == nil {
		return conditionStr, nil, paramCount
	}

	// NOTE: RawQuery itself is NOT sanitized here.
	params, ok := cond.Value.([]any)
	if !ok {
		params = []any{cond.Value}
	}

	// Renumber placeholders so $1 in the raw text follows earlier conditions.
	var args []any
	idxMap := make(map[int]int)
	conditionStr = placeholderRe.ReplaceAllStringFunc(conditionStr, func(m string) string {
		n, err := strconv.Atoi(m[1:])
		if err != nil || n < 1 || n > len(params) {
			return m
		}
		if _, seen := idxMap[n]; !seen {
			idxMap[n] = paramCount
			args = append(args, params[n-1])
			paramCount++
		}
		return fmt.Sprintf("$%d", idxMap[n])
	})

	return conditionStr, args, paramCount
}

func processCondition(cond Condition, paramCount int) (string, []any, int) {
	if cond.Type == Custom {
		return handleCustomCondition(cond, paramCount)
	}
	if cond.Field == "" {
		return "", nil, paramCount
	}
	field := sanitizeIdentifier(cond.Field)

	switch cond.Type {
	case In:
		return handleInCondition(cond, field, paramCount)
	case Contains:
		return handleContainsCondition(cond, field, paramCount)
	case Equal, NotEqual, ILike:
		return handleStandardCondition(cond, field, paramCount)
	case Custom:
	}
	return "", nil, paramCount
}

func buildWhereClause(inputConditions []Condition, startParamIndex int) (string, []any, int) {
	conditions := make([]string, 0, len(inputConditions))
	var args []any
	paramCount := startParamIndex

	for _, cond := range inputConditions {
		conditionStr, newArgs, nextParamCount := processCondition(cond, paramCount)
		if conditionStr != "" {
			conditions = append(conditions, conditionStr)
			args = append(args, newArgs...)
			paramCount = nextParamCount
		}
	}

	if len(conditions) == 0 {
		return "", args, paramCount
	}
	return "WHERE " + strings.Join(conditions, " AND "), args, paramCount
}
