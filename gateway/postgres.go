package gateway

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"vigila/cache"
)

// Querier is the part of a pgx pool the gateway uses.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

var _ Querier = (*pgxpool.Pool)(nil)

// Postgres serves one domain from a table whose columns match the db tags
// of T.
type Postgres[T cache.Entity] struct {
	db     Querier
	table  string
	schema *schema
}

// NewPostgres returns a gateway over table.
func NewPostgres[T cache.Entity](db Querier, table string) *Postgres[T] {
	return &Postgres[T]{db: db, table: table, schema: schemaOf[T]()}
}

// OpenPool connects to dsn and pings it.
func OpenPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

func (p *Postgres[T]) FetchList(ctx context.Context, params cache.Params) ([]T, error) {
	query, args, err := selectSQL(p.schema, p.table, params)
	if err != nil {
		return nil, err
	}
	rows, err := p.db.Query(ctx, query, args...)
	if err != nil {
		return nil, cache.Transport(err)
	}
	items, err := pgx.CollectRows(rows, pgx.RowToStructByName[T])
	if err != nil {
		return nil, cache.Transport(err)
	}
	if items == nil {
		items = []T{}
	}
	return items, nil
}

func (p *Postgres[T]) FetchDetail(ctx context.Context, id string) (T, error) {
	var zero T
	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = $1", columnList(p.schema.columns), ident(p.table))
	rows, err := p.db.Query(ctx, query, id)
	if err != nil {
		return zero, cache.Transport(err)
	}
	e, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[T])
	if errors.Is(err, pgx.ErrNoRows) {
		return zero, cache.NotFound(id)
	}
	if err != nil {
		return zero, cache.Transport(err)
	}
	return e, nil
}

func (p *Postgres[T]) Insert(ctx context.Context, e T) error {
	placeholders := make([]string, len(p.schema.columns))
	for i := range placeholders {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		ident(p.table), columnList(p.schema.columns), strings.Join(placeholders, ", "))
	if _, err := p.db.Exec(ctx, query, p.schema.values(e)...); err != nil {
		return cache.Transport(err)
	}
	return nil
}

func (p *Postgres[T]) Update(ctx context.Context, id string, fields map[string]any) error {
	query, args, err := updateSQL(p.schema, p.table, id, fields)
	if err != nil {
		return err
	}
	tag, err := p.db.Exec(ctx, query, args...)
	if err != nil {
		return cache.Transport(err)
	}
	if tag.RowsAffected() == 0 {
		return cache.NotFound(id)
	}
	return nil
}

func (p *Postgres[T]) Delete(ctx context.Context, id string) error {
	tag, err := p.db.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = $1", ident(p.table)), id)
	if err != nil {
		return cache.Transport(err)
	}
	if tag.RowsAffected() == 0 {
		return cache.NotFound(id)
	}
	return nil
}

func selectSQL(s *schema, table string, params cache.Params) (string, []any, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s", columnList(s.columns), ident(table))

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	args := make([]any, 0, len(keys))
	for i, k := range keys {
		col, err := s.sqlColumn(k)
		if err != nil {
			return "", nil, fmt.Errorf("postgres filter: %w", err)
		}
		if i == 0 {
			b.WriteString(" WHERE ")
		} else {
			b.WriteString(" AND ")
		}
		fmt.Fprintf(&b, "%s = $%d", ident(col), i+1)
		args = append(args, params[k])
	}
	b.WriteString(" ORDER BY created_at, id")
	return b.String(), args, nil
}

func updateSQL(s *schema, table, id string, fields map[string]any) (string, []any, error) {
	if len(fields) == 0 {
		return "", nil, errors.New("postgres update: no fields")
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	sets := make([]string, 0, len(keys))
	args := make([]any, 0, len(keys)+1)
	for i, k := range keys {
		col, err := s.sqlColumn(k)
		if err != nil {
			return "", nil, fmt.Errorf("postgres update: %w", err)
		}
		if col == "id" {
			return "", nil, errors.New("postgres update: id is immutable")
		}
		sets = append(sets, fmt.Sprintf("%s = $%d", ident(col), i+1))
		args = append(args, fields[k])
	}
	args = append(args, id)
	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = $%d", ident(table), strings.Join(sets, ", "), len(args))
	return query, args, nil
}

func ident(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

func columnList(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = ident(c)
	}
	return strings.Join(quoted, ", ")
}
