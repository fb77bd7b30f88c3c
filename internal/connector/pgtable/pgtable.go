// Package pgtable implements the connector contract over a single
// Postgres table: one row per external object, one column per attribute.
// A monotonically increasing revision column, when configured, gives the
// table a change-log for incremental pulls.
package pgtable

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mreiling/idprov/internal/connector"
)

// Config describes the table one resource lives in.
type Config struct {
	Resource  string
	Table     string
	KeyColumn string

	// Columns are the attribute columns exposed to the mapping; anything
	// else on the table is invisible to provisioning.
	Columns []string

	// RevisionColumn, when set, must be a bigint column assigned a value
	// larger than any previous one on every insert and update (a sequence
	// default plus an update trigger is the usual arrangement). Empty
	// disables incremental pulls.
	RevisionColumn string

	// PageSize bounds Search result pages. Defaults to 500.
	PageSize int
}

// Table is a Postgres-backed connector. Safe for concurrent use: the pool
// hands each call its own connection.
type Table struct {
	cfg  Config
	pool *pgxpool.Pool
}

// New binds a connector to a pool. The pool is owned by the caller.
func New(pool *pgxpool.Pool, cfg Config) (*Table, error) {
	if cfg.Table == "" || cfg.KeyColumn == "" {
		return nil, fmt.Errorf("pgtable %s: table and key column are required", cfg.Resource)
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 500
	}
	return &Table{cfg: cfg, pool: pool}, nil
}

func (t *Table) column(name string) (string, bool) {
	for _, c := range t.cfg.Columns {
		if c == name {
			return pgx.Identifier{c}.Sanitize(), true
		}
	}
	return "", false
}

// classify maps pgx errors onto the connector taxonomy: connection-level
// problems are transient, constraint and syntax problems permanent.
func (t *Table) classify(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// Class 08 is connection exceptions, class 57 operator
		// intervention (shutdown, crash recovery).
		if strings.HasPrefix(pgErr.Code, "08") || strings.HasPrefix(pgErr.Code, "57") {
			return connector.Transient(t.cfg.Resource, op, err)
		}
		return connector.Permanent(t.cfg.Resource, op, err)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}
	return connector.Transient(t.cfg.Resource, op, err)
}

// Create inserts a row keyed by key.
func (t *Table) Create(ctx context.Context, class, key string, attrs []connector.Attr) (string, error) {
	cols := []string{pgx.Identifier{t.cfg.KeyColumn}.Sanitize()}
	args := []any{key}
	for _, a := range attrs {
		col, ok := t.column(a.Name)
		if !ok || len(a.Values) == 0 {
			continue
		}
		cols = append(cols, col)
		args = append(args, a.Values[0])
	}

	placeholders := make([]string, len(args))
	for i := range args {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		pgx.Identifier{t.cfg.Table}.Sanitize(),
		strings.Join(cols, ", "),
		strings.Join(placeholders, ", "))

	if _, err := t.pool.Exec(ctx, sql, args...); err != nil {
		return "", t.classify("create", err)
	}
	return key, nil
}

// Update rewrites the mapped columns of one row.
func (t *Table) Update(ctx context.Context, class, key string, attrs []connector.Attr) (string, error) {
	var sets []string
	var args []any
	for _, a := range attrs {
		col, ok := t.column(a.Name)
		if !ok || len(a.Values) == 0 {
			continue
		}
		args = append(args, a.Values[0])
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if len(sets) == 0 {
		return key, nil
	}
	args = append(args, key)
	sql := fmt.Sprintf("UPDATE %s SET %s WHERE %s = $%d",
		pgx.Identifier{t.cfg.Table}.Sanitize(),
		strings.Join(sets, ", "),
		pgx.Identifier{t.cfg.KeyColumn}.Sanitize(),
		len(args))

	tag, err := t.pool.Exec(ctx, sql, args...)
	if err != nil {
		return "", t.classify("update", err)
	}
	if tag.RowsAffected() == 0 {
		return "", connector.ErrNotFound
	}
	return key, nil
}

// Delete removes one row.
func (t *Table) Delete(ctx context.Context, class, key string) error {
	sql := fmt.Sprintf("DELETE FROM %s WHERE %s = $1",
		pgx.Identifier{t.cfg.Table}.Sanitize(),
		pgx.Identifier{t.cfg.KeyColumn}.Sanitize())
	tag, err := t.pool.Exec(ctx, sql, key)
	if err != nil {
		return t.classify("delete", err)
	}
	if tag.RowsAffected() == 0 {
		return connector.ErrNotFound
	}
	return nil
}

// Get reads one row by key, nil when absent.
func (t *Table) Get(ctx context.Context, class, key string) (*connector.Record, error) {
	sql := fmt.Sprintf("SELECT %s FROM %s WHERE %s = $1",
		t.selectList(),
		pgx.Identifier{t.cfg.Table}.Sanitize(),
		pgx.Identifier{t.cfg.KeyColumn}.Sanitize())
	rows, err := t.pool.Query(ctx, sql, key)
	if err != nil {
		return nil, t.classify("get", err)
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, t.classify("get", err)
		}
		return nil, nil
	}
	rec, err := t.scanRecord(class, rows)
	if err != nil {
		return nil, t.classify("get", err)
	}
	return &rec, nil
}

// Search pages through rows ordered by key; the cookie is the last key of
// the previous page (keyset pagination).
func (t *Table) Search(ctx context.Context, class string, filter connector.Filter, cookie string) (connector.Page, error) {
	var conds []string
	var args []any
	if cookie != "" {
		args = append(args, cookie)
		conds = append(conds, fmt.Sprintf("%s > $%d", pgx.Identifier{t.cfg.KeyColumn}.Sanitize(), len(args)))
	}
	if filter.Attr != "" {
		col, ok := t.column(filter.Attr)
		if !ok {
			return connector.Page{}, connector.Permanent(t.cfg.Resource, "search",
				fmt.Errorf("filter attribute %q is not a mapped column", filter.Attr))
		}
		args = append(args, filter.Value)
		conds = append(conds, fmt.Sprintf("%s = $%d", col, len(args)))
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}
	sql := fmt.Sprintf("SELECT %s FROM %s%s ORDER BY %s LIMIT %d",
		t.selectList(),
		pgx.Identifier{t.cfg.Table}.Sanitize(),
		where,
		pgx.Identifier{t.cfg.KeyColumn}.Sanitize(),
		t.cfg.PageSize)

	rows, err := t.pool.Query(ctx, sql, args...)
	if err != nil {
		return connector.Page{}, t.classify("search", err)
	}
	defer rows.Close()

	var page connector.Page
	for rows.Next() {
		rec, err := t.scanRecord(class, rows)
		if err != nil {
			return connector.Page{}, t.classify("search", err)
		}
		page.Records = append(page.Records, rec)
	}
	if err := rows.Err(); err != nil {
		return connector.Page{}, t.classify("search", err)
	}
	if len(page.Records) == t.cfg.PageSize {
		page.Cookie = page.Records[len(page.Records)-1].Key
	}
	return page, nil
}

// Changes returns rows whose revision exceeds the token.
func (t *Table) Changes(ctx context.Context, class, token string) ([]connector.Record, string, error) {
	if t.cfg.RevisionColumn == "" {
		return nil, "", connector.Permanent(t.cfg.Resource, "changes",
			fmt.Errorf("no revision column configured"))
	}
	var since int64
	if token != "" {
		n, err := strconv.ParseInt(token, 10, 64)
		if err != nil {
			return nil, "", connector.Permanent(t.cfg.Resource, "changes",
				fmt.Errorf("bad sync token %q: %w", token, err))
		}
		since = n
	}

	sql := fmt.Sprintf("SELECT %s FROM %s WHERE %s > $1 ORDER BY %s",
		t.selectList(),
		pgx.Identifier{t.cfg.Table}.Sanitize(),
		pgx.Identifier{t.cfg.RevisionColumn}.Sanitize(),
		pgx.Identifier{t.cfg.RevisionColumn}.Sanitize())
	rows, err := t.pool.Query(ctx, sql, since)
	if err != nil {
		return nil, "", t.classify("changes", err)
	}
	defer rows.Close()

	var recs []connector.Record
	for rows.Next() {
		rec, err := t.scanRecord(class, rows)
		if err != nil {
			return nil, "", t.classify("changes", err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, "", t.classify("changes", err)
	}

	next, err := t.LatestToken(ctx, class)
	if err != nil {
		return nil, "", err
	}
	return recs, next, nil
}

// LatestToken returns the highest revision currently on the table.
func (t *Table) LatestToken(ctx context.Context, class string) (string, error) {
	if t.cfg.RevisionColumn == "" {
		return "", nil
	}
	sql := fmt.Sprintf("SELECT COALESCE(MAX(%s), 0) FROM %s",
		pgx.Identifier{t.cfg.RevisionColumn}.Sanitize(),
		pgx.Identifier{t.cfg.Table}.Sanitize())
	var max int64
	if err := t.pool.QueryRow(ctx, sql).Scan(&max); err != nil {
		return "", t.classify("latest token", err)
	}
	return strconv.FormatInt(max, 10), nil
}

// Test checks the pool can reach the database.
func (t *Table) Test(ctx context.Context) error {
	if err := t.pool.Ping(ctx); err != nil {
		return t.classify("ping", err)
	}
	return nil
}

func (t *Table) selectList() string {
	cols := []string{pgx.Identifier{t.cfg.KeyColumn}.Sanitize()}
	for _, c := range t.cfg.Columns {
		cols = append(cols, pgx.Identifier{c}.Sanitize())
	}
	return strings.Join(cols, ", ")
}

func (t *Table) scanRecord(class string, rows pgx.Rows) (connector.Record, error) {
	values := make([]any, 1+len(t.cfg.Columns))
	ptrs := make([]any, len(values))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return connector.Record{}, err
	}

	rec := connector.Record{Class: class}
	if s, ok := values[0].(string); ok {
		rec.Key = s
	}
	for i, col := range t.cfg.Columns {
		if values[i+1] == nil {
			continue
		}
		rec.Attrs = append(rec.Attrs, connector.Attr{
			Name:   col,
			Values: []string{fmt.Sprint(values[i+1])},
		})
	}
	return rec, nil
}
