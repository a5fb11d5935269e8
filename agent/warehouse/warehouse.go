package warehouse

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	contractx "github.com/tanpawarit/smartops-bi/agent/contract"
	"github.com/uptrace/bun"
)

var ErrTableNotFound = errors.New("table not found")

type Column struct {
	Name     string `bun:"column_name" json:"name"`
	DataType string `bun:"data_type" json:"data_type"`
	Nullable string `bun:"is_nullable" json:"nullable"`
}

type Table struct {
	Name    string   `json:"name"`
	Columns []Column `json:"columns"`
}

// Result is a bounded tabular query result. Values are already converted to
// printable Go types.
type Result struct {
	Columns   []string
	Rows      [][]any
	Truncated bool
}

type TableCount struct {
	Table string `json:"table"`
	Rows  int64  `json:"rows"`
}

// Warehouse is the read-only view of the analytics database the SQL agent
// and the HTTP surface work against.
type Warehouse interface {
	Dialect() string
	ListTables(ctx context.Context) ([]string, error)
	DescribeTable(ctx context.Context, name string) (Table, error)
	SampleRows(ctx context.Context, name string, limit int) (Result, error)
	Query(ctx context.Context, query string) (Result, error)
	Counts(ctx context.Context) ([]TableCount, error)
	Ping(ctx context.Context) error
}

type Options struct {
	Schema        string
	IncludeTables []string
	QueryTimeout  time.Duration
	RowLimit      int
}

// BunWarehouse implements Warehouse on a bun handle to PostgreSQL.
type BunWarehouse struct {
	db           *bun.DB
	schema       string
	include      []string
	queryTimeout time.Duration
	rowLimit     int
}

var _ Warehouse = (*BunWarehouse)(nil)

func NewBunWarehouse(db *bun.DB, opts Options) (*BunWarehouse, error) {
	if db == nil {
		return nil, fmt.Errorf("%w: bun db is required", contractx.ErrValidation)
	}
	schema := strings.TrimSpace(opts.Schema)
	if schema == "" {
		schema = "public"
	}
	rowLimit := opts.RowLimit
	if rowLimit <= 0 {
		rowLimit = defaultRowLimit
	}
	return &BunWarehouse{
		db:           db,
		schema:       schema,
		include:      opts.IncludeTables,
		queryTimeout: opts.QueryTimeout,
		rowLimit:     rowLimit,
	}, nil
}

const defaultRowLimit = 50

func (w *BunWarehouse) Dialect() string {
	return "PostgreSQL"
}

func (w *BunWarehouse) ListTables(ctx context.Context) ([]string, error) {
	var names []string
	err := w.db.NewSelect().
		TableExpr("information_schema.tables").
		Column("table_name").
		Where("table_schema = ?", w.schema).
		Where("table_type = 'BASE TABLE'").
		OrderExpr("table_name ASC").
		Scan(ctx, &names)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	return filterTables(names, w.include), nil
}

func (w *BunWarehouse) DescribeTable(ctx context.Context, name string) (Table, error) {
	name = strings.TrimSpace(name)
	if !w.allowed(name) {
		return Table{}, fmt.Errorf("%w: %s", ErrTableNotFound, name)
	}

	var cols []Column
	err := w.db.NewRaw(
		`SELECT column_name, data_type, is_nullable
		FROM information_schema.columns
		WHERE table_schema = ? AND table_name = ?
		ORDER BY ordinal_position`,
		w.schema, name,
	).Scan(ctx, &cols)
	if err != nil {
		return Table{}, fmt.Errorf("describe table %s: %w", name, err)
	}
	if len(cols) == 0 {
		return Table{}, fmt.Errorf("%w: %s", ErrTableNotFound, name)
	}
	return Table{Name: name, Columns: cols}, nil
}

func (w *BunWarehouse) SampleRows(ctx context.Context, name string, limit int) (Result, error) {
	name = strings.TrimSpace(name)
	if !w.allowed(name) {
		return Result{}, fmt.Errorf("%w: %s", ErrTableNotFound, name)
	}
	if limit <= 0 {
		limit = 3
	}

	rows, err := w.db.NewSelect().
		ColumnExpr("*").
		TableExpr("?.?", bun.Ident(w.schema), bun.Ident(name)).
		Limit(limit).
		Rows(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("sample rows from %s: %w", name, err)
	}
	defer rows.Close()
	return scanRows(rows, limit)
}

// Query runs a single read-only statement inside a read-only transaction
// with a local statement timeout. Results are capped at the row limit.
func (w *BunWarehouse) Query(ctx context.Context, query string) (Result, error) {
	stmt, err := CheckReadOnly(query)
	if err != nil {
		return Result{}, err
	}

	tx, err := w.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return Result{}, fmt.Errorf("begin read-only tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if w.queryTimeout > 0 {
		setTimeout := fmt.Sprintf("SET LOCAL statement_timeout = %d", w.queryTimeout.Milliseconds())
		if _, err := tx.ExecContext(ctx, setTimeout); err != nil {
			return Result{}, fmt.Errorf("set statement timeout: %w", err)
		}
	}

	// Generated SQL goes straight to database/sql so bun does not treat a
	// literal ? as a placeholder.
	rows, err := tx.Tx.QueryContext(ctx, stmt)
	if err != nil {
		return Result{}, err
	}
	defer rows.Close()
	return scanRows(rows, w.rowLimit)
}

func (w *BunWarehouse) Counts(ctx context.Context) ([]TableCount, error) {
	tables, err := w.ListTables(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]TableCount, 0, len(tables))
	for _, name := range tables {
		n, err := w.db.NewSelect().
			TableExpr("?.?", bun.Ident(w.schema), bun.Ident(name)).
			Count(ctx)
		if err != nil {
			return nil, fmt.Errorf("count %s: %w", name, err)
		}
		out = append(out, TableCount{Table: name, Rows: int64(n)})
	}
	return out, nil
}

func (w *BunWarehouse) Ping(ctx context.Context) error {
	return w.db.PingContext(ctx)
}

func (w *BunWarehouse) allowed(name string) bool {
	if name == "" {
		return false
	}
	if len(w.include) == 0 {
		return true
	}
	return slices.Contains(w.include, name)
}

// filterTables keeps the order of names and drops anything outside include.
func filterTables(names []string, include []string) []string {
	if len(include) == 0 {
		return names
	}
	out := make([]string, 0, len(names))
	for _, name := range names {
		if slices.Contains(include, name) {
			out = append(out, name)
		}
	}
	return out
}

func scanRows(rows *sql.Rows, limit int) (Result, error) {
	cols, err := rows.Columns()
	if err != nil {
		return Result{}, fmt.Errorf("read columns: %w", err)
	}

	res := Result{Columns: cols}
	for rows.Next() {
		if limit > 0 && len(res.Rows) >= limit {
			res.Truncated = true
			break
		}
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return Result{}, fmt.Errorf("scan row: %w", err)
		}
		for i, v := range values {
			values[i] = printable(v)
		}
		res.Rows = append(res.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return Result{}, fmt.Errorf("iterate rows: %w", err)
	}
	return res, nil
}

func printable(v any) any {
	switch t := v.(type) {
	case []byte:
		return string(t)
	case time.Time:
		return t.Format(time.RFC3339)
	default:
		return v
	}
}
