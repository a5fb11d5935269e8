package warehouse

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"sync/atomic"
	"testing"

	contractx "github.com/tanpawarit/smartops-bi/agent/contract"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
)

var errUnreachable = errors.New("database unreachable")

// countingConnector records every attempt to reach the database and fails it.
type countingConnector struct {
	connects atomic.Int32
}

func (c *countingConnector) Connect(context.Context) (driver.Conn, error) {
	c.connects.Add(1)
	return nil, errUnreachable
}

func (c *countingConnector) Driver() driver.Driver { return countingDriver{c} }

type countingDriver struct{ c *countingConnector }

func (d countingDriver) Open(string) (driver.Conn, error) {
	return d.c.Connect(context.Background())
}

func newTestWarehouse(t *testing.T, include ...string) (*BunWarehouse, *countingConnector) {
	t.Helper()

	conn := &countingConnector{}
	db := bun.NewDB(sql.OpenDB(conn), pgdialect.New())
	t.Cleanup(func() { _ = db.Close() })

	wh, err := NewBunWarehouse(db, Options{IncludeTables: include})
	if err != nil {
		t.Fatalf("NewBunWarehouse() error = %v", err)
	}
	return wh, conn
}

func TestNewBunWarehouseRequiresDB(t *testing.T) {
	t.Parallel()

	if _, err := NewBunWarehouse(nil, Options{}); !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestAllowed(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		include []string
		table   string
		want    bool
	}{
		{"no list allows any table", nil, "payroll", true},
		{"listed table", []string{"farms", "harvests"}, "harvests", true},
		{"unlisted table", []string{"farms", "harvests"}, "payroll", false},
		{"match is exact", []string{"farms"}, "Farms", false},
		{"blank name", nil, "", false},
	}
	for _, tc := range cases {
		wh, _ := newTestWarehouse(t, tc.include...)
		if got := wh.allowed(tc.table); got != tc.want {
			t.Fatalf("%s: allowed(%q) = %v, want %v", tc.name, tc.table, got, tc.want)
		}
	}
}

func TestTablesOutsideIncludeListNeverReachDatabase(t *testing.T) {
	t.Parallel()

	wh, conn := newTestWarehouse(t, "farms", "harvests")
	ctx := context.Background()

	cases := []struct {
		name string
		call func() error
	}{
		{"describe", func() error { _, err := wh.DescribeTable(ctx, "payroll"); return err }},
		{"describe blank", func() error { _, err := wh.DescribeTable(ctx, "  "); return err }},
		{"sample", func() error { _, err := wh.SampleRows(ctx, "payroll", 3); return err }},
		{"sample padded", func() error { _, err := wh.SampleRows(ctx, " users ", 3); return err }},
	}
	for _, tc := range cases {
		if err := tc.call(); !errors.Is(err, ErrTableNotFound) {
			t.Fatalf("%s: expected ErrTableNotFound, got %v", tc.name, err)
		}
	}
	if n := conn.connects.Load(); n != 0 {
		t.Fatalf("database reached %d times for rejected tables", n)
	}
}

func TestAllowedTableReachesDatabase(t *testing.T) {
	t.Parallel()

	wh, conn := newTestWarehouse(t, "farms")

	_, err := wh.DescribeTable(context.Background(), " farms ")
	if err == nil || errors.Is(err, ErrTableNotFound) {
		t.Fatalf("expected a database error, got %v", err)
	}
	if conn.connects.Load() == 0 {
		t.Fatal("allowed table should be looked up in the database")
	}
}

func TestQueryRejectsWritesBeforeDatabase(t *testing.T) {
	t.Parallel()

	wh, conn := newTestWarehouse(t)

	for _, in := range []string{
		"DELETE FROM farms",
		"SELECT 1; DROP TABLE farms",
		"INSERT INTO farms (name) VALUES ('x')",
		"",
	} {
		if _, err := wh.Query(context.Background(), in); !errors.Is(err, contractx.ErrReadOnlyViolation) {
			t.Fatalf("Query(%q) error = %v, want ErrReadOnlyViolation", in, err)
		}
	}
	if n := conn.connects.Load(); n != 0 {
		t.Fatalf("database reached %d times for rejected statements", n)
	}
}

func TestQuerySelectOpensReadOnlyTransaction(t *testing.T) {
	t.Parallel()

	wh, conn := newTestWarehouse(t)

	_, err := wh.Query(context.Background(), "SELECT count(*) FROM farms")
	if !errors.Is(err, errUnreachable) {
		t.Fatalf("expected the connection error, got %v", err)
	}
	if conn.connects.Load() == 0 {
		t.Fatal("SELECT should reach the database")
	}
}
