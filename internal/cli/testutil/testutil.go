// Package testutil provides test utilities for CLI testing.
package testutil

import (
	"database/sql"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	_ "modernc.org/sqlite" // sqlite driver
)

// Script is the ETL script SetupTestProject writes. It loads the orders
// of shop.db into a product dimension and a sales fact table of dw.db.
const Script = `
src_conn = sqlite3.connect("/prod/shop.db")
dw_conn = sqlite3.connect("/prod/dw.db")
dw = pygrametl.ConnectionWrapper(connection=dw_conn)

product = CachedDimension(name="product", key="id", attributes=["name", "price"], lookupatts=["name"])
sales = FactTable(name="sales", keyrefs=["product_id"], measures=["amount"])

for row in SQLSource(connection=src_conn, query="SELECT name, price, amount FROM orders"):
    row["product_id"] = product.ensure(row)
    sales.insert(row)
dw.commit()
`

// Migration creates the warehouse tables Script loads.
const Migration = `-- +goose Up
CREATE TABLE product (id INTEGER PRIMARY KEY, name TEXT, price REAL);
CREATE TABLE sales (product_id INTEGER, amount REAL);

-- +goose Down
DROP TABLE sales;
DROP TABLE product;
`

// Config points the target at dw.db, the single source at shop.db and
// migrates the target from migrations/.
const Config = `script: etl.star
migrations_dir: migrations
log_level: error
target:
  name: warehouse
  type: sqlite
  path: dw.db
sources:
  - name: shop
    type: sqlite
    path: shop.db
`

// SetupTestProject creates a temporary project: a config file, the ETL
// script, its migration and a shop database with three orders.
// It returns the project directory.
func SetupTestProject(t *testing.T) string {
	t.Helper()

	tmpDir := t.TempDir()

	if err := os.MkdirAll(filepath.Join(tmpDir, "migrations"), 0o755); err != nil {
		t.Fatalf("failed to create migrations directory: %v", err)
	}

	files := map[string]string{
		"dwprobe.yaml":                   Config,
		"etl.star":                       Script,
		"migrations/00001_warehouse.sql": Migration,
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(tmpDir, name), []byte(content), 0o644); err != nil {
			t.Fatalf("failed to create %s: %v", name, err)
		}
	}

	CreateSQLiteDB(t, filepath.Join(tmpDir, "shop.db"),
		`CREATE TABLE orders (name TEXT, price REAL, amount REAL)`,
		`INSERT INTO orders VALUES ('apple', 1.5, 3), ('pear', 2.0, 1), ('apple', 1.5, 2)`,
	)

	return tmpDir
}

// CreateSQLiteDB creates the SQLite database at path and runs stmts on it.
func CreateSQLiteDB(t *testing.T, path string, stmts ...string) {
	t.Helper()

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("failed to open %s: %v", path, err)
	}
	defer func() { _ = db.Close() }()

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("failed to run %q: %v", stmt, err)
		}
	}
}

// ansiPattern matches ANSI escape codes.
var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

// AssertNoANSI checks that a string contains no ANSI escape codes.
func AssertNoANSI(t *testing.T, s string) {
	t.Helper()
	if ansiPattern.MatchString(s) {
		t.Errorf("string contains ANSI escape codes: %q", s)
	}
}

// AssertContains checks that the string contains the expected substring.
func AssertContains(t *testing.T, s, expected string) {
	t.Helper()
	if !strings.Contains(s, expected) {
		t.Errorf("string %q does not contain expected %q", s, expected)
	}
}

// AssertNotContains checks that the string does not contain the substring.
func AssertNotContains(t *testing.T, s, unexpected string) {
	t.Helper()
	if strings.Contains(s, unexpected) {
		t.Errorf("string %q unexpectedly contains %q", s, unexpected)
	}
}
