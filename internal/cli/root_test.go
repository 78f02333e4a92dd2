package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/leapstack-labs/dwprobe/internal/cli/commands"
	"github.com/leapstack-labs/dwprobe/internal/cli/testutil"
	"github.com/leapstack-labs/dwprobe/pkg/core"
)

// execute runs the root command with args against the project in dir.
func execute(t *testing.T, dir string, args ...string) (string, string, error) {
	t.Helper()

	cmd := NewRootCmd()
	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetArgs(append([]string{"--config", filepath.Join(dir, "dwprobe.yaml")}, args...))

	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestVersionCommand(t *testing.T) {
	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"version"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "dwprobe v"+Version)
}

func TestRootCommand_Flags(t *testing.T) {
	cmd := NewRootCmd()

	for _, flag := range []string{"config", "script", "reserved-name", "migrations-dir", "log-level", "log-format", "output"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(flag), "flag %q should exist", flag)
	}

	var names []string
	for _, sub := range cmd.Commands() {
		names = append(names, sub.Name())
	}
	assert.ElementsMatch(t, []string{"version", "inspect", "rows"}, names)
}

func TestInspect_JSON(t *testing.T) {
	dir := testutil.SetupTestProject(t)

	out, _, err := execute(t, dir, "inspect", "--count", "-o", "json")
	require.NoError(t, err)

	var tables []commands.TableSummary
	require.NoError(t, json.Unmarshal([]byte(out), &tables))
	require.Len(t, tables, 2)

	product, sales := tables[0], tables[1]
	assert.Equal(t, "product", product.Name)
	assert.Equal(t, "dimension", string(product.Kind))
	assert.Equal(t, []string{"id", "name", "price"}, product.Columns)
	assert.Equal(t, "SELECT id, name, price FROM product", product.Query)
	assert.Equal(t, "warehouse", product.Connection)
	require.NotNil(t, product.Rows)
	assert.Equal(t, int64(2), *product.Rows)

	assert.Equal(t, "sales", sales.Name)
	assert.Equal(t, []string{"product_id"}, sales.KeyRefs)
	assert.Equal(t, []string{"amount"}, sales.Measures)
	require.NotNil(t, sales.Rows)
	assert.Equal(t, int64(3), *sales.Rows)
}

func TestInspect_YAML(t *testing.T) {
	dir := testutil.SetupTestProject(t)

	out, _, err := execute(t, dir, "inspect", "-o", "yaml")
	require.NoError(t, err)

	var tables []map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(out), &tables))
	require.Len(t, tables, 2)
	assert.Equal(t, "product", tables[0]["name"])
	assert.NotContains(t, tables[0], "rows")
}

func TestInspect_Table(t *testing.T) {
	dir := testutil.SetupTestProject(t)

	out, _, err := execute(t, dir, "inspect", "--count", "-o", "table")
	require.NoError(t, err)

	testutil.AssertNoANSI(t, out)
	testutil.AssertContains(t, out, "SELECT product_id, amount FROM sales")
	testutil.AssertContains(t, out, "(2 tables)")
}

func TestInspect_ScriptArgument(t *testing.T) {
	dir := testutil.SetupTestProject(t)
	other := filepath.Join(t.TempDir(), "facts_only.star")
	require.NoError(t, os.WriteFile(other, []byte(`
dw = pygrametl.ConnectionWrapper(connection=sqlite3.connect("dw.db"))
sales = FactTable(name="sales", keyrefs=["product_id"], measures=["amount"])
`), 0o644))

	out, _, err := execute(t, dir, "inspect", other, "-o", "json")
	// The config lists one source; this script uses none.
	var mismatch *core.BindingCountMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, 1, mismatch.Expected)
	assert.Equal(t, 0, mismatch.Found)
	assert.Empty(t, out)
}

func TestInspect_ReservedNameFromEnv(t *testing.T) {
	dir := testutil.SetupTestProject(t)
	t.Setenv("DWPROBE_RESERVED_NAME", "product")

	_, _, err := execute(t, dir, "inspect")

	var collision *core.NameCollisionError
	require.ErrorAs(t, err, &collision)
	assert.Equal(t, "product", collision.Name)
}

func TestRows(t *testing.T) {
	tests := []struct {
		name  string
		args  func(dir string) []string
		check func(t *testing.T, out string)
	}{
		{
			name: "json lines with projection",
			args: func(string) []string { return []string{"rows", "product", "--columns", "name", "-o", "json"} },
			check: func(t *testing.T, out string) {
				lines := strings.Split(strings.TrimSpace(out), "\n")
				require.Len(t, lines, 2)
				var names []string
				for _, line := range lines {
					var row map[string]any
					require.NoError(t, json.Unmarshal([]byte(line), &row))
					assert.Len(t, row, 1)
					names = append(names, row["name"].(string))
				}
				assert.ElementsMatch(t, []string{"apple", "pear"}, names)
			},
		},
		{
			name: "explicit script with limit",
			args: func(dir string) []string {
				return []string{"rows", filepath.Join(dir, "etl.star"), "sales", "--limit", "2", "-o", "json"}
			},
			check: func(t *testing.T, out string) {
				assert.Len(t, strings.Split(strings.TrimSpace(out), "\n"), 2)
			},
		},
		{
			name: "table",
			args: func(string) []string { return []string{"rows", "sales", "-o", "table"} },
			check: func(t *testing.T, out string) {
				testutil.AssertContains(t, strings.ToLower(out), "product_id")
				testutil.AssertContains(t, out, "(3 rows)")
			},
		},
		{
			name: "yaml documents",
			args: func(string) []string { return []string{"rows", "product", "-o", "yaml"} },
			check: func(t *testing.T, out string) {
				dec := yaml.NewDecoder(strings.NewReader(out))
				n := 0
				for {
					var row map[string]any
					if err := dec.Decode(&row); err != nil {
						break
					}
					assert.Contains(t, row, "price")
					n++
				}
				assert.Equal(t, 2, n)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Every run loads the warehouse again, so each case gets a fresh project.
			dir := testutil.SetupTestProject(t)
			out, _, err := execute(t, dir, tt.args(dir)...)
			require.NoError(t, err)
			tt.check(t, out)
		})
	}
}

func TestCommandErrors(t *testing.T) {
	dir := testutil.SetupTestProject(t)

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{
			name:    "unknown table",
			args:    []string{"rows", "customer"},
			wantErr: `script defines no table "customer"`,
		},
		{
			name:    "unknown column",
			args:    []string{"rows", "product", "--columns", "colour", "-o", "json"},
			wantErr: "colour",
		},
		{
			name:    "invalid output",
			args:    []string{"inspect", "-o", "xml"},
			wantErr: "invalid output format",
		},
		{
			name:    "invalid log level",
			args:    []string{"inspect", "--log-level", "loud"},
			wantErr: "invalid log_level",
		},
		{
			name:    "missing script",
			args:    []string{"inspect", filepath.Join(dir, "missing.star")},
			wantErr: "missing.star",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := execute(t, dir, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfigWithoutTarget(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "dwprobe.yaml"), []byte("script: etl.star\n"), 0o644))

	_, _, err := execute(t, dir, "inspect")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "target connection is required")
}

func TestMigrationsOnUnsupportedTarget(t *testing.T) {
	dir := testutil.SetupTestProject(t)
	cfg := strings.Replace(testutil.Config, "type: sqlite\n  path: dw.db", "type: duckdb\n  path: dw.duckdb", 1)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "dwprobe.yaml"), []byte(cfg), 0o644))

	_, _, err := execute(t, dir, "inspect")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "migrations are not supported for duckdb targets")
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer

	logger, err := NewLogger(&buf, "warn", "json")
	require.NoError(t, err)
	logger.Info("hidden")
	logger.Warn("shown", "k", "v")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "shown", rec["msg"])

	_, err = NewLogger(&buf, "info", "xml")
	assert.Error(t, err)
}
