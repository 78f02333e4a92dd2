package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/dwprobe/pkg/adapter"

	// Import adapter packages to ensure adapters are registered via init()
	_ "github.com/leapstack-labs/dwprobe/pkg/adapters/duckdb"
	_ "github.com/leapstack-labs/dwprobe/pkg/adapters/postgres"
	_ "github.com/leapstack-labs/dwprobe/pkg/adapters/sqlite"
)

const sampleConfig = `
script: etl/load.star
migrations_dir: migrations
log_level: debug
target:
  type: sqlite
  path: dw.db
sources:
  - name: shop
    type: postgres
    host: ${DWPROBE_TEST_HOST}
    database: shop
    user: reader
    password: ${DWPROBE_TEST_PASSWORD}
    options:
      sslmode: require
  - type: duckdb
    path: ":memory:"
    params:
      extensions: [json]
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ConfigFileName)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func newFlags() *pflag.FlagSet {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("script", "", "")
	flags.String("reserved-name", "", "")
	flags.String("migrations-dir", "", "")
	flags.String("log-level", "", "")
	flags.String("log-format", "", "")
	flags.StringP("output", "o", "", "")
	return flags
}

func TestLoad_File(t *testing.T) {
	t.Setenv("DWPROBE_TEST_HOST", "db.internal")
	t.Setenv("DWPROBE_TEST_PASSWORD", "s3cret")

	path := writeConfig(t, sampleConfig)
	dir := filepath.Dir(path)

	cfg, err := Load(path, nil)
	require.NoError(t, err)

	assert.Equal(t, path, cfg.File)
	assert.Equal(t, filepath.Join(dir, "etl", "load.star"), cfg.Script)
	assert.Equal(t, filepath.Join(dir, "migrations"), cfg.MigrationsDir)
	assert.Equal(t, DefaultReservedName, cfg.ReservedName)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, DefaultLogFormat, cfg.LogFormat)
	assert.Equal(t, DefaultOutput, cfg.Output)

	require.NotNil(t, cfg.Target)
	assert.Equal(t, DefaultTargetName, cfg.Target.Name)
	assert.Equal(t, filepath.Join(dir, "dw.db"), cfg.Target.Path)

	require.Len(t, cfg.Sources, 2)
	shop := cfg.Sources[0]
	assert.Equal(t, "shop", shop.Name)
	assert.Equal(t, "db.internal", shop.Host)
	assert.Equal(t, "s3cret", shop.Password)
	assert.Equal(t, 5432, shop.Port)
	assert.Equal(t, map[string]string{"sslmode": "require"}, shop.Options)

	mem := cfg.Sources[1]
	assert.Equal(t, "source_2", mem.Name)
	assert.Equal(t, ":memory:", mem.Path)
	assert.Equal(t, []any{"json"}, mem.Params["extensions"])
}

func TestLoad_Precedence(t *testing.T) {
	path := writeConfig(t, `
script: from_file.star
log_level: warn
output: table
target:
  type: sqlite
  path: dw.db
`)

	t.Run("env over file", func(t *testing.T) {
		t.Setenv("DWPROBE_LOG_LEVEL", "error")
		t.Setenv("DWPROBE_TARGET__PATH", "/data/env.db")

		cfg, err := Load(path, newFlags())
		require.NoError(t, err)
		assert.Equal(t, "error", cfg.LogLevel)
		assert.Equal(t, "/data/env.db", cfg.Target.Path)
		assert.Equal(t, "table", cfg.Output)
	})

	t.Run("flags over env", func(t *testing.T) {
		t.Setenv("DWPROBE_LOG_LEVEL", "error")

		flags := newFlags()
		require.NoError(t, flags.Parse([]string{"--log-level", "debug", "-o", "json", "--script", "cli.star"}))

		cfg, err := Load(path, flags)
		require.NoError(t, err)
		assert.Equal(t, "debug", cfg.LogLevel)
		assert.Equal(t, "json", cfg.Output)

		wd, err := os.Getwd()
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(wd, "cli.star"), cfg.Script, "flag paths resolve against the working directory")
	})

	t.Run("unset flag uses env", func(t *testing.T) {
		t.Setenv("DWPROBE_RESERVED_NAME", "probe")

		cfg, err := Load(path, newFlags())
		require.NoError(t, err)
		assert.Equal(t, "probe", cfg.ReservedName)
	})
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name      string
		content   string
		errSubstr string
	}{
		{
			name:      "missing target",
			content:   "script: a.star\n",
			errSubstr: "target connection is required",
		},
		{
			name:      "target without type",
			content:   "target:\n  path: dw.db\n",
			errSubstr: "connection type is required",
		},
		{
			name:      "unknown source type",
			content:   "target:\n  type: sqlite\nsources:\n  - name: legacy\n    type: oracle\n",
			errSubstr: "source 1 (legacy): unknown adapter type",
		},
		{
			name:      "bad log format",
			content:   "log_format: xml\ntarget:\n  type: sqlite\n",
			errSubstr: "invalid log_format",
		},
		{
			name:      "malformed yaml",
			content:   "target: [",
			errSubstr: "error reading config file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content), nil)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errSubstr)
		})
	}
}

func TestConnectionConfig_Validate(t *testing.T) {
	tests := []struct {
		name      string
		conn      ConnectionConfig
		errSubstr string
	}{
		{name: "empty type", conn: ConnectionConfig{}, errSubstr: "connection type is required"},
		{name: "duckdb", conn: ConnectionConfig{Type: "duckdb"}},
		{name: "uppercase", conn: ConnectionConfig{Type: "DuckDB"}},
		{name: "sqlite", conn: ConnectionConfig{Type: "sqlite"}},
		{name: "driver alias", conn: ConnectionConfig{Type: "sqlite3"}},
		{name: "unknown", conn: ConnectionConfig{Type: "snowflake"}, errSubstr: "unknown adapter type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.conn.Validate()
			if tt.errSubstr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errSubstr)

			var unknown *adapter.UnknownAdapterError
			if tt.name == "unknown" {
				require.ErrorAs(t, err, &unknown)
				assert.Contains(t, unknown.Available, "duckdb")
			}
		})
	}
}

func TestApplyConnectionDefaults(t *testing.T) {
	tests := []struct {
		name     string
		conn     ConnectionConfig
		wantName string
		wantType string
		wantPort int
	}{
		{name: "named", conn: ConnectionConfig{Name: "dw", Type: "SQLite"}, wantName: "dw", wantType: "sqlite"},
		{name: "unnamed", conn: ConnectionConfig{Type: "duckdb"}, wantName: "fallback", wantType: "duckdb"},
		{name: "alias", conn: ConnectionConfig{Type: "postgresql"}, wantName: "fallback", wantType: "postgres", wantPort: 5432},
		{name: "explicit port", conn: ConnectionConfig{Type: "postgres", Port: 6432}, wantName: "fallback", wantType: "postgres", wantPort: 6432},
		{name: "dsn keeps port unset", conn: ConnectionConfig{Type: "postgres", DSN: "postgres://h/db"}, wantName: "fallback", wantType: "postgres"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := tt.conn
			applyConnectionDefaults(&c, "fallback")
			assert.Equal(t, tt.wantName, c.Name)
			assert.Equal(t, tt.wantType, c.Type)
			assert.Equal(t, tt.wantPort, c.Port)
		})
	}
}

func TestConnectionConfig_AdapterConfig(t *testing.T) {
	c := ConnectionConfig{
		Name:     "dw",
		Type:     "Postgres",
		Host:     "localhost",
		Port:     5433,
		Database: "dw",
		User:     "etl",
		Password: "pw",
		Schema:   "mart",
		Options:  map[string]string{"sslmode": "disable"},
	}

	ac := c.AdapterConfig()
	assert.Equal(t, "postgres", ac.Type)
	assert.Equal(t, "etl", ac.Username)
	assert.Equal(t, "pw", ac.Password)
	assert.Equal(t, 5433, ac.Port)
	assert.Equal(t, "mart", ac.Schema)
	assert.Equal(t, "disable", ac.Options["sslmode"])
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("TEST_VAR_ONE", "value_one")
	t.Setenv("TEST_VAR_TWO", "value_two")

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "single variable", input: "${TEST_VAR_ONE}", expected: "value_one"},
		{name: "multiple variables", input: "${TEST_VAR_ONE}/${TEST_VAR_TWO}", expected: "value_one/value_two"},
		{name: "variable in path", input: "/path/to/${TEST_VAR_ONE}/file", expected: "/path/to/value_one/file"},
		{name: "unset variable stays as-is", input: "${UNSET_VARIABLE}", expected: "${UNSET_VARIABLE}"},
		{name: "no variables", input: "plain string", expected: "plain string"},
		{name: "empty string", input: "", expected: ""},
		{name: "mixed set and unset", input: "${TEST_VAR_ONE}:${UNSET_VAR}", expected: "value_one:${UNSET_VAR}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, expandEnvVars(tt.input))
		})
	}
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "log_level", envKey("DWPROBE_LOG_LEVEL"))
	assert.Equal(t, "target.password", envKey("DWPROBE_TARGET__PASSWORD"))
}
