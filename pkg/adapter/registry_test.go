package adapter

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnknownAdapterError_Error(t *testing.T) {
	err := &UnknownAdapterError{
		Type:      "fake_db",
		Available: []string{"duckdb", "postgres"},
	}

	msg := err.Error()
	assert.Contains(t, msg, "fake_db")
	assert.Contains(t, msg, "duckdb")
	assert.Contains(t, msg, "dwprobe.yaml")
}

func TestRegister(t *testing.T) {
	Register("test_adapter_internal", func(_ *slog.Logger) Adapter { return nil })

	assert.True(t, IsRegistered("test_adapter_internal"))
	assert.Contains(t, ListAdapters(), "test_adapter_internal")

	factory, ok := Get("test_adapter_internal")
	assert.True(t, ok)
	assert.NotNil(t, factory)
}

func TestRegister_Aliases(t *testing.T) {
	Register("Test_Alias_DB", func(_ *slog.Logger) Adapter { return nil }, "tadb", "TADB2")

	tests := []struct {
		name string
		want string
		ok   bool
	}{
		{name: "test_alias_db", want: "test_alias_db", ok: true},
		{name: "TEST_ALIAS_DB", want: "test_alias_db", ok: true},
		{name: "tadb", want: "test_alias_db", ok: true},
		{name: "tadb2", want: "test_alias_db", ok: true},
		{name: "tadb3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Canonical(tt.name)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.ok, IsRegistered(tt.name))
		})
	}

	assert.Contains(t, ListAdapters(), "test_alias_db")
	assert.NotContains(t, ListAdapters(), "tadb", "aliases are not listed")
}

func TestNewAdapter_Errors(t *testing.T) {
	_, err := NewAdapter(Config{}, nil)
	require.Error(t, err)
	assert.Equal(t, "adapter type not specified", err.Error())

	_, err = NewAdapter(Config{Type: "unknown_db"}, nil)
	var unknown *UnknownAdapterError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "unknown_db", unknown.Type)
}

func TestOpen_UnknownType(t *testing.T) {
	a, conn, err := Open(context.Background(), "dw", Config{Type: "unknown_db"}, nil)
	assert.Nil(t, a)
	assert.Nil(t, conn)
	assert.Error(t, err)
}
