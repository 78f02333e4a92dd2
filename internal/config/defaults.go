package config

import (
	"strings"

	"github.com/leapstack-labs/dwprobe/internal/extract"
	"github.com/leapstack-labs/dwprobe/pkg/adapter"
)

// Default configuration values.
const (
	DefaultReservedName = extract.DefaultReservedName
	DefaultLogLevel     = "info"
	DefaultLogFormat    = "text"
	DefaultOutput       = "auto" // Auto-detect: TTY=table, non-TTY=json
	DefaultTargetName   = "target"
)

func defaults() map[string]any {
	return map[string]any{
		"reserved_name": DefaultReservedName,
		"log_level":     DefaultLogLevel,
		"log_format":    DefaultLogFormat,
		"output":        DefaultOutput,
	}
}

// applyConnectionDefaults names unnamed connections and fills in
// type-specific defaults.
func applyConnectionDefaults(c *ConnectionConfig, name string) {
	if c == nil {
		return
	}
	if c.Name == "" {
		c.Name = name
	}
	c.Type = strings.ToLower(c.Type)
	if canonical, ok := adapter.Canonical(c.Type); ok {
		c.Type = canonical
	}
	if c.Type == "postgres" && c.Port == 0 && c.DSN == "" {
		c.Port = 5432
	}
}
