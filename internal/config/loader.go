package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// ConfigFileName is the name of the config file.
const ConfigFileName = "dwprobe.yaml"

// ConfigFileNameAlt is the alternate name of the config file.
const ConfigFileNameAlt = "dwprobe.yml"

// EnvPrefix prefixes environment variables read as configuration.
// A double underscore separates nesting levels:
// DWPROBE_TARGET__PASSWORD sets target.password.
const EnvPrefix = "DWPROBE_"

// pathFlags are flags holding paths, which resolve against the working
// directory rather than the config file.
var pathFlags = map[string]string{
	"script":         "script",
	"migrations-dir": "migrations_dir",
}

// Load loads configuration from defaults, the config file, environment
// variables and flags. Precedence (highest to lowest): flags > env vars >
// config file > defaults.
//
// cfgFile names the config file; when empty, dwprobe.yaml or dwprobe.yml in
// the working directory is used if present. Relative paths from the file
// resolve against the file's directory.
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	// 1. Defaults
	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Config file
	cfgFile = findConfigFile(cfgFile)
	baseDir, _ := os.Getwd()
	if cfgFile != "" {
		if err := k.Load(file.Provider(cfgFile), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", cfgFile, err)
		}
		if abs, err := filepath.Abs(cfgFile); err == nil {
			baseDir = filepath.Dir(abs)
		}
	}

	// 3. Environment variables
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// 4. Flags, only those explicitly set. Path flags are made absolute
	// relative to the working directory.
	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			if !f.Changed {
				return "", nil
			}
			if key, ok := pathFlags[f.Name]; ok {
				v := f.Value.String()
				if abs, err := filepath.Abs(v); err == nil && v != "" {
					v = abs
				}
				return key, v
			}
			return strings.ReplaceAll(f.Name, "-", "_"), posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	// 5. Decode
	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	cfg.File = cfgFile

	cfg.Script = resolvePathRelativeTo(cfg.Script, baseDir)
	cfg.MigrationsDir = resolvePathRelativeTo(cfg.MigrationsDir, baseDir)

	applyConnectionDefaults(cfg.Target, DefaultTargetName)
	expandConnectionEnvVars(cfg.Target, baseDir)
	for i := range cfg.Sources {
		applyConnectionDefaults(&cfg.Sources[i], fmt.Sprintf("source_%d", i+1))
		expandConnectionEnvVars(&cfg.Sources[i], baseDir)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// envKey maps DWPROBE_LOG_LEVEL to log_level and DWPROBE_TARGET__USER to
// target.user.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

// findConfigFile finds the config file to use.
// Priority: explicit path > dwprobe.yaml > dwprobe.yml
func findConfigFile(explicit string) string {
	if explicit != "" {
		return explicit
	}
	for _, name := range []string{ConfigFileName, ConfigFileNameAlt} {
		if _, err := os.Stat(name); err == nil {
			return name
		}
	}
	return ""
}

// resolvePathRelativeTo resolves a path relative to baseDir if it's not absolute.
// Returns the path unchanged if it's empty or already absolute.
func resolvePathRelativeTo(path, baseDir string) string {
	if path == "" || filepath.IsAbs(path) || baseDir == "" {
		return path
	}
	return filepath.Join(baseDir, path)
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars expands ${VAR} patterns in a string with environment variable values.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		if val := os.Getenv(varName); val != "" {
			return val
		}
		return match // Return original if not found
	})
}

// expandConnectionEnvVars expands environment variables in the string
// fields of c and resolves a relative database path against baseDir.
func expandConnectionEnvVars(c *ConnectionConfig, baseDir string) {
	if c == nil {
		return
	}
	c.DSN = expandEnvVars(c.DSN)
	c.Host = expandEnvVars(c.Host)
	c.Database = expandEnvVars(c.Database)
	c.User = expandEnvVars(c.User)
	c.Password = expandEnvVars(c.Password)
	c.Path = expandEnvVars(c.Path)
	if c.Path != ":memory:" {
		c.Path = resolvePathRelativeTo(c.Path, baseDir)
	}
	for k, v := range c.Options {
		c.Options[k] = expandEnvVars(v)
	}
}
