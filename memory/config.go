package memory

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// KeyPlaceholder is substituted with the memory key in TableNameTemplate.
	KeyPlaceholder = "{key}"

	// DefaultTableNameTemplate names the table of each memory space.
	DefaultTableNameTemplate = "memory-" + KeyPlaceholder

	// DefaultSearchLimit is the result cap callers use when they have no preference.
	DefaultSearchLimit = 20

	// HomeEnv overrides the home directory memory data lives under.
	HomeEnv = "NIM_HOME"
)

// Config holds Manager configuration.
type Config struct {
	// Location is the storage engine's data root: a directory for chromem,
	// a file for sqlite, a DSN for postgres.
	// Default: ~/.nim/memory/chromem
	Location string `yaml:"location"`

	// TableNameTemplate maps a memory key to a table name. It must contain
	// exactly one "{key}" placeholder so distinct keys get distinct tables.
	// Default: "memory-{key}"
	TableNameTemplate string `yaml:"table_name_template"`
}

// DefaultConfig returns the defaults for a local chromem-backed store.
func DefaultConfig() *Config {
	return &Config{
		Location:          DefaultLocation("chromem"),
		TableNameTemplate: DefaultTableNameTemplate,
	}
}

// HomeDir returns the process-wide home for memory data: $NIM_HOME if set,
// otherwise ~/.nim. Falls back to a relative .nim when no home directory is known.
func HomeDir() string {
	if home := os.Getenv(HomeEnv); home != "" {
		return home
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".nim"
	}
	return filepath.Join(home, ".nim")
}

// DefaultLocation returns the default data root for the named engine.
func DefaultLocation(engine string) string {
	return filepath.Join(HomeDir(), "memory", engine)
}

// LoadConfig reads a YAML config file over the defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the table naming template.
func (c *Config) Validate() error {
	if n := strings.Count(c.TableNameTemplate, KeyPlaceholder); n != 1 {
		return &ConfigurationError{
			Op:  "validate config",
			Err: fmt.Errorf("table name template %q must contain %s exactly once, found %d", c.TableNameTemplate, KeyPlaceholder, n),
		}
	}
	return nil
}

// TableName formats key into the template.
func (c *Config) TableName(key string) string {
	return strings.Replace(c.TableNameTemplate, KeyPlaceholder, key, 1)
}
