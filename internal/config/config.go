// Package config implements TOML configuration loading with defaults for
// caskmate: data directory, catalog location, transfer timing, logging,
// and the serve listener. Values resolve defaults -> config file -> CLI
// flags; flags are applied by the CLI layer.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the top-level structure parsed from the TOML file.
type Config struct {
	// DataDir holds accounts.json, tokens/, and last-account.txt.
	DataDir string `toml:"data_dir"`

	// Connector names the registered protocol connector to use. Empty
	// selects the sole registered connector.
	Connector string `toml:"connector"`

	Catalog  CatalogConfig  `toml:"catalog"`
	Transfer TransferConfig `toml:"transfer"`
	Logging  LoggingConfig  `toml:"logging"`
	Serve    ServeConfig    `toml:"serve"`
}

// CatalogConfig locates the static item catalog.
type CatalogConfig struct {
	Path string `toml:"path"`

	// Watch reloads the catalog when the file is rewritten.
	Watch bool `toml:"watch"`
}

// TransferConfig controls storage-operation timing.
type TransferConfig struct {
	// StepTimeout bounds the wait for a per-item confirmation.
	StepTimeout Duration `toml:"step_timeout"`

	// StepInterval is the pause between consecutive items.
	StepInterval Duration `toml:"step_interval"`

	// RenameTimeout bounds the wait for a rename confirmation.
	RenameTimeout Duration `toml:"rename_timeout"`

	// DialRetries is how many extra connect attempts to make.
	DialRetries uint64 `toml:"dial_retries"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	LogLevel string `toml:"log_level"`
}

// ServeConfig controls the notification bridge listener.
type ServeConfig struct {
	Listen string `toml:"listen"`
}

// Duration is a time.Duration that unmarshals from TOML strings like
// "500ms" or "5s".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler for TOML decoding.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("config: invalid duration %q: %w", string(text), err)
	}

	d.Duration = parsed

	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns the built-in configuration. The data directory lives
// under the user config dir; the catalog is expected next to it.
func Default() Config {
	dataDir := defaultDataDir()

	return Config{
		DataDir: dataDir,
		Catalog: CatalogConfig{
			Path: filepath.Join(dataDir, "inventory.json"),
		},
		Transfer: TransferConfig{
			StepTimeout:   Duration{5 * time.Second},
			StepInterval:  Duration{500 * time.Millisecond},
			RenameTimeout: Duration{2 * time.Second},
			DialRetries:   3,
		},
		Logging: LoggingConfig{LogLevel: "info"},
		Serve:   ServeConfig{Listen: "127.0.0.1:7335"},
	}
}

func defaultDataDir() string {
	base, err := os.UserConfigDir()
	if err != nil {
		return "caskmate"
	}

	return filepath.Join(base, "caskmate")
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	return filepath.Join(defaultDataDir(), "config.toml")
}

// Load reads the config file at path over the defaults. A missing file
// is not an error — the defaults stand. An empty path means the default
// location.
func Load(path string) (Config, error) {
	if path == "" {
		path = DefaultPath()
	}

	cfg := Default()

	meta, err := toml.DecodeFile(path, &cfg)
	if os.IsNotExist(err) {
		return cfg, nil
	}

	if err != nil {
		return Config{}, fmt.Errorf("config: loading %s: %w", path, err)
	}

	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("config: unknown keys in %s: %v", path, undecoded)
	}

	return cfg, nil
}
