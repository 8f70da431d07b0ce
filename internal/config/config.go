// Package config provides configuration management for the console worker.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
)

const (
	// DefaultWorkerPort is the default HTTP port for the console worker.
	DefaultWorkerPort = 41777

	// DefaultMaxRetries is how many processing attempts a queued message gets
	// before it is marked terminally failed.
	DefaultMaxRetries = 3

	// DefaultPlansDir is the plan directory relative to a project root.
	DefaultPlansDir = "docs/plans"

	// WorktreesDir is the directory holding isolated worktree mirrors.
	WorktreesDir = ".worktrees"
)

// Config holds the application configuration.
type Config struct {
	// Worker settings
	WorkerPort int `json:"worker_port"`

	// Database settings
	DBPath   string `json:"db_path"`
	MaxConns int    `json:"max_conns"`

	// Queue settings
	MaxRetries int `json:"max_retries"`

	// Pilot CLI settings (external processor binary)
	PilotCLIPath string `json:"pilot_cli_path"`

	// Plan discovery settings
	ProjectRoot string `json:"project_root"`
	PlansDir    string `json:"plans_dir"`
}

var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// DataDir returns the data directory path (~/.pilot-console).
func DataDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".pilot-console")
}

// DBPath returns the database file path.
func DBPath() string {
	return filepath.Join(DataDir(), "console.db")
}

// SettingsPath returns the settings file path.
func SettingsPath() string {
	return filepath.Join(DataDir(), "settings.json")
}

// EnsureDataDir creates the data directory if it doesn't exist.
func EnsureDataDir() error {
	return os.MkdirAll(DataDir(), 0750)
}

// EnsureSettings creates a default settings file if it doesn't exist.
func EnsureSettings() error {
	path := SettingsPath()

	if _, err := os.Stat(path); err == nil {
		return nil // File exists
	}

	defaultSettings := `{
  "PILOT_CONSOLE_WORKER_PORT": 41777,
  "PILOT_CONSOLE_MAX_RETRIES": 3
}
`
	return os.WriteFile(path, []byte(defaultSettings), 0600)
}

// EnsureAll ensures all required directories and files exist.
func EnsureAll() error {
	if err := EnsureDataDir(); err != nil {
		return err
	}
	return EnsureSettings()
}

// Default returns a Config with default values.
func Default() *Config {
	cwd, _ := os.Getwd()
	return &Config{
		WorkerPort:  DefaultWorkerPort,
		DBPath:      DBPath(),
		MaxConns:    4,
		MaxRetries:  DefaultMaxRetries,
		ProjectRoot: cwd,
		PlansDir:    DefaultPlansDir,
	}
}

// Load loads configuration from the settings file, merging with defaults.
func Load() (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(SettingsPath())
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	// Load settings into a map to preserve unknown fields
	var settings map[string]interface{}
	if err := json.Unmarshal(data, &settings); err != nil {
		return cfg, nil // Return defaults on parse error
	}

	if v, ok := settings["PILOT_CONSOLE_WORKER_PORT"].(float64); ok && v > 0 {
		cfg.WorkerPort = int(v)
	}
	if v, ok := settings["PILOT_CONSOLE_DB_PATH"].(string); ok && v != "" {
		cfg.DBPath = v
	}
	if v, ok := settings["PILOT_CONSOLE_MAX_CONNS"].(float64); ok && v > 0 {
		cfg.MaxConns = int(v)
	}
	if v, ok := settings["PILOT_CONSOLE_MAX_RETRIES"].(float64); ok && v >= 0 {
		cfg.MaxRetries = int(v)
	}
	if v, ok := settings["PILOT_CLI_PATH"].(string); ok {
		cfg.PilotCLIPath = v
	}
	if v, ok := settings["PILOT_CONSOLE_PROJECT_ROOT"].(string); ok && v != "" {
		cfg.ProjectRoot = v
	}
	if v, ok := settings["PILOT_CONSOLE_PLANS_DIR"].(string); ok && v != "" {
		cfg.PlansDir = v
	}

	return cfg, nil
}

// Get returns the global configuration, loading it if necessary.
func Get() *Config {
	configOnce.Do(func() {
		var err error
		globalConfig, err = Load()
		if err != nil {
			globalConfig = Default()
		}
	})

	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}

// GetWorkerPort returns the worker port from environment or config.
func GetWorkerPort() int {
	if port := os.Getenv("PILOT_CONSOLE_WORKER_PORT"); port != "" {
		var p int
		if err := json.Unmarshal([]byte(port), &p); err == nil && p > 0 {
			return p
		}
	}
	return Get().WorkerPort
}
