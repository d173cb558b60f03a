package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mitchellh/go-homedir"
)

type Config struct {
	path      string
	configDir string

	// Actual Config
	StoreDir        string `json:"store-dir"`
	BuildDir        string `json:"build-dir"`
	StateDir        string `json:"state-dir"`
	RuntimeDir      string `json:"runtime-dir"`
	SystemLoginFile string `json:"system-login-file"`
}

const (
	DefaultConfigPath      = "~/.config/strata/config.json"
	DefaultStoreDir        = "/opt/strata/store"
	DefaultBuildDir        = "~/.cache/strata/build"
	DefaultStateDir        = "~/.local/state/strata"
	DefaultSystemLoginFile = "/etc/strata/login"
)

func LoadConfig() (*Config, error) {
	if loc := os.Getenv("STRATA_CONFIG"); loc != "" {
		return loadFile(loc)
	}

	path, err := homedir.Expand(DefaultConfigPath)
	if err != nil {
		return nil, err
	}

	if _, err := os.Stat(path); err == nil {
		return loadFile(path)
	}

	cfg := &Config{
		path:      path,
		configDir: filepath.Dir(path),
	}

	return fillDefaults(cfg)
}

func loadFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	defer f.Close()

	var cfg Config

	err = json.NewDecoder(f).Decode(&cfg)
	if err != nil {
		return nil, err
	}

	cfg.path = path
	cfg.configDir = filepath.Dir(path)

	return fillDefaults(&cfg)
}

func fillDefaults(cfg *Config) (*Config, error) {
	if cfg.StoreDir == "" {
		cfg.StoreDir = DefaultStoreDir
	}

	if cfg.BuildDir == "" {
		dir, err := homedir.Expand(DefaultBuildDir)
		if err != nil {
			return nil, err
		}

		cfg.BuildDir = dir
	}

	if cfg.StateDir == "" {
		dir, err := homedir.Expand(DefaultStateDir)
		if err != nil {
			return nil, err
		}

		cfg.StateDir = dir
	}

	if cfg.RuntimeDir == "" {
		cfg.RuntimeDir = defaultRuntimeDir()
	}

	if cfg.SystemLoginFile == "" {
		cfg.SystemLoginFile = DefaultSystemLoginFile
	}

	return updateFromEnv(cfg)
}

func defaultRuntimeDir() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "strata")
	}

	return filepath.Join(os.TempDir(), fmt.Sprintf("strata-%d", os.Getuid()))
}

func updateFromEnv(cfg *Config) (*Config, error) {
	if path := os.Getenv("STRATA_STORE_DIR"); path != "" {
		fi, err := os.Stat(path)
		if err != nil {
			return nil, err
		}

		if !fi.IsDir() {
			return nil, fmt.Errorf("path is not a directory: %s", path)
		}

		cfg.StoreDir = path
	}

	if path := os.Getenv("STRATA_BUILD_DIR"); path != "" {
		cfg.BuildDir = path
	}

	if path := os.Getenv("STRATA_STATE_DIR"); path != "" {
		cfg.StateDir = path
	}

	if path := os.Getenv("STRATA_RUNTIME_DIR"); path != "" {
		cfg.RuntimeDir = path
	}

	return ensureDirs(cfg)
}

func ensureDirs(cfg *Config) (*Config, error) {
	dirs := []string{
		cfg.BuildDir,
		cfg.StateDir,
		cfg.RuntimeDir,
	}

	for _, dir := range dirs {
		fi, err := os.Stat(dir)
		if err != nil {
			if os.IsNotExist(err) {
				err = os.MkdirAll(dir, 0755)
				if err != nil {
					return nil, err
				}
			}
		} else if !fi.IsDir() {
			return nil, fmt.Errorf("path is not a directory: %s", dir)
		}
	}

	return cfg, nil
}
