package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	Dir        = ".mlsandbox"
	ConfigFile = "config.yaml"
	EnvFile    = ".env"
)

type Config struct {
	Version   string    `yaml:"version"`
	Project   string    `yaml:"project"`
	Listen    string    `yaml:"listen" env:"MLSANDBOX_LISTEN"`
	Runtime   string    `yaml:"runtime" env:"MLSANDBOX_RUNTIME"` // cli or engine
	DockerBin string    `yaml:"docker_bin" env:"MLSANDBOX_DOCKER_BIN"`
	Container Container `yaml:"container"`
	Defaults  Defaults  `yaml:"defaults"`
	Log       Log       `yaml:"log"`
}

type Container struct {
	Name           string        `yaml:"name" env:"MLSANDBOX_CONTAINER"`
	Image          string        `yaml:"image" env:"MLSANDBOX_IMAGE"`
	Dockerfile     string        `yaml:"dockerfile"`
	Port           int           `yaml:"port" env:"MLSANDBOX_PORT"`
	Notebooks      string        `yaml:"notebooks"`
	Workspace      string        `yaml:"workspace"`
	CommandTimeout time.Duration `yaml:"command_timeout,omitempty" env:"MLSANDBOX_COMMAND_TIMEOUT"`
}

// Defaults pre-fill the launch form.
type Defaults struct {
	CPUs           float64 `yaml:"cpus"`
	MemoryGiB      float64 `yaml:"memory_gib"`
	TimeoutMinutes int     `yaml:"timeout_minutes"`
}

type Log struct {
	Level string `yaml:"level" env:"MLSANDBOX_LOG_LEVEL"`
	File  string `yaml:"file,omitempty" env:"MLSANDBOX_LOG_FILE"`
}

const (
	RuntimeCLI    = "cli"
	RuntimeEngine = "engine"
)

// Default returns the built-in configuration used when no config file exists.
func Default() *Config {
	return &Config{
		Version:   "1",
		Listen:    "127.0.0.1:5000",
		Runtime:   RuntimeCLI,
		DockerBin: "docker",
		Container: Container{
			Name:       "ml-sandbox-jupyter",
			Image:      "ml-sandbox-jupyter-img",
			Dockerfile: "Dockerfile",
			Port:       8888,
			Notebooks:  "notebooks",
			Workspace:  "/tf/notebooks",
		},
		Defaults: Defaults{
			CPUs:      1.0,
			MemoryGiB: 3.5,
		},
		Log: Log{Level: "info"},
	}
}

// Load reads config from .mlsandbox/config.yaml relative to projectDir.
// Fields missing from the file keep their defaults.
func Load(projectDir string) (*Config, error) {
	path := filepath.Join(projectDir, Dir, ConfigFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return cfg, nil
}

// Resolve loads the config file if present, then applies .env and
// MLSANDBOX_* environment overrides, then validates.
func Resolve(projectDir string) (*Config, error) {
	cfg := Default()
	if Exists(projectDir) {
		loaded, err := Load(projectDir)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if err := godotenv.Load(filepath.Join(projectDir, EnvFile)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading %s: %w", EnvFile, err)
	}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the fields the controller depends on.
func (c *Config) Validate() error {
	if c.Container.Name == "" {
		return errors.New("container name is required")
	}
	if c.Container.Image == "" {
		return errors.New("container image is required")
	}
	if c.Container.Port <= 0 || c.Container.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Container.Port)
	}
	switch c.Runtime {
	case RuntimeCLI, RuntimeEngine:
	default:
		return fmt.Errorf("unknown runtime %q (want %q or %q)", c.Runtime, RuntimeCLI, RuntimeEngine)
	}
	if !positive(c.Defaults.CPUs) || !positive(c.Defaults.MemoryGiB) {
		return errors.New("default cpus and memory must be positive")
	}
	if c.Defaults.TimeoutMinutes < 0 {
		return errors.New("default timeout must not be negative")
	}
	return nil
}

func positive(x float64) bool {
	return x > 0 && !math.IsInf(x, 0)
}

// Save writes config to .mlsandbox/config.yaml relative to projectDir.
func Save(projectDir string, cfg *Config) error {
	dir := filepath.Join(projectDir, Dir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	path := filepath.Join(dir, ConfigFile)
	return os.WriteFile(path, data, 0o644)
}

// ConfigPath returns the path to the config directory.
func ConfigPath(projectDir string) string {
	return filepath.Join(projectDir, Dir)
}

// Exists returns true if .mlsandbox/config.yaml exists.
func Exists(projectDir string) bool {
	path := filepath.Join(projectDir, Dir, ConfigFile)
	_, err := os.Stat(path)
	return err == nil
}
