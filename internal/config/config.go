package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Store  StoreConfig  `yaml:"store" mapstructure:"store"`
	Engine EngineConfig `yaml:"engine" mapstructure:"engine"`
	Log    LogConfig    `yaml:"log" mapstructure:"log"`
	Theme  string       `yaml:"theme" mapstructure:"theme"`
}

type StoreConfig struct {
	Backend string `yaml:"backend" mapstructure:"backend"` // memory or sqlite
	Path    string `yaml:"path" mapstructure:"path"`
}

type EngineConfig struct {
	Classifier     string   `yaml:"classifier" mapstructure:"classifier"` // heuristic or model
	TrustedSources []string `yaml:"trusted_sources" mapstructure:"trusted_sources"`
	Concurrency    int      `yaml:"concurrency" mapstructure:"concurrency"`
}

type LogConfig struct {
	Level string `yaml:"level" mapstructure:"level"`
	JSON  bool   `yaml:"json" mapstructure:"json"`
}

const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"

	ClassifierHeuristic = "heuristic"
	ClassifierModel     = "model"
)

var envVarRe = regexp.MustCompile(`\$([A-Z_][A-Z0-9_]*)`)

func expandEnv(s string) string {
	return envVarRe.ReplaceAllStringFunc(s, func(match string) string {
		name := strings.TrimPrefix(match, "$")
		if val, ok := os.LookupEnv(name); ok {
			return val
		}
		return match
	})
}

func DefaultConfig() *Config {
	return &Config{
		Store: StoreConfig{Backend: BackendMemory},
		Engine: EngineConfig{
			Classifier:     ClassifierHeuristic,
			TrustedSources: []string{"trusted-generator"},
			Concurrency:    4,
		},
		Log:   LogConfig{Level: "info"},
		Theme: "green",
	}
}

// Dir is the directory holding the config file and the default store.
func Dir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "recall")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "recall")
}

// Load reads config.yaml from the current directory or Dir(), then applies
// RECALL_* environment overrides. A missing file is not an error.
func Load() (*Config, error) {
	v := newViper()
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	// Search paths
	v.AddConfigPath(".")
	v.AddConfigPath(Dir())

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			// Config file was found but another error produced
			return nil, err
		}
	}
	return decode(v)
}

// LoadFile reads the configuration from an explicit file.
func LoadFile(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return decode(v)
}

func newViper() *viper.Viper {
	v := viper.New()

	// Defaults make every key visible to AutomaticEnv.
	d := DefaultConfig()
	v.SetDefault("store.backend", d.Store.Backend)
	v.SetDefault("store.path", d.Store.Path)
	v.SetDefault("engine.classifier", d.Engine.Classifier)
	v.SetDefault("engine.trusted_sources", d.Engine.TrustedSources)
	v.SetDefault("engine.concurrency", d.Engine.Concurrency)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.json", d.Log.JSON)
	v.SetDefault("theme", d.Theme)

	// Environment variables
	v.SetEnvPrefix("RECALL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	cfg.Store.Path = expandEnv(cfg.Store.Path)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for errors and fills in derived
// defaults.
func (c *Config) Validate() error {
	c.Store.Backend = strings.ToLower(strings.TrimSpace(c.Store.Backend))
	switch c.Store.Backend {
	case BackendMemory, BackendSQLite:
	default:
		return fmt.Errorf("config: store.backend %q is invalid (must be memory or sqlite)", c.Store.Backend)
	}
	if c.Store.Path == "" {
		name := "knowledge.json"
		if c.Store.Backend == BackendSQLite {
			name = "knowledge.db"
		}
		c.Store.Path = filepath.Join(Dir(), name)
	}

	c.Engine.Classifier = strings.ToLower(strings.TrimSpace(c.Engine.Classifier))
	switch c.Engine.Classifier {
	case ClassifierHeuristic, ClassifierModel:
	default:
		return fmt.Errorf("config: engine.classifier %q is invalid (must be heuristic or model)", c.Engine.Classifier)
	}
	if c.Engine.Concurrency < 1 {
		c.Engine.Concurrency = 4
	}
	return nil
}
