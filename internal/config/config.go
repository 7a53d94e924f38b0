// Package config loads the relay configuration from an optional YAML file and
// the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Vovarama1992/hfrelay/internal/ai"
)

const (
	BackendHuggingFace = "huggingface"
	BackendOpenAI      = "openai"

	// HostTimeout is how long the chat host waits for a reply before giving up.
	HostTimeout = 5 * time.Second

	defaultPort        = 8080
	defaultMetricsPath = "/metrics"
	defaultOpenAIURL   = "https://router.huggingface.co/v1"
)

// ErrMissingAPIKey is returned when the remote-service credential is not set.
var ErrMissingAPIKey = errors.New("HUGGINGFACE_API_KEY is not set")

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Remote  RemoteConfig  `yaml:"remote"`
	Log     LogConfig     `yaml:"log"`
	Metrics MetricsConfig `yaml:"metrics"`

	// Secrets come from the environment only.
	APIKey      string `yaml:"-"`
	AccessKey   string `yaml:"-"`
	DatabaseURL string `yaml:"-"`
}

type ServerConfig struct {
	Port        int      `yaml:"port"`
	CORSOrigins []string `yaml:"cors_origins"`
}

type RemoteConfig struct {
	Backend     string        `yaml:"backend"`
	BaseURL     string        `yaml:"base_url"`
	CallTimeout time.Duration `yaml:"call_timeout"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:        defaultPort,
			CORSOrigins: []string{"*"},
		},
		Remote: RemoteConfig{
			Backend:     BackendHuggingFace,
			CallTimeout: ai.DefaultCallTimeout,
		},
		Log:     LogConfig{Level: "info"},
		Metrics: MetricsConfig{Enabled: true, Path: defaultMetricsPath},
	}
}

// Load reads the YAML file at path when one is given, applies environment
// overrides and validates the result.
func Load(path string) (Config, error) {
	cfg := defaults()

	if path != "" {
		if err := readFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}

	if cfg.Remote.BaseURL == "" {
		cfg.Remote.BaseURL = defaultBaseURL(cfg.Remote.Backend)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func readFile(path string, cfg *Config) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve config path: %w", err)
	}

	f, err := os.Open(absPath)
	if err != nil {
		return fmt.Errorf("read config file %q: %w", absPath, err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("parse config file %q: %w", absPath, err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	cfg.APIKey = strings.TrimSpace(os.Getenv("HUGGINGFACE_API_KEY"))
	cfg.AccessKey = strings.TrimSpace(os.Getenv("POE_ACCESS_KEY"))
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))

	if v := env("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PORT %q: %w", v, err)
		}
		cfg.Server.Port = port
	}
	if v := env("CORS_ORIGINS"); v != "" {
		cfg.Server.CORSOrigins = splitList(v)
	}
	if v := env("BACKEND"); v != "" {
		cfg.Remote.Backend = strings.ToLower(v)
	}
	if v := env("REMOTE_BASE_URL"); v != "" {
		cfg.Remote.BaseURL = v
	}
	if v := env("CALL_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("CALL_TIMEOUT %q: %w", v, err)
		}
		cfg.Remote.CallTimeout = d
	}
	if v := env("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := env("METRICS_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("METRICS_ENABLED %q: %w", v, err)
		}
		cfg.Metrics.Enabled = enabled
	}
	if v := env("METRICS_PATH"); v != "" {
		cfg.Metrics.Path = v
	}
	return nil
}

// Validate performs strict sanity checks on the configuration.
func (c Config) Validate() error {
	if c.APIKey == "" {
		return ErrMissingAPIKey
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be a valid TCP port, got %d", c.Server.Port)
	}
	switch c.Remote.Backend {
	case BackendHuggingFace, BackendOpenAI:
	default:
		return fmt.Errorf("remote.backend %q must be one of %q or %q", c.Remote.Backend, BackendHuggingFace, BackendOpenAI)
	}
	if c.Remote.CallTimeout <= 0 || c.Remote.CallTimeout >= HostTimeout {
		return fmt.Errorf("remote.call_timeout must be positive and below the host timeout of %s, got %s", HostTimeout, c.Remote.CallTimeout)
	}
	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with '/', got %q", c.Metrics.Path)
	}
	return nil
}

func defaultBaseURL(backend string) string {
	if backend == BackendOpenAI {
		return defaultOpenAIURL
	}
	return ai.DefaultHuggingFaceURL
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
