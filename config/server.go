package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

const envPrefix = "SWARMORCH_"

// Server is the daemon configuration.
type Server struct {
	Listen   string `yaml:"listen" toml:"listen"`
	GRPCAddr string `yaml:"grpc_addr" toml:"grpc_addr"`

	// DockerHost overrides DOCKER_HOST when set.
	DockerHost string `yaml:"docker_host" toml:"docker_host"`

	RegistryURL         string        `yaml:"registry_url" toml:"registry_url"`
	RegistryUsername    string        `yaml:"registry_username" toml:"registry_username"`
	RegistryPassword    string        `yaml:"registry_password" toml:"registry_password"`
	RegistryConcurrency int           `yaml:"registry_concurrency" toml:"registry_concurrency"`
	RegistryCacheTTL    time.Duration `yaml:"registry_cache_ttl" toml:"registry_cache_ttl"`

	DatabasePath   string `yaml:"database_path" toml:"database_path"`
	DefinitionsDir string `yaml:"definitions_dir" toml:"definitions_dir"`

	ReconcileInterval time.Duration `yaml:"reconcile_interval" toml:"reconcile_interval"`
	NodeConcurrency   int           `yaml:"node_concurrency" toml:"node_concurrency"`
	NodeTimeout       time.Duration `yaml:"node_timeout" toml:"node_timeout"`
	AggregateTimeout  time.Duration `yaml:"aggregate_timeout" toml:"aggregate_timeout"`

	NTPServer    string        `yaml:"ntp_server" toml:"ntp_server"`
	NTPThreshold time.Duration `yaml:"ntp_threshold" toml:"ntp_threshold"`

	OTLPEndpoint string `yaml:"otlp_endpoint" toml:"otlp_endpoint"`
	LogLevel     string `yaml:"log_level" toml:"log_level"`
	LogFormat    string `yaml:"log_format" toml:"log_format"`
}

// DefaultServer returns the configuration used when nothing is set.
func DefaultServer() Server {
	return Server{
		Listen:              "0.0.0.0:8080",
		RegistryURL:         "http://localhost:5000",
		RegistryConcurrency: 4,
		RegistryCacheTTL:    60 * time.Second,
		DatabasePath:        filepath.Join("data", "swarm_orchestrator.db"),
		DefinitionsDir:      "definitions",
		ReconcileInterval:   30 * time.Second,
		NodeConcurrency:     8,
		NodeTimeout:         5 * time.Second,
		AggregateTimeout:    15 * time.Second,
		NTPThreshold:        500 * time.Millisecond,
		LogLevel:            "info",
		LogFormat:           "text",
	}
}

// LoadServer reads path (YAML or TOML by extension) over the defaults and
// then applies SWARMORCH_* environment overrides. An empty path skips the
// file.
func LoadServer(path string) (Server, error) {
	cfg := DefaultServer()
	if path != "" {
		if err := decodeFile(path, &cfg); err != nil {
			return Server{}, err
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return Server{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Server{}, err
	}
	return cfg, nil
}

func decodeFile(path string, cfg *Server) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parse config %s: %w", path, err)
		}
	case ".toml":
		md, err := toml.Decode(string(data), cfg)
		if err != nil {
			return fmt.Errorf("parse config %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return fmt.Errorf("parse config %s: unknown keys %v", path, undecoded)
		}
	default:
		return fmt.Errorf("config %s: unsupported extension %q (want .yaml, .yml or .toml)", path, ext)
	}
	return nil
}

type envVar struct {
	name string
	set  func(string) error
}

func (c *Server) envVars() []envVar {
	return []envVar{
		{"LISTEN", setString(&c.Listen)},
		{"GRPC_ADDR", setString(&c.GRPCAddr)},
		{"DOCKER_HOST", setString(&c.DockerHost)},
		{"REGISTRY_URL", setString(&c.RegistryURL)},
		{"REGISTRY_USERNAME", setString(&c.RegistryUsername)},
		{"REGISTRY_PASSWORD", setString(&c.RegistryPassword)},
		{"REGISTRY_CONCURRENCY", setInt(&c.RegistryConcurrency)},
		{"REGISTRY_CACHE_TTL", setDuration(&c.RegistryCacheTTL)},
		{"DATABASE_PATH", setString(&c.DatabasePath)},
		{"DEFINITIONS_DIR", setString(&c.DefinitionsDir)},
		{"RECONCILE_INTERVAL", setDuration(&c.ReconcileInterval)},
		{"NODE_CONCURRENCY", setInt(&c.NodeConcurrency)},
		{"NODE_TIMEOUT", setDuration(&c.NodeTimeout)},
		{"AGGREGATE_TIMEOUT", setDuration(&c.AggregateTimeout)},
		{"NTP_SERVER", setString(&c.NTPServer)},
		{"NTP_THRESHOLD", setDuration(&c.NTPThreshold)},
		{"OTLP_ENDPOINT", setString(&c.OTLPEndpoint)},
		{"LOG_LEVEL", setString(&c.LogLevel)},
		{"LOG_FORMAT", setString(&c.LogFormat)},
	}
}

// ApplyEnv overrides fields from SWARMORCH_* variables found by lookup.
func (c *Server) ApplyEnv(lookup func(string) (string, bool)) error {
	var errs []error
	for _, v := range c.envVars() {
		raw, ok := lookup(envPrefix + v.name)
		if !ok {
			continue
		}
		if err := v.set(strings.TrimSpace(raw)); err != nil {
			errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, v.name, err))
		}
	}
	return errors.Join(errs...)
}

func setString(dst *string) func(string) error {
	return func(s string) error {
		*dst = s
		return nil
	}
}

func setInt(dst *int) func(string) error {
	return func(s string) error {
		n, err := strconv.Atoi(s)
		if err != nil {
			return err
		}
		*dst = n
		return nil
	}
}

func setDuration(dst *time.Duration) func(string) error {
	return func(s string) error {
		d, err := time.ParseDuration(s)
		if err != nil {
			return err
		}
		*dst = d
		return nil
	}
}

// Validate rejects values the daemon cannot run with.
func (c Server) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Listen) == "" {
		errs = append(errs, errors.New("listen is required"))
	}
	if strings.TrimSpace(c.RegistryURL) == "" {
		errs = append(errs, errors.New("registry_url is required"))
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		errs = append(errs, errors.New("database_path is required"))
	}
	if c.ReconcileInterval <= 0 {
		errs = append(errs, errors.New("reconcile_interval must be positive"))
	}
	if c.NodeConcurrency <= 0 || c.RegistryConcurrency <= 0 {
		errs = append(errs, errors.New("node_concurrency and registry_concurrency must be positive"))
	}
	if c.NodeTimeout <= 0 || c.AggregateTimeout <= 0 {
		errs = append(errs, errors.New("node_timeout and aggregate_timeout must be positive"))
	}
	if c.RegistryCacheTTL <= 0 {
		errs = append(errs, errors.New("registry_cache_ttl must be positive"))
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log_format %q must be text or json", c.LogFormat))
	}
	return errors.Join(errs...)
}
