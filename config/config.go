// Package config holds the daemon configuration and the CLI's context file.
//
// The context file is stored at $XDG_CONFIG_HOME/swarmorch/config.yaml
// (defaults to ~/.config/swarmorch/config.yaml) and follows the kubeconfig
// pattern: named contexts with a current-context selector.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Context names a control-plane API endpoint.
type Context struct {
	Endpoint string `yaml:"endpoint"`
	// Description is free text shown by `context list`.
	Description string `yaml:"description,omitempty"`
}

// Config holds named daemon contexts and the current selection.
type Config struct {
	CurrentContext string             `yaml:"current-context"`
	Contexts       map[string]Context `yaml:"contexts"`
}

// Path returns the context file location. SWARMORCH_CONFIG wins; otherwise
// XDG_CONFIG_HOME is respected, falling back to ~/.config/swarmorch/config.yaml.
func Path() string {
	if fromEnv := strings.TrimSpace(os.Getenv(envPrefix + "CONFIG")); fromEnv != "" {
		return fromEnv
	}
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join(".config", "swarmorch", "config.yaml")
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "swarmorch", "config.yaml")
}

// Load reads the config file. If the file does not exist, an empty Config
// is returned (not an error).
func Load() (*Config, error) {
	data, err := os.ReadFile(Path())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{Contexts: make(map[string]Context)}, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.Contexts == nil {
		cfg.Contexts = make(map[string]Context)
	}
	return &cfg, nil
}

// Save writes the config to disk, creating directories as needed.
func (c *Config) Save() error {
	p := Path()
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Current returns the current context name and value.
// The bool is false when no current context is set.
func (c *Config) Current() (string, Context, bool) {
	if c.CurrentContext == "" {
		return "", Context{}, false
	}
	ctx, ok := c.Contexts[c.CurrentContext]
	if !ok {
		return "", Context{}, false
	}
	return c.CurrentContext, ctx, true
}

// Use sets the current context. It returns an error if the name doesn't exist.
func (c *Config) Use(name string) error {
	if _, ok := c.Contexts[name]; !ok {
		return fmt.Errorf("context %q not found", name)
	}
	c.CurrentContext = name
	return nil
}

// Set adds or updates a named context.
func (c *Config) Set(name string, ctx Context) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("context name is required")
	}
	if strings.TrimSpace(ctx.Endpoint) == "" {
		return fmt.Errorf("context %q: endpoint is required", name)
	}
	if c.Contexts == nil {
		c.Contexts = make(map[string]Context)
	}
	c.Contexts[name] = ctx
	return nil
}

// Remove deletes a context. If it was the current context, current-context
// is cleared. Returns an error if the name doesn't exist.
func (c *Config) Remove(name string) error {
	if _, ok := c.Contexts[name]; !ok {
		return fmt.Errorf("context %q not found", name)
	}
	delete(c.Contexts, name)
	if c.CurrentContext == name {
		c.CurrentContext = ""
	}
	return nil
}
