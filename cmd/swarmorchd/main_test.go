package main

import (
	"testing"

	"swarmorch/config"
)

func TestFlagOverridesOnlyChangedFlags(t *testing.T) {
	cmd := rootCmd()
	if err := cmd.ParseFlags([]string{"--listen", "unix:///tmp/swarmorch.sock", "--database", "/tmp/cat.db"}); err != nil {
		t.Fatalf("ParseFlags() error = %v", err)
	}

	var o flagOverrides
	o.listen = "unix:///tmp/swarmorch.sock"
	o.database = "/tmp/cat.db"

	cfg := config.DefaultServer()
	o.apply(cmd, &cfg)

	if cfg.Listen != "unix:///tmp/swarmorch.sock" {
		t.Fatalf("Listen = %q", cfg.Listen)
	}
	if cfg.DatabasePath != "/tmp/cat.db" {
		t.Fatalf("DatabasePath = %q", cfg.DatabasePath)
	}
	if cfg.RegistryURL != config.DefaultServer().RegistryURL {
		t.Fatalf("RegistryURL = %q, want default", cfg.RegistryURL)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
}
