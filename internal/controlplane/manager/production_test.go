package manager

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"swarmorch/config"
	"swarmorch/internal/catalog"
)

func TestNewProductionSeedsDefinitions(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	defs := filepath.Join(dir, "definitions")
	if err := os.MkdirAll(defs, 0o755); err != nil {
		t.Fatal(err)
	}
	def := []byte("name: web\nimage: nginx:1.27\nreplicas: 2\n")
	if err := os.WriteFile(filepath.Join(defs, "web.yaml"), def, 0o644); err != nil {
		t.Fatal(err)
	}
	registrySrv := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(registrySrv.Close)

	cfg := config.DefaultServer()
	cfg.DatabasePath = filepath.Join(dir, "data", "catalog.db")
	cfg.DefinitionsDir = defs
	cfg.DockerHost = "tcp://127.0.0.1:1"
	cfg.RegistryURL = registrySrv.URL

	m, closeFn, err := NewProduction(t.Context(), cfg, nil, nil)
	if err != nil {
		t.Fatalf("NewProduction() error = %v", err)
	}
	t.Cleanup(func() {
		if err := closeFn(); err != nil {
			t.Errorf("close: %v", err)
		}
	})

	// The engine is unreachable, so the stored view is served.
	services, err := m.ListServices(t.Context())
	if err != nil {
		t.Fatalf("ListServices() error = %v", err)
	}
	if len(services) != 1 || services[0].Name != "web" || services[0].Status != catalog.StatusRegistered {
		t.Fatalf("ListServices() = %+v", services)
	}
	if services[0].Definition.Replicas != 2 {
		t.Fatalf("replicas = %d, want 2", services[0].Definition.Replicas)
	}
}

func TestNewProductionRejectsBadRegistryURL(t *testing.T) {
	t.Parallel()
	cfg := config.DefaultServer()
	cfg.DatabasePath = filepath.Join(t.TempDir(), "catalog.db")
	cfg.DefinitionsDir = ""
	cfg.DockerHost = "tcp://127.0.0.1:1"
	cfg.RegistryURL = "::not a url"

	if _, _, err := NewProduction(t.Context(), cfg, nil, nil); err == nil {
		t.Fatal("NewProduction() error = nil, want invalid registry url")
	}
}
