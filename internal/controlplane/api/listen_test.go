package api

import (
	"context"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func TestListenUnixReplacesStaleSocket(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "run", "api.sock")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, nil, 0o600); err != nil {
		t.Fatal(err)
	}

	ln, err := listen(unixScheme + path)
	if err != nil {
		t.Fatalf("listen() error = %v", err)
	}
	defer ln.Close()

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat socket: %v", err)
	}
	if info.Mode()&os.ModeSocket == 0 {
		t.Fatalf("mode = %v, want socket", info.Mode())
	}
	if perm := info.Mode().Perm(); perm != 0o660 {
		t.Fatalf("perm = %o, want 660", perm)
	}
}

func TestListenTCP(t *testing.T) {
	t.Parallel()
	ln, err := listen("127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen() error = %v", err)
	}
	defer ln.Close()
	if _, ok := ln.Addr().(*net.TCPAddr); !ok {
		t.Fatalf("addr = %T, want tcp", ln.Addr())
	}
}

func TestListenAndServeUnix(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	dir := t.TempDir()
	apiSock := filepath.Join(dir, "api.sock")
	grpcSock := filepath.Join(dir, "grpc.sock")

	srv := New(env.api, WithHealthService(env.health))
	ctx, cancel := context.WithCancel(t.Context())
	ready := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- srv.ListenAndServe(ctx, unixScheme+apiSock, unixScheme+grpcSock, func() { close(ready) })
	}()

	select {
	case <-ready:
	case err := <-done:
		t.Fatalf("ListenAndServe() error = %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("server not ready")
	}

	httpClient := &http.Client{Transport: &http.Transport{
		DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", apiSock)
		},
	}}
	req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, "http://swarmorch/health/detailed", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		t.Fatalf("GET /health/detailed error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	conn, err := grpc.NewClient("unix://"+grpcSock, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("grpc.NewClient() error = %v", err)
	}
	defer conn.Close()
	hc, err := healthpb.NewHealthClient(conn).Check(t.Context(), &healthpb.HealthCheckRequest{Service: ClusterServiceName})
	if err != nil {
		t.Fatalf("health Check() error = %v", err)
	}
	if hc.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("health status = %v, want SERVING", hc.GetStatus())
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("ListenAndServe() error = %v", err)
		}
	case <-time.After(15 * time.Second):
		t.Fatal("ListenAndServe() did not return after cancel")
	}
	if _, err := os.Stat(apiSock); !os.IsNotExist(err) {
		t.Fatalf("api socket left behind: %v", err)
	}
}
