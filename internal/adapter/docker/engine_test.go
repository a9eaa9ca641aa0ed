package docker

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/docker/docker/api/types/swarm"
	"github.com/docker/docker/client"
	"github.com/google/go-cmp/cmp"

	"swarmorch/internal/catalog"
	"swarmorch/internal/cluster"
	"swarmorch/internal/errdefs"
)

const apiVersion = "1.47"

func newTestEngine(t *testing.T, mux *http.ServeMux) *Engine {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	cli, err := client.NewClientWithOpts(
		client.WithHost("tcp://"+strings.TrimPrefix(srv.URL, "http://")),
		client.WithHTTPClient(srv.Client()),
		client.WithVersion(apiVersion),
	)
	if err != nil {
		t.Fatalf("NewClientWithOpts() error = %v", err)
	}
	t.Cleanup(func() { _ = cli.Close() })
	return NewEngineFromClient(cli)
}

func route(method, path string) string {
	return method + " /v" + apiVersion + path
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func notFound(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusNotFound, map[string]string{"message": msg})
}

func swarmNode(id, hostname string, role swarm.NodeRole, state swarm.NodeState) swarm.Node {
	n := swarm.Node{ID: id}
	n.Version = swarm.Version{Index: 7}
	n.Spec.Role = role
	n.Spec.Availability = swarm.NodeAvailabilityActive
	n.Description.Hostname = hostname
	n.Status.State = state
	return n
}

func TestListNodes(t *testing.T) {
	t.Parallel()

	mgr := swarmNode("n1", "mgr-1", swarm.NodeRoleManager, swarm.NodeStateReady)
	mgr.Description.Platform = swarm.Platform{Architecture: "x86_64", OS: "linux"}
	mgr.Description.Resources = swarm.Resources{NanoCPUs: 4e9, MemoryBytes: 8 << 30}
	mgr.Description.Engine.EngineVersion = "28.5.2"
	mgr.Status.Addr = "10.0.0.1"
	wrk := swarmNode("n2", "wrk-1", swarm.NodeRoleWorker, swarm.NodeStateDown)
	wrk.Spec.Availability = swarm.NodeAvailabilityDrain

	mux := http.NewServeMux()
	mux.HandleFunc(route("GET", "/nodes"), func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []swarm.Node{mgr, wrk})
	})
	e := newTestEngine(t, mux)

	got, err := e.ListNodes(t.Context())
	if err != nil {
		t.Fatalf("ListNodes() error = %v", err)
	}
	want := []cluster.Node{
		{
			ID: "n1", Hostname: "mgr-1", Role: cluster.RoleManager, Status: cluster.NodeReady,
			Availability: cluster.AvailabilityActive, Addr: "10.0.0.1",
			PlatformOS: "linux", PlatformArch: "x86_64", EngineVersion: "28.5.2",
			Labels:    map[string]string{},
			Resources: cluster.Resources{CPUs: 4, MemoryMB: 8192},
		},
		{
			ID: "n2", Hostname: "wrk-1", Role: cluster.RoleWorker, Status: cluster.NodeDown,
			Availability: cluster.AvailabilityDrain, Labels: map[string]string{},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("ListNodes() mismatch (-want +got):\n%s", diff)
	}
}

func TestInspectNodeFallsBackToHostname(t *testing.T) {
	t.Parallel()

	n := swarmNode("n1", "mgr-1", swarm.NodeRoleManager, swarm.NodeStateReady)
	mux := http.NewServeMux()
	mux.HandleFunc(route("GET", "/nodes/{id}"), func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") == "n1" {
			writeJSON(w, http.StatusOK, n)
			return
		}
		notFound(w, "node "+r.PathValue("id")+" not found")
	})
	mux.HandleFunc(route("GET", "/nodes"), func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []swarm.Node{n})
	})
	e := newTestEngine(t, mux)

	got, err := e.InspectNode(t.Context(), "mgr-1")
	if err != nil {
		t.Fatalf("InspectNode(hostname) error = %v", err)
	}
	if got.ID != "n1" {
		t.Fatalf("InspectNode(hostname).ID = %q, want n1", got.ID)
	}

	if _, err := e.InspectNode(t.Context(), "ghost"); !errdefs.IsNotFound(err) {
		t.Fatalf("InspectNode(ghost) error = %v, want not found", err)
	}
}

func TestSetNodeAvailabilitySendsVersionedSpec(t *testing.T) {
	t.Parallel()

	n := swarmNode("n1", "wrk-1", swarm.NodeRoleWorker, swarm.NodeStateReady)
	n.Spec.Labels = map[string]string{"zone": "a"}

	var (
		mu      sync.Mutex
		version string
		spec    swarm.NodeSpec
	)
	mux := http.NewServeMux()
	mux.HandleFunc(route("GET", "/nodes/{id}"), func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, n)
	})
	mux.HandleFunc(route("POST", "/nodes/{id}/update"), func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		version = r.URL.Query().Get("version")
		_ = json.NewDecoder(r.Body).Decode(&spec)
		w.WriteHeader(http.StatusOK)
	})
	e := newTestEngine(t, mux)

	if err := e.SetNodeAvailability(t.Context(), "n1", cluster.AvailabilityDrain); err != nil {
		t.Fatalf("SetNodeAvailability() error = %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if version != "7" {
		t.Fatalf("update version = %q, want 7", version)
	}
	if spec.Availability != swarm.NodeAvailabilityDrain {
		t.Fatalf("availability = %q, want drain", spec.Availability)
	}
	if spec.Labels["zone"] != "a" || spec.Role != swarm.NodeRoleWorker {
		t.Fatalf("update dropped existing spec fields: %+v", spec)
	}
}

func TestListServices(t *testing.T) {
	t.Parallel()

	replicas := uint64(3)
	svc := swarm.Service{ID: "s1"}
	svc.CreatedAt = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	svc.Spec.Name = "web"
	svc.Spec.TaskTemplate.ContainerSpec = &swarm.ContainerSpec{Image: "nginx:1.25@sha256:0123"}
	svc.Spec.Mode.Replicated = &swarm.ReplicatedService{Replicas: &replicas}
	svc.Endpoint.Ports = []swarm.PortConfig{{Protocol: swarm.PortConfigProtocolTCP, TargetPort: 80, PublishedPort: 8080}}
	svc.ServiceStatus = &swarm.ServiceStatus{RunningTasks: 2, DesiredTasks: 3}

	mux := http.NewServeMux()
	mux.HandleFunc(route("GET", "/services"), func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("status") != "true" {
			t.Errorf("status query = %q, want true", r.URL.Query().Get("status"))
		}
		writeJSON(w, http.StatusOK, []swarm.Service{svc})
	})
	e := newTestEngine(t, mux)

	got, err := e.ListServices(t.Context())
	if err != nil {
		t.Fatalf("ListServices() error = %v", err)
	}
	want := []cluster.LiveService{{
		ID: "s1", Name: "web", Image: "nginx:1.25",
		DesiredReplicas: 3, RunningReplicas: 2,
		Ports: []string{"8080:80/tcp"}, CreatedAt: svc.CreatedAt,
	}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("ListServices() mismatch (-want +got):\n%s", diff)
	}
}

func TestScaleServiceUpdatesReplicas(t *testing.T) {
	t.Parallel()

	replicas := uint64(3)
	svc := swarm.Service{ID: "s1"}
	svc.Version = swarm.Version{Index: 12}
	svc.Spec.Name = "web"
	svc.Spec.TaskTemplate.ContainerSpec = &swarm.ContainerSpec{Image: "nginx:1.25"}
	svc.Spec.Mode.Replicated = &swarm.ReplicatedService{Replicas: &replicas}

	var (
		mu      sync.Mutex
		version string
		spec    swarm.ServiceSpec
	)
	mux := http.NewServeMux()
	mux.HandleFunc(route("GET", "/services/{id}"), func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "web" {
			notFound(w, "service "+r.PathValue("id")+" not found")
			return
		}
		writeJSON(w, http.StatusOK, svc)
	})
	mux.HandleFunc(route("POST", "/services/{id}/update"), func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		if r.PathValue("id") != "s1" {
			t.Errorf("update target = %q, want s1", r.PathValue("id"))
		}
		version = r.URL.Query().Get("version")
		_ = json.NewDecoder(r.Body).Decode(&spec)
		writeJSON(w, http.StatusOK, swarm.ServiceUpdateResponse{})
	})
	e := newTestEngine(t, mux)

	if err := e.ScaleService(t.Context(), "web", 0); err != nil {
		t.Fatalf("ScaleService() error = %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if version != "12" {
		t.Fatalf("update version = %q, want 12", version)
	}
	if spec.Mode.Replicated == nil || spec.Mode.Replicated.Replicas == nil || *spec.Mode.Replicated.Replicas != 0 {
		t.Fatalf("update mode = %+v, want 0 replicas", spec.Mode)
	}
	if spec.TaskTemplate.ContainerSpec == nil || spec.TaskTemplate.ContainerSpec.Image != "nginx:1.25" {
		t.Fatalf("update dropped container spec: %+v", spec.TaskTemplate)
	}

	if err := e.ScaleService(t.Context(), "ghost", 1); !errdefs.IsNotFound(err) {
		t.Fatalf("ScaleService(ghost) error = %v, want not found", err)
	}
}

func TestRemoveServiceNotFound(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc(route("DELETE", "/services/{id}"), func(w http.ResponseWriter, r *http.Request) {
		notFound(w, "service "+r.PathValue("id")+" not found")
	})
	e := newTestEngine(t, mux)

	if err := e.RemoveService(t.Context(), "ghost"); !errdefs.IsNotFound(err) {
		t.Fatalf("RemoveService() error = %v, want not found", err)
	}
}

func TestUnreachableEngineIsUpstreamUnavailable(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	host := "tcp://" + strings.TrimPrefix(srv.URL, "http://")
	srv.Close()

	cli, err := client.NewClientWithOpts(client.WithHost(host), client.WithVersion(apiVersion))
	if err != nil {
		t.Fatalf("NewClientWithOpts() error = %v", err)
	}
	e := NewEngineFromClient(cli)

	if _, err := e.ListServices(t.Context()); !errdefs.IsUpstreamUnavailable(err) {
		t.Fatalf("ListServices() error = %v, want upstream unavailable", err)
	}
}

func TestServiceSpec(t *testing.T) {
	t.Parallel()

	def := catalog.ServiceDefinition{
		Image:       "registry.local/api:2",
		Replicas:    2,
		Ports:       []string{"8080:80", "53:53/udp"},
		Env:         map[string]string{"B": "2", "A": "1"},
		Constraints: []string{"node.role==worker"},
		Labels:      map[string]string{"team": "core"},
		Networks:    []string{"backend"},
		Mounts:      []string{"/srv/data:/data:ro", "cache:/cache"},
		Command:     `serve --name "my api"`,
	}
	spec, err := serviceSpec("api", def)
	if err != nil {
		t.Fatalf("serviceSpec() error = %v", err)
	}

	cs := spec.TaskTemplate.ContainerSpec
	if diff := cmp.Diff([]string{"serve", "--name", "my api"}, cs.Args); diff != "" {
		t.Errorf("Args mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"A=1", "B=2"}, cs.Env); diff != "" {
		t.Errorf("Env mismatch (-want +got):\n%s", diff)
	}
	if len(cs.Mounts) != 2 || cs.Mounts[0].Type != "bind" || !cs.Mounts[0].ReadOnly || cs.Mounts[1].Type != "volume" {
		t.Errorf("Mounts = %+v", cs.Mounts)
	}
	if *spec.Mode.Replicated.Replicas != 2 {
		t.Errorf("Replicas = %d, want 2", *spec.Mode.Replicated.Replicas)
	}
	if spec.Labels[LabelManaged] != "true" || spec.Labels["team"] != "core" {
		t.Errorf("Labels = %v", spec.Labels)
	}
	if spec.TaskTemplate.Placement == nil || spec.TaskTemplate.Placement.Constraints[0] != "node.role==worker" {
		t.Errorf("Placement = %+v", spec.TaskTemplate.Placement)
	}
	if len(spec.TaskTemplate.Networks) != 1 || spec.TaskTemplate.Networks[0].Target != "backend" {
		t.Errorf("Networks = %+v", spec.TaskTemplate.Networks)
	}
	wantPorts := []swarm.PortConfig{
		{Protocol: "tcp", TargetPort: 80, PublishedPort: 8080, PublishMode: swarm.PortConfigPublishModeIngress},
		{Protocol: "udp", TargetPort: 53, PublishedPort: 53, PublishMode: swarm.PortConfigPublishModeIngress},
	}
	if diff := cmp.Diff(wantPorts, spec.EndpointSpec.Ports); diff != "" {
		t.Errorf("Ports mismatch (-want +got):\n%s", diff)
	}
}

func TestServiceSpecRejectsBadCommand(t *testing.T) {
	t.Parallel()

	_, err := serviceSpec("api", catalog.ServiceDefinition{Image: "api", Replicas: 1, Command: `echo "unterminated`})
	if !errdefs.IsInvalidArgument(err) {
		t.Fatalf("serviceSpec() error = %v, want invalid argument", err)
	}
}

func TestGPUCount(t *testing.T) {
	t.Parallel()

	resources := []swarm.GenericResource{
		{DiscreteResourceSpec: &swarm.DiscreteGenericResource{Kind: "NVIDIA-GPU", Value: 2}},
		{NamedResourceSpec: &swarm.NamedGenericResource{Kind: "gpu", Value: "GPU-abc"}},
		{DiscreteResourceSpec: &swarm.DiscreteGenericResource{Kind: "ssd", Value: 4}},
	}
	if got := gpuCount(resources); got != 3 {
		t.Fatalf("gpuCount() = %d, want 3", got)
	}
}
