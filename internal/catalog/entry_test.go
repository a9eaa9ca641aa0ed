package catalog

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestEntryJSONSwarmIDNullable(t *testing.T) {
	t.Parallel()

	e := Entry{Name: "web", Definition: ServiceDefinition{Image: "nginx", Replicas: 1}}
	data, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if !strings.Contains(string(data), `"swarm_id":null`) {
		t.Fatalf("expected null swarm_id, got %s", data)
	}
	if !strings.Contains(string(data), `"status":"registered"`) {
		t.Fatalf("expected registered status, got %s", data)
	}

	e.SwarmID = "svc-1"
	e.Status = StatusRunning
	e.CreatedAt = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	data, err = json.Marshal(e)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var back Entry
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if back.SwarmID != "svc-1" || back.Status != StatusRunning || !back.CreatedAt.Equal(e.CreatedAt) {
		t.Fatalf("round trip lost fields: %+v", back)
	}
}

func TestEntryUnmarshalDefaultsReplicas(t *testing.T) {
	t.Parallel()

	var e Entry
	if err := json.Unmarshal([]byte(`{"name":"web","definition":{"image":"nginx"}}`), &e); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if e.Definition.Replicas != 1 {
		t.Fatalf("Replicas = %d, want default 1", e.Definition.Replicas)
	}
}

func TestStatusUnmarshalRejectsUnknownText(t *testing.T) {
	t.Parallel()

	var s Status
	if err := s.UnmarshalText([]byte("deploying")); err == nil {
		t.Fatal("expected error for unknown status text")
	}
}
