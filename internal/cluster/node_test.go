package cluster

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestNodeJSONUsesClosedVariants(t *testing.T) {
	t.Parallel()

	n := Node{
		ID:           "n1",
		Hostname:     "mgr-1",
		Role:         RoleManager,
		Status:       NodeReady,
		Availability: AvailabilityDrain,
		Services:     []NodeService{},
	}
	data, err := json.Marshal(n)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	for _, want := range []string{`"role":"manager"`, `"status":"ready"`, `"availability":"drain"`, `"services":[]`} {
		if !strings.Contains(string(data), want) {
			t.Errorf("expected %s in %s", want, data)
		}
	}

	var back Node
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if back.Role != RoleManager || back.Status != NodeReady || back.Availability != AvailabilityDrain {
		t.Fatalf("round trip mismatch: %+v", back)
	}
}

func TestParseRejectsOpenStrings(t *testing.T) {
	t.Parallel()

	if _, err := ParseAvailability("paused"); err == nil {
		t.Error("ParseAvailability(paused) expected error")
	}
	if _, err := ParseNodeState("READY"); err == nil {
		t.Error("ParseNodeState(READY) expected error")
	}
	if _, err := ParseRole("leader"); err == nil {
		t.Error("ParseRole(leader) expected error")
	}
}
