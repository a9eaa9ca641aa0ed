// Package reconcile merges the service catalog with the engine's live view
// and executes service commands against the engine.
package reconcile

import (
	"encoding/json"
	"fmt"

	"swarmorch/internal/catalog"
	"swarmorch/internal/cluster"
)

// ResolvedService is a catalog entry with its status derived from the live
// service of the same name, if one exists.
type ResolvedService struct {
	catalog.Entry
	Live *cluster.LiveService
}

func (r ResolvedService) MarshalJSON() ([]byte, error) {
	base, err := json.Marshal(r.Entry)
	if err != nil {
		return nil, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(base, &fields); err != nil {
		return nil, fmt.Errorf("decode entry fields: %w", err)
	}
	live, err := json.Marshal(r.Live)
	if err != nil {
		return nil, err
	}
	fields["live"] = live
	return json.Marshal(fields)
}

func (r *ResolvedService) UnmarshalJSON(data []byte) error {
	if err := json.Unmarshal(data, &r.Entry); err != nil {
		return err
	}
	var extra struct {
		Live *cluster.LiveService `json:"live"`
	}
	if err := json.Unmarshal(data, &extra); err != nil {
		return err
	}
	r.Live = extra.Live
	return nil
}

// Resolve derives the status of every catalog entry from the live services.
// The join is by name; a stored swarm id is never followed.
//
// An entry that has lost its live service while holding a swarm id resolves
// to unknown for one cycle, keeping the id. Once unknown has been persisted,
// the next cycle resolves it to registered and drops the id.
func Resolve(entries []catalog.Entry, live []cluster.LiveService) []ResolvedService {
	byName := cluster.IndexByName(live)
	out := make([]ResolvedService, 0, len(entries))
	for _, e := range entries {
		out = append(out, resolveOne(e, byName))
	}
	return out
}

func resolveOne(e catalog.Entry, byName map[string]cluster.LiveService) ResolvedService {
	r := ResolvedService{Entry: e}
	svc, ok := byName[e.Name]
	if !ok {
		if e.SwarmID != "" && e.Status != catalog.StatusUnknown {
			r.Status = catalog.StatusUnknown
			return r
		}
		r.Status = catalog.StatusRegistered
		r.SwarmID = ""
		return r
	}

	r.Live = &svc
	r.SwarmID = svc.ID
	r.Status = liveStatus(svc)
	return r
}

// liveStatus collapses partial convergence into running; there is no
// separate deploying state.
func liveStatus(svc cluster.LiveService) catalog.Status {
	switch {
	case svc.DesiredReplicas > 0 && svc.RunningReplicas == 0:
		return catalog.StatusFailed
	case svc.DesiredReplicas > 0 && svc.RunningReplicas >= svc.DesiredReplicas:
		return catalog.StatusRunning
	case svc.DesiredReplicas == 0:
		return catalog.StatusStopped
	default:
		return catalog.StatusRunning
	}
}

// changed reports whether persisting r would alter the stored entry.
func (r ResolvedService) changed(stored catalog.Entry) bool {
	return r.Status != stored.Status || r.SwarmID != stored.SwarmID
}
