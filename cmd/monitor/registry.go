package main

import (
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/aigoflow/rideguard/internal/services"
)

const offlineAfter = 2 * time.Minute

// Replica is one server instance as seen through its heartbeats.
type Replica struct {
	services.HealthStatus
	Backpressure *services.BackpressureReport `json:"backpressure,omitempty"`
	FirstSeen    time.Time                    `json:"first_seen"`
	LastSeen     time.Time                    `json:"last_seen"`
}

// Registry tracks replicas keyed by model and instance.
type Registry struct {
	mu       sync.RWMutex
	replicas map[string]*Replica
	now      func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{replicas: make(map[string]*Replica), now: time.Now}
}

func replicaKey(model, instance string) string {
	return model + "/" + instance
}

// ObserveHeartbeat records a heartbeat payload.
func (r *Registry) ObserveHeartbeat(data []byte) (*Replica, error) {
	var hs services.HealthStatus
	if err := json.Unmarshal(data, &hs); err != nil {
		return nil, err
	}

	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()

	key := replicaKey(hs.ModelName, hs.Instance)
	rep, ok := r.replicas[key]
	if !ok {
		rep = &Replica{FirstSeen: now}
		r.replicas[key] = rep
	}
	rep.HealthStatus = hs
	rep.LastSeen = now
	out := *rep
	return &out, nil
}

// ObserveBackpressure attaches a queue report to every replica of its model.
// Reports are per model since replicas share one durable consumer.
func (r *Registry) ObserveBackpressure(data []byte) error {
	var report services.BackpressureReport
	if err := json.Unmarshal(data, &report); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rep := range r.replicas {
		if rep.ModelName == report.ModelName {
			rep.Backpressure = &report
		}
	}
	return nil
}

// MarkStale flags replicas that stopped sending heartbeats and returns how many changed.
func (r *Registry) MarkStale() int {
	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()

	changed := 0
	for _, rep := range r.replicas {
		if now.Sub(rep.LastSeen) > offlineAfter && rep.Status != "offline" {
			rep.Status = "offline"
			changed++
		}
	}
	return changed
}

// Snapshot returns all replicas sorted by model then instance.
func (r *Registry) Snapshot() []Replica {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Replica, 0, len(r.replicas))
	for _, rep := range r.replicas {
		out = append(out, *rep)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ModelName != out[j].ModelName {
			return out[i].ModelName < out[j].ModelName
		}
		return out[i].Instance < out[j].Instance
	})
	return out
}
