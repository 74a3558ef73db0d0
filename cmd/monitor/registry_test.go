package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/aigoflow/rideguard/internal/services"
)

func heartbeat(t *testing.T, instance, status string) []byte {
	t.Helper()
	data, err := json.Marshal(services.HealthStatus{
		ModelName:    "ride-cancellation",
		Instance:     instance,
		Status:       status,
		Capabilities: []string{"label", "probability"},
		ModelVersion: "v3",
		Threshold:    0.45,
	})
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func TestRegistryTracksReplicas(t *testing.T) {
	clock := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	r := NewRegistry()
	r.now = func() time.Time { return clock }

	if _, err := r.ObserveHeartbeat(heartbeat(t, "b", "online")); err != nil {
		t.Fatal(err)
	}
	if _, err := r.ObserveHeartbeat(heartbeat(t, "a", "degraded")); err != nil {
		t.Fatal(err)
	}
	clock = clock.Add(time.Minute)
	rep, err := r.ObserveHeartbeat(heartbeat(t, "b", "online"))
	if err != nil {
		t.Fatal(err)
	}
	if !rep.FirstSeen.Before(rep.LastSeen) {
		t.Errorf("first seen should be kept: %v %v", rep.FirstSeen, rep.LastSeen)
	}

	snap := r.Snapshot()
	if len(snap) != 2 || snap[0].Instance != "a" || snap[1].Instance != "b" {
		t.Fatalf("unexpected snapshot %+v", snap)
	}

	clock = clock.Add(90 * time.Second)
	if n := r.MarkStale(); n != 1 {
		t.Errorf("MarkStale changed %d replicas, want 1", n)
	}
	if n := r.MarkStale(); n != 0 {
		t.Errorf("second MarkStale changed %d replicas, want 0", n)
	}
	if got := r.Snapshot()[0].Status; got != "offline" {
		t.Errorf("status = %q, want offline", got)
	}
}

func TestRegistryBackpressure(t *testing.T) {
	r := NewRegistry()
	if _, err := r.ObserveHeartbeat(heartbeat(t, "a", "online")); err != nil {
		t.Fatal(err)
	}
	report, _ := json.Marshal(services.BackpressureReport{
		ModelName:       "ride-cancellation",
		PendingMessages: 120,
		QueueCapacity:   100,
		Status:          "critical",
	})
	if err := r.ObserveBackpressure(report); err != nil {
		t.Fatal(err)
	}
	if bp := r.Snapshot()[0].Backpressure; bp == nil || bp.PendingMessages != 120 {
		t.Errorf("backpressure not attached: %+v", bp)
	}
	if err := r.ObserveBackpressure([]byte("nope")); err == nil {
		t.Error("expected parse error")
	}
}

func TestRenderTable(t *testing.T) {
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	var buf bytes.Buffer
	renderTable(&buf, nil, now)
	if !strings.Contains(buf.String(), "No replicas detected") {
		t.Errorf("unexpected empty table %q", buf.String())
	}

	buf.Reset()
	rep := Replica{LastSeen: now.Add(-5 * time.Second)}
	rep.ModelName = "ride-cancellation"
	rep.Instance = "host-1"
	rep.Status = "degraded"
	rep.Reason = "artifact not found at data/models/pipeline.json"
	rep.Threshold = 0.5
	renderTable(&buf, []Replica{rep}, now)

	out := buf.String()
	for _, want := range []string{"ride-cancellation", "host-1", "degraded (artifact not found at data/...)", "0.50", "5s"} {
		if !strings.Contains(out, want) {
			t.Errorf("table missing %q:\n%s", want, out)
		}
	}
}
