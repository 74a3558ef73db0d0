package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aigoflow/rideguard/internal/metrics"
	"github.com/aigoflow/rideguard/internal/schema"
	"github.com/aigoflow/rideguard/internal/services"
)

func degradedService(m *metrics.Metrics) *services.AuditedService {
	return services.NewAuditedService(services.NewInferenceService(nil, errors.New("artifact not found"), 0.5, m), nil)
}

func TestHandlerRoutes(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	srv := NewServer(":0", degradedService(m), schema.NewCoercer(schema.Options{}), m, true)
	h := srv.Handler()

	tests := []struct {
		path   string
		status int
		body   string
	}{
		{"/healthz", http.StatusServiceUnavailable, "degraded: artifact not found"},
		{"/status", http.StatusOK, `"available":false`},
		{"/metrics", http.StatusOK, "rideguard_model_available 0"},
		{"/", http.StatusOK, "Prediction is unavailable"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d", rec.Code, tt.status)
			}
			if !strings.Contains(rec.Body.String(), tt.body) {
				t.Errorf("body %q does not contain %q", rec.Body.String(), tt.body)
			}
		})
	}
}

func TestStatusBody(t *testing.T) {
	h := NewServer(":0", degradedService(nil), schema.NewCoercer(schema.Options{}), nil, false).Handler()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))

	var st services.Status
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatalf("status is not JSON: %v", err)
	}
	if st.Available || st.Reason != "artifact not found" || st.Threshold != 0.5 {
		t.Errorf("unexpected status %+v", st)
	}
}

func TestFormAndMetricsOptional(t *testing.T) {
	h := NewServer(":0", degradedService(nil), schema.NewCoercer(schema.Options{}), nil, false).Handler()
	for _, path := range []string{"/", "/metrics"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusNotFound {
			t.Errorf("%s: status = %d, want 404", path, rec.Code)
		}
	}
}

func TestStartStopsOnCancel(t *testing.T) {
	srv := NewServer("127.0.0.1:0", degradedService(nil), schema.NewCoercer(schema.Options{}), nil, false)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
