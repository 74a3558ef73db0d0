package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/aigoflow/rideguard/internal/config"
)

// Bus is the part of *nats.Conn the health service needs.
type Bus interface {
	Publisher
	Subscribe(subj string, cb nats.MsgHandler) (*nats.Subscription, error)
}

// Replica statuses.
const (
	StatusOnline   = "online"
	StatusDegraded = "degraded"
)

const heartbeatInterval = 30 * time.Second

type HealthService struct {
	nats      Bus
	config    *config.Config
	inference *InferenceService
	hostname  string
	started   time.Time
}

type HealthStatus struct {
	ModelName    string    `json:"model_name"`
	Instance     string    `json:"instance"`
	Status       string    `json:"status"`
	Reason       string    `json:"reason,omitempty"`
	LastActivity time.Time `json:"last_activity"`
	Uptime       string    `json:"uptime"`
	Capabilities []string  `json:"capabilities"`
	Endpoint     string    `json:"endpoint"`
	NATSTopic    string    `json:"nats_topic"`
	ModelVersion string    `json:"model_version,omitempty"`
	Threshold    float64   `json:"threshold"`
}

func NewHealthService(bus Bus, cfg *config.Config, inference *InferenceService) *HealthService {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return &HealthService{
		nats:      bus,
		config:    cfg,
		inference: inference,
		hostname:  hostname,
		started:   time.Now(),
	}
}

// HealthTopic answers request/reply health checks.
func HealthTopic(modelName string) string {
	return fmt.Sprintf("models.%s.health", modelName)
}

// HeartbeatTopic carries periodic status broadcasts.
func HeartbeatTopic(modelName string) string {
	return fmt.Sprintf("monitoring.models.heartbeat.%s", modelName)
}

func (h *HealthService) Start(ctx context.Context) error {
	healthTopic := HealthTopic(h.config.ModelName)

	_, err := h.nats.Subscribe(healthTopic, func(msg *nats.Msg) {
		statusData, err := json.Marshal(h.Snapshot())
		if err != nil {
			slog.Error("Failed to marshal health status", "error", err)
			return
		}
		if err := msg.Respond(statusData); err != nil {
			slog.Error("Failed to respond to health check", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to health topic: %w", err)
	}

	slog.Info("Health service started", "topic", healthTopic)

	// Announce immediately, then on every tick.
	h.publishHeartbeat()
	go h.publishHeartbeats(ctx)

	return nil
}

func (h *HealthService) publishHeartbeats(ctx context.Context) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.publishHeartbeat()
		}
	}
}

func (h *HealthService) publishHeartbeat() {
	statusData, err := json.Marshal(h.Snapshot())
	if err != nil {
		slog.Error("Failed to marshal heartbeat", "error", err)
		return
	}
	if err := h.nats.Publish(HeartbeatTopic(h.config.ModelName), statusData); err != nil {
		slog.Warn("Failed to publish heartbeat", "error", err)
	}
}

// Snapshot reports the replica's current status.
func (h *HealthService) Snapshot() HealthStatus {
	st := h.inference.Status()
	status := StatusOnline
	if !st.Available {
		status = StatusDegraded
	}
	return HealthStatus{
		ModelName:    h.config.ModelName,
		Instance:     h.hostname,
		Status:       status,
		Reason:       st.Reason,
		LastActivity: time.Now(),
		Uptime:       time.Since(h.started).Round(time.Second).String(),
		Capabilities: st.Capabilities,
		Endpoint:     fmt.Sprintf("http://%s%s", h.hostname, h.config.HTTPAddr),
		NATSTopic:    h.config.Subject,
		ModelVersion: st.ModelVersion,
		Threshold:    st.Threshold,
	}
}
