package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/aigoflow/rideguard/internal/config"
	"github.com/aigoflow/rideguard/internal/metrics"
)

// Publisher is the part of *nats.Conn used for fire-and-forget reports.
type Publisher interface {
	Publish(subj string, data []byte) error
}

// Backpressure levels.
const (
	LevelHealthy  = "healthy"
	LevelWarning  = "warning"
	LevelCritical = "critical"
)

type MonitoringService struct {
	nats         Publisher
	config       *config.Config
	metrics      *metrics.Metrics
	pendingCount atomic.Int64
	activeCount  atomic.Int64
}

type BackpressureReport struct {
	ModelName        string    `json:"model_name"`
	PendingMessages  int64     `json:"pending_messages"`
	ActiveProcessing int64     `json:"active_processing"`
	Timestamp        time.Time `json:"timestamp"`
	WorkerCount      int       `json:"worker_count"`
	QueueCapacity    int       `json:"queue_capacity"`
	Status           string    `json:"status"`
}

// NewMonitoringService publishes on pub; m may be nil.
func NewMonitoringService(pub Publisher, cfg *config.Config, m *metrics.Metrics) *MonitoringService {
	return &MonitoringService{
		nats:    pub,
		config:  cfg,
		metrics: m,
	}
}

func (m *MonitoringService) Topic() string {
	return fmt.Sprintf("%s.%s", m.config.MonitoringTopic, m.config.ModelName)
}

func (m *MonitoringService) Start(ctx context.Context) {
	slog.Info("Starting monitoring service",
		"topic", m.Topic(),
		"threshold", m.config.BackpressureThreshold)

	go m.monitorBackpressure(ctx)
}

// monitorBackpressure reports every second while work is queued, every ten otherwise.
func (m *MonitoringService) monitorBackpressure(ctx context.Context) {
	const (
		busyInterval = time.Second
		idleInterval = 10 * time.Second
	)
	interval := idleInterval
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			pending := m.pendingCount.Load()
			m.reportBackpressure(pending, m.activeCount.Load())

			next := idleInterval
			if pending > 0 {
				next = busyInterval
			}
			if next != interval {
				slog.Debug("Monitoring interval changed", "interval", next.String(), "pending", pending)
				interval = next
			}
			timer.Reset(interval)
		}
	}
}

func (m *MonitoringService) reportBackpressure(pending, active int64) {
	status := m.calculateStatus(pending, active)

	report := BackpressureReport{
		ModelName:        m.config.ModelName,
		PendingMessages:  pending,
		ActiveProcessing: active,
		Timestamp:        time.Now(),
		WorkerCount:      m.config.Concurrency,
		QueueCapacity:    m.config.MaxMsgs,
		Status:           status,
	}

	if m.metrics != nil {
		m.metrics.QueuePending.Set(float64(pending))
	}

	reportData, err := json.Marshal(report)
	if err != nil {
		slog.Error("Failed to marshal backpressure report", "error", err)
		return
	}

	if err := m.nats.Publish(m.Topic(), reportData); err != nil {
		slog.Warn("Failed to publish backpressure report", "error", err)
		return
	}

	if pending > 0 || status != LevelHealthy {
		slog.Info("Backpressure report",
			"pending", pending,
			"active", active,
			"status", status)
	}
}

func (m *MonitoringService) calculateStatus(pending, active int64) string {
	total := pending + active
	switch {
	case total == 0:
		return LevelHealthy
	case total < int64(m.config.BackpressureThreshold):
		return LevelWarning
	default:
		return LevelCritical
	}
}

func (m *MonitoringService) IncrementPending() { m.pendingCount.Add(1) }

func (m *MonitoringService) DecrementPending() { m.pendingCount.Add(-1) }

func (m *MonitoringService) IncrementActive() { m.activeCount.Add(1) }

func (m *MonitoringService) DecrementActive() { m.activeCount.Add(-1) }

func (m *MonitoringService) GetPendingCount() int64 { return m.pendingCount.Load() }

func (m *MonitoringService) GetActiveCount() int64 { return m.activeCount.Load() }
