package repository

import (
	"context"
	"log/slog"
	"sync"

	"github.com/aigoflow/rideguard/internal/models"
)

// MemoryRepository keeps a bounded ring of recent audit rows in memory.
// It backs /logs when DB_PATH is empty, and doubles as a test fake.
type MemoryRepository struct {
	mu     sync.Mutex
	max    int
	logs   []*models.RequestLog
	events []MemoryEvent
}

type MemoryEvent struct {
	Level string
	Code  string
	Msg   string
	Meta  map[string]interface{}
}

func NewMemoryRepository(max int) *MemoryRepository {
	if max <= 0 {
		max = 1000
	}
	return &MemoryRepository{max: max}
}

func (m *MemoryRepository) Request() RequestRepositoryInterface { return m }

func (m *MemoryRepository) Event() EventRepositoryInterface { return memoryEvents{m} }

func (m *MemoryRepository) LogRequest(ctx context.Context, req *models.RequestLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *req
	m.logs = append(m.logs, &cp)
	if len(m.logs) > m.max {
		m.logs = m.logs[len(m.logs)-m.max:]
	}
	return nil
}

// GetRequestLogs returns at most limit rows, newest first.
func (m *MemoryRepository) GetRequestLogs(ctx context.Context, limit int) ([]*models.RequestLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.RequestLog, 0, min(limit, len(m.logs)))
	for i := len(m.logs) - 1; i >= 0 && len(out) < limit; i-- {
		cp := *m.logs[i]
		out = append(out, &cp)
	}
	return out, nil
}

// Events returns a copy of every recorded event, oldest first.
func (m *MemoryRepository) Events() []MemoryEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MemoryEvent(nil), m.events...)
}

type memoryEvents struct{ m *MemoryRepository }

func (e memoryEvents) LogEvent(ctx context.Context, level, code, msg string, meta map[string]interface{}) error {
	e.m.mu.Lock()
	defer e.m.mu.Unlock()
	e.m.events = append(e.m.events, MemoryEvent{Level: level, Code: code, Msg: msg, Meta: meta})
	if len(e.m.events) > e.m.max {
		e.m.events = e.m.events[len(e.m.events)-e.m.max:]
	}
	slog.Debug("Event recorded", "code", code, "level", level)
	return nil
}
