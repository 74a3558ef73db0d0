package repository

import (
	"context"

	"github.com/aigoflow/rideguard/internal/models"
)

// Repository aggregates all repository interfaces
type Repository interface {
	Request() RequestRepositoryInterface
	Event() EventRepositoryInterface
}

// RequestRepositoryInterface defines prediction audit operations
type RequestRepositoryInterface interface {
	LogRequest(ctx context.Context, req *models.RequestLog) error
	GetRequestLogs(ctx context.Context, limit int) ([]*models.RequestLog, error)
}

// EventRepositoryInterface defines lifecycle event logging operations
type EventRepositoryInterface interface {
	LogEvent(ctx context.Context, level, code, msg string, meta map[string]interface{}) error
}
