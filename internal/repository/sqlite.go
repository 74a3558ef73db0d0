package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/aigoflow/rideguard/internal/models"
	"github.com/aigoflow/rideguard/internal/store"
)

// SQLiteRepository implements Repository interface using SQLite
type SQLiteRepository struct {
	requestRepo RequestRepositoryInterface
	eventRepo   EventRepositoryInterface
}

func NewSQLiteRepository(db *store.DB) Repository {
	return &SQLiteRepository{
		requestRepo: &SQLiteRequestRepository{db: db},
		eventRepo:   &SQLiteEventRepository{db: db},
	}
}

func (r *SQLiteRepository) Request() RequestRepositoryInterface {
	return r.requestRepo
}

func (r *SQLiteRepository) Event() EventRepositoryInterface {
	return r.eventRepo
}

// SQLiteRequestRepository handles prediction audit rows
type SQLiteRequestRepository struct {
	db *store.DB
}

func (r *SQLiteRequestRepository) LogRequest(ctx context.Context, req *models.RequestLog) error {
	row := store.Prediction{
		Start:        req.Timestamp,
		TraceID:      req.TraceID,
		ReqID:        req.ReqID,
		WorkerID:     req.WorkerID,
		Source:       req.Source,
		ReplyTo:      req.ReplyTo,
		Outcome:      req.Outcome,
		Threshold:    req.Threshold,
		ModelVersion: req.ModelVersion,
		Duration:     time.Duration(req.DurationMs * float64(time.Millisecond)),
		Status:       req.Status,
		ErrorKind:    req.ErrorKind,
		Error:        req.Error,
	}
	if req.Probability != nil {
		row.Probability = sql.NullFloat64{Float64: *req.Probability, Valid: true}
	}
	return r.db.Prediction(ctx, row)
}

func (r *SQLiteRequestRepository) GetRequestLogs(ctx context.Context, limit int) ([]*models.RequestLog, error) {
	rows, err := r.db.RecentPredictions(ctx, limit)
	if err != nil {
		return nil, err
	}

	logs := make([]*models.RequestLog, 0, len(rows))
	for _, row := range rows {
		log := &models.RequestLog{
			Timestamp:    row.Start,
			TraceID:      row.TraceID,
			ReqID:        row.ReqID,
			WorkerID:     row.WorkerID,
			Source:       row.Source,
			ReplyTo:      row.ReplyTo,
			Outcome:      row.Outcome,
			Threshold:    row.Threshold,
			ModelVersion: row.ModelVersion,
			DurationMs:   float64(row.Duration.Microseconds()) / 1000,
			Status:       row.Status,
			ErrorKind:    row.ErrorKind,
			Error:        row.Error,
		}
		if row.Probability.Valid {
			p := row.Probability.Float64
			log.Probability = &p
		}
		logs = append(logs, log)
	}
	return logs, nil
}

// SQLiteEventRepository handles event logging
type SQLiteEventRepository struct {
	db *store.DB
}

func (r *SQLiteEventRepository) LogEvent(ctx context.Context, level, code, msg string, meta map[string]interface{}) error {
	return r.db.Event(ctx, level, code, msg, meta)
}
