package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/aigoflow/rideguard/internal/models"
	"github.com/aigoflow/rideguard/internal/repository"
)

// AuditedService is the InferenceService as the HTTP, form and NATS surfaces
// see it: every prediction and rejection they handle leaves one audit row.
// With a nil repository it records nothing and reports no rows.
type AuditedService struct {
	*InferenceService
	repo repository.Repository
}

func NewAuditedService(svc *InferenceService, repo repository.Repository) *AuditedService {
	return &AuditedService{InferenceService: svc, repo: repo}
}

// Infer predicts one record with no request metadata.
func (a *AuditedService) Infer(ctx context.Context, record models.RideRecord) (models.Verdict, error) {
	return a.ProcessPrediction(ctx, PredictionRequest{Source: SourceDirect, Record: record})
}

// ProcessPrediction predicts req and writes its audit row.
func (a *AuditedService) ProcessPrediction(ctx context.Context, req PredictionRequest) (models.Verdict, error) {
	start := time.Now()
	req = withIDs(req)
	verdict, err := a.InferenceService.ProcessPrediction(ctx, req)
	a.write(ctx, req, start, verdict, err)
	return verdict, err
}

// RecordRejection audits a request that failed validation before reaching the pipeline.
func (a *AuditedService) RecordRejection(ctx context.Context, req PredictionRequest, err error) {
	start := time.Now()
	req = withIDs(req)
	a.InferenceService.RecordRejection(req, err)
	a.write(ctx, req, start, models.Verdict{}, err)
}

// GetRequestLogs returns recent audit rows, newest first.
func (a *AuditedService) GetRequestLogs(ctx context.Context, limit int) ([]*models.RequestLog, error) {
	if a.repo == nil {
		return []*models.RequestLog{}, nil
	}
	return a.repo.Request().GetRequestLogs(ctx, limit)
}

// LogEvent stores a lifecycle event next to the audit rows.
func (a *AuditedService) LogEvent(ctx context.Context, level, code, msg string, meta map[string]interface{}) {
	if a.repo == nil {
		return
	}
	if err := a.repo.Event().LogEvent(context.WithoutCancel(ctx), level, code, msg, meta); err != nil {
		slog.Warn("Failed to write event", "code", code, "error", err)
	}
}

func (a *AuditedService) write(ctx context.Context, req PredictionRequest, start time.Time, verdict models.Verdict, err error) {
	if a.repo == nil {
		return
	}

	log := &models.RequestLog{
		Timestamp:    start,
		TraceID:      req.TraceID,
		ReqID:        req.ReqID,
		WorkerID:     req.WorkerID,
		Source:       req.Source,
		ReplyTo:      req.ReplyTo,
		Outcome:      string(verdict.Outcome),
		Probability:  verdict.Probability,
		Threshold:    a.threshold,
		ModelVersion: a.info.Version,
		DurationMs:   float64(time.Since(start).Microseconds()) / 1000,
		Status:       "ok",
	}
	if err != nil {
		log.Status = "error"
		log.ErrorKind = ErrorKind(err)
		log.Error = LogMessage(err)
	}

	if err := a.repo.Request().LogRequest(context.WithoutCancel(ctx), log); err != nil {
		slog.Warn("Failed to write audit row", "req_id", req.ReqID, "error", err)
	}
}

func withIDs(req PredictionRequest) PredictionRequest {
	if req.ReqID == "" {
		req.ReqID = ulid.Make().String()
	}
	if req.TraceID == "" {
		req.TraceID = req.ReqID
	}
	return req
}
