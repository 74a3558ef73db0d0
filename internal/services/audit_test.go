package services

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/aigoflow/rideguard/internal/models"
	"github.com/aigoflow/rideguard/internal/pipeline"
	"github.com/aigoflow/rideguard/internal/repository"
	"github.com/aigoflow/rideguard/internal/schema"
)

// captureLogs routes the default logger into a buffer for the rest of the test.
func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return &buf
}

func TestAuditRowPerCall(t *testing.T) {
	repo := repository.NewMemoryRepository(10)
	svc := NewAuditedService(NewInferenceService(newProba(0.7), nil, 0.5, nil), repo)

	if _, err := svc.ProcessPrediction(context.Background(), PredictionRequest{Source: SourceHTTP, Record: bookingRecord()}); err != nil {
		t.Fatalf("ProcessPrediction failed: %v", err)
	}
	svc.RecordRejection(context.Background(), PredictionRequest{ReqID: "bad-1", Source: SourceForm}, schema.ErrValidation)

	logs, _ := svc.GetRequestLogs(context.Background(), 10)
	if len(logs) != 2 {
		t.Fatalf("audit rows = %d, want 2", len(logs))
	}
	rejected, predicted := logs[0], logs[1]
	if rejected.ReqID != "bad-1" || rejected.TraceID != "bad-1" || rejected.ErrorKind != KindValidation || rejected.Status != "error" {
		t.Errorf("rejection row = %+v", rejected)
	}
	if predicted.ReqID == "" || predicted.TraceID != predicted.ReqID || predicted.Status != "ok" ||
		predicted.Outcome != string(models.OutcomeCancelled) || predicted.Threshold != 0.5 {
		t.Errorf("prediction row = %+v", predicted)
	}
}

func TestBareServiceKeepsNoRows(t *testing.T) {
	repo := repository.NewMemoryRepository(10)
	audited := NewAuditedService(NewInferenceService(newProba(0.7), nil, 0.5, nil), repo)

	if _, err := audited.InferenceService.Infer(context.Background(), bookingRecord()); err != nil {
		t.Fatalf("Infer failed: %v", err)
	}
	if logs, _ := repo.GetRequestLogs(context.Background(), 10); len(logs) != 0 {
		t.Errorf("inference alone wrote %d audit rows", len(logs))
	}

	off := NewAuditedService(NewInferenceService(newProba(0.7), nil, 0.5, nil), nil)
	if _, err := off.Infer(context.Background(), bookingRecord()); err != nil {
		t.Fatalf("Infer failed: %v", err)
	}
	off.LogEvent(context.Background(), "info", "model_loaded", "pipeline loaded", nil)
	if logs, err := off.GetRequestLogs(context.Background(), 10); err != nil || len(logs) != 0 {
		t.Errorf("GetRequestLogs without repository = %v, %v", logs, err)
	}
}

func TestUnknownCategoryNotAudited(t *testing.T) {
	const submitted = "SECRET-hovercraft"
	logs := captureLogs(t)

	strict, err := pipeline.New(endToEndArtifact(pipeline.UnknownError), pipeline.Options{})
	if err != nil {
		t.Fatalf("pipeline.New failed: %v", err)
	}
	repo := repository.NewMemoryRepository(10)
	svc := NewAuditedService(NewInferenceService(strict, nil, 0.5, nil), repo)

	record := fullRecord()
	record.VehicleType = submitted
	_, err = svc.ProcessPrediction(context.Background(), PredictionRequest{Source: SourceHTTP, Record: record})
	if ErrorKind(err) != KindInferenceFailed || !errors.Is(err, pipeline.ErrUnknownCategory) {
		t.Fatalf("expected inference_failed(unknown category), got %v", err)
	}

	rows, _ := repo.GetRequestLogs(context.Background(), 1)
	if len(rows) != 1 {
		t.Fatalf("audit rows = %d", len(rows))
	}
	if rows[0].ErrorKind != KindInferenceFailed || !strings.Contains(rows[0].Error, "vehicle_type") {
		t.Errorf("audit row = %+v", rows[0])
	}
	if strings.Contains(rows[0].Error, submitted) {
		t.Errorf("audit row carries the submitted category: %q", rows[0].Error)
	}
	if strings.Contains(logs.String(), submitted) {
		t.Errorf("log output carries the submitted category: %s", logs.String())
	}
}

func TestRejectedClockNotAudited(t *testing.T) {
	const submitted = "SECRET-25:99"
	logs := captureLogs(t)

	raw := rawBooking()
	raw["day_of_week"] = 1
	raw["ride_time"] = submitted
	raw["peak_hour"] = 0
	_, err := schema.NewCoercer(schema.Options{}).Coerce(raw)
	if !errors.Is(err, schema.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	repo := repository.NewMemoryRepository(10)
	svc := NewAuditedService(NewInferenceService(newProba(0.7), nil, 0.5, nil), repo)
	svc.RecordRejection(context.Background(), PredictionRequest{Source: SourceHTTP}, err)

	rows, _ := repo.GetRequestLogs(context.Background(), 1)
	if len(rows) != 1 || rows[0].Error != "invalid ride_time: expected HH:MM" {
		t.Errorf("audit rows = %+v", rows)
	}
	if strings.Contains(logs.String(), submitted) {
		t.Errorf("log output carries the submitted clock: %s", logs.String())
	}
}

func TestRemoteErrorTextNotAudited(t *testing.T) {
	const echoed = "could not convert 'SECRET-suv' for vehicle_type"
	logs := captureLogs(t)

	p := &probaPipeline{labelPipeline: labelPipeline{columns: bookingColumns}, err: &pipeline.RemoteError{Message: echoed}}
	repo := repository.NewMemoryRepository(10)
	svc := NewAuditedService(NewInferenceService(p, nil, 0.5, nil), repo)

	_, err := svc.Infer(context.Background(), bookingRecord())
	if ErrorKind(err) != KindInferenceFailed {
		t.Fatalf("expected inference_failed, got %v", err)
	}

	rows, _ := repo.GetRequestLogs(context.Background(), 1)
	if len(rows) != 1 || rows[0].Error != "inference failed: remote pipeline error" {
		t.Errorf("audit rows = %+v", rows)
	}
	if strings.Contains(logs.String(), "SECRET-suv") {
		t.Errorf("log output carries remote text: %s", logs.String())
	}
}
