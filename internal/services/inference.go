package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/aigoflow/rideguard/internal/capabilities"
	"github.com/aigoflow/rideguard/internal/metrics"
	"github.com/aigoflow/rideguard/internal/models"
	"github.com/aigoflow/rideguard/internal/pipeline"
)

// Request sources.
const (
	SourceHTTP   = "http"
	SourceForm   = "form"
	SourceNATS   = "nats"
	SourceDirect = "direct"
)

// PredictionRequest carries one record plus the metadata recorded in the audit row.
type PredictionRequest struct {
	TraceID  string
	ReqID    string
	Source   string
	WorkerID string
	ReplyTo  string
	Record   models.RideRecord
}

// Status describes the service for health checks and heartbeats.
type Status struct {
	Available    bool     `json:"available"`
	Reason       string   `json:"reason,omitempty"`
	ModelName    string   `json:"model_name,omitempty"`
	ModelVersion string   `json:"model_version,omitempty"`
	Kind         string   `json:"kind,omitempty"`
	Threshold    float64  `json:"threshold"`
	Columns      []string `json:"columns,omitempty"`
	Capabilities []string `json:"capabilities"`
}

// InferenceService owns the pipeline loaded once at startup. It is built in
// main and shared by reference; nothing in it changes after construction.
// Apart from metrics and log lines it has no side effects; audit rows are
// written by AuditedService.
type InferenceService struct {
	pipeline     pipeline.Pipeline
	proba        pipeline.ProbabilityPipeline
	info         pipeline.Info
	loadErr      error
	threshold    float64
	capabilities []capabilities.Capability

	metrics *metrics.Metrics
}

// NewInferenceService wraps p. When loadErr is non-nil (or p is nil) the
// service is permanently degraded and every call fails with ErrModelUnavailable.
// m may be nil.
func NewInferenceService(p pipeline.Pipeline, loadErr error, threshold float64, m *metrics.Metrics) *InferenceService {
	if p == nil && loadErr == nil {
		loadErr = errors.New("no pipeline configured")
	}
	if loadErr == nil && (math.IsNaN(threshold) || threshold < 0 || threshold > 1) {
		loadErr = fmt.Errorf("decision threshold %v outside [0, 1]", threshold)
	}

	s := &InferenceService{
		loadErr:   loadErr,
		threshold: threshold,
		metrics:   m,
	}
	if loadErr == nil {
		s.pipeline = p
		s.info = p.Info()
		s.proba, _ = p.(pipeline.ProbabilityPipeline)
		s.capabilities = capabilities.NewDetector().Detect(p)
	}

	if m != nil {
		if s.Available() {
			m.ModelAvailable.Set(1)
		} else {
			m.ModelAvailable.Set(0)
		}
	}

	if loadErr != nil {
		slog.Error("Inference service degraded", "error", loadErr)
	} else {
		slog.Info("Inference service ready",
			"model", s.info.Name,
			"version", s.info.Version,
			"threshold", threshold,
			"probability", s.proba != nil,
			"capabilities", capabilities.Summary(s.capabilities))
	}
	return s
}

// Infer predicts one record with no request metadata.
func (s *InferenceService) Infer(ctx context.Context, record models.RideRecord) (models.Verdict, error) {
	return s.ProcessPrediction(ctx, PredictionRequest{Source: SourceDirect, Record: record})
}

// ProcessPrediction runs one prediction. Errors are ErrModelUnavailable or
// *InferenceFailedError; a pipeline panic becomes the latter.
func (s *InferenceService) ProcessPrediction(ctx context.Context, req PredictionRequest) (verdict models.Verdict, err error) {
	start := time.Now()
	req = withIDs(req)

	defer func() {
		if r := recover(); r != nil {
			err = &InferenceFailedError{Cause: fmt.Errorf("pipeline panic: %v", r)}
			verdict = models.Verdict{}
			slog.Error("Pipeline panic recovered", "req_id", req.ReqID, "panic", r)
		}
		s.observe(req, start, verdict, err)
	}()

	if s.loadErr != nil {
		return models.Verdict{}, fmt.Errorf("%w: %v", ErrModelUnavailable, s.loadErr)
	}

	frame, err := pipeline.NewFrame(s.info.Columns, req.Record.Values())
	if err != nil {
		return models.Verdict{}, &InferenceFailedError{Cause: err}
	}

	verdict = models.Verdict{
		Threshold:    s.threshold,
		ModelVersion: s.info.Version,
	}

	if s.proba != nil {
		proba, err := s.proba.PredictProba(ctx, frame)
		if err != nil {
			return models.Verdict{}, &InferenceFailedError{Cause: err}
		}
		p := proba[1]
		if math.IsNaN(p) || p < 0 || p > 1 {
			return models.Verdict{}, &InferenceFailedError{Cause: fmt.Errorf("probability %v outside [0, 1]", p)}
		}
		confidence := math.Max(p, 1-p) * 100
		verdict.Probability = &p
		verdict.Confidence = &confidence
		if p >= s.threshold {
			verdict.Outcome, verdict.Label = models.OutcomeCancelled, 1
		} else {
			verdict.Outcome, verdict.Label = models.OutcomeNotCancelled, 0
		}
		return verdict, nil
	}

	label, err := s.pipeline.Predict(ctx, frame)
	if err != nil {
		return models.Verdict{}, &InferenceFailedError{Cause: err}
	}
	switch label {
	case 1:
		verdict.Outcome, verdict.Label = models.OutcomeCancelled, 1
	case 0:
		verdict.Outcome, verdict.Label = models.OutcomeNotCancelled, 0
	default:
		return models.Verdict{}, &InferenceFailedError{Cause: fmt.Errorf("unexpected class label %d", label)}
	}
	return verdict, nil
}

// observe updates metrics and logs the outcome. Ride attributes are never included.
func (s *InferenceService) observe(req PredictionRequest, start time.Time, verdict models.Verdict, err error) {
	duration := time.Since(start)
	durMs := float64(duration.Microseconds()) / 1000

	if err != nil {
		slog.Warn("Prediction failed",
			"req_id", req.ReqID,
			"source", req.Source,
			"error_kind", ErrorKind(err),
			"error", LogMessage(err),
			"duration_ms", durMs)
	} else {
		attrs := []any{
			"req_id", req.ReqID,
			"source", req.Source,
			"verdict", verdict.Outcome,
			"duration_ms", durMs,
		}
		if verdict.Probability != nil {
			attrs = append(attrs, "probability", *verdict.Probability)
		}
		slog.Info("Prediction completed", attrs...)
	}

	if s.metrics == nil {
		return
	}
	s.metrics.Duration.WithLabelValues(req.Source).Observe(duration.Seconds())
	if err != nil {
		s.metrics.Failures.WithLabelValues(ErrorKind(err), req.Source).Inc()
		return
	}
	s.metrics.Predictions.WithLabelValues(string(verdict.Outcome), req.Source).Inc()
	if verdict.Probability != nil {
		s.metrics.Probability.Observe(*verdict.Probability)
	}
}

// RecordRejection counts a request that failed validation before reaching the pipeline.
func (s *InferenceService) RecordRejection(req PredictionRequest, err error) {
	s.observe(req, time.Now(), models.Verdict{}, err)
}

// Available reports whether the pipeline loaded at startup.
func (s *InferenceService) Available() bool {
	return s.loadErr == nil
}

// LoadError returns the startup load failure, or nil.
func (s *InferenceService) LoadError() error {
	return s.loadErr
}

func (s *InferenceService) Threshold() float64 {
	return s.threshold
}

// HasProbability reports whether verdicts carry probability and confidence.
func (s *InferenceService) HasProbability() bool {
	return s.proba != nil
}

func (s *InferenceService) Capabilities() []capabilities.Capability {
	return s.capabilities
}

func (s *InferenceService) Status() Status {
	st := Status{
		Available:    s.Available(),
		ModelName:    s.info.Name,
		ModelVersion: s.info.Version,
		Kind:         s.info.Kind,
		Threshold:    s.threshold,
		Columns:      s.info.Columns,
		Capabilities: capabilities.Strings(s.capabilities),
	}
	if s.loadErr != nil {
		st.Reason = s.loadErr.Error()
	}
	return st
}
