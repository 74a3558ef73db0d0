package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/nats-io/nats.go"
)

// Requester is the part of *nats.Conn the remote pipeline needs.
type Requester interface {
	RequestWithContext(ctx context.Context, subj string, data []byte) (*nats.Msg, error)
}

type remoteInfo struct {
	Info
	Proba bool `json:"predict_proba"`
}

type remoteRequest struct {
	Method  string   `json:"method"`
	Columns []string `json:"columns"`
	Row     []any    `json:"row"`
}

type remoteResponse struct {
	Label *int      `json:"label,omitempty"`
	Proba []float64 `json:"proba,omitempty"`
	Error string    `json:"error,omitempty"`
}

// RemoteError is a failure reported by the remote pipeline process. Message
// is the remote side's own text.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string {
	return "remote pipeline: " + e.Message
}

// RemotePipeline forwards rows to a pipeline served by another process
// (typically the original Python pipeline) over NATS request/reply.
type RemotePipeline struct {
	conn    Requester
	subject string
	timeout time.Duration
	info    Info
}

// RemoteProbaPipeline is a RemotePipeline whose server exposes predict_proba.
type RemoteProbaPipeline struct {
	*RemotePipeline
}

// DialRemote fetches the remote schema once on pipeline.<name>.schema. The
// returned Pipeline also implements ProbabilityPipeline when the remote
// side advertises predict_proba.
func DialRemote(ctx context.Context, conn Requester, name string, timeout time.Duration) (Pipeline, error) {
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	msg, err := conn.RequestWithContext(reqCtx, fmt.Sprintf("pipeline.%s.schema", name), []byte("{}"))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch remote schema: %w", err)
	}

	var ri remoteInfo
	if err := json.Unmarshal(msg.Data, &ri); err != nil {
		return nil, fmt.Errorf("failed to parse remote schema: %w", err)
	}
	if len(ri.Columns) == 0 {
		return nil, errors.New("remote pipeline declares no columns")
	}
	if ri.Name == "" {
		ri.Name = name
	}

	rp := &RemotePipeline{
		conn:    conn,
		subject: fmt.Sprintf("pipeline.%s.predict", name),
		timeout: timeout,
		info:    ri.Info,
	}

	slog.Info("Remote pipeline connected",
		"subject", rp.subject,
		"version", ri.Version,
		"columns", len(ri.Columns),
		"predict_proba", ri.Proba)

	if ri.Proba {
		return &RemoteProbaPipeline{rp}, nil
	}
	return rp, nil
}

func (r *RemotePipeline) Info() Info {
	info := r.info
	info.Columns = slices.Clone(r.info.Columns)
	return info
}

func (r *RemotePipeline) Predict(ctx context.Context, frame Frame) (int, error) {
	resp, err := r.call(ctx, "predict", frame)
	if err != nil {
		return 0, err
	}
	if resp.Label == nil {
		return 0, errors.New("remote pipeline returned no label")
	}
	return *resp.Label, nil
}

func (r *RemoteProbaPipeline) PredictProba(ctx context.Context, frame Frame) ([2]float64, error) {
	resp, err := r.call(ctx, "predict_proba", frame)
	if err != nil {
		return [2]float64{}, err
	}
	if len(resp.Proba) != 2 {
		return [2]float64{}, fmt.Errorf("remote pipeline returned %d probabilities, want 2", len(resp.Proba))
	}
	return [2]float64{resp.Proba[0], resp.Proba[1]}, nil
}

func (r *RemotePipeline) call(ctx context.Context, method string, frame Frame) (*remoteResponse, error) {
	data, err := json.Marshal(remoteRequest{
		Method:  method,
		Columns: frame.Columns(),
		Row:     frame.Values(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal remote request: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	msg, err := r.conn.RequestWithContext(reqCtx, r.subject, data)
	if err != nil {
		return nil, fmt.Errorf("remote %s failed: %w", method, err)
	}

	var resp remoteResponse
	if err := json.Unmarshal(msg.Data, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse remote response: %w", err)
	}
	if resp.Error != "" {
		return nil, &RemoteError{Message: resp.Error}
	}
	return &resp, nil
}
