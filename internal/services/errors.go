package services

import (
	"errors"

	"github.com/aigoflow/rideguard/internal/pipeline"
	"github.com/aigoflow/rideguard/internal/schema"
)

// ErrModelUnavailable is returned by every prediction once the startup load
// has failed. The load cause is wrapped alongside it when known.
var ErrModelUnavailable = errors.New("model unavailable")

// InferenceFailedError wraps anything the pipeline raised during prediction.
type InferenceFailedError struct {
	Cause error
}

func (e *InferenceFailedError) Error() string {
	return "inference failed: " + e.Cause.Error()
}

func (e *InferenceFailedError) Unwrap() error {
	return e.Cause
}

// Error kinds reported in audit rows, metrics and NATS replies.
const (
	KindValidation       = "validation"
	KindModelUnavailable = "model_unavailable"
	KindInferenceFailed  = "inference_failed"
	KindInternal         = "internal"
)

// ErrorKind classifies err into one of the Kind constants. nil yields "".
func ErrorKind(err error) string {
	var failed *InferenceFailedError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, schema.ErrValidation):
		return KindValidation
	case errors.Is(err, ErrModelUnavailable):
		return KindModelUnavailable
	case errors.As(err, &failed):
		return KindInferenceFailed
	default:
		return KindInternal
	}
}

// LogMessage renders err for audit rows and log lines. Text reported by a
// remote pipeline is replaced since it may echo the submitted row.
func LogMessage(err error) string {
	if err == nil {
		return ""
	}
	var remote *pipeline.RemoteError
	if errors.As(err, &remote) {
		return "inference failed: remote pipeline error"
	}
	return err.Error()
}
