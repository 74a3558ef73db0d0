package services

import (
	"errors"

	"github.com/aigoflow/rideguard/internal/models"
)

// Prediction texts shown to API callers.
const (
	MessageCancelled    = "The ride was canceled by the driver."
	MessageNotCancelled = "The ride was not canceled by the driver."
)

// PredictionResponse is the body returned by POST /predict and the NATS
// worker. Exactly one of Prediction and Error is set.
type PredictionResponse struct {
	ReqID        string         `json:"req_id,omitempty"`
	Prediction   string         `json:"prediction,omitempty"`
	Verdict      models.Outcome `json:"verdict,omitempty"`
	Probability  *float64       `json:"probability_cancelled,omitempty"`
	Confidence   *float64       `json:"confidence,omitempty"`
	Threshold    *float64       `json:"threshold,omitempty"`
	ModelVersion string         `json:"model_version,omitempty"`
	Error        string         `json:"error,omitempty"`
	ErrorKind    string         `json:"error_kind,omitempty"`
}

// Respond renders a verdict or an error; it holds no business logic.
func Respond(reqID string, verdict models.Verdict, err error) PredictionResponse {
	if err != nil {
		return PredictionResponse{
			ReqID:     reqID,
			Error:     ErrorMessage(err),
			ErrorKind: ErrorKind(err),
		}
	}

	threshold := verdict.Threshold
	resp := PredictionResponse{
		ReqID:        reqID,
		Prediction:   MessageNotCancelled,
		Verdict:      verdict.Outcome,
		Probability:  verdict.Probability,
		Confidence:   verdict.Confidence,
		Threshold:    &threshold,
		ModelVersion: verdict.ModelVersion,
	}
	if verdict.Cancelled() {
		resp.Prediction = MessageCancelled
	}
	return resp
}

// ErrorMessage is the caller-visible text for err.
func ErrorMessage(err error) string {
	var failed *InferenceFailedError
	if errors.As(err, &failed) {
		return "Prediction failed due to internal model processing error. Details: " + failed.Cause.Error()
	}
	return err.Error()
}
