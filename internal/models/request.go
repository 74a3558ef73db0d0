package models

import "time"

// RequestLog represents one audited prediction. It never carries ride attributes.
type RequestLog struct {
	Timestamp    time.Time `json:"ts"`
	TraceID      string    `json:"trace_id"`
	ReqID        string    `json:"req_id"`
	WorkerID     string    `json:"worker_id"`
	Source       string    `json:"source"`
	ReplyTo      string    `json:"reply_to"`
	Outcome      string    `json:"outcome"`
	Probability  *float64  `json:"probability,omitempty"`
	Threshold    float64   `json:"threshold"`
	ModelVersion string    `json:"model_version"`
	DurationMs   float64   `json:"dur_ms"`
	Status       string    `json:"status"`
	ErrorKind    string    `json:"error_kind,omitempty"`
	Error        string    `json:"error"`
}
