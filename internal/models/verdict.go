package models

// Outcome is the binary prediction result.
type Outcome string

const (
	OutcomeCancelled    Outcome = "CANCELLED"
	OutcomeNotCancelled Outcome = "NOT_CANCELLED"
)

// Verdict is the result of one inference. Probability and Confidence are nil
// when the loaded pipeline only exposes class labels.
type Verdict struct {
	Outcome      Outcome  `json:"verdict"`
	Label        int      `json:"label"`
	Probability  *float64 `json:"probability_cancelled,omitempty"`
	Confidence   *float64 `json:"confidence,omitempty"` // percent, 50..100
	Threshold    float64  `json:"threshold"`
	ModelVersion string   `json:"model_version,omitempty"`
}

// Cancelled reports whether the ride is predicted to be cancelled.
func (v Verdict) Cancelled() bool {
	return v.Outcome == OutcomeCancelled
}
