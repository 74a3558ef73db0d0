package client

import "time"

// RideRequest is one booking to score. The temporal fields are optional
// and must be sent together when the deployed pipeline uses them.
type RideRequest struct {
	BookingValue   float64 `json:"booking_value"`
	RideDistance   float64 `json:"ride_distance"`
	DriverRatings  float64 `json:"driver_ratings"`
	CustomerRating float64 `json:"customer_rating"`
	AvgVTAT        float64 `json:"avg_vtat"`
	AvgCTAT        float64 `json:"avg_ctat"`
	VehicleType    string  `json:"vehicle_type"`
	PickupLocation string  `json:"pickup_location"`
	DropLocation   string  `json:"drop_location"`
	PaymentMethod  string  `json:"payment_method"`

	DayOfWeek *int   `json:"day_of_week,omitempty"` // Monday=0
	RideDate  string `json:"ride_date,omitempty"`   // YYYY-MM-DD, alternative to DayOfWeek
	RideTime  string `json:"ride_time,omitempty"`   // HH:MM
	PeakHour  *bool  `json:"peak_hour,omitempty"`
}

// PredictionMessage is the JetStream work item.
type PredictionMessage struct {
	TraceID string      `json:"trace_id,omitempty"`
	ReqID   string      `json:"req_id"`
	Record  RideRequest `json:"record"`
	ReplyTo string      `json:"reply_to,omitempty"`
}

// PredictResponse is returned by both transports. Exactly one of
// Prediction and Error is set.
type PredictResponse struct {
	ReqID        string   `json:"req_id,omitempty"`
	Prediction   string   `json:"prediction,omitempty"`
	Verdict      string   `json:"verdict,omitempty"`
	Probability  *float64 `json:"probability_cancelled,omitempty"`
	Confidence   *float64 `json:"confidence,omitempty"`
	Threshold    *float64 `json:"threshold,omitempty"`
	ModelVersion string   `json:"model_version,omitempty"`
	Error        string   `json:"error,omitempty"`
	ErrorKind    string   `json:"error_kind,omitempty"`
}

// Cancelled reports whether the ride is predicted to be cancelled.
func (r *PredictResponse) Cancelled() bool {
	return r.Verdict == "CANCELLED"
}

// HealthStatus represents replica health information
type HealthStatus struct {
	ModelName    string    `json:"model_name"`
	Instance     string    `json:"instance"`
	Status       string    `json:"status"`
	Reason       string    `json:"reason,omitempty"`
	LastActivity time.Time `json:"last_activity"`
	Uptime       string    `json:"uptime"`
	Capabilities []string  `json:"capabilities"`
	Endpoint     string    `json:"endpoint"`
	NATSTopic    string    `json:"nats_topic"`
	ModelVersion string    `json:"model_version,omitempty"`
	Threshold    float64   `json:"threshold"`
}
