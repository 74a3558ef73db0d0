package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/aigoflow/rideguard/internal/models"
	"github.com/aigoflow/rideguard/internal/pipeline"
	"github.com/aigoflow/rideguard/internal/repository"
	"github.com/aigoflow/rideguard/internal/schema"
	"github.com/aigoflow/rideguard/internal/services"
)

// stubPipeline cancels rides whose booking value exceeds 100.
type stubPipeline struct {
	columns []string
	panics  bool
}

func (s stubPipeline) Info() pipeline.Info {
	return pipeline.Info{Name: "stub", Version: "t1", Columns: s.columns}
}

func (s stubPipeline) Predict(ctx context.Context, f pipeline.Frame) (int, error) {
	p, err := s.PredictProba(ctx, f)
	if p[1] >= 0.5 {
		return 1, err
	}
	return 0, err
}

func (s stubPipeline) PredictProba(ctx context.Context, f pipeline.Frame) ([2]float64, error) {
	if s.panics {
		panic("tree index out of range")
	}
	v, _ := f.Lookup(models.ColBookingValue)
	if v.(float64) > 100 {
		return [2]float64{0.25, 0.75}, nil
	}
	return [2]float64{0.9, 0.1}, nil
}

var allColumns = append(append(append([]string{}, models.NumericColumns...), models.CategoricalColumns...), models.TemporalColumns...)

func newMux(svc *services.AuditedService) *http.ServeMux {
	mux := http.NewServeMux()
	coercer := schema.NewCoercer(schema.Options{})
	NewInferenceHandler(svc, coercer).RegisterRoutes(mux)
	NewFormHandler(svc, coercer).RegisterRoutes(mux)
	return mux
}

func serviceFor(p pipeline.Pipeline, loadErr error) *services.AuditedService {
	return services.NewAuditedService(services.NewInferenceService(p, loadErr, 0.5, nil), nil)
}

func readyService(repo repository.Repository) *services.AuditedService {
	return services.NewAuditedService(services.NewInferenceService(stubPipeline{columns: allColumns}, nil, 0.5, nil), repo)
}

const validBody = `{"booking_value": 250.0, "ride_distance": 5.2, "driver_ratings": 4.8, "customer_rating": 4.9,
	"avg_vtat": 3.0, "avg_ctat": 10.0, "vehicle_type": "auto", "pickup_location": "Downtown",
	"drop_location": "Airport", "payment_method": "upi", "day_of_week": 5, "is_weekend": 1,
	"hour_of_day": 13.5, "peak_hour": 0}`

func postPredict(t *testing.T, mux http.Handler, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/predict", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("response is not JSON: %v (%q)", err, rec.Body.String())
	}
	return rec, out
}

func TestPredictSuccess(t *testing.T) {
	mux := newMux(readyService(nil))
	rec, out := postPredict(t, mux, validBody)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if out["prediction"] != services.MessageCancelled || out["verdict"] != "CANCELLED" {
		t.Errorf("unexpected body %v", out)
	}
	if _, has := out["error"]; has {
		t.Error("success must not carry an error field")
	}
	if out["confidence"].(float64) != 75 || out["probability_cancelled"].(float64) != 0.75 {
		t.Errorf("unexpected probability fields %v", out)
	}
	if out["req_id"] == "" {
		t.Error("missing req_id")
	}

	// A trailing newline is whitespace, not a second value.
	if rec, _ := postPredict(t, mux, validBody+"\n"); rec.Code != http.StatusOK {
		t.Errorf("trailing newline: status = %d", rec.Code)
	}
}

func TestPredictWithoutTemporalFields(t *testing.T) {
	booking := []string{
		models.ColBookingValue, models.ColRideDistance, models.ColDriverRatings, models.ColCustomerRating,
		models.ColAvgVTAT, models.ColAvgCTAT, models.ColVehicleType, models.ColPickupLocation,
		models.ColDropLocation, models.ColPaymentMethod,
	}
	svc := serviceFor(stubPipeline{columns: booking}, nil)
	rec, out := postPredict(t, newMux(svc), `{"booking_value": 25.5, "ride_distance": 5.2, "driver_ratings": 4.8,
		"customer_rating": 4.9, "avg_vtat": 3, "avg_ctat": 10, "vehicle_type": "auto",
		"pickup_location": "Downtown", "drop_location": "Airport", "payment_method": "upi"}`)
	if rec.Code != http.StatusOK || out["prediction"] != services.MessageNotCancelled {
		t.Errorf("status %d body %v", rec.Code, out)
	}
}

func TestPredictErrors(t *testing.T) {
	tests := []struct {
		name     string
		svc      *services.AuditedService
		body     string
		status   int
		contains string
	}{
		{"invalid json", readyService(nil), `{"booking_value":`, http.StatusBadRequest, "Invalid JSON"},
		{"array body", readyService(nil), `[1, 2]`, http.StatusBadRequest, "Invalid JSON"},
		{"null body", readyService(nil), `null`, http.StatusBadRequest, "Invalid JSON"},
		{"second object", readyService(nil), validBody + `{"booking_value": 1}`, http.StatusBadRequest, "Invalid JSON"},
		{"trailing garbage", readyService(nil), validBody + ` xyz`, http.StatusBadRequest, "Invalid JSON"},
		{"non numeric", readyService(nil), strings.Replace(validBody, "250.0", `"abc"`, 1), http.StatusUnprocessableEntity, "booking_value"},
		{"missing field", readyService(nil), `{"booking_value": 1}`, http.StatusUnprocessableEntity, "field required"},
		{"model unavailable", serviceFor(nil, errors.New("artifact not found")), validBody, http.StatusServiceUnavailable, "artifact not found"},
		{"pipeline panic", serviceFor(stubPipeline{columns: allColumns, panics: true}, nil), validBody, http.StatusInternalServerError,
			"Prediction failed due to internal model processing error. Details: pipeline panic: tree index out of range"},
		{"schema mismatch", serviceFor(stubPipeline{columns: append([]string{"surge"}, allColumns...)}, nil), validBody,
			http.StatusInternalServerError, "missing column: surge"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, out := postPredict(t, newMux(tt.svc), tt.body)
			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d", rec.Code, tt.status)
			}
			msg, _ := out["error"].(string)
			if !strings.Contains(msg, tt.contains) {
				t.Errorf("error = %q, want it to contain %q", msg, tt.contains)
			}
			if _, has := out["prediction"]; has {
				t.Error("failure must not carry a prediction field")
			}
			if _, has := out["error_kind"]; has {
				t.Error("error_kind is not part of the HTTP body")
			}
		})
	}
}

func TestPredictMethodNotAllowed(t *testing.T) {
	rec := httptest.NewRecorder()
	newMux(readyService(nil)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/predict", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	rec := httptest.NewRecorder()
	newMux(readyService(nil)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Errorf("healthy: %d %q", rec.Code, rec.Body.String())
	}

	degraded := serviceFor(nil, errors.New("bad artifact"))
	rec = httptest.NewRecorder()
	newMux(degraded).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable || rec.Body.String() != "degraded: bad artifact" {
		t.Errorf("degraded: %d %q", rec.Code, rec.Body.String())
	}
}

func TestLogs(t *testing.T) {
	repo := repository.NewMemoryRepository(100)
	mux := newMux(readyService(repo))
	for i := 0; i < 3; i++ {
		postPredict(t, mux, validBody)
	}
	postPredict(t, mux, `{"booking_value": "abc"}`)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/logs?limit=2", nil))
	var logs []models.RequestLog
	if err := json.Unmarshal(rec.Body.Bytes(), &logs); err != nil {
		t.Fatalf("logs not JSON: %v", err)
	}
	if len(logs) != 2 {
		t.Fatalf("got %d logs, want 2", len(logs))
	}
	if logs[0].ErrorKind != services.KindValidation || logs[1].Outcome != "CANCELLED" {
		t.Errorf("unexpected logs %+v", logs)
	}
	if strings.Contains(rec.Body.String(), "Downtown") {
		t.Error("audit rows must not contain ride attributes")
	}
}

func TestFormGet(t *testing.T) {
	svc := readyService(nil)
	mux := http.NewServeMux()
	h := NewFormHandler(svc, schema.NewCoercer(schema.Options{}))
	h.now = func() time.Time { return time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC) } // Saturday
	h.RegisterRoutes(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	body := rec.Body.String()

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	for _, want := range []string{
		"RideGuard - Ride Cancellation Predictor",
		`<option value="5" selected>Saturday</option>`,
		`<option value="premier sedan" selected>Premier Sedan</option>`,
		`<option value="upi">UPI</option>`,
		`name="ride_time" type="time" value="00:00"`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("form missing %q", want)
		}
	}
	if strings.Contains(body, `type="submit" disabled`) {
		t.Error("button must be enabled when the model is available")
	}
}

func formValues() url.Values {
	return url.Values{
		"booking_value":   {"250"},
		"ride_distance":   {"5.2"},
		"driver_ratings":  {"4.8"},
		"customer_rating": {"4.9"},
		"avg_vtat":        {"3"},
		"avg_ctat":        {"10"},
		"vehicle_type":    {"auto"},
		"pickup_location": {"Downtown"},
		"drop_location":   {"Airport"},
		"payment_method":  {"upi"},
		"day_of_week":     {"5"},
		"ride_time":       {"13:30"},
		"peak_hour":       {"no"},
	}
}

func postForm(mux http.Handler, v url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(v.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestFormSubmit(t *testing.T) {
	mux := newMux(readyService(nil))

	rec := postForm(mux, formValues())
	body := rec.Body.String()
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(body, `class="result cancelled">Your Ride is likely to be CANCELLED`) {
		t.Error("missing cancellation-likely panel")
	}
	if !strings.Contains(body, "Probability of cancellation: 0.75") || !strings.Contains(body, "Confidence: 75.00%") {
		t.Error("missing probability and confidence")
	}
	if !strings.Contains(body, `value="Downtown"`) {
		t.Error("entered values should be kept")
	}

	v := formValues()
	v.Set("booking_value", "20")
	body = postForm(mux, v).Body.String()
	if !strings.Contains(body, `class="result kept">Your Ride is unlikely to be Cancelled`) {
		t.Error("missing cancellation-unlikely panel")
	}
}

func TestFormClampsWidgets(t *testing.T) {
	values := map[string]string{
		"booking_value": "-5", "ride_distance": "3", "driver_ratings": "7",
		"customer_rating": "0.2", "avg_vtat": "abc", "avg_ctat": "1e400",
	}
	clampWidgets(values)
	want := map[string]string{
		"booking_value": "0", "ride_distance": "3", "driver_ratings": "5",
		"customer_rating": "1", "avg_vtat": "abc", "avg_ctat": "1e400",
	}
	for k, w := range want {
		if values[k] != w {
			t.Errorf("%s = %q, want %q", k, values[k], w)
		}
	}
}

func TestFormValidationInline(t *testing.T) {
	mux := newMux(readyService(nil))

	v := formValues()
	v.Set("avg_vtat", "soon")
	rec := postForm(mux, v)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `<div class="field-error">must be numeric</div>`) {
		t.Error("missing inline error")
	}

	v = formValues()
	v.Set("ride_time", "25:99")
	rec = postForm(mux, v)
	if rec.Code != http.StatusUnprocessableEntity || !strings.Contains(rec.Body.String(), "expected HH:MM") {
		t.Errorf("ride_time error not shown: %d", rec.Code)
	}
}

func TestFormUnavailable(t *testing.T) {
	svc := serviceFor(nil, errors.New("artifact not found"))
	mux := newMux(svc)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	body := rec.Body.String()
	if rec.Code != http.StatusOK || !strings.Contains(body, "Prediction is unavailable") || !strings.Contains(body, `type="submit" disabled`) {
		t.Errorf("degraded form not rendered correctly: %d", rec.Code)
	}

	rec = postForm(mux, formValues())
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestFormUnknownPath(t *testing.T) {
	rec := httptest.NewRecorder()
	newMux(readyService(nil)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/favicon.ico", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d", rec.Code)
	}
}
