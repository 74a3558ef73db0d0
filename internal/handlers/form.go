package handlers

import (
	"embed"
	"errors"
	"html/template"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/aigoflow/rideguard/internal/models"
	"github.com/aigoflow/rideguard/internal/schema"
	"github.com/aigoflow/rideguard/internal/services"
)

//go:embed templates/form.html
var templateFS embed.FS

// labelOverrides keeps acronyms upper case where title casing would not.
var labelOverrides = map[string]string{
	"suv": "SUV",
	"upi": "UPI",
}

type option struct {
	Value    string
	Label    string
	Selected bool
}

type fieldView struct {
	Name, Label, Value string
	Min, Max, Step     string
	Error              string
}

type choiceView struct {
	Name, Label string
	Options     []option
	Error       string
}

type formResult struct {
	Cancelled   bool
	Probability string
	Confidence  string
}

type formView struct {
	Values         map[string]string
	Errors         map[string]string
	VehicleOptions []option
	PaymentOptions []option
	DayOptions     []option
	PeakOptions    []option
	Result         *formResult
	Error          string
	Unavailable    string
}

// FormHandler serves the interactive prediction form at /.
type FormHandler struct {
	inferenceService *services.AuditedService
	coercer          *schema.Coercer
	tmpl             *template.Template
	now              func() time.Time
}

func NewFormHandler(inferenceService *services.AuditedService, coercer *schema.Coercer) *FormHandler {
	tmpl := template.Must(template.New("form.html").Funcs(template.FuncMap{
		"field":  fieldFor,
		"choice": choiceFor,
		"lower":  strings.ToLower,
	}).ParseFS(templateFS, "templates/form.html"))

	return &FormHandler{
		inferenceService: inferenceService,
		coercer:          coercer,
		tmpl:             tmpl,
		now:              time.Now,
	}
}

func (h *FormHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/", h.handleForm)
}

func (h *FormHandler) handleForm(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	switch r.Method {
	case http.MethodGet, http.MethodHead:
		h.render(w, http.StatusOK, h.newView(h.defaults()))
	case http.MethodPost:
		h.handleSubmit(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *FormHandler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	values := h.defaults()
	for key := range values {
		if v, ok := r.PostForm[key]; ok && len(v) > 0 {
			values[key] = strings.TrimSpace(v[0])
		}
	}
	clampWidgets(values)

	view := h.newView(values)
	call := services.PredictionRequest{ReqID: ulid.Make().String(), Source: services.SourceForm}

	if !h.inferenceService.Available() {
		h.render(w, http.StatusServiceUnavailable, view)
		return
	}

	raw := make(map[string]any, len(values))
	for k, v := range values {
		raw[k] = v
	}

	record, err := h.coercer.Coerce(raw)
	if err != nil {
		h.inferenceService.RecordRejection(r.Context(), call, err)
		var verr *schema.ValidationError
		if errors.As(err, &verr) {
			view.Errors[formField(verr.Field)] = verr.Reason
		} else {
			view.Error = err.Error()
		}
		h.render(w, http.StatusUnprocessableEntity, view)
		return
	}

	call.Record = record
	verdict, err := h.inferenceService.ProcessPrediction(r.Context(), call)
	if err != nil {
		view.Error = services.ErrorMessage(err)
		h.render(w, statusFor(err), view)
		return
	}

	result := &formResult{Cancelled: verdict.Cancelled()}
	if verdict.Probability != nil {
		result.Probability = strconv.FormatFloat(*verdict.Probability, 'f', 2, 64)
		result.Confidence = strconv.FormatFloat(*verdict.Confidence, 'f', 2, 64)
	}
	view.Result = result
	h.render(w, http.StatusOK, view)
}

func (h *FormHandler) render(w http.ResponseWriter, status int, view formView) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := h.tmpl.Execute(w, view); err != nil {
		slog.Error("Failed to render form", "error", err)
	}
}

// defaults mirrors the initial widget state: ratings at 3.0, today's day, midnight.
func (h *FormHandler) defaults() map[string]string {
	return map[string]string{
		models.ColBookingValue:   "0.00",
		models.ColRideDistance:   "0.00",
		models.ColDriverRatings:  "3.0",
		models.ColCustomerRating: "3.0",
		models.ColAvgVTAT:        "0.00",
		models.ColAvgCTAT:        "0.00",
		models.ColVehicleType:    models.VehicleTypes[0],
		models.ColPickupLocation: "",
		models.ColDropLocation:   "",
		models.ColPaymentMethod:  models.PaymentMethods[0],
		models.ColDayOfWeek:      strconv.Itoa(schema.DayOfWeek(h.now())),
		schema.KeyRideTime:       "00:00",
		models.ColPeakHour:       "no",
	}
}

func (h *FormHandler) newView(values map[string]string) formView {
	titler := cases.Title(language.English)

	view := formView{
		Values:         values,
		Errors:         map[string]string{},
		VehicleOptions: labelled(titler, models.VehicleTypes),
		PaymentOptions: labelled(titler, models.PaymentMethods),
		PeakOptions:    []option{{Value: "no", Label: "No"}, {Value: "yes", Label: "Yes"}},
	}
	for i, name := range schema.DayNames() {
		view.DayOptions = append(view.DayOptions, option{Value: strconv.Itoa(i), Label: name})
	}
	if err := h.inferenceService.LoadError(); err != nil {
		view.Unavailable = err.Error()
	}
	return view
}

func labelled(titler cases.Caser, values []string) []option {
	opts := make([]option, len(values))
	for i, v := range values {
		label, ok := labelOverrides[v]
		if !ok {
			label = titler.String(v)
		}
		opts[i] = option{Value: v, Label: label}
	}
	return opts
}

// clampWidgets applies the widget bounds: ratings in [1, 5], other numbers non-negative.
// Unparseable values are left for the coercer to reject.
func clampWidgets(values map[string]string) {
	for _, col := range models.NumericColumns {
		f, err := strconv.ParseFloat(values[col], 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			continue
		}
		switch col {
		case models.ColDriverRatings, models.ColCustomerRating:
			f = math.Min(math.Max(f, 1), 5)
		default:
			f = math.Max(f, 0)
		}
		values[col] = strconv.FormatFloat(f, 'f', -1, 64)
	}
}

// formField maps a validation error to the widget that produced it.
func formField(field string) string {
	if field == models.ColHourOfDay {
		return schema.KeyRideTime
	}
	return field
}

func fieldFor(view formView, name, label, min, max, step string) fieldView {
	return fieldView{
		Name:  name,
		Label: label,
		Value: view.Values[name],
		Min:   min,
		Max:   max,
		Step:  step,
		Error: view.Errors[name],
	}
}

func choiceFor(view formView, name, label string, options []option) choiceView {
	selected := view.Values[name]
	opts := make([]option, len(options))
	for i, o := range options {
		o.Selected = o.Value == selected
		opts[i] = o
	}
	return choiceView{Name: name, Label: label, Options: opts, Error: view.Errors[name]}
}
