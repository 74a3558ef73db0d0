package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/oklog/ulid/v2"

	"github.com/aigoflow/rideguard/internal/models"
	"github.com/aigoflow/rideguard/internal/schema"
	"github.com/aigoflow/rideguard/internal/services"
)

const (
	maxBodyBytes    = 1 << 20
	defaultLogLimit = 50
	maxLogLimit     = 1000
)

type InferenceHandler struct {
	inferenceService *services.AuditedService
	coercer          *schema.Coercer
}

func NewInferenceHandler(inferenceService *services.AuditedService, coercer *schema.Coercer) *InferenceHandler {
	return &InferenceHandler{
		inferenceService: inferenceService,
		coercer:          coercer,
	}
}

func (h *InferenceHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/predict", h.handlePredict)
	mux.HandleFunc("/healthz", h.handleHealth)
	mux.HandleFunc("/logs", h.handleLogs)
}

func (h *InferenceHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := h.inferenceService.LoadError(); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = fmt.Fprintf(w, "degraded: %v", err)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *InferenceHandler) handlePredict(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSON(w, http.StatusMethodNotAllowed, services.PredictionResponse{Error: "POST only"})
		return
	}

	reqID := r.Header.Get("X-Request-ID")
	if reqID == "" {
		reqID = ulid.Make().String()
	}
	call := services.PredictionRequest{
		TraceID: r.Header.Get("X-Trace-ID"),
		ReqID:   reqID,
		Source:  services.SourceHTTP,
	}

	var raw map[string]any
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.UseNumber()
	err := dec.Decode(&raw)
	if err == nil && raw == nil {
		err = errors.New("null body")
	}
	if err == nil {
		// Exactly one object; anything after it is rejected.
		if extra := dec.Decode(&struct{}{}); !errors.Is(extra, io.EOF) {
			err = errors.New("trailing data after object")
		}
	}
	if err != nil {
		slog.Debug("Rejected request body", "req_id", reqID, "error", err)
		writeJSON(w, http.StatusBadRequest, services.PredictionResponse{ReqID: reqID, Error: "Invalid JSON: expected an object"})
		return
	}

	record, err := h.coercer.Coerce(raw)
	if err != nil {
		h.inferenceService.RecordRejection(r.Context(), call, err)
		h.writeResult(w, services.Respond(reqID, models.Verdict{}, err), err)
		return
	}

	call.Record = record
	verdict, err := h.inferenceService.ProcessPrediction(r.Context(), call)
	h.writeResult(w, services.Respond(reqID, verdict, err), err)
}

func (h *InferenceHandler) writeResult(w http.ResponseWriter, resp services.PredictionResponse, err error) {
	// error_kind is a NATS reply field; HTTP callers get it as the status code.
	resp.ErrorKind = ""
	writeJSON(w, statusFor(err), resp)
}

func (h *InferenceHandler) handleLogs(w http.ResponseWriter, r *http.Request) {
	limit := defaultLogLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			limit = min(n, maxLogLimit)
		}
	}

	logs, err := h.inferenceService.GetRequestLogs(r.Context(), limit)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to get logs: %v", err), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, logs)
}

// statusFor maps the error taxonomy to HTTP status codes. InferenceFailed
// and anything unexpected are 500.
func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, schema.ErrValidation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, services.ErrModelUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("Failed to write response", "error", err)
	}
}
