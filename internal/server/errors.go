package server

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/warydiaz/json-ingestion-platform/internal/config"
	"github.com/warydiaz/json-ingestion-platform/internal/pagination"
	"github.com/warydiaz/json-ingestion-platform/internal/query"
	"github.com/warydiaz/json-ingestion-platform/internal/queue"
	"github.com/warydiaz/json-ingestion-platform/internal/service"
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// clientErrors maps client input errors to their response codes.
var clientErrors = []struct {
	err    error
	status int
	code   string
}{
	{query.ErrEmptyFieldPath, http.StatusBadRequest, "EMPTY_FIELD_PATH"},
	{query.ErrInvalidFieldPath, http.StatusBadRequest, "INVALID_FIELD_PATH"},
	{pagination.ErrInvalidCursor, http.StatusBadRequest, "INVALID_CURSOR"},
	{pagination.ErrInvalidLimit, http.StatusBadRequest, "INVALID_LIMIT"},
	{config.ErrDatasetNotFound, http.StatusNotFound, "NOT_FOUND"},
	{service.ErrJobNotFound, http.StatusNotFound, "NOT_FOUND"},
	{config.ErrDatasetConfig, http.StatusUnprocessableEntity, "DATASET_CONFIG"},
	{queue.ErrPublisherUnavailable, http.StatusServiceUnavailable, "QUEUE_UNAVAILABLE"},
	{service.ErrJobInProgress, http.StatusConflict, "JOB_IN_PROGRESS"},
}

// respondError writes err with the status its kind maps to. Unknown errors
// are logged and reported without detail.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	for _, ce := range clientErrors {
		if errors.Is(err, ce.err) {
			writeError(w, ce.status, ce.code, err.Error())
			return
		}
	}
	s.logger.Error("request error", "method", r.Method, "path", r.URL.Path, "error", err)
	writeError(w, http.StatusInternalServerError, "INTERNAL", "internal server error")
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: errorDetail{Code: code, Message: message}})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode response", "error", err)
	}
}
