package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/bull/text2sql-server/internal/pipeline"
)

// Error codes returned in the error envelope.
const (
	CodeInvalidRequest = "invalid_request"
	CodeSQLRejected    = "sql_validation_failed"
	CodeRetrieval      = "retrieval_error"
	CodeGeneration     = "generation_error"
	CodeNotFound       = "not_found"
	CodeIndexing       = "indexing_error"
	CodeInternal       = "internal_error"
)

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	ErrorCode string   `json:"error_code"`
	Message   string   `json:"message"`
	Retryable bool     `json:"retryable"`
	Details   []string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code, message string, retryable bool, details []string) {
	writeJSON(w, status, ErrorResponse{
		ErrorCode: code,
		Message:   message,
		Retryable: retryable,
		Details:   details,
	})
}

// writePipelineError maps a pipeline failure to a status code. Causes are
// logged, never returned.
func writePipelineError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var perr *pipeline.Error
	if !errors.As(err, &perr) {
		logger.ErrorContext(r.Context(), "Query failed", "error", err)
		writeError(w, http.StatusInternalServerError, CodeInternal, pipeline.SafeMessage(err), false, nil)
		return
	}

	switch {
	case perr.SQLRejected:
		writeError(w, http.StatusUnprocessableEntity, CodeSQLRejected, perr.Message, false, perr.Details)
	case perr.Kind == pipeline.KindValidation:
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, perr.Message, false, nil)
	case perr.Kind == pipeline.KindRetrieval:
		logger.ErrorContext(r.Context(), "Schema retrieval failed", "error", err)
		writeError(w, http.StatusBadGateway, CodeRetrieval, pipeline.SafeMessage(err), true, nil)
	case perr.Kind == pipeline.KindGeneration:
		logger.ErrorContext(r.Context(), "SQL generation failed", "error", err)
		writeError(w, http.StatusBadGateway, CodeGeneration, pipeline.SafeMessage(err), true, nil)
	default:
		logger.ErrorContext(r.Context(), "Query failed", "error", err)
		writeError(w, http.StatusInternalServerError, CodeInternal, pipeline.SafeMessage(err), false, nil)
	}
}
