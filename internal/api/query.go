package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/bull/text2sql-server/internal/pipeline"
	"github.com/bull/text2sql-server/internal/stream"
)

// QueryRequest is the body of the text-to-SQL endpoints. Query is accepted as
// an alias of Question; Question wins when both are set.
type QueryRequest struct {
	Question           string `json:"question"`
	Query              string `json:"query,omitempty"`
	Database           string `json:"database_name"`
	IncludeExplanation bool   `json:"include_explanation"`
	TopK               int    `json:"top_k,omitempty"`
}

// newQueryRequest returns a request with the defaults that apply to fields
// missing from the body.
func newQueryRequest() QueryRequest {
	return QueryRequest{IncludeExplanation: true}
}

// ValidateRequest is the body of the validate endpoint.
type ValidateRequest struct {
	SQL string `json:"sql"`
}

// ValidateResponse reports the validator's verdict.
type ValidateResponse struct {
	IsValid   bool     `json:"is_valid"`
	Errors    []string `json:"errors"`
	Warnings  []string `json:"warnings"`
	Formatted string   `json:"formatted_sql,omitempty"`
}

func (h *handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, CodeInvalidRequest, "request body too large", false, nil)
			return false
		}
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, "request body must be valid JSON", false, nil)
		return false
	}
	return true
}

func (q QueryRequest) pipelineRequest() pipeline.Request {
	question := q.Question
	if question == "" {
		question = q.Query
	}
	return pipeline.Request{
		Question:           question,
		Database:           q.Database,
		IncludeExplanation: q.IncludeExplanation,
		TopK:               q.TopK,
	}
}

func (h *handler) textToSQL(w http.ResponseWriter, r *http.Request) {
	req := newQueryRequest()
	if !h.decode(w, r, &req) {
		return
	}

	result, err := h.query.Generate(r.Context(), req.pipelineRequest())
	if err != nil {
		writePipelineError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// textToSQLStream answers with server-sent events. Once headers are written
// every failure is reported in-band as an error event.
func (h *handler) textToSQLStream(w http.ResponseWriter, r *http.Request) {
	req := newQueryRequest()
	if !h.decode(w, r, &req) {
		return
	}

	w.Header().Set("Content-Type", stream.ContentType)
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	em := stream.NewEmitter(w, h.chunkDelay)
	if err := h.query.Stream(r.Context(), req.pipelineRequest(), em); err != nil {
		h.logger.WarnContext(r.Context(), "Stream ended with error",
			"kind", pipeline.KindOf(err),
			"error", err,
		)
	}
}

func (h *handler) validateSQL(w http.ResponseWriter, r *http.Request) {
	var req ValidateRequest
	if !h.decode(w, r, &req) {
		return
	}

	res := h.query.Validate(req.SQL)
	resp := ValidateResponse{
		IsValid:  res.IsValid,
		Errors:   res.Errors,
		Warnings: res.Warnings,
	}
	if res.IsValid {
		resp.Formatted = h.query.Sanitize(req.SQL)
	}
	writeJSON(w, http.StatusOK, resp)
}
