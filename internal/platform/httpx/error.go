package httpx

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/Prince-Affedzie/Freshy-Food-Backend/internal/platform/requestctx"
)

const (
	maxCodeLen    = 80
	maxMessageLen = 512
	maxIDLen      = 80
)

// Error is the JSON error envelope: {success, error, message, status, request_id, trace_id, ...details}.
type Error struct {
	Code    string
	Message string
	Status  int
	Details map[string]any
}

// NewError builds an envelope. A zero status means 500.
func NewError(code, message string, status int) Error {
	if status == 0 {
		status = http.StatusInternalServerError
	}
	return Error{
		Code:    clip(code, maxCodeLen),
		Message: clip(message, maxMessageLen),
		Status:  status,
	}
}

// WithDetails merges extra top-level fields into the envelope. Reserved keys are never overwritten.
func (e Error) WithDetails(details map[string]any) Error {
	if len(details) == 0 {
		return e
	}
	merged := make(map[string]any, len(e.Details)+len(details))
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	e.Details = merged
	return e
}

// Body renders the envelope for the request in ctx.
func (e Error) Body(ctx context.Context) map[string]any {
	status := e.Status
	if status == 0 {
		status = http.StatusInternalServerError
	}
	body := make(map[string]any, 6+len(e.Details))
	for k, v := range e.Details {
		body[k] = v
	}
	body["success"] = false
	body["error"] = e.Code
	body["message"] = e.Message
	body["status"] = status
	if id := clip(middleware.GetReqID(ctx), maxIDLen); id != "" {
		body["request_id"] = id
	}
	if id := clip(requestctx.TraceID(ctx), maxIDLen); id != "" {
		body["trace_id"] = id
	}
	return body
}

// WriteError writes err as JSON with its status code.
func WriteError(ctx context.Context, w http.ResponseWriter, err Error) {
	status := err.Status
	if status == 0 {
		status = http.StatusInternalServerError
	}
	WriteJSON(w, status, err.Body(ctx))
}

// clip flattens line breaks so ids and messages stay single-line in logs and headers.
func clip(value string, limit int) string {
	value = strings.NewReplacer("\r", " ", "\n", " ").Replace(value)
	value = strings.TrimSpace(value)
	if len(value) > limit {
		value = value[:limit]
	}
	return value
}
