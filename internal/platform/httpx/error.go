package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/stitchfield/api/internal/platform/requestctx"
)

// Error type values defined by the protocol's Error schema.
const (
	TypeInvalidRequest       = "invalid_request"
	TypeRequestNotIdempotent = "request_not_idempotent"
	TypeProcessingError      = "processing_error"
	TypeServiceUnavailable   = "service_unavailable"
)

// Error represents the canonical JSON error envelope returned by the API.
type Error struct {
	Type      string
	Code      string
	Message   string
	Param     string
	Status    int
	RequestID string
	TraceID   string
}

// NewError constructs a new Error with the provided parameters. The type
// field is derived from the HTTP status unless overridden with WithType.
func NewError(code, message string, status int) Error {
	if status == 0 {
		status = http.StatusInternalServerError
	}
	return Error{
		Type:    typeForStatus(status),
		Code:    sanitize(code, 80),
		Message: sanitize(message, 512),
		Status:  status,
	}
}

// WithType overrides the envelope's type discriminant.
func (e Error) WithType(t string) Error {
	e.Type = sanitize(t, 40)
	return e
}

// WithParam sets the JSONPath of the request field the error refers to.
func (e Error) WithParam(param string) Error {
	e.Param = sanitize(param, 256)
	return e
}

// WithRequestID sets the request identifier on the error payload.
func (e Error) WithRequestID(id string) Error {
	e.RequestID = sanitize(id, 80)
	return e
}

// WithTraceID sets the trace identifier on the error payload.
func (e Error) WithTraceID(id string) Error {
	e.TraceID = sanitize(id, 64)
	return e
}

// WriteError writes the structured error as JSON to the provided response writer.
func WriteError(ctx context.Context, w http.ResponseWriter, err Error) {
	status := err.Status
	if status == 0 {
		status = http.StatusInternalServerError
	}

	requestID := err.RequestID
	if requestID == "" {
		requestID = sanitize(middleware.GetReqID(ctx), 80)
	}

	traceID := err.TraceID
	if traceID == "" {
		traceID = sanitize(requestctx.TraceID(ctx), 64)
	}

	errType := err.Type
	if errType == "" {
		errType = typeForStatus(status)
	}

	payload := map[string]any{
		"type":    errType,
		"code":    err.Code,
		"message": err.Message,
	}
	if err.Param != "" {
		payload["param"] = err.Param
	}
	if requestID != "" {
		payload["request_id"] = requestID
	}
	if traceID != "" {
		payload["trace_id"] = traceID
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func typeForStatus(status int) string {
	switch {
	case status == http.StatusServiceUnavailable:
		return TypeServiceUnavailable
	case status >= 500:
		return TypeProcessingError
	case status >= 400:
		return TypeInvalidRequest
	default:
		return TypeProcessingError
	}
}

func sanitize(value string, limit int) string {
	if limit <= 0 {
		limit = 256
	}
	value = strings.ReplaceAll(value, "\n", " ")
	value = strings.ReplaceAll(value, "\r", " ")
	value = strings.TrimSpace(value)
	if len(value) > limit {
		value = value[:limit]
	}
	return value
}
