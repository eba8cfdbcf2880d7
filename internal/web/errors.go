package web

// errors.go maps pipeline errors to HTTP responses.
//
// Status codes tell the trigger whether redelivery can help: 4xx for
// payloads that will never succeed, 5xx (and 503 with Retry-After when no
// invocation slot is free) for failures worth redelivering.

import (
	"context"
	"errors"
	"net/http"

	"github.com/JonMunkholm/foodingest/internal/blob"
	"github.com/JonMunkholm/foodingest/internal/food"
	"github.com/JonMunkholm/foodingest/internal/ingest"
	"github.com/JonMunkholm/foodingest/internal/logging"
)

// ErrorResponse is the JSON body of every error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

func newErrorResponse(err error) ErrorResponse {
	msg := food.MapError(err)
	return ErrorResponse{
		Error:   err.Error(),
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
	}
}

// statusFor picks the HTTP status for err.
func statusFor(err error) int {
	var (
		malformed *food.MalformedEventError
		parse     *food.ParseError
		blobErr   *food.BlobReadError
	)
	switch {
	case errors.As(err, &malformed):
		return http.StatusBadRequest
	case errors.Is(err, ingest.ErrInvocationNotFound):
		return http.StatusNotFound
	case errors.Is(err, food.ErrTooManyInvocations):
		return http.StatusServiceUnavailable
	case errors.Is(err, blob.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.As(err, &parse):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &blobErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// respondError logs err with the request context and writes the mapped
// status and message.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	resp := newErrorResponse(err)

	logging.FromContext(r.Context()).Error("request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"code", resp.Code,
		"error", err,
	)

	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "30")
	}
	writeJSON(w, status, resp)
}
