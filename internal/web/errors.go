package web

// errors.go turns errors into JSON responses.
//
// Every error goes through ingest.MapError, so clients get a stable code and
// a suggested action while the technical error is logged with the request
// id for correlation. The HTTP status is derived from the code.

import (
	"net/http"
	"strings"

	"github.com/JonMunkholm/aggrada/internal/ingest"
	"github.com/JonMunkholm/aggrada/internal/logging"
)

// ErrorResponse is the JSON body of a failed request.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

func newErrorResponse(msg ingest.UserMessage) ErrorResponse {
	return ErrorResponse{
		Error:   msg.Message,
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
	}
}

// statusFor maps an error code to an HTTP status.
func statusFor(code string) int {
	switch {
	case code == "RUN001":
		return http.StatusTooManyRequests
	case code == "STO001":
		return http.StatusServiceUnavailable
	case code == "SPA001":
		return http.StatusNotFound
	case code == "PER003":
		return http.StatusUnprocessableEntity
	case strings.HasPrefix(code, "PER"), code == "JOB001", code == "SRC001":
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// respondError logs err and writes its mapped form.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	msg := ingest.MapError(err)
	status := statusFor(msg.Code)

	logger := logging.FromContext(r.Context())
	args := []any{
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", msg.Code,
	}
	if status >= http.StatusInternalServerError {
		logger.Error("request error", args...)
	} else {
		logger.Warn("request error", args...)
	}

	if status == http.StatusTooManyRequests {
		w.Header().Set("Retry-After", "30")
	}
	writeJSON(w, status, newErrorResponse(msg))
}
