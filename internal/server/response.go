package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/adsrocket/adsrocket/internal/graph"
	"github.com/adsrocket/adsrocket/internal/output"
	"github.com/adsrocket/adsrocket/internal/window"
)

var errBadRequest = errors.New("bad request")

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeSuccess(w http.ResponseWriter, r *http.Request, command string, data any) {
	writeJSON(w, http.StatusOK, output.Success(command, data).WithRequestID(requestIDFromContext(r.Context())))
}

func writeError(w http.ResponseWriter, r *http.Request, command string, err error) {
	writeJSON(w, statusFor(err), output.Failure(command, err).WithRequestID(requestIDFromContext(r.Context())))
}

func writeMessage(w http.ResponseWriter, r *http.Request, status int, message string) {
	writeJSON(w, status, output.Failure(r.URL.Path, errors.New(message)).WithRequestID(requestIDFromContext(r.Context())))
}

// statusFor maps classified errors to HTTP status codes. Anything the
// upstream reported that is not a caller mistake becomes 502.
func statusFor(err error) int {
	switch {
	case errors.Is(err, graph.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, graph.ErrAuth):
		return http.StatusUnauthorized
	case errors.Is(err, graph.ErrValidation), errors.Is(err, window.ErrInvalid), errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}
