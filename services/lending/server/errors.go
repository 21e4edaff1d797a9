package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"lendpool/native/bank"
	"lendpool/native/lending"
)

var errBadRequest = errors.New("bad request")

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"requestId,omitempty"`
}

// statusFor maps engine failure kinds onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, lending.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, lending.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, lending.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, lending.ErrOutOfBounds), errors.Is(err, bank.ErrInsufficientBalance):
		return http.StatusUnprocessableEntity
	case errors.Is(err, lending.ErrInactive):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// kindOf names the failure kind for metrics labels.
func kindOf(err error) string {
	switch statusFor(err) {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusForbidden:
		return "unauthorized"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "invalid_state"
	case http.StatusUnprocessableEntity:
		return "out_of_bounds"
	case http.StatusServiceUnavailable:
		return "inactive"
	default:
		return "internal"
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg, RequestID: w.Header().Get("X-Request-ID")})
}
