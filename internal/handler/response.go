package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/efreitasn/futuresim/internal/domain"
)

// timeLayout is the wire format of every timestamp.
const timeLayout = "2006-01-02T15:04:05Z"

// WriteJSON writes a JSON response with the given status code and data.
// Sets Content-Type to application/json before writing the status code.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data) // Write error intentionally ignored in response helper
}

// errorResponse is the standard error response format.
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// WriteError writes a standard error response with the given status code,
// error code, and human-readable message.
func WriteError(w http.ResponseWriter, status int, errorCode, message string) {
	WriteJSON(w, status, errorResponse{
		Error:   errorCode,
		Message: message,
	})
}

// ParseJSON decodes the request body as JSON into v.
// It validates that the Content-Type header is application/json and
// returns an error for missing/incorrect content type or malformed JSON.
func ParseJSON(r *http.Request, v any) error {
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(ct, "application/json") {
		return fmt.Errorf("Request body must be valid JSON with Content-Type: application/json")
	}

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("Request body must be valid JSON with Content-Type: application/json")
	}

	return nil
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidConfig):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrGatewayNotFound),
		errors.Is(err, domain.ErrAccountNotFound),
		errors.Is(err, domain.ErrOrderNotFound),
		errors.Is(err, domain.ErrSymbolNotFound),
		errors.Is(err, domain.ErrWebhookNotFound),
		errors.Is(err, domain.ErrNoReferencePrice):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInsufficientFunds):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrDependencyNotConnected),
		errors.Is(err, domain.ErrGatewayBusy),
		errors.Is(err, domain.ErrGatewayExists),
		errors.Is(err, domain.ErrAlreadyTerminal):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// mapError writes the error response for a domain error. Validation
// errors carry their own message; sentinels use their code as message.
func mapError(w http.ResponseWriter, err error) {
	var validationErr *domain.ValidationError
	if errors.As(err, &validationErr) {
		WriteError(w, http.StatusBadRequest, domain.ErrInvalidConfig.Error(), validationErr.Message)
		return
	}

	status := statusFor(err)
	if status == http.StatusInternalServerError {
		WriteError(w, status, "internal_error", "An unexpected error occurred")
		return
	}
	code := err.Error()
	for _, sentinel := range []error{
		domain.ErrInvalidConfig, domain.ErrGatewayNotFound, domain.ErrAccountNotFound,
		domain.ErrOrderNotFound, domain.ErrSymbolNotFound, domain.ErrWebhookNotFound,
		domain.ErrNoReferencePrice, domain.ErrInsufficientFunds, domain.ErrDependencyNotConnected,
		domain.ErrGatewayBusy, domain.ErrGatewayExists, domain.ErrAlreadyTerminal,
	} {
		if errors.Is(err, sentinel) {
			code = sentinel.Error()
			break
		}
	}
	WriteError(w, status, code, err.Error())
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}
