package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/rudder-cd/rudder/domain"
)

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("Failed to encode response",
			"layer", "server",
			"operation", "write_json",
			"error", err)
	}
}

// writeError maps a service error onto an HTTP status and a JSON error
// body. Confirmation requests and deployment failures carry their payload
// (the minted ticket, the per-service result) so the caller can act on it.
func writeError(w http.ResponseWriter, err error) {
	var needs *domain.NeedsConfirmationError
	if errors.As(err, &needs) {
		writeJSON(w, http.StatusAccepted, map[string]any{
			"status": "needs_confirmation",
			"error":  needs.Reason,
			"ticket": ticketView(needs.Ticket),
		})
		return
	}

	var partial *domain.PartialFailureError
	if errors.As(err, &partial) {
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error":  partial.Reason,
			"result": deploymentView(partial.Result),
		})
		return
	}
	var total *domain.TotalFailureError
	if errors.As(err, &total) {
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error":  total.Reason,
			"result": deploymentView(total.Result),
		})
		return
	}

	var denied *domain.DeniedError
	if errors.As(err, &denied) {
		writeJSON(w, http.StatusForbidden, map[string]any{
			"error": denied.Reason,
			"gate":  denied.Gate.String(),
			"level": denied.Level.String(),
		})
		return
	}

	writeJSON(w, statusFor(err), map[string]string{"error": err.Error()})
}

func statusFor(err error) int {
	var validation *domain.ValidationError
	var conflict *domain.ConflictError
	var exhausted *domain.RangeExhaustedError
	var timeout *domain.TimeoutError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &validation):
		return http.StatusBadRequest
	case errors.As(err, &conflict), errors.As(err, &exhausted),
		errors.Is(err, domain.ErrNoPriorSlot):
		return http.StatusConflict
	case errors.As(err, &timeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// decodeBody unmarshals and validates a request body. An empty body is an
// error for every endpoint that calls this; optional-body endpoints decode
// by hand.
func decodeBody(r *http.Request, dst interface {
	Validate() error
}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return domain.NewValidationError("invalid request body: %v", err)
	}
	if err := dst.Validate(); err != nil {
		return domain.NewValidationError("%v", err)
	}
	return nil
}
