package http

import (
	"context"
	"errors"
	"net/http"

	"workhours/internal/auth"
	"workhours/internal/core"
	"workhours/internal/log"
	"workhours/internal/services"
)

const storeFailureMessage = "Could not reach the work log. Your changes are kept, try again."

// statusFor maps domain errors to HTTP status codes. Anything unknown is
// treated as a failure of the backing store.
func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrLocked), errors.Is(err, auth.ErrNotConfigured):
		return http.StatusForbidden
	case errors.Is(err, services.ErrNotReady):
		return http.StatusServiceUnavailable
	case errors.Is(err, services.ErrWrongPassword):
		return http.StatusUnauthorized
	case errors.Is(err, services.ErrTimerRunning), errors.Is(err, services.ErrTimerNotRunning),
		errors.Is(err, services.ErrNoStore):
		return http.StatusConflict
	case errors.Is(err, services.ErrNoData):
		return http.StatusNotFound
	case errors.Is(err, errBadBody):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrEmptyPassword),
		errors.Is(err, services.ErrInvalidSession),
		errors.Is(err, core.ErrNegativeHours),
		errors.Is(err, core.ErrEmptyDate),
		errors.Is(err, core.ErrInvalidDate),
		errors.Is(err, core.ErrInvalidDay),
		errors.Is(err, core.ErrInvalidMonth),
		errors.Is(err, core.ErrInvalidTime),
		errors.Is(err, errInvalidField):
		return http.StatusUnprocessableEntity
	case errors.Is(err, errNoGrants):
		return http.StatusInternalServerError
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

// messageFor returns the text shown to the user. Store errors are not
// echoed since they may carry backend details.
func messageFor(err error, status int) string {
	switch status {
	case http.StatusBadGateway, http.StatusGatewayTimeout:
		return storeFailureMessage
	case http.StatusForbidden:
		if errors.Is(err, auth.ErrNotConfigured) {
			return "Editing is disabled: no edit password is configured."
		}
		return "Editing is locked. Unlock with the edit password first."
	case http.StatusServiceUnavailable:
		return "Data is still loading, try again in a moment."
	}
	return err.Error()
}

// writeError logs and renders err for both htmx and plain API callers.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := statusFor(err)
	msg := messageFor(err, status)

	logger := log.FromContext(r.Context())
	if status >= 500 {
		logger.ErrorContext(r.Context(), "Request failed", log.FieldOperation, op, log.FieldStatusCode, status, log.FieldError, err)
	} else {
		logger.WarnContext(r.Context(), "Request rejected", log.FieldOperation, op, log.FieldStatusCode, status, log.FieldError, err)
	}

	if isHTMX(r) && !wantsJSON(r) {
		ErrorResponse(status, msg).Write(w)
		return
	}
	JSONError(status, msg).Write(w)
}

func wantsJSON(r *http.Request) bool {
	return r.Header.Get("Accept") == "application/json"
}
