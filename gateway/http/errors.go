package http

import (
	"context"
	"net/http"

	"github.com/c360/formflow/errors"
)

// mapErrorToHTTPStatus maps engine errors to HTTP status codes
func mapErrorToHTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusInternalServerError
	case errors.IsConfigError(err):
		return http.StatusInternalServerError
	case errors.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, errors.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.IsInvalid(err):
		return http.StatusBadRequest
	case errors.IsTransient(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// sanitizeError returns a message that is safe to show to clients
func sanitizeError(err error, status int) string {
	switch {
	case status == http.StatusNotFound:
		return err.Error()
	case errors.Is(err, errors.ErrSessionExpired):
		return "Your session has expired. Please start again."
	case status == http.StatusConflict:
		return "This form was changed in another window. Please try again."
	case status == http.StatusGatewayTimeout:
		return "request timeout"
	case status == http.StatusBadRequest:
		return "invalid request"
	case status == http.StatusServiceUnavailable:
		return "service temporarily unavailable"
	default:
		return "internal server error"
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	attrs := []any{
		"method", r.Method,
		"path", r.URL.Path,
		"status", status,
		"class", errors.Classify(err).String(),
		"error", err,
		"request_id", RequestIDFrom(r.Context()),
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", attrs...)
	} else {
		s.logger.Info("request rejected", attrs...)
	}
	s.writeStatus(w, r, status, sanitizeError(err, status))
}

func (s *Server) writeStatus(w http.ResponseWriter, r *http.Request, status int, message string) {
	if err := s.renderer.RenderError(w, r, status, message); err != nil {
		s.logger.Error("render error page failed", "status", status, "error", err)
	}
}
