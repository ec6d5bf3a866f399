package web

// errors.go turns handler errors into JSON responses.
//
// The technical error is logged with the request ID; the client gets the
// operator-facing message and code from core.MapError.

import (
	"errors"
	"log/slog"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/credsync/internal/core"
)

// ErrorResponse is the JSON body of every error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// errBadRequest marks a malformed query parameter.
var errBadRequest = errors.New("bad request")

// statusFor picks the HTTP status for err from its classification.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrValidatorClosed), errors.Is(err, errTooManySessions):
		return http.StatusServiceUnavailable
	}

	switch core.KindOf(err) {
	case core.KindConnection:
		return http.StatusServiceUnavailable
	case core.KindEngineInvocation:
		return http.StatusBadGateway
	case core.KindStaging, core.KindUpsert:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// respondError logs err and writes its user message.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)

	var msg core.UserMessage
	switch {
	case status == http.StatusBadRequest:
		msg = core.UserMessage{
			Message: err.Error(),
			Action:  "Fix the query parameters and retry",
			Code:    "HTTP400",
		}
	case errors.Is(err, errTooManySessions):
		w.Header().Set("Retry-After", "10")
		msg = core.UserMessage{
			Message: "The validation service is busy",
			Action:  "Retry in a few seconds",
			Code:    "HTTP503",
		}
	default:
		msg = core.MapError(err)
	}

	level := slog.LevelError
	if core.IsUserFacing(err) || status < http.StatusInternalServerError {
		level = slog.LevelWarn
	}
	slog.Log(r.Context(), level, "request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", msg.Code,
		"request_id", middleware.GetReqID(r.Context()),
	)

	writeJSONStatus(w, status, ErrorResponse{
		Error:   http.StatusText(status),
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
	})
}

// clientIP strips the port from RemoteAddr when present.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
