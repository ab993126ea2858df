package api

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"

	"grimm.is/ngxweb/internal/lb"
	"grimm.is/ngxweb/internal/nginx"
)

// ErrInvalidBody is the error message for undecodable request bodies.
const ErrInvalidBody = "Invalid request body"

// getClientIP extracts the client IP from the request
// Respects X-Forwarded-For and X-Real-IP headers for proxy situations
func getClientIP(r *http.Request) string {
	xff := r.Header.Get("X-Forwarded-For")
	if xff != "" {
		ips := strings.Split(xff, ",")
		if len(ips) > 0 {
			ip := strings.TrimSpace(ips[0])
			if net.ParseIP(ip) != nil {
				return ip
			}
		}
	}

	xri := r.Header.Get("X-Real-IP")
	if xri != "" {
		if net.ParseIP(xri) != nil {
			return xri
		}
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// ErrorResponse represents a standard API error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// MessageResponse acknowledges an operation without a body of its own.
type MessageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// WriteError sends a JSON error response
func WriteError(w http.ResponseWriter, code int, message string, details ...string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	resp := ErrorResponse{Error: message}
	if len(details) > 0 {
		resp.Details = details[0]
	}
	json.NewEncoder(w).Encode(resp)
}

// WriteJSON sends a JSON success response
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// BindJSON decodes the request body into dest, rejecting unknown fields.
// On failure a 400 is written and false returned.
func BindJSON[T any](w http.ResponseWriter, r *http.Request, dest *T) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dest); err != nil {
		WriteError(w, http.StatusBadRequest, ErrInvalidBody, err.Error())
		return false
	}
	return true
}

// statusFor maps service sentinel errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, nginx.ErrNotFound), errors.Is(err, lb.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, nginx.ErrExists), errors.Is(err, lb.ErrExists):
		return http.StatusConflict
	case errors.Is(err, nginx.ErrInvalidName), errors.Is(err, lb.ErrInvalid):
		return http.StatusBadRequest
	case errors.Is(err, lb.ErrNoUpstream):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError writes err as "<action>: <err>" with the mapped status.
// Server-side failures are logged.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, action string, err error) {
	code := statusFor(err)
	if code >= 500 {
		s.logger.Error(action, "path", r.URL.Path, "error", err)
	}
	WriteError(w, code, action+": "+err.Error())
}
