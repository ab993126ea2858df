package api

import (
	"net/http"
	"strconv"
	"time"

	"grimm.is/ngxweb/internal/audit"
	"grimm.is/ngxweb/internal/auth"
)

const defaultAuditLimit = 100

// record writes an audit event for a mutating request. Failures are logged
// and never fail the request.
func (s *Server) record(r *http.Request, action, resource string, status int, details map[string]any) {
	s.logger.Audit(auth.ActorFromContext(r.Context()), action, resource, status, details)
	if s.audit == nil {
		return
	}
	evt := audit.Event{
		Timestamp: s.clock.Now(),
		Actor:     auth.ActorFromContext(r.Context()),
		Action:    action,
		Resource:  resource,
		Details:   details,
		Status:    status,
		IP:        getClientIP(r),
	}
	if err := s.audit.Write(evt); err != nil {
		s.logger.Warn("failed to write audit event", "action", action, "error", err)
	}
}

// handleAuditQuery lists recent audit events. Supported parameters: since
// (RFC3339), action, actor, resource, limit.
func (s *Server) handleAuditQuery(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		WriteJSON(w, http.StatusOK, []audit.Event{})
		return
	}

	params := r.URL.Query()
	f := audit.Filter{
		Action:   params.Get("action"),
		Actor:    params.Get("actor"),
		Resource: params.Get("resource"),
		Limit:    defaultAuditLimit,
	}
	if v := params.Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "Invalid since parameter", err.Error())
			return
		}
		f.Since = t
	}
	if v := params.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			WriteError(w, http.StatusBadRequest, "Invalid limit parameter")
			return
		}
		f.Limit = n
	}

	events, err := s.audit.Query(f)
	if err != nil {
		s.writeServiceError(w, r, "Failed to query audit log", err)
		return
	}
	WriteJSON(w, http.StatusOK, events)
}
