package api

import (
	"bytes"
	"net/http"

	"grimm.is/ngxweb/internal/traffic"
)

func (s *Server) parseTrafficQuery(w http.ResponseWriter, r *http.Request) (traffic.Query, bool) {
	q, err := traffic.ParseQuery(r.URL.Query())
	if err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid traffic query", err.Error())
		return traffic.Query{}, false
	}
	return q, true
}

func (s *Server) handleTraffic(w http.ResponseWriter, r *http.Request) {
	q, ok := s.parseTrafficQuery(w, r)
	if !ok {
		return
	}
	entries, err := s.traffic.Logs(q)
	if err != nil {
		s.writeServiceError(w, r, "Failed to read traffic logs", err)
		return
	}
	if entries == nil {
		entries = []traffic.Entry{}
	}
	WriteJSON(w, http.StatusOK, entries)
}

func (s *Server) handleTrafficStats(w http.ResponseWriter, r *http.Request) {
	q, ok := s.parseTrafficQuery(w, r)
	if !ok {
		return
	}
	stats, err := s.traffic.Stats(q)
	if err != nil {
		s.writeServiceError(w, r, "Failed to compute traffic stats", err)
		return
	}
	WriteJSON(w, http.StatusOK, stats)
}

func (s *Server) handleTrafficExport(w http.ResponseWriter, r *http.Request) {
	q, ok := s.parseTrafficQuery(w, r)
	if !ok {
		return
	}

	var buf bytes.Buffer
	if err := s.traffic.Export(&buf, q); err != nil {
		s.writeServiceError(w, r, "Failed to export traffic logs", err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+traffic.ExportFilename(s.clock.Now())+`"`)
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}
