package api

import (
	"net/http"

	"grimm.is/ngxweb/internal/audit"
	"grimm.is/ngxweb/internal/nginx"
)

// CreateConfigRequest creates a configuration file.
type CreateConfigRequest struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// UpdateConfigRequest replaces the content of a configuration file.
type UpdateConfigRequest struct {
	Content string `json:"content"`
}

// DeployRequest validates and optionally reloads a configuration. When
// posted to /api/config/{id}/deploy the path id wins.
type DeployRequest struct {
	ConfigID     string `json:"config_id"`
	ValidateOnly *bool  `json:"validate_only,omitempty"`
}

// DiffRequest carries proposed content to compare with the stored version.
type DiffRequest struct {
	Content string `json:"content"`
}

// DiffResponse is a unified diff; empty when nothing changed.
type DiffResponse struct {
	Diff    string `json:"diff"`
	Changed bool   `json:"changed"`
}

func (s *Server) handleListConfigs(w http.ResponseWriter, r *http.Request) {
	configs, err := s.configs.List()
	if err != nil {
		s.writeServiceError(w, r, "Failed to list configs", err)
		return
	}
	if configs == nil {
		configs = []nginx.Config{}
	}
	WriteJSON(w, http.StatusOK, configs)
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.configs.Get(r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, r, "Failed to get config", err)
		return
	}
	WriteJSON(w, http.StatusOK, cfg)
}

func (s *Server) handleCreateConfig(w http.ResponseWriter, r *http.Request) {
	var req CreateConfigRequest
	if !BindJSON(w, r, &req) {
		return
	}

	cfg, err := s.configs.Create(req.Name, req.Content)
	s.metrics.RecordConfigWrite("create", err)
	if err != nil {
		s.record(r, audit.ActionConfigCreate, req.Name, statusFor(err), map[string]any{"error": err.Error()})
		s.writeServiceError(w, r, "Failed to create config", err)
		return
	}

	details := map[string]any{"path": cfg.Path}
	if cfg.SymlinkCreated != nil {
		details["symlink_created"] = *cfg.SymlinkCreated
	}
	s.record(r, audit.ActionConfigCreate, cfg.Name, http.StatusCreated, details)
	WriteJSON(w, http.StatusCreated, cfg)
}

func (s *Server) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req UpdateConfigRequest
	if !BindJSON(w, r, &req) {
		return
	}

	cfg, err := s.configs.Update(id, req.Content)
	s.metrics.RecordConfigWrite("update", err)
	if err != nil {
		s.writeServiceError(w, r, "Failed to update config", err)
		return
	}
	s.record(r, audit.ActionConfigUpdate, cfg.Name, http.StatusOK, map[string]any{"bytes": len(req.Content)})
	WriteJSON(w, http.StatusOK, cfg)
}

func (s *Server) handleDeleteConfig(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	err := s.configs.Delete(id)
	s.metrics.RecordConfigWrite("delete", err)
	if err != nil {
		s.writeServiceError(w, r, "Failed to delete config", err)
		return
	}
	s.record(r, audit.ActionConfigDelete, id, http.StatusOK, nil)
	WriteJSON(w, http.StatusOK, MessageResponse{Success: true, Message: "Configuration deleted successfully"})
}

func (s *Server) handleDeployConfig(w http.ResponseWriter, r *http.Request) {
	var req DeployRequest
	if !BindJSON(w, r, &req) {
		return
	}
	if id := r.PathValue("id"); id != "" {
		req.ConfigID = id
	}
	if req.ConfigID == "" {
		WriteError(w, http.StatusBadRequest, "config_id is required")
		return
	}
	validateOnly := req.ValidateOnly != nil && *req.ValidateOnly

	result, err := s.configs.Deploy(r.Context(), req.ConfigID, validateOnly)
	if err != nil {
		s.writeServiceError(w, r, "Failed to deploy config", err)
		return
	}
	s.metrics.RecordDeploy(validateOnly, result.Success)

	action := audit.ActionConfigDeploy
	if validateOnly {
		action = audit.ActionConfigValidate
	}
	details := map[string]any{"success": result.Success}
	if result.Error != "" {
		details["error"] = result.Error
	}
	s.record(r, action, req.ConfigID, http.StatusOK, details)

	WriteJSON(w, http.StatusOK, result)
}

func (s *Server) handleConfigBlocks(w http.ResponseWriter, r *http.Request) {
	view, err := s.configs.Blocks(r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, r, "Failed to read config blocks", err)
		return
	}
	WriteJSON(w, http.StatusOK, view)
}

func (s *Server) handleConfigDiff(w http.ResponseWriter, r *http.Request) {
	var req DiffRequest
	if !BindJSON(w, r, &req) {
		return
	}
	diff, err := s.configs.Diff(r.PathValue("id"), req.Content)
	if err != nil {
		s.writeServiceError(w, r, "Failed to diff config", err)
		return
	}
	WriteJSON(w, http.StatusOK, DiffResponse{Diff: diff, Changed: diff != ""})
}
