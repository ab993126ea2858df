package api

import (
	"net/http"
	"time"

	"grimm.is/ngxweb/internal/brand"
)

// InstallInstructions lists the Nginx install command per platform.
var InstallInstructions = map[string]string{
	"ubuntu":  "sudo apt update && sudo apt install nginx",
	"debian":  "sudo apt update && sudo apt install nginx",
	"fedora":  "sudo dnf install nginx",
	"centos":  "sudo yum install nginx",
	"macos":   "brew install nginx",
	"windows": "Please download from http://nginx.org/en/download.html",
}

// Health messages.
const (
	HealthOK          = "Service is healthy"
	HealthNoNginx     = "Nginx is not installed"
	HealthNoConfigs   = "No Nginx configurations found"
	HealthNextStepNew = "Please create a configuration in the Configuration page"
)

// HealthResponse describes whether Nginx is usable and set up.
type HealthResponse struct {
	Status                   string            `json:"status"` // ok, warning
	Message                  string            `json:"message"`
	Version                  string            `json:"version"`
	NginxInstalled           bool              `json:"nginx_installed"`
	NginxVersion             string            `json:"nginx_version,omitempty"`
	HasConfigs               bool              `json:"has_configs"`
	InstallationInstructions map[string]string `json:"installation_instructions,omitempty"`
	NextSteps                string            `json:"next_steps,omitempty"`
	Uptime                   string            `json:"uptime"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Version:        brand.Version,
		NginxInstalled: s.configs.Installed(),
		HasConfigs:     s.configs.HasConfigs(),
		Uptime:         s.clock.Since(s.startTime).Round(time.Second).String(),
	}

	switch {
	case !resp.NginxInstalled:
		resp.Status = "warning"
		resp.Message = HealthNoNginx
		resp.InstallationInstructions = InstallInstructions
	case !resp.HasConfigs:
		resp.Status = "warning"
		resp.Message = HealthNoConfigs
		resp.NextSteps = HealthNextStepNew
	default:
		resp.Status = "ok"
		resp.Message = HealthOK
	}

	if resp.NginxInstalled {
		if v, err := s.configs.Version(r.Context()); err == nil {
			resp.NginxVersion = v
		}
	}

	WriteJSON(w, http.StatusOK, resp)
}
