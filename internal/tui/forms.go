package tui

import (
	"fmt"
	"strconv"
	"strings"

	"grimm.is/ngxweb/internal/lb"
)

// DefaultConfigContent seeds a newly created configuration.
const DefaultConfigContent = `# Default Nginx configuration
http {
    server {
        listen 80;
        server_name example.com;

        location / {
            root /var/www/html;
            index index.html;
        }
    }
}
`

// NewConfigForm collects the name of a new configuration.
type NewConfigForm struct {
	Name string `tui:"title=Configuration name,desc=.conf is appended when missing,validate=required"`
}

// ServerForm collects a new upstream pool member. Numbers are entered as
// text and converted by Request.
type ServerForm struct {
	Name           string `tui:"title=Name,desc=Display name (optional)"`
	IP             string `tui:"title=Address,desc=IPv4 address or host name,validate=host"`
	Port           string `tui:"title=Port,validate=port"`
	Weight         string `tui:"title=Weight,desc=Leave empty for the Nginx default,validate=uint"`
	MaxConnections string `tui:"title=Max connections,desc=Leave empty for no limit,validate=uint"`
	HealthPath     string `tui:"title=Health check path,desc=Probed with HTTP GET (default /)"`
}

// Request converts the form into an add request.
func (f ServerForm) Request() (lb.CreateRequest, error) {
	req := lb.CreateRequest{
		Name: strings.TrimSpace(f.Name),
		IP:   strings.TrimSpace(f.IP),
	}

	port, err := strconv.ParseUint(strings.TrimSpace(f.Port), 10, 16)
	if err != nil {
		return req, fmt.Errorf("invalid port %q", f.Port)
	}
	req.Port = uint16(port)

	if req.Weight, err = optionalUint(f.Weight); err != nil {
		return req, fmt.Errorf("invalid weight: %w", err)
	}
	if req.MaxConnections, err = optionalUint(f.MaxConnections); err != nil {
		return req, fmt.Errorf("invalid max connections: %w", err)
	}
	if path := strings.TrimSpace(f.HealthPath); path != "" {
		if !strings.HasPrefix(path, "/") {
			path = "/" + path
		}
		req.HealthCheck = &lb.HealthCheck{Path: path}
	}
	return req, req.Validate()
}

func optionalUint(s string) (*uint32, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return nil, err
	}
	v := uint32(n)
	return &v, nil
}
