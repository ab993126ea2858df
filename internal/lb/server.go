// Package lb manages the members of the Nginx upstream pool used for load
// balancing and probes their health.
package lb

import (
	"errors"
	"fmt"
	"strconv"

	"grimm.is/ngxweb/internal/validation"
)

// Common errors
var (
	ErrNotFound   = errors.New("server not found")
	ErrExists     = errors.New("server already exists")
	ErrNoUpstream = errors.New("upstream configuration does not exist")
	ErrInvalid    = errors.New("invalid server")
)

// Status is the last known health of a member.
type Status string

const (
	StatusHealthy   Status = "Healthy"
	StatusUnhealthy Status = "Unhealthy"
	StatusUnknown   Status = "Unknown"
)

// HealthCheck holds per-member probe settings. Only Path is used by the
// built-in prober; the remaining fields are stored for display.
type HealthCheck struct {
	Path               string `json:"path"`
	Interval           uint32 `json:"interval"`
	Timeout            uint32 `json:"timeout"`
	UnhealthyThreshold uint32 `json:"unhealthy_threshold"`
	HealthyThreshold   uint32 `json:"healthy_threshold"`
}

// Server is one member of the upstream pool.
type Server struct {
	ID             string       `json:"id"`
	Name           string       `json:"name"`
	IP             string       `json:"ip"`
	Port           uint16       `json:"port"`
	Weight         *uint32      `json:"weight"`
	MaxConnections *uint32      `json:"max_connections"`
	HealthCheck    *HealthCheck `json:"health_check"`
	Status         Status       `json:"status"`
}

// CreateRequest adds a member.
type CreateRequest struct {
	Name           string       `json:"name"`
	IP             string       `json:"ip"`
	Port           uint16       `json:"port"`
	Weight         *uint32      `json:"weight,omitempty"`
	MaxConnections *uint32      `json:"max_connections,omitempty"`
	HealthCheck    *HealthCheck `json:"health_check,omitempty"`
}

// UpdateRequest changes the fields that are set.
type UpdateRequest struct {
	Name           *string      `json:"name,omitempty"`
	IP             *string      `json:"ip,omitempty"`
	Port           *uint16      `json:"port,omitempty"`
	Weight         *uint32      `json:"weight,omitempty"`
	MaxConnections *uint32      `json:"max_connections,omitempty"`
	HealthCheck    *HealthCheck `json:"health_check,omitempty"`
}

// ServerID is the id of the member at ip:port.
func ServerID(ip string, port uint16) string {
	return fmt.Sprintf("%s:%d", ip, port)
}

// DefaultName is the display name of a member without a stored name.
func DefaultName(id string) string {
	return "Server " + id
}

// Validate checks the request before any file is touched.
func (r CreateRequest) Validate() error {
	if err := validation.ValidateHost(r.IP); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := validation.ValidatePortNumber(int(r.Port)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if r.HealthCheck != nil && r.HealthCheck.Path != "" {
		if err := validation.ValidateURLPath(r.HealthCheck.Path); err != nil {
			return fmt.Errorf("%w: health check %v", ErrInvalid, err)
		}
	}
	return nil
}

// directive renders the member as an upstream server directive without the
// trailing semicolon.
func directive(ip string, port uint16, weight, maxConns *uint32) string {
	s := "server " + ServerID(ip, port)
	if weight != nil {
		s += " weight=" + strconv.FormatUint(uint64(*weight), 10)
	}
	if maxConns != nil {
		s += " max_conns=" + strconv.FormatUint(uint64(*maxConns), 10)
	}
	return s
}
