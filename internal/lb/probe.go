package lb

import (
	"context"
	"fmt"
	"net/http"
	"time"

	probing "github.com/prometheus-community/pro-bing"

	"grimm.is/ngxweb/internal/brand"
)

// Probe modes
const (
	ModeHTTP = "http"
	ModeICMP = "icmp"
)

// DefaultProbeTimeout bounds a single probe.
const DefaultProbeTimeout = 5 * time.Second

// Prober decides the health of one member.
type Prober interface {
	Probe(ctx context.Context, s Server) Status
	Mode() string
}

// NewProber returns the prober for mode. Unknown modes fall back to HTTP.
func NewProber(mode string, timeout time.Duration) Prober {
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	if mode == ModeICMP {
		return &ICMPProber{Timeout: timeout}
	}
	return &HTTPProber{Client: &http.Client{Timeout: timeout}}
}

// HTTPProber issues a GET against the member's health check path.
// Any 2xx response is healthy.
type HTTPProber struct {
	Client *http.Client
}

// Mode implements Prober.
func (p *HTTPProber) Mode() string { return ModeHTTP }

// Probe implements Prober.
func (p *HTTPProber) Probe(ctx context.Context, s Server) Status {
	path := "/"
	if s.HealthCheck != nil && s.HealthCheck.Path != "" {
		path = s.HealthCheck.Path
	}
	url := fmt.Sprintf("http://%s:%d%s", s.IP, s.Port, path)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return StatusUnknown
	}
	req.Header.Set("User-Agent", brand.UserAgent(brand.Version))

	client := p.Client
	if client == nil {
		client = &http.Client{Timeout: DefaultProbeTimeout}
	}
	resp, err := client.Do(req)
	if err != nil {
		return StatusUnhealthy
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return StatusHealthy
	}
	return StatusUnhealthy
}

// ICMPProber sends a single unprivileged echo request to the member's
// address.
type ICMPProber struct {
	Timeout time.Duration
}

// Mode implements Prober.
func (p *ICMPProber) Mode() string { return ModeICMP }

// PingFunc performs the echo. Replaced in tests.
var PingFunc = func(ctx context.Context, ip string, timeout time.Duration) error {
	pinger, err := probing.NewPinger(ip)
	if err != nil {
		return fmt.Errorf("failed to create pinger: %w", err)
	}

	pinger.Count = 1
	pinger.Timeout = timeout
	pinger.SetPrivileged(false)

	if err := pinger.RunWithContext(ctx); err != nil {
		return err
	}

	if pinger.Statistics().PacketsRecv == 0 {
		return fmt.Errorf("packet loss")
	}
	return nil
}

// Probe implements Prober.
func (p *ICMPProber) Probe(ctx context.Context, s Server) Status {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	if err := PingFunc(ctx, s.IP, timeout); err != nil {
		return StatusUnhealthy
	}
	return StatusHealthy
}
