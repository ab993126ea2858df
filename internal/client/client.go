// Package client provides an API client for a running ngxweb server. It is
// used by the console and by the CLI commands.
package client

import (
	"bytes"
	"context"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"grimm.is/ngxweb/internal/audit"
	"grimm.is/ngxweb/internal/brand"
	"grimm.is/ngxweb/internal/lb"
	"grimm.is/ngxweb/internal/nginx"
	"grimm.is/ngxweb/internal/nginxconf"
	"grimm.is/ngxweb/internal/traffic"
)

// Health mirrors the API health response.
// Defined locally to avoid importing the heavy internal/api package.
type Health struct {
	Status                   string            `json:"status"`
	Message                  string            `json:"message"`
	Version                  string            `json:"version"`
	NginxInstalled           bool              `json:"nginx_installed"`
	NginxVersion             string            `json:"nginx_version,omitempty"`
	HasConfigs               bool              `json:"has_configs"`
	InstallationInstructions map[string]string `json:"installation_instructions,omitempty"`
	NextSteps                string            `json:"next_steps,omitempty"`
	Uptime                   string            `json:"uptime"`
}

// Diff mirrors the API diff response.
type Diff struct {
	Diff    string `json:"diff"`
	Changed bool   `json:"changed"`
}

// AuditQuery narrows an audit listing. Zero fields are not sent.
type AuditQuery struct {
	Since    time.Time
	Action   string
	Actor    string
	Resource string
	Limit    int
}

// APIError is returned for every non-2xx response.
type APIError struct {
	StatusCode int
	Message    string
	Details    string
}

func (e *APIError) Error() string {
	if e.Details != "" {
		return e.Message + ": " + e.Details
	}
	return e.Message
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// newAPIError builds the error for a failed response. The message is the
// server's error or message field, else a generic one naming the status.
func newAPIError(status int, body []byte) *APIError {
	e := &APIError{StatusCode: status}
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
		Details string `json:"details"`
	}
	if json.Unmarshal(body, &payload) == nil {
		switch {
		case payload.Error != "":
			e.Message = payload.Error
		case payload.Message != "":
			e.Message = payload.Message
		}
		e.Details = payload.Details
	}
	if e.Message == "" {
		e.Message = "API error: " + strconv.Itoa(status)
	}
	return e
}

// HTTPClient talks to the ngxweb HTTP API.
type HTTPClient struct {
	baseURL             string
	apiKey              string
	httpClient          *http.Client
	expectedFingerprint string
	SeenFingerprint     string
}

// ClientOption configures the HTTPClient.
type ClientOption func(*HTTPClient)

// WithAPIKey sets the API key for authentication.
func WithAPIKey(key string) ClientOption {
	return func(c *HTTPClient) {
		c.apiKey = key
	}
}

// WithFingerprint pins the server certificate by its SHA-256 fingerprint
// (hex). Chain verification is replaced by the pin, which allows the
// self-signed certificate the server generates when api.tls is set.
func WithFingerprint(fp string) ClientOption {
	return func(c *HTTPClient) {
		c.expectedFingerprint = strings.ToLower(strings.ReplaceAll(fp, ":", ""))
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		if c.httpClient != nil {
			c.httpClient.Timeout = d
		}
	}
}

// NewHTTPClient creates a new HTTPClient for the given base URL, e.g.
// "http://localhost:3001".
func NewHTTPClient(baseURL string, opts ...ClientOption) *HTTPClient {
	c := &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.expectedFingerprint != "" {
		c.httpClient.Transport = &http.Transport{
			Proxy:           http.ProxyFromEnvironment,
			TLSClientConfig: c.tlsConfig(),
		}
	}
	return c
}

func (c *HTTPClient) tlsConfig() *tls.Config {
	return &tls.Config{
		InsecureSkipVerify: true, // verified by fingerprint below
		VerifyPeerCertificate: func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
			if len(rawCerts) == 0 {
				return errors.New("server presented no certificate")
			}
			hash := sha256.Sum256(rawCerts[0])
			fingerprint := hex.EncodeToString(hash[:])
			c.SeenFingerprint = fingerprint
			if fingerprint != c.expectedFingerprint {
				return fmt.Errorf("certificate fingerprint mismatch! Expected %s, got %s", c.expectedFingerprint, fingerprint)
			}
			return nil
		},
	}
}

// BaseURL returns the server address the client talks to.
func (c *HTTPClient) BaseURL() string { return c.baseURL }

func (c *HTTPClient) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", brand.UserAgent(brand.Version))
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
	return req, nil
}

// send performs a request and returns the response body of a 2xx response.
func (c *HTTPClient) send(req *http.Request) (*http.Response, []byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, nil, newAPIError(resp.StatusCode, respBody)
	}
	return resp, respBody, nil
}

// doRequest performs an HTTP request and decodes the JSON response.
func (c *HTTPClient) doRequest(ctx context.Context, method, path string, body, result any) error {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	_, respBody, err := c.send(req)
	if err != nil {
		return err
	}
	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

func withQuery(path string, v url.Values) string {
	if len(v) == 0 {
		return path
	}
	return path + "?" + v.Encode()
}

// --- Health ---

// Health retrieves the Nginx installation and configuration status.
func (c *HTTPClient) Health(ctx context.Context) (*Health, error) {
	var h Health
	if err := c.doRequest(ctx, http.MethodGet, "/api/health", nil, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// --- Configurations ---

// ListConfigs returns every managed configuration.
func (c *HTTPClient) ListConfigs(ctx context.Context) ([]nginx.Config, error) {
	var configs []nginx.Config
	if err := c.doRequest(ctx, http.MethodGet, "/api/config", nil, &configs); err != nil {
		return nil, err
	}
	return configs, nil
}

// GetConfig returns one configuration with its content.
func (c *HTTPClient) GetConfig(ctx context.Context, id string) (*nginx.Config, error) {
	var cfg nginx.Config
	if err := c.doRequest(ctx, http.MethodGet, "/api/config/"+url.PathEscape(id), nil, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// CreateConfig creates a configuration file. The server appends .conf.
func (c *HTTPClient) CreateConfig(ctx context.Context, name, content string) (*nginx.Config, error) {
	body := map[string]string{"name": name, "content": content}
	var cfg nginx.Config
	if err := c.doRequest(ctx, http.MethodPost, "/api/config", body, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// UpdateConfig replaces the content of a configuration.
func (c *HTTPClient) UpdateConfig(ctx context.Context, id, content string) (*nginx.Config, error) {
	body := map[string]string{"content": content}
	var cfg nginx.Config
	if err := c.doRequest(ctx, http.MethodPut, "/api/config/"+url.PathEscape(id), body, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// DeleteConfig removes a configuration and its symlinks.
func (c *HTTPClient) DeleteConfig(ctx context.Context, id string) error {
	return c.doRequest(ctx, http.MethodDelete, "/api/config/"+url.PathEscape(id), nil, nil)
}

// Deploy validates a configuration and, unless validateOnly, reloads Nginx.
// A failed validation is a result with Success false, not an error.
func (c *HTTPClient) Deploy(ctx context.Context, id string, validateOnly bool) (*nginx.DeployResult, error) {
	body := map[string]any{"config_id": id, "validate_only": validateOnly}
	var result nginx.DeployResult
	if err := c.doRequest(ctx, http.MethodPost, "/api/config/deploy", body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ConfigBlocks returns the block decomposition of a stored configuration.
func (c *HTTPClient) ConfigBlocks(ctx context.Context, id string) (*nginxconf.DocumentView, error) {
	var view nginxconf.DocumentView
	if err := c.doRequest(ctx, http.MethodGet, "/api/config/"+url.PathEscape(id)+"/blocks", nil, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// DiffConfig compares proposed content with the stored configuration.
func (c *HTTPClient) DiffConfig(ctx context.Context, id, content string) (*Diff, error) {
	body := map[string]string{"content": content}
	var d Diff
	if err := c.doRequest(ctx, http.MethodPost, "/api/config/"+url.PathEscape(id)+"/diff", body, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// --- Traffic ---

// TrafficLogs returns access log entries matching q, newest first.
func (c *HTTPClient) TrafficLogs(ctx context.Context, q traffic.Query) ([]traffic.Entry, error) {
	var entries []traffic.Entry
	if err := c.doRequest(ctx, http.MethodGet, withQuery("/api/traffic", q.Values()), nil, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// TrafficStats aggregates the entries matching q.
func (c *HTTPClient) TrafficStats(ctx context.Context, q traffic.Query) (*traffic.Stats, error) {
	var stats traffic.Stats
	if err := c.doRequest(ctx, http.MethodGet, withQuery("/api/traffic/stats", q.Values()), nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// ExportTraffic streams the server's CSV export of q into w and returns the
// file name suggested by the server.
func (c *HTTPClient) ExportTraffic(ctx context.Context, q traffic.Query, w io.Writer) (string, error) {
	req, err := c.newRequest(ctx, http.MethodGet, withQuery("/api/traffic/export", q.Values()), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "text/csv")
	resp, body, err := c.send(req)
	if err != nil {
		return "", err
	}
	if _, err := w.Write(body); err != nil {
		return "", fmt.Errorf("failed to write export: %w", err)
	}

	name := traffic.ExportFilename(time.Now())
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil && params["filename"] != "" {
		name = params["filename"]
	}
	return name, nil
}

// FollowTraffic connects to the realtime endpoint and calls fn for every
// new entry matching q. It blocks until ctx is cancelled (returning nil) or
// the connection fails.
func (c *HTTPClient) FollowTraffic(ctx context.Context, q traffic.Query, fn func(traffic.Entry)) error {
	wsURL := withQuery(strings.Replace(c.baseURL, "http", "ws", 1)+"/api/traffic/realtime", q.Values())

	headers := http.Header{}
	if c.apiKey != "" {
		headers.Set("X-API-Key", c.apiKey)
	}
	headers.Set("User-Agent", brand.UserAgent(brand.Version))

	dialer := &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: 45 * time.Second,
	}
	if c.expectedFingerprint != "" {
		dialer.TLSClientConfig = c.tlsConfig()
	}

	conn, resp, err := dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		if resp != nil {
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			return newAPIError(resp.StatusCode, body)
		}
		return fmt.Errorf("failed to dial websocket: %w", err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		conn.Close()
	})
	defer stop()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("read error: %w", err)
		}

		var msg struct {
			Topic string          `json:"topic"`
			Data  json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(message, &msg); err != nil {
			continue // Skip malformed
		}
		if msg.Topic != "traffic" {
			continue
		}
		var e traffic.Entry
		if err := json.Unmarshal(msg.Data, &e); err != nil {
			continue
		}
		fn(e)
	}
}

// --- Load balancer ---

// ListServers returns the upstream pool members with probed status.
func (c *HTTPClient) ListServers(ctx context.Context) ([]lb.Server, error) {
	var servers []lb.Server
	if err := c.doRequest(ctx, http.MethodGet, "/api/load-balancer/servers", nil, &servers); err != nil {
		return nil, err
	}
	return servers, nil
}

// GetServer returns one pool member.
func (c *HTTPClient) GetServer(ctx context.Context, id string) (*lb.Server, error) {
	var s lb.Server
	if err := c.doRequest(ctx, http.MethodGet, "/api/load-balancer/servers/"+url.PathEscape(id), nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// AddServer adds a member to the upstream pool.
func (c *HTTPClient) AddServer(ctx context.Context, req lb.CreateRequest) (*lb.Server, error) {
	var s lb.Server
	if err := c.doRequest(ctx, http.MethodPost, "/api/load-balancer/servers", req, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// UpdateServer changes the fields set in req.
func (c *HTTPClient) UpdateServer(ctx context.Context, id string, req lb.UpdateRequest) (*lb.Server, error) {
	var s lb.Server
	if err := c.doRequest(ctx, http.MethodPut, "/api/load-balancer/servers/"+url.PathEscape(id), req, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// RemoveServer removes a member from the upstream pool.
func (c *HTTPClient) RemoveServer(ctx context.Context, id string) error {
	return c.doRequest(ctx, http.MethodDelete, "/api/load-balancer/servers/"+url.PathEscape(id), nil, nil)
}

// ServerHealth probes one member.
func (c *HTTPClient) ServerHealth(ctx context.Context, id string) (lb.Status, error) {
	var resp struct {
		Status lb.Status `json:"status"`
	}
	if err := c.doRequest(ctx, http.MethodGet, "/api/load-balancer/servers/"+url.PathEscape(id)+"/health", nil, &resp); err != nil {
		return lb.StatusUnknown, err
	}
	return resp.Status, nil
}

// --- Audit ---

// AuditEvents lists recent audit events, newest first.
func (c *HTTPClient) AuditEvents(ctx context.Context, q AuditQuery) ([]audit.Event, error) {
	v := url.Values{}
	if !q.Since.IsZero() {
		v.Set("since", q.Since.Format(time.RFC3339))
	}
	if q.Action != "" {
		v.Set("action", q.Action)
	}
	if q.Actor != "" {
		v.Set("actor", q.Actor)
	}
	if q.Resource != "" {
		v.Set("resource", q.Resource)
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}

	var events []audit.Event
	if err := c.doRequest(ctx, http.MethodGet, withQuery("/api/audit", v), nil, &events); err != nil {
		return nil, err
	}
	return events, nil
}
