package tui

import (
	"context"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/ngxweb/internal/audit"
	"grimm.is/ngxweb/internal/client"
	"grimm.is/ngxweb/internal/lb"
	"grimm.is/ngxweb/internal/nginx"
	"grimm.is/ngxweb/internal/traffic"
)

// fakeBackend records calls and serves canned data.
type fakeBackend struct {
	mu sync.Mutex

	configs  map[string]*nginx.Config
	saved    []string // content of every UpdateConfig
	deploys  []bool   // validateOnly of every Deploy
	deployed nginx.DeployResult

	entries []traffic.Entry
	live    []traffic.Entry
	stopped chan struct{}

	servers []lb.Server
	removed []string
	events  []audit.Event
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		configs:  map[string]*nginx.Config{},
		deployed: nginx.DeployResult{Success: true, Message: "Nginx reloaded"},
		stopped:  make(chan struct{}),
	}
}

func (f *fakeBackend) Health(ctx context.Context) (*client.Health, error) {
	return &client.Health{Status: "ok", NginxInstalled: true, HasConfigs: len(f.configs) > 0}, nil
}

func (f *fakeBackend) ListConfigs(ctx context.Context) ([]nginx.Config, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []nginx.Config
	for _, c := range f.configs {
		out = append(out, *c)
	}
	return out, nil
}

func (f *fakeBackend) GetConfig(ctx context.Context, id string) (*nginx.Config, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.configs[id]
	if !ok {
		return nil, &client.APIError{StatusCode: 404, Message: "Config not found"}
	}
	cp := *c
	return &cp, nil
}

func (f *fakeBackend) CreateConfig(ctx context.Context, name, content string) (*nginx.Config, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := &nginx.Config{ID: nginx.ConfigID(name), Name: name, Content: content}
	f.configs[c.ID] = c
	cp := *c
	return &cp, nil
}

func (f *fakeBackend) UpdateConfig(ctx context.Context, id, content string) (*nginx.Config, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.configs[id]
	if !ok {
		return nil, &client.APIError{StatusCode: 404, Message: "Config not found"}
	}
	c.Content = content
	f.saved = append(f.saved, content)
	cp := *c
	return &cp, nil
}

func (f *fakeBackend) DeleteConfig(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.configs, id)
	return nil
}

func (f *fakeBackend) Deploy(ctx context.Context, id string, validateOnly bool) (*nginx.DeployResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deploys = append(f.deploys, validateOnly)
	res := f.deployed
	return &res, nil
}

func (f *fakeBackend) TrafficLogs(ctx context.Context, q traffic.Query) ([]traffic.Entry, error) {
	return q.Apply(f.entries), nil
}

func (f *fakeBackend) TrafficStats(ctx context.Context, q traffic.Query) (*traffic.Stats, error) {
	s := traffic.ComputeStats(q.Apply(f.entries))
	return &s, nil
}

// FollowTraffic emits the live entries and then waits for cancellation.
func (f *fakeBackend) FollowTraffic(ctx context.Context, q traffic.Query, fn func(traffic.Entry)) error {
	for _, e := range f.live {
		fn(e)
	}
	<-ctx.Done()
	close(f.stopped)
	return nil
}

func (f *fakeBackend) ListServers(ctx context.Context) ([]lb.Server, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]lb.Server(nil), f.servers...), nil
}

func (f *fakeBackend) AddServer(ctx context.Context, req lb.CreateRequest) (*lb.Server, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := lb.Server{
		ID:     lb.ServerID(req.IP, req.Port),
		Name:   req.Name,
		IP:     req.IP,
		Port:   req.Port,
		Weight: req.Weight,
		Status: lb.StatusUnknown,
	}
	f.servers = append(f.servers, s)
	return &s, nil
}

func (f *fakeBackend) RemoveServer(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, id)
	for i, s := range f.servers {
		if s.ID == id {
			f.servers = append(f.servers[:i], f.servers[i+1:]...)
			break
		}
	}
	return nil
}

func (f *fakeBackend) ServerHealth(ctx context.Context, id string) (lb.Status, error) {
	return lb.StatusUnhealthy, nil
}

func (f *fakeBackend) AuditEvents(ctx context.Context, q client.AuditQuery) ([]audit.Event, error) {
	return f.events, nil
}

var _ Backend = (*fakeBackend)(nil)

func keyRunes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// run executes cmd and returns its message, failing after a timeout.
func run(t *testing.T, cmd tea.Cmd) tea.Msg {
	t.Helper()
	require.NotNil(t, cmd)
	done := make(chan tea.Msg, 1)
	go func() { done <- cmd() }()
	select {
	case msg := <-done:
		return msg
	case <-time.After(5 * time.Second):
		t.Fatal("command did not complete")
		return nil
	}
}

func TestModel_Navigation(t *testing.T) {
	m := NewModel(newFakeBackend())
	assert.Equal(t, ViewDashboard, m.ActiveView)

	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyTab})
	m = next.(Model)
	assert.Equal(t, ViewConfigs, m.ActiveView)

	next, _ = m.Update(keyRunes("4"))
	m = next.(Model)
	assert.Equal(t, ViewServers, m.ActiveView)

	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyShiftTab})
	m = next.(Model)
	assert.Equal(t, ViewTraffic, m.ActiveView)

	next, _ = m.Update(keyRunes("1"))
	m = next.(Model)
	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyShiftTab})
	m = next.(Model)
	assert.Equal(t, ViewAudit, m.ActiveView)
}

func TestModel_Quit(t *testing.T) {
	m := NewModel(newFakeBackend())
	_, cmd := m.Update(keyRunes("q"))
	assert.IsType(t, tea.QuitMsg{}, run(t, cmd))
}

func TestModel_CapturingKeepsKeys(t *testing.T) {
	m := NewModel(newFakeBackend())
	m.ActiveView = ViewTraffic

	next, _ := m.Update(keyRunes("/"))
	m = next.(Model)
	require.True(t, m.Traffic.Capturing())

	// Digits and q go to the filter input.
	next, _ = m.Update(keyRunes("2"))
	m = next.(Model)
	next, _ = m.Update(keyRunes("q"))
	m = next.(Model)
	assert.Equal(t, ViewTraffic, m.ActiveView)
	assert.Equal(t, "2q", m.Traffic.Filter.Value())
}

func TestModel_BroadcastsResults(t *testing.T) {
	backend := newFakeBackend()
	backend.events = []audit.Event{{Action: "config.create", Resource: "site.conf", Actor: "anonymous"}}

	m := NewModel(backend)
	msg := run(t, m.Audit.Init())

	// The audit result arrives while another view is active.
	next, _ := m.Update(msg)
	m = next.(Model)
	assert.False(t, m.Audit.Busy)
	assert.Len(t, m.Audit.Events, 1)
}

func TestDashboard_Load(t *testing.T) {
	backend := newFakeBackend()
	backend.entries = []traffic.Entry{
		{IP: "10.0.0.1", Method: "GET", Path: "/", Status: 200, Timestamp: time.Now()},
		{IP: "10.0.0.2", Method: "GET", Path: "/x", Status: 500, Timestamp: time.Now()},
	}

	m := NewDashboardModel(backend)
	m, _ = m.Update(run(t, m.Init()))

	assert.False(t, m.Busy)
	assert.Empty(t, m.Err)
	require.NotNil(t, m.Health)
	require.NotNil(t, m.Stats)
	assert.EqualValues(t, 2, m.Stats.TotalRequests)
	assert.EqualValues(t, 1, m.Stats.ErrorRequests)
}
