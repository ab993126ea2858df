package lb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"grimm.is/ngxweb/internal/logging"
	"grimm.is/ngxweb/internal/metrics"
	"grimm.is/ngxweb/internal/nginxconf"
	"grimm.is/ngxweb/internal/state"
)

// MetaBucket holds member names and health check settings, which the
// upstream file has no place for.
const MetaBucket = "lb_servers"

// DefaultUpstream is the upstream block the pool edits.
const DefaultUpstream = "backend"

// Options configures a Pool.
type Options struct {
	Path     string // upstream file
	Upstream string // upstream block name
	Store    state.Store
	Prober   Prober
	Logger   *logging.Logger
}

// Pool edits the members of one upstream block in one file.
type Pool struct {
	path     string
	upstream string
	store    state.Store
	prober   Prober
	logger   *logging.Logger

	mu sync.Mutex
}

type meta struct {
	Name        string       `json:"name"`
	HealthCheck *HealthCheck `json:"health_check,omitempty"`
}

// NewPool creates a Pool.
func NewPool(opts Options) (*Pool, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("upstream file path is required")
	}
	if opts.Upstream == "" {
		opts.Upstream = DefaultUpstream
	}
	if opts.Prober == nil {
		opts.Prober = NewProber(ModeHTTP, DefaultProbeTimeout)
	}
	if opts.Logger == nil {
		opts.Logger = logging.WithComponent("lb")
	}
	if opts.Store != nil {
		if err := state.EnsureBucket(opts.Store, MetaBucket); err != nil {
			return nil, fmt.Errorf("failed to create %s bucket: %w", MetaBucket, err)
		}
	}
	return &Pool{
		path:     opts.Path,
		upstream: opts.Upstream,
		store:    opts.Store,
		prober:   opts.Prober,
		logger:   opts.Logger,
	}, nil
}

// Path returns the upstream file path.
func (p *Pool) Path() string { return p.path }

// Upstream returns the upstream block name.
func (p *Pool) Upstream() string { return p.upstream }

// Members returns the pool members with status Unknown, without probing.
func (p *Pool) Members() ([]Server, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.members()
}

// List returns the pool members, each probed concurrently.
func (p *Pool) List(ctx context.Context) ([]Server, error) {
	servers, err := p.Members()
	if err != nil {
		return nil, err
	}

	var wg sync.WaitGroup
	for i := range servers {
		wg.Add(1)
		go func(s *Server) {
			defer wg.Done()
			s.Status = p.probe(ctx, *s)
		}(&servers[i])
	}
	wg.Wait()
	return servers, nil
}

// StatusCounts probes every member and counts them by status.
func (p *Pool) StatusCounts(ctx context.Context) (map[string]int, error) {
	servers, err := p.List(ctx)
	if err != nil {
		return nil, err
	}
	counts := map[string]int{
		string(StatusHealthy):   0,
		string(StatusUnhealthy): 0,
		string(StatusUnknown):   0,
	}
	for _, s := range servers {
		counts[string(s.Status)]++
	}
	return counts, nil
}

// Get returns one member with a fresh status.
func (p *Pool) Get(ctx context.Context, id string) (Server, error) {
	s, err := p.lookup(id)
	if err != nil {
		return Server{}, err
	}
	s.Status = p.probe(ctx, s)
	return s, nil
}

// Check probes one member.
func (p *Pool) Check(ctx context.Context, id string) (Status, error) {
	s, err := p.lookup(id)
	if err != nil {
		return StatusUnknown, err
	}
	return p.probe(ctx, s), nil
}

// Add appends a member to the upstream block, creating the file or the block
// when missing.
func (p *Pool) Add(req CreateRequest) (Server, error) {
	if err := req.Validate(); err != nil {
		return Server{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	content, block, found, err := p.load()
	if err != nil {
		return Server{}, err
	}

	id := ServerID(req.IP, req.Port)
	line := directive(req.IP, req.Port, req.Weight, req.MaxConnections) + ";"

	if found {
		if _, dup := findMember(parseMembers(block.Inner), id); dup {
			return Server{}, ErrExists
		}
		body := line
		if strings.TrimSpace(block.Inner) != "" {
			body = block.Inner + "\n" + line
		}
		content = strings.Replace(content, block.Full, block.WithInner(nginxconf.IndentBody(body)).Full, 1)
	} else {
		created := "upstream " + p.upstream + " {\n    " + line + "\n}\n"
		if strings.TrimSpace(content) != "" {
			created += "\n" + content
		}
		content = created
	}

	if err := p.write(content); err != nil {
		return Server{}, err
	}

	name := req.Name
	if name == "" {
		name = DefaultName(id)
	}
	if err := p.saveMeta(id, meta{Name: name, HealthCheck: req.HealthCheck}); err != nil {
		p.logger.Warn("failed to store server metadata", "id", id, "error", err)
	}

	p.logger.Info("upstream member added", "id", id, "upstream", p.upstream)
	return Server{
		ID:             id,
		Name:           name,
		IP:             req.IP,
		Port:           req.Port,
		Weight:         req.Weight,
		MaxConnections: req.MaxConnections,
		HealthCheck:    req.HealthCheck,
		Status:         StatusUnknown,
	}, nil
}

// Update changes the fields set in req. The id follows a changed address.
func (p *Pool) Update(id string, req UpdateRequest) (Server, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	content, block, found, err := p.load()
	if err != nil {
		return Server{}, err
	}
	if !found {
		return Server{}, ErrNoUpstream
	}

	members := parseMembers(block.Inner)
	m, ok := findMember(members, id)
	if !ok {
		return Server{}, ErrNotFound
	}

	s := p.withMeta(m.server())
	if req.IP != nil {
		s.IP = *req.IP
	}
	if req.Port != nil {
		s.Port = *req.Port
	}
	if req.Weight != nil {
		s.Weight = req.Weight
	}
	if req.MaxConnections != nil {
		s.MaxConnections = req.MaxConnections
	}
	if req.Name != nil {
		s.Name = *req.Name
	}
	if req.HealthCheck != nil {
		s.HealthCheck = req.HealthCheck
	}
	if err := (CreateRequest{IP: s.IP, Port: s.Port, HealthCheck: s.HealthCheck}).Validate(); err != nil {
		return Server{}, err
	}

	newID := ServerID(s.IP, s.Port)
	if newID != id {
		if _, dup := findMember(members, newID); dup {
			return Server{}, ErrExists
		}
	}
	s.ID = newID
	if s.Name == DefaultName(id) {
		s.Name = DefaultName(newID)
	}

	body := replaceMember(block.Inner, m, directive(s.IP, s.Port, s.Weight, s.MaxConnections))
	content = strings.Replace(content, block.Full, block.WithInner(nginxconf.IndentBody(body)).Full, 1)
	if err := p.write(content); err != nil {
		return Server{}, err
	}

	if newID != id {
		p.deleteMeta(id)
	}
	if err := p.saveMeta(newID, meta{Name: s.Name, HealthCheck: s.HealthCheck}); err != nil {
		p.logger.Warn("failed to store server metadata", "id", newID, "error", err)
	}

	p.logger.Info("upstream member updated", "id", id, "new_id", newID)
	s.Status = StatusUnknown
	return s, nil
}

// Remove deletes the member's line from the upstream block.
func (p *Pool) Remove(id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	content, block, found, err := p.load()
	if err != nil {
		return err
	}
	if !found {
		return ErrNoUpstream
	}

	m, ok := findMember(parseMembers(block.Inner), id)
	if !ok {
		return ErrNotFound
	}

	body := removeMember(block.Inner, m)
	replacement := block.WithInner(nginxconf.IndentBody(body)).Full
	if body == "" {
		replacement = "upstream " + p.upstream + " {\n}"
	}
	content = strings.Replace(content, block.Full, replacement, 1)
	if err := p.write(content); err != nil {
		return err
	}
	p.deleteMeta(id)

	p.logger.Info("upstream member removed", "id", id)
	return nil
}

func (p *Pool) lookup(id string) (Server, error) {
	servers, err := p.Members()
	if err != nil {
		return Server{}, err
	}
	for _, s := range servers {
		if s.ID == id {
			return s, nil
		}
	}
	return Server{}, ErrNotFound
}

// members must be called with p.mu held.
func (p *Pool) members() ([]Server, error) {
	_, block, found, err := p.load()
	if err != nil || !found {
		return []Server{}, err
	}
	parsed := parseMembers(block.Inner)
	servers := make([]Server, 0, len(parsed))
	for _, m := range parsed {
		servers = append(servers, p.withMeta(m.server()))
	}
	return servers, nil
}

func (p *Pool) probe(ctx context.Context, s Server) Status {
	status := p.prober.Probe(ctx, s)
	metrics.Get().RecordProbe(p.prober.Mode(), string(status))
	if status != StatusHealthy {
		p.logger.Debug("member probe failed", "id", s.ID, "status", string(status))
	}
	return status
}

// load reads the upstream file. A missing file reads as empty.
func (p *Pool) load() (content string, block nginxconf.Block, found bool, err error) {
	data, err := os.ReadFile(p.path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nginxconf.Block{}, false, nil
	}
	if err != nil {
		return "", nginxconf.Block{}, false, fmt.Errorf("failed to read upstream file %s: %w", p.path, err)
	}
	content = string(data)
	block, found = nginxconf.FindUpstream(content, p.upstream)
	return content, block, found, nil
}

func (p *Pool) write(content string) error {
	if err := os.MkdirAll(filepath.Dir(p.path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(p.path), "."+filepath.Base(p.path)+".*")
	if err != nil {
		return fmt.Errorf("failed to write upstream file %s: %w", p.path, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), p.path)
}

func (p *Pool) withMeta(s Server) Server {
	if p.store == nil {
		return s
	}
	data, err := p.store.Get(MetaBucket, s.ID)
	if err != nil {
		return s
	}
	var m meta
	if err := json.Unmarshal(data, &m); err != nil {
		return s
	}
	if m.Name != "" {
		s.Name = m.Name
	}
	s.HealthCheck = m.HealthCheck
	return s
}

func (p *Pool) saveMeta(id string, m meta) error {
	if p.store == nil {
		return nil
	}
	return p.store.SetJSON(MetaBucket, id, m)
}

func (p *Pool) deleteMeta(id string) {
	if p.store == nil {
		return
	}
	if err := p.store.Delete(MetaBucket, id); err != nil && !errors.Is(err, state.ErrNotFound) {
		p.logger.Warn("failed to delete server metadata", "id", id, "error", err)
	}
}
