// Package nginx manages Nginx configuration files on disk and drives the
// Nginx binary to validate and reload them.
package nginx

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"grimm.is/ngxweb/internal/logging"
	"grimm.is/ngxweb/internal/nginxconf"
	"grimm.is/ngxweb/internal/validation"
)

// Common errors
var (
	ErrNotFound    = errors.New("config not found")
	ErrExists      = errors.New("config already exists")
	ErrInvalidName = errors.New("invalid config name")
)

// Config is a managed Nginx configuration file.
type Config struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Path           string `json:"path"`
	Content        string `json:"content"`
	SymlinkPath    string `json:"symlink_path,omitempty"`
	SymlinkCreated *bool  `json:"symlink_created,omitempty"`

	// SymlinkCommand is the shell command to run when the link could not
	// be created automatically.
	SymlinkCommand string `json:"symlink_command,omitempty"`
}

// ConfigID derives the stable id of a config file name.
func ConfigID(name string) string {
	return "config-" + strings.ReplaceAll(name, ".", "-")
}

// Options configures a Manager.
type Options struct {
	ConfigDir      string
	Binary         string
	LinkDirs       []string
	CommandTimeout time.Duration
	Executor       CommandExecutor
	Logger         *logging.Logger
}

// Manager owns the managed config directory.
type Manager struct {
	dir      string
	binary   string
	linkDirs []string
	timeout  time.Duration
	exec     CommandExecutor
	logger   *logging.Logger

	lookPath func(string) (string, error)
}

// NewManager creates a Manager for opts.ConfigDir.
func NewManager(opts Options) *Manager {
	m := &Manager{
		dir:      opts.ConfigDir,
		binary:   opts.Binary,
		linkDirs: opts.LinkDirs,
		timeout:  opts.CommandTimeout,
		exec:     opts.Executor,
		logger:   opts.Logger,
		lookPath: exec.LookPath,
	}
	if m.binary == "" {
		m.binary = "nginx"
	}
	if m.timeout <= 0 {
		m.timeout = 30 * time.Second
	}
	if m.exec == nil {
		m.exec = RealCommandExecutor{}
	}
	if m.logger == nil {
		m.logger = logging.WithComponent("nginx")
	}
	return m
}

// Dir returns the managed config directory.
func (m *Manager) Dir() string { return m.dir }

// List returns every *.conf file in the managed directory, sorted by name.
func (m *Manager) List() ([]Config, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, fmt.Errorf("read config directory: %w", err)
	}

	configs := []Config{}
	for _, e := range entries {
		if !e.Type().IsRegular() || filepath.Ext(e.Name()) != ".conf" {
			continue
		}
		cfg, err := m.load(e.Name())
		if err != nil {
			return nil, err
		}
		configs = append(configs, cfg)
	}
	sort.Slice(configs, func(i, j int) bool { return configs[i].Name < configs[j].Name })
	return configs, nil
}

// HasConfigs reports whether at least one config exists.
func (m *Manager) HasConfigs() bool {
	configs, err := m.List()
	return err == nil && len(configs) > 0
}

func (m *Manager) load(name string) (Config, error) {
	path := filepath.Join(m.dir, name)
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", name, err)
	}
	return Config{
		ID:      ConfigID(name),
		Name:    name,
		Path:    path,
		Content: string(data),
	}, nil
}

// Get returns the config with the given id.
func (m *Manager) Get(id string) (Config, error) {
	configs, err := m.List()
	if err != nil {
		return Config{}, err
	}
	for _, c := range configs {
		if c.ID == id {
			return c, nil
		}
	}
	return Config{}, fmt.Errorf("%s: %w", id, ErrNotFound)
}

// NormalizeName appends .conf when missing and rejects names that would
// escape the managed directory.
func NormalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if err := validation.ValidateFileName(name); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidName, err)
	}
	if !strings.HasSuffix(name, ".conf") {
		name += ".conf"
	}
	return name, nil
}

// Create writes a new config and tries to link it into an Nginx directory.
func (m *Manager) Create(name, content string) (Config, error) {
	name, err := NormalizeName(name)
	if err != nil {
		return Config{}, err
	}

	path := filepath.Join(m.dir, name)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if errors.Is(err, fs.ErrExist) {
		return Config{}, fmt.Errorf("%s: %w", name, ErrExists)
	}
	if err != nil {
		return Config{}, fmt.Errorf("create config %s: %w", name, err)
	}
	if _, err := f.WriteString(content); err != nil {
		f.Close()
		return Config{}, fmt.Errorf("write config %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		return Config{}, fmt.Errorf("write config %s: %w", name, err)
	}

	cfg := Config{
		ID:      ConfigID(name),
		Name:    name,
		Path:    path,
		Content: content,
	}
	m.link(&cfg)
	m.logger.Info("config created", "name", name, "path", path)
	return cfg, nil
}

// Update replaces the content of an existing config.
func (m *Manager) Update(id, content string) (Config, error) {
	cfg, err := m.Get(id)
	if err != nil {
		return Config{}, err
	}
	if err := writeFileAtomic(cfg.Path, []byte(content)); err != nil {
		return Config{}, fmt.Errorf("write config %s: %w", cfg.Name, err)
	}
	cfg.Content = content
	m.logger.Info("config updated", "name", cfg.Name)
	return cfg, nil
}

// Delete removes a config and any symlink pointing at it.
func (m *Manager) Delete(id string) error {
	cfg, err := m.Get(id)
	if err != nil {
		return err
	}
	if err := os.Remove(cfg.Path); err != nil {
		return fmt.Errorf("delete config %s: %w", cfg.Name, err)
	}
	m.unlink(cfg)
	m.logger.Info("config deleted", "name", cfg.Name)
	return nil
}

// Blocks decomposes a stored config into server and upstream blocks.
func (m *Manager) Blocks(id string) (nginxconf.DocumentView, error) {
	cfg, err := m.Get(id)
	if err != nil {
		return nginxconf.DocumentView{}, err
	}
	return nginxconf.Describe(cfg.Content), nil
}

// writeFileAtomic replaces path through a temp file in the same directory.
// The existing file mode is kept.
func writeFileAtomic(path string, data []byte) error {
	mode := os.FileMode(0o644)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(mode); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
