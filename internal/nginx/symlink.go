package nginx

import (
	"fmt"
	"os"
	"path/filepath"
)

// link tries each existing link directory in order and records the outcome
// on cfg. Failure is not an error: the operator gets a command to run.
func (m *Manager) link(cfg *Config) {
	source, err := filepath.Abs(cfg.Path)
	if err != nil {
		source = cfg.Path
	}

	for _, dir := range m.linkDirs {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			continue
		}
		target := filepath.Join(dir, cfg.Name)
		if !dirWritable(dir) {
			m.logger.Warn("could not create symlink", "dir", dir, "error", "directory not writable")
			continue
		}
		if err := os.Symlink(source, target); err != nil {
			m.logger.Warn("could not create symlink", "dir", dir, "error", err)
			continue
		}
		created := true
		cfg.SymlinkCreated = &created
		cfg.SymlinkPath = target
		m.logger.Info("created symlink", "link", target, "target", source)
		return
	}

	dir := m.suggestedLinkDir()
	created := false
	cfg.SymlinkCreated = &created
	cfg.SymlinkPath = filepath.Join(dir, cfg.Name)
	cfg.SymlinkCommand = SymlinkCommand(dir, cfg.Name, source)
	m.logger.Info("symlink not created, run manually", "command", cfg.SymlinkCommand)
}

func (m *Manager) suggestedLinkDir() string {
	for _, dir := range m.linkDirs {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return dir
		}
	}
	if len(m.linkDirs) > 0 {
		return m.linkDirs[0]
	}
	return "/etc/nginx"
}

// SymlinkCommand is the shell command that links source into dir as name,
// replacing whatever is there.
func SymlinkCommand(dir, name, source string) string {
	return fmt.Sprintf("sudo bash -c 'mkdir -p %[1]s && [ -e %[1]s/%[2]s ] && rm %[1]s/%[2]s ; ln -s %[3]s %[1]s/%[2]s'",
		dir, name, source)
}

// unlink removes links in the link directories that point at cfg.
func (m *Manager) unlink(cfg Config) {
	source, err := filepath.Abs(cfg.Path)
	if err != nil {
		source = cfg.Path
	}
	for _, dir := range m.linkDirs {
		target := filepath.Join(dir, cfg.Name)
		dest, err := os.Readlink(target)
		if err != nil || (dest != source && dest != cfg.Path) {
			continue
		}
		if err := os.Remove(target); err != nil {
			m.logger.Warn("could not remove symlink", "link", target, "error", err)
			continue
		}
		m.logger.Info("removed symlink", "link", target)
	}
}
