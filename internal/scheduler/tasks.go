package scheduler

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"grimm.is/ngxweb/internal/clock"
	"grimm.is/ngxweb/internal/logging"
)

// Pruner removes expired records and reports how many went.
type Pruner interface {
	Prune() (int64, error)
}

// NewAuditPruneTask drops audit events past their retention every night.
func NewAuditPruneTask(p Pruner, logger *logging.Logger) *Task {
	if logger == nil {
		logger = logging.WithComponent("scheduler")
	}
	return &Task{
		ID:          "audit-prune",
		Name:        "Audit Prune",
		Description: "Remove audit events older than the retention period",
		Schedule:    Daily(3, 0),
		RunOnStart:  true,
		Timeout:     time.Minute,
		Func: func(ctx context.Context) error {
			n, err := p.Prune()
			if err != nil {
				return fmt.Errorf("prune audit events: %w", err)
			}
			if n > 0 {
				logger.Info("Pruned audit events", "count", n)
			}
			return nil
		},
	}
}

// backupPrefix names snapshot directories; the timestamp suffix sorts
// chronologically.
const backupPrefix = "configs_"

// NewConfigBackupTask snapshots the *.conf files of configDir into a
// timestamped directory under backupDir, keeping the newest keepCount
// snapshots. Nothing is written when the files match the newest snapshot.
func NewConfigBackupTask(configDir, backupDir string, keepCount int, clk clock.Clock) *Task {
	if keepCount <= 0 {
		keepCount = 7
	}
	clk = clock.Or(clk)

	return &Task{
		ID:          "config-backup",
		Name:        "Configuration Backup",
		Description: "Snapshot the managed Nginx configurations",
		Schedule:    Daily(2, 30),
		Timeout:     time.Minute,
		Func: func(ctx context.Context) error {
			files, err := readConfigs(configDir)
			if err != nil {
				return err
			}
			if len(files) == 0 {
				return nil
			}

			snapshots, err := listSnapshots(backupDir)
			if err != nil {
				return err
			}
			if len(snapshots) > 0 {
				latest, err := readConfigs(filepath.Join(backupDir, snapshots[len(snapshots)-1]))
				if err == nil && sameFiles(files, latest) {
					return nil
				}
			}

			dir := filepath.Join(backupDir, backupPrefix+clk.Now().Format("2006-01-02_15-04-05"))
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("failed to create backup directory: %w", err)
			}
			for name, data := range files {
				if err := ctx.Err(); err != nil {
					return err
				}
				if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
					return fmt.Errorf("failed to write backup: %w", err)
				}
			}

			return cleanupOldBackups(backupDir, keepCount)
		},
	}
}

func readConfigs(dir string) (map[string][]byte, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.conf"))
	if err != nil {
		return nil, err
	}
	files := make(map[string][]byte, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", p, err)
		}
		files[filepath.Base(p)] = data
	}
	return files, nil
}

func sameFiles(a, b map[string][]byte) bool {
	if len(a) != len(b) {
		return false
	}
	for name, data := range a {
		other, ok := b[name]
		if !ok || !bytes.Equal(data, other) {
			return false
		}
	}
	return true
}

// listSnapshots returns the snapshot directory names, oldest first.
func listSnapshots(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() && strings.HasPrefix(e.Name(), backupPrefix) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// cleanupOldBackups removes snapshots beyond the newest keepCount.
func cleanupOldBackups(dir string, keepCount int) error {
	names, err := listSnapshots(dir)
	if err != nil {
		return err
	}
	for len(names) > keepCount {
		path := filepath.Join(dir, names[0])
		if err := os.RemoveAll(path); err != nil {
			logging.Warn("failed to delete old backup", "path", path, "error", err)
		}
		names = names[1:]
	}
	return nil
}

// NewCertificateRenewalTask runs renew every morning; renew decides
// whether the certificate is close enough to expiry to replace.
func NewCertificateRenewalTask(renew TaskFunc) *Task {
	return &Task{
		ID:          "cert-renewal",
		Name:        "Certificate Renewal",
		Description: "Check and renew the API TLS certificate",
		Schedule:    Daily(4, 0),
		Timeout:     time.Minute,
		Func:        renew,
	}
}
