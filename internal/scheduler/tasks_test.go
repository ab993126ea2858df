package scheduler

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"grimm.is/ngxweb/internal/clock"
)

type fakePruner struct {
	n     int64
	err   error
	calls int
}

func (p *fakePruner) Prune() (int64, error) {
	p.calls++
	return p.n, p.err
}

func TestNewAuditPruneTask(t *testing.T) {
	p := &fakePruner{n: 3}
	task := NewAuditPruneTask(p, nil)

	if !task.RunOnStart {
		t.Error("audit prune should run on start")
	}
	if err := task.Func(context.Background()); err != nil {
		t.Fatalf("Task execution failed: %v", err)
	}
	if p.calls != 1 {
		t.Errorf("Prune called %d times", p.calls)
	}

	p.err = errors.New("database is locked")
	if err := task.Func(context.Background()); err == nil {
		t.Error("Expected prune error to be returned")
	}
}

func writeConf(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestNewConfigBackupTask(t *testing.T) {
	configDir := t.TempDir()
	backupDir := filepath.Join(t.TempDir(), "backups")
	clk := clock.NewMockClock(time.Date(2025, 3, 10, 2, 30, 0, 0, time.UTC))

	task := NewConfigBackupTask(configDir, backupDir, 2, clk)

	// Nothing to back up yet.
	if err := task.Func(context.Background()); err != nil {
		t.Fatalf("Task execution failed: %v", err)
	}
	if _, err := os.Stat(backupDir); !os.IsNotExist(err) {
		t.Error("Backup directory created without configurations")
	}

	writeConf(t, configDir, "site.conf", "server { listen 80; }\n")
	writeConf(t, configDir, "notes.txt", "ignored")
	if err := task.Func(context.Background()); err != nil {
		t.Fatalf("Task execution failed: %v", err)
	}

	snapshot := filepath.Join(backupDir, "configs_2025-03-10_02-30-00")
	data, err := os.ReadFile(filepath.Join(snapshot, "site.conf"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "server { listen 80; }\n" {
		t.Errorf("Backup content mismatch: %q", data)
	}
	if _, err := os.Stat(filepath.Join(snapshot, "notes.txt")); !os.IsNotExist(err) {
		t.Error("Non-configuration file was backed up")
	}

	// Unchanged files produce no new snapshot.
	clk.Advance(24 * time.Hour)
	if err := task.Func(context.Background()); err != nil {
		t.Fatal(err)
	}
	if names, _ := listSnapshots(backupDir); len(names) != 1 {
		t.Errorf("Expected 1 snapshot, got %v", names)
	}

	// Changes are kept, trimmed to the newest two.
	for i := 0; i < 3; i++ {
		writeConf(t, configDir, "site.conf", "server { listen 8"+string(rune('1'+i))+"; }\n")
		clk.Advance(24 * time.Hour)
		if err := task.Func(context.Background()); err != nil {
			t.Fatal(err)
		}
	}
	names, err := listSnapshots(backupDir)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"configs_2025-03-13_02-30-00", "configs_2025-03-14_02-30-00"}
	if len(names) != 2 || names[0] != want[0] || names[1] != want[1] {
		t.Errorf("Snapshots = %v, want %v", names, want)
	}
}

func TestNewCertificateRenewalTask(t *testing.T) {
	called := false
	task := NewCertificateRenewalTask(func(ctx context.Context) error {
		called = true
		return nil
	})
	if task.ID != "cert-renewal" || task.RunOnStart {
		t.Errorf("unexpected task %+v", task)
	}
	if err := task.Func(context.Background()); err != nil || !called {
		t.Errorf("renew not invoked: %v", err)
	}
}
