package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{
		Level:  LevelDebug,
		Output: &buf,
		JSON:   true,
	})

	t.Run("Levels", func(t *testing.T) {
		for _, fn := range []func(string, ...any){logger.Debug, logger.Info, logger.Warn, logger.Error} {
			buf.Reset()
			fn("level msg")
			if !strings.Contains(buf.String(), "level msg") {
				t.Errorf("message not logged: %q", buf.String())
			}
		}
	})

	t.Run("DynamicLevel", func(t *testing.T) {
		child := logger.WithComponent("nginx")
		logger.SetLevel(LevelError)
		defer logger.SetLevel(LevelDebug)
		if child.Level() != LevelError {
			t.Error("SetLevel not shared with derived loggers")
		}

		buf.Reset()
		child.Info("should not appear")
		if buf.Len() > 0 {
			t.Error("Logged info message when level was Error")
		}
	})

	t.Run("WithComponent", func(t *testing.T) {
		buf.Reset()
		logger.WithComponent("nginx").Info("msg")
		if !strings.Contains(buf.String(), `"component":"nginx"`) {
			t.Errorf("WithComponent missing component field: %s", buf.String())
		}
	})

	t.Run("Audit", func(t *testing.T) {
		buf.Reset()
		logger.Audit("api-key:test-key…", "config.deploy", "config-site-conf", 200, map[string]any{"validate_only": false, "bytes": 12})
		var rec map[string]any
		if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
			t.Fatalf("audit line is not JSON: %v", err)
		}
		if rec["msg"] != "audit" || rec["action"] != "config.deploy" || rec["resource"] != "config-site-conf" {
			t.Errorf("Audit log incomplete: %v", rec)
		}
		if rec["status"] != float64(200) || rec["bytes"] != float64(12) {
			t.Errorf("Audit fields missing: %v", rec)
		}
	})
}

func TestConsoleHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: LevelInfo, Output: &buf})

	logger.WithComponent("API").Info("request served", "path", "/api/config", "agent", "curl 8.0")
	line := buf.String()

	if !strings.Contains(line, "ngxweb[") {
		t.Errorf("missing process prefix: %s", line)
	}
	if !strings.Contains(line, "[info] api: request served") {
		t.Errorf("missing header: %s", line)
	}
	if !strings.Contains(line, "path=/api/config") {
		t.Errorf("missing attr: %s", line)
	}
	if !strings.Contains(line, `agent="curl 8.0"`) {
		t.Errorf("value with spaces should be quoted: %s", line)
	}
	if strings.Count(line, "component") != 0 {
		t.Errorf("component should be promoted, not repeated: %s", line)
	}

	buf.Reset()
	logger.Debug("hidden")
	if buf.Len() != 0 {
		t.Error("debug logged at info level")
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"debug":   LevelDebug,
		"warn":    LevelWarn,
		"warning": LevelWarn,
		"error":   LevelError,
		"":        LevelInfo,
		"bogus":   LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestDefaultLogger(t *testing.T) {
	if Default() == nil {
		t.Fatal("Default logger is nil")
	}
	prev := Default()
	defer SetDefault(prev)

	var buf bytes.Buffer
	SetDefault(New(Config{Level: LevelInfo, Output: &buf}))

	Warn("warn")
	WithComponent("comp").Info("comp msg")
	slog.Info("through slog")

	out := buf.String()
	for _, want := range []string{"warn", "comp: comp msg", "through slog"} {
		if !strings.Contains(out, want) {
			t.Errorf("default logger output missing %q: %s", want, out)
		}
	}
}

func TestJSONLogParsing(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: LevelInfo, Output: &buf, JSON: true})

	l.Info("json test", "key", "value")

	var data map[string]any
	if err := json.Unmarshal(buf.Bytes(), &data); err != nil {
		t.Fatalf("Failed to parse JSON log: %v", err)
	}
	if data["msg"] != "json test" || data["key"] != "value" || data["level"] != "INFO" {
		t.Errorf("unexpected JSON record: %v", data)
	}
}
