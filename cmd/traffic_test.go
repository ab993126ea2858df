package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/ngxweb/internal/traffic"
)

const accessLog = `192.0.2.1 - - [10/Mar/2025:13:00:00 +0000] "GET /index.html HTTP/1.1" 200 512 "-" "curl/8.0" 0.010
192.0.2.2 - - [10/Mar/2025:13:01:00 +0000] "POST /api/login HTTP/1.1" 401 64 "https://example.org/" "Mozilla/5.0" 0.030
192.0.2.1 - - [10/Mar/2025:13:02:00 +0000] "GET /missing HTTP/1.1" 404 128 "-" "curl/8.0" 0.020
`

func withAccessLog(t *testing.T) *testEnv {
	t.Helper()
	env := newTestEnv(t)
	require.NoError(t, os.WriteFile(env.cfg.AccessLogPath(), []byte(accessLog), 0o644))
	return env
}

func TestRunTraffic_Logs(t *testing.T) {
	env := withAccessLog(t)

	out, err := env.run(t, RunTraffic, "logs")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[0], "STATUS")
	assert.Contains(t, lines[1], "/missing", "newest first")
	assert.Contains(t, lines[1], "20ms")

	out, err = env.run(t, RunTraffic, "logs", "--ip", "192.0.2.1", "--status", "200")
	require.NoError(t, err)
	assert.Contains(t, out, "/index.html")
	assert.NotContains(t, out, "/missing")
	assert.NotContains(t, out, "/api/login")

	out, err = env.run(t, RunTraffic, "logs", "--path", "nothing-here")
	require.NoError(t, err)
	assert.Contains(t, out, "No traffic logs available")
}

func TestRunTraffic_LogsJSON(t *testing.T) {
	env := withAccessLog(t)

	out, err := env.run(t, RunTraffic, "logs", "--limit", "2", "-o", "json")
	require.NoError(t, err)

	var entries []traffic.Entry
	require.NoError(t, json.Unmarshal([]byte(out), &entries))
	assert.Len(t, entries, 2)
}

func TestRunTraffic_InvalidFilter(t *testing.T) {
	env := withAccessLog(t)

	_, err := env.run(t, RunTraffic, "logs", "--status", "abc")
	assert.ErrorContains(t, err, "invalid status")

	_, err = env.run(t, RunTraffic, "logs", "--from", "yesterday")
	assert.ErrorContains(t, err, "invalid from")
}

func TestRunTraffic_Stats(t *testing.T) {
	env := withAccessLog(t)

	out, err := env.run(t, RunTraffic, "stats", "-o", "json")
	require.NoError(t, err)

	var st traffic.Stats
	require.NoError(t, json.Unmarshal([]byte(out), &st))
	assert.EqualValues(t, 3, st.TotalRequests)
	assert.EqualValues(t, 1, st.SuccessRequests)
	assert.EqualValues(t, 2, st.ErrorRequests)

	out, err = env.run(t, RunTraffic, "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "Requests:")
	assert.Contains(t, out, "704 B")
}

func TestRunTraffic_Export(t *testing.T) {
	env := withAccessLog(t)
	path := filepath.Join(t.TempDir(), "out.csv")

	out, err := env.run(t, RunTraffic, "export", "--file", path)
	require.NoError(t, err)
	assert.Equal(t, "Exported to "+path+"\n", out)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, strings.Join(traffic.CSVHeader, ","), strings.TrimSpace(lines[0]))

	out, err = env.run(t, RunTraffic, "export", "--file", "-", "--status", "404")
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(out), "\n"), 2)
}

// scriptedFollower delivers fixed entries, then blocks until cancelled when
// hold is set.
type scriptedFollower struct {
	entries []traffic.Entry
	hold    bool
	err     error
}

func (f scriptedFollower) FollowTraffic(ctx context.Context, q traffic.Query, fn func(traffic.Entry)) error {
	for _, e := range f.entries {
		fn(e)
	}
	if f.hold {
		<-ctx.Done()
		return ctx.Err()
	}
	return f.err
}

func TestFollowTraffic(t *testing.T) {
	out := captureOutput(t)
	rt := int64(12)
	entries := []traffic.Entry{
		{Timestamp: time.Now(), IP: "192.0.2.9", Method: "GET", Path: "/live", Status: 503, ResponseTime: &rt},
		{Timestamp: time.Now(), IP: "192.0.2.9", Method: "GET", Path: "/again", Status: 200},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.NoError(t, followTraffic(ctx, scriptedFollower{entries: entries, hold: true}, traffic.Query{}, FormatTable))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasSuffix(lines[0], "192.0.2.9 GET /live 503 12ms"), lines[0])

	out.Reset()
	require.NoError(t, followTraffic(context.Background(), scriptedFollower{entries: entries[:1]}, traffic.Query{}, FormatJSON))
	var e traffic.Entry
	require.NoError(t, json.Unmarshal(out.Bytes(), &e))
	assert.Equal(t, "/live", e.Path)

	err := followTraffic(context.Background(), scriptedFollower{err: errors.New("connection refused")}, traffic.Query{}, FormatTable)
	assert.ErrorContains(t, err, "connection refused")
}
