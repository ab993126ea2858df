package audit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/ngxweb/internal/clock"
)

func newTestStore(t *testing.T, clk clock.Clock) *Store {
	t.Helper()
	s, err := NewStore(Options{Path: ":memory:", RetentionDays: 7, Clock: clk})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestWriteAndQuery(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	clk := clock.NewMockClock(now)
	s := newTestStore(t, clk)

	require.NoError(t, s.Write(Event{Action: ActionConfigCreate, Resource: "config-site-conf", Actor: "api-key", IP: "10.0.0.9"}))
	clk.Advance(time.Minute)
	require.NoError(t, s.Write(Event{
		Action:   ActionConfigDeploy,
		Resource: "config-site-conf",
		Details:  map[string]any{"validate_only": true},
		Status:   200,
	}))
	clk.Advance(time.Minute)
	require.NoError(t, s.Write(Event{Action: ActionServerAdd, Resource: "10.0.0.1:8080"}))

	all, err := s.Query(Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, ActionServerAdd, all[0].Action, "newest first")
	assert.Equal(t, "anonymous", all[0].Actor)
	assert.Equal(t, now, all[2].Timestamp)
	assert.Equal(t, "10.0.0.9", all[2].IP)
	assert.Equal(t, true, all[1].Details["validate_only"])

	byResource, err := s.Query(Filter{Resource: "config-site-conf"})
	require.NoError(t, err)
	assert.Len(t, byResource, 2)

	byAction, err := s.Query(Filter{Action: ActionConfigDeploy})
	require.NoError(t, err)
	require.Len(t, byAction, 1)
	assert.Equal(t, 200, byAction[0].Status)

	since, err := s.Query(Filter{Since: now.Add(30 * time.Second), Limit: 1})
	require.NoError(t, err)
	require.Len(t, since, 1)
	assert.Equal(t, ActionServerAdd, since[0].Action)
}

func TestPrune(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	clk := clock.NewMockClock(now)
	s := newTestStore(t, clk)

	require.NoError(t, s.Write(Event{Action: ActionConfigUpdate, Resource: "old", Timestamp: now.AddDate(0, 0, -30)}))
	require.NoError(t, s.Write(Event{Action: ActionConfigUpdate, Resource: "new"}))

	n, err := s.Prune()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	count, err := s.Count()
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestDiscard(t *testing.T) {
	var r Recorder = Discard{}
	assert.NoError(t, r.Write(Event{Action: ActionConfigDelete}))
}
