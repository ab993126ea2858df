package api

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/ngxweb/internal/audit"
)

func TestAuditQuery(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, "POST", "/api/config", CreateConfigRequest{Name: "one", Content: "events {}"})
	require.Equal(t, http.StatusCreated, rr.Code)
	env.clock.Advance(time.Hour)
	rr = env.do(t, "POST", "/api/config", CreateConfigRequest{Name: "two", Content: "events {}"})
	require.Equal(t, http.StatusCreated, rr.Code)
	rr = env.do(t, "DELETE", "/api/config/config-one-conf", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = env.do(t, "GET", "/api/audit", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	events := decode[[]audit.Event](t, rr)
	require.Len(t, events, 3)

	rr = env.do(t, "GET", "/api/audit?action="+audit.ActionConfigCreate, nil)
	events = decode[[]audit.Event](t, rr)
	assert.Len(t, events, 2)

	rr = env.do(t, "GET", "/api/audit?since=2025-03-10T14:30:00Z", nil)
	events = decode[[]audit.Event](t, rr)
	assert.Len(t, events, 2)
	for _, e := range events {
		assert.Equal(t, "192.0.2.1", e.IP)
	}

	rr = env.do(t, "GET", "/api/audit?limit=1", nil)
	assert.Len(t, decode[[]audit.Event](t, rr), 1)
}

func TestAuditQuery_BadParams(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, "GET", "/api/audit?since=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = env.do(t, "GET", "/api/audit?limit=0", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestAuditQuery_NoStore(t *testing.T) {
	env := newTestEnv(t)
	env.server.audit = nil

	rr := env.do(t, "GET", "/api/audit", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, "[]", rr.Body.String())
}
