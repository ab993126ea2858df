package tui

import (
	"context"
	"time"

	"grimm.is/ngxweb/internal/audit"
	"grimm.is/ngxweb/internal/client"
	"grimm.is/ngxweb/internal/lb"
	"grimm.is/ngxweb/internal/nginx"
	"grimm.is/ngxweb/internal/traffic"
)

// Backend is the part of the API the console uses. *client.HTTPClient
// implements it.
type Backend interface {
	Health(ctx context.Context) (*client.Health, error)

	ListConfigs(ctx context.Context) ([]nginx.Config, error)
	GetConfig(ctx context.Context, id string) (*nginx.Config, error)
	CreateConfig(ctx context.Context, name, content string) (*nginx.Config, error)
	UpdateConfig(ctx context.Context, id, content string) (*nginx.Config, error)
	DeleteConfig(ctx context.Context, id string) error
	Deploy(ctx context.Context, id string, validateOnly bool) (*nginx.DeployResult, error)

	TrafficLogs(ctx context.Context, q traffic.Query) ([]traffic.Entry, error)
	TrafficStats(ctx context.Context, q traffic.Query) (*traffic.Stats, error)
	FollowTraffic(ctx context.Context, q traffic.Query, fn func(traffic.Entry)) error

	ListServers(ctx context.Context) ([]lb.Server, error)
	AddServer(ctx context.Context, req lb.CreateRequest) (*lb.Server, error)
	RemoveServer(ctx context.Context, id string) error
	ServerHealth(ctx context.Context, id string) (lb.Status, error)

	AuditEvents(ctx context.Context, q client.AuditQuery) ([]audit.Event, error)
}

var _ Backend = (*client.HTTPClient)(nil)

// RequestTimeout bounds every console request.
var RequestTimeout = 30 * time.Second

// call runs fn with a request-scoped context and logs the outcome to the
// debug log.
func call[T any](name string, fn func(ctx context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(context.Background(), RequestTimeout)
	defer cancel()

	start := time.Now()
	v, err := fn(ctx)
	if err != nil {
		DebugLog("ERR %s (%s): %v", name, time.Since(start), err)
	} else {
		DebugLog("OK  %s (%s)", name, time.Since(start))
	}
	return v, err
}

// errText is the one-line form of a failed action.
func errText(action string, err error) string {
	return action + ": " + err.Error()
}
