package metrics

import (
	"context"
	"sync"
	"time"

	"grimm.is/ngxweb/internal/clock"
	"grimm.is/ngxweb/internal/logging"
	"grimm.is/ngxweb/internal/traffic"
)

// Sources supplies the values the collector samples. Nil sources are skipped.
type Sources struct {
	Traffic func() (traffic.Stats, error)
	Configs func() (int, error)
	Members func(ctx context.Context) (map[string]int, error)
}

// Snapshot is the most recent set of collected values.
type Snapshot struct {
	Updated time.Time      `json:"updated"`
	Traffic *traffic.Stats `json:"traffic,omitempty"`
	Configs int            `json:"configs"`
	Members map[string]int `json:"members,omitempty"`
}

// Collector periodically samples traffic, config and pool state into the
// Prometheus registry.
type Collector struct {
	registry *Registry
	logger   *logging.Logger
	interval time.Duration
	sources  Sources
	clock    clock.Clock
	started  time.Time
	stopCh   chan struct{}
	stopOnce sync.Once

	mu   sync.RWMutex
	last Snapshot
}

// NewCollector creates a new metrics collector.
func NewCollector(logger *logging.Logger, interval time.Duration, sources Sources) *Collector {
	if logger == nil {
		logger = logging.WithComponent("metrics")
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	clk := clock.Or(nil)
	return &Collector{
		registry: Get(),
		logger:   logger,
		interval: interval,
		sources:  sources,
		clock:    clk,
		started:  clk.Now(),
		stopCh:   make(chan struct{}),
	}
}

// Start runs the collection loop until Stop is called. It collects once
// immediately.
func (c *Collector) Start() {
	c.logger.Info("Starting metrics collector", "interval", c.interval.String())

	c.Collect(context.Background())

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.Collect(context.Background())
		case <-c.stopCh:
			c.logger.Info("Stopping metrics collector")
			return
		}
	}
}

// Stop stops the collection loop. It is safe to call more than once.
func (c *Collector) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
}

// Collect samples every source once and updates the registry.
func (c *Collector) Collect(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	snap := Snapshot{Updated: c.clock.Now()}
	c.registry.Uptime.Set(c.clock.Since(c.started).Seconds())

	if c.sources.Traffic != nil {
		if st, err := c.sources.Traffic(); err != nil {
			c.logger.Warn("Failed to collect traffic stats", "error", err)
		} else {
			snap.Traffic = &st
			c.registry.TrafficRequests.Set(float64(st.TotalRequests))
			c.registry.TrafficErrorRate.Set(errorRate(st))
			c.registry.TrafficAvgResponse.Set(st.AvgResponseTime)
			c.registry.TrafficRPM.Set(st.RequestsPerMinute)
			c.registry.TrafficBytes.Set(float64(st.TotalBytesSent))
		}
	}

	if c.sources.Configs != nil {
		if n, err := c.sources.Configs(); err != nil {
			c.logger.Warn("Failed to count configs", "error", err)
		} else {
			snap.Configs = n
			c.registry.ManagedConfigs.Set(float64(n))
		}
	}

	if c.sources.Members != nil {
		if counts, err := c.sources.Members(ctx); err != nil {
			c.logger.Warn("Failed to collect pool members", "error", err)
		} else {
			snap.Members = counts
			c.registry.PoolMembers.Reset()
			for status, n := range counts {
				c.registry.PoolMembers.WithLabelValues(status).Set(float64(n))
			}
		}
	}

	c.registry.CollectorLastUpdate.Set(float64(snap.Updated.Unix()))

	c.mu.Lock()
	c.last = snap
	c.mu.Unlock()
}

// SetClock replaces the clock used for timestamps and uptime.
func (c *Collector) SetClock(clk clock.Clock) {
	c.clock = clock.Or(clk)
	c.started = c.clock.Now()
}

func errorRate(st traffic.Stats) float64 {
	if st.TotalRequests == 0 {
		return 0
	}
	return float64(st.ErrorRequests) / float64(st.TotalRequests) * 100
}

// Last returns the most recent snapshot.
func (c *Collector) Last() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.last
}
