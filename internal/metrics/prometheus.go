package metrics

import (
	"net/http"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once     sync.Once
	registry *Registry
)

// Registry holds all console metrics.
type Registry struct {
	// API metrics
	APIRequests *prometheus.CounterVec
	APILatency  *prometheus.HistogramVec

	// Config management
	ConfigWrites   *prometheus.CounterVec
	Deploys        *prometheus.CounterVec
	ManagedConfigs prometheus.Gauge

	// Load balancer
	ProbeResults *prometheus.CounterVec
	PoolMembers  *prometheus.GaugeVec

	// Traffic, sampled from the access log
	TrafficRequests     prometheus.Gauge
	TrafficErrorRate    prometheus.Gauge
	TrafficAvgResponse  prometheus.Gauge
	TrafficRPM          prometheus.Gauge
	TrafficBytes        prometheus.Gauge
	TrafficFollowers    prometheus.Gauge
	CollectorLastUpdate prometheus.Gauge

	// System metrics
	Uptime prometheus.Gauge
}

// Get returns the global metrics registry, creating it if necessary.
func Get() *Registry {
	once.Do(func() {
		registry = newRegistry()
	})
	return registry
}

// Handler serves the registered metrics in the Prometheus text format.
func Handler() http.Handler {
	Get()
	return promhttp.Handler()
}

func newRegistry() *Registry {
	r := &Registry{}

	r.APIRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ngxweb_api_requests_total",
		Help: "Total API requests",
	}, []string{"method", "path", "status"})

	r.APILatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ngxweb_api_request_duration_seconds",
		Help:    "API request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	r.ConfigWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ngxweb_config_writes_total",
		Help: "Configuration file writes by operation",
	}, []string{"op", "status"})

	r.Deploys = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ngxweb_deploys_total",
		Help: "Validation and deploy attempts by result",
	}, []string{"mode", "result"})

	r.ManagedConfigs = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ngxweb_managed_configs",
		Help: "Number of configuration files in the managed directory",
	})

	r.ProbeResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ngxweb_lb_probes_total",
		Help: "Upstream member health probes by mode and result",
	}, []string{"mode", "status"})

	r.PoolMembers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ngxweb_lb_members",
		Help: "Upstream members by last probe status",
	}, []string{"status"})

	r.TrafficRequests = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ngxweb_traffic_requests",
		Help: "Requests present in the access log",
	})

	r.TrafficErrorRate = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ngxweb_traffic_error_rate_percent",
		Help: "Percentage of requests with status 400 or above",
	})

	r.TrafficAvgResponse = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ngxweb_traffic_avg_response_ms",
		Help: "Average response time of requests that report one",
	})

	r.TrafficRPM = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ngxweb_traffic_requests_per_minute",
		Help: "Requests per minute over the span of the access log",
	})

	r.TrafficBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ngxweb_traffic_bytes_sent",
		Help: "Bytes sent according to the access log",
	})

	r.TrafficFollowers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ngxweb_traffic_realtime_clients",
		Help: "Connected realtime traffic clients",
	})

	r.CollectorLastUpdate = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ngxweb_collector_last_update_timestamp",
		Help: "Unix timestamp of the last successful collection",
	})

	r.Uptime = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ngxweb_uptime_seconds",
		Help: "Server uptime in seconds",
	})

	return r
}

// RecordAPIRequest records an API request.
func (r *Registry) RecordAPIRequest(method, path string, status int, duration float64) {
	r.APIRequests.WithLabelValues(method, path, statusString(status)).Inc()
	r.APILatency.WithLabelValues(method, path).Observe(duration)
}

// RecordConfigWrite records a create, update or delete of a config file.
func (r *Registry) RecordConfigWrite(op string, err error) {
	r.ConfigWrites.WithLabelValues(op, resultString(err)).Inc()
}

// RecordDeploy records a validation or deploy attempt.
func (r *Registry) RecordDeploy(validateOnly, success bool) {
	mode := "deploy"
	if validateOnly {
		mode = "validate"
	}
	result := "success"
	if !success {
		result = "failure"
	}
	r.Deploys.WithLabelValues(mode, result).Inc()
}

// RecordProbe records the outcome of one member health probe.
func (r *Registry) RecordProbe(mode, status string) {
	r.ProbeResults.WithLabelValues(mode, status).Inc()
}

func resultString(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// statusString converts an HTTP status code to string.
func statusString(status int) string {
	return strconv.Itoa(status)
}
