package services

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	requestCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docker_monitor_http_requests_total",
			Help: "Total API requests",
		},
		[]string{"path"},
	)

	requestErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docker_monitor_http_request_errors_total",
			Help: "API requests answered with status >= 400",
		},
		[]string{"path"},
	)

	requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "docker_monitor_http_request_duration_seconds",
			Help:    "Duration of API requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path"},
	)

	containerEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docker_monitor_container_events_total",
			Help: "Container events received from docker hosts",
		},
		[]string{"host", "action"},
	)

	hostConnectFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docker_monitor_host_connect_failures_total",
			Help: "Failed connection attempts per host and error kind",
		},
		[]string{"host", "kind"},
	)

	recoveryAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docker_monitor_recovery_attempts_total",
			Help: "Reconnection attempts made by the recovery supervisor",
		},
		[]string{"host", "result"},
	)

	syncRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docker_monitor_caddy_sync_total",
			Help: "Caddy reconciliation runs",
		},
		[]string{"result"},
	)

	adminCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docker_monitor_caddy_admin_calls_total",
			Help: "Caddy admin API calls",
		},
		[]string{"op", "result"},
	)

	connectedHosts = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "docker_monitor_connected_hosts",
		Help: "Docker hosts currently connected",
	})

	monitoredContainers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "docker_monitor_monitored_containers",
		Help: "Containers carrying service labels",
	})

	managedRoutes = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "docker_monitor_managed_routes",
		Help: "Routes currently applied to caddy",
	})

	// 健康检查接口需要的本地计数
	totalRequests int64
	totalErrors   int64
)

func init() {
	prometheus.MustRegister(
		requestCount, requestErrors, requestDuration,
		containerEvents, hostConnectFailures, recoveryAttempts,
		syncRuns, adminCalls,
		connectedHosts, monitoredContainers, managedRoutes,
	)
}

func IncrementRequestCount(path string) {
	requestCount.WithLabelValues(path).Inc()
	atomic.AddInt64(&totalRequests, 1)
}

func IncrementErrorCount(path string) {
	requestErrors.WithLabelValues(path).Inc()
	atomic.AddInt64(&totalErrors, 1)
}

func RecordRequestDuration(path string, seconds float64) {
	requestDuration.WithLabelValues(path).Observe(seconds)
}

func GetTotalRequestCount() int64 {
	return atomic.LoadInt64(&totalRequests)
}

func GetTotalErrorCount() int64 {
	return atomic.LoadInt64(&totalErrors)
}

func resultLabel(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}

func observeAdminCall(op string, err error) {
	adminCalls.WithLabelValues(op, resultLabel(err)).Inc()
}
