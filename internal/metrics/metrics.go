// Package metrics exposes prometheus instrumentation for the master and
// slave processes: connection liveness, task partition sizes, job
// completion, heartbeat outcomes, endpoint latency, and framing
// compression ratios.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ConnectedSlaves mirrors StatusManager.num_slaves.
	ConnectedSlaves = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hypercube_connected_slaves",
			Help: "Current number of live slave connections",
		},
	)

	// TasksByPartition mirrors the three TaskManager partitions.
	TasksByPartition = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hypercube_tasks_by_partition",
			Help: "Current number of tasks in each partition",
		},
		[]string{"partition"}, // available|in_progress|finished
	)

	TasksLoadedTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hypercube_tasks_loaded_total",
			Help: "Total number of tasks loaded for the current job",
		},
	)

	TasksCompletedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hypercube_tasks_completed_total",
			Help: "Total number of tasks reported PROCESSED",
		},
	)

	TasksRequeuedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hypercube_tasks_requeued_total",
			Help: "Total number of tasks returned to the available queue",
		},
		[]string{"reason"}, // connection_dropped|failed|raw_return
	)

	// JobCompleted is 1 once StatusManager's job_done latch is set.
	JobCompleted = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hypercube_job_completed",
			Help: "1 once the current job has no more available or in-progress tasks",
		},
	)

	ConnectionsEvictedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hypercube_connections_evicted_total",
			Help: "Total number of connections evicted by the cleanup sweep",
		},
	)

	HeartbeatsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hypercube_heartbeats_total",
			Help: "Total number of heartbeat attempts by outcome",
		},
		[]string{"outcome"}, // ok|failed
	)

	EndpointDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hypercube_endpoint_duration_seconds",
			Help:    "Master HTTP endpoint handler duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint", "status"},
	)

	CompressionRatio = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hypercube_compression_ratio",
			Help:    "compressed_bytes / raw_bytes for framed payloads",
			Buckets: prometheus.LinearBuckets(0.05, 0.05, 20),
		},
		[]string{"kind"}, // file|tasklist
	)

	DashboardConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hypercube_dashboard_connections",
			Help: "Current number of connected dashboard websocket viewers",
		},
	)

	SubprocessDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hypercube_subprocess_duration_seconds",
			Help:    "Slave subprocess execution duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
		},
		[]string{"outcome"}, // processed|failed
	)
)

// SetPartitionSizes updates the three partition gauges together.
func SetPartitionSizes(available, inProgress, finished int) {
	TasksByPartition.WithLabelValues("available").Set(float64(available))
	TasksByPartition.WithLabelValues("in_progress").Set(float64(inProgress))
	TasksByPartition.WithLabelValues("finished").Set(float64(finished))
}

// RecordCompression records the ratio of compressed to raw bytes for a
// framed payload. Safe to call with rawBytes == 0 (records nothing).
func RecordCompression(kind string, rawBytes, compressedBytes int) {
	if rawBytes == 0 {
		return
	}
	CompressionRatio.WithLabelValues(kind).Observe(float64(compressedBytes) / float64(rawBytes))
}

// RecordEndpoint records one HTTP handler invocation.
func RecordEndpoint(endpoint, status string, seconds float64) {
	EndpointDuration.WithLabelValues(endpoint, status).Observe(seconds)
}

// RecordHeartbeat records one slave-side heartbeat attempt.
func RecordHeartbeat(ok bool) {
	if ok {
		HeartbeatsTotal.WithLabelValues("ok").Inc()
		return
	}
	HeartbeatsTotal.WithLabelValues("failed").Inc()
}

// RecordSubprocess records one slave-side subprocess run.
func RecordSubprocess(processed bool, seconds float64) {
	outcome := "failed"
	if processed {
		outcome = "processed"
	}
	SubprocessDuration.WithLabelValues(outcome).Observe(seconds)
}
