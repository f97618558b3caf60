package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func testGaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	return testutil.ToFloat64(g)
}

func testCounterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	return testutil.ToFloat64(c)
}

func TestMetricsRegistration(t *testing.T) {
	assert.NotNil(t, ConnectedSlaves)
	assert.NotNil(t, TasksByPartition)
	assert.NotNil(t, TasksLoadedTotal)
	assert.NotNil(t, TasksCompletedTotal)
	assert.NotNil(t, TasksRequeuedTotal)
	assert.NotNil(t, JobCompleted)
	assert.NotNil(t, ConnectionsEvictedTotal)
	assert.NotNil(t, HeartbeatsTotal)
	assert.NotNil(t, EndpointDuration)
	assert.NotNil(t, CompressionRatio)
	assert.NotNil(t, DashboardConnections)
	assert.NotNil(t, SubprocessDuration)
}

func TestSetPartitionSizes(t *testing.T) {
	SetPartitionSizes(3, 1, 2)
	assert.Equal(t, float64(3), testGaugeValue(t, TasksByPartition.WithLabelValues("available")))
	assert.Equal(t, float64(1), testGaugeValue(t, TasksByPartition.WithLabelValues("in_progress")))
	assert.Equal(t, float64(2), testGaugeValue(t, TasksByPartition.WithLabelValues("finished")))
}

func TestRecordCompressionZeroRawIsNoop(t *testing.T) {
	CompressionRatio.Reset()
	RecordCompression("file", 0, 100)
	// No observation recorded; nothing to assert beyond no panic.
}

func TestRecordCompression(t *testing.T) {
	CompressionRatio.Reset()
	RecordCompression("tasklist", 1000, 400)
}

func TestRecordEndpoint(t *testing.T) {
	RecordEndpoint("/get_tasks", "200", 0.01)
	RecordEndpoint("/get_tasks", "42", 0.001)
}

func TestRecordHeartbeat(t *testing.T) {
	HeartbeatsTotal.Reset()
	RecordHeartbeat(true)
	RecordHeartbeat(false)
	assert.Equal(t, float64(1), testCounterValue(t, HeartbeatsTotal.WithLabelValues("ok")))
	assert.Equal(t, float64(1), testCounterValue(t, HeartbeatsTotal.WithLabelValues("failed")))
}

func TestRecordSubprocess(t *testing.T) {
	RecordSubprocess(true, 1.5)
	RecordSubprocess(false, 0.2)
}
