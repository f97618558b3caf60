package master

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/projectpolygon/hypercube-go/internal/task"
)

func newTestConnectionManager(timeoutSecs float64, cleanup time.Duration) (*ConnectionManager, *TaskManager, *StatusManager) {
	status := NewStatusManager()
	tm := NewTaskManager(status)
	cm := NewConnectionManager(tm, status, timeoutSecs, cleanup)
	return cm, tm, status
}

func TestConnectionManager_AddConnection_RejectsNonUUID(t *testing.T) {
	cm, _, status := newTestConnectionManager(10, time.Second)

	err := cm.AddConnection("not-a-uuid")
	assert.ErrorIs(t, err, ErrInvalidConnectionID)
	assert.Equal(t, 0, status.Snapshot().NumSlaves)
	assert.False(t, cm.HasConnection("not-a-uuid"))
}

func TestConnectionManager_AddConnection(t *testing.T) {
	cm, _, status := newTestConnectionManager(10, time.Second)

	id := uuid.New().String()
	require.NoError(t, cm.AddConnection(id))

	assert.True(t, cm.HasConnection(id))
	assert.Equal(t, 1, status.Snapshot().NumSlaves)
	assert.Equal(t, 1, cm.Count())
}

func TestConnectionManager_ResetConnectionTimer_UnknownIsIgnored(t *testing.T) {
	cm, _, _ := newTestConnectionManager(10, time.Second)

	// Must not panic and must not create a connection.
	cm.ResetConnectionTimer(uuid.New().String())
	assert.Equal(t, 0, cm.Count())
}

func TestConnectionManager_Sweep_EvictsDeadConnections(t *testing.T) {
	cm, tm, status := newTestConnectionManager(0.05, 20*time.Millisecond)

	id := uuid.New().String()
	require.NoError(t, cm.AddConnection(id))

	tm.AddAvailable(task.Task{TaskID: 1}, 1)
	_, err := tm.ConnectAvailable(1, id)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go cm.Run(ctx)
	defer cancel()

	require.Eventually(t, func() bool {
		return !cm.HasConnection(id)
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, 0, status.Snapshot().NumSlaves)

	avail, inProg, _ := tm.Sizes()
	assert.Equal(t, 1, avail, "connection_dropped must requeue the owned task")
	assert.Equal(t, 0, inProg)
}

func TestConnectionManager_ResetConnectionTimer_KeepsAlive(t *testing.T) {
	cm, _, _ := newTestConnectionManager(0.1, 20*time.Millisecond)

	id := uuid.New().String()
	require.NoError(t, cm.AddConnection(id))

	ctx, cancel := context.WithCancel(context.Background())
	go cm.Run(ctx)
	defer cancel()

	deadline := time.Now().Add(250 * time.Millisecond)
	for time.Now().Before(deadline) {
		cm.ResetConnectionTimer(id)
		time.Sleep(20 * time.Millisecond)
	}

	assert.True(t, cm.HasConnection(id), "repeated heartbeats must keep the connection alive")
}
