package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryPublisher_PublishDeliversToSubscriber(t *testing.T) {
	p := NewMemoryPublisher()
	ch := p.Subscribe()
	defer p.Unsubscribe(ch)

	p.Publish(context.Background(), New(JobProgress, map[string]any{"done": 1}))

	select {
	case e := <-ch:
		assert.Equal(t, JobProgress, e.Type)
		assert.Equal(t, 1, e.Data["done"])
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestMemoryPublisher_UnsubscribeStopsDelivery(t *testing.T) {
	p := NewMemoryPublisher()
	ch := p.Subscribe()
	p.Unsubscribe(ch)

	_, ok := <-ch
	assert.False(t, ok, "channel must be closed after unsubscribe")
}

func TestMemoryPublisher_FullBufferDropsWithoutBlocking(t *testing.T) {
	p := NewMemoryPublisher()
	ch := p.Subscribe()
	defer p.Unsubscribe(ch)

	for i := 0; i < 100; i++ {
		p.Publish(context.Background(), New(TaskCompleted, nil))
	}
	// Must not deadlock or panic even though nothing drained ch.
}

func TestMemoryPublisher_Close(t *testing.T) {
	p := NewMemoryPublisher()
	ch := p.Subscribe()

	require.NoError(t, p.Close())

	_, ok := <-ch
	assert.False(t, ok)
}

func TestEvent_ToJSON(t *testing.T) {
	e := New(TaskDispatched, map[string]any{"task_id": float64(3)})
	data, err := e.ToJSON()
	require.NoError(t, err)
	assert.Contains(t, string(data), "task.dispatched")
}
