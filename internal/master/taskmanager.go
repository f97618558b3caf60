package master

import (
	"errors"
	"fmt"
	"sync"

	"github.com/projectpolygon/hypercube-go/internal/metrics"
	"github.com/projectpolygon/hypercube-go/internal/task"
)

// ErrNoMoreAvailable is returned when the available queue is empty but at
// least one task is still in progress, meaning the job may still produce
// more work for this caller if it retries later.
var ErrNoMoreAvailable = errors.New("taskmanager: no more available tasks")

// ErrNoMoreTasks is returned when both the available queue and the
// in-progress set are empty: the job has no more work to hand out, ever.
var ErrNoMoreTasks = errors.New("taskmanager: no more tasks")

// ConnectedTask pairs a Task with the connection currently holding it.
type ConnectedTask struct {
	Task         task.Task
	ConnectionID string
}

// TaskManager owns the three task partitions (available, in-progress,
// finished) for the current job and is their sole mutator. All methods are
// safe for concurrent use.
type TaskManager struct {
	mu sync.Mutex

	status *StatusManager

	available  []task.Task
	inProgress map[int]ConnectedTask // keyed by TaskID
	finished   []task.Task
}

// NewTaskManager returns an empty TaskManager reporting completions to the
// given StatusManager.
func NewTaskManager(status *StatusManager) *TaskManager {
	return &TaskManager{
		status:     status,
		inProgress: make(map[int]ConnectedTask),
	}
}

// AddAvailable tags t with jobID, marks it RAW, and enqueues it at the tail
// of the available queue.
func (m *TaskManager) AddAvailable(t task.Task, jobID int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t.JobID = jobID
	t.MessageType = task.Raw
	m.available = append(m.available, t)
}

// ConnectAvailable pops up to n RAW tasks from the available queue and
// assigns them to connectionID. Returns ErrNoMoreTasks if both partitions
// are empty, or ErrNoMoreAvailable if available is empty but in-progress is
// not. A partial result (1 <= k < n tasks) is returned without error.
func (m *TaskManager) ConnectAvailable(n int, connectionID string) ([]task.Task, error) {
	if n <= 0 {
		return nil, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.available) == 0 {
		if len(m.inProgress) == 0 {
			return nil, ErrNoMoreTasks
		}
		return nil, ErrNoMoreAvailable
	}

	take := n
	if take > len(m.available) {
		take = len(m.available)
	}

	out := make([]task.Task, take)
	copy(out, m.available[:take])
	m.available = m.available[take:]

	for _, t := range out {
		m.inProgress[t.TaskID] = ConnectedTask{Task: t, ConnectionID: connectionID}
	}

	return out, nil
}

// ConnectionDropped removes every in-progress task owned by connectionID
// and re-enqueues it RAW at the tail of the available queue. Returns the
// number of tasks requeued.
func (m *TaskManager) ConnectionDropped(connectionID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	requeued := 0
	for id, ct := range m.inProgress {
		if ct.ConnectionID != connectionID {
			continue
		}
		delete(m.inProgress, id)
		t := ct.Task
		t.MessageType = task.Raw
		m.available = append(m.available, t)
		requeued++
	}
	return requeued
}

// TasksFinished applies a batch of worker-reported tasks: PROCESSED tasks
// move to finished and count toward status.tasks_completed; FAILED or
// RAW-returned tasks go back to available. A task reported for an id not
// currently tracked in-progress is dropped (it was already reassigned
// after a connection timeout). After removal, if both available and
// in-progress are empty, the job is marked complete.
func (m *TaskManager) TasksFinished(reported []task.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, t := range reported {
		if _, tracked := m.inProgress[t.TaskID]; !tracked {
			continue
		}
		delete(m.inProgress, t.TaskID)

		switch t.MessageType {
		case task.Processed:
			m.finished = append(m.finished, t)
			if err := m.status.TasksCompleted(1); err != nil {
				return fmt.Errorf("taskmanager: tasks_finished: %w", err)
			}
			metrics.TasksCompletedTotal.Inc()
		case task.Failed, task.Raw:
			reason := "failed"
			if t.MessageType == task.Raw {
				reason = "raw_return"
			}
			t.MessageType = task.Raw
			m.available = append(m.available, t)
			metrics.TasksRequeuedTotal.WithLabelValues(reason).Inc()
		default:
			return fmt.Errorf("taskmanager: tasks_finished: unknown message type %v for task %d", t.MessageType, t.TaskID)
		}
	}

	if len(m.available) == 0 && len(m.inProgress) == 0 {
		m.status.JobCompleted()
	}

	return nil
}

// FlushFinished drains and returns every finished task accumulated so far.
func (m *TaskManager) FlushFinished() []task.Task {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := m.finished
	m.finished = nil
	return out
}

// Sizes returns the current size of each partition, used for metrics and
// the admin status surface.
func (m *TaskManager) Sizes() (available, inProgress, finished int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.available), len(m.inProgress), len(m.finished)
}
