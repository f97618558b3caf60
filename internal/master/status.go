// Package master implements the coordinator side of the protocol: the
// Status Manager, Task Manager, Connection Manager, JobInfo, and the HTTP
// endpoint layer that ties them together.
package master

import (
	"fmt"
	"sync"
)

// Status holds the coordinator's authoritative progress counters.
type Status struct {
	NumSlaves    int
	NumTasks     int
	NumTasksDone int
	JobDone      bool
}

// StatusManager serializes all reads and writes of Status behind a single
// mutex so counters surfaced to an operator never drift from the counters
// driving job-completion decisions.
type StatusManager struct {
	mu     sync.Mutex
	status Status
}

// NewStatusManager returns an empty StatusManager.
func NewStatusManager() *StatusManager {
	return &StatusManager{}
}

// TasksLoaded records the total number of tasks belonging to the current
// job. n must be positive.
func (m *StatusManager) TasksLoaded(n int) error {
	if n <= 0 {
		return fmt.Errorf("master: tasks_loaded: n must be > 0, got %d", n)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status.NumTasks = n
	return nil
}

// NewSlaveConnected increments the connected-slave counter.
func (m *StatusManager) NewSlaveConnected() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status.NumSlaves++
}

// SlaveDisconnected decrements the connected-slave counter.
func (m *StatusManager) SlaveDisconnected() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status.NumSlaves--
}

// TasksCompleted adds n to the completed-task counter. n must be positive.
func (m *StatusManager) TasksCompleted(n int) error {
	if n <= 0 {
		return fmt.Errorf("master: tasks_completed: n must be > 0, got %d", n)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status.NumTasksDone += n
	return nil
}

// JobCompleted latches job_done. Once set it is never cleared.
func (m *StatusManager) JobCompleted() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status.JobDone = true
}

// IsJobDone reports the job_done latch.
func (m *StatusManager) IsJobDone() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status.JobDone
}

// Snapshot returns a copy of the current counters.
func (m *StatusManager) Snapshot() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Render formats the operator-facing progress line.
func (m *StatusManager) Render() string {
	s := m.Snapshot()

	var pct float64
	if s.NumTasks > 0 {
		pct = (float64(s.NumTasksDone) / float64(s.NumTasks)) * 100.0
	}

	return fmt.Sprintf(
		"Connected Slaves: %d / Tasks Done: %d / Total Tasks: %d / Progress: %.2f%% / Job Completed: %t",
		s.NumSlaves, s.NumTasksDone, s.NumTasks, pct, s.JobDone,
	)
}
