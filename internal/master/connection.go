package master

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/projectpolygon/hypercube-go/internal/logger"
	"github.com/projectpolygon/hypercube-go/internal/metrics"
)

// ErrConnectionDead is returned when an operation is attempted against a
// connection whose timer has already fired.
var ErrConnectionDead = errors.New("master: connection is dead")

// ErrInvalidConnectionID is returned when a caller presents a connection
// identifier that does not parse as a UUID (spec.md section 9's hardening
// note: the master rejects malformed ids rather than silently creating a
// connection for them).
var ErrInvalidConnectionID = errors.New("master: connection id is not a valid uuid")

// Connection tracks one slave's liveness. deadline is the time after which
// the connection is considered dead absent a reset; it replaces the
// source's per-connection threading.Timer with a value the sweep loop can
// compare against, per spec.md section 9's suggested alternative.
type Connection struct {
	ConnectionID string
	TimeoutSecs  float64

	mu       sync.Mutex
	deadline time.Time
	dead     bool
}

func newConnection(id string, timeoutSecs float64, now time.Time) *Connection {
	return &Connection{
		ConnectionID: id,
		TimeoutSecs:  timeoutSecs,
		deadline:     now.Add(time.Duration(timeoutSecs * float64(time.Second))),
	}
}

// ResetTimer restarts the connection's deadline from now. Returns
// ErrConnectionDead if the connection has already been latched dead.
func (c *Connection) ResetTimer(now time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.dead {
		return ErrConnectionDead
	}
	c.deadline = now.Add(time.Duration(c.TimeoutSecs * float64(time.Second)))
	return nil
}

// IsAlive reports whether the connection's deadline has not yet passed as
// of now. It also latches dead=true the first time it observes expiry, so
// ResetTimer on an expired-but-not-yet-swept connection correctly refuses.
func (c *Connection) IsAlive(now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.dead {
		return false
	}
	if now.After(c.deadline) {
		c.dead = true
		return false
	}
	return true
}

// ConnectionManager tracks live slave connections and runs a periodic
// sweep that evicts dead ones. Cross-component calls flow one direction
// only: ConnectionManager -> (TaskManager, StatusManager).
type ConnectionManager struct {
	taskManager     *TaskManager
	statusManager   *StatusManager
	cleanupInterval time.Duration
	defaultTimeout  float64

	mu          sync.Mutex
	connections map[string]*Connection
}

// NewConnectionManager constructs a ConnectionManager. defaultTimeoutSecs
// is applied to every connection created by a JOB request (spec.md section
// 4.3's 10.0s default); cleanupInterval is how often the sweep runs
// (spec.md section 4.3's 3.0s default).
func NewConnectionManager(tm *TaskManager, sm *StatusManager, defaultTimeoutSecs float64, cleanupInterval time.Duration) *ConnectionManager {
	return &ConnectionManager{
		taskManager:     tm,
		statusManager:   sm,
		cleanupInterval: cleanupInterval,
		defaultTimeout:  defaultTimeoutSecs,
		connections:     make(map[string]*Connection),
	}
}

// AddConnection registers a new connection for a previously-unseen
// connectionID, arms its deadline, and increments num_slaves. connectionID
// must parse as a UUID, or ErrInvalidConnectionID is returned and no state
// changes.
func (cm *ConnectionManager) AddConnection(connectionID string) error {
	if _, err := uuid.Parse(connectionID); err != nil {
		return ErrInvalidConnectionID
	}

	cm.mu.Lock()
	defer cm.mu.Unlock()

	cm.connections[connectionID] = newConnection(connectionID, cm.defaultTimeout, time.Now())
	cm.statusManager.NewSlaveConnected()
	metrics.ConnectedSlaves.Set(float64(len(cm.connections)))

	logger.WithConnection(connectionID).Info().Msg("connection added")
	return nil
}

// HasConnection reports whether connectionID is currently tracked, whether
// or not it is alive.
func (cm *ConnectionManager) HasConnection(connectionID string) bool {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	_, ok := cm.connections[connectionID]
	return ok
}

// ResetConnectionTimer resets the named connection's deadline. Absent
// connections are logged and dropped silently — HEARTBEAT never
// auto-creates a connection.
func (cm *ConnectionManager) ResetConnectionTimer(connectionID string) {
	cm.mu.Lock()
	conn, ok := cm.connections[connectionID]
	cm.mu.Unlock()

	if !ok {
		logger.WithConnection(connectionID).Warn().Msg("heartbeat for unknown connection, ignored")
		return
	}

	if err := conn.ResetTimer(time.Now()); err != nil {
		logger.WithConnection(connectionID).Warn().Err(err).Msg("heartbeat for dead connection, ignored")
	}
}

// Run starts the periodic cleanup sweep. It blocks until ctx is canceled.
func (cm *ConnectionManager) Run(ctx context.Context) {
	ticker := time.NewTicker(cm.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cm.sweep()
		}
	}
}

func (cm *ConnectionManager) sweep() {
	now := time.Now()

	var dead []string
	cm.mu.Lock()
	for id, conn := range cm.connections {
		if !conn.IsAlive(now) {
			dead = append(dead, id)
		}
	}
	for _, id := range dead {
		delete(cm.connections, id)
	}
	remaining := len(cm.connections)
	cm.mu.Unlock()

	for _, id := range dead {
		requeued := cm.taskManager.ConnectionDropped(id)
		cm.statusManager.SlaveDisconnected()
		metrics.ConnectionsEvictedTotal.Inc()
		if requeued > 0 {
			metrics.TasksRequeuedTotal.WithLabelValues("connection_dropped").Add(float64(requeued))
		}
		logger.WithConnection(id).Warn().Int("requeued", requeued).Msg("connection evicted, tasks requeued")
	}

	if len(dead) > 0 {
		metrics.ConnectedSlaves.Set(float64(remaining))
	}
}

// Count returns the number of currently tracked connections, live or not
// yet swept.
func (cm *ConnectionManager) Count() int {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return len(cm.connections)
}
