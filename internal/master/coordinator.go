package master

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/projectpolygon/hypercube-go/internal/config"
	"github.com/projectpolygon/hypercube-go/internal/master/dashboard"
	"github.com/projectpolygon/hypercube-go/internal/master/events"
	"github.com/projectpolygon/hypercube-go/internal/metrics"
	"github.com/projectpolygon/hypercube-go/internal/task"
)

// Coordinator owns the three authoritative managers plus the optional,
// non-authoritative observability surface (event mirror, dashboard) for a
// single job. There is exactly one Coordinator per master process; it is
// constructed once in cmd/master/main.go and injected into the HTTP
// handlers, never reached through a package-level global.
type Coordinator struct {
	cfg *config.MasterConfig

	mu  sync.RWMutex
	job JobInfo

	Status      *StatusManager
	Tasks       *TaskManager
	Connections *ConnectionManager

	memPublisher *events.MemoryPublisher
	extPublisher events.Publisher // nil unless events.backend=="redis"
	Dashboard    *dashboard.Hub
}

// NewCoordinator builds a Coordinator for job, wiring the three managers and
// the optional event mirror/dashboard according to cfg.
func NewCoordinator(cfg *config.MasterConfig, job JobInfo) *Coordinator {
	status := NewStatusManager()
	tasks := NewTaskManager(status)
	cleanupInterval := time.Duration(cfg.Connection.CleanupIntervalSecs * float64(time.Second))
	conns := NewConnectionManager(tasks, status, cfg.Connection.TimeoutSecs, cleanupInterval)

	memPub := events.NewMemoryPublisher()

	c := &Coordinator{
		cfg:          cfg,
		job:          job,
		Status:       status,
		Tasks:        tasks,
		Connections:  conns,
		memPublisher: memPub,
		Dashboard:    dashboard.NewHub(memPub),
	}

	if cfg.Events.Backend == "redis" && cfg.Events.RedisURL != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.Events.RedisURL})
		c.extPublisher = events.NewRedisPublisher(client)
	}

	return c
}

// LoadTasks assigns job-ownership to every task and enqueues it, then
// records the new total with the status manager.
func (c *Coordinator) LoadTasks(tasks []task.Task) error {
	for _, t := range tasks {
		c.Tasks.AddAvailable(t, c.job.JobID)
	}
	if err := c.Status.TasksLoaded(len(tasks)); err != nil {
		return fmt.Errorf("master: load tasks: %w", err)
	}
	metrics.TasksLoadedTotal.Set(float64(len(tasks)))
	return nil
}

// Job returns the coordinator's JobInfo.
func (c *Coordinator) Job() JobInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.job
}

// Run starts the connection sweep and dashboard hub; it blocks until ctx is
// canceled.
func (c *Coordinator) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		c.Connections.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		c.Dashboard.Run(ctx)
	}()

	wg.Wait()
}

// Close releases the optional external event publisher, if one was
// configured.
func (c *Coordinator) Close() error {
	if c.extPublisher != nil {
		return c.extPublisher.Close()
	}
	return nil
}

// publishEvent fans an event out to the dashboard and, if configured, the
// external mirror. Never touches authoritative state.
func (c *Coordinator) publishEvent(ctx context.Context, e events.Event) {
	c.memPublisher.Publish(ctx, e)
	if c.extPublisher != nil {
		c.extPublisher.Publish(ctx, e)
	}
}
