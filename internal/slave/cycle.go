package slave

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/projectpolygon/hypercube-go/internal/config"
	"github.com/projectpolygon/hypercube-go/internal/logger"
	"github.com/projectpolygon/hypercube-go/internal/master"
	"github.com/projectpolygon/hypercube-go/internal/task"
)

// Cycle owns one slave's job bootstrap and task fetch/execute/report loop.
// It runs until JOB_END is received, the heartbeat dies, or a fatal,
// non-retriable error occurs (spec.md section 4.5).
type Cycle struct {
	client    *Client
	heartbeat *Heartbeat
	cfg       *config.TaskCycleConfig

	jobDir string
}

// NewCycle builds a Cycle driven by client, coordinated with heartbeat so
// heartbeat death is visible as an exit condition.
func NewCycle(client *Client, heartbeat *Heartbeat, cfg *config.TaskCycleConfig) *Cycle {
	return &Cycle{client: client, heartbeat: heartbeat, cfg: cfg}
}

// Bootstrap performs GET /job, recreates the local job directory, and
// downloads every file named in JobInfo.FileNames.
func (c *Cycle) Bootstrap(ctx context.Context) (master.JobInfo, error) {
	job, err := c.client.FetchJob(ctx)
	if err != nil {
		return job, err
	}

	jobDir := filepath.Join(c.cfg.JobDir, strconv.Itoa(job.JobID))
	if err := os.RemoveAll(jobDir); err != nil {
		return job, fmt.Errorf("slave: bootstrap: clear job dir: %w", err)
	}
	if err := os.MkdirAll(jobDir, 0o755); err != nil {
		return job, fmt.Errorf("slave: bootstrap: create job dir: %w", err)
	}
	c.jobDir = jobDir

	for _, fileName := range job.FileNames {
		data, err := c.client.FetchFile(ctx, job.JobID, fileName)
		if err != nil {
			return job, fmt.Errorf("slave: bootstrap: fetch file %q: %w", fileName, err)
		}
		if err := os.WriteFile(filepath.Join(jobDir, fileName), data, 0o644); err != nil {
			return job, fmt.Errorf("slave: bootstrap: write file %q: %w", fileName, err)
		}
		logger.WithJob(job.JobID).Info().Str("file", fileName).Msg("downloaded job file")
	}

	return job, nil
}

// Run executes the task fetch/execute/report loop for job until JOB_END,
// a fatal error, or ctx cancellation. batchSize is how many tasks to
// request per fetch (spec.md section 4.5 step 1; typically 1, but
// cfg.MaxConcurrentTasks may request and run more than one concurrently as
// the documented optional extension, spec.md section 9).
func (c *Cycle) Run(ctx context.Context, job master.JobInfo) error {
	runner := NewRunner(c.jobDir, resultLogName)
	batchSize := c.cfg.MaxConcurrentTasks
	if batchSize < 1 {
		batchSize = 1
	}

	consecutiveFailures := 0

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if c.heartbeat.Dead() {
			return fmt.Errorf("slave: heartbeat died, exiting job")
		}

		tasks, err := c.client.FetchTasks(ctx, job.JobID, batchSize)
		switch {
		case errors.Is(err, ErrNoMoreAvailable):
			logger.Info().Msg("no available tasks right now, waiting before retry")
			if !sleepCtx(ctx, c.cfg.FetchRetrySleep) {
				return ctx.Err()
			}
			continue
		case err != nil:
			consecutiveFailures++
			logger.Warn().Err(err).Int("consecutive_failures", consecutiveFailures).Msg("task fetch failed")
			if consecutiveFailures >= c.cfg.MaxConsecutiveFetchFailures {
				return fmt.Errorf("slave: %d consecutive task-fetch failures, giving up: %w", consecutiveFailures, err)
			}
			if !sleepCtx(ctx, c.cfg.FetchRetrySleep) {
				return ctx.Err()
			}
			continue
		}
		consecutiveFailures = 0

		if len(tasks) == 1 && tasks[0].IsJobEnd() {
			logger.WithJob(job.JobID).Info().Msg("job complete, JOB_END received")
			return nil
		}

		reported := c.executeAll(ctx, runner, tasks)
		if err := c.client.ReportTasks(ctx, job.JobID, reported); err != nil {
			consecutiveFailures++
			logger.Warn().Err(err).Msg("report tasks failed")
			if consecutiveFailures >= c.cfg.MaxConsecutiveFetchFailures {
				return fmt.Errorf("slave: %d consecutive report failures, giving up: %w", consecutiveFailures, err)
			}
			if !sleepCtx(ctx, c.cfg.FetchRetrySleep) {
				return ctx.Err()
			}
		}
	}
}

// executeAll runs every fetched task to completion, in parallel when more
// than one was requested, and prints one status line per task.
func (c *Cycle) executeAll(ctx context.Context, runner *Runner, tasks []task.Task) []task.Task {
	out := make([]task.Task, len(tasks))

	var wg sync.WaitGroup
	for i, t := range tasks {
		wg.Add(1)
		go func(i int, t task.Task) {
			defer wg.Done()
			result, err := runner.Run(ctx, t)
			if err != nil {
				logger.Error().Err(err).Int("task_id", t.TaskID).Msg("task execution error, reporting FAILED")
				result = task.Task{JobID: t.JobID, TaskID: t.TaskID, MessageType: task.Failed}
			}
			logger.Info().Int("task_id", t.TaskID).Str("outcome", result.MessageType.String()).Msg("task finished")
			out[i] = result
		}(i, t)
	}
	wg.Wait()

	return out
}

// sleepCtx sleeps for d or returns false early if ctx is canceled.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}
