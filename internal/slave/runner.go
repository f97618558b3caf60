package slave

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/projectpolygon/hypercube-go/internal/logger"
	"github.com/projectpolygon/hypercube-go/internal/metrics"
	"github.com/projectpolygon/hypercube-go/internal/task"
)

// resultLogName is the process-wide subprocess stdout/stderr log, carried
// forward verbatim from original_source/src/slave/slave.py's
// run_shell_command (spec.md section 6's persisted-state list).
const resultLogName = "ApplicationResultLog.txt"

// Runner executes one task's external program as a subprocess, blocking
// until it exits. Spec.md section 4.5 requires only that each task run to
// completion before its result is reported; parallel execution across
// tasks is handled by the cycle controller running multiple Runner calls
// concurrently, not by this type.
type Runner struct {
	jobDir    string
	resultLog string
}

// NewRunner builds a Runner that materializes payloads and reads results
// under jobDir, appending subprocess stdout/stderr to resultLogPath
// (spec.md section 6's process-wide ApplicationResultLog.txt).
func NewRunner(jobDir, resultLogPath string) *Runner {
	return &Runner{jobDir: jobDir, resultLog: resultLogPath}
}

// Run writes t.Payload to t.PayloadFilename under the job directory,
// executes t.Program with t.ArgFileNames resolved to paths under the job
// directory, and returns a new Task reflecting the outcome: PROCESSED with
// the result file's bytes on exit code 0, or FAILED with a nil payload
// otherwise.
func (r *Runner) Run(ctx context.Context, t task.Task) (task.Task, error) {
	log := logger.WithTask(t.JobID, t.TaskID)

	if t.PayloadFilename != "" {
		payloadPath := filepath.Join(r.jobDir, t.PayloadFilename)
		if err := os.WriteFile(payloadPath, t.Payload, 0o644); err != nil {
			return task.Task{}, fmt.Errorf("slave: write payload for task %d: %w", t.TaskID, err)
		}
	}

	args := make([]string, 0, len(t.ArgFileNames))
	for _, name := range t.ArgFileNames {
		args = append(args, filepath.Join(r.jobDir, name))
	}

	logFile, err := os.OpenFile(r.resultLog, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return task.Task{}, fmt.Errorf("slave: open result log: %w", err)
	}
	defer logFile.Close()

	cmd := exec.CommandContext(ctx, t.Program, args...)
	cmd.Stdout = logFile
	cmd.Stderr = logFile

	start := time.Now()
	runErr := cmd.Run()
	duration := time.Since(start)

	exitCode := 0
	if runErr != nil {
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = -1
		}
	}

	if exitCode != 0 {
		log.Warn().Int("exit_code", exitCode).Dur("duration", duration).Msg("task subprocess failed")
		metrics.RecordSubprocess(false, duration.Seconds())
		return task.Task{
			JobID:       t.JobID,
			TaskID:      t.TaskID,
			MessageType: task.Failed,
		}, nil
	}

	resultPath := filepath.Join(r.jobDir, t.ResultFilename)
	result, err := os.ReadFile(resultPath)
	if err != nil {
		log.Warn().Err(err).Msg("task exited 0 but result file unreadable, reporting FAILED")
		metrics.RecordSubprocess(false, duration.Seconds())
		return task.Task{
			JobID:       t.JobID,
			TaskID:      t.TaskID,
			MessageType: task.Failed,
		}, nil
	}

	log.Info().Dur("duration", duration).Msg("task subprocess succeeded")
	metrics.RecordSubprocess(true, duration.Seconds())
	return task.Task{
		JobID:          t.JobID,
		TaskID:         t.TaskID,
		ResultFilename: t.ResultFilename,
		Payload:        result,
		MessageType:    task.Processed,
	}, nil
}
