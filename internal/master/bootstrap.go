package master

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"

	"github.com/projectpolygon/hypercube-go/internal/task"
)

// taskSpec is the JSON-friendly shape of a Task on disk. Payload is
// base64-encoded since it's arbitrary bytes and JSON has no byte-string
// type.
type taskSpec struct {
	TaskID          int      `json:"task_id"`
	Program         string   `json:"program"`
	ArgFileNames    []string `json:"arg_file_names"`
	Payload         string   `json:"payload"`
	ResultFilename  string   `json:"result_filename"`
	PayloadFilename string   `json:"payload_filename"`
}

// jobSpec is the bootstrap document a master process reads at startup: the
// job this process owns plus its initial task list. Supplying this document
// is the end-user application's job (spec.md section 1's Non-goal), so this
// is the one place that role's output is consumed.
type jobSpec struct {
	JobID     int      `json:"job_id"`
	JobPath   string   `json:"job_path"`
	FileNames []string `json:"file_names"`
	UserOpts  any      `json:"user_opts,omitempty"`
	Tasks     []taskSpec `json:"tasks"`
}

// LoadJobSpec reads and parses a bootstrap document from path, returning the
// JobInfo and the initial task list ready for Coordinator.LoadTasks.
func LoadJobSpec(path string) (JobInfo, []task.Task, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return JobInfo{}, nil, fmt.Errorf("master: read job spec: %w", err)
	}

	var spec jobSpec
	if err := json.Unmarshal(data, &spec); err != nil {
		return JobInfo{}, nil, fmt.Errorf("master: parse job spec: %w", err)
	}
	if spec.JobID <= 0 {
		return JobInfo{}, nil, fmt.Errorf("master: job spec: job_id must be positive, got %d", spec.JobID)
	}

	job := JobInfo{
		JobID:     spec.JobID,
		JobPath:   spec.JobPath,
		FileNames: spec.FileNames,
		UserOpts:  spec.UserOpts,
	}

	tasks := make([]task.Task, 0, len(spec.Tasks))
	for _, ts := range spec.Tasks {
		payload, err := base64.StdEncoding.DecodeString(ts.Payload)
		if err != nil {
			return JobInfo{}, nil, fmt.Errorf("master: job spec: task %d: decode payload: %w", ts.TaskID, err)
		}
		tasks = append(tasks, task.Task{
			JobID:           spec.JobID,
			TaskID:          ts.TaskID,
			Program:         ts.Program,
			ArgFileNames:    ts.ArgFileNames,
			Payload:         payload,
			ResultFilename:  ts.ResultFilename,
			PayloadFilename: ts.PayloadFilename,
			MessageType:     task.Raw,
		})
	}

	return job, tasks, nil
}
