package master

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadJobSpec(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "job.json")

	content := `{
		"job_id": 7,
		"job_path": "/tmp/job7",
		"file_names": ["a.txt"],
		"tasks": [
			{"task_id": 1, "program": "/bin/cat", "arg_file_names": ["in1.txt"], "payload": "aGVsbG8=", "result_filename": "out1.txt", "payload_filename": "in1.txt"},
			{"task_id": 2, "program": "/bin/cat", "arg_file_names": ["in2.txt"], "payload": "d29ybGQ=", "result_filename": "out2.txt", "payload_filename": "in2.txt"}
		]
	}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	job, tasks, err := LoadJobSpec(path)
	require.NoError(t, err)

	assert.Equal(t, 7, job.JobID)
	assert.Equal(t, "/tmp/job7", job.JobPath)
	assert.Equal(t, []string{"a.txt"}, job.FileNames)

	require.Len(t, tasks, 2)
	assert.Equal(t, []byte("hello"), tasks[0].Payload)
	assert.Equal(t, []byte("world"), tasks[1].Payload)
	assert.Equal(t, 7, tasks[0].JobID)
}

func TestLoadJobSpec_RejectsNonPositiveJobID(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "job.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"job_id": 0}`), 0644))

	_, _, err := LoadJobSpec(path)
	assert.Error(t, err)
}

func TestLoadJobSpec_MissingFile(t *testing.T) {
	_, _, err := LoadJobSpec("/nonexistent/job.json")
	assert.Error(t, err)
}
