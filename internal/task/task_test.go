package task

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMessageType_String(t *testing.T) {
	tests := []struct {
		mt       MessageType
		expected string
	}{
		{Raw, "RAW"},
		{Processed, "PROCESSED"},
		{Failed, "FAILED"},
		{JobEnd, "JOB_END"},
		{MessageType(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.mt.String())
		})
	}
}

func TestTask_Equal(t *testing.T) {
	a := Task{JobID: 1, TaskID: 2, Program: "one"}
	b := Task{JobID: 1, TaskID: 2, Program: "two", MessageType: Processed}
	c := Task{JobID: 1, TaskID: 3, Program: "one"}
	d := Task{JobID: 2, TaskID: 2, Program: "one"}

	assert.True(t, a.Equal(b), "tasks with the same ids are equal regardless of payload")
	assert.False(t, a.Equal(c), "different task ids are not equal")
	assert.False(t, a.Equal(d), "different job ids are not equal")
}

func TestNewJobEnd(t *testing.T) {
	sentinel := NewJobEnd(7)

	assert.Equal(t, 7, sentinel.JobID)
	assert.Equal(t, JobEndTaskID, sentinel.TaskID)
	assert.True(t, sentinel.IsJobEnd())
}

func TestTask_IsJobEnd(t *testing.T) {
	assert.True(t, Task{TaskID: JobEndTaskID}.IsJobEnd())
	assert.True(t, Task{MessageType: JobEnd}.IsJobEnd())
	assert.False(t, Task{TaskID: 1, MessageType: Raw}.IsJobEnd())
}
