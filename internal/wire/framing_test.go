package wire

import (
	"crypto/rand"
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/projectpolygon/hypercube-go/internal/task"
)

func TestEncodeDecodeTasks_RoundTrip(t *testing.T) {
	tasks := []task.Task{
		{
			JobID:           1,
			TaskID:          1,
			Program:         "/usr/bin/analyze",
			ArgFileNames:    []string{"input.txt", "config.json"},
			Payload:         []byte("hello world"),
			ResultFilename:  "result.bin",
			PayloadFilename: "payload.bin",
			MessageType:     task.Raw,
		},
		{
			JobID:       1,
			TaskID:      2,
			MessageType: task.Processed,
			Payload:     []byte{0x00, 0x01, 0x02, 0xFF},
		},
		task.NewJobEnd(1),
	}

	encoded, err := EncodeTasks(tasks)
	require.NoError(t, err)

	decoded, err := DecodeTasks(encoded)
	require.NoError(t, err)
	require.Len(t, decoded, len(tasks))

	for i, want := range tasks {
		got := decoded[i]
		assert.Equal(t, want.JobID, got.JobID)
		assert.Equal(t, want.TaskID, got.TaskID)
		assert.Equal(t, want.Program, got.Program)
		assert.Equal(t, want.ArgFileNames, got.ArgFileNames)
		assert.Equal(t, want.Payload, got.Payload)
		assert.Equal(t, want.ResultFilename, got.ResultFilename)
		assert.Equal(t, want.PayloadFilename, got.PayloadFilename)
		assert.Equal(t, want.MessageType, got.MessageType)
	}
}

func TestEncodeDecodeTasks_Empty(t *testing.T) {
	encoded, err := EncodeTasks(nil)
	require.NoError(t, err)

	decoded, err := DecodeTasks(encoded)
	require.NoError(t, err)
	assert.Empty(t, decoded)
}

// TestFileRoundTrip exercises property P6: DEFLATE-decompressed /file bytes
// equal the on-disk file content, using 4096 pseudo-random bytes and a
// SHA-256 equality check.
func TestFileRoundTrip(t *testing.T) {
	original := make([]byte, 4096)
	_, err := rand.Read(original)
	require.NoError(t, err)

	compressed, err := Compress(original)
	require.NoError(t, err)

	decompressed, err := Decompress(compressed)
	require.NoError(t, err)

	assert.Equal(t, sha256.Sum256(original), sha256.Sum256(decompressed))
}
