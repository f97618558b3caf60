// Package wire implements the binary framing used on every master/slave
// payload that carries a task list or a file: a deterministic, versioned,
// fixed field-order length-prefixed encoding followed by DEFLATE compression. This intentionally
// avoids a generic marshaler so the wire format has explicit, stable field
// order independent of either side's language or struct layout.
package wire

import (
	"bufio"
	"bytes"
	"compress/flate"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/projectpolygon/hypercube-go/internal/task"
)

// formatVersion is bumped whenever the task-list field layout changes.
const formatVersion = 1

// EncodeTasks serializes a task list to the fixed field-order binary format
// and DEFLATE-compresses the result. This is the body format for
// /get_tasks responses and /tasks_done request bodies.
func EncodeTasks(tasks []task.Task) ([]byte, error) {
	var buf bytes.Buffer

	if err := writeUint8(&buf, formatVersion); err != nil {
		return nil, err
	}
	if err := writeUint32(&buf, uint32(len(tasks))); err != nil {
		return nil, err
	}
	for _, t := range tasks {
		if err := writeTask(&buf, t); err != nil {
			return nil, fmt.Errorf("wire: encode task %d/%d: %w", t.JobID, t.TaskID, err)
		}
	}

	return Compress(buf.Bytes())
}

// DecodeTasks reverses EncodeTasks.
func DecodeTasks(data []byte) ([]task.Task, error) {
	raw, err := Decompress(data)
	if err != nil {
		return nil, fmt.Errorf("wire: decompress task list: %w", err)
	}

	r := bufio.NewReader(bytes.NewReader(raw))

	version, err := readUint8(r)
	if err != nil {
		return nil, fmt.Errorf("wire: read format version: %w", err)
	}
	if version != formatVersion {
		return nil, fmt.Errorf("wire: unsupported task-list format version %d", version)
	}

	count, err := readUint32(r)
	if err != nil {
		return nil, fmt.Errorf("wire: read task count: %w", err)
	}

	tasks := make([]task.Task, 0, count)
	for i := uint32(0); i < count; i++ {
		t, err := readTask(r)
		if err != nil {
			return nil, fmt.Errorf("wire: decode task %d/%d: %w", i, count, err)
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

// Compress DEFLATE-compresses arbitrary bytes. Used directly for the /file
// endpoint body, and internally by EncodeTasks.
func Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.BestSpeed)
	if err != nil {
		return nil, fmt.Errorf("wire: create compressor: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("wire: compress: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("wire: close compressor: %w", err)
	}
	return buf.Bytes(), nil
}

// Decompress reverses Compress.
func Decompress(data []byte) ([]byte, error) {
	r := flate.NewReader(bytes.NewReader(data))
	defer r.Close()

	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("wire: decompress: %w", err)
	}
	return out, nil
}

func writeTask(w io.Writer, t task.Task) error {
	if err := writeInt32(w, int32(t.JobID)); err != nil {
		return err
	}
	if err := writeInt32(w, int32(t.TaskID)); err != nil {
		return err
	}
	if err := writeString(w, t.Program); err != nil {
		return err
	}
	if err := writeStringSlice(w, t.ArgFileNames); err != nil {
		return err
	}
	if err := writeBytes(w, t.Payload); err != nil {
		return err
	}
	if err := writeString(w, t.ResultFilename); err != nil {
		return err
	}
	if err := writeString(w, t.PayloadFilename); err != nil {
		return err
	}
	return writeUint8(w, uint8(t.MessageType))
}

func readTask(r *bufio.Reader) (task.Task, error) {
	var t task.Task

	jobID, err := readInt32(r)
	if err != nil {
		return t, err
	}
	taskID, err := readInt32(r)
	if err != nil {
		return t, err
	}
	program, err := readString(r)
	if err != nil {
		return t, err
	}
	argFileNames, err := readStringSlice(r)
	if err != nil {
		return t, err
	}
	payload, err := readBytes(r)
	if err != nil {
		return t, err
	}
	resultFilename, err := readString(r)
	if err != nil {
		return t, err
	}
	payloadFilename, err := readString(r)
	if err != nil {
		return t, err
	}
	messageType, err := readUint8(r)
	if err != nil {
		return t, err
	}

	t = task.Task{
		JobID:           int(jobID),
		TaskID:          int(taskID),
		Program:         program,
		ArgFileNames:    argFileNames,
		Payload:         payload,
		ResultFilename:  resultFilename,
		PayloadFilename: payloadFilename,
		MessageType:     task.MessageType(messageType),
	}
	return t, nil
}

func writeUint8(w io.Writer, v uint8) error {
	_, err := w.Write([]byte{v})
	return err
}

func readUint8(r io.Reader) (uint8, error) {
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

func writeUint32(w io.Writer, v uint32) error {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	_, err := w.Write(b[:])
	return err
}

func readUint32(r io.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

func writeInt32(w io.Writer, v int32) error {
	return writeUint32(w, uint32(v))
}

func readInt32(r io.Reader) (int32, error) {
	v, err := readUint32(r)
	return int32(v), err
}

func writeBytes(w io.Writer, data []byte) error {
	if err := writeUint32(w, uint32(len(data))); err != nil {
		return err
	}
	_, err := w.Write(data)
	return err
}

func readBytes(r io.Reader) ([]byte, error) {
	n, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func writeString(w io.Writer, s string) error {
	return writeBytes(w, []byte(s))
}

func readString(r io.Reader) (string, error) {
	b, err := readBytes(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func writeStringSlice(w io.Writer, ss []string) error {
	if err := writeUint32(w, uint32(len(ss))); err != nil {
		return err
	}
	for _, s := range ss {
		if err := writeString(w, s); err != nil {
			return err
		}
	}
	return nil
}

func readStringSlice(r *bufio.Reader) ([]string, error) {
	n, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, n)
	for i := uint32(0); i < n; i++ {
		s, err := readString(r)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}
