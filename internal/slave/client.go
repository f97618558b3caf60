package slave

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/projectpolygon/hypercube-go/internal/master"
	"github.com/projectpolygon/hypercube-go/internal/task"
	"github.com/projectpolygon/hypercube-go/internal/wire"
)

// ErrNoMoreAvailable mirrors the coordinator's HTTP 42 sentinel (spec.md
// section 8's Exhaustion kind): the available queue is empty but at least
// one task is still in progress elsewhere, so the caller should back off
// and retry rather than treat the job as finished.
var ErrNoMoreAvailable = errors.New("slave: no more available tasks right now")

// ErrJobDone is returned by FetchJob once the coordinator reports the job
// is over (404).
var ErrJobDone = errors.New("slave: job is done")

// Client wraps the coordinator's job, file, task-fetch, task-report and
// heartbeat endpoints behind typed methods (/discovery is probed separately
// by DiscoverMaster),
// in the style of a hand-written SDK rather than a generated one (see
// DESIGN.md for why no oapi-codegen client is used here).
type Client struct {
	session *Session
}

// NewClient wraps session in a Client.
func NewClient(session *Session) *Client {
	return &Client{session: session}
}

// FetchJob performs GET /job and returns the parsed JobInfo.
func (c *Client) FetchJob(ctx context.Context) (master.JobInfo, error) {
	var job master.JobInfo

	resp, err := c.get(ctx, master.EndpointJob)
	if err != nil {
		return job, fmt.Errorf("slave: fetch job: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return job, ErrJobDone
	}
	if resp.StatusCode != http.StatusOK {
		return job, fmt.Errorf("slave: fetch job: unexpected status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(&job); err != nil {
		return job, fmt.Errorf("slave: fetch job: decode response: %w", err)
	}
	return job, nil
}

// FetchFile performs GET /file/{job_id}/{file_name} and returns the
// decompressed file bytes.
func (c *Client) FetchFile(ctx context.Context, jobID int, fileName string) ([]byte, error) {
	path := fmt.Sprintf("/file/%d/%s", jobID, fileName)

	resp, err := c.get(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("slave: fetch file %q: %w", fileName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("slave: fetch file %q: unexpected status %d", fileName, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("slave: fetch file %q: read body: %w", fileName, err)
	}

	data, err := wire.Decompress(body)
	if err != nil {
		return nil, fmt.Errorf("slave: fetch file %q: decompress: %w", fileName, err)
	}
	return data, nil
}

// FetchTasks performs GET /get_tasks/{job_id}/{n}. Returns ErrNoMoreAvailable
// on the coordinator's HTTP 42 sentinel; otherwise the returned task list,
// which may be the single JOB_END sentinel task.
func (c *Client) FetchTasks(ctx context.Context, jobID, n int) ([]task.Task, error) {
	path := fmt.Sprintf("/get_tasks/%d/%d", jobID, n)

	resp, err := c.get(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("slave: fetch tasks: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == master.StatusNoMoreAvailable {
		return nil, ErrNoMoreAvailable
	}
	if resp.StatusCode == http.StatusForbidden {
		return nil, fmt.Errorf("slave: fetch tasks: wrong or uninitialized job")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("slave: fetch tasks: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("slave: fetch tasks: read body: %w", err)
	}

	tasks, err := wire.DecodeTasks(body)
	if err != nil {
		return nil, fmt.Errorf("slave: fetch tasks: decode: %w", err)
	}
	return tasks, nil
}

// ReportTasks performs POST /tasks_done/{job_id} with the compressed,
// serialized list of reported tasks.
func (c *Client) ReportTasks(ctx context.Context, jobID int, reported []task.Task) error {
	body, err := wire.EncodeTasks(reported)
	if err != nil {
		return fmt.Errorf("slave: report tasks: encode: %w", err)
	}

	path := fmt.Sprintf("/tasks_done/%d", jobID)
	resp, err := c.post(ctx, path, body)
	if err != nil {
		return fmt.Errorf("slave: report tasks: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slave: report tasks: unexpected status %d", resp.StatusCode)
	}
	return nil
}

// Heartbeat performs GET /heartbeat.
func (c *Client) Heartbeat(ctx context.Context) error {
	resp, err := c.get(ctx, master.EndpointHeartbeat)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slave: heartbeat: unexpected status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.session.BaseURL()+path, nil)
	if err != nil {
		return nil, err
	}
	return c.session.Client.Do(req)
}

func (c *Client) post(ctx context.Context, path string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.session.BaseURL()+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	return c.session.Client.Do(req)
}
