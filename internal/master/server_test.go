package master

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/projectpolygon/hypercube-go/internal/config"
	"github.com/projectpolygon/hypercube-go/internal/logger"
	"github.com/projectpolygon/hypercube-go/internal/task"
	"github.com/projectpolygon/hypercube-go/internal/wire"
)

func init() {
	logger.Init("error", false)
}

func newTestServer(t *testing.T) (*Server, *Coordinator) {
	t.Helper()
	cfg := &config.MasterConfig{}
	cfg.Metrics.Enabled = false
	cfg.Admin.Enabled = false
	cfg.RateLimit.Enabled = false
	cfg.Connection.TimeoutSecs = 10.0
	cfg.Connection.CleanupIntervalSecs = 3.0

	coord := NewCoordinator(cfg, JobInfo{JobID: 7, JobPath: t.TempDir(), FileNames: nil})
	return NewServer(cfg, coord), coord
}

func withSessionCookie(r *http.Request, id string) *http.Request {
	r.AddCookie(&http.Cookie{Name: SessionCookieName, Value: id})
	return r
}

func TestServer_Discovery(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, EndpointDiscovery, nil)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ip")
}

func TestServer_Job_RegistersConnection(t *testing.T) {
	s, coord := newTestServer(t)
	id := uuid.New().String()

	req := withSessionCookie(httptest.NewRequest(http.MethodGet, "/job", nil), id)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, coord.Connections.HasConnection(id))
}

func TestServer_Job_RejectsMalformedCookie(t *testing.T) {
	s, _ := newTestServer(t)

	req := withSessionCookie(httptest.NewRequest(http.MethodGet, "/job", nil), "not-a-uuid")
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestServer_Job_404OnceDone(t *testing.T) {
	s, coord := newTestServer(t)
	coord.Status.JobCompleted()

	req := withSessionCookie(httptest.NewRequest(http.MethodGet, "/job", nil), uuid.New().String())
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

// S4
func TestServer_WrongJobID_Returns403(t *testing.T) {
	s, _ := newTestServer(t)

	cases := []struct {
		method, path string
	}{
		{http.MethodGet, "/file/8/foo"},
		{http.MethodGet, "/get_tasks/8/1"},
		{http.MethodPost, "/tasks_done/8"},
	}
	for _, c := range cases {
		req := withSessionCookie(httptest.NewRequest(c.method, c.path, nil), uuid.New().String())
		w := httptest.NewRecorder()
		s.ServeHTTP(w, req)
		assert.Equal(t, http.StatusForbidden, w.Code, c.path)
	}
}

func TestServer_GetTasks_JobEndSentinel(t *testing.T) {
	s, _ := newTestServer(t)
	id := uuid.New().String()

	req := withSessionCookie(httptest.NewRequest(http.MethodGet, "/get_tasks/7/1", nil), id)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	tasks, err := wire.DecodeTasks(w.Body.Bytes())
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.True(t, tasks[0].IsJobEnd())
}

// S6
func TestServer_GetTasks_NoMoreAvailableSentinel(t *testing.T) {
	s, coord := newTestServer(t)
	require.NoError(t, coord.LoadTasks([]task.Task{{TaskID: 1}}))

	first := withSessionCookie(httptest.NewRequest(http.MethodGet, "/get_tasks/7/1", nil), uuid.New().String())
	w1 := httptest.NewRecorder()
	s.ServeHTTP(w1, first)
	require.Equal(t, http.StatusOK, w1.Code)

	second := withSessionCookie(httptest.NewRequest(http.MethodGet, "/get_tasks/7/1", nil), uuid.New().String())
	w2 := httptest.NewRecorder()
	s.ServeHTTP(w2, second)
	assert.Equal(t, StatusNoMoreAvailable, w2.Code)
}

// S1 (abbreviated: exercises get_tasks -> tasks_done -> job_done transition)
func TestServer_HappyPath_TwoTasks(t *testing.T) {
	s, coord := newTestServer(t)
	require.NoError(t, coord.LoadTasks([]task.Task{
		{TaskID: 1, Payload: []byte("hello")},
		{TaskID: 2, Payload: []byte("world")},
	}))

	id := uuid.New().String()
	fetch := withSessionCookie(httptest.NewRequest(http.MethodGet, "/get_tasks/7/2", nil), id)
	wf := httptest.NewRecorder()
	s.ServeHTTP(wf, fetch)
	require.Equal(t, http.StatusOK, wf.Code)

	fetched, err := wire.DecodeTasks(wf.Body.Bytes())
	require.NoError(t, err)
	require.Len(t, fetched, 2)

	for i := range fetched {
		fetched[i].MessageType = task.Processed
	}
	body, err := wire.EncodeTasks(fetched)
	require.NoError(t, err)

	done := withSessionCookie(httptest.NewRequest(http.MethodPost, "/tasks_done/7", nil), id)
	done.Body = httpBody(body)
	wd := httptest.NewRecorder()
	s.ServeHTTP(wd, done)
	require.Equal(t, http.StatusOK, wd.Code)

	assert.True(t, coord.Status.IsJobDone())
	assert.Equal(t, 2, coord.Status.Snapshot().NumTasksDone)

	next := withSessionCookie(httptest.NewRequest(http.MethodGet, "/get_tasks/7/1", nil), id)
	wn := httptest.NewRecorder()
	s.ServeHTTP(wn, next)
	require.Equal(t, http.StatusOK, wn.Code)

	tasks, err := wire.DecodeTasks(wn.Body.Bytes())
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.True(t, tasks[0].IsJobEnd())
}

func TestServer_Heartbeat_ResetsTimer(t *testing.T) {
	s, coord := newTestServer(t)
	id := uuid.New().String()
	require.NoError(t, coord.Connections.AddConnection(id))

	req := withSessionCookie(httptest.NewRequest(http.MethodGet, "/heartbeat", nil), id)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}
