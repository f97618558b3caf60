package master

// Endpoint path constants shared by the master's router and the slave's
// HTTP client. Kept here rather than duplicated on both sides of the wire.
const (
	EndpointDiscovery  = "/discovery"
	EndpointJob        = "/job"
	EndpointFile       = "/file/{job_id}/{file_name}"
	EndpointGetTasks   = "/get_tasks/{job_id}/{n}"
	EndpointTasksDone  = "/tasks_done/{job_id}"
	EndpointHeartbeat  = "/heartbeat"
	EndpointMetrics    = "/metrics"
	EndpointAdminState = "/admin/status"
)

// SessionCookieName is the cookie a slave uses to identify itself across
// requests. Its value must be malleable only by the slave that created it;
// the master never generates one.
const SessionCookieName = "id"

// StatusNoMoreAvailable is the idiosyncratic status code (spec section 9)
// returned by /get_tasks when the available queue is empty but at least
// one task remains in progress, distinct from the job being truly done.
const StatusNoMoreAvailable = 42
