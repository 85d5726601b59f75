package types

import "encoding/json"

// Envelope is the uniform request body for every RPC operation: the argument
// object is JSON-encoded into the data field.
type Envelope struct {
	Data string `json:"data"`
}

// ResponseEnvelope wraps every successful RPC payload under a single key.
type ResponseEnvelope struct {
	Response json.RawMessage `json:"response"`
}

// ErrorResponse is the shape returned for malformed envelopes and logical
// rejections. These are never retried by the proxy.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// PingArgs identifies the calling worker.
type PingArgs struct {
	Worker string `json:"worker"`
}

// PingResponse carries scheduler-side directives back to the worker. The
// only directive currently emitted is "stop".
type PingResponse struct {
	RPCMessages []string `json:"rpc_messages"`
}

// AddTaskArgs declares or updates a task record.
type AddTaskArgs struct {
	TaskID    string            `json:"task_id"`
	Worker    string            `json:"worker"`
	Status    Status            `json:"status"`
	Runnable  bool              `json:"runnable"`
	Deps      []string          `json:"deps"`
	NewDeps   []string          `json:"new_deps"`
	Expl      string            `json:"expl"`
	Resources map[string]int    `json:"resources"`
	Priority  int               `json:"priority"`
	Family    string            `json:"family"`
	Module    string            `json:"module"`
	Params    map[string]string `json:"params"`
	Assistant bool              `json:"assistant"`
	// Force resets a DONE task back through the normal transitions.
	Force bool `json:"force,omitempty"`
}

// GetWorkArgs is the work-request payload.
type GetWorkArgs struct {
	Worker    string `json:"worker"`
	Host      string `json:"host"`
	Assistant bool   `json:"assistant"`
}

// GetWorkResponse is the assignment result. An empty TaskID means no work
// was available, which is a normal outcome rather than an error.
type GetWorkResponse struct {
	NPendingTasks int               `json:"n_pending_tasks"`
	TaskID        string            `json:"task_id"`
	Family        string            `json:"task_family,omitempty"`
	Module        string            `json:"task_module,omitempty"`
	Params        map[string]string `json:"task_params,omitempty"`
	Resources     map[string]int    `json:"task_resources,omitempty"`
	Priority      int               `json:"task_priority,omitempty"`
}

// TaskIDArgs addresses a single task (dep_graph, fetch_error, re_enable_task).
type TaskIDArgs struct {
	TaskID string `json:"task_id"`
}

// TaskListArgs filters the bulk task listing.
type TaskListArgs struct {
	Status         Status `json:"status"`
	UpstreamStatus string `json:"upstream_status"`
	Search         string `json:"search"`
}

// TaskSearchArgs matches tasks whose id contains the substring.
type TaskSearchArgs struct {
	TaskStr string `json:"task_str"`
}

// DepGraphResponse is the subgraph returned by dep_graph and
// inverse_dep_graph: the reachable tasks plus a topological ordering in
// which every dependency precedes its dependents.
type DepGraphResponse struct {
	Root  string               `json:"root"`
	Tasks map[string]*TaskView `json:"tasks"`
	Order []string             `json:"order,omitempty"`
}

// AddWorkerArgs attaches registration metadata to a worker record.
type AddWorkerArgs struct {
	Worker string            `json:"worker"`
	Info   map[string]string `json:"info"`
}

// UpdateResourcesArgs replaces the capacities of the named resources.
type UpdateResourcesArgs struct {
	Resources map[string]int `json:"resources"`
}

// FetchErrorResponse returns the explanation stored for a failed task.
type FetchErrorResponse struct {
	TaskID string `json:"task_id"`
	Expl   string `json:"expl"`
}

// Ack is the empty acknowledgement payload for mutation-only operations.
type Ack struct {
	OK bool `json:"ok"`
}
