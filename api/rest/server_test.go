package rest

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskhub/internal/scheduler"
	"taskhub/pkg/types"
)

func newTestServer() *Server {
	return NewServer(scheduler.New(nil, nil), nil, nil)
}

// rpcRequest posts args through the request envelope to /api/<op>.
func rpcRequest(t *testing.T, server *Server, op string, args interface{}) (int, []byte) {
	t.Helper()

	data, err := json.Marshal(args)
	require.NoError(t, err)
	body, err := json.Marshal(types.Envelope{Data: string(data)})
	require.NoError(t, err)

	req := httptest.NewRequest("POST", "/api/"+op, strings.NewReader(string(body)))
	req.Header.Set("Content-Type", "application/json")
	resp, err := server.App().Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, respBody
}

// decodeResponse unwraps the response envelope into out.
func decodeResponse(t *testing.T, body []byte, out interface{}) {
	t.Helper()
	var env types.ResponseEnvelope
	require.NoError(t, json.Unmarshal(body, &env))
	require.NoError(t, json.Unmarshal(env.Response, out))
}

func TestHealthCheck(t *testing.T) {
	server := newTestServer()

	req := httptest.NewRequest("GET", "/health", nil)
	resp, err := server.App().Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	body, _ := io.ReadAll(resp.Body)
	var result HealthResponse
	err = json.Unmarshal(body, &result)
	require.NoError(t, err)
	assert.Equal(t, "healthy", result.Status)
}

func TestReadyCheckNotStarted(t *testing.T) {
	server := newTestServer()

	req := httptest.NewRequest("GET", "/ready", nil)
	resp, err := server.App().Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	body, _ := io.ReadAll(resp.Body)
	var result ReadyResponse
	err = json.Unmarshal(body, &result)
	require.NoError(t, err)
	assert.False(t, result.Ready)
	assert.Equal(t, "not_ready", result.Status)
}

func TestPingRegistersWorker(t *testing.T) {
	server := newTestServer()

	status, body := rpcRequest(t, server, "ping", types.PingArgs{Worker: "w1"})
	assert.Equal(t, fiber.StatusOK, status)

	var resp types.PingResponse
	decodeResponse(t, body, &resp)
	assert.Empty(t, resp.RPCMessages)
}

func TestPingRequiresWorker(t *testing.T) {
	server := newTestServer()

	status, body := rpcRequest(t, server, "ping", types.PingArgs{})
	assert.Equal(t, fiber.StatusBadRequest, status)

	var errResp types.ErrorResponse
	require.NoError(t, json.Unmarshal(body, &errResp))
	assert.Equal(t, "rejected", errResp.Error)
	assert.Contains(t, errResp.Message, "worker is required")
}

func TestMissingEnvelope(t *testing.T) {
	server := newTestServer()

	req := httptest.NewRequest("POST", "/api/ping", strings.NewReader(`{"worker":"w1"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := server.App().Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	body, _ := io.ReadAll(resp.Body)
	var errResp types.ErrorResponse
	require.NoError(t, json.Unmarshal(body, &errResp))
	assert.Equal(t, "invalid_envelope", errResp.Error)
}

func TestFormEncodedEnvelope(t *testing.T) {
	server := newTestServer()

	form := "data=" + `{"worker":"w1"}`
	req := httptest.NewRequest("POST", "/api/ping", strings.NewReader(form))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := server.App().Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestAddTaskAndGetWorkRoundTrip(t *testing.T) {
	server := newTestServer()

	status, body := rpcRequest(t, server, "add_task", types.AddTaskArgs{
		TaskID:   "A()",
		Worker:   "w1",
		Status:   types.StatusPending,
		Runnable: true,
	})
	require.Equal(t, fiber.StatusOK, status)

	var ack types.Ack
	decodeResponse(t, body, &ack)
	assert.True(t, ack.OK)

	status, body = rpcRequest(t, server, "get_work", types.GetWorkArgs{Worker: "w1"})
	require.Equal(t, fiber.StatusOK, status)

	var work types.GetWorkResponse
	decodeResponse(t, body, &work)
	assert.Equal(t, "A()", work.TaskID)
	assert.Equal(t, 1, work.NPendingTasks)
}

func TestAddTaskRejectsRunning(t *testing.T) {
	server := newTestServer()

	status, body := rpcRequest(t, server, "add_task", types.AddTaskArgs{
		TaskID: "A()", Worker: "w1", Status: types.StatusRunning,
	})
	assert.Equal(t, fiber.StatusBadRequest, status)

	var errResp types.ErrorResponse
	require.NoError(t, json.Unmarshal(body, &errResp))
	assert.Contains(t, errResp.Message, "RUNNING")
}

func TestGraphEndpoint(t *testing.T) {
	server := newTestServer()
	rpcRequest(t, server, "add_task", types.AddTaskArgs{
		TaskID: "A()", Worker: "w1", Status: types.StatusPending, Runnable: true,
	})
	rpcRequest(t, server, "add_task", types.AddTaskArgs{
		TaskID: "B()", Worker: "w1", Status: types.StatusPending, Runnable: true,
		Deps: []string{"A()"},
	})

	status, body := rpcRequest(t, server, "graph", struct{}{})
	require.Equal(t, fiber.StatusOK, status)

	var graph map[string]*types.TaskView
	decodeResponse(t, body, &graph)
	require.Len(t, graph, 2)
	assert.Equal(t, []string{"A()"}, graph["B()"].Deps)
}

func TestDepGraphEndpoint(t *testing.T) {
	server := newTestServer()
	rpcRequest(t, server, "add_task", types.AddTaskArgs{
		TaskID: "A()", Worker: "w1", Status: types.StatusPending, Runnable: true,
	})
	rpcRequest(t, server, "add_task", types.AddTaskArgs{
		TaskID: "B()", Worker: "w1", Status: types.StatusPending, Runnable: true,
		Deps: []string{"A()"},
	})

	status, body := rpcRequest(t, server, "dep_graph", types.TaskIDArgs{TaskID: "B()"})
	require.Equal(t, fiber.StatusOK, status)

	var resp types.DepGraphResponse
	decodeResponse(t, body, &resp)
	assert.Equal(t, "B()", resp.Root)
	assert.Equal(t, []string{"A()", "B()"}, resp.Order)

	status, body = rpcRequest(t, server, "inverse_dep_graph", types.TaskIDArgs{TaskID: "A()"})
	require.Equal(t, fiber.StatusOK, status)
	decodeResponse(t, body, &resp)
	assert.Len(t, resp.Tasks, 2)
}

func TestTaskListEndpointValidatesStatus(t *testing.T) {
	server := newTestServer()

	status, _ := rpcRequest(t, server, "task_list", types.TaskListArgs{Status: "BOGUS"})
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, _ = rpcRequest(t, server, "task_list", types.TaskListArgs{Status: types.StatusPending})
	assert.Equal(t, fiber.StatusOK, status)
}

func TestWorkerListEndpoint(t *testing.T) {
	server := newTestServer()
	rpcRequest(t, server, "ping", types.PingArgs{Worker: "w1"})

	status, body := rpcRequest(t, server, "worker_list", struct{}{})
	require.Equal(t, fiber.StatusOK, status)

	var workers []*types.WorkerView
	decodeResponse(t, body, &workers)
	require.Len(t, workers, 1)
	assert.Equal(t, "w1", workers[0].ID)
}

func TestFetchErrorEndpoint(t *testing.T) {
	server := newTestServer()
	rpcRequest(t, server, "add_task", types.AddTaskArgs{
		TaskID: "A()", Worker: "w1", Status: types.StatusFailed, Runnable: true,
		Expl: "exit code 1",
	})

	status, body := rpcRequest(t, server, "fetch_error", types.TaskIDArgs{TaskID: "A()"})
	require.Equal(t, fiber.StatusOK, status)

	var resp types.FetchErrorResponse
	decodeResponse(t, body, &resp)
	assert.Equal(t, "exit code 1", resp.Expl)

	status, _ = rpcRequest(t, server, "fetch_error", types.TaskIDArgs{TaskID: "Ghost()"})
	assert.Equal(t, fiber.StatusBadRequest, status)
}

func TestUpdateResourcesAndMetrics(t *testing.T) {
	server := newTestServer()

	status, _ := rpcRequest(t, server, "update_resources", types.UpdateResourcesArgs{
		Resources: map[string]int{"db": 3},
	})
	require.Equal(t, fiber.StatusOK, status)

	req := httptest.NewRequest("GET", "/api/metrics", nil)
	resp, err := server.App().Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	body, _ := io.ReadAll(resp.Body)
	var result MetricsResponse
	require.NoError(t, json.Unmarshal(body, &result))
	require.Len(t, result.Resources, 1)
	assert.Equal(t, "db", result.Resources[0].Name)
	assert.Equal(t, 3, result.Resources[0].Total)

	// The update_resources call itself was recorded.
	require.NotEmpty(t, result.Operations)
	assert.Equal(t, "update_resources", result.Operations[0].Op)
}

func TestReEnableTaskEndpoint(t *testing.T) {
	server := newTestServer()
	rpcRequest(t, server, "add_task", types.AddTaskArgs{
		TaskID: "A()", Worker: "w1", Status: types.StatusDisabled, Runnable: true,
	})

	status, body := rpcRequest(t, server, "re_enable_task", types.TaskIDArgs{TaskID: "A()"})
	require.Equal(t, fiber.StatusOK, status)

	var ack types.Ack
	decodeResponse(t, body, &ack)
	assert.True(t, ack.OK)
}

func TestPruneEndpoint(t *testing.T) {
	server := newTestServer()

	status, body := rpcRequest(t, server, "prune", struct{}{})
	require.Equal(t, fiber.StatusOK, status)

	var ack types.Ack
	decodeResponse(t, body, &ack)
	assert.True(t, ack.OK)
}
