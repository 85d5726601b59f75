package rest

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"

	"taskhub/internal/metrics"
	"taskhub/pkg/types"
)

// rpcHandler decodes the operation's argument object and returns the inner
// response payload. A returned error is a logical rejection, never retried
// by clients.
type rpcHandler func(data []byte) (interface{}, error)

// rpc wraps a handler with envelope decoding, latency recording, and the
// uniform response shape.
func (s *Server) rpc(op string, h rpcHandler) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		data, err := decodeEnvelope(c)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(types.ErrorResponse{
				Error:   "invalid_envelope",
				Message: err.Error(),
			})
		}

		payload, err := h(data)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(types.ErrorResponse{
				Error:   "rejected",
				Message: err.Error(),
			})
		}

		s.recorder.Observe(op, time.Since(start))
		return c.JSON(fiber.Map{"response": payload})
	}
}

// decodeEnvelope extracts the JSON-encoded argument object from the request.
// A JSON body {"data": "..."} and a form field data are both accepted.
func decodeEnvelope(c *fiber.Ctx) ([]byte, error) {
	var env types.Envelope
	if err := json.Unmarshal(c.Body(), &env); err == nil && env.Data != "" {
		return []byte(env.Data), nil
	}
	if v := c.FormValue("data"); v != "" {
		return []byte(v), nil
	}
	return nil, fmt.Errorf("request envelope is missing the data field")
}

func (s *Server) handlePing(data []byte) (interface{}, error) {
	var args types.PingArgs
	if err := json.Unmarshal(data, &args); err != nil {
		return nil, fmt.Errorf("malformed ping arguments: %w", err)
	}
	if args.Worker == "" {
		return nil, fmt.Errorf("worker is required")
	}
	return s.sched.Ping(args.Worker), nil
}

func (s *Server) handleAddTask(data []byte) (interface{}, error) {
	var args types.AddTaskArgs
	if err := json.Unmarshal(data, &args); err != nil {
		return nil, fmt.Errorf("malformed add_task arguments: %w", err)
	}
	if err := s.sched.AddTask(&args); err != nil {
		return nil, err
	}
	return types.Ack{OK: true}, nil
}

func (s *Server) handleGetWork(data []byte) (interface{}, error) {
	var args types.GetWorkArgs
	if err := json.Unmarshal(data, &args); err != nil {
		return nil, fmt.Errorf("malformed get_work arguments: %w", err)
	}
	return s.sched.GetWork(&args)
}

func (s *Server) handleGraph([]byte) (interface{}, error) {
	return s.sched.Graph(), nil
}

func (s *Server) handleDepGraph(data []byte) (interface{}, error) {
	var args types.TaskIDArgs
	if err := json.Unmarshal(data, &args); err != nil {
		return nil, fmt.Errorf("malformed dep_graph arguments: %w", err)
	}
	return s.sched.DepGraph(args.TaskID), nil
}

func (s *Server) handleInverseDepGraph(data []byte) (interface{}, error) {
	var args types.TaskIDArgs
	if err := json.Unmarshal(data, &args); err != nil {
		return nil, fmt.Errorf("malformed inverse_dep_graph arguments: %w", err)
	}
	return s.sched.InverseDepGraph(args.TaskID), nil
}

func (s *Server) handleTaskList(data []byte) (interface{}, error) {
	var args types.TaskListArgs
	if err := json.Unmarshal(data, &args); err != nil {
		return nil, fmt.Errorf("malformed task_list arguments: %w", err)
	}
	if args.Status != "" && !args.Status.Valid() {
		return nil, fmt.Errorf("invalid status filter %q", args.Status)
	}
	return s.sched.TaskList(args.Status, args.UpstreamStatus, args.Search), nil
}

func (s *Server) handleWorkerList([]byte) (interface{}, error) {
	return s.sched.WorkerList(), nil
}

func (s *Server) handleTaskSearch(data []byte) (interface{}, error) {
	var args types.TaskSearchArgs
	if err := json.Unmarshal(data, &args); err != nil {
		return nil, fmt.Errorf("malformed task_search arguments: %w", err)
	}
	return s.sched.TaskSearch(args.TaskStr), nil
}

func (s *Server) handleFetchError(data []byte) (interface{}, error) {
	var args types.TaskIDArgs
	if err := json.Unmarshal(data, &args); err != nil {
		return nil, fmt.Errorf("malformed fetch_error arguments: %w", err)
	}
	return s.sched.FetchError(args.TaskID)
}

func (s *Server) handleAddWorker(data []byte) (interface{}, error) {
	var args types.AddWorkerArgs
	if err := json.Unmarshal(data, &args); err != nil {
		return nil, fmt.Errorf("malformed add_worker arguments: %w", err)
	}
	if err := s.sched.AddWorker(args.Worker, args.Info); err != nil {
		return nil, err
	}
	return types.Ack{OK: true}, nil
}

func (s *Server) handleUpdateResources(data []byte) (interface{}, error) {
	var args types.UpdateResourcesArgs
	if err := json.Unmarshal(data, &args); err != nil {
		return nil, fmt.Errorf("malformed update_resources arguments: %w", err)
	}
	s.sched.UpdateResources(args.Resources)
	return types.Ack{OK: true}, nil
}

func (s *Server) handlePrune([]byte) (interface{}, error) {
	s.sched.Prune()
	return types.Ack{OK: true}, nil
}

func (s *Server) handleReEnableTask(data []byte) (interface{}, error) {
	var args types.TaskIDArgs
	if err := json.Unmarshal(data, &args); err != nil {
		return nil, fmt.Errorf("malformed re_enable_task arguments: %w", err)
	}
	if err := s.sched.ReEnableTask(args.TaskID); err != nil {
		return nil, err
	}
	return types.Ack{OK: true}, nil
}

// healthCheck handles GET /health
func (s *Server) healthCheck(c *fiber.Ctx) error {
	return c.JSON(HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().Format(time.RFC3339),
	})
}

// readyCheck handles GET /ready
func (s *Server) readyCheck(c *fiber.Ctx) error {
	ready := s.sched != nil && s.sched.IsRunning()
	status := "ready"
	if !ready {
		status = "not_ready"
	}
	return c.JSON(ReadyResponse{
		Ready:     ready,
		Status:    status,
		Timestamp: time.Now().Format(time.RFC3339),
	})
}

// getMetrics handles GET /api/metrics
func (s *Server) getMetrics(c *fiber.Ctx) error {
	return c.JSON(MetricsResponse{
		Operations: s.recorder.Snapshot(),
		Resources:  s.sched.Resources(),
		Tasks:      s.sched.TaskCount(),
		Workers:    s.sched.WorkerCount(),
	})
}

// HealthResponse is returned by the health endpoint.
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// ReadyResponse is returned by the readiness endpoint.
type ReadyResponse struct {
	Ready     bool   `json:"ready"`
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// MetricsResponse is returned by the metrics endpoint.
type MetricsResponse struct {
	Operations []metrics.OpStats    `json:"operations"`
	Resources  []types.ResourceView `json:"resources"`
	Tasks      int                  `json:"tasks"`
	Workers    int                  `json:"workers"`
}
