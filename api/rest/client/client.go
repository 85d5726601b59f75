// Package client implements the worker-side proxy for the scheduler REST
// API. Every remote operation goes through one retry envelope: transport
// failures are retried a bounded number of times with a fixed wait, and the
// last failure is wrapped into an RPCError once the budget is exhausted.
package client

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"taskhub/internal/identity"
	"taskhub/pkg/logger"
	"taskhub/pkg/types"
)

const (
	// DefaultAttempts is the retry budget for idempotent operations.
	DefaultAttempts = 3

	defaultURL            = "http://localhost:8082"
	defaultConnectTimeout = 10 * time.Second
	defaultRetryWait      = 30 * time.Second
)

// RPCError reports that the scheduler stayed unreachable for a whole retry
// budget. It is the only error type the proxy raises for coordination
// failures.
type RPCError struct {
	Message string
	Cause   error
}

func (e *RPCError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *RPCError) Unwrap() error { return e.Cause }

// Config holds the proxy settings.
type Config struct {
	// URL of the scheduler, either http(s):// or http+unix://.
	URL string `yaml:"url" env:"TH_SCHEDULER_URL"`
	// ConnectTimeout bounds a single attempt.
	ConnectTimeout time.Duration `yaml:"connect_timeout" env:"TH_CONNECT_TIMEOUT"`
	// RetryWait is the fixed pause between attempts.
	RetryWait time.Duration `yaml:"retry_wait" env:"TH_RETRY_WAIT"`
	// WorkerID identifies this process to the scheduler. Generated when
	// empty.
	WorkerID string `yaml:"worker_id" env:"TH_WORKER_ID"`

	// NewBackOff overrides the wait policy, mainly for tests.
	NewBackOff func() backoff.BackOff `yaml:"-"`
}

// DefaultConfig returns the proxy defaults.
func DefaultConfig() *Config {
	return &Config{
		URL:            defaultURL,
		ConnectTimeout: defaultConnectTimeout,
		RetryWait:      defaultRetryWait,
	}
}

// SchedulerProxy is the client-side view of the scheduler.
type SchedulerProxy struct {
	config  *Config
	fetcher Fetcher
	baseURL string
	log     *zap.Logger
}

// New creates a proxy and selects a transport for the configured URL.
func New(config *Config) (*SchedulerProxy, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if config.URL == "" {
		config.URL = defaultURL
	}
	if config.ConnectTimeout <= 0 {
		config.ConnectTimeout = defaultConnectTimeout
	}
	if config.RetryWait <= 0 {
		config.RetryWait = defaultRetryWait
	}
	if config.WorkerID == "" {
		config.WorkerID = uuid.NewString()
	}

	fetcher, baseURL, err := newFetcher(config.URL, config.ConnectTimeout)
	if err != nil {
		return nil, err
	}
	return NewWithFetcher(config, fetcher, baseURL), nil
}

// NewWithFetcher creates a proxy on an explicit transport.
func NewWithFetcher(config *Config, fetcher Fetcher, baseURL string) *SchedulerProxy {
	return &SchedulerProxy{
		config:  config,
		fetcher: fetcher,
		baseURL: baseURL,
		log:     logger.L(),
	}
}

// WorkerID returns the identity this proxy registers under.
func (p *SchedulerProxy) WorkerID() string { return p.config.WorkerID }

func (p *SchedulerProxy) newBackOff() backoff.BackOff {
	if p.config.NewBackOff != nil {
		return p.config.NewBackOff()
	}
	return backoff.NewConstantBackOff(p.config.RetryWait)
}

// call runs one operation through the retry envelope. Transport failures
// consume attempts; a response from the scheduler, success or rejection,
// ends the loop immediately.
func (p *SchedulerProxy) call(op string, args interface{}, attempts int, out interface{}) error {
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode %s args: %w", op, err)
	}
	body, err := json.Marshal(types.Envelope{Data: string(data)})
	if err != nil {
		return fmt.Errorf("encode %s envelope: %w", op, err)
	}
	url := p.baseURL + "/api/" + op

	var status int
	var respBody []byte
	operation := func() error {
		st, b, err := p.fetcher.Fetch(url, body, p.config.ConnectTimeout)
		if err != nil {
			p.log.Warn("scheduler unreachable, will retry",
				zap.String("op", op),
				zap.Error(err))
			return err
		}
		status, respBody = st, b
		return nil
	}

	bo := backoff.WithMaxRetries(p.newBackOff(), uint64(attempts-1))
	if err := backoff.Retry(operation, bo); err != nil {
		return &RPCError{
			Message: fmt.Sprintf("errors after %d attempts connecting to scheduler at %s", attempts, p.config.URL),
			Cause:   err,
		}
	}

	if status != fiber.StatusOK {
		var errResp types.ErrorResponse
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Message != "" {
			return fmt.Errorf("scheduler rejected %s: %s", op, errResp.Message)
		}
		return fmt.Errorf("scheduler rejected %s: status %d", op, status)
	}

	var env types.ResponseEnvelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return fmt.Errorf("decode %s response: %w", op, err)
	}
	if out != nil && len(env.Response) > 0 {
		if err := json.Unmarshal(env.Response, out); err != nil {
			return fmt.Errorf("decode %s payload: %w", op, err)
		}
	}
	return nil
}

// Ping registers liveness. A ping is cheap to reissue, so it gets a single
// attempt and the caller decides when to try again.
func (p *SchedulerProxy) Ping() (*types.PingResponse, error) {
	args := types.PingArgs{Worker: p.config.WorkerID}
	var resp types.PingResponse
	if err := p.call("ping", args, 1, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetWork asks for one runnable task. Single attempt: a duplicate get_work
// after an ambiguous failure could hand the same task out twice.
func (p *SchedulerProxy) GetWork(host string, assistant bool) (*types.GetWorkResponse, error) {
	args := types.GetWorkArgs{
		Worker:    p.config.WorkerID,
		Host:      host,
		Assistant: assistant,
	}
	var resp types.GetWorkResponse
	if err := p.call("get_work", args, 1, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// AddTask declares or updates a task. The worker field defaults to this
// proxy's identity.
func (p *SchedulerProxy) AddTask(args *types.AddTaskArgs) error {
	if args.Worker == "" {
		args.Worker = p.config.WorkerID
	}
	return p.call("add_task", args, DefaultAttempts, nil)
}

// DeclareTask derives the canonical task id from family and significant
// parameters and submits the declaration. Parameters named in insignificant
// still travel with the task but do not contribute to its identity.
func (p *SchedulerProxy) DeclareTask(family string, params map[string]string, args *types.AddTaskArgs, insignificant ...string) error {
	if args == nil {
		args = &types.AddTaskArgs{Status: types.StatusPending, Runnable: true}
	}
	args.TaskID = identity.TaskID(family, identity.FromMap(params, insignificant...))
	args.Family = family
	args.Params = params
	return p.AddTask(args)
}

// Graph returns every task known to the scheduler.
func (p *SchedulerProxy) Graph() (map[string]*types.TaskView, error) {
	var resp map[string]*types.TaskView
	if err := p.call("graph", struct{}{}, DefaultAttempts, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// DepGraph returns the downstream closure of one task.
func (p *SchedulerProxy) DepGraph(taskID string) (*types.DepGraphResponse, error) {
	args := types.TaskIDArgs{TaskID: taskID}
	var resp types.DepGraphResponse
	if err := p.call("dep_graph", args, DefaultAttempts, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// InverseDepGraph returns the upstream closure of one task.
func (p *SchedulerProxy) InverseDepGraph(taskID string) (*types.DepGraphResponse, error) {
	args := types.TaskIDArgs{TaskID: taskID}
	var resp types.DepGraphResponse
	if err := p.call("inverse_dep_graph", args, DefaultAttempts, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TaskList returns tasks filtered by status, upstream status and substring.
func (p *SchedulerProxy) TaskList(status, upstreamStatus, search string) (map[string]*types.TaskView, error) {
	args := types.TaskListArgs{
		Status:         types.Status(status),
		UpstreamStatus: upstreamStatus,
		Search:         search,
	}
	var resp map[string]*types.TaskView
	if err := p.call("task_list", args, DefaultAttempts, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// WorkerList returns the registered workers.
func (p *SchedulerProxy) WorkerList() ([]*types.WorkerView, error) {
	var resp []*types.WorkerView
	if err := p.call("worker_list", struct{}{}, DefaultAttempts, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// TaskSearch returns tasks whose id contains the given substring.
func (p *SchedulerProxy) TaskSearch(taskStr string) (map[string]*types.TaskView, error) {
	args := types.TaskSearchArgs{TaskStr: taskStr}
	var resp map[string]*types.TaskView
	if err := p.call("task_search", args, DefaultAttempts, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// FetchError returns the stored failure explanation of one task.
func (p *SchedulerProxy) FetchError(taskID string) (*types.FetchErrorResponse, error) {
	args := types.TaskIDArgs{TaskID: taskID}
	var resp types.FetchErrorResponse
	if err := p.call("fetch_error", args, DefaultAttempts, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// AddWorker attaches metadata to this worker's registry entry.
func (p *SchedulerProxy) AddWorker(info map[string]string) error {
	args := types.AddWorkerArgs{Worker: p.config.WorkerID, Info: info}
	return p.call("add_worker", args, DefaultAttempts, nil)
}

// UpdateResources declares resource capacities.
func (p *SchedulerProxy) UpdateResources(resources map[string]int) error {
	args := types.UpdateResourcesArgs{Resources: resources}
	return p.call("update_resources", args, DefaultAttempts, nil)
}

// Prune triggers an immediate maintenance sweep.
func (p *SchedulerProxy) Prune() error {
	return p.call("prune", struct{}{}, DefaultAttempts, nil)
}

// ReEnableTask clears a disabled task's failure history.
func (p *SchedulerProxy) ReEnableTask(taskID string) error {
	args := types.TaskIDArgs{TaskID: taskID}
	return p.call("re_enable_task", args, DefaultAttempts, nil)
}
