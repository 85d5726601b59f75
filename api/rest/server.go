// Package rest exposes the scheduler's RPC surface over HTTP. Every
// operation is a POST under /api with a uniform envelope: the request body
// carries the JSON-encoded arguments under a data field, the response wraps
// its payload under a response key.
package rest

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	fiberrecover "github.com/gofiber/fiber/v2/middleware/recover"

	"taskhub/internal/metrics"
	"taskhub/internal/scheduler"
	"taskhub/pkg/types"
)

// Server is the REST API server fronting the scheduler.
type Server struct {
	app      *fiber.App
	sched    *scheduler.Scheduler
	recorder *metrics.Recorder
	config   *Config
}

// Config holds the configuration for the REST API server.
type Config struct {
	// Address is the address to listen on (e.g., ":8082").
	Address string `yaml:"address"`

	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out writes of the response.
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// EnableCORS enables Cross-Origin Resource Sharing.
	EnableCORS bool `yaml:"enable_cors"`
}

// DefaultConfig returns a default server configuration.
func DefaultConfig() *Config {
	return &Config{
		Address:      ":8082",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		EnableCORS:   false,
	}
}

// NewServer creates the REST API server.
func NewServer(sched *scheduler.Scheduler, recorder *metrics.Recorder, config *Config) *Server {
	if config == nil {
		config = DefaultConfig()
	}
	if recorder == nil {
		recorder = metrics.NewRecorder()
	}

	app := fiber.New(fiber.Config{
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		ErrorHandler: customErrorHandler,
		AppName:      "Task Scheduler API",
	})

	server := &Server{
		app:      app,
		sched:    sched,
		recorder: recorder,
		config:   config,
	}

	server.setupMiddleware()
	server.setupRoutes()

	return server
}

// setupMiddleware configures middleware for the server.
func (s *Server) setupMiddleware() {
	s.app.Use(fiberrecover.New(fiberrecover.Config{
		EnableStackTrace: true,
	}))

	s.app.Use(logger.New(logger.Config{
		Format:     "${time} | ${status} | ${latency} | ${method} ${path}\n",
		TimeFormat: "2006-01-02 15:04:05",
	}))

	if s.config.EnableCORS {
		s.app.Use(cors.New(cors.Config{
			AllowOrigins: "*",
			AllowMethods: "GET,POST,OPTIONS",
			AllowHeaders: "Origin,Content-Type,Accept",
		}))
	}
}

// setupRoutes registers one handler per RPC operation plus the health and
// metrics conveniences.
func (s *Server) setupRoutes() {
	s.app.Get("/health", s.healthCheck)
	s.app.Get("/ready", s.readyCheck)

	api := s.app.Group("/api")
	api.Get("/metrics", s.getMetrics)

	api.Post("/ping", s.rpc("ping", s.handlePing))
	api.Post("/add_task", s.rpc("add_task", s.handleAddTask))
	api.Post("/get_work", s.rpc("get_work", s.handleGetWork))
	api.Post("/graph", s.rpc("graph", s.handleGraph))
	api.Post("/dep_graph", s.rpc("dep_graph", s.handleDepGraph))
	api.Post("/inverse_dep_graph", s.rpc("inverse_dep_graph", s.handleInverseDepGraph))
	api.Post("/task_list", s.rpc("task_list", s.handleTaskList))
	api.Post("/worker_list", s.rpc("worker_list", s.handleWorkerList))
	api.Post("/task_search", s.rpc("task_search", s.handleTaskSearch))
	api.Post("/fetch_error", s.rpc("fetch_error", s.handleFetchError))
	api.Post("/add_worker", s.rpc("add_worker", s.handleAddWorker))
	api.Post("/update_resources", s.rpc("update_resources", s.handleUpdateResources))
	api.Post("/prune", s.rpc("prune", s.handlePrune))
	api.Post("/re_enable_task", s.rpc("re_enable_task", s.handleReEnableTask))
}

// Start starts the REST API server.
func (s *Server) Start() error {
	return s.app.Listen(s.config.Address)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// ShutdownWithTimeout gracefully shuts down the server with a timeout.
func (s *Server) ShutdownWithTimeout(timeout time.Duration) error {
	return s.app.ShutdownWithTimeout(timeout)
}

// App returns the underlying Fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// customErrorHandler maps handler errors to the JSON error shape.
func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(types.ErrorResponse{
		Error:   fmt.Sprintf("error_%d", code),
		Message: message,
	})
}
