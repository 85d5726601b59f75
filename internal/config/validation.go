package config

import (
	"fmt"
	"net"
	"strings"
	"time"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("configuration validation failed:\n  - %s", strings.Join(msgs, "\n  - "))
}

// HasErrors returns true if there are any validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Validator validates configuration values.
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new configuration validator.
func NewValidator() *Validator {
	return &Validator{
		errors: make(ValidationErrors, 0),
	}
}

func (v *Validator) addError(field, message string) {
	v.errors = append(v.errors, ValidationError{Field: field, Message: message})
}

// Validate validates the entire configuration and returns any errors.
func (v *Validator) Validate(cfg *Config) error {
	v.errors = make(ValidationErrors, 0)

	v.validateServerConfig(&cfg.Server)
	v.validateSchedulerConfig(&cfg.Scheduler)
	v.validateClientConfig(&cfg.Client)
	v.validateLoggingConfig(&cfg.Logging)

	if v.errors.HasErrors() {
		return v.errors
	}
	return nil
}

func (v *Validator) validateServerConfig(cfg *ServerConfig) {
	if cfg.Address == "" {
		v.addError("server.address", "address is required")
	} else if !isValidAddress(cfg.Address) {
		v.addError("server.address", "invalid address format, expected host:port or :port")
	}

	if cfg.ReadTimeout < 0 {
		v.addError("server.read_timeout", "read timeout must be non-negative")
	}
	if cfg.WriteTimeout < 0 {
		v.addError("server.write_timeout", "write timeout must be non-negative")
	}
	if cfg.ReadTimeout > 0 && cfg.ReadTimeout < time.Second {
		v.addError("server.read_timeout", "read timeout should be at least 1 second")
	}
	if cfg.WriteTimeout > 0 && cfg.WriteTimeout < time.Second {
		v.addError("server.write_timeout", "write timeout should be at least 1 second")
	}
}

func (v *Validator) validateSchedulerConfig(cfg *SchedulerConfig) {
	if cfg.WorkerTimeout <= 0 {
		v.addError("scheduler.worker_timeout", "worker timeout must be positive")
	}
	if cfg.SweepInterval <= 0 {
		v.addError("scheduler.sweep_interval", "sweep interval must be positive")
	}

	// A sweep cadence slower than the liveness deadline makes the
	// deadline meaningless.
	if cfg.WorkerTimeout > 0 && cfg.SweepInterval > 0 &&
		cfg.SweepInterval >= cfg.WorkerTimeout {
		v.addError("scheduler.sweep_interval", "sweep interval should be shorter than worker timeout")
	}

	if cfg.RetryDelay < 0 {
		v.addError("scheduler.retry_delay", "retry delay must be non-negative")
	}
	if cfg.DisableFailures < 0 {
		v.addError("scheduler.disable_failures", "disable failure threshold must be non-negative")
	}
	if cfg.DisableWindow <= 0 && cfg.DisableFailures > 0 {
		v.addError("scheduler.disable_window", "disable window must be positive when a failure threshold is set")
	}
	if cfg.DisablePersist < 0 {
		v.addError("scheduler.disable_persist", "disable persist must be non-negative")
	}
	if cfg.RemoveDelay < 0 {
		v.addError("scheduler.remove_delay", "remove delay must be non-negative")
	}
}

func (v *Validator) validateClientConfig(cfg *ClientConfig) {
	if cfg.URL == "" {
		v.addError("client.url", "scheduler url is required")
	} else if !strings.HasPrefix(cfg.URL, "http://") &&
		!strings.HasPrefix(cfg.URL, "https://") &&
		!strings.HasPrefix(cfg.URL, "http+unix://") {
		v.addError("client.url", "scheduler url must start with http://, https:// or http+unix://")
	}

	if cfg.ConnectTimeout < 0 {
		v.addError("client.connect_timeout", "connect timeout must be non-negative")
	}
	if cfg.RetryWait < 0 {
		v.addError("client.retry_wait", "retry wait must be non-negative")
	}
}

func (v *Validator) validateLoggingConfig(cfg *LoggingConfig) {
	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
		"fatal": true,
	}
	if cfg.Level == "" {
		v.addError("logging.level", "log level is required")
	} else if !validLevels[strings.ToLower(cfg.Level)] {
		v.addError("logging.level", fmt.Sprintf("invalid log level '%s', must be one of: debug, info, warn, error, fatal", cfg.Level))
	}

	validFormats := map[string]bool{
		"json": true,
		"text": true,
	}
	if cfg.Format == "" {
		v.addError("logging.format", "log format is required")
	} else if !validFormats[strings.ToLower(cfg.Format)] {
		v.addError("logging.format", fmt.Sprintf("invalid log format '%s', must be one of: json, text", cfg.Format))
	}
}

// isValidAddress checks if the address is a valid host:port format.
func isValidAddress(addr string) bool {
	if addr == "" {
		return false
	}

	if strings.HasPrefix(addr, ":") {
		port := strings.TrimPrefix(addr, ":")
		if port == "" {
			return false
		}
		_, err := net.LookupPort("tcp", port)
		return err == nil
	}

	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}

	if port == "" {
		return false
	}
	if _, err := net.LookupPort("tcp", port); err != nil {
		return false
	}

	if host != "" {
		if ip := net.ParseIP(host); ip == nil {
			if !isValidHostname(host) {
				return false
			}
		}
	}

	return true
}

// isValidHostname performs basic hostname validation.
func isValidHostname(hostname string) bool {
	if len(hostname) == 0 || len(hostname) > 253 {
		return false
	}

	labels := strings.Split(hostname, ".")
	for _, label := range labels {
		if len(label) == 0 || len(label) > 63 {
			return false
		}
		if !isAlphanumeric(label[0]) || !isAlphanumeric(label[len(label)-1]) {
			return false
		}
		for _, c := range label {
			if !isAlphanumeric(byte(c)) && c != '-' {
				return false
			}
		}
	}

	return true
}

func isAlphanumeric(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// Validate validates the configuration and returns any errors.
// This is a convenience method on Config.
func (c *Config) Validate() error {
	return NewValidator().Validate(c)
}

// LoadAndValidate loads configuration from a file and validates it.
func LoadAndValidate(path string) (*Config, error) {
	cfg, err := LoadFromFile(path)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}
