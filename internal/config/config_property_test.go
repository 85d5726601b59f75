package config

import (
	"fmt"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestConfigRoundTripProperty checks that serializing a configuration to
// YAML and parsing it back yields the same values.
func TestConfigRoundTripProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("config round-trip preserves data", prop.ForAll(
		func(config *Config) bool {
			yamlBytes, err := config.Serialize()
			if err != nil {
				return false
			}

			parsed, err := ParseConfig(yamlBytes)
			if err != nil {
				return false
			}

			return configsEqual(config, parsed)
		},
		genConfig(),
	))

	properties.TestingRun(t)
}

// TestSchedulerConfigRoundTripProperty checks the scheduler section alone.
func TestSchedulerConfigRoundTripProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("scheduler config round-trip preserves data", prop.ForAll(
		func(schedConfig SchedulerConfig) bool {
			config := DefaultConfig()
			config.Scheduler = schedConfig

			yamlBytes, err := config.Serialize()
			if err != nil {
				return false
			}

			parsed, err := ParseConfig(yamlBytes)
			if err != nil {
				return false
			}

			return config.Scheduler == parsed.Scheduler
		},
		genSchedulerConfig(),
	))

	properties.TestingRun(t)
}

// Generators for property-based testing

func genConfig() gopter.Gen {
	return gopter.CombineGens(
		genServerConfig(),
		genSchedulerConfig(),
		genClientConfig(),
	).Map(func(values []interface{}) *Config {
		return &Config{
			Server:    values[0].(ServerConfig),
			Scheduler: values[1].(SchedulerConfig),
			Client:    values[2].(ClientConfig),
			Logging:   LoggingConfig{Level: "info", Format: "json", Output: "stdout"},
		}
	})
}

func genServerConfig() gopter.Gen {
	return gopter.CombineGens(
		gen.IntRange(1024, 65535),
		gen.IntRange(1, 60),
		gen.IntRange(1, 60),
		gen.Bool(),
	).Map(func(values []interface{}) ServerConfig {
		return ServerConfig{
			Address:      fmt.Sprintf(":%d", values[0].(int)),
			ReadTimeout:  time.Duration(values[1].(int)) * time.Second,
			WriteTimeout: time.Duration(values[2].(int)) * time.Second,
			EnableCORS:   values[3].(bool),
		}
	})
}

func genSchedulerConfig() gopter.Gen {
	return gopter.CombineGens(
		gen.IntRange(10, 600),
		gen.IntRange(1, 9),
		gen.IntRange(0, 3600),
		gen.IntRange(0, 20),
	).Map(func(values []interface{}) SchedulerConfig {
		return SchedulerConfig{
			WorkerTimeout:   time.Duration(values[0].(int)) * time.Second,
			SweepInterval:   time.Duration(values[1].(int)) * time.Second,
			RetryDelay:      time.Duration(values[2].(int)) * time.Second,
			DisableFailures: values[3].(int),
			DisableWindow:   time.Hour,
			DisablePersist:  24 * time.Hour,
			RemoveDelay:     10 * time.Minute,
		}
	})
}

func genClientConfig() gopter.Gen {
	return gopter.CombineGens(
		gen.IntRange(1024, 65535),
		gen.IntRange(1, 60),
		gen.IntRange(0, 120),
	).Map(func(values []interface{}) ClientConfig {
		return ClientConfig{
			URL:            fmt.Sprintf("http://localhost:%d", values[0].(int)),
			ConnectTimeout: time.Duration(values[1].(int)) * time.Second,
			RetryWait:      time.Duration(values[2].(int)) * time.Second,
		}
	})
}

func configsEqual(a, b *Config) bool {
	return a.Server == b.Server &&
		a.Scheduler == b.Scheduler &&
		a.Client == b.Client &&
		a.Logging == b.Logging
}
