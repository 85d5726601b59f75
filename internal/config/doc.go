// Package config loads scheduler configuration from defaults, a YAML
// file, environment variables and command-line overrides, in that order
// of increasing precedence.
package config
