package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"taskhub/api/rest/client"
	"taskhub/internal/config"
	"taskhub/pkg/logger"
)

// Version is the current release.
const Version = "0.1.0"

var (
	cfgFile      string
	debug        bool
	schedulerURL string
)

var rootCmd = &cobra.Command{
	Use:   "taskhub",
	Short: "Central task scheduler",
	Long: `taskhub is a central scheduler for dependency-ordered task graphs.
Workers declare tasks and their dependencies, ask for runnable work and
report outcomes; the hub orders execution, enforces shared resource
limits and reclaims work from workers that go silent.`,
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		level := cfg.Logging.Level
		if debug {
			level = "debug"
		}
		logger.Init(&logger.Config{
			Level:  level,
			Format: cfg.Logging.Format,
			Output: cfg.Logging.Output,
		})
		return nil
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to config file")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&schedulerURL, "url", "", "scheduler url for client commands")

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// cmdOverrides collects the set flags as dot-notation config paths, so the
// loader applies them in its own precedence layer.
func cmdOverrides() map[string]string {
	args := make(map[string]string)
	if schedulerURL != "" {
		args["client.url"] = schedulerURL
	}
	if serveAddress != "" {
		args["server.address"] = serveAddress
	}
	return args
}

// loadConfig loads the layered configuration, honoring the --config flag.
func loadConfig() (*config.Config, error) {
	loader := config.NewLoader()
	if cfgFile != "" {
		loader = loader.WithConfigPath(cfgFile)
	}
	return loader.WithCmdArgs(cmdOverrides()).Load()
}

// newProxy builds a scheduler proxy from the loaded configuration.
func newProxy() (*client.SchedulerProxy, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return client.New(&client.Config{
		URL:            cfg.Client.URL,
		ConnectTimeout: cfg.Client.ConnectTimeout,
		RetryWait:      cfg.Client.RetryWait,
		WorkerID:       cfg.Client.WorkerID,
	})
}
