package main

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"taskhub/api/rest"
	"taskhub/internal/metrics"
	"taskhub/internal/scheduler"
	"taskhub/pkg/logger"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scheduler",
	Long: `Starts the scheduling core and its REST API, and keeps running
until interrupted. Workers talk to this process through the /api
endpoints.`,
	RunE: runServe,
}

var serveAddress string

func init() {
	serveCmd.Flags().StringVar(&serveAddress, "address", "", "listen address, overrides config")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	sched := scheduler.New(&scheduler.Config{
		WorkerTimeout:   cfg.Scheduler.WorkerTimeout,
		SweepInterval:   cfg.Scheduler.SweepInterval,
		RetryDelay:      cfg.Scheduler.RetryDelay,
		DisableFailures: cfg.Scheduler.DisableFailures,
		DisableWindow:   cfg.Scheduler.DisableWindow,
		DisablePersist:  cfg.Scheduler.DisablePersist,
		RemoveDelay:     cfg.Scheduler.RemoveDelay,
	}, logger.L())

	server := rest.NewServer(sched, metrics.NewRecorder(), &rest.Config{
		Address:      cfg.Server.Address,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		EnableCORS:   cfg.Server.EnableCORS,
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := sched.Start(ctx); err != nil {
		return err
	}
	defer sched.Stop()

	logger.Info("scheduler listening",
		zap.String("address", cfg.Server.Address),
		zap.Duration("worker_timeout", cfg.Scheduler.WorkerTimeout))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		return server.ShutdownWithTimeout(30 * time.Second)
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("scheduler stopped: %w", err)
	}

	logger.Info("scheduler stopped")
	logger.Sync()
	return nil
}
