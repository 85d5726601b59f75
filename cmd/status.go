package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"taskhub/pkg/types"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show scheduler status",
	Long:  `Prints a summary of tasks by status and the registered workers.`,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	proxy, err := newProxy()
	if err != nil {
		return err
	}

	tasks, err := proxy.Graph()
	if err != nil {
		return err
	}

	counts := make(map[types.Status]int)
	for _, task := range tasks {
		counts[task.Status]++
	}

	fmt.Printf("Tasks: %d\n", len(tasks))
	for _, status := range []types.Status{
		types.StatusPending,
		types.StatusRunning,
		types.StatusDone,
		types.StatusFailed,
		types.StatusDisabled,
		types.StatusUnknown,
	} {
		if counts[status] > 0 {
			fmt.Printf("  %-10s %d\n", status, counts[status])
		}
	}

	workers, err := proxy.WorkerList()
	if err != nil {
		return err
	}

	fmt.Printf("Workers: %d\n", len(workers))
	for _, w := range workers {
		fmt.Printf("  %s  last seen %s", w.ID, time.Unix(w.LastSeen, 0).Format("15:04:05"))
		if len(w.Running) > 0 {
			fmt.Printf("  running %d", len(w.Running))
		}
		fmt.Println()
	}

	return nil
}
