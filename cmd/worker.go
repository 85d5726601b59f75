package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Inspect registered workers",
}

var workerListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered workers",
	RunE: func(cmd *cobra.Command, args []string) error {
		proxy, err := newProxy()
		if err != nil {
			return err
		}
		workers, err := proxy.WorkerList()
		if err != nil {
			return err
		}
		for _, w := range workers {
			fmt.Printf("%s  host=%s  last_seen=%s  running=%d\n",
				w.ID, w.Host,
				time.Unix(w.LastSeen, 0).Format(time.RFC3339),
				len(w.Running))
		}
		return nil
	},
}

var resourcesCmd = &cobra.Command{
	Use:   "resources",
	Short: "Manage shared resource capacities",
}

var resourcesSetCmd = &cobra.Command{
	Use:   "set name=capacity [name=capacity ...]",
	Short: "Declare resource capacities",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		resources := make(map[string]int, len(args))
		for _, arg := range args {
			name, value, ok := strings.Cut(arg, "=")
			if !ok || name == "" {
				return fmt.Errorf("invalid resource %q, expected name=capacity", arg)
			}
			capacity, err := strconv.Atoi(value)
			if err != nil || capacity < 0 {
				return fmt.Errorf("invalid capacity %q for resource %s", value, name)
			}
			resources[name] = capacity
		}

		proxy, err := newProxy()
		if err != nil {
			return err
		}
		if err := proxy.UpdateResources(resources); err != nil {
			return err
		}

		names := make([]string, 0, len(resources))
		for name := range resources {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Printf("%s=%d\n", name, resources[name])
		}
		return nil
	},
}

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Trigger an immediate maintenance sweep",
	RunE: func(cmd *cobra.Command, args []string) error {
		proxy, err := newProxy()
		if err != nil {
			return err
		}
		if err := proxy.Prune(); err != nil {
			return err
		}
		fmt.Println("prune requested")
		return nil
	},
}

func init() {
	workerCmd.AddCommand(workerListCmd)
	resourcesCmd.AddCommand(resourcesSetCmd)
	rootCmd.AddCommand(workerCmd, resourcesCmd, pruneCmd)
}
