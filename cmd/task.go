package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"taskhub/pkg/types"
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Inspect and manage tasks",
}

var taskListStatus string
var taskListUpstream string

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks, optionally filtered by status",
	RunE: func(cmd *cobra.Command, args []string) error {
		proxy, err := newProxy()
		if err != nil {
			return err
		}
		tasks, err := proxy.TaskList(taskListStatus, taskListUpstream, "")
		if err != nil {
			return err
		}
		printTasks(tasks)
		return nil
	},
}

var taskSearchCmd = &cobra.Command{
	Use:   "search <substring>",
	Short: "Find tasks whose id contains a substring",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		proxy, err := newProxy()
		if err != nil {
			return err
		}
		tasks, err := proxy.TaskSearch(args[0])
		if err != nil {
			return err
		}
		printTasks(tasks)
		return nil
	},
}

var taskDepsInverse bool

var taskDepsCmd = &cobra.Command{
	Use:   "deps <task-id>",
	Short: "Show a task's dependency closure in topological order",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		proxy, err := newProxy()
		if err != nil {
			return err
		}
		var graph *types.DepGraphResponse
		if taskDepsInverse {
			graph, err = proxy.InverseDepGraph(args[0])
		} else {
			graph, err = proxy.DepGraph(args[0])
		}
		if err != nil {
			return err
		}
		for _, id := range graph.Order {
			task := graph.Tasks[id]
			if task == nil {
				continue
			}
			fmt.Printf("%-10s %s\n", task.Status, id)
		}
		return nil
	},
}

var taskErrorCmd = &cobra.Command{
	Use:   "error <task-id>",
	Short: "Show a task's stored failure explanation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		proxy, err := newProxy()
		if err != nil {
			return err
		}
		resp, err := proxy.FetchError(args[0])
		if err != nil {
			return err
		}
		if resp.Expl == "" {
			fmt.Println("no error recorded")
			return nil
		}
		fmt.Println(resp.Expl)
		return nil
	},
}

var taskReEnableCmd = &cobra.Command{
	Use:   "re-enable <task-id>",
	Short: "Clear a disabled task's failure history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		proxy, err := newProxy()
		if err != nil {
			return err
		}
		if err := proxy.ReEnableTask(args[0]); err != nil {
			return err
		}
		fmt.Printf("re-enabled %s\n", args[0])
		return nil
	},
}

func init() {
	taskListCmd.Flags().StringVar(&taskListStatus, "status", "", "filter by status")
	taskListCmd.Flags().StringVar(&taskListUpstream, "upstream", "", "filter by upstream status")
	taskDepsCmd.Flags().BoolVar(&taskDepsInverse, "inverse", false, "show dependents instead of dependencies")

	taskCmd.AddCommand(taskListCmd, taskSearchCmd, taskDepsCmd, taskErrorCmd, taskReEnableCmd)
	rootCmd.AddCommand(taskCmd)
}

func printTasks(tasks map[string]*types.TaskView) {
	ids := make([]string, 0, len(tasks))
	for id := range tasks {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		task := tasks[id]
		fmt.Printf("%-10s prio=%-4d %s\n", task.Status, task.Priority, id)
	}
}
