package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"elemforge/internal/tasks"
)

func newTasksCmd(a *app) *cobra.Command {
	var quiet bool

	tasksCmd := &cobra.Command{
		Use:   "tasks",
		Short: "List and describe tasks",
		Long: `Inspect the tasks elemforge can run.

Tasks are selected with --tasks (see "elemforge build --help") and configured
with --set taskID.option=value.

Examples:
  elemforge tasks list
  elemforge tasks show lint-ts
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List available tasks",
		Long: `List every task registered in this build, sorted by task ID.

Output:
  A vertical list of tasks:
    ----------------------------------------
    TASK: {ID}
    ----------------------------------------
    {TITLE}
    {DESCRIPTION}
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			for _, t := range tasks.List() {
				if quiet {
					fmt.Fprintln(cmd.OutOrStdout(), t.ID())
				} else {
					printTask(cmd.OutOrStdout(), t)
				}
			}
			return nil
		},
	}
	listCmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Only print task IDs")

	showCmd := &cobra.Command{
		Use:   "show [task-id]",
		Short: "Show details of a task",
		Long: `Show a task's description, dependencies and options.

Examples:
  elemforge tasks show build-script
`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, ok := tasks.Lookup(args[0])
			if !ok {
				return fmt.Errorf("task not found: %s", args[0])
			}
			printTask(cmd.OutOrStdout(), t)
			return nil
		},
	}

	tasksCmd.AddCommand(listCmd, showCmd)
	return tasksCmd
}

func printTask(w io.Writer, t tasks.Task) {
	bold := color.New(color.Bold)
	fmt.Fprintln(w, "----------------------------------------")
	bold.Fprintf(w, "TASK: %s\n", t.ID())
	fmt.Fprintln(w, "----------------------------------------")
	fmt.Fprintln(w, t.Title())
	fmt.Fprintln(w, t.Description())

	if deps := t.Dependencies(); len(deps) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Depends on: %s\n", strings.Join(deps, ", "))
	}

	if ct, ok := t.(tasks.ConfigurableTask); ok {
		opts := ct.Options()
		if len(opts) > 0 {
			fmt.Fprintln(w)
			fmt.Fprintln(w, "Options:")
			for _, opt := range opts {
				def := opt.Default
				if def == "" {
					def = "\"\""
				}
				fmt.Fprintf(w, "  %s\n", opt.Name)
				fmt.Fprintf(w, "    Description: %s\n", opt.Description)
				fmt.Fprintf(w, "    Default:     %s\n", def)
			}
		}
	}
	fmt.Fprintln(w)
}
