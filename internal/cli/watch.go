package cli

import (
	"github.com/spf13/cobra"

	"elemforge/internal/engine"
	"elemforge/internal/flags"
	"elemforge/internal/watch"
)

func newWatchCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Rebuild whenever sources change",
		Long: `Build once, then rebuild whenever a file under the source directory, the
template or the stylesheet changes. Changes are batched until no file has
changed for --debounce. Stop with Ctrl-C.

Each rebuild emits a watch.rebuild event before the run's own events.

Examples:
	elemforge watch
	elemforge watch --tasks build-module --debounce 1s
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			selector := a.cfg.Tasks.Selector
			logger, err := a.load(cmd)
			if err != nil {
				return err
			}
			if selector == "" && a.cfg.Tasks.Selector == "" {
				a.cfg.Tasks.Selector = defaultBuildSelector
			}

			outMgr, err := engine.SetupOutputManager(a.cfg, a.stdout)
			if err != nil {
				return err
			}
			defer outMgr.Close()

			eng := a.newEngine(logger)
			return watch.Serve(cmd.Context(), eng, a.cfg, outMgr)
		},
	}
	cmd.Flags().StringVar(&a.cfg.Tasks.Selector, flags.FlagTasks, "", "Task selector (default: "+defaultBuildSelector+")")
	cmd.Flags().DurationVar(&a.cfg.Runtime.Debounce, flags.FlagDebounce, a.cfg.Runtime.Debounce, "Quiet period before a rebuild")
	a.addBuildFlags(cmd)
	return cmd
}
