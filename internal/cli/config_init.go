package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"elemforge/internal/config"
	"elemforge/internal/npm"
)

func newConfigCmd(a *app) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the elemforge configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	var overwrite bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter " + config.FileName + ".yaml",
		Long: `Write a starter configuration with every setting at its default to
<root>/` + config.FileName + `.yaml. The component name comes from --name or
package.json.

Examples:
  elemforge config init
  elemforge config init --name catalyst-tabs --overwrite
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := a.cfg
			name := cfg.Project.Name
			if name == "" {
				m, err := npm.ReadManifest(cfg.Path(npm.ManifestFile))
				if err != nil {
					return fmt.Errorf("cannot infer the component name (pass --name): %w", err)
				}
				name = npm.UnscopedName(m.Name())
			}
			if name == "" {
				return errors.New("cannot infer the component name (pass --name)")
			}

			path := a.configPath
			if path == "" {
				path = cfg.Path(config.FileName + ".yaml")
			}
			if fileExists(path) && !overwrite {
				return fmt.Errorf("%s already exists (use --overwrite to replace it)", path)
			}

			body, err := config.Starter(name)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return err
			}
			if err := os.WriteFile(path, body, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", path, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace an existing file")

	configCmd.AddCommand(initCmd)
	return configCmd
}
