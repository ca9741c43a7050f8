package cmd

import (
	"fmt"
	"os"

	"github.com/MeKo-Tech/stereorect/internal/config"
	"github.com/spf13/cobra"
)

func newConfigCommand(state *cliState) *cobra.Command {
	c := &cobra.Command{
		Use:   "config",
		Short: "Inspect and create configuration files",
	}

	initCmd := &cobra.Command{
		Use:   "init [file]",
		Short: "Write a configuration file with the default settings",
		Long: `Write a configuration file containing every setting at its default value.
The file defaults to stereorect.yaml in the current directory.`,
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.ConfigFileName + ".yaml"
			if len(args) == 1 {
				path = args[0]
			}
			force, _ := cmd.Flags().GetBool("force")
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := config.GenerateDefaultConfigFile(path); err != nil {
				return fmt.Errorf("failed to write config: %w", err)
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "Configuration written to %s\n", path)
			return err
		},
	}
	initCmd.Flags().Bool("force", false, "overwrite an existing file")

	showCmd := &cobra.Command{
		Use:          "show",
		Short:        "Print the effective configuration",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, _ := cmd.Flags().GetString("format")
			if used := state.loader.GetConfigFileUsed(); used != "" {
				if _, err := fmt.Fprintf(cmd.ErrOrStderr(), "# loaded from %s\n", used); err != nil {
					return err
				}
			}
			return writeStructured(cmd.OutOrStdout(), format, state.cfg)
		},
	}
	showCmd.Flags().StringP("format", "f", outputFormatYAML, "output format: yaml or json")

	c.AddCommand(initCmd, showCmd)
	return c
}
