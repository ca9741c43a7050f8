// Package cmd implements the stereorect command line interface.
package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/MeKo-Tech/stereorect/internal/config"
	"github.com/MeKo-Tech/stereorect/internal/version"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// cliState is shared by the commands of one root command tree.
type cliState struct {
	loader  *config.Loader
	cfgFile string
	cfg     *config.Config
}

// configKeyAnnotation marks a flag with the configuration key it sets.
const configKeyAnnotation = "stereorect_config_key"

// bindKey records that flag name of flags sets key. Several commands may
// map their own flag to the same key; only the executing command's flags
// are bound.
func bindKey(flags *pflag.FlagSet, name, key string) {
	if err := flags.SetAnnotation(name, configKeyAnnotation, []string{key}); err != nil {
		panic(fmt.Sprintf("bind flag %s: %v", name, err))
	}
}

// bindFlags binds the annotated flags of the executing command to viper.
func (s *cliState) bindFlags(flags *pflag.FlagSet) error {
	var err error
	flags.VisitAll(func(f *pflag.Flag) {
		keys := f.Annotations[configKeyAnnotation]
		if err != nil || len(keys) != 1 {
			return
		}
		err = s.loader.GetViper().BindPFlag(keys[0], f)
	})
	return err
}

// NewRootCommand builds a fresh command tree with its own configuration
// state, so commands can be executed repeatedly in one process.
func NewRootCommand() *cobra.Command {
	state := &cliState{loader: config.NewLoaderWithViper(viper.New())}

	rootCmd := &cobra.Command{
		Use:   "stereorect",
		Short: "Stereo image rectification",
		Long: `Compute rectifying homographies for a stereo pair from its fundamental
matrix and point correspondences, and resample image pairs so that matching
points share a row.

Examples:
  stereorect transforms -g geometry.yaml
  stereorect rectify -g geometry.yaml left.png right.png --out-dir out
  stereorect serve --port 8080`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if v, _ := cmd.Flags().GetBool("version"); v {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), version.String())
				return err
			}
			return cmd.Help()
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := state.bindFlags(cmd.Flags()); err != nil {
				return err
			}
			cfg, err := state.loader.LoadWithFile(state.cfgFile)
			if err != nil {
				return fmt.Errorf("error loading configuration: %w", err)
			}
			state.cfg = cfg
			setupLogging(cmd.ErrOrStderr(), cfg)
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&state.cfgFile, "config", "",
		"config file (default is search in ., $HOME, $HOME/.config/stereorect, /etc/stereorect)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output (equivalent to --log-level=debug)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.Flags().Bool("version", false, "print version information and exit")

	bindKey(rootCmd.PersistentFlags(), "verbose", "verbose")
	bindKey(rootCmd.PersistentFlags(), "log-level", "log_level")

	rootCmd.AddCommand(
		newTransformsCommand(state),
		newRectifyCommand(state),
		newServeCommand(state),
		newConfigCommand(state),
	)
	return rootCmd
}

// setupLogging installs the JSON slog handler at the configured level.
func setupLogging(w io.Writer, cfg *config.Config) {
	var level slog.Level
	if cfg.Verbose {
		level = slog.LevelDebug
	} else {
		switch cfg.LogLevel {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		default:
			level = slog.LevelInfo
		}
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})))
}

// Execute runs the CLI and exits non-zero on failure.
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

// GetRootCommand returns a new root command for testing purposes.
// This allows tests to execute commands without calling os.Exit().
func GetRootCommand() *cobra.Command {
	return NewRootCommand()
}
