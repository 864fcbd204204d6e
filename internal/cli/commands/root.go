package commands

import (
	"fmt"
	"runtime"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/conduit-lang/propsheet/internal/cli/config"
	"github.com/conduit-lang/propsheet/internal/cli/ui"
	"github.com/conduit-lang/propsheet/internal/logging"
)

var (
	// Version information - set at build time
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
	GoVersion = "unknown"
)

var (
	configDirFlag string
	logLevelFlag  string
	noColorFlag   bool
)

// NewRootCommand creates the root command
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "propsheet",
		Short: "Inspect and edit object attributes as property sheets",
		Long: color.CyanString(`propsheet - property sheets for Go values

propsheet discovers the attributes of an object, shows them as a
categorized tree, and edits them through an undoable command history.

Features:
  • Attributes from struct tags or a metadata table
  • Lazy attributes loaded in the background
  • Merged edits with undo and redo
  • Column layouts saved to file, SQL or Redis`),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if noColorFlag {
				color.NoColor = true
			}
		},
	}

	rootCmd.PersistentFlags().StringVar(&configDirFlag, "config-dir", ".", "Directory containing propsheet.yml")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "Override the configured log level")
	rootCmd.PersistentFlags().BoolVar(&noColorFlag, "no-color", false, "Disable colored output")

	rootCmd.AddCommand(NewVersionCommand())
	rootCmd.AddCommand(NewSamplesCommand())
	rootCmd.AddCommand(NewInspectCommand())
	rootCmd.AddCommand(NewEditCommand())
	rootCmd.AddCommand(NewColumnsCommand())
	rootCmd.AddCommand(NewTokenCommand())
	rootCmd.AddCommand(NewServeCommand())
	rootCmd.AddCommand(NewCompletionCommand())

	return rootCmd
}

// NewVersionCommand creates the version command
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  "Display the propsheet version, Git commit, build date, and Go version",
		Run: func(cmd *cobra.Command, args []string) {
			goVer := GoVersion
			if goVer == "unknown" {
				goVer = runtime.Version()
			}

			kv := ui.NewKeyValueTable(cmd.OutOrStdout(), noColorFlag)
			kv.AddRow("propsheet version", Version)
			kv.AddRow("Git commit", GitCommit)
			kv.AddRow("Build date", BuildDate)
			kv.AddRow("Go version", goVer)
			kv.Render()
		},
	}
}

// loadConfig loads the configuration and builds the logger it describes
func loadConfig() (*config.Config, *zap.Logger, error) {
	cfg, err := config.LoadFrom(configDirFlag)
	if err != nil {
		return nil, nil, fmt.Errorf("%s", ui.ConfigError(err.Error(), noColorFlag))
	}
	if logLevelFlag != "" {
		cfg.Log.Level = logLevelFlag
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

// Execute runs the root command
func Execute() error {
	rootCmd := NewRootCommand()
	if err := rootCmd.Execute(); err != nil {
		errorColor := color.New(color.FgRed, color.Bold)
		errorColor.Fprintf(rootCmd.ErrOrStderr(), "Error: %v\n", err)
		return err
	}
	return nil
}
