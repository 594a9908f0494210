// Package cli is the brokereye command line: group management, per-view
// active filters and record-set views over CSV, XLSX and JSON exports.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"brokereye/app/settings"
	"brokereye/app/timestamps"
)

var (
	version = "dev"
	commit  = "none"
)

// Execute runs the CLI.
func Execute() int {
	rootCmd := newRootCmd()
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		if getOutputFormat(rootCmd) == "json" {
			_ = printJSON(os.Stdout, map[string]any{"error": err.Error()})
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		groupsPath string
		output     string
		logLevel   string
		logFormat  string
	)
	a := &app{}

	rootCmd := &cobra.Command{
		Use:           "brokereye",
		Short:         "Broker dashboard record-set views",
		Long:          "Load account exports, manage login groups and compute filtered, sorted views with totals.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := validateOutputFormat(output); err != nil {
				return err
			}
			logger, err := newLogger(cmd.ErrOrStderr(), logLevel, logFormat)
			if err != nil {
				return err
			}
			svc, err := settings.NewSettingsService(configPath)
			if err != nil {
				return err
			}
			cfg, err := svc.GetSettings()
			if err != nil {
				return err
			}
			if groupsPath != "" {
				cfg.GroupStorePath = groupsPath
			}
			timestamps.SetDefaultIngestTimezone(cfg.DefaultIngestTimezone)

			a.svc = svc
			a.cfg = cfg
			a.logger = logger
			a.out = cmd.OutOrStdout()
			a.output = output
			return nil
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return a.close()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Settings file (default brokereye.yml next to the executable)")
	rootCmd.PersistentFlags().StringVar(&groupsPath, "groups-file", "", "Override the group store file")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "table", "Output format (table, json)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log format (text, json)")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newGroupsCmd(a))
	rootCmd.AddCommand(newFilterCmd(a))
	rootCmd.AddCommand(newViewCmd(a))
	rootCmd.AddCommand(newStatsCmd(a))
	return rootCmd
}

func newLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q", level)
	}
	opts := &slog.HandlerOptions{Level: lvl}
	switch strings.ToLower(format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return nil, fmt.Errorf("unsupported log format %q: use 'text' or 'json'", format)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if getOutputFormat(cmd) == "json" {
				return printJSON(cmd.OutOrStdout(), map[string]string{"version": version, "commit": commit})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "brokereye %s (%s)\n", version, commit)
			return nil
		},
	}
}
