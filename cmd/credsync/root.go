package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/credsync/internal/core"
)

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "credsync",
		Short: "Provider credentialing refresh and validation",
		Long: `credsync loads the daily provider, entity and credential extracts into the
canonical tables, runs every validation rule, and reports the results.

Without a subcommand it runs the full daily pipeline: ingest, validate, report.
The exit status is 0 when every step succeeded and 1 otherwise.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPipeline(cmd, configPath)
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML config file (environment variables take precedence)")

	root.AddCommand(
		newIngestCmd(&configPath),
		newValidateCmd(&configPath),
		newReportCmd(&configPath),
		newMigrateCmd(&configPath),
		newServeCmd(&configPath),
	)
	return root
}

func runPipeline(cmd *cobra.Command, configPath string) error {
	a, err := loadApp(configPath)
	if err != nil {
		return err
	}
	defer a.close()

	ctx := cmd.Context()
	if err := a.connect(ctx); err != nil {
		a.logFailure(err)
		return exitError{code: 1}
	}

	slog.Debug("datasets registered", "count", core.TableCount(), "keys", core.Keys())
	report := a.pipeline().Run(ctx)
	for _, line := range report.Trail {
		fmt.Fprintln(cmd.OutOrStdout(), line)
	}
	if report.ExitCode != 0 {
		return exitError{code: report.ExitCode}
	}
	return nil
}

// logFailure logs err with its operator-facing code and repeats the
// short form on stderr.
func (a *app) logFailure(err error) {
	msg := core.MapError(err)
	slog.Error(msg.Message, "code", msg.Code, "action", msg.Action, "error", err)
	fmt.Fprintln(os.Stderr, core.FormatUserError(err))
}
