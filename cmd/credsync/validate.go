package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/credsync/internal/core"
)

const (
	validateFailureLimit  = 50
	validateFailuresShown = 10
)

func newValidateCmd(configPath *string) *cobra.Command {
	var runType string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Run every validation rule once",
		Long: `Runs the validation rules against the canonical tables and records the run.
The run type defaults to VALIDATION_RUN_TYPE (Manual unless configured).
Prints the run totals and the ten most severe unresolved issues.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(*configPath)
			if err != nil {
				return err
			}
			defer a.close()

			if runType == "" {
				runType = a.cfg.Validation.RunType
			}
			rt, err := core.ParseRunType(runType)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if err := a.connect(ctx); err != nil {
				a.logFailure(err)
				return exitError{code: 1}
			}
			v, err := a.openValidator(ctx)
			if err != nil {
				a.logFailure(err)
				return exitError{code: 1}
			}
			defer v.Close()

			run, err := v.RunAll(ctx, rt)
			if err != nil {
				a.logFailure(err)
				return exitError{code: 1}
			}
			if run == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "Validation returned no results")
				return nil
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Validation run %d (%s) completed with status %s\n", run.RunID, run.RunType, run.Status)
			fmt.Fprintf(out, "Failures: %d, Warnings: %d, Passes: %d\n", run.Failures, run.Warnings, run.Passes)

			failures, err := v.FailureDetails(ctx, &run.RunID, validateFailureLimit)
			if err != nil {
				a.logFailure(err)
				return exitError{code: 1}
			}
			for i, f := range failures {
				if i == validateFailuresShown {
					fmt.Fprintf(out, "... and %d more\n", len(failures)-validateFailuresShown)
					break
				}
				fmt.Fprintf(out, "  [%s] %s %s %s: %s\n", f.Severity, f.RuleCode, f.EntityType, f.RecordID, f.ErrorMessage)
			}
			slog.Info("validation complete", "run_id", run.RunID, "unresolved", len(failures))
			return nil
		},
	}
	cmd.Flags().StringVar(&runType, "run-type", "", "Scheduled, Manual or OnDemand")
	return cmd
}
