package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/credsync/internal/core"
)

func newReportCmd(configPath *string) *cobra.Command {
	var (
		runID  int64
		limit  int
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print a validation summary and unresolved issues",
		Long: `Prints the summary and failure details of one run (--run-id), or of the
configured lookback window (VALIDATION_SUMMARY_WINDOW) when no run is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(*configPath)
			if err != nil {
				return err
			}
			defer a.close()

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

			var id *int64
			if runID > 0 {
				id = &runID
			}
			if limit < 0 {
				limit = a.cfg.Validation.FailureLimit
			}

			summary, err := v.Summary(ctx, id)
			if err != nil {
				a.logFailure(err)
				return exitError{code: 1}
			}
			failures, err := v.FailureDetails(ctx, id, limit)
			if err != nil {
				a.logFailure(err)
				return exitError{code: 1}
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]any{"runId": id, "summary": summary, "failures": failures})
			}
			printReport(cmd.OutOrStdout(), summary, failures)
			return nil
		},
	}
	cmd.Flags().Int64Var(&runID, "run-id", 0, "Report on this run instead of the lookback window")
	cmd.Flags().IntVar(&limit, "limit", -1, "Maximum failure rows (default VALIDATION_FAILURE_LIMIT)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

func printReport(w io.Writer, summary core.Summary, failures []core.ValidationResultRecord) {
	keys := make([]string, 0, len(summary))
	for k := range summary {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fmt.Fprintf(w, "Summary (%d results):\n", summary.Total())
	for _, k := range keys {
		for _, e := range summary[k] {
			fmt.Fprintf(w, "  %-28s %-8s %5d  %v\n", k, e.Severity, e.Count, e.RuleCodes)
		}
	}
	fmt.Fprintf(w, "Unresolved issues: %d\n", len(failures))
	for _, f := range failures {
		fmt.Fprintf(w, "  %s [%s] %s %s %s: %s\n",
			f.ValidatedAt.Format("2006-01-02 15:04"), f.Severity, f.RuleCode, f.EntityType, f.RecordID, f.ErrorMessage)
	}
}
