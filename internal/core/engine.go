package core

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var runValidate = validator.New()

// checkRunResult rejects engine output that cannot be recorded: missing
// fields, negative counts, an end before the start, or totals that do not
// add up.
func checkRunResult(run *RunResult) error {
	if err := runValidate.Struct(run); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Field(), fe.Tag()))
			}
			return fmt.Errorf("malformed engine result: %s", strings.Join(fields, ", "))
		}
		return fmt.Errorf("malformed engine result: %w", err)
	}

	if run.TotalRules != run.Failures+run.Warnings+run.Passes {
		return fmt.Errorf("malformed engine result: %w (%d != %d + %d + %d)",
			ErrTotalsMismatch, run.TotalRules, run.Failures, run.Warnings, run.Passes)
	}
	return nil
}
