package core_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/credsync/internal/config"
	"github.com/JonMunkholm/credsync/internal/core"
	"github.com/JonMunkholm/credsync/internal/memstore"
)

var validationClock = time.Date(2026, 4, 1, 7, 0, 0, 0, time.UTC)

var testValidationConfig = config.ValidationConfig{
	RunType:       "Manual",
	FailureLimit:  100,
	SummaryWindow: 7 * 24 * time.Hour,
	SummaryLimit:  100,
}

func sampleOutcomes() []memstore.Outcome {
	return []memstore.Outcome{
		{RuleID: 1, RuleCode: "LIC-001", RuleCategory: "License", EntityType: "Credential", RecordID: "A1", Status: core.StatusFail, Severity: core.SeverityCritical, ErrorMessage: "license expired"},
		{RuleID: 2, RuleCode: "LIC-002", RuleCategory: "License", EntityType: "Credential", RecordID: "A2", Status: core.StatusWarning, Severity: core.SeverityMedium, ErrorMessage: "expires within 30 days"},
		{RuleID: 3, RuleCode: "DEM-001", RuleCategory: "Demographics", EntityType: "Provider", RecordID: "P1", Status: core.StatusWarning, Severity: core.SeverityLow, ErrorMessage: "missing middle name"},
		{RuleID: 4, RuleCode: "DEM-002", RuleCategory: "Demographics", EntityType: "Provider", RecordID: "P1", Status: core.StatusPass, Severity: core.SeverityLow},
		{RuleID: 5, RuleCode: "DEM-003", RuleCategory: "Demographics", EntityType: "Provider", RecordID: "P2", Status: core.StatusPass, Severity: core.SeverityLow},
	}
}

func newValidator(outcomes ...memstore.Outcome) (*memstore.Store, *memstore.Session, *memstore.Engine, *core.Validator) {
	store := memstore.New()
	sess := store.Session()
	eng := memstore.NewEngine(sess, outcomes...)
	eng.Now = func() time.Time { return validationClock }
	v := core.NewValidator(sess, eng, testValidationConfig,
		core.WithValidatorClock(func() time.Time { return validationClock }))
	return store, sess, eng, v
}

func TestRunAll_RecordsRun(t *testing.T) {
	store, _, eng, v := newValidator(sampleOutcomes()...)

	run, err := v.RunAll(context.Background(), core.RunScheduled)
	require.NoError(t, err)
	require.NotNil(t, run)

	assert.Equal(t, 1, eng.Calls)
	assert.Equal(t, core.RunScheduled, run.RunType)
	assert.Equal(t, 5, run.TotalRules)
	assert.Equal(t, 1, run.Failures)
	assert.Equal(t, 2, run.Warnings)
	assert.Equal(t, 2, run.Passes)
	assert.Equal(t, run.TotalRules, run.Failures+run.Warnings+run.Passes)

	saved, ok := store.Run(run.RunID)
	require.True(t, ok)
	assert.Equal(t, *run, saved)
	assert.Len(t, store.Results(), 5)
}

func TestRunAll_EngineErrorRollsBack(t *testing.T) {
	store, _, eng, v := newValidator(sampleOutcomes()...)
	eng.Err = errors.New("procedure not found")

	run, err := v.RunAll(context.Background(), core.RunManual)
	require.Error(t, err)
	assert.Nil(t, run)
	assert.True(t, core.IsKind(err, core.KindEngineInvocation))
	assert.Empty(t, store.Results())
}

func TestRunAll_TotalsMismatchRejected(t *testing.T) {
	store, _, eng, v := newValidator(sampleOutcomes()...)
	eng.Tamper = func(r *core.RunResult) { r.TotalRules = 7 }

	_, err := v.RunAll(context.Background(), core.RunManual)
	require.Error(t, err)
	assert.True(t, core.IsKind(err, core.KindEngineInvocation))
	assert.ErrorIs(t, err, core.ErrTotalsMismatch)
	assert.Empty(t, store.Results())
}

func TestRunAll_MalformedResultRejected(t *testing.T) {
	tests := []struct {
		name   string
		tamper func(*core.RunResult)
	}{
		{"missing run id", func(r *core.RunResult) { r.RunID = 0 }},
		{"negative failures", func(r *core.RunResult) { r.Failures = -1; r.Passes += 1 }},
		{"end before start", func(r *core.RunResult) { r.EndTime = r.StartTime.Add(-time.Second) }},
		{"missing status", func(r *core.RunResult) { r.Status = "" }},
		{"unknown run type", func(r *core.RunResult) { r.RunType = "Hourly" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, eng, v := newValidator(sampleOutcomes()...)
			eng.Tamper = tt.tamper

			_, err := v.RunAll(context.Background(), core.RunManual)
			require.Error(t, err)
			assert.True(t, core.IsKind(err, core.KindEngineInvocation))
			assert.Contains(t, err.Error(), "malformed engine result")
		})
	}
}

func TestRunAll_NoRunReturnsNil(t *testing.T) {
	store, _, eng, v := newValidator(sampleOutcomes()...)
	eng.NoRun = true

	run, err := v.RunAll(context.Background(), core.RunManual)
	require.NoError(t, err)
	assert.Nil(t, run)
	assert.Empty(t, store.Results())
}

func TestSummary_GroupsByCategoryAndStatus(t *testing.T) {
	_, _, _, v := newValidator(sampleOutcomes()...)
	ctx := context.Background()

	run, err := v.RunAll(ctx, core.RunManual)
	require.NoError(t, err)

	summary, err := v.Summary(ctx, &run.RunID)
	require.NoError(t, err)

	assert.Len(t, summary, 4)
	assert.EqualValues(t, 5, summary.Total())

	require.Len(t, summary["License_Fail"], 1)
	assert.Equal(t, core.SummaryEntry{RuleCodes: []string{"LIC-001"}, Count: 1, Severity: core.SeverityCritical}, summary["License_Fail"][0])

	require.Len(t, summary["Demographics_Pass"], 1)
	assert.Equal(t, []string{"DEM-002", "DEM-003"}, summary["Demographics_Pass"][0].RuleCodes)
	assert.EqualValues(t, 2, summary["Demographics_Pass"][0].Count)
}

func TestSummary_RunWithoutResultsIsEmpty(t *testing.T) {
	_, _, _, v := newValidator()
	ctx := context.Background()

	run, err := v.RunAll(ctx, core.RunManual)
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Zero(t, run.TotalRules)

	summary, err := v.Summary(ctx, &run.RunID)
	require.NoError(t, err)
	assert.NotNil(t, summary)
	assert.Empty(t, summary)
}

func TestSummary_WithoutRunUsesWindow(t *testing.T) {
	store, _, _, v := newValidator()
	old := validationClock.Add(-10 * 24 * time.Hour)
	store.AddResults(
		core.ValidationResultRecord{RunID: 1, RuleCode: "OLD-1", RuleCategory: "License", Status: core.StatusFail, Severity: core.SeverityHigh, ValidatedAt: old},
		core.ValidationResultRecord{RunID: 2, RuleCode: "NEW-1", RuleCategory: "License", Status: core.StatusFail, Severity: core.SeverityHigh, ValidatedAt: validationClock.Add(-time.Hour)},
	)

	summary, err := v.Summary(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, summary["License_Fail"], 1)
	assert.Equal(t, []string{"NEW-1"}, summary["License_Fail"][0].RuleCodes)
}

func TestSummary_QueryErrorIsClassified(t *testing.T) {
	store, _, _, v := newValidator()
	store.FailNextQuery(errors.New("connection reset by peer"))

	_, err := v.Summary(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, core.IsKind(err, core.KindQuery))
}

func TestFailureDetails_FilterOrderAndLimit(t *testing.T) {
	store, _, _, v := newValidator()
	runID := int64(9)
	at := validationClock.Add(-time.Hour)
	store.AddResults(
		core.ValidationResultRecord{ResultID: 1, RunID: runID, RuleCode: "A", Status: core.StatusWarning, Severity: core.SeverityLow, ValidatedAt: at},
		core.ValidationResultRecord{ResultID: 2, RunID: runID, RuleCode: "B", Status: core.StatusFail, Severity: core.SeverityCritical, ValidatedAt: at},
		core.ValidationResultRecord{ResultID: 3, RunID: runID, RuleCode: "C", Status: core.StatusPass, Severity: core.SeverityCritical, ValidatedAt: at},
		core.ValidationResultRecord{ResultID: 4, RunID: runID, RuleCode: "D", Status: core.StatusFail, Severity: core.SeverityCritical, ValidatedAt: at, Resolved: true},
		core.ValidationResultRecord{ResultID: 5, RunID: runID, RuleCode: "E", Status: core.StatusFail, Severity: core.SeverityHigh, ValidatedAt: at.Add(time.Minute)},
		core.ValidationResultRecord{ResultID: 6, RunID: runID, RuleCode: "F", Status: core.StatusFail, Severity: core.SeverityHigh, ValidatedAt: at},
		core.ValidationResultRecord{ResultID: 7, RunID: runID + 1, RuleCode: "G", Status: core.StatusFail, Severity: core.SeverityCritical, ValidatedAt: at},
	)

	got, err := v.FailureDetails(context.Background(), &runID, 10)
	require.NoError(t, err)

	var codes []string
	for _, r := range got {
		codes = append(codes, r.RuleCode)
	}
	assert.Equal(t, []string{"B", "E", "F", "A"}, codes)

	got, err = v.FailureDetails(context.Background(), &runID, 2)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = v.FailureDetails(context.Background(), &runID, 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestClose_IsIdempotent(t *testing.T) {
	_, sess, _, v := newValidator()

	require.NoError(t, v.Close())
	require.NoError(t, v.Close())
	assert.Equal(t, 1, sess.Closes())

	_, err := v.RunAll(context.Background(), core.RunManual)
	assert.ErrorIs(t, err, core.ErrValidatorClosed)
	_, err = v.Summary(context.Background(), nil)
	assert.ErrorIs(t, err, core.ErrValidatorClosed)
}
