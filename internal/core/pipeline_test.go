package core_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/credsync/internal/core"
	"github.com/JonMunkholm/credsync/internal/memstore"
)

type recordingNotifier struct {
	alerts []core.Alert
	err    error
}

func (n *recordingNotifier) Notify(_ context.Context, a core.Alert) error {
	n.alerts = append(n.alerts, a)
	return n.err
}

type failingRefresher struct{ err error }

func (f failingRefresher) RunDailyRefresh(context.Context) ([]core.RefreshLogRecord, error) {
	return nil, f.err
}

type pipelineFixture struct {
	store   *memstore.Store
	session *memstore.Session
	engine  *memstore.Engine
	opened  int
}

func newPipelineFixture(t *testing.T) (*pipelineFixture, *core.Ingestor) {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, dir, "providers.csv", "NPI,First_Name,Last_Name\n1111111111,Ada,Lovelace\n2222222222,Grace,Hopper\n")

	store, ing := newIngestor(map[string]string{"providers": filepath.Join(dir, "providers.csv")})
	f := &pipelineFixture{store: store, session: store.Session()}
	f.engine = memstore.NewEngine(f.session, sampleOutcomes()...)
	return f, ing
}

func (f *pipelineFixture) open(context.Context) (*core.Validator, error) {
	f.opened++
	return core.NewValidator(f.session, f.engine, testValidationConfig), nil
}

func TestPipeline_EndToEndSuccess(t *testing.T) {
	f, ing := newPipelineFixture(t)
	metrics := core.NewMetrics()
	textfile := filepath.Join(t.TempDir(), "credsync.prom")

	p := core.NewPipeline(ing, f.open, 100, core.WithPipelineMetrics(metrics, textfile))
	report := p.Run(context.Background())

	require.NoError(t, report.Err)
	assert.Equal(t, 0, report.ExitCode)
	assert.Equal(t, core.StateSucceeded, report.State)
	assert.Equal(t, 1, f.engine.Calls)
	assert.Equal(t, 1, f.session.Closes())

	require.Len(t, report.Refreshes, 1)
	assert.Equal(t, core.RefreshCompleted, report.Refreshes[0].Status)
	require.NotNil(t, report.Run)
	assert.Equal(t, core.RunScheduled, report.Run.RunType)
	assert.Len(t, report.Failures, 3)
	assert.EqualValues(t, 5, report.Summary.Total())
	assert.Contains(t, report.Trail, "Failures: 1, Warnings: 2, Passes: 2")
	assert.Contains(t, report.Trail, "Unresolved issues: 3")
	assert.True(t, strings.HasPrefix(report.Trail[len(report.Trail)-1], "Total execution time:"))

	data, err := os.ReadFile(textfile)
	require.NoError(t, err)
	assert.Contains(t, string(data), `credsync_pipeline_runs_total{result="success"} 1`)
}

func TestPipeline_DailyScenario(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "providers.csv", "NPI,First_Name,Last_Name\n"+
		"1111111111,Ada,Lovelace\n2222222222,Grace,Hopper\n3333333333,Alan,Turing\n")
	store, ing := newIngestor(map[string]string{"providers": filepath.Join(dir, "providers.csv")})
	sess := store.Session()

	outcomes := []memstore.Outcome{
		{RuleID: 1, RuleCode: "LIC-001", RuleCategory: "License", RecordID: "A1", Status: core.StatusFail, Severity: core.SeverityCritical},
		{RuleID: 2, RuleCode: "LIC-002", RuleCategory: "License", RecordID: "A2", Status: core.StatusWarning, Severity: core.SeverityMedium},
		{RuleID: 3, RuleCode: "DEM-001", RuleCategory: "Demographics", RecordID: "P1", Status: core.StatusWarning, Severity: core.SeverityLow},
	}
	for i := int64(4); i <= 10; i++ {
		outcomes = append(outcomes, memstore.Outcome{RuleID: i, RuleCode: "DEM-002", RuleCategory: "Demographics", Status: core.StatusPass, Severity: core.SeverityLow})
	}
	eng := memstore.NewEngine(sess, outcomes...)
	open := func(context.Context) (*core.Validator, error) {
		return core.NewValidator(sess, eng, testValidationConfig), nil
	}

	report := core.NewPipeline(ing, open, 100).Run(context.Background())

	require.NoError(t, report.Err)
	assert.Equal(t, 0, report.ExitCode)
	require.Len(t, report.Refreshes, 1)
	assert.EqualValues(t, 3, report.Refreshes[0].RecordsInserted)
	require.NotNil(t, report.Run)
	assert.Equal(t, 10, report.Run.TotalRules)
	assert.Contains(t, report.Trail, "Failures: 1, Warnings: 2, Passes: 7")
	assert.Equal(t, 1, sess.Closes())
}

func TestPipeline_EngineFailure(t *testing.T) {
	f, ing := newPipelineFixture(t)
	f.engine.Err = errors.New("could not find stored procedure")

	report := core.NewPipeline(ing, f.open, 100).Run(context.Background())

	assert.Equal(t, 1, report.ExitCode)
	assert.Equal(t, core.StateFailed, report.State)
	assert.Equal(t, core.StateValidating, report.FailedIn)
	assert.True(t, core.IsKind(report.Err, core.KindEngineInvocation))
	assert.Equal(t, 1, f.session.Closes())
	assert.Empty(t, f.store.Results())
	_, persisted := f.store.Run(1)
	assert.False(t, persisted)

	// Ingestion completed before validation started.
	require.Len(t, report.Refreshes, 1)
	assert.Equal(t, core.RefreshCompleted, report.Refreshes[0].Status)
}

func TestPipeline_IngestionFailureSkipsValidation(t *testing.T) {
	f, _ := newPipelineFixture(t)
	p := core.NewPipeline(failingRefresher{errors.New("load providers: boom")}, f.open, 100)

	report := p.Run(context.Background())

	assert.Equal(t, 1, report.ExitCode)
	assert.Equal(t, core.StateIngesting, report.FailedIn)
	assert.Zero(t, f.opened)
	assert.Zero(t, f.engine.Calls)
}

func TestPipeline_OpenValidatorFailure(t *testing.T) {
	_, ing := newPipelineFixture(t)
	open := func(context.Context) (*core.Validator, error) {
		return nil, errors.New("too many connections")
	}

	report := core.NewPipeline(ing, open, 100).Run(context.Background())

	assert.Equal(t, 1, report.ExitCode)
	assert.True(t, core.IsKind(report.Err, core.KindConnection))
}

func TestPipeline_NoRunStillSucceeds(t *testing.T) {
	f, ing := newPipelineFixture(t)
	f.engine.NoRun = true

	report := core.NewPipeline(ing, f.open, 100).Run(context.Background())

	assert.Equal(t, 0, report.ExitCode)
	assert.Nil(t, report.Run)
	assert.Contains(t, report.Trail, "Validation returned no results")
	assert.Equal(t, 1, f.session.Closes())
}

func TestPipeline_ReportingFailure(t *testing.T) {
	f, ing := newPipelineFixture(t)
	p := core.NewPipeline(ing, func(ctx context.Context) (*core.Validator, error) {
		v, err := f.open(ctx)
		f.store.FailNextQuery(errors.New("statement timeout"))
		return v, err
	}, 100)

	report := p.Run(context.Background())

	assert.Equal(t, 1, report.ExitCode)
	assert.Equal(t, core.StateReporting, report.FailedIn)
	assert.True(t, core.IsKind(report.Err, core.KindQuery))
	assert.Equal(t, 1, f.session.Closes())
}

func TestPipeline_AlertsAboveThreshold(t *testing.T) {
	f, ing := newPipelineFixture(t)
	n := &recordingNotifier{}

	p := core.NewPipeline(ing, f.open, 100, core.WithNotifier(n, core.AlertPolicy{FailureThreshold: 0}))
	report := p.Run(context.Background())

	require.Equal(t, 0, report.ExitCode)
	require.Len(t, n.alerts, 1)
	assert.Contains(t, n.alerts[0].Subject, "1 failures")
	assert.Contains(t, n.alerts[0].Body, "LIC-001")
}

func TestPipeline_AlertFailureKeepsExitCode(t *testing.T) {
	f, ing := newPipelineFixture(t)
	n := &recordingNotifier{err: errors.New("smtp unavailable")}

	p := core.NewPipeline(ing, f.open, 100, core.WithNotifier(n, core.AlertPolicy{FailureThreshold: 0}))
	report := p.Run(context.Background())

	assert.Equal(t, 0, report.ExitCode)
	assert.Len(t, n.alerts, 1)
}

func TestPipeline_BelowThresholdDoesNotAlert(t *testing.T) {
	f, ing := newPipelineFixture(t)
	n := &recordingNotifier{}

	p := core.NewPipeline(ing, f.open, 100, core.WithNotifier(n, core.AlertPolicy{FailureThreshold: 100}))
	p.Run(context.Background())

	assert.Empty(t, n.alerts)
}
