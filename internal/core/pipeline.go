package core

import (
	"context"
	"fmt"
	"time"

	"github.com/JonMunkholm/credsync/internal/logging"
)

// State is a step of the daily pipeline.
type State string

const (
	StateIdle       State = "Idle"
	StateIngesting  State = "Ingesting"
	StateValidating State = "Validating"
	StateReporting  State = "Reporting"
	StateSucceeded  State = "Succeeded"
	StateFailed     State = "Failed"
)

// Refresher loads the day's extracts.
type Refresher interface {
	RunDailyRefresh(ctx context.Context) ([]RefreshLogRecord, error)
}

// Report is the outcome of one pipeline run.
type Report struct {
	ExitCode  int
	State     State // Succeeded or Failed
	FailedIn  State // step that failed, if any
	Started   time.Time
	Finished  time.Time
	Elapsed   time.Duration
	Refreshes []RefreshLogRecord
	Run       *RunResult
	Summary   Summary
	Failures  []ValidationResultRecord
	Trail     []string // human-readable progress lines
	Err       error
}

func (r *Report) note(format string, args ...any) {
	r.Trail = append(r.Trail, fmt.Sprintf(format, args...))
}

// Pipeline runs ingestion, validation and reporting in sequence.
type Pipeline struct {
	refresher     Refresher
	openValidator func(ctx context.Context) (*Validator, error)
	failureLimit  int

	notifier Notifier
	policy   AlertPolicy

	metrics      *Metrics
	textfilePath string

	now func() time.Time
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithNotifier sends an alert whenever a run crosses policy.
func WithNotifier(n Notifier, policy AlertPolicy) PipelineOption {
	return func(p *Pipeline) {
		p.notifier = n
		p.policy = policy
	}
}

// WithPipelineMetrics records pipeline outcomes in m and, if textfilePath
// is set, writes m there after every run.
func WithPipelineMetrics(m *Metrics, textfilePath string) PipelineOption {
	return func(p *Pipeline) {
		p.metrics = m
		p.textfilePath = textfilePath
	}
}

// WithPipelineClock overrides the clock used for timing.
func WithPipelineClock(now func() time.Time) PipelineOption {
	return func(p *Pipeline) { p.now = now }
}

// NewPipeline creates a Pipeline. openValidator is called once per run,
// after ingestion; the Validator it returns is closed before Run returns.
func NewPipeline(refresher Refresher, openValidator func(context.Context) (*Validator, error), failureLimit int, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		refresher:     refresher,
		openValidator: openValidator,
		failureLimit:  failureLimit,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run executes one daily pipeline. The exit code is 0 only when no step
// failed. Steps are not retried.
func (p *Pipeline) Run(ctx context.Context) Report {
	log := logging.FromContext(ctx)
	report := Report{State: StateIdle, Started: p.now()}
	log.Info("starting daily refresh process", "started", report.Started)

	if err := p.run(ctx, &report); err != nil {
		report.FailedIn = report.State
		report.State = StateFailed
		report.ExitCode = 1
		report.Err = err
	} else {
		report.State = StateSucceeded
	}

	report.Finished = p.now()
	report.Elapsed = report.Finished.Sub(report.Started)
	report.note("Total execution time: %.2f seconds", report.Elapsed.Seconds())

	if report.Err != nil {
		log.Error("daily refresh process failed",
			"step", report.FailedIn,
			"elapsed", report.Elapsed,
			"error", report.Err,
		)
	} else {
		log.Info("daily refresh process completed successfully", "elapsed", report.Elapsed)
	}

	p.metrics.ObservePipeline(report)
	if err := p.metrics.WriteTextfile(p.textfilePath); err != nil {
		log.Warn("failed to write metrics textfile", "path", p.textfilePath, "error", err)
	}
	return report
}

func (p *Pipeline) run(ctx context.Context, report *Report) error {
	log := logging.FromContext(ctx)

	report.State = StateIngesting
	log.Info("step 1: starting data ingestion")
	refreshes, err := p.refresher.RunDailyRefresh(ctx)
	report.Refreshes = refreshes
	if err != nil {
		report.note("Ingestion failed: %v", err)
		return err
	}
	report.note("Ingestion completed: %d datasets refreshed", len(refreshes))

	report.State = StateValidating
	log.Info("step 2: starting validation execution")
	v, err := p.openValidator(ctx)
	if err != nil {
		err = newError(KindConnection, "open validator", err)
		report.note("Validation failed: %v", err)
		return err
	}
	defer func() {
		if err := v.Close(); err != nil {
			log.Warn("failed to close validator", "error", err)
		}
	}()

	run, err := v.RunAll(ctx, RunScheduled)
	if err != nil {
		report.note("Validation failed: %v", err)
		return err
	}
	report.Run = run

	report.State = StateReporting
	if run == nil {
		log.Warn("step 2: validation execution returned no results")
		report.note("Validation returned no results")
		return nil
	}
	report.note("Validation run %d completed with status %s", run.RunID, run.Status)
	report.note("Failures: %d, Warnings: %d, Passes: %d", run.Failures, run.Warnings, run.Passes)

	log.Info("step 3: generating summary report", "run_id", run.RunID)
	summary, err := v.Summary(ctx, &run.RunID)
	if err != nil {
		report.note("Reporting failed: %v", err)
		return err
	}
	report.Summary = summary

	failures, err := v.FailureDetails(ctx, &run.RunID, p.failureLimit)
	if err != nil {
		report.note("Reporting failed: %v", err)
		return err
	}
	report.Failures = failures
	report.note("Unresolved issues: %d", len(failures))

	p.alert(ctx, report)
	return nil
}

// alert notifies when the run crossed a threshold. Delivery failures are
// logged only.
func (p *Pipeline) alert(ctx context.Context, report *Report) {
	if p.notifier == nil || !p.policy.Triggered(report.Run) {
		return
	}

	log := logging.FromContext(ctx)
	a := BuildAlert(report.Run, report.Summary, report.Failures)
	if err := p.notifier.Notify(ctx, a); err != nil {
		log.Error("failed to send validation alert", "run_id", report.Run.RunID, "error", err)
		report.note("Alert not sent: %v", err)
		return
	}
	log.Info("validation alert sent", "run_id", report.Run.RunID)
	report.note("Alert sent: %s", a.Subject)
}
