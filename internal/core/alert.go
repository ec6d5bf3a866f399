package core

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"sort"
	"strconv"
	"strings"

	"github.com/JonMunkholm/credsync/internal/config"
)

// Alert is a notification about a validation run that crossed a threshold.
type Alert struct {
	Subject string
	Body    string
	Run     *RunResult
}

// Notifier delivers alerts.
type Notifier interface {
	Notify(ctx context.Context, a Alert) error
}

// AlertPolicy decides when a run warrants an alert.
type AlertPolicy struct {
	FailureThreshold int // alert when failures exceed this
	WarningThreshold int // alert when warnings exceed this; 0 disables
}

// PolicyFromConfig returns the thresholds configured for alerts.
func PolicyFromConfig(cfg config.AlertConfig) AlertPolicy {
	return AlertPolicy{
		FailureThreshold: cfg.FailureThreshold,
		WarningThreshold: cfg.WarningThreshold,
	}
}

// Triggered reports whether run crosses a threshold.
func (p AlertPolicy) Triggered(run *RunResult) bool {
	if run == nil {
		return false
	}
	if run.Failures > p.FailureThreshold {
		return true
	}
	return p.WarningThreshold > 0 && run.Warnings > p.WarningThreshold
}

// BuildAlert renders the alert for a run and its summary.
func BuildAlert(run *RunResult, summary Summary, failures []ValidationResultRecord) Alert {
	var b strings.Builder

	fmt.Fprintf(&b, "Validation run %d (%s) finished with status %s.\n\n", run.RunID, run.RunType, run.Status)
	fmt.Fprintf(&b, "Total rules: %d\nFailures: %d\nWarnings: %d\nPasses: %d\n",
		run.TotalRules, run.Failures, run.Warnings, run.Passes)

	if len(summary) > 0 {
		b.WriteString("\nSummary:\n")
		keys := make([]string, 0, len(summary))
		for k := range summary {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			for _, e := range summary[k] {
				fmt.Fprintf(&b, "  %s [%s] %d: %s\n", k, e.Severity, e.Count, strings.Join(e.RuleCodes, ", "))
			}
		}
	}

	if len(failures) > 0 {
		fmt.Fprintf(&b, "\nUnresolved issues: %d\n", len(failures))
		for _, f := range failures {
			fmt.Fprintf(&b, "  [%s] %s %s %s: %s\n", f.Severity, f.RuleCode, f.EntityType, f.RecordID, f.ErrorMessage)
		}
	}

	return Alert{
		Subject: fmt.Sprintf("Credential validation: %d failures, %d warnings", run.Failures, run.Warnings),
		Body:    b.String(),
		Run:     run,
	}
}

// SendMailFunc matches smtp.SendMail.
type SendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPNotifier sends alerts by email.
type SMTPNotifier struct {
	cfg  config.AlertConfig
	send SendMailFunc
}

// NewSMTPNotifier creates a notifier for cfg. A nil send uses smtp.SendMail.
func NewSMTPNotifier(cfg config.AlertConfig, send SendMailFunc) *SMTPNotifier {
	if send == nil {
		send = smtp.SendMail
	}
	return &SMTPNotifier{cfg: cfg, send: send}
}

// Notify sends a to every configured recipient.
func (n *SMTPNotifier) Notify(ctx context.Context, a Alert) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var auth smtp.Auth
	if n.cfg.Username != "" {
		auth = smtp.PlainAuth("", n.cfg.Username, n.cfg.Password, n.cfg.SMTPHost)
	}

	addr := net.JoinHostPort(n.cfg.SMTPHost, strconv.Itoa(n.cfg.SMTPPort))
	if err := n.send(addr, auth, n.cfg.From, n.cfg.To, n.message(a)); err != nil {
		return fmt.Errorf("send alert via %s: %w", addr, err)
	}
	return nil
}

func (n *SMTPNotifier) message(a Alert) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", n.cfg.From)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(n.cfg.To, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", a.Subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
	b.WriteString(strings.ReplaceAll(a.Body, "\n", "\r\n"))
	return []byte(b.String())
}
