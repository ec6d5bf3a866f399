package core_test

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/credsync/internal/config"
	"github.com/JonMunkholm/credsync/internal/core"
)

func TestAlertPolicy_Triggered(t *testing.T) {
	tests := []struct {
		name   string
		policy core.AlertPolicy
		run    *core.RunResult
		want   bool
	}{
		{"nil run", core.AlertPolicy{}, nil, false},
		{"failures at threshold", core.AlertPolicy{FailureThreshold: 5}, &core.RunResult{Failures: 5}, false},
		{"failures above threshold", core.AlertPolicy{FailureThreshold: 5}, &core.RunResult{Failures: 6}, true},
		{"warnings ignored when disabled", core.AlertPolicy{FailureThreshold: 5}, &core.RunResult{Warnings: 500}, false},
		{"warnings above threshold", core.AlertPolicy{FailureThreshold: 5, WarningThreshold: 10}, &core.RunResult{Warnings: 11}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.policy.Triggered(tt.run))
		})
	}
}

func TestBuildAlert(t *testing.T) {
	run := &core.RunResult{RunID: 12, RunType: core.RunScheduled, Status: "Completed", TotalRules: 3, Failures: 2, Passes: 1}
	summary := core.Summary{
		"License_Fail": {{RuleCodes: []string{"LIC-001", "LIC-004"}, Count: 2, Severity: core.SeverityHigh}},
	}
	failures := []core.ValidationResultRecord{
		{RuleCode: "LIC-001", EntityType: "Credential", RecordID: "A1", Severity: core.SeverityHigh, ErrorMessage: "license expired"},
	}

	a := core.BuildAlert(run, summary, failures)

	assert.Equal(t, "Credential validation: 2 failures, 0 warnings", a.Subject)
	assert.Contains(t, a.Body, "Validation run 12 (Scheduled)")
	assert.Contains(t, a.Body, "License_Fail [High] 2: LIC-001, LIC-004")
	assert.Contains(t, a.Body, "Unresolved issues: 1")
	assert.Contains(t, a.Body, "license expired")
	assert.Same(t, run, a.Run)
}

func TestSMTPNotifier_Notify(t *testing.T) {
	cfg := config.AlertConfig{
		SMTPHost: "mail.example.com",
		SMTPPort: 587,
		From:     "credsync@example.com",
		To:       []string{"ops@example.com", "qa@example.com"},
		Username: "credsync",
		Password: "secret",
	}

	var (
		gotAddr string
		gotAuth smtp.Auth
		gotTo   []string
		gotMsg  string
	)
	send := func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotAuth, gotTo, gotMsg = addr, a, to, string(msg)
		return nil
	}

	n := core.NewSMTPNotifier(cfg, send)
	err := n.Notify(context.Background(), core.Alert{Subject: "Failures", Body: "line one\nline two"})
	require.NoError(t, err)

	assert.Equal(t, "mail.example.com:587", gotAddr)
	assert.NotNil(t, gotAuth)
	assert.Equal(t, cfg.To, gotTo)
	assert.Contains(t, gotMsg, "Subject: Failures\r\n")
	assert.Contains(t, gotMsg, "To: ops@example.com, qa@example.com\r\n")
	assert.True(t, strings.HasSuffix(gotMsg, "line one\r\nline two"))
}

func TestSMTPNotifier_NoAuthWithoutUsername(t *testing.T) {
	var gotAuth smtp.Auth = nil
	called := false
	send := func(_ string, a smtp.Auth, _ string, _ []string, _ []byte) error {
		called = true
		gotAuth = a
		return errors.New("421 service not available")
	}

	n := core.NewSMTPNotifier(config.AlertConfig{SMTPHost: "localhost", SMTPPort: 25}, send)
	err := n.Notify(context.Background(), core.Alert{})

	require.Error(t, err)
	assert.True(t, called)
	assert.Nil(t, gotAuth)
	assert.Contains(t, err.Error(), "localhost:25")
}
