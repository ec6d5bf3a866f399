package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// FieldType represents the expected data type for an extract column.
type FieldType int

const (
	FieldText FieldType = iota
	FieldEnum
	FieldDate
	FieldBool
	FieldInt
)

// FieldSpec defines validation rules for a single extract column.
type FieldSpec struct {
	Name       string              // Column header name (matched case-insensitively)
	DBColumn   string              // Canonical column name (defaults to Name)
	Type       FieldType           // Expected data type
	Required   bool                // Column must exist in the extract header
	AllowEmpty bool                // If true, empty values are allowed even when Required
	EnumValues []string            // Valid values for FieldEnum type
	Normalizer func(string) string // Optional transformation function
}

// Column returns the canonical column the field is written to.
func (f FieldSpec) Column() string {
	if f.DBColumn != "" {
		return f.DBColumn
	}
	return strings.ToLower(f.Name)
}

// TableInfo describes one dataset loaded by the refresh.
type TableInfo struct {
	Key          string   // Dataset identifier: "providers"
	SourceSystem string   // Refresh log label: "CSV - Providers"
	Table        string   // Canonical table: "cred.providers"
	UniqueKey    []string // Canonical column(s) forming the natural key
	Order        int      // Position in the daily refresh
}

// HeaderIndex maps column names (lowercase) to their position in a row.
type HeaderIndex map[string]int

// TableDefinition contains everything needed to load a dataset.
type TableDefinition struct {
	Info       TableInfo
	FieldSpecs []FieldSpec
}

// Spec returns the field spec writing to column, if any.
func (t TableDefinition) Spec(column string) (FieldSpec, bool) {
	for _, spec := range t.FieldSpecs {
		if spec.Column() == column {
			return spec, true
		}
	}
	return FieldSpec{}, false
}

// Canonical bookkeeping columns maintained by the merge.
const (
	ColumnCreated  = "created_date"
	ColumnModified = "modified_date"
	ColumnActive   = "is_active"
)

// Extract is a tabular dataset read from a source file.
type Extract struct {
	Name   string     // File name or other label used in logs
	Header []string   // Header row as it appeared in the source
	Rows   [][]string // Data rows following the header
}

// Batch is an extract converted to typed values and deduplicated on the
// natural key, ready to be staged.
type Batch struct {
	Columns   []string // Canonical columns present in the extract
	Rows      [][]any  // Values aligned with Columns
	Processed int      // Data rows read from the extract
}

// RefreshStatus is the lifecycle state of a refresh log record.
type RefreshStatus string

const (
	RefreshRunning   RefreshStatus = "Running"
	RefreshCompleted RefreshStatus = "Completed"
	RefreshFailed    RefreshStatus = "Failed"
)

// RefreshLogRecord is the audit record for one ingestion attempt.
type RefreshLogRecord struct {
	RefreshID            uuid.UUID     `json:"refreshId"`
	StartTime            time.Time     `json:"startTime"`
	EndTime              *time.Time    `json:"endTime,omitempty"`
	Status               RefreshStatus `json:"status"`
	SourceSystem         string        `json:"sourceSystem"`
	RecordsProcessed     int64         `json:"recordsProcessed"`
	RecordsInserted      int64         `json:"recordsInserted"`
	RecordsUpdated       int64         `json:"recordsUpdated"`
	RecordsDeleted       int64         `json:"recordsDeleted"`
	ExecutionTimeSeconds float64       `json:"executionTimeSeconds"`
	ErrorMessage         string        `json:"errorMessage,omitempty"`
}

// RunType tags a validation run with what triggered it.
type RunType string

const (
	RunScheduled RunType = "Scheduled"
	RunManual    RunType = "Manual"
	RunOnDemand  RunType = "OnDemand"
)

// ParseRunType accepts a run type in any letter case.
func ParseRunType(s string) (RunType, error) {
	for _, rt := range []RunType{RunScheduled, RunManual, RunOnDemand} {
		if strings.EqualFold(string(rt), strings.TrimSpace(s)) {
			return rt, nil
		}
	}
	return "", fmt.Errorf("unknown run type %q (want Scheduled, Manual or OnDemand)", s)
}

// RunResult is the aggregate outcome of one Rule Engine invocation.
// It is persisted as the validation run record.
type RunResult struct {
	RunID                int64     `json:"runId" validate:"gt=0"`
	RunType              RunType   `json:"runType" validate:"oneof=Scheduled Manual OnDemand"`
	StartTime            time.Time `json:"startTime" validate:"required"`
	EndTime              time.Time `json:"endTime" validate:"required,gtefield=StartTime"`
	TotalRules           int       `json:"totalRules" validate:"gte=0"`
	Failures             int       `json:"failures" validate:"gte=0"`
	Warnings             int       `json:"warnings" validate:"gte=0"`
	Passes               int       `json:"passes" validate:"gte=0"`
	ExecutionTimeSeconds float64   `json:"executionTimeSeconds" validate:"gte=0"`
	Status               string    `json:"status" validate:"required"`
}

// ResultStatus is the outcome of one rule against one record.
type ResultStatus string

const (
	StatusPass    ResultStatus = "Pass"
	StatusFail    ResultStatus = "Fail"
	StatusWarning ResultStatus = "Warning"
)

// Severity orders validation results. Higher values are more severe.
type Severity int

const (
	SeverityLow Severity = iota + 1
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

var severityNames = map[Severity]string{
	SeverityLow:      "Low",
	SeverityMedium:   "Medium",
	SeverityHigh:     "High",
	SeverityCritical: "Critical",
}

func (s Severity) String() string {
	if name, ok := severityNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Severity(%d)", int(s))
}

// ParseSeverity maps a stored severity name to its rank.
func ParseSeverity(s string) (Severity, error) {
	for sev, name := range severityNames {
		if strings.EqualFold(name, strings.TrimSpace(s)) {
			return sev, nil
		}
	}
	return 0, fmt.Errorf("unknown severity %q", s)
}

// MarshalText encodes the severity by name.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a severity name.
func (s *Severity) UnmarshalText(b []byte) error {
	sev, err := ParseSeverity(string(b))
	if err != nil {
		return err
	}
	*s = sev
	return nil
}

// ValidationResultRecord is one rule evaluation against one record.
type ValidationResultRecord struct {
	ResultID     int64        `json:"resultId"`
	RunID        int64        `json:"runId"`
	RuleID       int64        `json:"ruleId"`
	RuleCode     string       `json:"ruleCode"`
	RuleName     string       `json:"ruleName"`
	RuleCategory string       `json:"ruleCategory"`
	EntityType   string       `json:"entityType"`
	RecordID     string       `json:"recordId"`
	Status       ResultStatus `json:"status"`
	Severity     Severity     `json:"severity"`
	ErrorMessage string       `json:"errorMessage,omitempty"`
	ValidatedAt  time.Time    `json:"validatedAt"`
	Resolved     bool         `json:"resolved"`
}

// SummaryEntry is one group of a validation summary. Results are grouped
// by category, status and severity, not per rule: RuleCodes lists the
// sorted distinct rule codes in the group and Count covers all of them.
type SummaryEntry struct {
	RuleCodes []string `json:"ruleCodes"`
	Count     int64    `json:"count"`
	Severity  Severity `json:"severity"`
}

// Summary maps "<category>_<status>" to its groups.
type Summary map[string][]SummaryEntry

// Total returns the number of results counted across all groups.
func (s Summary) Total() int64 {
	var n int64
	for _, entries := range s {
		for _, e := range entries {
			n += e.Count
		}
	}
	return n
}

// SummaryRow is one (category, status, severity) group as returned by a store.
type SummaryRow struct {
	Category      string
	Status        ResultStatus
	Severity      Severity
	RuleCodes     []string
	Count         int64
	LastValidated time.Time
}

// SummaryQuery selects results for a summary. RunID takes precedence over Since.
type SummaryQuery struct {
	RunID *int64
	Since time.Time
	Limit int // 0 means unlimited
}

// FailureQuery selects unresolved Fail/Warning results. RunID takes precedence over Since.
type FailureQuery struct {
	RunID *int64
	Since time.Time
	Limit int
}
