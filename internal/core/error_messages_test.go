package core

import (
	"errors"
	"fmt"
	"testing"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
	}{
		{"nil error", nil, ""},
		{"duplicate key", errors.New("ERROR: duplicate key value violates unique constraint"), "DB001"},
		{"foreign key", errors.New("insert violates foreign key constraint"), "DB002"},
		{"connection refused", errors.New("dial tcp: connection refused"), "DB003"},
		{"timeout", errors.New("context deadline exceeded (timeout)"), "DB005"},
		{"missing column", errors.New("missing required column \"NPI\""), "EXT001"},
		{"no header", errors.New("header row not found in first 20 rows"), "EXT002"},
		{"bad format", errors.New("unsupported extract format \".txt\""), "EXT004"},
		{"bad date", errors.New("row 4: invalid date for \"issue_date\": \"13/45/2020\""), "EXT005"},
		{"run type", errors.New("unknown run type \"Nightly\""), "RUN001"},
		{"unknown", errors.New("something strange"), "ERR000"},

		{"classified connection", &Error{Kind: KindConnection, Op: "start refresh", Err: errors.New("no route")}, "PIPE001"},
		{"classified upsert", &Error{Kind: KindUpsert, Op: "apply", Err: errors.New("boom")}, "PIPE003"},
		{"classified engine", &Error{Kind: KindEngineInvocation, Op: "execute", Err: errors.New("boom")}, "PIPE004"},
		{"wrapped classified", fmt.Errorf("load providers: %w", &Error{Kind: KindQuery, Err: errors.New("boom")}), "PIPE005"},
		{"pattern beats kind", &Error{Kind: KindUpsert, Err: errors.New("duplicate key")}, "DB001"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapError(tt.err)
			if got.Code != tt.wantCode {
				t.Errorf("MapError() code = %q, want %q", got.Code, tt.wantCode)
			}
		})
	}
}

func TestFormatUserError(t *testing.T) {
	got := FormatUserError(errors.New("dial tcp: connection refused"))
	want := "Unable to connect to database (Code: DB003). Please try again in a few moments"
	if got != want {
		t.Errorf("FormatUserError() = %q, want %q", got, want)
	}

	if FormatUserError(nil) != "" {
		t.Error("FormatUserError(nil) should be empty")
	}
}

func TestIsUserFacing(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("deadlock detected"), true},
		{&Error{Kind: KindStaging, Err: errors.New("x")}, true},
		{errors.New("mystery"), false},
	}

	for _, tt := range tests {
		if got := IsUserFacing(tt.err); got != tt.want {
			t.Errorf("IsUserFacing(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestIsKind(t *testing.T) {
	base := errors.New("boom")
	err := fmt.Errorf("outer: %w", newError(KindUpsert, "apply", base))

	if !IsKind(err, KindUpsert) {
		t.Error("IsKind should find KindUpsert through wrapping")
	}
	if IsKind(err, KindQuery) {
		t.Error("IsKind should not match a different kind")
	}
	if !errors.Is(err, base) {
		t.Error("classified error should unwrap to its cause")
	}
	if KindOf(base) != "" {
		t.Error("KindOf unclassified error should be empty")
	}

	// Already classified errors keep their original kind.
	again := newError(KindConnection, "finish", err)
	if !IsKind(again, KindUpsert) {
		t.Errorf("newError should not reclassify, got %v", KindOf(again))
	}
	if newError(KindQuery, "x", nil) != nil {
		t.Error("newError(nil) should be nil")
	}
}
