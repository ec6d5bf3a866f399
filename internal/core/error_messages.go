package core

// error_messages.go maps technical errors to messages with codes that
// operators can quote when reporting a failed run.
//
// Codes are grouped by category:
//
//	PIPE001-PIPE005  classified pipeline errors (see ErrorKind)
//	DB001-DB006      store errors
//	EXT001-EXT005    extract errors
//	RUN001-RUN003    validation run errors
//	ERR000           anything else

import (
	"fmt"
	"strings"
)

// UserMessage contains a user-friendly error message with an action and code.
type UserMessage struct {
	Message string `json:"message"`
	Action  string `json:"action"`
	Code    string `json:"code"`
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

// kindMessages take precedence over pattern matching for classified errors.
var kindMessages = map[ErrorKind]UserMessage{
	KindConnection: {
		Message: "The credentialing database could not be reached",
		Action:  "Check DATABASE_URL and database availability, then re-run",
		Code:    "PIPE001",
	},
	KindStaging: {
		Message: "The extract could not be read",
		Action:  "Check the file format and required columns",
		Code:    "PIPE002",
	},
	KindUpsert: {
		Message: "The extract could not be merged; no rows were changed",
		Action:  "Review the refresh log error message and fix the source data",
		Code:    "PIPE003",
	},
	KindEngineInvocation: {
		Message: "The validation engine failed; the run was rolled back",
		Action:  "Check the engine logs and re-run validation",
		Code:    "PIPE004",
	},
	KindQuery: {
		Message: "Validation results could not be retrieved",
		Action:  "Please try again",
		Code:    "PIPE005",
	},
}

// errorPatterns are checked in order; the first match wins.
var errorPatterns = []errorPattern{
	// =========================================================================
	// Store errors
	// =========================================================================
	{
		pattern: "duplicate key",
		msg: UserMessage{
			Message: "A canonical record with this key already exists",
			Action:  "Check the extract for keys differing only in case or spacing",
			Code:    "DB001",
		},
	},
	{
		pattern: "violates foreign key",
		msg: UserMessage{
			Message: "Referenced record does not exist",
			Action:  "Load providers before credentials",
			Code:    "DB002",
		},
	},
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to connect to database",
			Action:  "Please try again in a few moments",
			Code:    "DB003",
		},
	},
	{
		pattern: "connection reset",
		msg: UserMessage{
			Message: "Database connection was interrupted",
			Action:  "Please try again",
			Code:    "DB004",
		},
	},
	{
		pattern: "timeout",
		msg: UserMessage{
			Message: "Operation timed out",
			Action:  "Try again later",
			Code:    "DB005",
		},
	},
	{
		pattern: "deadlock",
		msg: UserMessage{
			Message: "Database was busy with conflicting operations",
			Action:  "Please try again",
			Code:    "DB006",
		},
	},

	// =========================================================================
	// Extract errors
	// =========================================================================
	{
		pattern: "missing required column",
		msg: UserMessage{
			Message: "Required column is missing from the extract",
			Action:  "Check that the header row contains the natural key columns",
			Code:    "EXT001",
		},
	},
	{
		pattern: "header row not found",
		msg: UserMessage{
			Message: "No header row was found",
			Action:  "Place the header within the first rows of the file",
			Code:    "EXT002",
		},
	},
	{
		pattern: "empty required field",
		msg: UserMessage{
			Message: "A required field is empty",
			Action:  "Ensure every row has a value for its key columns",
			Code:    "EXT003",
		},
	},
	{
		pattern: "unsupported extract format",
		msg: UserMessage{
			Message: "File type is not supported",
			Action:  "Provide a .csv or .xlsx extract",
			Code:    "EXT004",
		},
	},
	{
		pattern: "invalid ",
		msg: UserMessage{
			Message: "A value has the wrong format",
			Action:  "Check dates, flags and enumerated values in the extract",
			Code:    "EXT005",
		},
	},

	// =========================================================================
	// Validation run errors
	// =========================================================================
	{
		pattern: "unknown run type",
		msg: UserMessage{
			Message: "Unknown run type",
			Action:  "Use Scheduled, Manual or OnDemand",
			Code:    "RUN001",
		},
	},
	{
		pattern: "validator is closed",
		msg: UserMessage{
			Message: "The validation session was already closed",
			Action:  "Open a new session",
			Code:    "RUN002",
		},
	},
	{
		pattern: "unknown dataset",
		msg: UserMessage{
			Message: "Unknown dataset",
			Action:  "Use providers, entities or credentials",
			Code:    "RUN003",
		},
	},
}

// defaultMessage is returned when no pattern matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Check the pipeline log for details",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// Errors matching a known pattern get that pattern's message; otherwise a
// classified error gets its kind's message; otherwise ERR000.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	if msg, ok := kindMessages[KindOf(err)]; ok {
		return msg
	}

	return defaultMessage
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to something more specific than ERR000.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}
