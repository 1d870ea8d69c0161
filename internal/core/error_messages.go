package core

// error_messages.go maps errors to messages safe to show API clients.
//
// # Domain Errors
//
// A *Error is shown as-is. Its Kind selects the code:
//
//	VALIDATION - malformed or missing input, unsupported field type or export version
//	CONFLICT   - slug collision, duplicate field key, published version edit
//	NOT_FOUND  - unknown form or submission, draft form on the public path
//
// # Infrastructure Errors
//
// Everything else is matched case-insensitively against known patterns. The
// first match wins, so specific patterns come before general ones:
//
//	EXP001  - too many concurrent exports
//	DB001   - unique violation that escaped the domain checks
//	DB002   - foreign key violation
//	DB003   - connection refused
//	DB004   - connection reset
//	DB005   - timeout
//	DB006   - deadlock or serialization failure
//	SEQ001  - submission sequence still conflicting after retries
//	REQ001  - request cancelled
//	REQ002  - request deadline exceeded
//	RATE001 - rate limited
//	AUTH001 - missing or wrong admin token
//	ERR000  - fallback; check the server log for the technical error

import (
	"errors"
	"fmt"
	"strings"
)

// UserMessage provides client-facing error information with actionable guidance.
type UserMessage struct {
	Message string // What happened
	Action  string // What to do about it
	Code    string // Stable code for support reference
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

var errorPatterns = []errorPattern{
	{
		pattern: "too many concurrent exports",
		msg: UserMessage{
			Message: "Too many exports are running",
			Action:  "Please wait a moment and try again",
			Code:    "EXP001",
		},
	},
	{
		pattern: "submission sequence conflict",
		msg: UserMessage{
			Message: "The form is receiving many submissions at once",
			Action:  "Please submit again",
			Code:    "SEQ001",
		},
	},

	// Database
	{
		pattern: "duplicate key",
		msg: UserMessage{
			Message: "A record with this value already exists",
			Action:  "Reload and try again",
			Code:    "DB001",
		},
	},
	{
		pattern: "violates foreign key",
		msg: UserMessage{
			Message: "Referenced record does not exist",
			Action:  "Reload and try again",
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
			Action:  "Please try again later",
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
	{
		pattern: "could not serialize",
		msg: UserMessage{
			Message: "Database was busy with conflicting operations",
			Action:  "Please try again",
			Code:    "DB006",
		},
	},

	// Request
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "Request was cancelled",
			Action:  "Please try again",
			Code:    "REQ001",
		},
	},
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "Request timed out",
			Action:  "Please try again",
			Code:    "REQ002",
		},
	},
	{
		pattern: "rate limit",
		msg: UserMessage{
			Message: "Too many requests",
			Action:  "Please wait a moment before trying again",
			Code:    "RATE001",
		},
	},
	{
		pattern: "admin token",
		msg: UserMessage{
			Message: "Admin authentication required",
			Action:  "Send a valid X-Admin-Token header",
			Code:    "AUTH001",
		},
	},
}

var kindActions = map[Kind]UserMessage{
	KindValidation: {Code: "VALIDATION", Action: "Correct the request and try again"},
	KindConflict:   {Code: "CONFLICT", Action: "Reload the form and try again"},
	KindNotFound:   {Code: "NOT_FOUND", Action: "Check the id or slug"},
}

// defaultMessage is returned when nothing matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts err to a client-facing message. Domain errors keep their
// own message; infrastructure errors are matched by pattern and fall back to
// ERR000.
//
//	msg := MapError(Conflictf("slug already exists"))
//	// msg.Code == "CONFLICT"
//	// msg.Message == "slug already exists"
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	var de *Error
	if errors.As(err, &de) {
		msg := kindActions[de.Kind]
		msg.Message = de.Message
		return msg
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError renders "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to something more specific than
// ERR000.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}
