package logging

import "log/slog"

// Common field names for consistent logging.
const (
	FieldService    = "service"
	FieldUserID     = "user_id"
	FieldIdentifier = "identifier"
	FieldAction     = "action"
	FieldSessionID  = "session_id"
	FieldEventID    = "event_id"
	FieldError      = "error"
)

// Service returns a slog attribute for the service name.
func Service(name string) slog.Attr {
	return slog.String(FieldService, name)
}

// UserID returns a slog attribute for the user ID.
func UserID(id string) slog.Attr {
	return slog.String(FieldUserID, id)
}

// Identifier returns a slog attribute for a rate-limit identifier.
func Identifier(id string) slog.Attr {
	return slog.String(FieldIdentifier, id)
}

// Action returns a slog attribute for an audited action.
func Action(action string) slog.Attr {
	return slog.String(FieldAction, action)
}

// SessionID returns a slog attribute for a session ID.
func SessionID(id string) slog.Attr {
	return slog.String(FieldSessionID, id)
}

// EventID returns a slog attribute for an audit event ID.
func EventID(id string) slog.Attr {
	return slog.String(FieldEventID, id)
}

// Error returns a slog attribute for an error.
func Error(err error) slog.Attr {
	return slog.String(FieldError, err.Error())
}
