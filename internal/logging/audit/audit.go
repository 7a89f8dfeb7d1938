package audit

import (
	"github.com/rs/zerolog"
)

// Results recorded on audit events.
const (
	ResultAllowed = "allowed"
	ResultDenied  = "denied"
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Logger provides structured audit logging for security-relevant events.
// All audit events are logged with structured fields for easy filtering and analysis.
type Logger struct {
	logger zerolog.Logger
}

// NewLogger creates a new audit logger from a zerolog.Logger.
func NewLogger(logger zerolog.Logger) *Logger {
	return &Logger{logger: logger}
}

func levelFor(result string) zerolog.Level {
	if result == ResultDenied || result == ResultFailure {
		return zerolog.WarnLevel
	}
	return zerolog.InfoLevel
}

// LogAuthz logs an authorization decision.
// userID: the caller
// verb: operation (e.g., "relocate", "register")
// objectPath: logical object path
// admin: whether the admin override was requested
// result: "allowed" or "denied"
// reason: why access was denied (empty for allowed)
func (l *Logger) LogAuthz(userID, verb, objectPath string, admin bool, result, reason string) {
	event := l.logger.WithLevel(levelFor(result)).
		Str("event_type", "authz").
		Str("user_id", userID).
		Str("verb", verb).
		Str("object_path", objectPath).
		Bool("admin_override", admin).
		Str("result", result)

	if reason != "" {
		event = event.Str("reason", reason)
	}

	event.Msg("Authorization event")
}

// LogRelocation logs the outcome of moving one replica.
// userID: the caller
// objectPath: logical object path
// replNum: replica number
// source, dest: resource names
// result: "success" or "failure"
// details: error kind and message on failure
func (l *Logger) LogRelocation(userID, objectPath string, replNum int, source, dest, result, details string) {
	event := l.logger.WithLevel(levelFor(result)).
		Str("event_type", "relocation").
		Str("user_id", userID).
		Str("object_path", objectPath).
		Int("repl_num", replNum).
		Str("source_resource", source).
		Str("dest_resource", dest).
		Str("result", result)

	if details != "" {
		event = event.Str("details", details)
	}

	event.Msg("Replica relocation")
}

// LogRegistration logs a physical-path registration.
// replNum is -1 when no replica was created.
func (l *Logger) LogRegistration(userID, objectPath, resource, physicalPath string, replNum int, result, details string) {
	event := l.logger.WithLevel(levelFor(result)).
		Str("event_type", "registration").
		Str("user_id", userID).
		Str("object_path", objectPath).
		Str("resource", resource).
		Str("physical_path", physicalPath).
		Str("result", result)

	if replNum >= 0 {
		event = event.Int("repl_num", replNum)
	}
	if details != "" {
		event = event.Str("details", details)
	}

	event.Msg("Physical path registration")
}

// LogUnregistration logs the removal of a replica's catalog entry.
func (l *Logger) LogUnregistration(userID, objectPath string, replNum int, resource, physicalPath, result, details string) {
	event := l.logger.WithLevel(levelFor(result)).
		Str("event_type", "unregistration").
		Str("user_id", userID).
		Str("object_path", objectPath).
		Int("repl_num", replNum).
		Str("resource", resource).
		Str("physical_path", physicalPath).
		Str("result", result)

	if details != "" {
		event = event.Str("details", details)
	}

	event.Msg("Replica unregistration")
}
