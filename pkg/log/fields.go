package log

// Shared field names used across modules so log lines stay greppable.
const (
	FieldNameModule  = "module"
	FieldNameSession = "session"
	FieldNameEvent   = "event"
)
