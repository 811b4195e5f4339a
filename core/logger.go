package core

// Logger is the logging interface used across services.
// args may carry an error and the acting identity, which reporters attach to the entry.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}
