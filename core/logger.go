package core

// UserID identifies the user a log entry is about.
// Loggers that know how to attach a person to a report (e.g. Rollbar) pick it out of the args.
type UserID string

type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}
