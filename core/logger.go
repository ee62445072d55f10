package core

// Logger is implemented by the logging services.
// args may carry errors, extra data maps and the identity the log entry is about.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}

// LogPerson identifies who triggered a log entry.
type LogPerson struct {
	ID       string
	Username string
	Email    string
}
