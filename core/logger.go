package core

// Logger is implemented by any leveled logger.
// args may hold errors, map[string]interface{} extras and the user the log entry concerns.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}
