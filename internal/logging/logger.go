// Package logging is the structured logging layer of budgetdb. Components
// take a Logger; the container hands them a logrus-backed LogrusAdapter and
// tests hand them a MockLogger that records entries.
package logging

// Logger is a leveled logger with structured fields. The With* methods
// return a derived logger and leave the receiver unchanged, so a component
// can tag everything it logs (an import batch id, a rule id) once.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)

	WithError(err error) Logger
	WithField(key string, value interface{}) Logger
	WithFields(fields ...Field) Logger
}

// Field is one structured key/value. Keys used across packages are declared
// in constants.go.
type Field struct {
	Key   string
	Value interface{}
}

// F builds a Field.
func F(key string, value interface{}) Field {
	return Field{Key: key, Value: value}
}
