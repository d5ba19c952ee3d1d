package logging

// NoopLogger discards every message. It is the library default.
type NoopLogger struct{}

// NewNoop returns a logger that discards everything.
func NewNoop() *NoopLogger { return &NoopLogger{} }

func (l *NoopLogger) Debug(msg string, args ...interface{}) {}
func (l *NoopLogger) Info(msg string, args ...interface{})  {}
func (l *NoopLogger) Warn(msg string, args ...interface{})  {}
func (l *NoopLogger) Error(msg string, args ...interface{}) {}

// WithComponent returns l.
func (l *NoopLogger) WithComponent(component string) Logger { return l }
