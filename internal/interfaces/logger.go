package interfaces

// Logger is the structured logging contract shared by the orchestrator,
// store, engine clients and HTTP layer. It stays small on purpose: any
// real logging backend can satisfy it without an adapter package.
type Logger interface {
	// Debug logs fine-grained detail, e.g. individual engine polls.
	Debug(msg string, fields ...Field)

	// Info logs scan lifecycle milestones.
	Info(msg string, fields ...Field)

	// Warn logs recoverable trouble, such as a failed status poll.
	Warn(msg string, fields ...Field)

	// Error logs failures that end a scan run.
	Error(msg string, fields ...Field)

	// With returns a child logger carrying persistent fields.
	With(fields ...Field) Logger
}

// Field is one key/value pair attached to a log entry.
type Field struct {
	Key   string
	Value interface{}
}
