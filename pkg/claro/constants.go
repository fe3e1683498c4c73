package claro

// Constants for default values and configuration fallbacks.
const (
	// DefaultMaxCallDepth bounds CALL recursion when the
	// Interpreter.max_call_depth setting is absent.
	DefaultMaxCallDepth = 64
	// OutputChannelBufferSize is the buffer for the streaming message
	// channel; a large buffer avoids dropping output in tight loops.
	OutputChannelBufferSize = 4096
	// ContextCheckInterval controls how many dispatches run between
	// cancellation checks in the program driver.
	ContextCheckInterval = 1000
)
