package ir

// Version constants stamped on outgoing data.
const (
	// DataVersion is the semver of the persisted data layout.
	DataVersion = "0.7.0"

	// InterpreterVersion is the semver of this interpreter.
	InterpreterVersion = "0.1.0"
)
