package liveapi

// These consts are used in various places of the liveness analyses. Instead of defining them in each file, we
// define them here so that we can quickly iterate on debugging without spending "where do we have debug logging?" time.

// ----- Debug logging -----
// These consts must be disabled by default. Enable them only when debugging.

const (
	// LivenessLoggingEnabled prints per-block liveness facts once an analysis has been built.
	LivenessLoggingEnabled = false
	// DataflowLoggingEnabled prints a line per solver sweep.
	DataflowLoggingEnabled = false
	// PressureLoggingEnabled prints the live set after every instruction of the pressure walk.
	PressureLoggingEnabled = false
)

// ----- Validations -----
// These consts must be enabled by default until we reach the point where we can disable them.

const (
	// LivenessValidationEnabled enables the internal consistency checks of LiveSet and the pressure walk.
	LivenessValidationEnabled = true
)
