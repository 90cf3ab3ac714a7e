package logging

import "time"

type Level string

const (
	LevelDebug   Level = "debug"
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Verbosity values accepted on the command line and by the console.
const (
	VerbosityQuiet = 0
	VerbosityBasic = 1
	VerbosityNoisy = 2
)

type LogEntry struct {
	Timestamp time.Time         `json:"timestamp"`
	Level     Level             `json:"level"`
	Message   string            `json:"message"`
	Context   map[string]string `json:"context,omitempty"`
}

// LevelForVerbosity maps a numeric verbosity to the minimum level written.
// Bit 2 (noisy) wins over bit 1 (basic), so 2 and 3 both mean debug.
func LevelForVerbosity(verbosity int) Level {
	switch {
	case verbosity&VerbosityNoisy != 0:
		return LevelDebug
	case verbosity&VerbosityBasic != 0:
		return LevelInfo
	default:
		return LevelWarning
	}
}
