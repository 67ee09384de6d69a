package debug

import (
	"fmt"
	"log"
	"time"
)

// DebugHeader marks the start of a debugged stage
func DebugHeader(enabled bool, stage string) {
	if enabled {
		log.Printf("=== %s START ===", stage)
	}
}

// DebugFooter marks the end of a debugged stage
func DebugFooter(enabled bool, stage string) {
	if enabled {
		log.Printf("=== %s END ===", stage)
	}
}

// DebugOutput prints a timestamped line when debugging is enabled
func DebugOutput(enabled bool, format string, args ...interface{}) {
	if enabled {
		timestamp := time.Now().Format("15:04:05.000")
		message := fmt.Sprintf(format, args...)
		log.Printf("[%s] %s", timestamp, message)
	}
}

// DebugTiming logs how long an operation took. Call the returned func when
// the operation finishes.
func DebugTiming(enabled bool, operation string) func() {
	if !enabled {
		return func() {}
	}

	start := time.Now()
	DebugOutput(enabled, "Starting: %s", operation)

	return func() {
		DebugOutput(enabled, "Completed: %s (took %v)", operation, time.Since(start))
	}
}

// DebugCounts logs row counts flowing through a stage
func DebugCounts(enabled bool, stage string, in, out int) {
	DebugOutput(enabled, "%s: %d rows in, %d rows out", stage, in, out)
}
