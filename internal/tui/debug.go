package tui

import (
	"fmt"
	"os"
	"sync"
	"time"
)

// The console owns the terminal, so request tracing goes to a file instead
// of the regular logger.
var (
	debugFile *os.File
	debugMu   sync.Mutex
)

// EnableDebugLogging appends request traces to path.
func EnableDebugLogging(path string) error {
	debugMu.Lock()
	defer debugMu.Unlock()

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if debugFile != nil {
		debugFile.Close()
	}
	debugFile = f
	return nil
}

// DebugLog writes a formatted message to the debug log if enabled
func DebugLog(format string, args ...any) {
	debugMu.Lock()
	defer debugMu.Unlock()

	if debugFile == nil {
		return
	}
	fmt.Fprintf(debugFile, "[%s] %s\n", time.Now().Format(time.RFC3339), fmt.Sprintf(format, args...))
}

// CloseDebugLog closes the log file
func CloseDebugLog() {
	debugMu.Lock()
	defer debugMu.Unlock()

	if debugFile != nil {
		debugFile.Close()
		debugFile = nil
	}
}
