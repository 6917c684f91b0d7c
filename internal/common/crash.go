package common

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"strings"
	"time"
)

// WriteCrashReport writes a panic report with the stack of the panicking
// goroutine and a dump of all goroutines into dir. It returns the file path.
func WriteCrashReport(dir string, panicVal any, stack []byte) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create crash directory: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "=== HARVESTER CRASH REPORT ===\n")
	fmt.Fprintf(&b, "Time: %s\n", time.Now().Format(time.RFC3339))
	fmt.Fprintf(&b, "Version: %s\n\n", GetFullVersion())
	fmt.Fprintf(&b, "=== PANIC ===\n%v\n\n", panicVal)
	fmt.Fprintf(&b, "=== STACK ===\n%s\n", stack)
	fmt.Fprintf(&b, "=== ALL GOROUTINES (%d) ===\n%s\n", runtime.NumGoroutine(), allStacks())

	path := filepath.Join(dir, fmt.Sprintf("crash-%s.log", time.Now().Format("2006-01-02T15-04-05")))
	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		return "", fmt.Errorf("failed to write crash report: %w", err)
	}
	return path, nil
}

func allStacks() []byte {
	buf := make([]byte, 64*1024)
	for {
		n := runtime.Stack(buf, true)
		if n < len(buf) || len(buf) >= 16*1024*1024 {
			return buf[:n]
		}
		buf = make([]byte, len(buf)*2)
	}
}

// RecoverWithCrashFile turns a panic on the calling goroutine into a crash
// report and exits non-zero. dir is resolved only when a panic occurs.
// Usage: defer common.RecoverWithCrashFile(dirFn)
func RecoverWithCrashFile(dir func() string) {
	r := recover()
	if r == nil {
		return
	}
	path, err := WriteCrashReport(dir(), r, debug.Stack())
	if err != nil {
		fmt.Fprintf(os.Stderr, "CRASH: %v\npanic: %v\n%s", err, r, debug.Stack())
	} else {
		fmt.Fprintf(os.Stderr, "\n!!! FATAL CRASH - Report saved to: %s !!!\nPanic: %v\n", path, r)
	}
	os.Exit(1)
}
