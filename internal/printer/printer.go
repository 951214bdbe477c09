// Package printer formats CLI output for the treeline commands.
package printer

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
)

func init() {
	// Force color output even when not connected to a TTY.
	// Users can disable with the NO_COLOR environment variable.
	if os.Getenv("NO_COLOR") == "" {
		color.NoColor = false
	}
}

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed, color.Bold)
	cyan   = color.New(color.FgCyan)
	faint  = color.New(color.Faint)
)

// Success prints a success message in green with a checkmark prefix.
func Success(format string, a ...any) {
	green.Printf("✓ %s\n", fmt.Sprintf(format, a...))
}

// Info prints an informational message in the default color.
func Info(format string, a ...any) {
	fmt.Printf(format+"\n", a...)
}

// Warning prints a warning message in yellow.
func Warning(format string, a ...any) {
	yellow.Printf("⚠ %s\n", fmt.Sprintf(format, a...))
}

// Event prints one workspace event line: a cyan tag followed by detail.
// Used by the watch command's live feed.
func Event(tag string, format string, a ...any) {
	cyan.Printf("%-14s", tag)
	fmt.Printf(" %s\n", fmt.Sprintf(format, a...))
}

// Muted prints low-priority detail (status transitions, heartbeats).
func Muted(format string, a ...any) {
	faint.Printf("%s\n", fmt.Sprintf(format, a...))
}

// Error prints a formatted error with optional suggestions to stderr
// and returns a plain error for Cobra (which silences its own output).
func Error(title string, explanation string, suggestions []string) error {
	red.Fprintf(os.Stderr, "%s\n\n", title)
	fmt.Fprintf(os.Stderr, "%s\n", explanation)

	if len(suggestions) > 0 {
		fmt.Fprintf(os.Stderr, "\n")
		for i, s := range suggestions {
			if len(suggestions) == 1 {
				fmt.Fprintf(os.Stderr, "%s\n", s)
			} else {
				fmt.Fprintf(os.Stderr, "  %d. %s\n", i+1, s)
			}
		}
	}

	return fmt.Errorf("%s", strings.TrimSpace(title))
}
