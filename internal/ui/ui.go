// Package ui renders user-facing CLI output: coloured status tags, stderr
// messages and countdown formatting.
package ui

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
)

var writer io.Writer = os.Stderr

// SetWriter overrides the message writer (for testing). nil restores stderr.
func SetWriter(w io.Writer) {
	if w == nil {
		w = os.Stderr
	}
	writer = w
}

var stdoutColor = detectColor(os.Stdout)
var stderrColor = detectColor(os.Stderr)

func detectColor(f *os.File) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// SetColorEnabled overrides color detection (for testing).
func SetColorEnabled(enabled bool) {
	stdoutColor = enabled
	stderrColor = enabled
}

func ansi(enabled bool, code, s string) string {
	if !enabled {
		return s
	}
	return "\033[" + code + "m" + s + "\033[0m"
}

// Bold returns s in bold (stdout).
func Bold(s string) string { return ansi(stdoutColor, "1", s) }

// Dim returns s dimmed (stdout).
func Dim(s string) string { return ansi(stdoutColor, "2", s) }

// Green returns s in green (stdout).
func Green(s string) string { return ansi(stdoutColor, "32", s) }

// Red returns s in red (stdout).
func Red(s string) string { return ansi(stdoutColor, "31", s) }

// Yellow returns s in yellow (stdout).
func Yellow(s string) string { return ansi(stdoutColor, "33", s) }

// OKTag returns a green check mark.
func OKTag() string { return Green("✓") }

// FailTag returns a red cross.
func FailTag() string { return Red("✗") }

// Warn prints a user-facing warning to stderr.
func Warn(msg string) {
	fmt.Fprintf(writer, "%s %s\n", ansi(stderrColor, "33", "Warning:"), msg)
}

// Warnf prints a formatted user-facing warning to stderr.
func Warnf(format string, args ...any) { Warn(fmt.Sprintf(format, args...)) }

// Error prints a user-facing error to stderr.
func Error(msg string) {
	fmt.Fprintf(writer, "%s %s\n", ansi(stderrColor, "31", "Error:"), msg)
}

// Errorf prints a formatted user-facing error to stderr.
func Errorf(format string, args ...any) { Error(fmt.Sprintf(format, args...)) }

// Info prints a plain message to stderr.
func Info(msg string) { fmt.Fprintln(writer, msg) }

// Infof prints a formatted plain message to stderr.
func Infof(format string, args ...any) { fmt.Fprintf(writer, format+"\n", args...) }

// FormatRemaining renders d as HH:MM:SS, rounding partial seconds up so a
// running timer never shows 00:00:00. Negative durations render as zero.
func FormatRemaining(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int64((d + time.Second - 1) / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", secs/3600, (secs/60)%60, secs%60)
}

// FormatClock renders t the way the time picker displays it, e.g. "3:45 PM".
func FormatClock(t time.Time) string { return t.Format("3:04 PM") }
