// Package notify shows best-effort desktop notifications.
package notify

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strconv"
	"time"
)

// ErrUnsupported is returned when no notification tool is available.
var ErrUnsupported = errors.New("desktop notifications unsupported")

// Notifier shows a user-facing notification.
type Notifier interface {
	Notify(ctx context.Context, title, message string) error
}

// Nop discards notifications.
type Nop struct{}

// Notify implements Notifier.
func (Nop) Notify(context.Context, string, string) error { return nil }

// Desktop shells out to notify-send on Linux and osascript on macOS.
type Desktop struct {
	goos     string
	lookPath func(string) (string, error)
	run      func(ctx context.Context, name string, args ...string) error
}

// NewDesktop returns a Desktop notifier for the running OS.
func NewDesktop() *Desktop {
	return &Desktop{
		goos:     runtime.GOOS,
		lookPath: exec.LookPath,
		run: func(ctx context.Context, name string, args ...string) error {
			return exec.CommandContext(ctx, name, args...).Run()
		},
	}
}

// Notify implements Notifier.
func (d *Desktop) Notify(ctx context.Context, title, message string) error {
	name, args, err := d.command(title, message)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := d.run(ctx, name, args...); err != nil {
		return fmt.Errorf("running %s: %w", name, err)
	}
	return nil
}

func (d *Desktop) command(title, message string) (string, []string, error) {
	switch d.goos {
	case "linux", "freebsd", "openbsd":
		if _, err := d.lookPath("notify-send"); err != nil {
			return "", nil, fmt.Errorf("%w: notify-send not found", ErrUnsupported)
		}
		return "notify-send", []string{"--app-name=tabclose", title, message}, nil
	case "darwin":
		script := "display notification " + strconv.Quote(message) + " with title " + strconv.Quote(title)
		return "osascript", []string{"-e", script}, nil
	default:
		return "", nil, fmt.Errorf("%w on %s", ErrUnsupported, d.goos)
	}
}
