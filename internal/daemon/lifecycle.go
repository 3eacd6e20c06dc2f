package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

const (
	lockFileName      = "daemon.lock"
	spawnLockFileName = "daemon.spawn.lock"
	sockFileName      = "daemon.sock"
	logFileName       = "daemon.log"

	// ExecutableEnv overrides the binary spawned for the daemon.
	ExecutableEnv = "TABCLOSE_EXECUTABLE"

	readyTimeout = 5 * time.Second
)

// SockPath returns the daemon socket inside dir.
func SockPath(dir string) string { return filepath.Join(dir, sockFileName) }

// LockInfo describes the running daemon.
type LockInfo struct {
	PID       int       `json:"pid"`
	SockPath  string    `json:"sock_path"`
	StartedAt time.Time `json:"started_at"`
}

// IsAlive reports whether the daemon process still exists.
func (l *LockInfo) IsAlive() bool {
	if l.PID <= 0 {
		return false
	}
	err := unix.Kill(l.PID, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}

// WriteLockFile records the running daemon in dir.
func WriteLockFile(dir string, info LockInfo) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	if info.StartedAt.IsZero() {
		info.StartedAt = time.Now()
	}
	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, lockFileName), data, 0644)
}

// ReadLockFile reads the daemon lock file. Returns nil, nil if not found.
func ReadLockFile(dir string) (*LockInfo, error) {
	data, err := os.ReadFile(filepath.Join(dir, lockFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var info LockInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", lockFileName, err)
	}
	return &info, nil
}

// RemoveLockFile removes the daemon lock file.
func RemoveLockFile(dir string) {
	os.Remove(filepath.Join(dir, lockFileName))
}

// Running returns a client for the live daemon in dir, or nil when none is
// running. It never spawns.
func Running(dir string) (*Client, error) {
	lock, err := ReadLockFile(dir)
	if err != nil {
		return nil, fmt.Errorf("reading daemon lock: %w", err)
	}
	if lock == nil || !lock.IsAlive() {
		return nil, nil
	}
	return NewClient(lock.SockPath), nil
}

// EnsureRunning returns a client for the daemon in dir, spawning it via
// self-exec of the hidden _daemon command when it is not running.
//
// The check and spawn happen under an advisory flock so concurrent CLI
// invocations start at most one daemon.
func EnsureRunning(dir string) (*Client, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating daemon directory: %w", err)
	}

	unlock, err := acquireSpawnLock(dir)
	if err != nil {
		return nil, fmt.Errorf("acquiring daemon spawn lock: %w", err)
	}
	defer unlock()

	lock, err := ReadLockFile(dir)
	if err != nil {
		return nil, fmt.Errorf("reading daemon lock: %w", err)
	}
	if lock != nil && lock.IsAlive() {
		return NewClient(lock.SockPath), nil
	}
	if lock != nil {
		RemoveLockFile(dir)
		os.Remove(lock.SockPath)
	}

	if err := spawn(dir); err != nil {
		return nil, err
	}
	return waitReady(SockPath(dir), readyTimeout)
}

// spawn starts a detached daemon process whose output goes to daemon.log.
func spawn(dir string) error {
	exe, err := resolveDaemonExecutable()
	if err != nil {
		return err
	}

	devNull, err := os.Open(os.DevNull)
	if err != nil {
		return fmt.Errorf("opening %s: %w", os.DevNull, err)
	}
	defer devNull.Close()

	out := devNull
	if f, err := os.OpenFile(filepath.Join(dir, logFileName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644); err == nil {
		defer f.Close()
		out = f
	}

	proc, err := os.StartProcess(exe, []string{exe, "_daemon", "--dir", dir}, &os.ProcAttr{
		Dir:   "/",
		Env:   os.Environ(),
		Files: []*os.File{devNull, out, out},
		Sys:   &syscall.SysProcAttr{Setsid: true},
	})
	if err != nil {
		return fmt.Errorf("starting daemon: %w", err)
	}
	return proc.Release()
}

func waitReady(sockPath string, timeout time.Duration) (*Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	client := NewClient(sockPath)
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	for {
		if _, err := os.Stat(sockPath); err == nil {
			if _, err := client.Health(ctx); err == nil {
				return client, nil
			}
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("daemon did not start within %s", timeout)
		case <-tick.C:
		}
	}
}

// acquireSpawnLock takes an exclusive flock on the spawn lock file. The
// returned function releases it.
func acquireSpawnLock(dir string) (unlock func(), err error) {
	f, err := os.OpenFile(filepath.Join(dir, spawnLockFileName), os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, err
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		f.Close()
		return nil, err
	}
	return func() {
		_ = unix.Flock(int(f.Fd()), unix.LOCK_UN)
		f.Close()
	}, nil
}

// resolveDaemonExecutable returns the binary to run as the daemon:
// $TABCLOSE_EXECUTABLE if set, else the current executable. A go test binary
// has no _daemon command, so it is rejected.
func resolveDaemonExecutable() (string, error) {
	if exe := os.Getenv(ExecutableEnv); exe != "" {
		return exe, nil
	}
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("finding executable: %w", err)
	}
	if strings.HasSuffix(filepath.Base(exe), ".test") {
		return "", fmt.Errorf("daemon cannot be started from test binary %q; set %s", exe, ExecutableEnv)
	}
	return exe, nil
}
