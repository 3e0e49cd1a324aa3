package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"
)

// ErrAlreadyRunning indicates another kiosk answered on the socket.
var ErrAlreadyRunning = errors.New("storybook kiosk already running")

// SocketName is the socket file created under the runtime dir.
const SocketName = "storybook.sock"

// RuntimeSocketPath resolves the control socket. override wins when set.
func RuntimeSocketPath(override string) (string, error) {
	if path := strings.TrimSpace(override); path != "" {
		return path, nil
	}
	runtimeDir := strings.TrimSpace(os.Getenv("XDG_RUNTIME_DIR"))
	if runtimeDir == "" {
		return "", errors.New("XDG_RUNTIME_DIR is not set")
	}
	return filepath.Join(runtimeDir, SocketName), nil
}

// LockOptions controls how Acquire treats a socket file it did not create.
type LockOptions struct {
	// ProbeTimeout bounds the status roundtrip used to tell a live kiosk
	// from a stale socket.
	ProbeTimeout time.Duration
	// Retries is the number of extra listen attempts after a stale socket
	// was removed.
	Retries int
	// OnStale runs after a stale socket at path was unlinked.
	OnStale func(path string)
}

// DefaultLockOptions is what `storybook run` uses.
func DefaultLockOptions() LockOptions {
	return LockOptions{ProbeTimeout: 180 * time.Millisecond, Retries: 8}
}

// Lock is the control socket held by the single running kiosk.
type Lock struct {
	net.Listener
	path string
}

// Path is the socket file backing the lock.
func (l *Lock) Path() string { return l.path }

// Close stops listening and unlinks the socket file. Safe to call twice.
func (l *Lock) Close() error {
	err := l.Listener.Close()
	if errors.Is(err, net.ErrClosed) {
		err = nil
	}
	if rmErr := os.Remove(l.path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) && err == nil {
		err = rmErr
	}
	return err
}

// Acquire makes this process the only kiosk listening on path. A socket
// whose owner answers a status probe yields ErrAlreadyRunning; a socket
// nobody answers on is removed and listening is retried with a short backoff.
// A probe that neither connects nor gets refused leaves the file alone.
func Acquire(ctx context.Context, path string, opts LockOptions) (*Lock, error) {
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = DefaultLockOptions().ProbeTimeout
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("ensure runtime socket dir: %w", err)
	}

	for attempt := 0; ; attempt++ {
		listener, err := net.Listen("unix", path)
		if err == nil {
			_ = os.Chmod(path, 0o600)
			return &Lock{Listener: listener, path: path}, nil
		}
		if !errors.Is(err, syscall.EADDRINUSE) {
			return nil, fmt.Errorf("listen unix %s: %w", path, err)
		}

		alive, probeErr := Probe(ctx, path, opts.ProbeTimeout)
		switch {
		case alive:
			return nil, ErrAlreadyRunning
		case probeErr != nil:
			return nil, fmt.Errorf("probe existing socket %s: %w", path, probeErr)
		}

		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("remove stale socket %s: %w", path, err)
		}
		if opts.OnStale != nil {
			opts.OnStale(path)
		}

		if attempt >= opts.Retries {
			return nil, fmt.Errorf("acquire socket %s: still in use after %d retries", path, opts.Retries)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(attempt+1) * 25 * time.Millisecond):
		}
	}
}
