// Package corelog provides the capture core's structured logging: a
// swappable package-level slog.Logger backed by a rotating file handler
// appended to the resource root, plus structured field key constants for
// the recurring capture/encoder event shape. This mirrors
// LanternOps-breeze's switchable-handler logging pattern (an
// atomically-swappable destination behind a stable logger reference)
// rather than pulling in a third-party logging library, matching the
// teacher's own plain logging texture.
package corelog

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
)

// Structured field keys used across the capture core.
const (
	KeyComponent = "component"
	KeyEvent     = "event"
	KeyReason    = "reason"
	KeyOSError   = "os_error"
)

var current atomic.Pointer[slog.Logger]

func init() {
	l := slog.New(slog.NewTextHandler(os.Stderr, nil))
	current.Store(l)
}

// L returns the currently installed logger. Every call site fetches it
// fresh rather than caching it, so a later Init/SetOutput call takes effect
// everywhere without plumbing a logger through every constructor.
func L() *slog.Logger {
	return current.Load()
}

// SetOutput installs a fresh logger writing through h, replacing whatever
// was previously installed.
func SetOutput(h slog.Handler) {
	current.Store(slog.New(h))
}

// rotatingFile is a minimal size-capped rotating writer: when the current
// file would exceed maxBytes, it is renamed with a ".1" suffix (clobbering
// any prior rotation) and a fresh file is opened. No rotation library
// appears anywhere in the retrieved pack, so this is carried as a small
// in-package implementation rather than introducing one.
type rotatingFile struct {
	path     string
	maxBytes int64
	f        *os.File
	written  int64
}

func newRotatingFile(path string, maxBytes int64) (*rotatingFile, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	return &rotatingFile{path: path, maxBytes: maxBytes, f: f, written: info.Size()}, nil
}

func (r *rotatingFile) Write(p []byte) (int, error) {
	if r.written+int64(len(p)) > r.maxBytes {
		if err := r.rotate(); err != nil {
			return 0, err
		}
	}
	n, err := r.f.Write(p)
	r.written += int64(n)
	return n, err
}

func (r *rotatingFile) rotate() error {
	if err := r.f.Close(); err != nil {
		return err
	}
	_ = os.Rename(r.path, r.path+".1")
	f, err := os.OpenFile(r.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	r.f = f
	r.written = 0
	return nil
}

func (r *rotatingFile) Close() error {
	return r.f.Close()
}

// defaultMaxLogBytes bounds a single log file before rotation.
const defaultMaxLogBytes = 8 << 20 // 8 MiB

// Init points the package logger at "<resourceRoot>/svrcore.log", per
// spec.md §6's "a log file appended to the resource root". The returned
// closer must be called on shutdown.
func Init(resourceRoot string) (closer func() error, err error) {
	path := filepath.Join(resourceRoot, "svrcore.log")
	rf, err := newRotatingFile(path, defaultMaxLogBytes)
	if err != nil {
		return nil, fmt.Errorf("corelog: opening %s: %w", path, err)
	}
	SetOutput(slog.NewTextHandler(rf, nil))
	return rf.Close, nil
}

// SetupFailure logs a setup-failure error per spec.md §7's error kinds.
func SetupFailure(component string, reason error) {
	L().Error("setup failure", KeyComponent, component, KeyReason, reason)
}

// EncoderCrash logs an encoder-crash error per spec.md §7.
func EncoderCrash(component string, reason error) {
	L().Error("encoder crashed", KeyComponent, component, KeyReason, reason)
}
