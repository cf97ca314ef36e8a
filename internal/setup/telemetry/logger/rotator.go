package logger

import (
	"bytes"
	"fmt"
	"os"
	"sync"
)

// Rotator is an io.Writer that caps a log file at a fixed number of lines.
// When the cap is reached the current file is moved to "<path>.1" and a fresh
// file is started, so at most 2*maxLines lines are kept on disk.
type Rotator struct {
	mu       sync.Mutex
	file     *os.File
	path     string
	maxLines int
	lines    int
}

// NewRotator opens (or creates) the file at path for appending.
func NewRotator(path string, maxLines int) (*Rotator, error) {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("cannot open log file %s: %w", path, err)
	}

	return &Rotator{
		file:     file,
		path:     path,
		maxLines: maxLines,
	}, nil
}

// Write implements io.Writer.
func (r *Rotator) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, err := r.file.Write(p)
	if err != nil {
		return n, err
	}

	if r.maxLines <= 0 {
		return n, nil
	}

	r.lines += bytes.Count(p, []byte{'\n'})
	if r.lines >= r.maxLines {
		if err := r.rotate(); err != nil {
			return n, fmt.Errorf("failed to rotate log file: %w", err)
		}
	}

	return n, nil
}

// Sync flushes the underlying file.
func (r *Rotator) Sync() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.file.Sync()
}

// Close closes the underlying file.
func (r *Rotator) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.file.Close()
}

// rotate must be called with the mutex held.
func (r *Rotator) rotate() error {
	if err := r.file.Close(); err != nil {
		return err
	}

	backup := r.path + ".1"
	_ = os.Remove(backup)

	if err := os.Rename(r.path, backup); err != nil {
		return err
	}

	file, err := os.OpenFile(r.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}

	r.file = file
	r.lines = 0

	return nil
}
