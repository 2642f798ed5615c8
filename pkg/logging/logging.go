// Package logging wires decred/slog backends for the scramble binaries:
// one backend per process, per-subsystem loggers, a shared debug level and
// an optional log file next to stderr.
package logging

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/decred/slog"
)

// LogConfig holds the options for a process-wide log backend.
type LogConfig struct {
	// DebugLevel is the default level for all subsystems: trace, debug,
	// info, warn, error or critical.
	DebugLevel string

	// LogFile, when set, receives a copy of everything written to stderr.
	LogFile string
}

// LogBackend fans log writes out to stderr and the optional log file and
// hands out subsystem loggers at the configured level.
type LogBackend struct {
	backend *slog.Backend
	level   slog.Level
	file    *os.File

	mu      sync.Mutex
	loggers map[string]slog.Logger
}

// NewLogBackend creates the process log backend.
func NewLogBackend(cfg LogConfig) (*LogBackend, error) {
	level, ok := slog.LevelFromString(cfg.DebugLevel)
	if !ok {
		return nil, fmt.Errorf("unknown debug level %q", cfg.DebugLevel)
	}

	var w io.Writer = os.Stderr
	var f *os.File
	if cfg.LogFile != "" {
		var err error
		f, err = os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		w = io.MultiWriter(os.Stderr, f)
	}

	return &LogBackend{
		backend: slog.NewBackend(w),
		level:   level,
		file:    f,
		loggers: make(map[string]slog.Logger),
	}, nil
}

// Logger returns the logger for the given subsystem tag, creating it on
// first use.
func (lb *LogBackend) Logger(tag string) slog.Logger {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	if log, ok := lb.loggers[tag]; ok {
		return log
	}
	log := lb.backend.Logger(tag)
	log.SetLevel(lb.level)
	lb.loggers[tag] = log
	return log
}

// Close closes the log file, if any.
func (lb *LogBackend) Close() error {
	if lb.file != nil {
		return lb.file.Close()
	}
	return nil
}
