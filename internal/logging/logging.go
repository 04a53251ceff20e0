// Package logging builds the component loggers used by the CLI.
package logging

import (
	"io"
	"log"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options selects where log lines go.
type Options struct {
	// File enables a size-rotated log file. Empty means stderr.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int

	// Verbose writes informational lines. Without it only a log file, when
	// configured, receives output.
	Verbose bool
}

// Factory hands out prefixed loggers that share one writer.
type Factory struct {
	w      io.Writer
	closer io.Closer
}

// New creates a Factory for opts.
func New(opts Options) *Factory {
	f := &Factory{w: io.Discard}
	switch {
	case opts.File != "":
		lj := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
			Compress:   true,
		}
		f.w, f.closer = lj, lj
		if opts.Verbose {
			f.w = io.MultiWriter(lj, os.Stderr)
		}
	case opts.Verbose:
		f.w = os.Stderr
	}
	return f
}

// Logger returns a logger with a "[component] " prefix.
func (f *Factory) Logger(component string) *log.Logger {
	return log.New(f.w, "["+component+"] ", log.LstdFlags)
}

// Writer returns the shared destination.
func (f *Factory) Writer() io.Writer {
	return f.w
}

// Close flushes and closes the log file, if any.
func (f *Factory) Close() error {
	if f.closer == nil {
		return nil
	}
	return f.closer.Close()
}
