package log

import (
	"io"
	"os"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// ConsoleOutput writes formatted entries to stderr (errors) or stdout.
type ConsoleOutput struct {
	mu sync.Mutex
	// Stderr forces all entries to stderr regardless of level.
	Stderr bool
}

// NewConsoleOutput returns a console output writing info and below to stdout
// and warnings and above to stderr.
func NewConsoleOutput() *ConsoleOutput { return &ConsoleOutput{} }

// Write emits one formatted entry.
func (o *ConsoleOutput) Write(entry *Entry, formatted []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	var w io.Writer = os.Stdout
	if o.Stderr || entry.Level >= WarnLevel {
		w = os.Stderr
	}
	_, err := w.Write(formatted)
	return err
}

// Close is a no-op for console output.
func (o *ConsoleOutput) Close() error { return nil }

// FileOutput writes formatted entries to a size-rotated log file.
type FileOutput struct {
	mu sync.Mutex
	lj *lumberjack.Logger
}

// FileOptions configures a rotating file output.
type FileOptions struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// NewFileOutput returns a rotating file output for the given options.
func NewFileOutput(opts FileOptions) *FileOutput {
	if opts.MaxSizeMB <= 0 {
		opts.MaxSizeMB = 100
	}
	return &FileOutput{lj: &lumberjack.Logger{
		Filename:   opts.Path,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		MaxAge:     opts.MaxAgeDays,
		Compress:   opts.Compress,
	}}
}

// Write emits one formatted entry to the rotated file.
func (o *FileOutput) Write(_ *Entry, formatted []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, err := o.lj.Write(formatted)
	return err
}

// Close closes the underlying file.
func (o *FileOutput) Close() error { return o.lj.Close() }

// NullOutput discards all entries; useful in tests.
type NullOutput struct{}

func (NullOutput) Write(*Entry, []byte) error { return nil }
func (NullOutput) Close() error               { return nil }
