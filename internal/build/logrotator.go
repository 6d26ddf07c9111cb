package build

import (
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/jrick/logrotate/rotator"
)

const (
	// DefaultMaxLogFiles is the number of rotated log files kept.
	DefaultMaxLogFiles = 10

	// DefaultMaxLogFileSize is the size in MB a log file grows to before
	// it is rotated.
	DefaultMaxLogFileSize = 20

	// DefaultLogFilename is the name of the active log file.
	DefaultLogFilename = "convostore.log"
)

// LogRotatorConfig configures the rotating log file.
type LogRotatorConfig struct {
	// LogDir is the directory log files are written to.
	LogDir string

	// MaxLogFiles is the number of rotated files to keep. Zero keeps
	// them all.
	MaxLogFiles int

	// MaxLogFileSize is the size in MB at which the file is rotated.
	MaxLogFileSize int

	// Filename overrides DefaultLogFilename.
	Filename string
}

// DefaultLogRotatorConfig returns the default rotation settings for dir.
func DefaultLogRotatorConfig(dir string) *LogRotatorConfig {
	return &LogRotatorConfig{
		LogDir:         dir,
		MaxLogFiles:    DefaultMaxLogFiles,
		MaxLogFileSize: DefaultMaxLogFileSize,
		Filename:       DefaultLogFilename,
	}
}

// Path returns the path of the active log file.
func (c *LogRotatorConfig) Path() string {
	name := c.Filename
	if name == "" {
		name = DefaultLogFilename
	}

	return filepath.Join(c.LogDir, name)
}

// RotatingLogWriter is an io.Writer feeding a jrick/logrotate rotator that
// gzips the files it rotates out.
type RotatingLogWriter struct {
	pipe *io.PipeWriter
	done chan error
}

// NewRotatingLogWriter creates the log directory and starts the rotator.
func NewRotatingLogWriter(cfg *LogRotatorConfig) (*RotatingLogWriter,
	error) {

	if cfg.MaxLogFileSize <= 0 {
		return nil, fmt.Errorf("invalid max log file size %d MB",
			cfg.MaxLogFileSize)
	}

	logFile := cfg.Path()
	if err := os.MkdirAll(filepath.Dir(logFile), 0o700); err != nil {
		return nil, fmt.Errorf("unable to create log directory: %w",
			err)
	}

	// The rotator thresholds are in KB.
	r, err := rotator.New(
		logFile, int64(cfg.MaxLogFileSize)*1024, false,
		cfg.MaxLogFiles,
	)
	if err != nil {
		return nil, fmt.Errorf("unable to create file rotator: %w", err)
	}
	r.SetCompressor(gzip.NewWriter(nil), ".gz")

	pr, pw := io.Pipe()
	w := &RotatingLogWriter{
		pipe: pw,
		done: make(chan error, 1),
	}

	go func() {
		// Run returns io.EOF once Close has closed the pipe.
		err := r.Run(pr)
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if err != nil {
			// The rotator is the log destination, so stderr is
			// all that is left.
			_, _ = fmt.Fprintf(os.Stderr, "log rotator stopped: "+
				"%v\n", err)
		}
		_ = pr.CloseWithError(err)
		w.done <- errors.Join(err, r.Close())
	}()

	return w, nil
}

// Write sends b to the rotator.
func (w *RotatingLogWriter) Write(b []byte) (int, error) {
	return w.pipe.Write(b)
}

// Close flushes the pending writes and waits for the rotator to exit.
func (w *RotatingLogWriter) Close() error {
	if err := w.pipe.Close(); err != nil {
		return err
	}

	return <-w.done
}
