package activitylog

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// DefaultFileName is used when no log path is configured.
const DefaultFileName = "bsky-autoposter.log"

// File is the activity log on disk. Writes rotate by size; Read and Clear
// back the log viewer.
type File struct {
	path string

	mu sync.Mutex
	lj *lumberjack.Logger
}

// OpenFile prepares the log at path. The file is created lazily on the first
// write; maxSizeMB <= 0 uses lumberjack's default of 100 MB.
func OpenFile(path string, maxSizeMB int) (*File, error) {
	if path == "" {
		path = DefaultFileName
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	return &File{
		path: path,
		lj: &lumberjack.Logger{
			Filename:   path,
			MaxSize:    maxSizeMB,
			MaxBackups: 3,
			LocalTime:  true,
		},
	}, nil
}

// Path returns the location of the log file.
func (f *File) Path() string {
	return f.path
}

func (f *File) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lj.Write(p)
}

// Read returns the current log contents. A missing file reads as empty.
func (f *File) Read() ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	b, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	return b, err
}

// Clear truncates the log. The next write reopens the file in append mode.
func (f *File) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.lj.Close(); err != nil {
		return fmt.Errorf("close log: %w", err)
	}
	if err := os.Truncate(f.path, 0); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("truncate log: %w", err)
	}
	return nil
}

// Close flushes and closes the underlying file.
func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lj.Close()
}
