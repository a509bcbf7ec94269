package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// FileRecorder appends security events to a newline-delimited JSON file
type FileRecorder struct {
	basePath string
	maxSize  int64
	maxFiles int

	mu      sync.Mutex
	file    *os.File
	encoder *json.Encoder
	size    int64
}

// FileRecorderConfig configures the file recorder
type FileRecorderConfig struct {
	BasePath string // Directory for security event logs
	MaxSize  int64  // Max file size in bytes before rotation (default: 100MB)
	MaxFiles int    // Max number of rotated files to keep (default: 10)
}

// NewFileRecorder creates a file-backed security event recorder
func NewFileRecorder(cfg FileRecorderConfig) (*FileRecorder, error) {
	if err := os.MkdirAll(cfg.BasePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create security log directory: %w", err)
	}

	r := &FileRecorder{
		basePath: cfg.BasePath,
		maxSize:  cfg.MaxSize,
		maxFiles: cfg.MaxFiles,
	}
	if r.maxSize == 0 {
		r.maxSize = 100 * 1024 * 1024
	}
	if r.maxFiles == 0 {
		r.maxFiles = 10
	}

	if err := r.openLogFile(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *FileRecorder) currentPath() string {
	return filepath.Join(r.basePath, "security.log")
}

func (r *FileRecorder) openLogFile() error {
	file, err := os.OpenFile(r.currentPath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open security log file: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return fmt.Errorf("failed to stat security log file: %w", err)
	}

	r.file = file
	r.encoder = json.NewEncoder(file)
	r.size = info.Size()
	return nil
}

// Record appends one event, rotating first if the file is full
func (r *FileRecorder) Record(rec Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.size >= r.maxSize {
		if err := r.rotate(); err != nil {
			return fmt.Errorf("failed to rotate security log: %w", err)
		}
	}

	before := r.size
	if err := r.encoder.Encode(rec); err != nil {
		return fmt.Errorf("failed to write security event: %w", err)
	}
	if info, err := r.file.Stat(); err == nil {
		r.size = info.Size()
	} else {
		r.size = before + 1
	}
	return nil
}

// rotate renames the current file with a timestamp suffix and opens a fresh
// one, then drops the oldest rotations beyond maxFiles.
func (r *FileRecorder) rotate() error {
	if err := r.file.Close(); err != nil {
		return err
	}

	rotated := filepath.Join(r.basePath, fmt.Sprintf("security-%s.log", time.Now().UTC().Format("20060102T150405")))
	if err := os.Rename(r.currentPath(), rotated); err != nil {
		return err
	}
	if err := r.openLogFile(); err != nil {
		return err
	}
	return r.cleanupOldFiles()
}

func (r *FileRecorder) cleanupOldFiles() error {
	entries, err := os.ReadDir(r.basePath)
	if err != nil {
		return err
	}

	var rotated []string
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, "security-") && strings.HasSuffix(name, ".log") {
			rotated = append(rotated, name)
		}
	}
	if len(rotated) <= r.maxFiles {
		return nil
	}

	// Timestamp-suffixed names sort chronologically
	sort.Strings(rotated)
	for _, name := range rotated[:len(rotated)-r.maxFiles] {
		if err := os.Remove(filepath.Join(r.basePath, name)); err != nil {
			return err
		}
	}
	return nil
}

// Close flushes and closes the current log file
func (r *FileRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}
