// audit/file_logger.go
package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// Ensure FileLogger implements Logger interface
var _ Logger = (*FileLogger)(nil)

type FileLogger struct {
	file     *os.File
	mu       sync.Mutex
	config   *Config
	fileOpts FileOptions
}

type FileOptions struct {
	FilePath string `json:"file_path"`
}

// NewFileLogger creates a new append-only JSONL audit logger. Appends are
// serialized behind an internal mutex so the log is safe under concurrent
// callers.
func NewFileLogger(config *Config) (*FileLogger, error) {
	// Parse file-specific options
	var fileOpts FileOptions
	if err := parseOptions(config.Options, &fileOpts); err != nil {
		return nil, fmt.Errorf("invalid file logger options: %w", err)
	}

	if fileOpts.FilePath == "" {
		return nil, fmt.Errorf("file_path is required for file logger")
	}

	// Create directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(fileOpts.FilePath), 0700); err != nil {
		return nil, fmt.Errorf("failed to create audit log directory: %w", err)
	}

	// Open file for appending
	file, err := os.OpenFile(fileOpts.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log file: %w", err)
	}

	return &FileLogger{
		file:     file,
		config:   config,
		fileOpts: fileOpts,
	}, nil
}

// Log implements the Logger interface
func (fl *FileLogger) Log(event Event) error {
	return fl.writeEvent(prepare(event))
}

// writeEvent appends one sanitized event to the log file in JSONL format
func (fl *FileLogger) writeEvent(event Event) error {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	// ensures the file is open in case it has been closed by a previous
	// pipeline that was using this logger
	if err := fl.ensureFileOpen(); err != nil {
		return err
	}

	eventJSON, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to serialize audit event: %w", err)
	}

	if _, err = fl.file.WriteString(string(eventJSON) + "\n"); err != nil {
		return fmt.Errorf("failed to write audit event: %w", err)
	}

	// Flush to ensure it's written
	if err = fl.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync audit log: %w", err)
	}

	return nil
}

// Query performs a forward scan of the log, skipping malformed lines rather
// than aborting, and applies the optional filters. Results are returned
// newest first.
func (fl *FileLogger) Query(options QueryOptions) (QueryResult, error) {
	fl.mu.Lock()
	path := fl.fileOpts.FilePath
	fl.mu.Unlock()

	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return QueryResult{Events: []Event{}}, nil
		}
		return QueryResult{}, fmt.Errorf("failed to open audit log file: %w", err)
	}
	defer file.Close()

	var matched []Event
	totalCount := 0

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		totalCount++

		var event Event
		if err = json.Unmarshal([]byte(line), &event); err != nil {
			// Skip malformed lines, keep scanning
			continue
		}

		if matchesFilter(event, options) {
			matched = append(matched, event)
		}
	}

	if err = scanner.Err(); err != nil {
		return QueryResult{}, fmt.Errorf("error reading audit log file: %w", err)
	}

	// Sort by timestamp (newest first)
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].Timestamp.After(matched[j].Timestamp)
	})

	// Apply offset and limit
	start := options.Offset
	if start > len(matched) {
		start = len(matched)
	}

	end := len(matched)
	if options.Limit > 0 {
		end = start + options.Limit
		if end > len(matched) {
			end = len(matched)
		}
	}

	return QueryResult{
		Events:     matched[start:end],
		TotalCount: totalCount,
		Filtered:   len(matched),
		HasMore:    end < len(matched),
	}, nil
}

// matchesFilter checks if an event matches the query filters
func matchesFilter(event Event, options QueryOptions) bool {
	// Time range filter
	if options.Since != nil && event.Timestamp.Before(*options.Since) {
		return false
	}
	if options.Until != nil && event.Timestamp.After(*options.Until) {
		return false
	}

	// User filter
	if options.UserID != "" && event.UserID != options.UserID {
		return false
	}

	// Event type filter
	if options.EventType != "" && event.EventType != options.EventType {
		return false
	}

	// Success filter
	if options.Success != nil && event.Success != *options.Success {
		return false
	}

	return true
}

// Close implements the Logger interface
func (fl *FileLogger) Close() error {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	if fl.file != nil {
		err := fl.file.Close()
		fl.file = nil
		return err
	}
	return nil
}

func (fl *FileLogger) ensureFileOpen() error {
	if fl.file == nil {
		var err error
		fl.file, err = os.OpenFile(fl.fileOpts.FilePath,
			os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err != nil {
			return fmt.Errorf("failed to reopen audit log: %w", err)
		}
	}
	return nil
}

// generateEventID creates a unique event ID
func generateEventID() string {
	return fmt.Sprintf("%d_%d", time.Now().UnixNano(), os.Getpid())
}
