package audit

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newTestFileLogger(t *testing.T) (*FileLogger, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "audit.log")
	logger, err := NewFileLogger(&Config{
		Enabled: true,
		Type:    FileAuditType,
		Options: map[string]interface{}{"file_path": path},
	})
	if err != nil {
		t.Fatalf("Failed to create file logger: %v", err)
	}
	t.Cleanup(func() { logger.Close() })

	return logger, path
}

func TestFileLogger(t *testing.T) {
	t.Run("AppendsJSONL", func(t *testing.T) {
		logger, path := newTestFileLogger(t)

		for i := 0; i < 3; i++ {
			err := logger.Log(Event{
				EventType: EventDataCreate,
				Resource:  "backup-a",
				Action:    "create_backup",
				Success:   true,
			})
			if err != nil {
				t.Fatalf("Failed to log event: %v", err)
			}
		}

		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("Failed to read log: %v", err)
		}
		lines := strings.Split(strings.TrimSpace(string(data)), "\n")
		if len(lines) != 3 {
			t.Errorf("Expected 3 JSONL lines, got %d", len(lines))
		}
	})

	t.Run("FillsDefaults", func(t *testing.T) {
		logger, _ := newTestFileLogger(t)

		if err := logger.Log(Event{EventType: EventDataRead, Success: true}); err != nil {
			t.Fatalf("Failed to log event: %v", err)
		}

		result, err := logger.Query(QueryOptions{})
		if err != nil {
			t.Fatalf("Failed to query: %v", err)
		}
		if len(result.Events) != 1 {
			t.Fatalf("Expected 1 event, got %d", len(result.Events))
		}

		event := result.Events[0]
		if event.ID == "" {
			t.Error("Event ID not generated")
		}
		if event.Timestamp.IsZero() {
			t.Error("Event timestamp not filled")
		}
		if event.UserID != "system" {
			t.Errorf("Default user = %q, want system", event.UserID)
		}
	})

	t.Run("SanitizesOnWrite", func(t *testing.T) {
		logger, path := newTestFileLogger(t)

		err := logger.Log(Event{
			EventType: EventSecurityViolation,
			Success:   false,
			Details: map[string]interface{}{
				"password": "super-secret-value",
				"reason":   "bad credentials",
			},
		})
		if err != nil {
			t.Fatalf("Failed to log event: %v", err)
		}

		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("Failed to read log: %v", err)
		}
		if strings.Contains(string(data), "super-secret-value") {
			t.Error("Sensitive value persisted in the audit log")
		}
		if !strings.Contains(string(data), RedactionMarker) {
			t.Error("Redaction marker missing from the audit log")
		}
	})

	t.Run("QuerySkipsMalformedLines", func(t *testing.T) {
		logger, path := newTestFileLogger(t)

		if err := logger.Log(Event{EventType: EventDataCreate, Success: true}); err != nil {
			t.Fatalf("Failed to log event: %v", err)
		}

		// Simulate a torn write in the middle of the log
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0600)
		if err != nil {
			t.Fatalf("Failed to open log: %v", err)
		}
		f.WriteString("{\"id\": \"truncated\n")
		f.Close()

		if err = logger.Log(Event{EventType: EventDataDelete, Success: true}); err != nil {
			t.Fatalf("Failed to log after torn write: %v", err)
		}

		result, err := logger.Query(QueryOptions{})
		if err != nil {
			t.Fatalf("Query failed on a log with malformed lines: %v", err)
		}
		if len(result.Events) != 2 {
			t.Errorf("Expected 2 parseable events, got %d", len(result.Events))
		}
		if result.TotalCount != 3 {
			t.Errorf("Expected 3 total lines counted, got %d", result.TotalCount)
		}
	})

	t.Run("QueryFilters", func(t *testing.T) {
		logger, _ := newTestFileLogger(t)

		base := time.Now().UTC().Add(-time.Hour)
		events := []Event{
			{EventType: EventDataCreate, UserID: "alice", Success: true, Timestamp: base},
			{EventType: EventDataDelete, UserID: "bob", Success: false, Timestamp: base.Add(10 * time.Minute)},
			{EventType: EventDataCreate, UserID: "alice", Success: false, Timestamp: base.Add(20 * time.Minute)},
		}
		for _, e := range events {
			if err := logger.Log(e); err != nil {
				t.Fatalf("Failed to log event: %v", err)
			}
		}

		byType, err := logger.Query(QueryOptions{EventType: EventDataCreate})
		if err != nil {
			t.Fatalf("Query failed: %v", err)
		}
		if len(byType.Events) != 2 {
			t.Errorf("Type filter matched %d events, want 2", len(byType.Events))
		}

		byUser, err := logger.Query(QueryOptions{UserID: "bob"})
		if err != nil {
			t.Fatalf("Query failed: %v", err)
		}
		if len(byUser.Events) != 1 {
			t.Errorf("User filter matched %d events, want 1", len(byUser.Events))
		}

		failed := false
		byOutcome, err := logger.Query(QueryOptions{Success: &failed})
		if err != nil {
			t.Fatalf("Query failed: %v", err)
		}
		if len(byOutcome.Events) != 2 {
			t.Errorf("Outcome filter matched %d events, want 2", len(byOutcome.Events))
		}

		since := base.Add(5 * time.Minute)
		byTime, err := logger.Query(QueryOptions{Since: &since})
		if err != nil {
			t.Fatalf("Query failed: %v", err)
		}
		if len(byTime.Events) != 2 {
			t.Errorf("Time filter matched %d events, want 2", len(byTime.Events))
		}
	})

	t.Run("QueryNewestFirstWithLimit", func(t *testing.T) {
		logger, _ := newTestFileLogger(t)

		base := time.Now().UTC().Add(-time.Hour)
		for i := 0; i < 5; i++ {
			err := logger.Log(Event{
				EventType: EventDataCreate,
				Resource:  string(rune('a' + i)),
				Success:   true,
				Timestamp: base.Add(time.Duration(i) * time.Minute),
			})
			if err != nil {
				t.Fatalf("Failed to log event: %v", err)
			}
		}

		result, err := logger.Query(QueryOptions{Limit: 2})
		if err != nil {
			t.Fatalf("Query failed: %v", err)
		}
		if len(result.Events) != 2 {
			t.Fatalf("Expected 2 events, got %d", len(result.Events))
		}
		if result.Events[0].Resource != "e" || result.Events[1].Resource != "d" {
			t.Errorf("Events not newest first: %s, %s", result.Events[0].Resource, result.Events[1].Resource)
		}
		if !result.HasMore {
			t.Error("HasMore should be set when the limit cuts results")
		}
	})

	t.Run("QueryMissingFileIsEmpty", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "never-written.log")
		logger := &FileLogger{
			config:   &Config{Enabled: true},
			fileOpts: FileOptions{FilePath: path},
		}

		result, err := logger.Query(QueryOptions{})
		if err != nil {
			t.Fatalf("Query of a missing log failed: %v", err)
		}
		if len(result.Events) != 0 {
			t.Errorf("Expected no events, got %d", len(result.Events))
		}
	})
}

func TestNoOpLogger(t *testing.T) {
	logger, err := NewLogger(nil)
	if err != nil {
		t.Fatalf("Nil config should yield the no-op logger: %v", err)
	}
	if err = logger.Log(Event{EventType: EventDataCreate}); err != nil {
		t.Errorf("No-op Log returned an error: %v", err)
	}
	if err = logger.Close(); err != nil {
		t.Errorf("No-op Close returned an error: %v", err)
	}
}
