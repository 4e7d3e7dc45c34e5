package vento

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestReporterAll(t *testing.T) {
	tests := []struct {
		name string
		fn   func(*testing.T)
	}{
		{"ReportOpaqueMessage", testReportOpaqueMessage},
		{"DiagnosticsRecorded", testDiagnosticsRecorded},
		{"UnwritableDiagnosticsStillReports", testUnwritableDiagnosticsStillReports},
		{"SanitizeMessage", testSanitizeMessage},
	}

	for _, tt := range tests {
		t.Run(tt.name, tt.fn)
	}
}

func testReportOpaqueMessage(t *testing.T) {
	reporter := NewReporter(filepath.Join(t.TempDir(), "diagnostics.log"))

	internal := E("backup.restore", KindIntegrity,
		errors.New("checksum mismatch at /var/lib/vento/backups/vento_backup_x.enc"))
	report := reporter.Report(internal)

	if report.CorrelationID == "" {
		t.Fatal("Report has no correlation identifier")
	}
	if report.Kind != KindIntegrity {
		t.Errorf("Report kind = %s, want integrity", report.Kind)
	}
	if !strings.Contains(report.UserMessage, report.CorrelationID) {
		t.Error("User message does not carry the correlation identifier")
	}
	if !strings.Contains(report.UserMessage, "Código de error") {
		t.Error("User message missing the error code label")
	}

	// The internal detail must never leak into the user message
	for _, leak := range []string{"checksum", "/var/lib", ".enc", "backup.restore"} {
		if strings.Contains(report.UserMessage, leak) {
			t.Errorf("User message leaks internal detail %q: %s", leak, report.UserMessage)
		}
	}
}

func testDiagnosticsRecorded(t *testing.T) {
	path := filepath.Join(t.TempDir(), "diagnostics.log")
	reporter := NewReporter(path)

	report := reporter.Report(Errorf("backup.create", KindStorage, "disk full"))

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Diagnostics log not written: %v", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		t.Fatal("Diagnostics log is empty")
	}

	var record map[string]interface{}
	if err = json.Unmarshal(scanner.Bytes(), &record); err != nil {
		t.Fatalf("Diagnostics line is not valid JSON: %v", err)
	}
	if record["correlation_id"] != report.CorrelationID {
		t.Errorf("Diagnostics correlation id %v does not match report %s", record["correlation_id"], report.CorrelationID)
	}
	if record["kind"] != "storage" {
		t.Errorf("Diagnostics kind = %v, want storage", record["kind"])
	}
	if record["op"] != "backup.create" {
		t.Errorf("Diagnostics op = %v, want backup.create", record["op"])
	}
	if !strings.Contains(record["detail"].(string), "disk full") {
		t.Error("Diagnostics detail lost the underlying cause")
	}
}

func testUnwritableDiagnosticsStillReports(t *testing.T) {
	// A path under a file cannot be created as a directory
	blocker := filepath.Join(t.TempDir(), "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0600); err != nil {
		t.Fatalf("Failed to create blocker file: %v", err)
	}
	reporter := NewReporter(filepath.Join(blocker, "nested", "diagnostics.log"))

	report := reporter.Report(Errorf("backup.create", KindStorage, "boom"))
	if report.CorrelationID == "" || report.UserMessage == "" {
		t.Error("Reporting failed when the diagnostics log was unwritable")
	}
}

func testSanitizeMessage(t *testing.T) {
	long := strings.Repeat("a", 500)
	sanitized := SanitizeMessage(long)
	if len(sanitized) != maxUserMessageLength+3 {
		t.Errorf("Truncated message length = %d, want %d", len(sanitized), maxUserMessageLength+3)
	}
	if !strings.HasSuffix(sanitized, "...") {
		t.Error("Truncated message missing ellipsis")
	}

	if got := SanitizeMessage("line one\nline two\r\n"); strings.ContainsAny(got, "\n\r") {
		t.Errorf("Sanitized message still contains newlines: %q", got)
	}
}
