package audit

import (
	"encoding/json"
	"fmt"
	"time"
)

// Config defines audit trail configuration
type Config struct {
	Enabled  bool                   `json:"enabled"`
	Type     ConfigType             `json:"type"`    // "file", "syslog"
	Options  map[string]interface{} `json:"options"` // Provider-specific options
	LogLevel string                 `json:"log_level,omitempty"`
}

type ConfigType string

const (
	FileAuditType   ConfigType = "file"
	SyslogAuditType ConfigType = "syslog"
	NoOp            ConfigType = ""
)

// Event types recorded by the backup core.
const (
	EventDataCreate        = "data_create"
	EventDataRead          = "data_read"
	EventDataUpdate        = "data_update"
	EventDataDelete        = "data_delete"
	EventDataExport        = "data_export"
	EventSecurityViolation = "security_violation"
	EventSystemError       = "system_error"
	EventConfigChange      = "config_change"
)

// Logger interface for pluggable audit implementations
type Logger interface {
	Log(event Event) error
	Query(options QueryOptions) (QueryResult, error)
	Close() error
}

// Event represents one append-only audit record. Details are sanitized before
// persistence: sensitive keys are redacted and free-text values are scrubbed
// of paths and injection metacharacters.
type Event struct {
	ID        string                 `json:"id"`
	Timestamp time.Time              `json:"timestamp"`
	EventType string                 `json:"event_type"`
	UserID    string                 `json:"user_id"`
	Resource  string                 `json:"resource,omitempty"`
	Action    string                 `json:"action,omitempty"`
	Success   bool                   `json:"success"`
	Origin    string                 `json:"origin,omitempty"` // hostname, IP, or "cli"
	Details   map[string]interface{} `json:"details,omitempty"`
}

// QueryOptions for filtering audit records
type QueryOptions struct {
	Since     *time.Time
	Until     *time.Time
	UserID    string
	EventType string
	Success   *bool // nil = all, true = only success, false = only failures
	Limit     int
	Offset    int
}

// QueryResult contains the results of an audit query
type QueryResult struct {
	Events     []Event `json:"events"`
	TotalCount int     `json:"total_count"`
	Filtered   int     `json:"filtered"`
	HasMore    bool    `json:"has_more"`
}

// NewLogger creates an appropriate logger based on configuration
func NewLogger(config *Config) (Logger, error) {
	if config == nil || !config.Enabled {
		return &NoOpLogger{}, nil
	}

	switch config.Type {
	case FileAuditType:
		return NewFileLogger(config)
	case SyslogAuditType:
		return NewSyslogLogger(config)
	case NoOp:
		return &NoOpLogger{}, nil
	default:
		return nil, fmt.Errorf("unknown audit provider: %s", config.Type)
	}
}

// prepare fills event defaults and sanitizes it for persistence. Every logger
// implementation runs it before writing.
func prepare(event Event) Event {
	if event.ID == "" {
		event.ID = generateEventID()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.UserID == "" {
		event.UserID = "system"
	}
	event.Details = SanitizeDetails(event.Details)
	event.Resource = SanitizeString(event.Resource)
	event.Action = SanitizeString(event.Action)
	return event
}

// parseOptions converts map[string]interface{} to specific options struct
func parseOptions(options map[string]interface{}, target interface{}) error {
	if len(options) == 0 {
		return nil
	}

	// Convert to JSON and back to parse into struct
	jsonData, err := json.Marshal(options)
	if err != nil {
		return fmt.Errorf("failed to marshal options: %w", err)
	}

	if err = json.Unmarshal(jsonData, target); err != nil {
		return fmt.Errorf("failed to unmarshal options: %w", err)
	}

	return nil
}
