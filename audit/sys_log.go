//go:build !windows

package audit

import (
	"encoding/json"
	"fmt"
	"log/syslog"
)

// Ensure SyslogLogger implements Logger interface
var _ Logger = (*SyslogLogger)(nil)

type SyslogOptions struct {
	Network  string `json:"network"`  // "tcp", "udp", ""
	Address  string `json:"address"`  // "localhost:514"
	Priority int    `json:"priority"` // syslog.LOG_INFO, etc.
	Tag      string `json:"tag"`
}

// SyslogLogger implements Logger for syslog
type SyslogLogger struct {
	config     *Config
	syslogOpts SyslogOptions
	writer     *syslog.Writer
}

// NewSyslogLogger creates a new syslog audit logger with options
func NewSyslogLogger(config *Config) (*SyslogLogger, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	var syslogOpts SyslogOptions
	if err := parseOptions(config.Options, &syslogOpts); err != nil {
		return nil, fmt.Errorf("invalid syslog logger options: %w", err)
	}

	// Set defaults for syslog options if not provided
	if syslogOpts.Priority == 0 {
		switch config.LogLevel {
		case "error":
			syslogOpts.Priority = int(syslog.LOG_ERR | syslog.LOG_USER)
		case "warn":
			syslogOpts.Priority = int(syslog.LOG_WARNING | syslog.LOG_USER)
		default:
			syslogOpts.Priority = int(syslog.LOG_INFO | syslog.LOG_USER)
		}
	}

	if syslogOpts.Tag == "" {
		syslogOpts.Tag = "vento-audit"
	}

	// Create syslog writer based on network configuration
	var writer *syslog.Writer
	var err error

	if syslogOpts.Network != "" && syslogOpts.Address != "" {
		// Remote syslog
		writer, err = syslog.Dial(syslogOpts.Network, syslogOpts.Address,
			syslog.Priority(syslogOpts.Priority), syslogOpts.Tag)
	} else {
		// Local syslog
		writer, err = syslog.New(syslog.Priority(syslogOpts.Priority), syslogOpts.Tag)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to create syslog writer: %w", err)
	}

	return &SyslogLogger{
		config:     config,
		syslogOpts: syslogOpts,
		writer:     writer,
	}, nil
}

func (s *SyslogLogger) Log(event Event) error {
	if !s.config.Enabled {
		return nil
	}
	return s.writeEvent(prepare(event))
}

func (s *SyslogLogger) Close() error {
	if s.writer != nil {
		err := s.writer.Close()
		s.writer = nil
		return err
	}
	return nil
}

// Query implementation for syslog - syslog is write-only, so querying
// historical data requires a storing syslog server or a second backend.
func (s *SyslogLogger) Query(options QueryOptions) (QueryResult, error) {
	return QueryResult{
		Events: []Event{},
	}, fmt.Errorf("syslog logger does not support querying historical data")
}

func (s *SyslogLogger) writeEvent(event Event) error {
	if s.writer == nil {
		return fmt.Errorf("syslog writer not initialized")
	}

	eventJSON, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal audit event: %w", err)
	}

	// Prefix for easy filtering on the syslog server
	logMessage := fmt.Sprintf("VENTO_AUDIT: %s", string(eventJSON))

	switch {
	case !event.Success && event.EventType == EventSecurityViolation:
		return s.writer.Err(logMessage)
	case !event.Success:
		return s.writer.Warning(logMessage)
	default:
		return s.writer.Info(logMessage)
	}
}
