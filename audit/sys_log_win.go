//go:build windows

package audit

import "fmt"

// NewSyslogLogger is unavailable on Windows; the file logger is the
// persistent backend there.
func NewSyslogLogger(config *Config) (Logger, error) {
	return nil, fmt.Errorf("syslog audit logging is not supported on this platform")
}
