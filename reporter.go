package vento

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mowgliph/vento/internal/misc"
)

const maxUserMessageLength = 200

// userMessages maps failure kinds to the end-user messages shown by the
// application layer. Messages carry no paths, schema names, or internals;
// the diagnostic detail lives only in the diagnostics log, linked by the
// correlation identifier.
var userMessages = map[Kind]string{
	KindValidation:    "Los datos proporcionados no son válidos.",
	KindKeyDerivation: "No se pudo preparar la clave de protección de los respaldos.",
	KindCrypto:        "Ocurrió un error al proteger los datos del respaldo.",
	KindIntegrity:     "El respaldo no superó la verificación de integridad y no fue aplicado.",
	KindStorage:       "Ocurrió un error de almacenamiento al procesar el respaldo.",
	KindNotFound:      "No se encontró el respaldo solicitado.",
	KindBusy:          "Otra operación de respaldo está en curso. Inténtelo de nuevo en unos momentos.",
	KindUnknown:       "Ocurrió un error inesperado.",
}

// Report is the two-sided record produced for every failure: an opaque
// message fit for end users and a correlation identifier that links it to the
// full diagnostic record.
type Report struct {
	CorrelationID string
	Kind          Kind
	UserMessage   string
}

// diagnosticRecord is the JSONL line appended to the diagnostics log.
type diagnosticRecord struct {
	CorrelationID string    `json:"correlation_id"`
	Timestamp     time.Time `json:"timestamp"`
	Op            string    `json:"op,omitempty"`
	Kind          string    `json:"kind"`
	Detail        string    `json:"detail"`
}

// Reporter converts internal failures into user-safe reports. The full error
// chain goes to the diagnostics log only; callers show the user message and
// the correlation identifier, never the raw error.
type Reporter struct {
	mu   sync.Mutex
	path string
}

// NewReporter creates a reporter appending diagnostic records to path.
func NewReporter(path string) *Reporter {
	return &Reporter{path: path}
}

// Report assigns the failure a correlation identifier, appends the full
// diagnostic record, and returns the opaque user-facing report. Reporting
// never fails: if the diagnostics log is unwritable the record is dropped and
// the user report is still produced.
func (r *Reporter) Report(err error) Report {
	id := uuid.New().String()
	kind := KindOf(err)

	record := diagnosticRecord{
		CorrelationID: id,
		Timestamp:     time.Now().UTC(),
		Kind:          kind.String(),
		Detail:        fmt.Sprintf("%v", err),
	}
	var e *Error
	if errors.As(err, &e) {
		record.Op = e.Op
	}

	r.append(record)

	return Report{
		CorrelationID: id,
		Kind:          kind,
		UserMessage:   r.UserMessage(kind, id),
	}
}

// UserMessage builds the message shown to the end user for a failure of the
// given kind, suffixed with the correlation identifier for support lookups.
func (r *Reporter) UserMessage(kind Kind, correlationID string) string {
	msg, ok := userMessages[kind]
	if !ok {
		msg = userMessages[KindUnknown]
	}
	return SanitizeMessage(fmt.Sprintf("%s Código de error: %s", msg, correlationID))
}

// SanitizeMessage bounds a user-facing message and strips newlines so a
// single report cannot spill over UI boundaries or log line framing.
func SanitizeMessage(msg string) string {
	sanitized := make([]rune, 0, len(msg))
	for _, c := range msg {
		if c == '\n' || c == '\r' {
			c = ' '
		}
		sanitized = append(sanitized, c)
	}
	if len(sanitized) > maxUserMessageLength {
		return string(sanitized[:maxUserMessageLength]) + "..."
	}
	return string(sanitized)
}

func (r *Reporter) append(record diagnosticRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(r.path), misc.DirPermissions); err != nil {
		return
	}

	f, err := os.OpenFile(r.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, misc.FilePermissions)
	if err != nil {
		return
	}
	defer f.Close()

	line, err := json.Marshal(record)
	if err != nil {
		return
	}
	f.Write(append(line, '\n'))
}
