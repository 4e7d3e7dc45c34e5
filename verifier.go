package vento

import (
	"database/sql"
	"fmt"
	"os"

	_ "github.com/mattn/go-sqlite3"

	"github.com/mowgliph/vento/internal/debug"
)

// requiredTables is the minimal structural contract a candidate store file
// must satisfy before it can replace the live store.
var requiredTables = []string{"products", "sales", "exchange_rates"}

// Verifier checks the structural integrity of a candidate store file before
// it is trusted by a restore. It needs no knowledge of the business schema
// beyond the required-tables contract.
type Verifier struct {
	tables []string
}

// NewVerifier creates a verifier with the default required-tables contract.
func NewVerifier() *Verifier {
	return &Verifier{tables: requiredTables}
}

// NewVerifierWithTables creates a verifier for a custom structural contract.
// Used by tests and by callers whose store schema differs from the default.
func NewVerifierWithTables(tables []string) *Verifier {
	return &Verifier{tables: tables}
}

// Verify reports whether candidatePath can be opened as a structured store,
// contains every required table, and passes the store's own page-level
// integrity scan. Structural inconsistencies yield (false, nil) rather than
// an error: callers treat a false verdict identically to an integrity
// failure and abort the restore before the live swap. Only environmental
// failures (candidate missing, cannot stat) surface as errors.
func (v *Verifier) Verify(candidatePath string) (bool, error) {
	if candidatePath == "" {
		return false, Errorf("verify", KindValidation, "candidate path cannot be empty")
	}

	if _, err := os.Stat(candidatePath); err != nil {
		if os.IsNotExist(err) {
			return false, E("verify", KindNotFound, fmt.Errorf("candidate store not found: %w", err))
		}
		return false, E("verify", KindStorage, fmt.Errorf("failed to stat candidate store: %w", err))
	}

	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?mode=ro", candidatePath))
	if err != nil {
		debug.Print("verifier: failed to open candidate: %v", err)
		return false, nil
	}
	defer db.Close()

	// A file that is not a store at all fails here
	if err = db.Ping(); err != nil {
		debug.Print("verifier: candidate is not a readable store: %v", err)
		return false, nil
	}

	ok, err := v.hasRequiredTables(db)
	if err != nil || !ok {
		debug.Print("verifier: required table check failed (ok=%t err=%v)", ok, err)
		return false, nil
	}

	return v.integrityCheck(db), nil
}

func (v *Verifier) hasRequiredTables(db *sql.DB) (bool, error) {
	rows, err := db.Query(`SELECT name FROM sqlite_master WHERE type = 'table'`)
	if err != nil {
		return false, err
	}
	defer rows.Close()

	present := make(map[string]bool)
	for rows.Next() {
		var name string
		if err = rows.Scan(&name); err != nil {
			return false, err
		}
		present[name] = true
	}
	if err = rows.Err(); err != nil {
		return false, err
	}

	for _, table := range v.tables {
		if !present[table] {
			return false, nil
		}
	}
	return true, nil
}

// integrityCheck runs the store's page-level consistency scan. Anything other
// than a single "ok" row is a structural failure.
func (v *Verifier) integrityCheck(db *sql.DB) bool {
	var result string
	if err := db.QueryRow(`PRAGMA integrity_check`).Scan(&result); err != nil {
		debug.Print("verifier: integrity_check query failed: %v", err)
		return false
	}
	return result == "ok"
}
