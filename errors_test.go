package vento

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorTaxonomy(t *testing.T) {
	t.Run("KindOf", func(t *testing.T) {
		err := E("backup.create", KindStorage, errors.New("disk full"))
		if KindOf(err) != KindStorage {
			t.Errorf("KindOf = %s, want storage", KindOf(err))
		}

		wrapped := fmt.Errorf("outer context: %w", err)
		if KindOf(wrapped) != KindStorage {
			t.Errorf("KindOf through wrapping = %s, want storage", KindOf(wrapped))
		}

		if KindOf(errors.New("plain")) != KindUnknown {
			t.Error("Plain error should report unknown kind")
		}
	})

	t.Run("IsKind", func(t *testing.T) {
		err := Errorf("backup.cleanup", KindValidation, "keep count must be at least 1")
		if !IsKind(err, KindValidation) {
			t.Error("IsKind failed to match validation")
		}
		if IsKind(err, KindBusy) {
			t.Error("IsKind matched the wrong kind")
		}
	})

	t.Run("ErrorsIsByKind", func(t *testing.T) {
		err := E("backup.restore", KindIntegrity, errIntegrity)
		if !errors.Is(err, &Error{Kind: KindIntegrity}) {
			t.Error("errors.Is failed to match by kind")
		}
		if errors.Is(err, &Error{Kind: KindIntegrity, Op: "backup.create"}) {
			t.Error("errors.Is matched despite differing op")
		}
	})

	t.Run("Unwrap", func(t *testing.T) {
		cause := errors.New("root cause")
		err := E("keys.derive", KindKeyDerivation, cause)
		if !errors.Is(err, cause) {
			t.Error("Wrapped cause not reachable through Unwrap")
		}
	})

	t.Run("KindStrings", func(t *testing.T) {
		cases := map[Kind]string{
			KindValidation:    "validation",
			KindKeyDerivation: "key_derivation",
			KindCrypto:        "crypto",
			KindIntegrity:     "integrity",
			KindStorage:       "storage",
			KindNotFound:      "not_found",
			KindBusy:          "busy",
			KindUnknown:       "unknown",
		}
		for kind, want := range cases {
			if kind.String() != want {
				t.Errorf("Kind(%d).String() = %s, want %s", kind, kind.String(), want)
			}
		}
	})
}
