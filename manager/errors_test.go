package manager

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrorRendering(t *testing.T) {
	err := &Error{Code: CodeConfigFailed, Message: "cannot write config"}
	if got := err.Error(); got != "CONFIG_FAILED: cannot write config" {
		t.Fatalf("Error() = %q", got)
	}

	bare := &Error{Code: CodeTimeout}
	if got := bare.Error(); got != CodeTimeout {
		t.Fatalf("Error() = %q, want bare code", got)
	}
}

func TestErrorUnwrapsCause(t *testing.T) {
	cause := errors.New("disk full")
	err := newError(CodeConfigFailed, "write config", cause)

	if !errors.Is(err, cause) {
		t.Fatal("errors.Is should reach the wrapped cause")
	}
	var mErr *Error
	if !errors.As(fmt.Errorf("configure: %w", err), &mErr) {
		t.Fatal("errors.As should find *Error through wrapping")
	}
	if mErr.Code != CodeConfigFailed {
		t.Fatalf("Code = %q, want %s", mErr.Code, CodeConfigFailed)
	}
}

func TestCodeOf(t *testing.T) {
	if got := CodeOf(errorf(CodeValidation, "bad input")); got != CodeValidation {
		t.Fatalf("CodeOf() = %q, want %s", got, CodeValidation)
	}
	if got := CodeOf(errors.New("plain")); got != "" {
		t.Fatalf("CodeOf(plain) = %q, want empty", got)
	}
	if got := CodeOf(nil); got != "" {
		t.Fatalf("CodeOf(nil) = %q, want empty", got)
	}

	if IsCode(nil, CodeValidation) {
		t.Fatal("IsCode(nil) = true, want false")
	}
	if !IsCode(errorf(CodeNotFound, "missing"), CodeNotFound) {
		t.Fatal("IsCode() = false, want true")
	}
}

func TestRedactRecordMasksAPIKey(t *testing.T) {
	rec := ServerRecord{
		Name:      "dash",
		Transport: TransportSSE,
		APIKey:    "secret-key-value",
	}

	masked := RedactRecord(rec)
	if masked.APIKey != MaskedSecretValue {
		t.Fatalf("APIKey = %q, want %s", masked.APIKey, MaskedSecretValue)
	}
	if rec.APIKey != "secret-key-value" {
		t.Fatal("RedactRecord must not mutate its input")
	}

	plain := RedactRecord(ServerRecord{Name: "weather"})
	if plain.APIKey != "" {
		t.Fatalf("APIKey = %q, want empty preserved", plain.APIKey)
	}
}

func TestRedactRecordsMasksEvery(t *testing.T) {
	recs := []ServerRecord{
		{Name: "a", APIKey: "one"},
		{Name: "b"},
		{Name: "c", APIKey: "three"},
	}

	masked := RedactRecords(recs)
	if len(masked) != 3 {
		t.Fatalf("len = %d, want 3", len(masked))
	}
	for _, rec := range masked {
		if rec.APIKey != "" && !strings.Contains(rec.APIKey, "*") {
			t.Fatalf("record %s leaked api key %q", rec.Name, rec.APIKey)
		}
	}
	if masked[0].APIKey != MaskedSecretValue || masked[2].APIKey != MaskedSecretValue {
		t.Fatalf("masked = %v", masked)
	}
}
