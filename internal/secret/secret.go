// Package secret provides Redacted, an opaque wrapper for credential
// strings such as API keys. Its Debug/Display/serialize paths never
// reveal the wrapped value; the only way to the raw bytes is the
// explicit Reveal accessor. This makes the safe behaviour the default,
// since keys otherwise leak through logs, panics, and structured-log
// serialization without anyone intending it.
package secret

import (
	"encoding/json"

	"github.com/TonyMarkham/opencode-tauri/internal/errs"
)

const redactedPlaceholder = "[REDACTED]"

// Redacted wraps a secret string. The zero value is an empty secret.
type Redacted struct {
	value []byte
}

// New wraps s in a Redacted secret.
func New(s string) Redacted {
	return Redacted{value: []byte(s)}
}

// Reveal is the only path back to the raw value. Callers should hold
// onto the returned string no longer than necessary.
func (r Redacted) Reveal() string {
	return string(r.value)
}

// Len reports the byte length of the wrapped value without exposing it.
func (r Redacted) Len() int { return len(r.value) }

// IsEmpty reports whether the wrapped value is empty.
func (r Redacted) IsEmpty() bool { return len(r.value) == 0 }

// String implements fmt.Stringer. It deliberately never returns the
// wrapped value.
func (r Redacted) String() string { return redactedPlaceholder }

// GoString implements fmt.GoStringer so %#v formatting is also redacted.
func (r Redacted) GoString() string { return redactedPlaceholder }

// MarshalJSON fails loudly rather than silently redacting, so an
// accidental inclusion of a Redacted value in a structured payload is a
// build-breaking or request-failing error, not a quiet leak risk nor a
// quiet no-op.
func (r Redacted) MarshalJSON() ([]byte, error) {
	return nil, errs.New(errs.FamilyValidation, "SecretSerialization",
		"refusing to serialize a redacted secret")
}

// UnmarshalJSON accepts a plain JSON string and wraps it, so Redacted
// fields can still be read from configuration or wire payloads that
// legitimately carry a key value inbound.
func (r *Redacted) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return errs.Wrap(errs.FamilyValidation, "SecretSerialization",
			"failed to decode secret", err)
	}
	r.value = []byte(s)
	return nil
}

// Zero overwrites the backing storage in place. Go's garbage collector
// does not guarantee this happens on drop the way it would in a
// language with deterministic destructors, so callers that hold a
// Redacted past its useful life should call Zero explicitly (e.g. in a
// defer) rather than relying on finalizers.
func (r *Redacted) Zero() {
	for i := range r.value {
		r.value[i] = 0
	}
	r.value = nil
}
