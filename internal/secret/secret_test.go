package secret_test

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/TonyMarkham/opencode-tauri/internal/secret"
)

func TestRevealRoundTrips(t *testing.T) {
	r := secret.New("sk-ant-REDACTED")
	if r.Reveal() != "sk-ant-REDACTED" {
		t.Fatalf("Reveal did not return the original value")
	}
	if r.Len() != len("sk-ant-REDACTED") {
		t.Fatalf("unexpected Len")
	}
}

func TestFormattingNeverLeaksSubstring(t *testing.T) {
	raw := "plain-credential-value-42"
	r := secret.New(raw)

	outputs := []string{
		r.String(),
		fmt.Sprintf("%v", r),
		fmt.Sprintf("%s", r),
		fmt.Sprintf("%#v", r),
	}
	for _, out := range outputs {
		for i := 0; i+4 <= len(raw); i++ {
			if strings.Contains(out, raw[i:i+4]) {
				t.Fatalf("formatted output %q leaked substring of secret", out)
			}
		}
		if !strings.Contains(out, "[REDACTED]") {
			t.Fatalf("expected redacted placeholder in output %q", out)
		}
	}
}

func TestMarshalJSONFails(t *testing.T) {
	r := secret.New("sk-ant-REDACTED")
	if _, err := json.Marshal(r); err == nil {
		t.Fatalf("expected json.Marshal to fail for a redacted secret")
	}
}

func TestUnmarshalJSONWraps(t *testing.T) {
	var r secret.Redacted
	if err := json.Unmarshal([]byte(`"sk-test-value"`), &r); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Reveal() != "sk-test-value" {
		t.Fatalf("unmarshal did not preserve value")
	}
}

func TestZeroClearsStorage(t *testing.T) {
	r := secret.New("sk-ant-REDACTED")
	r.Zero()
	if !r.IsEmpty() {
		t.Fatalf("expected Zero to empty the secret")
	}
	if r.Reveal() != "" {
		t.Fatalf("expected Reveal to return empty string after Zero")
	}
}
