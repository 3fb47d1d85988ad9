package authprobe_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/TonyMarkham/opencode-tauri/internal/authprobe"
)

func writeAuthFile(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, "auth.json"), []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
}

func TestCheckClassifiesEachType(t *testing.T) {
	dir := t.TempDir()
	writeAuthFile(t, dir, `{
		"anthropic": {"type":"oauth","access":"a","refresh":"r","expires":1},
		"openai": {"type":"api","key":"sk-x"},
		"custom": {"type":"wellknown","key":"k","token":"t"}
	}`)

	if got := authprobe.Check(dir, "anthropic"); got != authprobe.Configured {
		t.Errorf("anthropic: got %v", got)
	}
	if got := authprobe.Check(dir, "openai"); got != authprobe.ApiKeyConfigured {
		t.Errorf("openai: got %v", got)
	}
	if got := authprobe.Check(dir, "custom"); got != authprobe.WellKnownConfigured {
		t.Errorf("custom: got %v", got)
	}
	if got := authprobe.Check(dir, "missing"); got != authprobe.NotConfigured {
		t.Errorf("missing: got %v", got)
	}
}

func TestCheckUnreadableFileYieldsUnknownNotError(t *testing.T) {
	dir := t.TempDir()
	if got := authprobe.Check(dir, "anthropic"); got != authprobe.Unknown {
		t.Errorf("expected Unknown for missing file, got %v", got)
	}

	writeAuthFile(t, dir, "not json")
	if got := authprobe.Check(dir, "anthropic"); got != authprobe.Unknown {
		t.Errorf("expected Unknown for unparsable file, got %v", got)
	}
}

func TestCheckBatchReadsFileOnce(t *testing.T) {
	dir := t.TempDir()
	writeAuthFile(t, dir, `{"openai": {"type":"api","key":"sk-x"}}`)

	statuses := authprobe.CheckBatch(dir, []string{"openai", "anthropic"})
	if statuses["openai"] != authprobe.ApiKeyConfigured {
		t.Errorf("openai: got %v", statuses["openai"])
	}
	if statuses["anthropic"] != authprobe.NotConfigured {
		t.Errorf("anthropic: got %v", statuses["anthropic"])
	}
}

func TestDataDirPrefersExplicitOverride(t *testing.T) {
	env := map[string]string{"OPENCODE_DATA_DIR": "/custom/data"}
	got := authprobe.DataDir(func(k string) string { return env[k] }, "/home/user")
	if got != "/custom/data" {
		t.Errorf("expected override to win, got %s", got)
	}
}
