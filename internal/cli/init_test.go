package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestInitCmd_WritesConfig(t *testing.T) {
	dir := t.TempDir()
	origURL := initBaseURL
	defer func() { initBaseURL = origURL }()
	initBaseURL = "https://crm.example.com"

	out := captureStdout(t, func() {
		if err := initCmd.RunE(initCmd, []string{dir}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})
	if !strings.Contains(out, "Created:") {
		t.Errorf("unexpected output:\n%s", out)
	}
	data, err := os.ReadFile(filepath.Join(dir, ".staffdesk.yaml"))
	if err != nil {
		t.Fatalf("reading config: %v", err)
	}
	if !strings.Contains(string(data), "https://crm.example.com") {
		t.Errorf("config missing base URL:\n%s", data)
	}
}

func TestInitCmd_SkipsExisting(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".staffdesk.yaml")
	if err := os.WriteFile(path, []byte("api:\n  base_url: https://keep.example\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	out := captureStdout(t, func() {
		if err := initCmd.RunE(initCmd, []string{dir}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})
	if !strings.Contains(out, "Skipped (already exists)") {
		t.Errorf("unexpected output:\n%s", out)
	}
	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), "keep.example") {
		t.Error("existing config must not be overwritten")
	}
}
