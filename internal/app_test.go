package internal

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/valter-silva-au/staffdesk/internal/cli"
	"github.com/valter-silva-au/staffdesk/internal/core"
	"github.com/valter-silva-au/staffdesk/pkg/models"
)

// newTestApp creates an App in dir and closes it when the test ends.
func newTestApp(t *testing.T, dir string) *App {
	t.Helper()
	app, err := NewApp(dir)
	if err != nil {
		t.Fatalf("NewApp() error = %v", err)
	}
	t.Cleanup(func() { _ = app.Close() })
	return app
}

func writeConfig(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, core.ConfigFileName), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestResolveBasePath_HomeSet(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("STAFFDESK_HOME", tmpDir)

	got := ResolveBasePath()
	if got != tmpDir {
		t.Errorf("ResolveBasePath() = %q, want %q", got, tmpDir)
	}
}

func TestResolveBasePath_FindsConfigFile(t *testing.T) {
	tmpDir := t.TempDir()
	subDir := filepath.Join(tmpDir, "sub", "nested")
	if err := os.MkdirAll(subDir, 0o755); err != nil {
		t.Fatal(err)
	}
	writeConfig(t, tmpDir, "api:\n  base_url: https://crm.example\n")

	origDir, _ := os.Getwd()
	defer func() { _ = os.Chdir(origDir) }()
	if err := os.Chdir(subDir); err != nil {
		t.Fatal(err)
	}
	t.Setenv("STAFFDESK_HOME", "")

	got := ResolveBasePath()
	if got != tmpDir {
		t.Errorf("ResolveBasePath() = %q, want %q (should find %s in parent)", got, tmpDir, core.ConfigFileName)
	}
}

func TestResolveBasePath_FallbackToCwd(t *testing.T) {
	tmpDir := t.TempDir()
	origDir, _ := os.Getwd()
	defer func() { _ = os.Chdir(origDir) }()
	if err := os.Chdir(tmpDir); err != nil {
		t.Fatal(err)
	}
	t.Setenv("STAFFDESK_HOME", "")

	got := ResolveBasePath()
	if got != tmpDir {
		t.Errorf("ResolveBasePath() = %q, want %q (should fall back to cwd)", got, tmpDir)
	}
}

func TestNewApp_Success(t *testing.T) {
	tmpDir := t.TempDir()
	app := newTestApp(t, tmpDir)

	if app.BasePath != tmpDir {
		t.Errorf("app.BasePath = %q, want %q", app.BasePath, tmpDir)
	}
	if app.CRM == nil {
		t.Error("app.CRM is nil")
	}
	if app.Records == nil {
		t.Error("app.Records is nil")
	}
	if app.Resolver == nil {
		t.Error("app.Resolver is nil")
	}
	if app.Workflows == nil {
		t.Error("app.Workflows is nil")
	}
	if app.EventLog == nil || app.MetricsCalc == nil {
		t.Error("observability should be enabled for a writable base path")
	}
	if _, err := os.Stat(filepath.Join(tmpDir, EventLogFileName)); err != nil {
		t.Errorf("expected event log file: %v", err)
	}
}

func TestNewApp_WiresCLI(t *testing.T) {
	app := newTestApp(t, t.TempDir())

	if cli.Records != app.Records {
		t.Error("cli.Records not wired")
	}
	if cli.Resolver == nil || cli.Sources == nil || cli.Notes == nil || cli.Headers == nil || cli.Users == nil {
		t.Error("CRM services not wired to the CLI")
	}
	if cli.Layouts == nil {
		t.Error("cli.Layouts not wired")
	}
	if cli.Workflows != app.Workflows {
		t.Error("cli.Workflows not wired")
	}
	if cli.Config != app.Config {
		t.Error("cli.Config not wired")
	}
}

func TestNewApp_AccountFromTokenSubject(t *testing.T) {
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "ann@example.com",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := tok.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}
	tmpDir := t.TempDir()
	writeConfig(t, tmpDir, "api:\n  token: "+signed+"\n")

	newTestApp(t, tmpDir)
	if cli.Account != "ann@example.com" {
		t.Errorf("cli.Account = %q, want the token subject", cli.Account)
	}
}

func TestNewApp_MissingConfig(t *testing.T) {
	app := newTestApp(t, t.TempDir())

	def := core.DefaultGlobalConfig()
	if app.Config.API.BaseURL != def.API.BaseURL {
		t.Errorf("base URL = %q, want default %q", app.Config.API.BaseURL, def.API.BaseURL)
	}
	if app.Config.Search.Limit != def.Search.Limit {
		t.Errorf("search limit = %d, want default %d", app.Config.Search.Limit, def.Search.Limit)
	}
	if app.Config.Store.Backend != models.StoreBackendFile {
		t.Errorf("store backend = %q, want file", app.Config.Store.Backend)
	}
}

func TestNewApp_ReadsConfigFile(t *testing.T) {
	tmpDir := t.TempDir()
	writeConfig(t, tmpDir, `
api:
  base_url: https://crm.example
search:
  limit: 5
  min_chars: 3
note_actions:
  task:
    - Call
`)

	app := newTestApp(t, tmpDir)

	if app.Config.API.BaseURL != "https://crm.example" {
		t.Errorf("base URL = %q", app.Config.API.BaseURL)
	}
	if app.Config.Search.Limit != 5 || app.Config.Search.MinChars != 3 {
		t.Errorf("search = %+v", app.Config.Search)
	}
	if got := core.NoteActions(app.Config, models.EntityTask); len(got) != 1 || got[0] != "Call" {
		t.Errorf("task note actions = %v", got)
	}
}

func TestNewApp_UnreadableConfigFallsBackToDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	writeConfig(t, tmpDir, "api: [unclosed")

	app := newTestApp(t, tmpDir)
	if app.Config.Search.Limit != core.DefaultSearchLimit {
		t.Errorf("search limit = %d, want default", app.Config.Search.Limit)
	}
}

func TestNewApp_FileLayoutStore(t *testing.T) {
	tmpDir := t.TempDir()
	app := newTestApp(t, tmpDir)

	key := core.LayoutKey(models.EntityJob, core.PanelDetails)
	if err := app.Layouts.Set(context.Background(), key, []string{"job_title"}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(tmpDir, "layouts.yaml")); err != nil {
		t.Errorf("expected layouts.yaml in the base path: %v", err)
	}
}

func TestNewApp_UnreachableRedisFallsBackToFile(t *testing.T) {
	tmpDir := t.TempDir()
	writeConfig(t, tmpDir, `
store:
  backend: redis
  redis_url: redis://127.0.0.1:1/0
`)

	app := newTestApp(t, tmpDir)

	key := core.LayoutKey(models.EntityTask, core.PanelDetails)
	if err := app.Layouts.Set(context.Background(), key, []string{"title"}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(tmpDir, "layouts.yaml")); err != nil {
		t.Errorf("expected the file store after redis failed: %v", err)
	}
}

func TestApp_CloseOnEmptyApp(t *testing.T) {
	var app App
	if err := app.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}
