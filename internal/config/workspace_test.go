package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func writeWorkspaceConfig(t *testing.T, root, content string) {
	t.Helper()
	wsDir := filepath.Join(root, WorkspaceDirName)
	if err := os.MkdirAll(wsDir, 0755); err != nil {
		t.Fatalf("failed to create workspace dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(wsDir, WorkspaceConfigFile), []byte(content), 0644); err != nil {
		t.Fatalf("failed to write workspace config: %v", err)
	}
}

func TestDiscoverWorkspace_Found(t *testing.T) {
	tmpDir := t.TempDir()
	writeWorkspaceConfig(t, tmpDir, "server:\n  name: test\n")

	result, err := DiscoverWorkspace(tmpDir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != tmpDir {
		t.Errorf("expected %q, got %q", tmpDir, result)
	}
}

func TestDiscoverWorkspace_WalkUp(t *testing.T) {
	tmpDir := t.TempDir()
	writeWorkspaceConfig(t, tmpDir, "server:\n  name: test\n")

	nested := filepath.Join(tmpDir, "a", "b")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatalf("failed to create nested dirs: %v", err)
	}

	result, err := DiscoverWorkspace(nested)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != tmpDir {
		t.Errorf("expected %q, got %q", tmpDir, result)
	}
}

func TestDiscoverWorkspace_NotFound(t *testing.T) {
	result, err := DiscoverWorkspace(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "" {
		t.Errorf("expected empty string, got %q", result)
	}
}

func TestDiscoverWorkspace_MaxDepth(t *testing.T) {
	// Workspace at root, search starting deeper than MaxSearchDepth.
	tmpDir := t.TempDir()
	writeWorkspaceConfig(t, tmpDir, "server:\n  name: test\n")

	parts := make([]string, MaxSearchDepth+2)
	parts[0] = tmpDir
	for i := 1; i <= MaxSearchDepth+1; i++ {
		parts[i] = "d"
	}
	deepPath := filepath.Join(parts...)
	if err := os.MkdirAll(deepPath, 0755); err != nil {
		t.Fatalf("failed to create deep path: %v", err)
	}

	result, err := DiscoverWorkspace(deepPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "" {
		t.Errorf("expected empty string (beyond max depth), got %q", result)
	}
}

// Minimal override that keeps Validate happy without a debugger_url.
const wsConfigAutoStartOff = `
browser:
  auto_start: false
`

func TestLoadWithWorkspace_DefaultsOnly(t *testing.T) {
	tmpDir := t.TempDir()
	explicitPath := filepath.Join(tmpDir, "minimal.yaml")
	if err := os.WriteFile(explicitPath, []byte(wsConfigAutoStartOff), 0644); err != nil {
		t.Fatalf("failed to write minimal config: %v", err)
	}

	cfg, wsDir, err := LoadWithWorkspace(explicitPath, WorkspaceOptions{Disable: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if wsDir != "" {
		t.Errorf("expected empty workspace dir, got %q", wsDir)
	}
	if cfg.Server.Name != "formpilot-mcp" {
		t.Errorf("expected default server name, got %q", cfg.Server.Name)
	}
	if cfg.Backend.BaseURL != "http://localhost:8000" {
		t.Errorf("expected default backend URL, got %q", cfg.Backend.BaseURL)
	}
}

func TestLoadWithWorkspace_WorkspaceOverridesDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	writeWorkspaceConfig(t, tmpDir, `
browser:
  auto_start: false

backend:
  base_url: "http://forms.internal:9000"
  timeout: "10s"
`)

	cfg, resultDir, err := LoadWithWorkspace("", WorkspaceOptions{ExplicitDir: tmpDir})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resultDir != tmpDir {
		t.Errorf("expected workspace dir %q, got %q", tmpDir, resultDir)
	}
	if cfg.Backend.BaseURL != "http://forms.internal:9000" {
		t.Errorf("expected workspace backend URL, got %q", cfg.Backend.BaseURL)
	}
	// Defaults for unset fields should remain.
	if cfg.Server.Name != "formpilot-mcp" {
		t.Errorf("expected default server name, got %q", cfg.Server.Name)
	}
}

func TestLoadWithWorkspace_ExplicitOverridesWorkspace(t *testing.T) {
	tmpDir := t.TempDir()
	writeWorkspaceConfig(t, tmpDir, `
browser:
  auto_start: false

backend:
  base_url: "http://workspace-backend:8000"
`)

	explicitPath := filepath.Join(tmpDir, "explicit.yaml")
	explicitConfig := `
backend:
  base_url: "http://explicit-backend:8000"
`
	if err := os.WriteFile(explicitPath, []byte(explicitConfig), 0644); err != nil {
		t.Fatalf("failed to write explicit config: %v", err)
	}

	cfg, _, err := LoadWithWorkspace(explicitPath, WorkspaceOptions{ExplicitDir: tmpDir})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Backend.BaseURL != "http://explicit-backend:8000" {
		t.Errorf("expected explicit config to override workspace, got %q", cfg.Backend.BaseURL)
	}
}

func TestLoadWithWorkspace_PartialYAML(t *testing.T) {
	tmpDir := t.TempDir()
	writeWorkspaceConfig(t, tmpDir, `
browser:
  auto_start: false
  viewport_width: 800
`)

	cfg, _, err := LoadWithWorkspace("", WorkspaceOptions{ExplicitDir: tmpDir})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Browser.ViewportWidth != 800 {
		t.Errorf("expected viewport width 800, got %d", cfg.Browser.ViewportWidth)
	}
	// Unchanged defaults.
	if cfg.Browser.ViewportHeight != 1080 {
		t.Errorf("expected default viewport height 1080, got %d", cfg.Browser.ViewportHeight)
	}
	if cfg.Server.Name != "formpilot-mcp" {
		t.Errorf("expected default server name, got %q", cfg.Server.Name)
	}
}

func TestLoadWithWorkspace_Disabled(t *testing.T) {
	tmpDir := t.TempDir()
	writeWorkspaceConfig(t, tmpDir, `
backend:
  base_url: "http://should-be-ignored:8000"
`)

	explicitPath := filepath.Join(tmpDir, "minimal.yaml")
	if err := os.WriteFile(explicitPath, []byte(wsConfigAutoStartOff), 0644); err != nil {
		t.Fatalf("failed to write minimal config: %v", err)
	}

	cfg, resultDir, err := LoadWithWorkspace(explicitPath, WorkspaceOptions{Disable: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resultDir != "" {
		t.Errorf("expected empty workspace dir with Disable, got %q", resultDir)
	}
	if cfg.Backend.BaseURL != "http://localhost:8000" {
		t.Errorf("expected default backend URL when workspace disabled, got %q", cfg.Backend.BaseURL)
	}
}

func TestResolveWorkspacePaths_Relative(t *testing.T) {
	tmpDir := t.TempDir()

	cfg := Config{
		Logging:  LoggingConfig{File: "formpilot-mcp.log"},
		Browser:  BrowserConfig{SessionStore: "sessions.json"},
		Facts:    FactsConfig{SchemaPath: filepath.Join("schemas", "form.mg")},
		Recorder: RecorderConfig{Dir: "transcripts"},
	}

	resolved := resolveWorkspacePaths(cfg, tmpDir)

	expected := filepath.Join(tmpDir, "formpilot-mcp.log")
	if resolved.Logging.File != expected {
		t.Errorf("expected log file %q, got %q", expected, resolved.Logging.File)
	}
	expected = filepath.Join(tmpDir, "sessions.json")
	if resolved.Browser.SessionStore != expected {
		t.Errorf("expected session store %q, got %q", expected, resolved.Browser.SessionStore)
	}
	expected = filepath.Join(tmpDir, "schemas", "form.mg")
	if resolved.Facts.SchemaPath != expected {
		t.Errorf("expected schema path %q, got %q", expected, resolved.Facts.SchemaPath)
	}
	expected = filepath.Join(tmpDir, "transcripts")
	if resolved.Recorder.Dir != expected {
		t.Errorf("expected recorder dir %q, got %q", expected, resolved.Recorder.Dir)
	}
}

func TestResolveWorkspacePaths_AbsoluteUntouched(t *testing.T) {
	wsDir := t.TempDir()

	var absLog, absSession, absSchema string
	if runtime.GOOS == "windows" {
		absLog = `C:\var\log\formpilot.log`
		absSession = `C:\tmp\sessions.json`
		absSchema = `C:\etc\formpilot\form.mg`
	} else {
		absLog = "/var/log/formpilot.log"
		absSession = "/tmp/sessions.json"
		absSchema = "/etc/formpilot/form.mg"
	}

	cfg := Config{
		Logging: LoggingConfig{File: absLog},
		Browser: BrowserConfig{SessionStore: absSession},
		Facts:   FactsConfig{SchemaPath: absSchema},
	}

	resolved := resolveWorkspacePaths(cfg, wsDir)

	if resolved.Logging.File != absLog {
		t.Errorf("expected absolute log file untouched %q, got %q", absLog, resolved.Logging.File)
	}
	if resolved.Browser.SessionStore != absSession {
		t.Errorf("expected absolute session store untouched %q, got %q", absSession, resolved.Browser.SessionStore)
	}
	if resolved.Facts.SchemaPath != absSchema {
		t.Errorf("expected absolute schema path untouched %q, got %q", absSchema, resolved.Facts.SchemaPath)
	}
}

func TestInitWorkspace_Creates(t *testing.T) {
	tmpDir := t.TempDir()

	if err := InitWorkspace(tmpDir); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wsDir := filepath.Join(tmpDir, WorkspaceDirName)
	checkDir := func(path string) {
		info, err := os.Stat(path)
		if err != nil {
			t.Errorf("expected directory %q to exist: %v", path, err)
			return
		}
		if !info.IsDir() {
			t.Errorf("expected %q to be a directory", path)
		}
	}
	checkDir(wsDir)
	checkDir(filepath.Join(wsDir, "schemas"))
	checkDir(filepath.Join(wsDir, "data"))

	data, err := os.ReadFile(filepath.Join(wsDir, WorkspaceConfigFile))
	if err != nil {
		t.Fatalf("failed to read config template: %v", err)
	}
	if len(data) == 0 {
		t.Error("expected non-empty config template")
	}

	data, err = os.ReadFile(filepath.Join(wsDir, ".gitignore"))
	if err != nil {
		t.Fatalf("failed to read .gitignore: %v", err)
	}
	if len(data) == 0 {
		t.Error("expected non-empty .gitignore")
	}
}

func TestInitWorkspace_AlreadyExists(t *testing.T) {
	tmpDir := t.TempDir()

	if err := InitWorkspace(tmpDir); err != nil {
		t.Fatalf("first init failed: %v", err)
	}

	if err := InitWorkspace(tmpDir); err == nil {
		t.Error("expected error when workspace already exists")
	}
}
