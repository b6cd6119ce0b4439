package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap/zapcore"
)

func reset(t *testing.T) {
	t.Helper()
	CloseAll()
	Configure(Options{})
	t.Cleanup(func() {
		CloseAll()
		Configure(Options{})
	})
}

// TestAllCategoriesLog tests that all categories create log files when debug_mode is true
func TestAllCategoriesLog(t *testing.T) {
	reset(t)
	dir := filepath.Join(t.TempDir(), "logs")

	if err := Initialize(Options{Dir: dir, Level: "debug", DebugMode: true}); err != nil {
		t.Fatalf("Failed to initialize logging: %v", err)
	}
	if !IsDebugMode() {
		t.Fatal("Expected debug mode to be enabled")
	}

	for _, cat := range Categories {
		if !IsCategoryEnabled(cat) {
			t.Errorf("Category %s should be enabled", cat)
		}
		l := Get(cat)
		l.Info("Test info message for %s", cat)
		l.Debug("Test debug message for %s", cat)
		l.Warn("Test warn message for %s", cat)
		l.Error("Test error message for %s", cat)
	}

	Session("Convenience session log")
	Documents("Convenience documents log")
	Autosave("Convenience autosave log")
	API("Convenience api log")
	Stream("Convenience stream log")
	Store("Convenience store log")
	UI("Convenience ui log")

	CloseAll()

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("Failed to read logs dir: %v", err)
	}
	for _, cat := range Categories {
		found := false
		for _, entry := range entries {
			if strings.HasSuffix(entry.Name(), "_"+string(cat)+".log") {
				found = true
				content, err := os.ReadFile(filepath.Join(dir, entry.Name()))
				if err != nil {
					t.Errorf("Failed to read log file for %s: %v", cat, err)
					continue
				}
				if len(content) == 0 {
					t.Errorf("Log file for %s is empty", cat)
				}
				break
			}
		}
		if !found {
			t.Errorf("No log file found for category: %s", cat)
		}
	}
}

// TestDebugModeDisabled tests that no logs are created when debug_mode is false
func TestDebugModeDisabled(t *testing.T) {
	reset(t)
	dir := filepath.Join(t.TempDir(), "logs")

	if err := Initialize(Options{Dir: dir, DebugMode: false}); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	for _, cat := range Categories {
		if IsCategoryEnabled(cat) {
			t.Errorf("Category %s should be disabled in production mode", cat)
		}
		Get(cat).Info("should not be written")
	}

	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Errorf("Logs directory should not exist when debug mode is off")
	}
}

func TestCategoryFilter(t *testing.T) {
	reset(t)
	dir := filepath.Join(t.TempDir(), "logs")

	err := Initialize(Options{
		Dir:        dir,
		DebugMode:  true,
		Categories: map[string]bool{"api": false, "autosave": true},
	})
	if err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	if IsCategoryEnabled(CategoryAPI) {
		t.Error("api should be disabled")
	}
	if !IsCategoryEnabled(CategoryAutosave) {
		t.Error("autosave should be enabled")
	}
	if !IsCategoryEnabled(CategoryStream) {
		t.Error("unlisted categories default to enabled")
	}
	if Get(CategoryAPI) != nop {
		t.Error("disabled category should return the no-op logger")
	}
}

func TestConfigure_ChangesLevelAtRuntime(t *testing.T) {
	reset(t)

	Configure(Options{DebugMode: true, Level: "warn"})
	if Level() != zapcore.WarnLevel {
		t.Errorf("expected warn, got %s", Level())
	}
	Configure(Options{DebugMode: true, Level: "bogus"})
	if Level() != zapcore.InfoLevel {
		t.Errorf("unknown level should fall back to info, got %s", Level())
	}
}

func TestTimer(t *testing.T) {
	reset(t)
	timer := StartTimer(CategoryDocuments, "op")
	if d := timer.Stop(); d < 0 {
		t.Errorf("negative duration %v", d)
	}
}
