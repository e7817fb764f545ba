package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestResolve_DefaultsWhenNothingSet(t *testing.T) {
	os.Unsetenv("CONFLICTENGINE_MODEL")
	rc, err := Resolve("", Overrides{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if rc.Model.Value != "llama3" || rc.Model.Source != SourceDefault {
		t.Fatalf("Model = %+v, want default llama3", rc.Model)
	}
	if rc.ConfidenceThreshold.Value != 0.85 {
		t.Fatalf("ConfidenceThreshold = %+v, want 0.85", rc.ConfidenceThreshold)
	}
}

func TestResolve_FileOverridesDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("model: mixtral\nconfidence_threshold: 0.9\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	os.Unsetenv("CONFLICTENGINE_MODEL")

	rc, err := Resolve(path, Overrides{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if rc.Model.Value != "mixtral" || rc.Model.Source != SourceConfig {
		t.Fatalf("Model = %+v, want config mixtral", rc.Model)
	}
	if rc.ConfidenceThreshold.Value != 0.9 || rc.ConfidenceThreshold.Source != SourceConfig {
		t.Fatalf("ConfidenceThreshold = %+v, want config 0.9", rc.ConfidenceThreshold)
	}
}

func TestResolve_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("model: mixtral\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	os.Setenv("CONFLICTENGINE_MODEL", "phi3")
	defer os.Unsetenv("CONFLICTENGINE_MODEL")

	rc, err := Resolve(path, Overrides{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if rc.Model.Value != "phi3" || rc.Model.Source != SourceEnv {
		t.Fatalf("Model = %+v, want env phi3", rc.Model)
	}
}

func TestResolve_OverrideWinsOverEverything(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("model: mixtral\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	os.Setenv("CONFLICTENGINE_MODEL", "phi3")
	defer os.Unsetenv("CONFLICTENGINE_MODEL")

	rc, err := Resolve(path, Overrides{Model: "gpt-oss"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if rc.Model.Value != "gpt-oss" || rc.Model.Source != SourceCLI {
		t.Fatalf("Model = %+v, want cli gpt-oss", rc.Model)
	}
}

func TestResolve_MissingFileIsNotAnError(t *testing.T) {
	rc, err := Resolve("/nonexistent/path/config.yaml", Overrides{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if rc.Model.Source != SourceDefault {
		t.Fatalf("Model.Source = %v, want default", rc.Model.Source)
	}
}
