package promptlib

import (
	"os"
	"path/filepath"
	"testing"
)

func TestGet_ReturnsBuiltin(t *testing.T) {
	tmpl, err := Get("claim_extraction", t.TempDir())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if tmpl.Name != "claim_extraction" {
		t.Fatalf("Name = %q", tmpl.Name)
	}
}

func TestGet_UnknownNameReturnsError(t *testing.T) {
	_, err := Get("nonexistent_template", t.TempDir())
	if err == nil {
		t.Fatalf("expected error for unknown template")
	}
}

func TestGet_CustomOverridesBuiltin(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "prompts.yaml")
	content := "claim_extraction:\n  name: claim_extraction\n  system: custom system prompt\n  body: custom body\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	tmpl, err := Get("claim_extraction", dir)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if tmpl.System != "custom system prompt" {
		t.Fatalf("System = %q, want override", tmpl.System)
	}
}

func TestTemplate_RenderSubstitutesVars(t *testing.T) {
	tmpl := Template{Body: "Clause A: {{clause_a}}, Clause B: {{clause_b}}"}
	out := tmpl.Render(map[string]string{"clause_a": "foo", "clause_b": "bar"})
	if out != "Clause A: foo, Clause B: bar" {
		t.Fatalf("Render = %q", out)
	}
}
