package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadClauses_ParsesJSONArray(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "clauses.json")
	content := `[
		{"ID":"c1","Number":"3.1","Heading":"Payment","Text":"Payment shall be made within 30 days.","OrderIndex":0},
		{"ID":"c2","Number":"9.5","Heading":"Payment Terms","Text":"The Company must pay within 60 days.","OrderIndex":1}
	]`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	clauses, err := loadClauses(path)
	if err != nil {
		t.Fatalf("loadClauses: %v", err)
	}
	if len(clauses) != 2 {
		t.Fatalf("got %d clauses, want 2", len(clauses))
	}
	if clauses[0].ID != "c1" || clauses[1].ID != "c2" {
		t.Fatalf("clauses = %+v", clauses)
	}
}

func TestLoadClauses_MissingFileReturnsError(t *testing.T) {
	if _, err := loadClauses(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestLoadClauses_InvalidJSONReturnsError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(path, []byte("not json"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := loadClauses(path); err == nil {
		t.Fatalf("expected error for invalid JSON")
	}
}
