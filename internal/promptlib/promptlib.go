// Package promptlib is a named-template registry for the engine's LLM
// prompts, addressed by name and loaded from YAML the way a reasoning
// preset is (spec.md §9 "prompts are addressed by name and treated as
// configuration"). Grounded on the teacher's internal/reason/preset.go
// (BuiltinPresets map, LoadCustomPresets/GetPreset override-by-name
// convention).
package promptlib

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Template is one named prompt, optionally overridden from a YAML file.
type Template struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	System      string `yaml:"system"`
	Body        string `yaml:"body"` // may reference {{clause_a}}, {{clause_b}}, {{variant}}
}

// BuiltinTemplates are the prompt templates the engine ships with, one
// per LLM-calling component.
var BuiltinTemplates = map[string]Template{
	"claim_extraction": {
		Name:        "claim_extraction",
		Description: "Extract structured claims from a single clause",
		System:      "You extract structured legal claims from contract clause text. Respond only with JSON.",
		Body:        "Extract every discrete claim from this clause as a JSON array.\n\nClause ({{clause_number}}): {{clause_text}}",
	},
	"conflict_judge": {
		Name:        "conflict_judge",
		Description: "Decide whether a claim pair is a true conflict",
		System:      "You adjudicate whether two contractual claims genuinely conflict. Respond only with a single JSON object.",
		Body:        "Decide whether the two claims below describe a true contractual conflict.\n\nClaim A: {{claim_a}}\nClaim B: {{claim_b}}",
	},
	"pair_adjudication": {
		Name:        "pair_adjudication",
		Description: "Classify a batch of clause pairs into the six-valued taxonomy",
		System:      "You classify pairs of contract clauses into one of six relationship types. Respond only with a JSON array.",
		Body:        "Classify each clause pair below.{{variant}}\n\n{{pairs}}",
	},
	"pair_verification": {
		Name:        "pair_verification",
		Description: "Final single-pair verification pass at an elevated confidence threshold",
		System:      "You verify a proposed contractual conflict at a stricter threshold. Respond only with a single JSON object.",
		Body:        "Verify whether this is truly a conflict.\n\nClause A: {{clause_a}}\nClause B: {{clause_b}}\nProposed classification: {{classification}}",
	},
}

// LoadCustomTemplates reads user-defined template overrides from
// <configDir>/prompts.yaml. A missing file is not an error.
func LoadCustomTemplates(configDir string) (map[string]Template, error) {
	path := filepath.Join(configDir, "prompts.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var templates map[string]Template
	if err := yaml.Unmarshal(data, &templates); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return templates, nil
}

// Get returns a template by name, preferring a custom override over the
// builtin of the same name.
func Get(name, configDir string) (Template, error) {
	custom, err := LoadCustomTemplates(configDir)
	if err != nil {
		return Template{}, err
	}
	if custom != nil {
		if t, ok := custom[name]; ok {
			return t, nil
		}
	}
	if t, ok := BuiltinTemplates[name]; ok {
		return t, nil
	}

	var names []string
	for n := range BuiltinTemplates {
		names = append(names, n)
	}
	return Template{}, fmt.Errorf("unknown prompt template %q (available: %s)", name, strings.Join(names, ", "))
}

// Render substitutes {{key}} placeholders in t.Body with vars.
func (t Template) Render(vars map[string]string) string {
	body := t.Body
	for k, v := range vars {
		body = strings.ReplaceAll(body, "{{"+k+"}}", v)
	}
	return body
}
