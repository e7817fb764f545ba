// Package config resolves EngineOptions through three layers of
// precedence, lowest to highest: a YAML config file, environment
// variables, and explicit caller-supplied struct fields / CLI flags.
// Every resolved option records where it came from. Grounded on the
// teacher's internal/config/resolver.go (ValueSource enum, ResolvedValue,
// fileConfig), generalized from LLM-provider-only resolution to the full
// engine option surface of spec.md §6.
package config

import (
	"os"

	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"
)

// Source records where a ResolvedValue came from.
type Source string

const (
	SourceUnknown Source = "unknown"
	SourceDefault Source = "default"
	SourceConfig  Source = "config"
	SourceEnv     Source = "env"
	SourceCLI     Source = "cli"
)

// ResolvedValue records a resolved option's value alongside its
// provenance, surfaced in RunResult.Stats for diagnostics.
type ResolvedValue struct {
	Value  interface{}
	Source Source
	From   string // the literal key/flag/env-var name the value came from
}

// fileConfig mirrors the YAML shape of a config file
// (.conflictengine.yaml / contractlens.yaml).
type fileConfig struct {
	Model                 string  `yaml:"model"`
	Strategy               string  `yaml:"strategy"`
	ConfidenceThreshold    float64 `yaml:"confidence_threshold"`
	VerificationConfidence float64 `yaml:"verification_confidence"`
	ConsistencyVotes       int     `yaml:"consistency_votes"`
	ClaimBatch             int     `yaml:"claim_batch"`
	JudgeBatch             int     `yaml:"judge_batch"`
	AdjudicatorPairBatch   int     `yaml:"adjudicator_pair_batch"`
	KeepAlive              string  `yaml:"keep_alive"`
	RunTimeoutSeconds      int     `yaml:"run_timeout_seconds"`
	LLMBaseURL             string  `yaml:"llm_base_url"`
}

// ResolvedConfig is the fully resolved set of engine options, each
// carrying provenance.
type ResolvedConfig struct {
	Model                  ResolvedValue
	Strategy                ResolvedValue
	ConfidenceThreshold     ResolvedValue
	VerificationConfidence  ResolvedValue
	ConsistencyVotes        ResolvedValue
	ClaimBatch              ResolvedValue
	JudgeBatch              ResolvedValue
	AdjudicatorPairBatch    ResolvedValue
	KeepAlive               ResolvedValue
	RunTimeoutSeconds       ResolvedValue
	LLMBaseURL              ResolvedValue
}

// Overrides carries explicit caller-supplied struct fields / CLI flags —
// the highest-precedence layer. A zero-value field for any type means
// "not explicitly set"; strategies that distinguish "not set" from
// "set to zero" should use a pointer, but none of this surface's options
// require that: every default is positive or non-empty except
// run_timeout_seconds, whose default is itself 0 (no run timeout).
type Overrides struct {
	Model                  string
	Strategy                string
	ConfidenceThreshold     float64
	VerificationConfidence  float64
	ConsistencyVotes        int
	ClaimBatch              int
	JudgeBatch              int
	AdjudicatorPairBatch    int
	KeepAlive               string
	RunTimeoutSeconds       int
	LLMBaseURL              string
}

// Resolve layers configPath (if non-empty and readable) under the
// process environment under overrides, producing a ResolvedConfig with
// full provenance. Defaults match spec.md §6's documented defaults.
func Resolve(configPath string, overrides Overrides) (ResolvedConfig, error) {
	var file fileConfig
	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err == nil {
			if uerr := yaml.Unmarshal(data, &file); uerr != nil {
				return ResolvedConfig{}, uerr
			}
		}
		// A missing config file is not an error: the config layer is
		// optional (spec.md §6 lists no required file).
	}

	rc := ResolvedConfig{}
	rc.Model = resolveString("model", overrides.Model, file.Model, "CONFLICTENGINE_MODEL", "llama3")
	rc.Strategy = resolveString("strategy", overrides.Strategy, file.Strategy, "CONFLICTENGINE_STRATEGY", "claim_based")
	rc.ConfidenceThreshold = resolveFloat("confidence_threshold", overrides.ConfidenceThreshold, file.ConfidenceThreshold, "CONFLICTENGINE_CONFIDENCE_THRESHOLD", 0.85)
	rc.VerificationConfidence = resolveFloat("verification_confidence", overrides.VerificationConfidence, file.VerificationConfidence, "CONFLICTENGINE_VERIFICATION_CONFIDENCE", 0.90)
	rc.ConsistencyVotes = resolveInt("consistency_votes", overrides.ConsistencyVotes, file.ConsistencyVotes, "CONFLICTENGINE_CONSISTENCY_VOTES", 1)
	rc.ClaimBatch = resolveInt("claim_batch", overrides.ClaimBatch, file.ClaimBatch, "CONFLICTENGINE_CLAIM_BATCH", 10)
	rc.JudgeBatch = resolveInt("judge_batch", overrides.JudgeBatch, file.JudgeBatch, "CONFLICTENGINE_JUDGE_BATCH", 10)
	rc.AdjudicatorPairBatch = resolveInt("adjudicator_pair_batch", overrides.AdjudicatorPairBatch, file.AdjudicatorPairBatch, "CONFLICTENGINE_ADJUDICATOR_PAIR_BATCH", 50)
	rc.KeepAlive = resolveString("keep_alive", overrides.KeepAlive, file.KeepAlive, "CONFLICTENGINE_KEEP_ALIVE", "30m")
	rc.RunTimeoutSeconds = resolveInt("run_timeout_seconds", overrides.RunTimeoutSeconds, file.RunTimeoutSeconds, "CONFLICTENGINE_RUN_TIMEOUT_SECONDS", 0)
	rc.LLMBaseURL = resolveString("llm_base_url", overrides.LLMBaseURL, file.LLMBaseURL, "CONFLICTENGINE_LLM_BASE_URL", "http://localhost:11434")

	return rc, nil
}

func resolveString(name, override, fileVal, envVar, def string) ResolvedValue {
	if override != "" {
		return ResolvedValue{Value: override, Source: SourceCLI, From: name}
	}
	if v, ok := os.LookupEnv(envVar); ok && v != "" {
		return ResolvedValue{Value: v, Source: SourceEnv, From: envVar}
	}
	if fileVal != "" {
		return ResolvedValue{Value: fileVal, Source: SourceConfig, From: name}
	}
	return ResolvedValue{Value: def, Source: SourceDefault, From: name}
}

func resolveFloat(name string, override, fileVal float64, envVar string, def float64) ResolvedValue {
	if override != 0 {
		return ResolvedValue{Value: override, Source: SourceCLI, From: name}
	}
	if v, ok := os.LookupEnv(envVar); ok && v != "" {
		return ResolvedValue{Value: cast.ToFloat64(v), Source: SourceEnv, From: envVar}
	}
	if fileVal != 0 {
		return ResolvedValue{Value: fileVal, Source: SourceConfig, From: name}
	}
	return ResolvedValue{Value: def, Source: SourceDefault, From: name}
}

func resolveInt(name string, override, fileVal int, envVar string, def int) ResolvedValue {
	if override != 0 {
		return ResolvedValue{Value: override, Source: SourceCLI, From: name}
	}
	if v, ok := os.LookupEnv(envVar); ok && v != "" {
		return ResolvedValue{Value: cast.ToInt(v), Source: SourceEnv, From: envVar}
	}
	if fileVal != 0 {
		return ResolvedValue{Value: fileVal, Source: SourceConfig, From: name}
	}
	return ResolvedValue{Value: def, Source: SourceDefault, From: name}
}
