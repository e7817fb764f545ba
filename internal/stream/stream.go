// Package stream implements the three interactive comparison adapters
// spec.md §4.7/§6 layers over the Pair Adjudicator's single-pair call:
// 1↔1, 1↔N, and N↔N (self-checks plus every distinct pair), each emitting
// server-sent events over a channel rather than a batched result. Grounded
// on internal/llm.Client.Stream's token-accumulation loop for the
// time_to_first_token/tokens_per_second bookkeeping, and on the teacher's
// internal/reason/engine.go phase-timing convention for reporting
// performance alongside each result.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/contractlens/conflictengine/internal/clause"
	"github.com/contractlens/conflictengine/internal/conflict"
	"github.com/contractlens/conflictengine/internal/llm"
	"github.com/contractlens/conflictengine/internal/llmjson"
)

// render substitutes {{key}} placeholders in a caller-supplied prompt
// template, the same convention internal/promptlib.Template.Render uses.
func render(tmpl string, vars map[string]string) string {
	out := tmpl
	for k, v := range vars {
		out = strings.ReplaceAll(out, "{{"+k+"}}", v)
	}
	return out
}

// EventType tags one server-sent event, per spec.md §6's four-valued
// event schema.
type EventType string

const (
	EventStatus   EventType = "status"
	EventResult   EventType = "result"
	EventComplete EventType = "complete"
	EventError    EventType = "error"
)

// ResultData is the payload of a "result" event: one pairwise comparison.
type ResultData struct {
	ClauseIIndex int               `json:"clause_i_index"`
	ClauseJIndex int               `json:"clause_j_index"`
	IsSelfCheck  bool              `json:"is_self_check"`
	Conflict     bool              `json:"conflict"`
	Severity     conflict.Severity `json:"severity,omitempty"`
	Explanation  string            `json:"explanation,omitempty"`
	Performance  llm.Metrics       `json:"performance"`
}

// Event is one line of the SSE wire format: `data: <json>\n\n`.
type Event struct {
	Type    EventType   `json:"type"`
	Message string      `json:"message,omitempty"`
	Total   int         `json:"total,omitempty"`
	Data    *ResultData `json:"data,omitempty"`
}

// Encode renders e as an SSE data line (`data: <json>` and a blank line).
// It only formats; writing and flushing are left to the caller.
func (e Event) Encode() (string, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("stream: encoding event: %w", err)
	}
	return "data: " + string(b) + "\n\n", nil
}

func errorEvent(err error) Event {
	return Event{Type: EventError, Message: err.Error()}
}

// rawVerdict is the JSON shape the interactive prompt asks the model to
// return: a lighter-weight cousin of the batch adjudicator's six-valued
// taxonomy, matching the event schema's {conflict, severity, explanation}.
type rawVerdict struct {
	Conflict    bool   `json:"conflict"`
	Severity    string `json:"severity"`
	Explanation string `json:"explanation"`
}

// runOne drives a single streaming generation call to completion,
// accumulating token content and capturing the terminal Metrics, then
// parses the accumulated text as a rawVerdict.
func runOne(ctx context.Context, provider llm.Provider, prompt string, opts llm.Options) (rawVerdict, llm.Metrics, error) {
	var text string
	var metrics llm.Metrics

	for ev := range provider.Stream(ctx, prompt, opts) {
		switch ev.Type {
		case llm.StreamEventToken:
			text += ev.Content
		case llm.StreamEventComplete:
			metrics = ev.Metrics
		case llm.StreamEventError:
			return rawVerdict{}, llm.Metrics{}, ev.Err
		}
	}

	var rv rawVerdict
	if err := llmjson.DecodeObject(text, &rv); err != nil {
		return rawVerdict{}, metrics, fmt.Errorf("stream: decoding verdict: %w", err)
	}
	return rv, metrics, nil
}

func toResultData(i, j int, selfCheck bool, rv rawVerdict, metrics llm.Metrics) ResultData {
	return ResultData{
		ClauseIIndex: i,
		ClauseJIndex: j,
		IsSelfCheck:  selfCheck,
		Conflict:     rv.Conflict,
		Severity:     conflict.Severity(rv.Severity),
		Explanation:  rv.Explanation,
		Performance:  metrics,
	}
}

// PairCompare is the 1↔1 adapter: one pair, one LLM call, a single result
// event followed by complete (or a terminal error event).
func PairCompare(ctx context.Context, provider llm.Provider, a, b clause.Clause, prompt string, opts llm.Options) <-chan Event {
	out := make(chan Event, 2)
	go func() {
		defer close(out)
		rv, metrics, err := runOne(ctx, provider, prompt, opts)
		if err != nil {
			out <- errorEvent(err)
			return
		}
		data := toResultData(0, 0, false, rv, metrics)
		out <- Event{Type: EventResult, Data: &data}
		out <- Event{Type: EventComplete, Message: "done"}
	}()
	return out
}

// OneToN is the 1↔N adapter: ref compared against each of targets in
// order, strictly sequential (spec.md §5: concurrency 1 for streaming
// adapters), one result event per target. prompt is a template rendered
// per target with {{clause_a}} bound to ref and {{clause_b}} bound to the
// current target.
func OneToN(ctx context.Context, provider llm.Provider, ref clause.Clause, targets []clause.Clause, prompt string, opts llm.Options) <-chan Event {
	out := make(chan Event, 1)
	go func() {
		defer close(out)
		out <- Event{Type: EventStatus, Message: "comparing", Total: len(targets)}

		for j, target := range targets {
			if err := ctx.Err(); err != nil {
				out <- errorEvent(err)
				return
			}
			rendered := render(prompt, map[string]string{"clause_a": ref.Text, "clause_b": target.Text})
			rv, metrics, err := runOne(ctx, provider, rendered, opts)
			if err != nil {
				out <- errorEvent(err)
				return
			}
			data := toResultData(0, j, false, rv, metrics)
			out <- Event{Type: EventResult, Data: &data}
		}
		out <- Event{Type: EventComplete, Message: "done"}
	}()
	return out
}

// AllVsAll is the N↔N adapter: every clause's self-check first in clause
// order, then every distinct pair in lexicographic (i, j) order with
// i < j — spec.md §4.7's N·(N+1)/2 total events. pairPrompt is rendered
// per pair with {{clause_a}}/{{clause_b}}; selfPrompt is rendered per
// clause with {{clause_a}}.
func AllVsAll(ctx context.Context, provider llm.Provider, clauses []clause.Clause, pairPrompt, selfPrompt string, opts llm.Options) <-chan Event {
	out := make(chan Event, 1)
	go func() {
		defer close(out)
		n := len(clauses)
		total := n * (n + 1) / 2
		out <- Event{Type: EventStatus, Message: "comparing", Total: total}

		for i, c := range clauses {
			if err := ctx.Err(); err != nil {
				out <- errorEvent(err)
				return
			}
			rendered := render(selfPrompt, map[string]string{"clause_a": c.Text})
			rv, metrics, err := runOne(ctx, provider, rendered, opts)
			if err != nil {
				out <- errorEvent(err)
				return
			}
			data := toResultData(i, i, true, rv, metrics)
			out <- Event{Type: EventResult, Data: &data}
		}

		for i := 0; i < n; i++ {
			for j := i + 1; j < n; j++ {
				if err := ctx.Err(); err != nil {
					out <- errorEvent(err)
					return
				}
				rendered := render(pairPrompt, map[string]string{"clause_a": clauses[i].Text, "clause_b": clauses[j].Text})
				rv, metrics, err := runOne(ctx, provider, rendered, opts)
				if err != nil {
					out <- errorEvent(err)
					return
				}
				data := toResultData(i, j, false, rv, metrics)
				out <- Event{Type: EventResult, Data: &data}
			}
		}
		out <- Event{Type: EventComplete, Message: "done"}
	}()
	return out
}
