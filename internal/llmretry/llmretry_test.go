package llmretry

import (
	"context"
	"testing"
	"time"

	"github.com/contractlens/conflictengine/internal/llm"
)

func TestDo_RetriesOn5xxThenSucceeds(t *testing.T) {
	calls := 0
	fn := func(ctx context.Context) (string, llm.Metrics, error) {
		calls++
		if calls < 3 {
			return "", llm.Metrics{}, &llm.HTTPError{StatusCode: 503, Message: "busy"}
		}
		return "ok", llm.Metrics{}, nil
	}

	text, _, err := Do(context.Background(), Policy{MaxAttempts: 5, BaseDelay: time.Millisecond}, fn)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if text != "ok" {
		t.Fatalf("text = %q", text)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestDo_DoesNotRetryParseError(t *testing.T) {
	calls := 0
	fn := func(ctx context.Context) (string, llm.Metrics, error) {
		calls++
		return "", llm.Metrics{}, &llm.ParseError{Raw: "oops", Err: context.DeadlineExceeded}
	}

	_, _, err := Do(context.Background(), Policy{MaxAttempts: 5, BaseDelay: time.Millisecond}, fn)
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1 (no retry on parse error)", calls)
	}
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	calls := 0
	fn := func(ctx context.Context) (string, llm.Metrics, error) {
		calls++
		return "", llm.Metrics{}, &llm.HTTPError{StatusCode: 500, Message: "down"}
	}

	_, _, err := Do(context.Background(), Policy{MaxAttempts: 3, BaseDelay: time.Millisecond}, fn)
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}
