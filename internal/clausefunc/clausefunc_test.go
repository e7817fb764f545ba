package clausefunc

import (
	"testing"
	"time"

	"github.com/contractlens/conflictengine/internal/clause"
)

func TestCache_MemoizesAndAgreesWithPure(t *testing.T) {
	c := NewUnbounded()
	defer c.Close()

	cl := clause.Clause{ID: "c1", Heading: "Governing Law", Text: "This Agreement shall be governed by the laws of the UAE."}

	want := clause.ClassifyFunction(cl)
	got := c.ClassifyFunction(cl)
	if got != want {
		t.Fatalf("ClassifyFunction = %v, want %v", got, want)
	}
	if c.Len() != 1 {
		t.Fatalf("Len = %d, want 1", c.Len())
	}

	// second lookup must hit the cache and agree
	if got2 := c.ClassifyFunction(cl); got2 != want {
		t.Fatalf("second ClassifyFunction = %v, want %v", got2, want)
	}
	if c.Len() != 1 {
		t.Fatalf("Len after repeat lookup = %d, want 1", c.Len())
	}
}

func TestClassify_NilCacheFallsBackToPureFunction(t *testing.T) {
	cl := clause.Clause{Heading: "Governing Law", Text: "This Agreement shall be governed by the laws of the UAE."}
	want := clause.ClassifyFunction(cl)
	if got := Classify(nil, cl); got != want {
		t.Fatalf("Classify(nil, ...) = %v, want %v", got, want)
	}
}

func TestClassify_WithCacheMemoizes(t *testing.T) {
	c := NewUnbounded()
	defer c.Close()

	cl := clause.Clause{Heading: "Payment", Text: "Payment shall be made within 30 days."}
	want := clause.ClassifyFunction(cl)
	if got := Classify(c, cl); got != want {
		t.Fatalf("Classify(c, ...) = %v, want %v", got, want)
	}
	if c.Len() != 1 {
		t.Fatalf("Len = %d, want 1 (Classify should have gone through the cache)", c.Len())
	}
}

func TestCache_DistinctTextsDistinctEntries(t *testing.T) {
	c := New(time.Minute, time.Minute)
	defer c.Close()

	a := clause.Clause{Text: "Payment shall be made within 30 days."}
	b := clause.Clause{Text: "Payment shall be made within 60 days."}

	c.ClassifyFunction(a)
	c.ClassifyFunction(b)
	if c.Len() != 2 {
		t.Fatalf("Len = %d, want 2", c.Len())
	}
}
