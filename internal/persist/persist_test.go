package persist

import (
	"context"
	"testing"

	"github.com/contractlens/conflictengine/internal/claim"
	"github.com/contractlens/conflictengine/internal/conflict"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewStore(StoreConfig{DBPath: ":memory:"})
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestNewStore_CreatesSchema(t *testing.T) {
	s := newTestStore(t)
	tables := []string{"runs", "claims", "conflicts"}
	for _, table := range tables {
		var name string
		err := s.db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("table %q not found: %v", table, err)
		}
	}
}

func TestSaveClaims_RoundTrips(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if err := s.RecordRun(ctx, "run-1", "hash-1", "claim_based"); err != nil {
		t.Fatalf("RecordRun: %v", err)
	}
	claims := []claim.Claim{
		{ClauseID: "c1", Subject: "Company", Action: "pay", Modality: claim.ModalityShall,
			ValueType: claim.ValueTypeDuration, NormalizedValue: "30 days", Topic: claim.TopicPayment,
			SourceQuote: "within 30 days", OrderIndex: 0, SeqInClause: 0},
	}
	if err := s.SaveClaims(ctx, "run-1", claims); err != nil {
		t.Fatalf("SaveClaims: %v", err)
	}

	var count int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM claims WHERE run_id = ?", "run-1").Scan(&count); err != nil {
		t.Fatalf("counting claims: %v", err)
	}
	if count != 1 {
		t.Fatalf("count = %d, want 1", count)
	}
}

func TestSaveConflicts_AndLookupCache(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if err := s.RecordRun(ctx, "run-1", "hash-abc", "hybrid"); err != nil {
		t.Fatalf("RecordRun: %v", err)
	}

	conflicts := []conflict.Conflict{
		{
			LeftClauseID: "c1", RightClauseID: "c2",
			Classification: conflict.ClassificationTrueConflict,
			ConflictType:   "PaymentTiming",
			Severity:       conflict.SeverityHigh,
			Materiality:    conflict.MaterialityHigh,
			Confidence:     0.92,
			Summary:        "differing payment windows",
			LeftEvidence:   conflict.Evidence{Quote: "30 days", StartChar: 0, EndChar: 7},
			RightEvidence:  conflict.Evidence{Quote: "60 days", StartChar: 0, EndChar: 7},
		},
	}
	if err := s.SaveConflicts(ctx, "run-1", conflicts); err != nil {
		t.Fatalf("SaveConflicts: %v", err)
	}

	cached, ok, err := s.LookupCachedConflicts(ctx, "hash-abc")
	if err != nil {
		t.Fatalf("LookupCachedConflicts: %v", err)
	}
	if !ok {
		t.Fatalf("expected cache hit")
	}
	if len(cached) != 1 {
		t.Fatalf("cached = %v, want 1 entry", cached)
	}
	if cached[0].LeftEvidence.Quote != "30 days" {
		t.Fatalf("LeftEvidence.Quote = %q", cached[0].LeftEvidence.Quote)
	}
}

func TestLookupCachedConflicts_MissOnUnknownHash(t *testing.T) {
	s := newTestStore(t)
	_, ok, err := s.LookupCachedConflicts(context.Background(), "nonexistent")
	if err != nil {
		t.Fatalf("LookupCachedConflicts: %v", err)
	}
	if ok {
		t.Fatalf("expected cache miss")
	}
}

func TestSaveConflicts_DedupesPairPerRun(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if err := s.RecordRun(ctx, "run-1", "hash-1", "hybrid"); err != nil {
		t.Fatalf("RecordRun: %v", err)
	}
	c := conflict.Conflict{
		LeftClauseID: "c1", RightClauseID: "c2",
		Classification: conflict.ClassificationTrueConflict,
		Severity:       conflict.SeverityHigh,
		Materiality:    conflict.MaterialityHigh,
		Confidence:     0.9,
	}
	if err := s.SaveConflicts(ctx, "run-1", []conflict.Conflict{c}); err != nil {
		t.Fatalf("SaveConflicts (1st): %v", err)
	}
	if err := s.SaveConflicts(ctx, "run-1", []conflict.Conflict{c}); err != nil {
		t.Fatalf("SaveConflicts (2nd): %v", err)
	}

	var count int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM conflicts WHERE run_id = ?", "run-1").Scan(&count); err != nil {
		t.Fatalf("counting conflicts: %v", err)
	}
	if count != 1 {
		t.Fatalf("count = %d, want 1 (re-save should be ignored)", count)
	}
}
