package store

import (
	"fmt"
	"testing"
	"time"

	"riskgate/internal/policy"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func record(id string, ts time.Time, d policy.Decision) DecisionRecord {
	return DecisionRecord{
		RequestID:   id,
		Timestamp:   ts,
		Probability: 0.7,
		Decision:    d,
		Uncertainty: 0.6,
		CostRisk:    60,
	}
}

func TestStoreAndRangeQuery(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	base := time.Now().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		rec := record(fmt.Sprintf("req-%d", i), base.Add(time.Duration(i)*time.Minute), policy.Accept)
		if err := s.StoreDecision(rec); err != nil {
			t.Fatalf("StoreDecision failed: %v", err)
		}
	}

	got, err := s.GetDecisionsInRange(base.Add(time.Minute), base.Add(3*time.Minute))
	if err != nil {
		t.Fatalf("GetDecisionsInRange failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("range returned %d records, want 3 (inclusive bounds)", len(got))
	}
	if got[0].RequestID != "req-1" || got[2].RequestID != "req-3" {
		t.Errorf("range order = %s..%s, want req-1..req-3", got[0].RequestID, got[2].RequestID)
	}
}

func TestStoreRoundTripFields(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ts := time.Now()
	want := record("req-x", ts, policy.Abstain)
	if err := s.StoreDecision(want); err != nil {
		t.Fatalf("StoreDecision failed: %v", err)
	}

	got, err := s.GetDecisionsInRange(ts.Add(-time.Second), ts.Add(time.Second))
	if err != nil {
		t.Fatalf("GetDecisionsInRange failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d records, want 1", len(got))
	}
	r := got[0]
	if r.RequestID != "req-x" || r.Decision != policy.Abstain ||
		r.Probability != 0.7 || r.Uncertainty != 0.6 || r.CostRisk != 60 {
		t.Errorf("record fields not preserved: %+v", r)
	}
}

func TestRecentDecisionsNewestFirst(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	base := time.Now().Add(-time.Hour)
	for i := 0; i < 10; i++ {
		rec := record(fmt.Sprintf("req-%d", i), base.Add(time.Duration(i)*time.Second), policy.Reject)
		if err := s.StoreDecision(rec); err != nil {
			t.Fatalf("StoreDecision failed: %v", err)
		}
	}

	got, err := s.RecentDecisions(3)
	if err != nil {
		t.Fatalf("RecentDecisions failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d records, want 3", len(got))
	}
	if got[0].RequestID != "req-9" || got[1].RequestID != "req-8" || got[2].RequestID != "req-7" {
		t.Errorf("order = %s %s %s, want newest first", got[0].RequestID, got[1].RequestID, got[2].RequestID)
	}
}

func TestRecentDecisionsEmpty(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	got, err := s.RecentDecisions(5)
	if err != nil {
		t.Fatalf("RecentDecisions failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %d records from empty store, want 0", len(got))
	}
}
