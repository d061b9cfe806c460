package onboarding

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hoff1997/CodexMyBudgetMate-sub000/pkg/envelope"
)

func healthyDraft(step int, envelopeCount int, updatedAt time.Time) *envelope.Draft {
	envelopes := make([]envelope.Envelope, 0, envelopeCount)
	for index := 0; index < envelopeCount; index++ {
		envelopes = append(envelopes, envelope.Envelope{
			ID:           envelope.EnvelopeID(string(rune('a' + index))),
			Name:         "Envelope",
			Subtype:      envelope.SubtypeBill,
			TargetAmount: decimal.RequireFromString("100"),
		})
	}
	return &envelope.Draft{
		CurrentStep: step,
		HighestStep: step,
		UpdatedAt:   updatedAt,
		Snapshot:    envelope.Snapshot{Envelopes: envelopes},
	}
}

func corruptedDraft(step int, updatedAt time.Time) *envelope.Draft {
	return &envelope.Draft{
		CurrentStep: step,
		HighestStep: step,
		UpdatedAt:   updatedAt,
		Snapshot: envelope.Snapshot{
			Envelopes: []envelope.Envelope{
				{ID: "a", Name: "Envelope", Subtype: envelope.SubtypeBill},
			},
		},
	}
}

func TestReconcileRemoteErrorFallsBackToLocal(t *testing.T) {
	t.Parallel()
	base := time.Date(2025, time.May, 1, 10, 0, 0, 0, time.UTC)
	local := healthyDraft(3, 2, base)

	outcome := Reconcile(local, nil, errors.New("gateway timeout"), Heuristics{})
	if outcome.Source != SourceLocal {
		t.Fatalf("expected local fallback, got %s", outcome.Source)
	}
	if len(outcome.Warnings) == 0 {
		t.Fatalf("falling back on a remote error must warn")
	}

	outcome = Reconcile(nil, nil, errors.New("gateway timeout"), Heuristics{})
	if outcome.Source != SourceNone {
		t.Fatalf("expected no draft when both copies are missing, got %s", outcome.Source)
	}
}

func TestReconcileMissingRemoteUsesLocalSilently(t *testing.T) {
	t.Parallel()
	base := time.Date(2025, time.May, 1, 10, 0, 0, 0, time.UTC)
	local := healthyDraft(3, 2, base)

	outcome := Reconcile(local, nil, nil, Heuristics{})
	if outcome.Source != SourceLocal || len(outcome.Warnings) != 0 {
		t.Fatalf("a clean 404 recovery should not warn, got %+v", outcome)
	}

	outcome = Reconcile(nil, nil, nil, Heuristics{})
	if outcome.Source != SourceNone || len(outcome.Warnings) != 0 {
		t.Fatalf("no drafts anywhere is the established-user path, got %+v", outcome)
	}
}

func TestReconcileCorruptedRemoteYieldsToHealthyLocal(t *testing.T) {
	t.Parallel()
	base := time.Date(2025, time.May, 1, 10, 0, 0, 0, time.UTC)
	remote := corruptedDraft(5, base)
	local := healthyDraft(5, 3, base.Add(-time.Hour))

	outcome := Reconcile(local, remote, nil, Heuristics{})
	if outcome.Source != SourceLocal {
		t.Fatalf("healthy local should beat corrupted remote, got %s", outcome.Source)
	}
	if len(outcome.Warnings) == 0 {
		t.Fatalf("recovering from corruption must warn")
	}
}

func TestReconcileBothCorruptedKeepsRemote(t *testing.T) {
	t.Parallel()
	base := time.Date(2025, time.May, 1, 10, 0, 0, 0, time.UTC)
	outcome := Reconcile(corruptedDraft(6, base), corruptedDraft(5, base), nil, Heuristics{})
	if outcome.Source != SourceRemote {
		t.Fatalf("remote is the tie-break winner, got %s", outcome.Source)
	}
	if len(outcome.Warnings) == 0 {
		t.Fatalf("proceeding with a suspect draft must warn")
	}
}

func TestReconcileLocalWinsOnlyWhenMorePopulatedAndNewer(t *testing.T) {
	t.Parallel()
	base := time.Date(2025, time.May, 1, 10, 0, 0, 0, time.UTC)
	cases := []struct {
		name   string
		local  *envelope.Draft
		remote *envelope.Draft
		want   Source
	}{
		{
			name:   "more populated and newer",
			local:  healthyDraft(4, 5, base.Add(time.Minute)),
			remote: healthyDraft(4, 3, base),
			want:   SourceLocal,
		},
		{
			name:   "more populated but older",
			local:  healthyDraft(4, 5, base.Add(-time.Minute)),
			remote: healthyDraft(4, 3, base),
			want:   SourceRemote,
		},
		{
			name:   "newer but equally populated",
			local:  healthyDraft(4, 3, base.Add(time.Minute)),
			remote: healthyDraft(4, 3, base),
			want:   SourceRemote,
		},
		{
			name:   "identical timestamps",
			local:  healthyDraft(4, 5, base),
			remote: healthyDraft(4, 3, base),
			want:   SourceRemote,
		},
		{
			name:   "corrupted local never wins",
			local:  corruptedDraft(6, base.Add(time.Hour)),
			remote: healthyDraft(4, 1, base),
			want:   SourceRemote,
		},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			outcome := Reconcile(tc.local, tc.remote, nil, Heuristics{})
			if outcome.Source != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, outcome.Source)
			}
		})
	}
}

func TestCorruptionHeuristic(t *testing.T) {
	t.Parallel()
	base := time.Date(2025, time.May, 1, 10, 0, 0, 0, time.UTC)
	heuristics := Heuristics{}
	heuristics.applyDefaults()

	// Early steps with no amounts are a normal half-finished setup.
	early := corruptedDraft(2, base)
	if corrupted(*early, heuristics) {
		t.Fatalf("a draft below the threshold step should never look corrupted")
	}

	// Past the threshold, any non-zero amount clears the draft.
	withIncome := corruptedDraft(5, base)
	withIncome.Snapshot.IncomeSources = []envelope.IncomeSource{
		{ID: "src-a", Amount: decimal.RequireFromString("1500"), Active: true},
	}
	if corrupted(*withIncome, heuristics) {
		t.Fatalf("a draft with income amounts is healthy")
	}

	withAllocation := corruptedDraft(5, base)
	withAllocation.Snapshot.Allocations = map[envelope.EnvelopeID]envelope.AllocationMap{
		"a": {"src-a": decimal.RequireFromString("0.50")},
	}
	if corrupted(*withAllocation, heuristics) {
		t.Fatalf("a draft with allocation amounts is healthy")
	}

	if !corrupted(*corruptedDraft(5, base), heuristics) {
		t.Fatalf("step 5 with zero amounts everywhere should trip the heuristic")
	}
}

func TestFileDraftCacheRoundTrip(t *testing.T) {
	t.Parallel()
	cache, err := NewFileDraftCache(filepath.Join(t.TempDir(), "drafts", "draft.json"))
	if err != nil {
		t.Fatalf("cache init: %v", err)
	}

	if _, found, err := cache.Read(); err != nil || found {
		t.Fatalf("expected clean miss before first write, found=%v err=%v", found, err)
	}

	draft := healthyDraft(3, 2, time.Date(2025, time.May, 1, 10, 0, 0, 0, time.UTC))
	if err := cache.Write(*draft); err != nil {
		t.Fatalf("cache write: %v", err)
	}
	restored, found, err := cache.Read()
	if err != nil || !found {
		t.Fatalf("cache read: found=%v err=%v", found, err)
	}
	if restored.CurrentStep != draft.CurrentStep || len(restored.Snapshot.Envelopes) != 2 {
		t.Fatalf("unexpected restored draft: %+v", restored)
	}

	if err := cache.Delete(); err != nil {
		t.Fatalf("cache delete: %v", err)
	}
	if _, found, _ := cache.Read(); found {
		t.Fatalf("cache should be empty after delete")
	}
	// Deleting an already-empty cache is not an error.
	if err := cache.Delete(); err != nil {
		t.Fatalf("double delete: %v", err)
	}
}
