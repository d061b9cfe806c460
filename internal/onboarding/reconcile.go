package onboarding

import (
	"github.com/hoff1997/CodexMyBudgetMate-sub000/pkg/envelope"
)

const defaultCorruptionThresholdStep = 4

// Source names which copy won the reconciliation.
type Source string

const (
	SourceRemote Source = "remote"
	SourceLocal  Source = "local"
	SourceNone   Source = "none"
)

// Heuristics tunes the draft corruption check.
type Heuristics struct {
	// CorruptionThresholdStep is the first onboarding step by which a
	// draft must contain at least one non-zero monetary amount.
	CorruptionThresholdStep int
}

func (heuristics *Heuristics) applyDefaults() {
	if heuristics.CorruptionThresholdStep <= 0 {
		heuristics.CorruptionThresholdStep = defaultCorruptionThresholdStep
	}
}

// Outcome is the reconciled starting state handed to the consistency
// manager. Warnings surface reconciliation ambiguity without blocking.
type Outcome struct {
	Draft    envelope.Draft
	Source   Source
	Warnings []string
}

// Reconcile chooses between a locally cached draft and the remotely
// persisted one before the session becomes authoritative.
//
// Rules, in order: a failed remote fetch falls back to the local copy; a
// corrupted remote draft yields to a healthy local one; with both healthy,
// local wins only when it is strictly more populated and strictly newer;
// the server is the tie-break winner everywhere else.
func Reconcile(localBackup *envelope.Draft, remoteDraft *envelope.Draft, remoteErr error, heuristics Heuristics) Outcome {
	heuristics.applyDefaults()

	if remoteErr != nil {
		if localBackup != nil {
			return Outcome{Draft: *localBackup, Source: SourceLocal, Warnings: []string{"remote draft unavailable, recovered from local backup"}}
		}
		return Outcome{Source: SourceNone, Warnings: []string{"remote draft unavailable and no local backup exists"}}
	}

	if remoteDraft == nil {
		if localBackup != nil {
			return Outcome{Draft: *localBackup, Source: SourceLocal}
		}
		return Outcome{Source: SourceNone}
	}

	if corrupted(*remoteDraft, heuristics) {
		if localBackup != nil && !corrupted(*localBackup, heuristics) {
			return Outcome{Draft: *localBackup, Source: SourceLocal, Warnings: []string{"remote draft looks corrupted, recovered from local backup"}}
		}
		// Both copies fail the heuristic: proceed with the remote copy
		// rather than blocking, but say so.
		return Outcome{Draft: *remoteDraft, Source: SourceRemote, Warnings: []string{"remote and local drafts both look corrupted, proceeding with remote"}}
	}

	if localBackup != nil && !corrupted(*localBackup, heuristics) {
		morePopulated := len(localBackup.Snapshot.Envelopes) > len(remoteDraft.Snapshot.Envelopes)
		strictlyNewer := localBackup.UpdatedAt.After(remoteDraft.UpdatedAt)
		if morePopulated && strictlyNewer {
			return Outcome{Draft: *localBackup, Source: SourceLocal}
		}
	}
	return Outcome{Draft: *remoteDraft, Source: SourceRemote}
}

// corrupted reports a draft claiming progress past the threshold step while
// carrying zero non-zero monetary amounts anywhere.
func corrupted(draft envelope.Draft, heuristics Heuristics) bool {
	if draft.HighestStep < heuristics.CorruptionThresholdStep {
		return false
	}
	return !hasMonetaryAmounts(draft.Snapshot)
}

func hasMonetaryAmounts(snapshot envelope.Snapshot) bool {
	for _, record := range snapshot.Envelopes {
		if record.TargetAmount.IsPositive() || !record.CurrentBalance.IsZero() {
			return true
		}
	}
	for _, source := range snapshot.IncomeSources {
		if source.Amount.IsPositive() {
			return true
		}
	}
	for _, allocations := range snapshot.Allocations {
		for _, amount := range allocations {
			if amount.IsPositive() {
				return true
			}
		}
	}
	return false
}
