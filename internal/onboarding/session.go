package onboarding

import (
	"context"

	"go.uber.org/zap"

	"github.com/hoff1997/CodexMyBudgetMate-sub000/internal/apiclient"
	"github.com/hoff1997/CodexMyBudgetMate-sub000/pkg/autosave"
	"github.com/hoff1997/CodexMyBudgetMate-sub000/pkg/envelope"
)

// StartSession reconciles draft copies, loads the initial snapshot, and
// hands ownership to a consistency manager. The reconciled state becomes
// the manager's SavedBaseline.
func StartSession(ctx context.Context, client *apiclient.Client, cache *FileDraftCache, backup autosave.Backup, logger *zap.Logger, heuristics Heuristics, managerConfig autosave.Config) (*autosave.Manager, Outcome, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var localDraft *envelope.Draft
	if cache != nil {
		cached, found, err := cache.Read()
		if err != nil {
			logger.Warn("draft cache read failed", zap.Error(err))
		} else if found {
			localDraft = cached
		}
	}

	remoteDraft, remoteErr := client.FetchDraft(ctx)
	outcome := Reconcile(localDraft, remoteDraft, remoteErr, heuristics)
	for _, warning := range outcome.Warnings {
		logger.Warn("draft reconciliation", zap.String("detail", warning))
	}

	snapshot := outcome.Draft.Snapshot
	if outcome.Source == SourceNone {
		// No draft anywhere: this is an established user, load the
		// persisted budget directly.
		loaded, err := client.LoadSnapshot(ctx)
		if err != nil {
			return nil, outcome, err
		}
		snapshot = loaded
	}

	manager, err := autosave.NewManager(client, backup, snapshot, logger, managerConfig)
	if err != nil {
		return nil, outcome, err
	}
	return manager, outcome, nil
}
