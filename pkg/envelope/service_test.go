package envelope

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

// memoryStore is a single-user in-memory Store for service tests.
type memoryStore struct {
	envelopes   []Envelope
	sources     []IncomeSource
	allocations map[EnvelopeID]AllocationMap
	draft       *Draft
	nextID      int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{allocations: map[EnvelopeID]AllocationMap{}}
}

func (store *memoryStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error {
	return fn(ctx, store)
}

func (store *memoryStore) ListEnvelopes(ctx context.Context, userID UserID) ([]Envelope, error) {
	return append([]Envelope(nil), store.envelopes...), nil
}

func (store *memoryStore) GetEnvelope(ctx context.Context, userID UserID, envelopeID EnvelopeID) (Envelope, error) {
	for _, record := range store.envelopes {
		if record.ID == envelopeID {
			return record, nil
		}
	}
	return Envelope{}, WrapError("memory", string(envelopeID), "get", ErrUnknownEnvelope)
}

func (store *memoryStore) CreateEnvelope(ctx context.Context, userID UserID, record Envelope) (Envelope, error) {
	store.nextID++
	record.ID = EnvelopeID(time.Now().Format("20060102") + "-" + string(rune('a'+store.nextID)))
	store.envelopes = append(store.envelopes, record)
	return record, nil
}

func (store *memoryStore) UpdateEnvelopeFields(ctx context.Context, userID UserID, envelopeID EnvelopeID, fields map[string]any) error {
	for index := range store.envelopes {
		if store.envelopes[index].ID == envelopeID {
			if amount, ok := fields[FieldTargetAmount].(decimal.Decimal); ok {
				store.envelopes[index].TargetAmount = amount
			}
			if name, ok := fields[FieldName].(string); ok {
				store.envelopes[index].Name = name
			}
			return nil
		}
	}
	return WrapError("memory", string(envelopeID), "update", ErrUnknownEnvelope)
}

func (store *memoryStore) ArchiveEnvelope(ctx context.Context, userID UserID, envelopeID EnvelopeID) error {
	for index := range store.envelopes {
		if store.envelopes[index].ID == envelopeID {
			store.envelopes[index].Archived = true
			return nil
		}
	}
	return WrapError("memory", string(envelopeID), "archive", ErrUnknownEnvelope)
}

func (store *memoryStore) ListIncomeSources(ctx context.Context, userID UserID) ([]IncomeSource, error) {
	return append([]IncomeSource(nil), store.sources...), nil
}

func (store *memoryStore) CreateIncomeSource(ctx context.Context, userID UserID, record IncomeSource) (IncomeSource, error) {
	store.nextID++
	record.ID = IncomeSourceID(time.Now().Format("20060102") + "-src-" + string(rune('a'+store.nextID)))
	store.sources = append(store.sources, record)
	return record, nil
}

func (store *memoryStore) UpdateIncomeSourceFields(ctx context.Context, userID UserID, sourceID IncomeSourceID, fields map[string]any) error {
	for index := range store.sources {
		if store.sources[index].ID == sourceID {
			if amount, ok := fields[FieldAmount].(decimal.Decimal); ok {
				store.sources[index].Amount = amount
			}
			return nil
		}
	}
	return WrapError("memory", string(sourceID), "update", ErrUnknownIncomeSource)
}

func (store *memoryStore) ListAllocations(ctx context.Context, userID UserID) (map[EnvelopeID]AllocationMap, error) {
	copied := make(map[EnvelopeID]AllocationMap, len(store.allocations))
	for envelopeID, allocations := range store.allocations {
		copied[envelopeID] = allocations.Clone()
	}
	return copied, nil
}

func (store *memoryStore) ReplaceAllocations(ctx context.Context, userID UserID, envelopeID EnvelopeID, allocations AllocationMap) error {
	store.allocations[envelopeID] = allocations.Clone()
	return nil
}

func (store *memoryStore) GetDraft(ctx context.Context, userID UserID) (*Draft, error) {
	if store.draft == nil {
		return nil, nil
	}
	copied := *store.draft
	return &copied, nil
}

func (store *memoryStore) SaveDraft(ctx context.Context, userID UserID, draft Draft) error {
	store.draft = &draft
	return nil
}

func (store *memoryStore) DeleteDraft(ctx context.Context, userID UserID) error {
	store.draft = nil
	return nil
}

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func TestNewServiceRejectsMissingDependencies(t *testing.T) {
	t.Parallel()
	if _, err := NewService(nil, fixedClock(time.Now())); !errors.Is(err, ErrInvalidServiceConfig) {
		t.Fatalf("expected invalid config for nil store, got %v", err)
	}
	if _, err := NewService(newMemoryStore(), nil); !errors.Is(err, ErrInvalidServiceConfig) {
		t.Fatalf("expected invalid config for nil clock, got %v", err)
	}
}

func TestServiceCreateEnvelopeNormalizesAmounts(t *testing.T) {
	t.Parallel()
	store := newMemoryStore()
	service, err := NewService(store, fixedClock(time.Now()))
	if err != nil {
		t.Fatalf("service init: %v", err)
	}

	created, err := service.CreateEnvelope(context.Background(), "user-1", Envelope{
		Name:             "Rent",
		Subtype:          SubtypeBill,
		Priority:         PriorityEssential,
		TargetAmount:     decimal.RequireFromString("-120.005"),
		BillingFrequency: Frequency{Cadence: CadenceMonthly},
	})
	if err != nil {
		t.Fatalf("create envelope: %v", err)
	}
	if !created.TargetAmount.IsZero() {
		t.Fatalf("negative target should normalize to zero, got %s", created.TargetAmount)
	}
	if created.ID == "" {
		t.Fatalf("created envelope must carry an id")
	}
}

func TestServicePatchEnvelopeRejectsUnknownField(t *testing.T) {
	t.Parallel()
	store := newMemoryStore()
	service, err := NewService(store, fixedClock(time.Now()))
	if err != nil {
		t.Fatalf("service init: %v", err)
	}
	patchErr := service.PatchEnvelope(context.Background(), "user-1", "env-1", map[string]any{"colour": "red"})
	if !errors.Is(patchErr, ErrInvalidField) {
		t.Fatalf("expected ErrInvalidField, got %v", patchErr)
	}
}

func TestServiceReplaceAllocationsRoundsAndDrops(t *testing.T) {
	t.Parallel()
	store := newMemoryStore()
	service, err := NewService(store, fixedClock(time.Now()))
	if err != nil {
		t.Fatalf("service init: %v", err)
	}
	created, err := service.CreateEnvelope(context.Background(), "user-1", Envelope{Name: "Power", Subtype: SubtypeBill, Priority: PriorityImportant})
	if err != nil {
		t.Fatalf("create envelope: %v", err)
	}

	err = service.ReplaceAllocations(context.Background(), "user-1", created.ID, AllocationMap{
		"src-a": decimal.RequireFromString("100.005"),
		"src-b": decimal.RequireFromString("-5"),
		"src-c": decimal.Zero,
	})
	if err != nil {
		t.Fatalf("replace allocations: %v", err)
	}

	stored := store.allocations[created.ID]
	if len(stored) != 1 {
		t.Fatalf("non-positive entries should be dropped, got %v", stored)
	}
	if !stored["src-a"].Equal(decimal.RequireFromString("100.01")) {
		t.Fatalf("amount should round to cents, got %s", stored["src-a"])
	}
}

func TestServiceReplaceAllocationsUnknownEnvelope(t *testing.T) {
	t.Parallel()
	service, err := NewService(newMemoryStore(), fixedClock(time.Now()))
	if err != nil {
		t.Fatalf("service init: %v", err)
	}
	replaceErr := service.ReplaceAllocations(context.Background(), "user-1", "env-missing", AllocationMap{
		"src-a": decimal.RequireFromString("10"),
	})
	if !errors.Is(replaceErr, ErrUnknownEnvelope) {
		t.Fatalf("expected ErrUnknownEnvelope, got %v", replaceErr)
	}
}

func TestServiceDraftLifecycle(t *testing.T) {
	t.Parallel()
	saveTime := time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC)
	store := newMemoryStore()
	service, err := NewService(store, fixedClock(saveTime))
	if err != nil {
		t.Fatalf("service init: %v", err)
	}

	if _, loadErr := service.LoadDraft(context.Background(), "user-1"); !errors.Is(loadErr, ErrDraftNotFound) {
		t.Fatalf("expected ErrDraftNotFound before save, got %v", loadErr)
	}

	draft := Draft{CurrentStep: 5, HighestStep: 3, UpdatedAt: saveTime.Add(-time.Hour)}
	if saveErr := service.SaveDraft(context.Background(), "user-1", draft); saveErr != nil {
		t.Fatalf("save draft: %v", saveErr)
	}

	loaded, loadErr := service.LoadDraft(context.Background(), "user-1")
	if loadErr != nil {
		t.Fatalf("load draft: %v", loadErr)
	}
	if !loaded.UpdatedAt.Equal(saveTime) {
		t.Fatalf("save should stamp the server clock, got %v", loaded.UpdatedAt)
	}
	if loaded.HighestStep != 5 {
		t.Fatalf("highest step should track current step, got %d", loaded.HighestStep)
	}

	if deleteErr := service.DeleteDraft(context.Background(), "user-1"); deleteErr != nil {
		t.Fatalf("delete draft: %v", deleteErr)
	}
	if _, loadErr := service.LoadDraft(context.Background(), "user-1"); !errors.Is(loadErr, ErrDraftNotFound) {
		t.Fatalf("expected ErrDraftNotFound after delete, got %v", loadErr)
	}
}

func TestNormalizeEnvelopeFields(t *testing.T) {
	t.Parallel()
	normalized, err := NormalizeEnvelopeFields(map[string]any{
		FieldName:         "Car insurance",
		FieldTargetAmount: "480.509",
		FieldSubtype:      "bill",
		FieldPriority:     "essential",
		FieldCadence:      "quarterly",
		FieldDueDate:      "2025-07-01",
	})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if !normalized[FieldTargetAmount].(decimal.Decimal).Equal(decimal.RequireFromString("480.51")) {
		t.Fatalf("target amount should round to cents, got %v", normalized[FieldTargetAmount])
	}
	dueDate, ok := normalized[FieldDueDate].(*time.Time)
	if !ok || dueDate == nil || dueDate.Format("2006-01-02") != "2025-07-01" {
		t.Fatalf("due date should parse to a time pointer, got %v", normalized[FieldDueDate])
	}

	if _, err := NormalizeEnvelopeFields(map[string]any{FieldSubtype: "mystery"}); !errors.Is(err, ErrInvalidSubtype) {
		t.Fatalf("expected ErrInvalidSubtype, got %v", err)
	}
	if _, err := NormalizeEnvelopeFields(map[string]any{FieldTargetAmount: "not-money"}); !errors.Is(err, ErrInvalidField) {
		t.Fatalf("expected ErrInvalidField for malformed amount, got %v", err)
	}

	negative, err := NormalizeEnvelopeFields(map[string]any{FieldTargetAmount: "-42"})
	if err != nil {
		t.Fatalf("normalize negative: %v", err)
	}
	if !negative[FieldTargetAmount].(decimal.Decimal).IsZero() {
		t.Fatalf("negative amount should clamp to zero, got %v", negative[FieldTargetAmount])
	}
}

func TestNormalizeIncomeSourceFields(t *testing.T) {
	t.Parallel()
	normalized, err := NormalizeIncomeSourceFields(map[string]any{
		FieldAmount:  float64(1250.555),
		FieldCadence: "fortnightly",
		FieldActive:  true,
	})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if !normalized[FieldAmount].(decimal.Decimal).Equal(decimal.RequireFromString("1250.56")) {
		t.Fatalf("amount should round to cents, got %v", normalized[FieldAmount])
	}
	if _, err := NormalizeIncomeSourceFields(map[string]any{FieldActive: "yes"}); !errors.Is(err, ErrInvalidField) {
		t.Fatalf("expected ErrInvalidField for non-boolean active, got %v", err)
	}
}
