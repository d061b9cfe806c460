package envelope

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Service contains the domain logic over a Store. It is the server-side
// system of record; the session-side consistency manager (pkg/autosave)
// talks to it through the HTTP API.
type Service struct {
	store  Store
	nowFn  func() time.Time
	logger OperationLogger
}

// NewService wires a Service.
func NewService(store Store, now func() time.Time, options ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	service := &Service{store: store, nowFn: now}
	for _, option := range options {
		if option != nil {
			option(service)
		}
	}
	return service, nil
}

// Snapshot loads the full budget state for one user.
func (service *Service) Snapshot(ctx context.Context, userID UserID) (Snapshot, error) {
	var snapshot Snapshot
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		envelopes, err := transactionStore.ListEnvelopes(ctx, userID)
		if err != nil {
			return err
		}
		sources, err := transactionStore.ListIncomeSources(ctx, userID)
		if err != nil {
			return err
		}
		allocations, err := transactionStore.ListAllocations(ctx, userID)
		if err != nil {
			return err
		}
		snapshot = Snapshot{Envelopes: envelopes, IncomeSources: sources, Allocations: allocations}
		return nil
	})
	service.logOperation(ctx, OperationLog{Operation: operationSnapshot, UserID: userID, Error: operationError})
	return snapshot, operationError
}

// CreateEnvelope validates and stores a new envelope.
func (service *Service) CreateEnvelope(ctx context.Context, userID UserID, record Envelope) (Envelope, error) {
	record.TargetAmount = NormalizeAmount(record.TargetAmount).Round(2)
	record.CurrentBalance = record.CurrentBalance.Round(2)
	created, operationError := service.store.CreateEnvelope(ctx, userID, record)
	service.logOperation(ctx, OperationLog{
		Operation:  operationCreateEnvelope,
		UserID:     userID,
		EnvelopeID: created.ID,
		Error:      operationError,
	})
	return created, operationError
}

// PatchEnvelope applies a partial field update. Invalid monetary input is
// normalized to zero rather than rejected; unknown keys are rejected.
func (service *Service) PatchEnvelope(ctx context.Context, userID UserID, envelopeID EnvelopeID, fields map[string]any) error {
	normalized, err := NormalizeEnvelopeFields(fields)
	if err == nil {
		err = service.store.UpdateEnvelopeFields(ctx, userID, envelopeID, normalized)
	}
	service.logOperation(ctx, OperationLog{
		Operation:  operationPatchEnvelope,
		UserID:     userID,
		EnvelopeID: envelopeID,
		Error:      err,
	})
	return err
}

// ArchiveEnvelope soft-removes an envelope. Archived envelopes drop out of
// allocation but their history survives.
func (service *Service) ArchiveEnvelope(ctx context.Context, userID UserID, envelopeID EnvelopeID) error {
	operationError := service.store.ArchiveEnvelope(ctx, userID, envelopeID)
	service.logOperation(ctx, OperationLog{
		Operation:  operationArchiveEnvelope,
		UserID:     userID,
		EnvelopeID: envelopeID,
		Error:      operationError,
	})
	return operationError
}

// CreateIncomeSource validates and stores a new income source.
func (service *Service) CreateIncomeSource(ctx context.Context, userID UserID, record IncomeSource) (IncomeSource, error) {
	record.Amount = NormalizeAmount(record.Amount).Round(2)
	created, operationError := service.store.CreateIncomeSource(ctx, userID, record)
	service.logOperation(ctx, OperationLog{
		Operation: operationCreateIncomeSource,
		UserID:    userID,
		SourceID:  created.ID,
		Error:     operationError,
	})
	return created, operationError
}

// PatchIncomeSource applies a partial field update to an income source.
func (service *Service) PatchIncomeSource(ctx context.Context, userID UserID, sourceID IncomeSourceID, fields map[string]any) error {
	normalized, err := NormalizeIncomeSourceFields(fields)
	if err == nil {
		err = service.store.UpdateIncomeSourceFields(ctx, userID, sourceID, normalized)
	}
	service.logOperation(ctx, OperationLog{
		Operation: operationPatchIncomeSource,
		UserID:    userID,
		SourceID:  sourceID,
		Error:     err,
	})
	return err
}

// ReplaceAllocations swaps the full allocation set for one envelope. The
// payload is a replacement, not a delta: callers send every entry they want
// kept. Amounts are rounded to cents; non-positive entries are dropped.
func (service *Service) ReplaceAllocations(ctx context.Context, userID UserID, envelopeID EnvelopeID, allocations AllocationMap) error {
	cleaned := make(AllocationMap, len(allocations))
	for sourceID, amount := range allocations {
		rounded := amount.Round(2)
		if rounded.IsPositive() {
			cleaned[sourceID] = rounded
		}
	}
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		if _, err := transactionStore.GetEnvelope(ctx, userID, envelopeID); err != nil {
			return err
		}
		return transactionStore.ReplaceAllocations(ctx, userID, envelopeID, cleaned)
	})
	service.logOperation(ctx, OperationLog{
		Operation:  operationReplaceAllocations,
		UserID:     userID,
		EnvelopeID: envelopeID,
		Error:      operationError,
	})
	return operationError
}

// LoadDraft returns the stored onboarding draft, or ErrDraftNotFound.
func (service *Service) LoadDraft(ctx context.Context, userID UserID) (Draft, error) {
	draft, err := service.store.GetDraft(ctx, userID)
	if err != nil {
		return Draft{}, err
	}
	if draft == nil {
		return Draft{}, WrapError("service", "draft", "get", ErrDraftNotFound)
	}
	return *draft, nil
}

// SaveDraft upserts the onboarding draft, stamping the server clock.
func (service *Service) SaveDraft(ctx context.Context, userID UserID, draft Draft) error {
	draft.UpdatedAt = service.nowFn().UTC()
	if draft.HighestStep < draft.CurrentStep {
		draft.HighestStep = draft.CurrentStep
	}
	operationError := service.store.SaveDraft(ctx, userID, draft)
	service.logOperation(ctx, OperationLog{Operation: operationSaveDraft, UserID: userID, Error: operationError})
	return operationError
}

// DeleteDraft removes the onboarding draft once onboarding completes.
func (service *Service) DeleteDraft(ctx context.Context, userID UserID) error {
	operationError := service.store.DeleteDraft(ctx, userID)
	service.logOperation(ctx, OperationLog{Operation: operationDeleteDraft, UserID: userID, Error: operationError})
	return operationError
}

func (service *Service) logOperation(ctx context.Context, entry OperationLog) {
	if service.logger == nil {
		return
	}
	if entry.Status == "" {
		if entry.Error != nil {
			entry.Status = operationStatusError
		} else {
			entry.Status = operationStatusOK
		}
	}
	service.logger.LogOperation(ctx, entry)
}

// NormalizeEnvelopeFields validates a PATCH payload into store-ready values.
func NormalizeEnvelopeFields(fields map[string]any) (map[string]any, error) {
	normalized := make(map[string]any, len(fields))
	for key, value := range fields {
		switch key {
		case FieldName, FieldIcon, FieldNotes:
			text, err := asString(key, value)
			if err != nil {
				return nil, err
			}
			normalized[key] = text
		case FieldSubtype:
			text, err := asString(key, value)
			if err != nil {
				return nil, err
			}
			subtype, err := ParseSubtype(text)
			if err != nil {
				return nil, err
			}
			normalized[key] = string(subtype)
		case FieldPriority:
			text, err := asString(key, value)
			if err != nil {
				return nil, err
			}
			priority, err := ParsePriority(text)
			if err != nil {
				return nil, err
			}
			normalized[key] = string(priority)
		case FieldTargetAmount:
			amount, err := asDecimal(key, value)
			if err != nil {
				return nil, err
			}
			normalized[key] = NormalizeAmount(amount).Round(2)
		case FieldCadence:
			text, err := asString(key, value)
			if err != nil {
				return nil, err
			}
			normalized[key] = text
		case FieldWeeks, FieldDueDayOfMonth:
			count, err := asInt(key, value)
			if err != nil {
				return nil, err
			}
			normalized[key] = count
		case FieldDueDate:
			date, err := asDate(key, value)
			if err != nil {
				return nil, err
			}
			normalized[key] = date
		default:
			return nil, fmt.Errorf("%w: %q is not a patchable envelope field", ErrInvalidField, key)
		}
	}
	return normalized, nil
}

// NormalizeIncomeSourceFields validates a PATCH payload for income sources.
func NormalizeIncomeSourceFields(fields map[string]any) (map[string]any, error) {
	normalized := make(map[string]any, len(fields))
	for key, value := range fields {
		switch key {
		case FieldName:
			text, err := asString(key, value)
			if err != nil {
				return nil, err
			}
			normalized[key] = text
		case FieldAmount:
			amount, err := asDecimal(key, value)
			if err != nil {
				return nil, err
			}
			normalized[key] = NormalizeAmount(amount).Round(2)
		case FieldCadence:
			text, err := asString(key, value)
			if err != nil {
				return nil, err
			}
			normalized[key] = text
		case FieldWeeks:
			count, err := asInt(key, value)
			if err != nil {
				return nil, err
			}
			normalized[key] = count
		case FieldNextDate:
			date, err := asDate(key, value)
			if err != nil {
				return nil, err
			}
			normalized[key] = date
		case FieldActive:
			flag, ok := value.(bool)
			if !ok {
				return nil, fmt.Errorf("%w: %q must be a boolean", ErrInvalidField, key)
			}
			normalized[key] = flag
		default:
			return nil, fmt.Errorf("%w: %q is not a patchable income source field", ErrInvalidField, key)
		}
	}
	return normalized, nil
}

func asString(key string, value any) (string, error) {
	text, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("%w: %q must be a string", ErrInvalidField, key)
	}
	return text, nil
}

func asDecimal(key string, value any) (decimal.Decimal, error) {
	switch typed := value.(type) {
	case float64:
		return decimal.NewFromFloat(typed), nil
	case string:
		amount, err := decimal.NewFromString(typed)
		if err != nil {
			return decimal.Zero, fmt.Errorf("%w: %q is not a decimal amount", ErrInvalidField, key)
		}
		return amount, nil
	case decimal.Decimal:
		return typed, nil
	default:
		return decimal.Zero, fmt.Errorf("%w: %q must be a decimal amount", ErrInvalidField, key)
	}
}

func asInt(key string, value any) (int, error) {
	switch typed := value.(type) {
	case float64:
		return int(typed), nil
	case int:
		return typed, nil
	default:
		return 0, fmt.Errorf("%w: %q must be an integer", ErrInvalidField, key)
	}
}

func asDate(key string, value any) (*time.Time, error) {
	switch typed := value.(type) {
	case nil:
		return nil, nil
	case string:
		if typed == "" {
			return nil, nil
		}
		if parsed, err := time.Parse(time.RFC3339, typed); err == nil {
			return &parsed, nil
		}
		parsed, err := time.Parse("2006-01-02", typed)
		if err != nil {
			return nil, fmt.Errorf("%w: %q must be an ISO-8601 date", ErrInvalidField, key)
		}
		return &parsed, nil
	case *time.Time:
		return typed, nil
	case time.Time:
		return &typed, nil
	default:
		return nil, fmt.Errorf("%w: %q must be an ISO-8601 date", ErrInvalidField, key)
	}
}
