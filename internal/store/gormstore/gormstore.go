package gormstore

import (
	"context"
	"encoding/json"
	"errors"

	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/hoff1997/CodexMyBudgetMate-sub000/pkg/envelope"
)

const (
	pgUniqueViolationCode      = "23505"
	sqliteConstraintCode       = 19
	errorOperationStore        = "store"
	errorSubjectEnvelope       = "envelope"
	errorSubjectIncomeSource   = "income_source"
	errorSubjectAllocation     = "allocation"
	errorSubjectDraft          = "draft"
	errorCodeCreate            = "create"
	errorCodeDuplicate         = "duplicate"
	errorCodeGet               = "get"
	errorCodeList              = "list"
	errorCodeUpdate            = "update"
	errorCodeArchive           = "archive"
	errorCodeReplace           = "replace"
	errorCodeDelete            = "delete"
	errorCodeDecode            = "decode"
	errorCodeEncode            = "encode"
	errorCodeNextPosition      = "next_position"
	incomeSourcePositionOrder  = "position asc, created_at asc"
	envelopeCreationTimeOrder  = "created_at asc"
)

// Store implements envelope.Store using GORM.
type Store struct {
	db *gorm.DB
}

// New returns a Store backed by gorm.DB.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate creates the schema. Used for sqlite; postgres schemas are managed
// externally.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&EnvelopeRecord{}, &IncomeSourceRecord{}, &AllocationRecord{}, &DraftRecord{})
}

// WithTx executes fn within a transaction.
func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore envelope.Store) error) error {
	return store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		return fn(ctx, &Store{db: transaction})
	})
}

func (store *Store) ListEnvelopes(ctx context.Context, userID envelope.UserID) ([]envelope.Envelope, error) {
	var rows []EnvelopeRecord
	err := store.db.WithContext(ctx).
		Where("user_id = ?", string(userID)).
		Order(envelopeCreationTimeOrder).
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectEnvelope, errorCodeList, err)
	}
	envelopes := make([]envelope.Envelope, 0, len(rows))
	for _, row := range rows {
		envelopes = append(envelopes, mapEnvelope(row))
	}
	return envelopes, nil
}

func (store *Store) GetEnvelope(ctx context.Context, userID envelope.UserID, envelopeID envelope.EnvelopeID) (envelope.Envelope, error) {
	var row EnvelopeRecord
	err := store.db.WithContext(ctx).
		Where("user_id = ? AND envelope_id = ?", string(userID), string(envelopeID)).
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return envelope.Envelope{}, wrapStoreError(errorSubjectEnvelope, errorCodeGet, envelope.ErrUnknownEnvelope)
		}
		return envelope.Envelope{}, wrapStoreError(errorSubjectEnvelope, errorCodeGet, err)
	}
	return mapEnvelope(row), nil
}

func (store *Store) CreateEnvelope(ctx context.Context, userID envelope.UserID, record envelope.Envelope) (envelope.Envelope, error) {
	row := EnvelopeRecord{
		EnvelopeID:     string(record.ID),
		UserID:         string(userID),
		Name:           record.Name,
		Icon:           record.Icon,
		Subtype:        string(record.Subtype),
		TargetAmount:   record.TargetAmount,
		Cadence:        string(record.BillingFrequency.Cadence),
		FrequencyWeeks: record.BillingFrequency.Weeks,
		DueDate:        record.DueDate,
		DueDayOfMonth:  record.DueDayOfMonth,
		Priority:       string(record.Priority),
		CurrentBalance: record.CurrentBalance,
		Notes:          record.Notes,
		Archived:       record.Archived,
	}
	err := store.db.WithContext(ctx).Create(&row).Error
	if isUniqueViolation(err) {
		return envelope.Envelope{}, wrapStoreError(errorSubjectEnvelope, errorCodeDuplicate, envelope.ErrEnvelopeExists)
	}
	if err != nil {
		return envelope.Envelope{}, wrapStoreError(errorSubjectEnvelope, errorCodeCreate, err)
	}
	return mapEnvelope(row), nil
}

func (store *Store) UpdateEnvelopeFields(ctx context.Context, userID envelope.UserID, envelopeID envelope.EnvelopeID, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	if _, err := store.GetEnvelope(ctx, userID, envelopeID); err != nil {
		return err
	}
	err := store.db.WithContext(ctx).
		Model(&EnvelopeRecord{}).
		Where("user_id = ? AND envelope_id = ?", string(userID), string(envelopeID)).
		Updates(fields).Error
	if err != nil {
		return wrapStoreError(errorSubjectEnvelope, errorCodeUpdate, err)
	}
	return nil
}

func (store *Store) ArchiveEnvelope(ctx context.Context, userID envelope.UserID, envelopeID envelope.EnvelopeID) error {
	result := store.db.WithContext(ctx).
		Model(&EnvelopeRecord{}).
		Where("user_id = ? AND envelope_id = ?", string(userID), string(envelopeID)).
		Update("archived", true)
	if result.Error != nil {
		return wrapStoreError(errorSubjectEnvelope, errorCodeArchive, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectEnvelope, errorCodeArchive, envelope.ErrUnknownEnvelope)
	}
	return nil
}

func (store *Store) ListIncomeSources(ctx context.Context, userID envelope.UserID) ([]envelope.IncomeSource, error) {
	var rows []IncomeSourceRecord
	err := store.db.WithContext(ctx).
		Where("user_id = ?", string(userID)).
		Order(incomeSourcePositionOrder).
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectIncomeSource, errorCodeList, err)
	}
	sources := make([]envelope.IncomeSource, 0, len(rows))
	for _, row := range rows {
		sources = append(sources, mapIncomeSource(row))
	}
	return sources, nil
}

func (store *Store) CreateIncomeSource(ctx context.Context, userID envelope.UserID, record envelope.IncomeSource) (envelope.IncomeSource, error) {
	var position int64
	err := store.db.WithContext(ctx).
		Model(&IncomeSourceRecord{}).
		Where("user_id = ?", string(userID)).
		Count(&position).Error
	if err != nil {
		return envelope.IncomeSource{}, wrapStoreError(errorSubjectIncomeSource, errorCodeNextPosition, err)
	}
	row := IncomeSourceRecord{
		SourceID:       string(record.ID),
		UserID:         string(userID),
		Name:           record.Name,
		Amount:         record.Amount,
		Cadence:        string(record.Frequency.Cadence),
		FrequencyWeeks: record.Frequency.Weeks,
		NextDate:       record.NextDate,
		Active:         record.Active,
		Position:       int(position),
	}
	err = store.db.WithContext(ctx).Create(&row).Error
	if err != nil {
		return envelope.IncomeSource{}, wrapStoreError(errorSubjectIncomeSource, errorCodeCreate, err)
	}
	return mapIncomeSource(row), nil
}

func (store *Store) UpdateIncomeSourceFields(ctx context.Context, userID envelope.UserID, sourceID envelope.IncomeSourceID, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	result := store.db.WithContext(ctx).
		Model(&IncomeSourceRecord{}).
		Where("user_id = ? AND source_id = ?", string(userID), string(sourceID)).
		Updates(fields)
	if result.Error != nil {
		return wrapStoreError(errorSubjectIncomeSource, errorCodeUpdate, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectIncomeSource, errorCodeUpdate, envelope.ErrUnknownIncomeSource)
	}
	return nil
}

func (store *Store) ListAllocations(ctx context.Context, userID envelope.UserID) (map[envelope.EnvelopeID]envelope.AllocationMap, error) {
	var rows []AllocationRecord
	err := store.db.WithContext(ctx).
		Where("user_id = ?", string(userID)).
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectAllocation, errorCodeList, err)
	}
	allocations := map[envelope.EnvelopeID]envelope.AllocationMap{}
	for _, row := range rows {
		envelopeID := envelope.EnvelopeID(row.EnvelopeID)
		if allocations[envelopeID] == nil {
			allocations[envelopeID] = envelope.AllocationMap{}
		}
		allocations[envelopeID][envelope.IncomeSourceID(row.IncomeSourceID)] = row.AllocationAmount
	}
	return allocations, nil
}

// ReplaceAllocations swaps the full allocation row set for one envelope:
// the payload is authoritative, not a delta.
func (store *Store) ReplaceAllocations(ctx context.Context, userID envelope.UserID, envelopeID envelope.EnvelopeID, allocations envelope.AllocationMap) error {
	return store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		err := transaction.
			Where("user_id = ? AND envelope_id = ?", string(userID), string(envelopeID)).
			Delete(&AllocationRecord{}).Error
		if err != nil {
			return wrapStoreError(errorSubjectAllocation, errorCodeReplace, err)
		}
		if len(allocations) == 0 {
			return nil
		}
		rows := make([]AllocationRecord, 0, len(allocations))
		for sourceID, amount := range allocations {
			rows = append(rows, AllocationRecord{
				EnvelopeID:       string(envelopeID),
				IncomeSourceID:   string(sourceID),
				UserID:           string(userID),
				AllocationAmount: amount,
			})
		}
		if err := transaction.Create(&rows).Error; err != nil {
			return wrapStoreError(errorSubjectAllocation, errorCodeReplace, err)
		}
		return nil
	})
}

func (store *Store) GetDraft(ctx context.Context, userID envelope.UserID) (*envelope.Draft, error) {
	var row DraftRecord
	err := store.db.WithContext(ctx).
		Where("user_id = ?", string(userID)).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapStoreError(errorSubjectDraft, errorCodeGet, err)
	}
	var snapshot envelope.Snapshot
	if len(row.Payload) > 0 {
		if err := json.Unmarshal(row.Payload, &snapshot); err != nil {
			return nil, wrapStoreError(errorSubjectDraft, errorCodeDecode, err)
		}
	}
	return &envelope.Draft{
		CurrentStep: row.CurrentStep,
		HighestStep: row.HighestStep,
		UpdatedAt:   row.UpdatedAt,
		Snapshot:    snapshot,
	}, nil
}

func (store *Store) SaveDraft(ctx context.Context, userID envelope.UserID, draft envelope.Draft) error {
	payload, err := json.Marshal(draft.Snapshot)
	if err != nil {
		return wrapStoreError(errorSubjectDraft, errorCodeEncode, err)
	}
	row := DraftRecord{
		UserID:      string(userID),
		CurrentStep: draft.CurrentStep,
		HighestStep: draft.HighestStep,
		Payload:     payload,
		UpdatedAt:   draft.UpdatedAt,
	}
	err = store.db.WithContext(ctx).Save(&row).Error
	if err != nil {
		return wrapStoreError(errorSubjectDraft, errorCodeUpdate, err)
	}
	return nil
}

func (store *Store) DeleteDraft(ctx context.Context, userID envelope.UserID) error {
	err := store.db.WithContext(ctx).
		Where("user_id = ?", string(userID)).
		Delete(&DraftRecord{}).Error
	if err != nil {
		return wrapStoreError(errorSubjectDraft, errorCodeDelete, err)
	}
	return nil
}

func wrapStoreError(subject string, code string, err error) error {
	return envelope.WrapError(errorOperationStore, subject, code, err)
}

func mapEnvelope(row EnvelopeRecord) envelope.Envelope {
	return envelope.Envelope{
		ID:               envelope.EnvelopeID(row.EnvelopeID),
		Name:             row.Name,
		Icon:             row.Icon,
		Subtype:          envelope.Subtype(row.Subtype),
		TargetAmount:     row.TargetAmount,
		BillingFrequency: envelope.Frequency{Cadence: envelope.Cadence(row.Cadence), Weeks: row.FrequencyWeeks},
		DueDate:          row.DueDate,
		DueDayOfMonth:    row.DueDayOfMonth,
		Priority:         envelope.Priority(row.Priority),
		CurrentBalance:   row.CurrentBalance,
		Notes:            row.Notes,
		Archived:         row.Archived,
	}
}

func mapIncomeSource(row IncomeSourceRecord) envelope.IncomeSource {
	return envelope.IncomeSource{
		ID:        envelope.IncomeSourceID(row.SourceID),
		Name:      row.Name,
		Amount:    row.Amount,
		Frequency: envelope.Frequency{Cadence: envelope.Cadence(row.Cadence), Weeks: row.FrequencyWeeks},
		NextDate:  row.NextDate,
		Active:    row.Active,
	}
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode
	}
	var sqliteErr *gosqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code()&0xFF == sqliteConstraintCode
	}
	return false
}
