package envelope

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// EnvelopeID identifies a budget envelope.
type EnvelopeID string

// IncomeSourceID identifies a recurring income source.
type IncomeSourceID string

// UserID identifies the owning user.
type UserID string

// NewEnvelopeID validates and normalizes an envelope id.
func NewEnvelopeID(raw string) (EnvelopeID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty value", ErrInvalidEnvelopeID)
	}
	return EnvelopeID(trimmed), nil
}

// NewIncomeSourceID validates and normalizes an income source id.
func NewIncomeSourceID(raw string) (IncomeSourceID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty value", ErrInvalidIncomeSourceID)
	}
	return IncomeSourceID(trimmed), nil
}

// NewUserID validates and normalizes a user id.
func NewUserID(raw string) (UserID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty value", ErrInvalidUserID)
	}
	return UserID(trimmed), nil
}

// Subtype classifies what an envelope is for.
type Subtype string

const (
	SubtypeBill     Subtype = "bill"
	SubtypeSpending Subtype = "spending"
	SubtypeSavings  Subtype = "savings"
	SubtypeGoal     Subtype = "goal"
	SubtypeTracking Subtype = "tracking"
	SubtypeDebt     Subtype = "debt"
)

// ParseSubtype validates a subtype string.
func ParseSubtype(raw string) (Subtype, error) {
	switch Subtype(strings.TrimSpace(raw)) {
	case SubtypeBill, SubtypeSpending, SubtypeSavings, SubtypeGoal, SubtypeTracking, SubtypeDebt:
		return Subtype(strings.TrimSpace(raw)), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidSubtype, raw)
}

// Priority orders envelopes for waterfall allocation.
type Priority string

const (
	PriorityEssential     Priority = "essential"
	PriorityImportant     Priority = "important"
	PriorityDiscretionary Priority = "discretionary"
)

// Rank returns the waterfall ordering rank; lower funds first.
func (priority Priority) Rank() int {
	switch priority {
	case PriorityEssential:
		return 0
	case PriorityImportant:
		return 1
	default:
		return 2
	}
}

// ParsePriority validates a priority string.
func ParsePriority(raw string) (Priority, error) {
	switch Priority(strings.TrimSpace(raw)) {
	case PriorityEssential, PriorityImportant, PriorityDiscretionary:
		return Priority(strings.TrimSpace(raw)), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidPriority, raw)
}

// Cadence names a recurring billing or pay rhythm.
type Cadence string

const (
	CadenceWeekly      Cadence = "weekly"
	CadenceFortnightly Cadence = "fortnightly"
	CadenceMonthly     Cadence = "monthly"
	CadenceQuarterly   Cadence = "quarterly"
	CadenceSemiAnnual  Cadence = "semi_annual"
	CadenceAnnual      Cadence = "annual"
	CadenceEveryNWeeks Cadence = "every_n_weeks"
)

// Frequency is a cadence plus the explicit week interval for every_n_weeks.
type Frequency struct {
	Cadence Cadence
	Weeks   int
}

// NewFrequency validates a cadence/interval pair. Unknown cadences are not
// an error here; the normalizer degrades them to monthly (see frequency.go).
func NewFrequency(cadence Cadence, weeks int) (Frequency, error) {
	if cadence == CadenceEveryNWeeks && weeks <= 0 {
		return Frequency{}, fmt.Errorf("%w: every_n_weeks requires a positive interval", ErrInvalidFrequency)
	}
	return Frequency{Cadence: cadence, Weeks: weeks}, nil
}

// Envelope is a named budget bucket.
type Envelope struct {
	ID               EnvelopeID
	Name             string
	Icon             string
	Subtype          Subtype
	TargetAmount     decimal.Decimal
	BillingFrequency Frequency
	DueDate          *time.Time
	DueDayOfMonth    int
	Priority         Priority
	CurrentBalance   decimal.Decimal
	Notes            string
	Archived         bool
}

// IncomeSource is a recurring inflow.
type IncomeSource struct {
	ID        IncomeSourceID
	Name      string
	Amount    decimal.Decimal
	Frequency Frequency
	NextDate  *time.Time
	Active    bool
}

// AllocationMap maps income source ids to per-pay amounts for one envelope.
type AllocationMap map[IncomeSourceID]decimal.Decimal

// Total sums the allocated amounts.
func (allocations AllocationMap) Total() decimal.Decimal {
	total := decimal.Zero
	for _, amount := range allocations {
		total = total.Add(amount)
	}
	return total
}

// Clone returns an independent copy.
func (allocations AllocationMap) Clone() AllocationMap {
	if allocations == nil {
		return nil
	}
	copied := make(AllocationMap, len(allocations))
	for sourceID, amount := range allocations {
		copied[sourceID] = amount
	}
	return copied
}

// Equal reports whether both maps carry the same amounts.
func (allocations AllocationMap) Equal(other AllocationMap) bool {
	if len(allocations) != len(other) {
		return false
	}
	for sourceID, amount := range allocations {
		otherAmount, ok := other[sourceID]
		if !ok || !amount.Equal(otherAmount) {
			return false
		}
	}
	return true
}

// Snapshot is the full in-memory budget state for one user session.
type Snapshot struct {
	Envelopes     []Envelope
	IncomeSources []IncomeSource
	Allocations   map[EnvelopeID]AllocationMap
}

// Clone returns an independent deep copy.
func (snapshot Snapshot) Clone() Snapshot {
	copied := Snapshot{
		Envelopes:     append([]Envelope(nil), snapshot.Envelopes...),
		IncomeSources: append([]IncomeSource(nil), snapshot.IncomeSources...),
	}
	if snapshot.Allocations != nil {
		copied.Allocations = make(map[EnvelopeID]AllocationMap, len(snapshot.Allocations))
		for envelopeID, allocations := range snapshot.Allocations {
			copied.Allocations[envelopeID] = allocations.Clone()
		}
	}
	return copied
}

// EnvelopeByID returns a pointer into the snapshot's envelope slice.
func (snapshot *Snapshot) EnvelopeByID(envelopeID EnvelopeID) *Envelope {
	for index := range snapshot.Envelopes {
		if snapshot.Envelopes[index].ID == envelopeID {
			return &snapshot.Envelopes[index]
		}
	}
	return nil
}

// PaySchedule is the cadence implied by the primary active income source.
// Derived, never persisted.
type PaySchedule struct {
	Frequency Frequency
	NextDate  *time.Time
}

// DerivePaySchedule returns the schedule of the first active source, or a
// monthly default when no source is active.
func DerivePaySchedule(sources []IncomeSource) PaySchedule {
	for _, source := range sources {
		if source.Active {
			return PaySchedule{Frequency: source.Frequency, NextDate: source.NextDate}
		}
	}
	return PaySchedule{Frequency: Frequency{Cadence: CadenceMonthly}}
}

// ActiveSources filters to the sources that participate in allocation,
// preserving list order (list order doubles as funding order).
func ActiveSources(sources []IncomeSource) []IncomeSource {
	active := make([]IncomeSource, 0, len(sources))
	for _, source := range sources {
		if source.Active {
			active = append(active, source)
		}
	}
	return active
}

// NormalizeAmount clamps invalid monetary input to zero so the editing
// surface stays renderable.
func NormalizeAmount(amount decimal.Decimal) decimal.Decimal {
	if amount.IsNegative() {
		return decimal.Zero
	}
	return amount
}

// Draft is a partially completed onboarding record mirrored remotely and
// locally for durability. Step counters drive UI resumption only.
type Draft struct {
	CurrentStep int
	HighestStep int
	UpdatedAt   time.Time
	Snapshot    Snapshot
}

// Store is the persistence contract used by Service.
// (gormstore implements this.)
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error
	ListEnvelopes(ctx context.Context, userID UserID) ([]Envelope, error)
	GetEnvelope(ctx context.Context, userID UserID, envelopeID EnvelopeID) (Envelope, error)
	CreateEnvelope(ctx context.Context, userID UserID, record Envelope) (Envelope, error)
	UpdateEnvelopeFields(ctx context.Context, userID UserID, envelopeID EnvelopeID, fields map[string]any) error
	ArchiveEnvelope(ctx context.Context, userID UserID, envelopeID EnvelopeID) error
	ListIncomeSources(ctx context.Context, userID UserID) ([]IncomeSource, error)
	CreateIncomeSource(ctx context.Context, userID UserID, record IncomeSource) (IncomeSource, error)
	UpdateIncomeSourceFields(ctx context.Context, userID UserID, sourceID IncomeSourceID, fields map[string]any) error
	ListAllocations(ctx context.Context, userID UserID) (map[EnvelopeID]AllocationMap, error)
	ReplaceAllocations(ctx context.Context, userID UserID, envelopeID EnvelopeID, allocations AllocationMap) error
	GetDraft(ctx context.Context, userID UserID) (*Draft, error)
	SaveDraft(ctx context.Context, userID UserID, draft Draft) error
	DeleteDraft(ctx context.Context, userID UserID) error
}
