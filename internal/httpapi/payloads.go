package httpapi

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hoff1997/CodexMyBudgetMate-sub000/pkg/envelope"
)

const wireDateLayout = "2006-01-02"

// wireAmount renders monetary values as bare JSON numbers; decimal.Decimal
// alone would quote them (or require flipping a process-global). Decoding
// accepts both quoted and bare input via the embedded decimal.
type wireAmount struct {
	decimal.Decimal
}

func (amount wireAmount) MarshalJSON() ([]byte, error) {
	return []byte(amount.String()), nil
}

type envelopePayload struct {
	ID             string     `json:"id,omitempty"`
	Name           string     `json:"name"`
	Icon           string     `json:"icon,omitempty"`
	Subtype        string     `json:"subtype"`
	TargetAmount   wireAmount `json:"target_amount"`
	Cadence        string     `json:"cadence"`
	FrequencyWeeks int        `json:"frequency_weeks,omitempty"`
	DueDate        string     `json:"due_date,omitempty"`
	DueDayOfMonth  int        `json:"due_day_of_month,omitempty"`
	Priority       string     `json:"priority"`
	CurrentBalance wireAmount `json:"current_balance"`
	Notes          string     `json:"notes,omitempty"`
	Archived       bool       `json:"archived"`
}

type incomeSourcePayload struct {
	ID             string     `json:"id,omitempty"`
	Name           string     `json:"name"`
	Amount         wireAmount `json:"amount"`
	Cadence        string     `json:"cadence"`
	FrequencyWeeks int        `json:"frequency_weeks,omitempty"`
	NextDate       string     `json:"next_date,omitempty"`
	Active         bool       `json:"active"`
}

type allocationEntryPayload struct {
	IncomeSourceID   string     `json:"income_source_id"`
	AllocationAmount wireAmount `json:"allocation_amount"`
}

type replaceAllocationsRequest struct {
	EnvelopeID  string                   `json:"envelope_id"`
	Allocations []allocationEntryPayload `json:"allocations"`
}

type draftPayload struct {
	CurrentStep   int                              `json:"current_step"`
	HighestStep   int                              `json:"highest_step"`
	UpdatedAt     string                           `json:"updated_at,omitempty"`
	Envelopes     []envelopePayload                `json:"envelopes"`
	IncomeSources []incomeSourcePayload            `json:"income_sources"`
	Allocations   map[string]map[string]wireAmount `json:"allocations"`
}

func toEnvelopePayload(record envelope.Envelope) envelopePayload {
	payload := envelopePayload{
		ID:             string(record.ID),
		Name:           record.Name,
		Icon:           record.Icon,
		Subtype:        string(record.Subtype),
		TargetAmount:   wireAmount{record.TargetAmount},
		Cadence:        string(record.BillingFrequency.Cadence),
		FrequencyWeeks: record.BillingFrequency.Weeks,
		DueDayOfMonth:  record.DueDayOfMonth,
		Priority:       string(record.Priority),
		CurrentBalance: wireAmount{record.CurrentBalance},
		Notes:          record.Notes,
		Archived:       record.Archived,
	}
	if record.DueDate != nil {
		payload.DueDate = record.DueDate.Format(wireDateLayout)
	}
	return payload
}

func fromEnvelopePayload(payload envelopePayload) (envelope.Envelope, error) {
	subtype, err := envelope.ParseSubtype(payload.Subtype)
	if err != nil {
		return envelope.Envelope{}, err
	}
	priority, err := envelope.ParsePriority(payload.Priority)
	if err != nil {
		return envelope.Envelope{}, err
	}
	frequency, err := envelope.NewFrequency(envelope.Cadence(payload.Cadence), payload.FrequencyWeeks)
	if err != nil {
		return envelope.Envelope{}, err
	}
	record := envelope.Envelope{
		ID:               envelope.EnvelopeID(payload.ID),
		Name:             payload.Name,
		Icon:             payload.Icon,
		Subtype:          subtype,
		TargetAmount:     payload.TargetAmount.Decimal,
		BillingFrequency: frequency,
		DueDayOfMonth:    payload.DueDayOfMonth,
		Priority:         priority,
		CurrentBalance:   payload.CurrentBalance.Decimal,
		Notes:            payload.Notes,
		Archived:         payload.Archived,
	}
	if payload.DueDate != "" {
		parsed, err := time.Parse(wireDateLayout, payload.DueDate)
		if err != nil {
			return envelope.Envelope{}, fmt.Errorf("due_date must be an ISO-8601 date: %w", err)
		}
		record.DueDate = &parsed
	}
	return record, nil
}

func toIncomeSourcePayload(source envelope.IncomeSource) incomeSourcePayload {
	payload := incomeSourcePayload{
		ID:             string(source.ID),
		Name:           source.Name,
		Amount:         wireAmount{source.Amount},
		Cadence:        string(source.Frequency.Cadence),
		FrequencyWeeks: source.Frequency.Weeks,
		Active:         source.Active,
	}
	if source.NextDate != nil {
		payload.NextDate = source.NextDate.Format(wireDateLayout)
	}
	return payload
}

func fromIncomeSourcePayload(payload incomeSourcePayload) (envelope.IncomeSource, error) {
	frequency, err := envelope.NewFrequency(envelope.Cadence(payload.Cadence), payload.FrequencyWeeks)
	if err != nil {
		return envelope.IncomeSource{}, err
	}
	source := envelope.IncomeSource{
		ID:        envelope.IncomeSourceID(payload.ID),
		Name:      payload.Name,
		Amount:    payload.Amount.Decimal,
		Frequency: frequency,
		Active:    payload.Active,
	}
	if payload.NextDate != "" {
		parsed, err := time.Parse(wireDateLayout, payload.NextDate)
		if err != nil {
			return envelope.IncomeSource{}, fmt.Errorf("next_date must be an ISO-8601 date: %w", err)
		}
		source.NextDate = &parsed
	}
	return source, nil
}

func toAllocationsPayload(allocations map[envelope.EnvelopeID]envelope.AllocationMap) map[string]map[string]wireAmount {
	payload := make(map[string]map[string]wireAmount, len(allocations))
	for envelopeID, entries := range allocations {
		inner := make(map[string]wireAmount, len(entries))
		for sourceID, amount := range entries {
			inner[string(sourceID)] = wireAmount{amount}
		}
		payload[string(envelopeID)] = inner
	}
	return payload
}

func fromAllocationsPayload(payload map[string]map[string]wireAmount) map[envelope.EnvelopeID]envelope.AllocationMap {
	allocations := make(map[envelope.EnvelopeID]envelope.AllocationMap, len(payload))
	for envelopeID, entries := range payload {
		inner := make(envelope.AllocationMap, len(entries))
		for sourceID, amount := range entries {
			inner[envelope.IncomeSourceID(sourceID)] = amount.Decimal
		}
		allocations[envelope.EnvelopeID(envelopeID)] = inner
	}
	return allocations
}

func toDraftPayload(draft envelope.Draft) draftPayload {
	payload := draftPayload{
		CurrentStep: draft.CurrentStep,
		HighestStep: draft.HighestStep,
		Allocations: toAllocationsPayload(draft.Snapshot.Allocations),
	}
	if !draft.UpdatedAt.IsZero() {
		payload.UpdatedAt = draft.UpdatedAt.UTC().Format(time.RFC3339)
	}
	payload.Envelopes = make([]envelopePayload, 0, len(draft.Snapshot.Envelopes))
	for _, record := range draft.Snapshot.Envelopes {
		payload.Envelopes = append(payload.Envelopes, toEnvelopePayload(record))
	}
	payload.IncomeSources = make([]incomeSourcePayload, 0, len(draft.Snapshot.IncomeSources))
	for _, source := range draft.Snapshot.IncomeSources {
		payload.IncomeSources = append(payload.IncomeSources, toIncomeSourcePayload(source))
	}
	return payload
}

func fromDraftPayload(payload draftPayload) (envelope.Draft, error) {
	draft := envelope.Draft{
		CurrentStep: payload.CurrentStep,
		HighestStep: payload.HighestStep,
		Snapshot: envelope.Snapshot{
			Allocations: fromAllocationsPayload(payload.Allocations),
		},
	}
	if payload.UpdatedAt != "" {
		parsed, err := time.Parse(time.RFC3339, payload.UpdatedAt)
		if err != nil {
			return envelope.Draft{}, fmt.Errorf("updated_at must be an ISO-8601 timestamp: %w", err)
		}
		draft.UpdatedAt = parsed
	}
	for _, entry := range payload.Envelopes {
		record, err := fromEnvelopePayload(entry)
		if err != nil {
			return envelope.Draft{}, err
		}
		draft.Snapshot.Envelopes = append(draft.Snapshot.Envelopes, record)
	}
	for _, entry := range payload.IncomeSources {
		source, err := fromIncomeSourcePayload(entry)
		if err != nil {
			return envelope.Draft{}, err
		}
		draft.Snapshot.IncomeSources = append(draft.Snapshot.IncomeSources, source)
	}
	return draft, nil
}
