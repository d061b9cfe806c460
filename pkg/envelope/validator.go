package envelope

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// WarningCode identifies a class of advisory validation finding.
type WarningCode string

const (
	WarningEssentialUnderfunded WarningCode = "essential_underfunded"
	WarningSourceOverAllocated  WarningCode = "source_over_allocated"
)

// Warning is an advisory invariant violation. Warnings never block a save.
type Warning struct {
	Code           WarningCode
	EnvelopeID     EnvelopeID
	IncomeSourceID IncomeSourceID
	Amount         decimal.Decimal
	Message        string
}

// Validate scans the current allocation state for invariant violations:
// essential envelopes allocated less than their per-pay requirement, and
// income sources committed beyond their per-pay capacity.
func Validate(envelopes []Envelope, incomeSources []IncomeSource, allocations map[EnvelopeID]AllocationMap) []Warning {
	payCycle := DerivePaySchedule(incomeSources).Frequency
	warnings := []Warning{}

	for _, record := range envelopes {
		if record.Archived || record.Subtype == SubtypeTracking {
			continue
		}
		if record.Priority != PriorityEssential {
			continue
		}
		required := EnvelopePerPay(record, payCycle)
		if !required.IsPositive() {
			continue
		}
		allocated := allocations[record.ID].Total()
		if allocated.Cmp(required.Sub(Tolerance)) < 0 {
			shortfall := required.Sub(allocated).Round(2)
			warnings = append(warnings, Warning{
				Code:       WarningEssentialUnderfunded,
				EnvelopeID: record.ID,
				Amount:     shortfall,
				Message:    fmt.Sprintf("essential envelope %q is underfunded by %s per pay", record.Name, shortfall.StringFixed(2)),
			})
		}
	}

	committed := make(map[IncomeSourceID]decimal.Decimal, len(incomeSources))
	for _, envelopeAllocations := range allocations {
		for sourceID, amount := range envelopeAllocations {
			committed[sourceID] = committed[sourceID].Add(amount)
		}
	}
	for _, source := range incomeSources {
		total := committed[source.ID]
		if total.Cmp(source.Amount.Add(Tolerance)) > 0 {
			excess := total.Sub(source.Amount).Round(2)
			warnings = append(warnings, Warning{
				Code:           WarningSourceOverAllocated,
				IncomeSourceID: source.ID,
				Amount:         excess,
				Message:        fmt.Sprintf("income source %q is over-allocated by %s per pay", source.Name, excess.StringFixed(2)),
			})
		}
	}
	return warnings
}
