package envelope

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Allocate distributes income capacity across envelopes using a greedy
// waterfall: envelopes in priority order, sources in list order. Partial
// funding is a legitimate outcome; Validate surfaces it, Allocate does not.
//
// The pay cycle is derived from the first active income source. Tracking
// and spending envelopes never receive scheduled contributions, nor do
// archived envelopes or those with no per-pay requirement.
func Allocate(envelopes []Envelope, incomeSources []IncomeSource) map[EnvelopeID]AllocationMap {
	sources := ActiveSources(incomeSources)
	payCycle := DerivePaySchedule(incomeSources).Frequency

	eligible := make([]Envelope, 0, len(envelopes))
	for _, record := range envelopes {
		if record.Archived {
			continue
		}
		if record.Subtype == SubtypeTracking || record.Subtype == SubtypeSpending {
			continue
		}
		if EnvelopePerPay(record, payCycle).Cmp(Tolerance) <= 0 {
			continue
		}
		eligible = append(eligible, record)
	}

	// Stable: ties keep their original order.
	sort.SliceStable(eligible, func(left, right int) bool {
		return eligible[left].Priority.Rank() < eligible[right].Priority.Rank()
	})

	remaining := make([]decimal.Decimal, len(sources))
	for index, source := range sources {
		remaining[index] = source.Amount
	}

	result := make(map[EnvelopeID]AllocationMap, len(eligible))
	for _, record := range eligible {
		required := EnvelopePerPay(record, payCycle)
		allocations := AllocationMap{}
		for index, source := range sources {
			if required.Cmp(Tolerance) <= 0 {
				break
			}
			if remaining[index].Cmp(Tolerance) <= 0 {
				continue
			}
			portion := decimal.Min(required, remaining[index])
			required = required.Sub(portion)
			remaining[index] = remaining[index].Sub(portion)
			if portion.Cmp(Tolerance) > 0 {
				allocations[source.ID] = portion.Round(2)
			}
		}
		result[record.ID] = allocations
	}
	return result
}
