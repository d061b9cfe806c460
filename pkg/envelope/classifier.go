package envelope

// FundingLabel is the coarse funded-by classification for one envelope.
type FundingLabel string

const (
	FundingNone      FundingLabel = "none"
	FundingPrimary   FundingLabel = "primary"
	FundingSecondary FundingLabel = "secondary"
	FundingSplit     FundingLabel = "split"
)

// Classify derives the funded-by label from an allocation map. The income
// source list's order carries the primary/secondary meaning: index 0 is the
// primary source. The same order drives the waterfall, and the two uses
// must stay coupled or allocation outcomes change.
func Classify(allocations AllocationMap, incomeSources []IncomeSource) FundingLabel {
	funded := make(map[IncomeSourceID]bool, len(allocations))
	for sourceID, amount := range allocations {
		if amount.IsPositive() {
			funded[sourceID] = true
		}
	}
	switch len(funded) {
	case 0:
		return FundingNone
	case 1:
		for index, source := range incomeSources {
			if funded[source.ID] {
				if index == 0 {
					return FundingPrimary
				}
				return FundingSecondary
			}
		}
		// Funded by a source no longer in the list.
		return FundingSecondary
	default:
		return FundingSplit
	}
}
