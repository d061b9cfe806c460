package envelope

import (
	"time"

	"github.com/shopspring/decimal"
)

// Tolerance is the reconciliation slack applied to all allocation
// comparisons: amounts within one cent are treated as equal.
var Tolerance = decimal.New(1, -2)

var (
	occurrencesWeekly      = decimal.NewFromInt(52)
	occurrencesFortnightly = decimal.NewFromInt(26)
	occurrencesMonthly     = decimal.NewFromInt(12)
	occurrencesQuarterly   = decimal.NewFromInt(4)
	occurrencesSemiAnnual  = decimal.NewFromInt(2)
	occurrencesAnnual      = decimal.NewFromInt(1)
)

// OccurrencesPerYear converts a frequency into its yearly occurrence count.
// Unknown cadences degrade to monthly rather than failing so the editing
// surface never dead-ends on a half-filled record.
func OccurrencesPerYear(frequency Frequency) decimal.Decimal {
	switch frequency.Cadence {
	case CadenceWeekly:
		return occurrencesWeekly
	case CadenceFortnightly:
		return occurrencesFortnightly
	case CadenceMonthly:
		return occurrencesMonthly
	case CadenceQuarterly:
		return occurrencesQuarterly
	case CadenceSemiAnnual:
		return occurrencesSemiAnnual
	case CadenceAnnual:
		return occurrencesAnnual
	case CadenceEveryNWeeks:
		if frequency.Weeks <= 0 {
			return occurrencesMonthly
		}
		return occurrencesWeekly.Div(decimal.NewFromInt(int64(frequency.Weeks)))
	default:
		return occurrencesMonthly
	}
}

// AnnualAmount converts a target amount in its billing frequency to a yearly
// equivalent, rounded to cents.
func AnnualAmount(targetAmount decimal.Decimal, billingFrequency Frequency) decimal.Decimal {
	if targetAmount.Sign() <= 0 {
		return decimal.Zero
	}
	return targetAmount.Mul(OccurrencesPerYear(billingFrequency)).Round(2)
}

// PerPay converts a target amount in its billing frequency to the amount due
// each occurrence of the pay cycle. Intermediate values stay unrounded;
// only the final result is rounded to cents.
func PerPay(targetAmount decimal.Decimal, billingFrequency Frequency, payCycle Frequency) decimal.Decimal {
	if targetAmount.Sign() <= 0 {
		return decimal.Zero
	}
	annual := targetAmount.Mul(OccurrencesPerYear(billingFrequency))
	return annual.Div(OccurrencesPerYear(payCycle)).Round(2)
}

// EnvelopePerPay computes the per-pay contribution for one envelope.
// Tracking envelopes and zero targets contribute nothing.
func EnvelopePerPay(record Envelope, payCycle Frequency) decimal.Decimal {
	if record.Subtype == SubtypeTracking {
		return decimal.Zero
	}
	return PerPay(record.TargetAmount, record.BillingFrequency, payCycle)
}

// NextOccurrences projects the next count pay dates. The anchor is the
// schedule's next expected date when set, otherwise from.
func (schedule PaySchedule) NextOccurrences(from time.Time, count int) []time.Time {
	if count <= 0 {
		return nil
	}
	anchor := from
	if schedule.NextDate != nil && schedule.NextDate.After(from) {
		anchor = *schedule.NextDate
	}
	occurrences := make([]time.Time, 0, count)
	current := anchor
	for len(occurrences) < count {
		occurrences = append(occurrences, current)
		current = schedule.Frequency.advance(current)
	}
	return occurrences
}

func (frequency Frequency) advance(from time.Time) time.Time {
	switch frequency.Cadence {
	case CadenceWeekly:
		return from.AddDate(0, 0, 7)
	case CadenceFortnightly:
		return from.AddDate(0, 0, 14)
	case CadenceQuarterly:
		return from.AddDate(0, 3, 0)
	case CadenceSemiAnnual:
		return from.AddDate(0, 6, 0)
	case CadenceAnnual:
		return from.AddDate(1, 0, 0)
	case CadenceEveryNWeeks:
		weeks := frequency.Weeks
		if weeks <= 0 {
			weeks = 4
		}
		return from.AddDate(0, 0, 7*weeks)
	default:
		return from.AddDate(0, 1, 0)
	}
}
