package envelope

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestValidateUnderfundedEssential(t *testing.T) {
	t.Parallel()
	envelopes := []Envelope{
		fortnightlyEnvelope("env-rent", "Rent", PriorityEssential, "150"),
		fortnightlyEnvelope("env-fun", "Fun", PriorityDiscretionary, "500"),
	}
	sources := []IncomeSource{fortnightlySource("src-a", "Salary", "100")}
	allocations := map[EnvelopeID]AllocationMap{
		"env-rent": {"src-a": decimal.RequireFromString("100")},
	}

	warnings := Validate(envelopes, sources, allocations)
	if len(warnings) != 1 {
		t.Fatalf("expected exactly one warning, got %v", warnings)
	}
	warning := warnings[0]
	if warning.Code != WarningEssentialUnderfunded {
		t.Fatalf("expected essential_underfunded, got %s", warning.Code)
	}
	if warning.EnvelopeID != "env-rent" || !warning.Amount.Equal(decimal.RequireFromString("50")) {
		t.Fatalf("unexpected warning detail: %+v", warning)
	}
	if warning.Message == "" {
		t.Fatalf("warnings must carry a human-readable message")
	}
}

func TestValidateOverAllocatedSource(t *testing.T) {
	t.Parallel()
	envelopes := []Envelope{
		fortnightlyEnvelope("env-a", "A", PriorityEssential, "80"),
		fortnightlyEnvelope("env-b", "B", PriorityImportant, "70"),
	}
	sources := []IncomeSource{fortnightlySource("src-a", "Salary", "100")}
	// Hand-edited allocations can exceed the source total.
	allocations := map[EnvelopeID]AllocationMap{
		"env-a": {"src-a": decimal.RequireFromString("80")},
		"env-b": {"src-a": decimal.RequireFromString("70")},
	}

	warnings := Validate(envelopes, sources, allocations)
	if len(warnings) != 1 {
		t.Fatalf("expected exactly one warning, got %v", warnings)
	}
	warning := warnings[0]
	if warning.Code != WarningSourceOverAllocated || warning.IncomeSourceID != "src-a" {
		t.Fatalf("unexpected warning: %+v", warning)
	}
	if !warning.Amount.Equal(decimal.RequireFromString("50")) {
		t.Fatalf("expected 50 excess, got %s", warning.Amount)
	}
}

func TestValidateToleranceAndExclusions(t *testing.T) {
	t.Parallel()
	withinTolerance := fortnightlyEnvelope("env-rent", "Rent", PriorityEssential, "100")
	tracking := fortnightlyEnvelope("env-track", "Net worth", PriorityEssential, "900")
	tracking.Subtype = SubtypeTracking
	archived := fortnightlyEnvelope("env-old", "Old", PriorityEssential, "900")
	archived.Archived = true

	sources := []IncomeSource{fortnightlySource("src-a", "Salary", "100")}
	allocations := map[EnvelopeID]AllocationMap{
		// One cent short sits inside the tolerance band.
		"env-rent": {"src-a": decimal.RequireFromString("99.99")},
	}

	if warnings := Validate([]Envelope{withinTolerance, tracking, archived}, sources, allocations); len(warnings) != 0 {
		t.Fatalf("expected no warnings, got %v", warnings)
	}
}

func TestValidateCleanStateProducesNoWarnings(t *testing.T) {
	t.Parallel()
	envelopes := []Envelope{fortnightlyEnvelope("env-rent", "Rent", PriorityEssential, "300")}
	sources := []IncomeSource{fortnightlySource("src-a", "Salary", "1000")}
	allocations := Allocate(envelopes, sources)

	if warnings := Validate(envelopes, sources, allocations); len(warnings) != 0 {
		t.Fatalf("allocator output should validate cleanly, got %v", warnings)
	}
}
