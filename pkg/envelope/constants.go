package envelope

const (
	operationSnapshot           = "snapshot"
	operationCreateEnvelope     = "create_envelope"
	operationPatchEnvelope      = "patch_envelope"
	operationArchiveEnvelope    = "archive_envelope"
	operationCreateIncomeSource = "create_income_source"
	operationPatchIncomeSource  = "patch_income_source"
	operationReplaceAllocations = "replace_allocations"
	operationSaveDraft          = "save_draft"
	operationDeleteDraft        = "delete_draft"

	operationStatusOK    = "ok"
	operationStatusError = "error"
)

// Patchable envelope field keys, matching the wire payload of
// PATCH /api/envelopes/:id.
const (
	FieldName          = "name"
	FieldIcon          = "icon"
	FieldSubtype       = "subtype"
	FieldTargetAmount  = "target_amount"
	FieldCadence       = "cadence"
	FieldWeeks         = "frequency_weeks"
	FieldDueDate       = "due_date"
	FieldDueDayOfMonth = "due_day_of_month"
	FieldPriority      = "priority"
	FieldNotes         = "notes"
)

// Patchable income source field keys.
const (
	FieldAmount   = "amount"
	FieldNextDate = "next_date"
	FieldActive   = "active"
)
