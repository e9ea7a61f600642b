package importer

import "testing"

func TestBuildResult_CombinesAndBalances(t *testing.T) {
	report := &ValidationReport{
		TotalRows: 6,
		Errors: []ValidationError{
			{Row: 5, Field: "email", Message: "invalid email address"},
		},
		Duplicates: []ValidationError{
			{Row: 4, Field: "email", Message: "already registered for this event"},
		},
		DuplicateCount: 1,
		Warnings:       []CapacityWarning{{Row: 6, TicketTypeRef: "VIP"}},
	}
	outcome := &ExecOutcome{
		Success:   3,
		Attempted: 4,
		Failures: []ValidationError{
			{Row: 2, Field: "persistence", Message: "constraint violation"},
		},
	}

	result := BuildResult(report, outcome)

	if result.Status != StatusCompleted {
		t.Errorf("status = %q, want completed", result.Status)
	}
	if result.SuccessCount != 3 || result.FailureCount != 2 || result.DuplicateCount != 1 {
		t.Errorf("counts = %d/%d/%d, want 3/2/1", result.SuccessCount, result.FailureCount, result.DuplicateCount)
	}
	if !result.Balanced(report.TotalRows) {
		t.Errorf("accounting invariant broken: %d+%d+%d != %d",
			result.SuccessCount, result.FailureCount, result.DuplicateCount, report.TotalRows)
	}

	// Errors are merged and ordered by row so reports stay row-addressable.
	if len(result.Errors) != 2 || result.Errors[0].Row != 2 || result.Errors[1].Row != 5 {
		t.Errorf("errors = %v, want rows [2 5]", result.Errors)
	}
	if len(result.Duplicates) != 1 || len(result.Warnings) != 1 {
		t.Errorf("duplicates/warnings not carried through")
	}
}

func TestBuildResult_CancelledRun(t *testing.T) {
	report := &ValidationReport{TotalRows: 3}
	outcome := &ExecOutcome{Success: 1, Attempted: 1, Cancelled: true}

	result := BuildResult(report, outcome)
	if result.Status != StatusCancelled {
		t.Errorf("status = %q, want cancelled", result.Status)
	}
}
