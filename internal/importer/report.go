package importer

import "sort"

// BuildResult combines a validation report and an execution outcome into the
// final immutable result. Pure aggregation; assembled exactly once per run.
func BuildResult(report *ValidationReport, outcome *ExecOutcome) *ImportResult {
	result := &ImportResult{
		SuccessCount:   outcome.Success,
		FailureCount:   len(report.Errors) + len(outcome.Failures),
		DuplicateCount: report.DuplicateCount,
		Duplicates:     append([]ValidationError(nil), report.Duplicates...),
		Warnings:       append([]CapacityWarning(nil), report.Warnings...),
		Status:         StatusCompleted,
	}

	result.Errors = make([]ValidationError, 0, len(report.Errors)+len(outcome.Failures))
	result.Errors = append(result.Errors, report.Errors...)
	result.Errors = append(result.Errors, outcome.Failures...)
	sort.SliceStable(result.Errors, func(i, j int) bool {
		return result.Errors[i].Row < result.Errors[j].Row
	})

	if outcome.Cancelled {
		result.Status = StatusCancelled
	}

	return result
}

// Balanced reports whether the accounting invariant holds: every data row is
// accounted for as exactly one of success, failure or duplicate. True for
// every completed run in which all valid rows were attempted.
func (r *ImportResult) Balanced(totalRows int) bool {
	return r.SuccessCount+r.FailureCount+r.DuplicateCount == totalRows
}
