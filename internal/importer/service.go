package importer

import "context"

// Default upload limits. Callers can override via Service.Limits.
const (
	DefaultMaxBytes = 32 * 1024 * 1024
	DefaultMaxRows  = 100000
)

// RunOptions configures one end-to-end import run.
type RunOptions struct {
	// Mapping overrides the suggested mapping. Nil means suggest from the
	// file's headers.
	Mapping           FieldMapping
	Strategy          DuplicateStrategy
	SendNotifications bool
	// OnProgress, when set, receives (attempted, totalValid) after each
	// executed row.
	OnProgress func(attempted, total int)
}

// Service ties the pipeline together: parse, map, validate, execute,
// report. One Service is safe for concurrent runs against different events;
// runs against the same event must be serialized by the caller.
type Service struct {
	store    Store
	notifier Notifier
	Limits   Limits
	Aliases  map[string][]string
}

// NewService creates a pipeline service with default limits and aliases.
func NewService(store Store, notifier Notifier) *Service {
	return &Service{
		store:    store,
		notifier: notifier,
		Limits:   Limits{MaxBytes: DefaultMaxBytes, MaxRows: DefaultMaxRows},
	}
}

// Validate parses, maps and validates without executing anything. Used for
// dry runs and previews.
func (s *Service) Validate(ctx context.Context, content []byte, ev *Event, mapping FieldMapping, strategy DuplicateStrategy) (*ValidationReport, error) {
	parsed, err := Parse(content, s.Limits)
	if err != nil {
		return nil, err
	}
	if mapping == nil {
		mapping = SuggestMapping(parsed.Headers, s.Aliases)
	}
	rows, err := ApplyMapping(parsed, mapping)
	if err != nil {
		return nil, err
	}
	return NewValidator(s.store).Validate(ctx, rows, ev, strategy)
}

// Run executes the whole pipeline. Fatal pre-row failures (format, limits,
// mapping, invalid scope) are returned as an error with no partial result;
// otherwise every row's fate is in the returned report.
func (s *Service) Run(ctx context.Context, content []byte, ev *Event, opts RunOptions) (*ImportResult, error) {
	report, err := s.Validate(ctx, content, ev, opts.Mapping, opts.Strategy)
	if err != nil {
		return nil, err
	}

	execOpts := ExecuteOptions{SendNotifications: opts.SendNotifications}
	if opts.OnProgress != nil {
		total := len(report.Valid)
		execOpts.OnRow = func(attempted int) { opts.OnProgress(attempted, total) }
	}

	outcome := NewExecutor(s.store, s.notifier).Execute(ctx, report.Valid, ev, execOpts)
	return BuildResult(report, outcome), nil
}
