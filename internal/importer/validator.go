package importer

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Validation precedence: field rules, then in-file duplicates, then store
// duplicates, then ticket-type resolution, then capacity warnings. First
// match wins; every row gets at most one terminal classification. The
// file-scope pass runs strictly before the store-scope pass so that
// duplicate classification never depends on upload order surprises.

const (
	nameMinLen = 1
	nameMaxLen = 255
)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// Validator classifies mapped rows against an event scope.
type Validator struct {
	store Store
}

// NewValidator creates a validator backed by the given store.
func NewValidator(store Store) *Validator {
	return &Validator{store: store}
}

// Validate runs the single-pass classification over rows in file order.
// Invalid rows are collected, never aborting the batch. The returned error
// is reserved for store outages, which occur before any row has been
// persisted.
func (v *Validator) Validate(ctx context.Context, rows []MappedRow, ev *Event, strategy DuplicateStrategy) (*ValidationReport, error) {
	if ev == nil || ev.ID == uuid.Nil {
		return nil, ErrInvalidScope
	}
	if strategy == "" {
		strategy = DuplicateSkip
	}

	report := &ValidationReport{TotalRows: len(rows)}

	// In-file duplicate accumulator, threaded through this single pass.
	// Keyed by normalized email, valued by the first row that used it.
	seen := make(map[string]int)

	// Ticket resolution cache and cumulative claims for capacity warnings.
	tickets := make(map[string]*TicketType)
	claimed := make(map[string]int)

	for _, row := range rows {
		// 1. Field-level rules.
		if verr := checkFields(row); verr != nil {
			report.Errors = append(report.Errors, *verr)
			continue
		}

		normalized := NormalizeEmail(row.Email)

		// 2. Phase 1: in-file duplicates.
		if first, dup := seen[normalized]; dup {
			report.Duplicates = append(report.Duplicates, ValidationError{
				Row:     row.Number,
				Field:   "email",
				Value:   row.Email,
				Message: fmt.Sprintf("duplicate of row %d in this file", first),
			})
			report.DuplicateCount++
			continue
		}
		seen[normalized] = row.Number

		// 3. Phase 2: store duplicates.
		existing, err := v.store.FindAttendeeByEmail(ctx, ev.ID, normalized)
		if err != nil {
			return nil, fmt.Errorf("duplicate lookup for row %d: %w", row.Number, err)
		}
		if existing != nil {
			if strategy == DuplicateSkip {
				report.Duplicates = append(report.Duplicates, ValidationError{
					Row:     row.Number,
					Field:   "email",
					Value:   row.Email,
					Message: "already registered for this event",
				})
				report.DuplicateCount++
				continue
			}
			row.AllowedDuplicate = true
		}

		// 4. Referential check: the ticket reference must resolve. The
		// cache key uses the store's own equivalence (lower + trim), no
		// coarser: "VIP Pass" and "VIP-Pass" are distinct references.
		ref := strings.ToLower(strings.TrimSpace(row.TicketTypeRef))
		ticket, cached := tickets[ref]
		if !cached {
			ticket, err = v.store.ResolveTicketType(ctx, ev.ID, row.TicketTypeRef)
			if err != nil {
				return nil, fmt.Errorf("ticket lookup for row %d: %w", row.Number, err)
			}
			tickets[ref] = ticket
		}
		if ticket == nil {
			report.Errors = append(report.Errors, ValidationError{
				Row:     row.Number,
				Field:   "ticketType",
				Value:   row.TicketTypeRef,
				Message: "not found",
			})
			continue
		}
		row.TicketTypeID = ticket.ID

		// 5. Capacity: non-blocking. Rows past the remaining capacity are
		// warned, not excluded; the store enforces capacity per row at
		// execution time.
		claimed[ref]++
		if ticket.Remaining >= 0 && claimed[ref] > ticket.Remaining {
			report.Warnings = append(report.Warnings, CapacityWarning{
				Row:           row.Number,
				TicketTypeRef: row.TicketTypeRef,
				Message:       fmt.Sprintf("ticket type %q has %d remaining", ticket.Name, ticket.Remaining),
			})
		}

		report.Valid = append(report.Valid, row)
	}

	return report, nil
}

func checkFields(row MappedRow) *ValidationError {
	nameLen := utf8.RuneCountInString(strings.TrimSpace(row.Name))
	if nameLen < nameMinLen || nameLen > nameMaxLen {
		return &ValidationError{
			Row:     row.Number,
			Field:   "name",
			Value:   row.Name,
			Message: fmt.Sprintf("name must be between %d and %d characters", nameMinLen, nameMaxLen),
		}
	}
	if !emailRegex.MatchString(NormalizeEmail(row.Email)) {
		return &ValidationError{
			Row:     row.Number,
			Field:   "email",
			Value:   row.Email,
			Message: "invalid email address",
		}
	}
	if strings.TrimSpace(row.TicketTypeRef) == "" {
		return &ValidationError{
			Row:     row.Number,
			Field:   "ticketType",
			Value:   row.TicketTypeRef,
			Message: "ticket type is required",
		}
	}
	return nil
}

// NormalizeEmail is the canonical duplicate-detection key: lower-cased and
// whitespace-trimmed. "A@X.com " and "a@x.com" are the same attendee.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
