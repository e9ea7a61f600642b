package importer

import (
	"context"

	"github.com/google/uuid"
)

// =============================================================================
// ATTENDEE IMPORT ENGINE - Core Types
// =============================================================================
// The import pipeline turns raw CSV bytes into persisted attendee records:
// Parse -> ApplyMapping -> Validate -> Execute -> BuildResult.
// Rows are processed strictly in file order; callers serialize concurrent
// imports for the same event (the API layer uses a per-event redis lock).

// Target field names a CSV column can be mapped to.
const (
	FieldName       = "name"
	FieldEmail      = "email"
	FieldTicketType = "ticket_type"
	FieldPhone      = "phone"
	FieldCompany    = "company"
)

// CustomTarget marks a column that is kept verbatim in the row's custom data.
const CustomTarget = "custom"

// ReservedCodeKey is the custom-data key holding the generated attendee code.
// A user-supplied column with the same header is overwritten by the generated
// value; the reserved key always wins.
const ReservedCodeKey = "attendee_code"

// RequiredFields must each be mapped to exactly one source column.
var RequiredFields = []string{FieldName, FieldEmail, FieldTicketType}

// DefaultAliases maps target fields to common CSV header spellings.
var DefaultAliases = map[string][]string{
	FieldName:       {"name", "full_name", "fullname", "attendee_name", "attendee", "full name"},
	FieldEmail:      {"email", "email_address", "e-mail", "emailaddress", "mail", "attendee_email"},
	FieldTicketType: {"ticket", "ticket_type", "tickettype", "ticket_name", "ticket_title", "ticket type"},
	FieldPhone:      {"phone", "phone_number", "phonenumber", "mobile", "cell", "telephone", "tel"},
	FieldCompany:    {"company", "company_name", "companyname", "organization", "org", "business"},
}

// Limits caps the size of an accepted upload.
type Limits struct {
	MaxBytes int64
	MaxRows  int
}

// RawRow is one parsed data row. Number is 1-indexed and matches the row's
// position in the source file, excluding the header.
type RawRow struct {
	Number int
	Cells  []string
}

// ParseResult is the output of Parse.
type ParseResult struct {
	Headers []string
	Rows    []RawRow
}

// FieldMapping maps a source column name to a target field name or
// CustomTarget. Columns absent from the mapping are treated as custom.
type FieldMapping map[string]string

// CustomData is an insertion-ordered set of column/value pairs carried
// through to the persisted record.
type CustomData struct {
	keys   []string
	values map[string]string
}

// Set stores a value, preserving first-insertion order of keys.
func (c *CustomData) Set(key, value string) {
	if c.values == nil {
		c.values = make(map[string]string)
	}
	if _, ok := c.values[key]; !ok {
		c.keys = append(c.keys, key)
	}
	c.values[key] = value
}

// Get returns the value for key.
func (c *CustomData) Get(key string) (string, bool) {
	v, ok := c.values[key]
	return v, ok
}

// Keys returns the keys in insertion order.
func (c *CustomData) Keys() []string {
	out := make([]string, len(c.keys))
	copy(out, c.keys)
	return out
}

// Len returns the number of stored pairs.
func (c *CustomData) Len() int { return len(c.keys) }

// Map returns a copy of the pairs for persistence.
func (c *CustomData) Map() map[string]string {
	out := make(map[string]string, len(c.keys))
	for k, v := range c.values {
		out[k] = v
	}
	return out
}

// MappedRow is a semantically typed row produced by ApplyMapping.
// TicketTypeID and AllowedDuplicate are filled in by the validator.
type MappedRow struct {
	Number        int
	Name          string
	Email         string
	TicketTypeRef string
	Phone         string
	Company       string
	Custom        CustomData

	TicketTypeID     uuid.UUID
	AllowedDuplicate bool
}

// DuplicateStrategy controls how rows matching an existing attendee in the
// store are handled.
type DuplicateStrategy string

const (
	// DuplicateSkip excludes store duplicates from execution (default).
	DuplicateSkip DuplicateStrategy = "skip"
	// DuplicateCreate imports the row anyway as an intentional duplicate.
	DuplicateCreate DuplicateStrategy = "create"
)

// ValidationError is a row-scoped failure. Field is one of "name", "email",
// "ticketType" or "persistence".
type ValidationError struct {
	Row     int    `json:"row"`
	Field   string `json:"field"`
	Value   string `json:"value"`
	Message string `json:"message"`
}

// CapacityWarning flags a valid row that exceeds a ticket type's remaining
// capacity at validation time. The row is not excluded; capacity is enforced
// authoritatively at execution time.
type CapacityWarning struct {
	Row           int    `json:"row"`
	TicketTypeRef string `json:"ticket_type"`
	Message       string `json:"message"`
}

// ValidationReport is the output of Validate. Duplicates carries the
// row-addressable detail behind DuplicateCount; Errors holds only field and
// referential violations.
type ValidationReport struct {
	Valid          []MappedRow
	Errors         []ValidationError
	Duplicates     []ValidationError
	DuplicateCount int
	Warnings       []CapacityWarning
	TotalRows      int
}

// ImportStatus is the terminal state of a run.
type ImportStatus string

const (
	StatusCompleted ImportStatus = "completed"
	StatusFailed    ImportStatus = "failed"
	StatusCancelled ImportStatus = "cancelled"
)

// ImportResult is the final aggregated report for one run. For completed
// runs SuccessCount+FailureCount+DuplicateCount equals the number of data
// rows in the file.
type ImportResult struct {
	SuccessCount   int               `json:"success_count"`
	FailureCount   int               `json:"failure_count"`
	DuplicateCount int               `json:"duplicate_count"`
	Errors         []ValidationError `json:"errors,omitempty"`
	Duplicates     []ValidationError `json:"duplicates,omitempty"`
	Warnings       []CapacityWarning `json:"warnings,omitempty"`
	Status         ImportStatus      `json:"status"`
}

// Event is the scope for duplicate detection and ticket resolution. The
// caller is responsible for verifying the acting principal owns it.
type Event struct {
	ID   uuid.UUID
	Name string
}

// TicketType is a resolvable ticket reference with remaining capacity.
// Remaining < 0 means unlimited.
type TicketType struct {
	ID        uuid.UUID
	EventID   uuid.UUID
	Name      string
	Remaining int
}

// Attendee is the persisted record assembled by the executor.
type Attendee struct {
	ID           uuid.UUID
	EventID      uuid.UUID
	TicketTypeID uuid.UUID
	Name         string
	Email        string
	Phone        string
	Company      string
	Code         string
	Custom       map[string]string
}

// Store is the persistence collaborator. FindAttendeeByEmail returns
// (nil, nil) when no record matches; ResolveTicketType returns (nil, nil)
// for an unknown reference.
type Store interface {
	FindAttendeeByEmail(ctx context.Context, eventID uuid.UUID, normalizedEmail string) (*Attendee, error)
	ResolveTicketType(ctx context.Context, eventID uuid.UUID, ref string) (*TicketType, error)
	CreateAttendee(ctx context.Context, a *Attendee) error
}

// Notifier dispatches confirmation emails. Failures are logged by the
// executor and never affect the import outcome.
type Notifier interface {
	SendConfirmation(ctx context.Context, a *Attendee, ev *Event) error
}
