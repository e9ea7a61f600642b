// Package store is the Postgres persistence layer behind the import
// pipeline: attendee lookups for duplicate detection, ticket-type
// resolution, and the per-row attendee insert that claims ticket capacity.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/ignite/attendee-import/internal/importer"
)

// Postgres implements importer.Store on database/sql.
type Postgres struct {
	db *sql.DB
}

// New creates a Postgres store.
func New(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// GetEvent loads an event scope by ID. Returns (nil, nil) when absent.
func (s *Postgres) GetEvent(ctx context.Context, id uuid.UUID) (*importer.Event, error) {
	var ev importer.Event
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name FROM events WHERE id = $1
	`, id).Scan(&ev.ID, &ev.Name)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading event: %w", err)
	}
	return &ev, nil
}

// FindAttendeeByEmail looks up an existing attendee within the event scope
// by normalized email. Returns (nil, nil) when no record matches.
func (s *Postgres) FindAttendeeByEmail(ctx context.Context, eventID uuid.UUID, normalizedEmail string) (*importer.Attendee, error) {
	var a importer.Attendee
	err := s.db.QueryRowContext(ctx, `
		SELECT id, event_id, ticket_type_id, name, email, code
		FROM attendees
		WHERE event_id = $1 AND LOWER(TRIM(email)) = $2
		LIMIT 1
	`, eventID, normalizedEmail).Scan(&a.ID, &a.EventID, &a.TicketTypeID, &a.Name, &a.Email, &a.Code)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("attendee lookup: %w", err)
	}
	return &a, nil
}

// ResolveTicketType resolves a ticket reference (case-insensitive name
// match) within the event scope. Returns (nil, nil) for an unknown
// reference. Remaining is -1 when the type has unlimited capacity.
func (s *Postgres) ResolveTicketType(ctx context.Context, eventID uuid.UUID, ref string) (*importer.TicketType, error) {
	var (
		t        importer.TicketType
		capacity sql.NullInt64
		sold     int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, event_id, name, quantity_available, quantity_sold
		FROM ticket_types
		WHERE event_id = $1 AND LOWER(name) = LOWER(TRIM($2))
		LIMIT 1
	`, eventID, ref).Scan(&t.ID, &t.EventID, &t.Name, &capacity, &sold)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ticket type lookup: %w", err)
	}

	if !capacity.Valid {
		t.Remaining = -1
	} else {
		t.Remaining = int(capacity.Int64 - sold)
		if t.Remaining < 0 {
			t.Remaining = 0
		}
	}
	return &t, nil
}

// CreateAttendee persists one attendee inside a transaction that also
// claims one unit of the ticket type's capacity. A sold-out ticket type or
// a unique violation maps to importer.ErrConstraint; the executor collects
// it and moves on to the next row.
func (s *Postgres) CreateAttendee(ctx context.Context, a *importer.Attendee) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE ticket_types
		SET quantity_sold = quantity_sold + 1
		WHERE id = $1
		  AND (quantity_available IS NULL OR quantity_sold < quantity_available)
	`, a.TicketTypeID)
	if err != nil {
		return fmt.Errorf("claiming ticket capacity: %w", err)
	}
	claimed, _ := res.RowsAffected()
	if claimed == 0 {
		return fmt.Errorf("%w: ticket type is sold out", importer.ErrConstraint)
	}

	customJSON, err := json.Marshal(a.Custom)
	if err != nil {
		return fmt.Errorf("encoding custom data: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO attendees (id, event_id, ticket_type_id, name, email, phone, company, code, custom_data, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
	`, a.ID, a.EventID, a.TicketTypeID, a.Name, a.Email, a.Phone, a.Company, a.Code, customJSON)
	if err != nil {
		if isConstraintViolation(err) {
			return fmt.Errorf("%w: %v", importer.ErrConstraint, err)
		}
		return fmt.Errorf("inserting attendee: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// isConstraintViolation reports whether err is a Postgres integrity
// constraint error (class 23: unique, foreign key, not null, check).
func isConstraintViolation(err error) bool {
	if pqErr, ok := err.(*pq.Error); ok {
		return pqErr.Code.Class() == "23"
	}
	return false
}

// =============================================================================
// IMPORT JOB BOOKKEEPING
// =============================================================================

// CreateImportJob records the start of a run.
func (s *Postgres) CreateImportJob(ctx context.Context, jobID, eventID uuid.UUID, filename string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO import_jobs (id, event_id, filename, status, started_at)
		VALUES ($1, $2, $3, 'processing', NOW())
	`, jobID, eventID, filename)
	return err
}

// CompleteImportJob records the final counts and report.
func (s *Postgres) CompleteImportJob(ctx context.Context, jobID uuid.UUID, result *importer.ImportResult) error {
	errorsJSON, err := json.Marshal(result.Errors)
	if err != nil {
		return fmt.Errorf("encoding errors: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE import_jobs
		SET status = $2, success_count = $3, failure_count = $4,
		    duplicate_count = $5, errors = $6, completed_at = NOW()
		WHERE id = $1
	`, jobID, string(result.Status), result.SuccessCount, result.FailureCount, result.DuplicateCount, errorsJSON)
	return err
}

// FailImportJob marks a run that never attempted any row.
func (s *Postgres) FailImportJob(ctx context.Context, jobID uuid.UUID, cause string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE import_jobs
		SET status = 'failed', error = $2, completed_at = NOW()
		WHERE id = $1
	`, jobID, cause)
	return err
}

// ImportJob is a bookkeeping row for one run.
type ImportJob struct {
	ID             uuid.UUID  `json:"id"`
	EventID        uuid.UUID  `json:"event_id"`
	Filename       string     `json:"filename"`
	Status         string     `json:"status"`
	SuccessCount   int        `json:"success_count"`
	FailureCount   int        `json:"failure_count"`
	DuplicateCount int        `json:"duplicate_count"`
	StartedAt      time.Time  `json:"started_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}

// GetImportJob loads one bookkeeping row. Returns (nil, nil) when absent.
func (s *Postgres) GetImportJob(ctx context.Context, jobID uuid.UUID) (*ImportJob, error) {
	var job ImportJob
	err := s.db.QueryRowContext(ctx, `
		SELECT id, event_id, filename, status, success_count, failure_count, duplicate_count, started_at, completed_at
		FROM import_jobs WHERE id = $1
	`, jobID).Scan(&job.ID, &job.EventID, &job.Filename, &job.Status,
		&job.SuccessCount, &job.FailureCount, &job.DuplicateCount, &job.StartedAt, &job.CompletedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading import job: %w", err)
	}
	return &job, nil
}
