package importer

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log"
	"strings"

	"github.com/google/uuid"
)

// ExecuteOptions controls a single execution run.
type ExecuteOptions struct {
	SendNotifications bool
	// OnRow, when set, is invoked after each attempted row with the number
	// of rows attempted so far. Used for progress reporting.
	OnRow func(attempted int)
}

// ExecOutcome holds the per-row results of one execution run.
type ExecOutcome struct {
	Success   int
	Failures  []ValidationError
	Attempted int
	Cancelled bool
}

// Executor persists validated rows one at a time, in original row order,
// with per-row failure isolation. There is no rollback of previously
// committed rows: partial commit is the explicit policy, and a re-run of
// the same file is screened by the validator's store-duplicate phase.
type Executor struct {
	store    Store
	notifier Notifier
}

// NewExecutor creates an executor. notifier may be nil, in which case
// SendNotifications is a no-op.
func NewExecutor(store Store, notifier Notifier) *Executor {
	return &Executor{store: store, notifier: notifier}
}

// Execute attempts every row sequentially. A persistence failure is
// recorded and the loop moves on; only context cancellation, checked at row
// boundaries, stops the run early.
func (e *Executor) Execute(ctx context.Context, rows []MappedRow, ev *Event, opts ExecuteOptions) *ExecOutcome {
	outcome := &ExecOutcome{}

	for _, row := range rows {
		if ctx.Err() != nil {
			outcome.Cancelled = true
			log.Printf("[Importer] run cancelled after %d/%d rows; persisted rows are retained", outcome.Attempted, len(rows))
			break
		}

		outcome.Attempted++

		// A fresh code is generated for every row, duplicates included.
		code := GenerateCode()
		row.Custom.Set(ReservedCodeKey, code)

		attendee := &Attendee{
			ID:           uuid.New(),
			EventID:      ev.ID,
			TicketTypeID: row.TicketTypeID,
			Name:         strings.TrimSpace(row.Name),
			Email:        strings.TrimSpace(row.Email),
			Phone:        row.Phone,
			Company:      row.Company,
			Code:         code,
			Custom:       row.Custom.Map(),
		}

		if err := e.store.CreateAttendee(ctx, attendee); err != nil {
			outcome.Failures = append(outcome.Failures, ValidationError{
				Row:     row.Number,
				Field:   "persistence",
				Value:   row.Email,
				Message: err.Error(),
			})
			log.Printf("[Importer] row %d failed to persist (%s): %v", row.Number, attendee.Email, err)
			if opts.OnRow != nil {
				opts.OnRow(outcome.Attempted)
			}
			continue
		}

		outcome.Success++

		if opts.SendNotifications && e.notifier != nil {
			e.dispatchConfirmation(ctx, row.Number, attendee, ev)
		}
		if opts.OnRow != nil {
			opts.OnRow(outcome.Attempted)
		}
	}

	return outcome
}

// dispatchConfirmation fires the confirmation send without joining it to the
// row loop. The send outlives per-run cancellation; its failure is observed
// only for logging.
func (e *Executor) dispatchConfirmation(ctx context.Context, rowNumber int, a *Attendee, ev *Event) {
	sendCtx := context.WithoutCancel(ctx)
	go func() {
		if err := e.notifier.SendConfirmation(sendCtx, a, ev); err != nil {
			log.Printf("[Importer] confirmation send failed for row %d (%s): %v", rowNumber, a.Email, err)
		}
	}()
}

// GenerateCode returns a fresh 16-character uppercase hex code backed by 64
// bits from crypto/rand.
func GenerateCode() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand never fails on supported platforms
		panic("importer: crypto/rand unavailable: " + err.Error())
	}
	return strings.ToUpper(hex.EncodeToString(b))
}
