package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ignite/attendee-import/internal/archive"
	"github.com/ignite/attendee-import/internal/importer"
	"github.com/ignite/attendee-import/internal/worker"
)

// =============================================================================
// IMPORT HANDLERS
// =============================================================================
// HTTP handlers for the attendee import API:
// - Preview (dry-run validation, nothing persisted)
// - Import submission (runs in the background, returns a job ID)
// - Job status polling

// EventStore loads events for scope checks.
type EventStore interface {
	GetEvent(ctx context.Context, id uuid.UUID) (*importer.Event, error)
}

// JobStore keeps the durable import job records.
type JobStore interface {
	CreateImportJob(ctx context.Context, jobID, eventID uuid.UUID, filename string) error
	CompleteImportJob(ctx context.Context, jobID uuid.UUID, result *importer.ImportResult) error
	FailImportJob(ctx context.Context, jobID uuid.UUID, cause string) error
}

// Handlers provides the import API endpoints.
type Handlers struct {
	events   EventStore
	jobs     JobStore
	svc      *importer.Service
	sessions *worker.ImportSessionService
	archiver *archive.Archiver
}

// NewHandlers creates the handler set.
func NewHandlers(events EventStore, jobs JobStore, svc *importer.Service, sessions *worker.ImportSessionService, archiver *archive.Archiver) *Handlers {
	return &Handlers{
		events:   events,
		jobs:     jobs,
		svc:      svc,
		sessions: sessions,
		archiver: archiver,
	}
}

// HandleHealth reports liveness.
// GET /health
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// importRequest is the parsed multipart submission shared by preview and
// import.
type importRequest struct {
	event    *importer.Event
	content  []byte
	filename string
	mapping  importer.FieldMapping
	strategy importer.DuplicateStrategy
	notify   bool
}

func (h *Handlers) parseImportRequest(w http.ResponseWriter, r *http.Request) (*importRequest, bool) {
	eventID, err := uuid.Parse(chi.URLParam(r, "eventID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid event ID")
		return nil, false
	}

	ev, err := h.events.GetEvent(r.Context(), eventID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "loading event: "+err.Error())
		return nil, false
	}
	if ev == nil {
		writeError(w, http.StatusNotFound, "event not found")
		return nil, false
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.svc.Limits.MaxBytes+1024*1024)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "parsing multipart form: "+err.Error())
		return nil, false
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file field")
		return nil, false
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "reading upload: "+err.Error())
		return nil, false
	}

	req := &importRequest{
		event:    ev,
		content:  content,
		filename: header.Filename,
		strategy: importer.DuplicateSkip,
		notify:   r.FormValue("send_notifications") == "true",
	}

	if raw := r.FormValue("mapping"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &req.mapping); err != nil {
			writeError(w, http.StatusBadRequest, "invalid mapping JSON: "+err.Error())
			return nil, false
		}
	}

	switch r.FormValue("strategy") {
	case "", string(importer.DuplicateSkip):
	case string(importer.DuplicateCreate):
		req.strategy = importer.DuplicateCreate
	default:
		writeError(w, http.StatusBadRequest, "unknown duplicate strategy")
		return nil, false
	}

	return req, true
}

// HandlePreview validates an upload without persisting anything.
// POST /api/events/{eventID}/import/preview
func (h *Handlers) HandlePreview(w http.ResponseWriter, r *http.Request) {
	req, ok := h.parseImportRequest(w, r)
	if !ok {
		return
	}

	report, err := h.svc.Validate(r.Context(), req.content, req.event, req.mapping, req.strategy)
	if err != nil {
		writeImportError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"total_rows":      report.TotalRows,
		"valid_rows":      len(report.Valid),
		"errors":          report.Errors,
		"duplicates":      report.Duplicates,
		"duplicate_count": report.DuplicateCount,
		"warnings":        report.Warnings,
	})
}

// HandleImport accepts an upload and runs the import in the background.
// POST /api/events/{eventID}/import
func (h *Handlers) HandleImport(w http.ResponseWriter, r *http.Request) {
	req, ok := h.parseImportRequest(w, r)
	if !ok {
		return
	}

	release, err := h.sessions.AcquireScopeLock(r.Context(), req.event.ID)
	if err != nil {
		if errors.Is(err, worker.ErrImportLocked) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	session, err := h.sessions.CreateSession(r.Context(), req.event.ID, req.filename, req.strategy, req.notify)
	if err != nil {
		release()
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	jobID := uuid.MustParse(session.ID)
	if err := h.jobs.CreateImportJob(r.Context(), jobID, req.event.ID, req.filename); err != nil {
		release()
		writeError(w, http.StatusInternalServerError, "creating import job: "+err.Error())
		return
	}

	go h.runImport(session, jobID, req, release)

	writeJSON(w, http.StatusAccepted, map[string]string{
		"job_id": session.ID,
		"status": session.Status,
	})
}

// runImport executes the import pipeline outside the request lifecycle.
func (h *Handlers) runImport(session *worker.ImportSession, jobID uuid.UUID, req *importRequest, release func()) {
	defer release()
	ctx := context.Background()

	if key, err := h.archiver.Store(ctx, session.ID, req.filename, req.content); err != nil {
		log.Printf("[ImportAPI] Archive failed for job %s: %v", session.ID, err)
	} else if key != "" {
		log.Printf("[ImportAPI] Archived job %s upload to %s", session.ID, key)
	}

	h.sessions.SetStatus(ctx, session, "importing", "")
	h.sessions.SetProgress(ctx, &worker.ImportProgress{
		SessionID: session.ID,
		Status:    "running",
		Phase:     "validating",
	})

	var attemptedRows, validRows int
	result, err := h.svc.Run(ctx, req.content, req.event, importer.RunOptions{
		Mapping:           req.mapping,
		Strategy:          req.strategy,
		SendNotifications: req.notify,
		OnProgress: func(attempted, total int) {
			attemptedRows, validRows = attempted, total
			h.sessions.SetProgress(ctx, &worker.ImportProgress{
				SessionID:     session.ID,
				Status:        "running",
				Phase:         "importing",
				TotalRows:     total,
				AttemptedRows: attempted,
			})
		},
	})
	if err != nil {
		log.Printf("[ImportAPI] Job %s failed: %v", session.ID, err)
		h.sessions.SetStatus(ctx, session, "failed", err.Error())
		h.sessions.SetProgress(ctx, &worker.ImportProgress{
			SessionID: session.ID,
			Status:    "failed",
		})
		if dbErr := h.jobs.FailImportJob(ctx, jobID, err.Error()); dbErr != nil {
			log.Printf("[ImportAPI] Failed to record job %s failure: %v", session.ID, dbErr)
		}
		return
	}

	status := "completed"
	if result.Status == importer.StatusCancelled {
		status = "cancelled"
	}
	h.sessions.SetStatus(ctx, session, status, "")
	h.sessions.SetProgress(ctx, &worker.ImportProgress{
		SessionID:     session.ID,
		Status:        status,
		Phase:         "importing",
		TotalRows:     validRows,
		AttemptedRows: attemptedRows,
		Result:        result,
	})
	if dbErr := h.jobs.CompleteImportJob(ctx, jobID, result); dbErr != nil {
		log.Printf("[ImportAPI] Failed to record job %s result: %v", session.ID, dbErr)
	}
	log.Printf("[ImportAPI] Job %s finished: %d imported, %d failed, %d duplicates",
		session.ID, result.SuccessCount, result.FailureCount, result.DuplicateCount)
}

// HandleImportStatus reports the state of a submitted import.
// GET /api/import/{jobID}
func (h *Handlers) HandleImportStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	session, err := h.sessions.GetSession(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, worker.ErrSessionNotFound) || errors.Is(err, worker.ErrSessionExpired) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	progress, err := h.sessions.GetProgress(r.Context(), jobID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"job_id":   session.ID,
		"event_id": session.EventID,
		"filename": session.Filename,
		"status":   session.Status,
		"error":    session.Error,
		"progress": progress,
	})
}

// writeImportError maps pipeline errors to HTTP responses.
func writeImportError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, importer.ErrFormat),
		errors.Is(err, importer.ErrLimitExceeded),
		errors.Is(err, importer.ErrMissingRequiredField):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, importer.ErrInvalidScope):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
