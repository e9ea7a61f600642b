package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/attendee-import/internal/importer"
	"github.com/ignite/attendee-import/internal/worker"
)

type fakeBackend struct {
	mu        sync.Mutex
	event     *importer.Event
	tickets   map[string]*importer.TicketType
	attendees map[string]*importer.Attendee
	created   []*importer.Attendee
	jobs      map[uuid.UUID]string
}

func newFakeBackend() *fakeBackend {
	ev := &importer.Event{ID: uuid.New(), Name: "GopherConf"}
	return &fakeBackend{
		event: ev,
		tickets: map[string]*importer.TicketType{
			"general": {ID: uuid.New(), EventID: ev.ID, Name: "General", Remaining: -1},
		},
		attendees: make(map[string]*importer.Attendee),
		jobs:      make(map[uuid.UUID]string),
	}
}

func (f *fakeBackend) GetEvent(ctx context.Context, id uuid.UUID) (*importer.Event, error) {
	if id == f.event.ID {
		return f.event, nil
	}
	return nil, nil
}

func (f *fakeBackend) FindAttendeeByEmail(ctx context.Context, eventID uuid.UUID, email string) (*importer.Attendee, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attendees[email], nil
}

func (f *fakeBackend) ResolveTicketType(ctx context.Context, eventID uuid.UUID, ref string) (*importer.TicketType, error) {
	return f.tickets[strings.ToLower(ref)], nil
}

func (f *fakeBackend) CreateAttendee(ctx context.Context, a *importer.Attendee) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attendees[importer.NormalizeEmail(a.Email)] = a
	f.created = append(f.created, a)
	return nil
}

func (f *fakeBackend) CreateImportJob(ctx context.Context, jobID, eventID uuid.UUID, filename string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs[jobID] = "running"
	return nil
}

func (f *fakeBackend) CompleteImportJob(ctx context.Context, jobID uuid.UUID, result *importer.ImportResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs[jobID] = string(result.Status)
	return nil
}

func (f *fakeBackend) FailImportJob(ctx context.Context, jobID uuid.UUID, cause string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs[jobID] = "failed"
	return nil
}

func (f *fakeBackend) createdCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.created)
}

func newTestServer(t *testing.T) (*httptest.Server, *fakeBackend, *worker.ImportSessionService) {
	t.Helper()
	backend := newFakeBackend()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	svc := importer.NewService(backend, nil)
	sessions := worker.NewImportSessionService(client)
	h := NewHandlers(backend, backend, svc, sessions, nil)
	ts := httptest.NewServer(SetupRoutes(h))
	t.Cleanup(ts.Close)
	return ts, backend, sessions
}

func multipartUpload(t *testing.T, csv string, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fw, err := w.CreateFormFile("file", "attendees.csv")
	require.NoError(t, err)
	_, err = fw.Write([]byte(csv))
	require.NoError(t, err)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

const testCSV = "Full Name,Email,Ticket Type\nAlice,alice@x.com,General\nBob,bad-email,General\n"

func decodeBody(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	defer resp.Body.Close()
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func TestHealth(t *testing.T) {
	ts, _, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", decodeBody(t, resp)["status"])
}

func TestPreview_ReportsWithoutPersisting(t *testing.T) {
	ts, backend, _ := newTestServer(t)

	buf, contentType := multipartUpload(t, testCSV, nil)
	resp, err := http.Post(ts.URL+"/api/events/"+backend.event.ID.String()+"/import/preview", contentType, buf)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, float64(2), body["total_rows"])
	assert.Equal(t, float64(1), body["valid_rows"])
	assert.Len(t, body["errors"], 1)
	assert.Equal(t, 0, backend.createdCount())
}

func TestPreview_UnknownEvent(t *testing.T) {
	ts, _, _ := newTestServer(t)

	buf, contentType := multipartUpload(t, testCSV, nil)
	resp, err := http.Post(ts.URL+"/api/events/"+uuid.New().String()+"/import/preview", contentType, buf)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestPreview_MalformedFile(t *testing.T) {
	ts, backend, _ := newTestServer(t)

	buf, contentType := multipartUpload(t, "\xff\xfe\x00bad", nil)
	resp, err := http.Post(ts.URL+"/api/events/"+backend.event.ID.String()+"/import/preview", contentType, buf)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	resp.Body.Close()
}

func TestImport_RunsInBackground(t *testing.T) {
	ts, backend, _ := newTestServer(t)

	buf, contentType := multipartUpload(t, testCSV, map[string]string{"strategy": "skip"})
	resp, err := http.Post(ts.URL+"/api/events/"+backend.event.ID.String()+"/import", contentType, buf)
	require.NoError(t, err)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	jobID := decodeBody(t, resp)["job_id"].(string)
	require.NotEmpty(t, jobID)

	var status map[string]interface{}
	assert.Eventually(t, func() bool {
		r, err := http.Get(ts.URL + "/api/import/" + jobID)
		if err != nil {
			return false
		}
		status = decodeBody(t, r)
		return status["status"] == "completed"
	}, 5*time.Second, 20*time.Millisecond)

	assert.Equal(t, 1, backend.createdCount())
	progress := status["progress"].(map[string]interface{})
	// Only the valid row is attempted; the field-error row never reaches
	// the executor and must not inflate the attempted figure.
	assert.Equal(t, float64(1), progress["attempted_rows"])
	result := progress["result"].(map[string]interface{})
	assert.Equal(t, float64(1), result["success_count"])
	assert.Equal(t, float64(1), result["failure_count"])
}

func TestImport_ConflictWhileLocked(t *testing.T) {
	ts, backend, sessions := newTestServer(t)

	// Hold the event's scope lock to simulate an in-flight import.
	release, err := sessions.AcquireScopeLock(context.Background(), backend.event.ID)
	require.NoError(t, err)
	defer release()

	buf, contentType := multipartUpload(t, testCSV, nil)
	resp, err := http.Post(ts.URL+"/api/events/"+backend.event.ID.String()+"/import", contentType, buf)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestImportStatus_UnknownJob(t *testing.T) {
	ts, _, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/import/" + uuid.New().String())
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestImport_UnknownStrategy(t *testing.T) {
	ts, backend, _ := newTestServer(t)

	buf, contentType := multipartUpload(t, testCSV, map[string]string{"strategy": "upsert"})
	resp, err := http.Post(ts.URL+"/api/events/"+backend.event.ID.String()+"/import", contentType, buf)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}
