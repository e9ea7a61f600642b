package worker

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/attendee-import/internal/importer"
)

func newTestService(t *testing.T) (*ImportSessionService, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewImportSessionService(client), mr
}

func TestCreateAndGetSession(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	eventID := uuid.New()

	session, err := svc.CreateSession(ctx, eventID, "attendees.csv", importer.DuplicateSkip, true)
	require.NoError(t, err)
	assert.NotEmpty(t, session.ID)
	assert.Equal(t, "pending", session.Status)

	got, err := svc.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, eventID.String(), got.EventID)
	assert.Equal(t, "attendees.csv", got.Filename)
	assert.Equal(t, importer.DuplicateSkip, got.Strategy)
	assert.True(t, got.SendNotifications)
}

func TestGetSession_NotFound(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.GetSession(context.Background(), uuid.New().String())
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestGetSession_ExpiresWithTTL(t *testing.T) {
	svc, mr := newTestService(t)
	ctx := context.Background()

	session, err := svc.CreateSession(ctx, uuid.New(), "a.csv", importer.DuplicateSkip, false)
	require.NoError(t, err)

	mr.FastForward(SessionTTL + time.Minute)

	_, err = svc.GetSession(ctx, session.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSetStatus(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	session, err := svc.CreateSession(ctx, uuid.New(), "a.csv", importer.DuplicateCreate, false)
	require.NoError(t, err)

	svc.SetStatus(ctx, session, "importing", "")
	got, err := svc.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, "importing", got.Status)

	svc.SetStatus(ctx, session, "failed", "store unavailable")
	got, err = svc.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, "failed", got.Status)
	assert.Equal(t, "store unavailable", got.Error)
}

func TestProgressRoundTrip(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	id := uuid.New().String()

	svc.SetProgress(ctx, &ImportProgress{
		SessionID:     id,
		Status:        "running",
		Phase:         "importing",
		TotalRows:     100,
		AttemptedRows: 42,
	})

	got, err := svc.GetProgress(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "running", got.Status)
	assert.Equal(t, "importing", got.Phase)
	assert.Equal(t, 100, got.TotalRows)
	assert.Equal(t, 42, got.AttemptedRows)
	assert.False(t, got.UpdatedAt.IsZero())
}

func TestGetProgress_UnknownSession(t *testing.T) {
	svc, _ := newTestService(t)

	got, err := svc.GetProgress(context.Background(), "nope")
	require.NoError(t, err)
	assert.Equal(t, "unknown", got.Status)
}

func TestScopeLock_SerializesEvent(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	eventID := uuid.New()

	release, err := svc.AcquireScopeLock(ctx, eventID)
	require.NoError(t, err)

	_, err = svc.AcquireScopeLock(ctx, eventID)
	assert.ErrorIs(t, err, ErrImportLocked)

	// A different event is unaffected.
	other, err := svc.AcquireScopeLock(ctx, uuid.New())
	require.NoError(t, err)
	other()

	release()
	release2, err := svc.AcquireScopeLock(ctx, eventID)
	require.NoError(t, err)
	release2()
}

func TestScopeLock_StaleReleaseIsNoop(t *testing.T) {
	svc, mr := newTestService(t)
	ctx := context.Background()
	eventID := uuid.New()

	stale, err := svc.AcquireScopeLock(ctx, eventID)
	require.NoError(t, err)

	mr.FastForward(ImportLockTTL + time.Minute)

	current, err := svc.AcquireScopeLock(ctx, eventID)
	require.NoError(t, err)

	// The expired holder must not release the new holder's lock.
	stale()
	_, err = svc.AcquireScopeLock(ctx, eventID)
	assert.ErrorIs(t, err, ErrImportLocked)

	current()
}
