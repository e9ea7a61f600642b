package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ignite/attendee-import/internal/importer"
)

// =============================================================================
// IMPORT SESSION SERVICE - Run Tracking and Scope Locking
// =============================================================================
// Tracks import runs in Redis:
// - Session + progress JSON blobs with TTL, polled by the API layer
// - A per-event advisory lock serializing imports for the same event, since
//   overlapping runs would race on store-duplicate detection and ticket
//   capacity accounting

var (
	ErrSessionNotFound = errors.New("import session not found")
	ErrSessionExpired  = errors.New("import session has expired")
	ErrImportLocked    = errors.New("an import is already running for this event")
)

const (
	SessionTTL    = 24 * time.Hour
	CompletedTTL  = time.Hour
	ImportLockTTL = 30 * time.Minute
)

// ImportSession describes one submitted run.
type ImportSession struct {
	ID                string                     `json:"id"`
	EventID           string                     `json:"event_id"`
	Filename          string                     `json:"filename"`
	Strategy          importer.DuplicateStrategy `json:"strategy"`
	SendNotifications bool                       `json:"send_notifications"`
	Status            string                     `json:"status"` // pending, validating, importing, completed, failed, cancelled
	Error             string                     `json:"error,omitempty"`
	CreatedAt         time.Time                  `json:"created_at"`
	ExpiresAt         time.Time                  `json:"expires_at"`
}

// ImportProgress is the polled view of a running import.
type ImportProgress struct {
	SessionID      string                 `json:"session_id"`
	Status         string                 `json:"status"`
	Phase          string                 `json:"phase"` // validating, importing
	TotalRows      int                    `json:"total_rows"`
	AttemptedRows  int                    `json:"attempted_rows"`
	Result         *importer.ImportResult `json:"result,omitempty"`
	UpdatedAt      time.Time              `json:"updated_at"`
}

// ImportSessionService stores sessions, progress and scope locks in Redis.
type ImportSessionService struct {
	redis *redis.Client
}

// NewImportSessionService creates a session service.
func NewImportSessionService(redisClient *redis.Client) *ImportSessionService {
	return &ImportSessionService{redis: redisClient}
}

// CreateSession registers a new run and returns its session.
func (s *ImportSessionService) CreateSession(ctx context.Context, eventID uuid.UUID, filename string, strategy importer.DuplicateStrategy, notify bool) (*ImportSession, error) {
	session := &ImportSession{
		ID:                uuid.New().String(),
		EventID:           eventID.String(),
		Filename:          filename,
		Strategy:          strategy,
		SendNotifications: notify,
		Status:            "pending",
		CreatedAt:         time.Now(),
		ExpiresAt:         time.Now().Add(SessionTTL),
	}
	if err := s.saveSession(ctx, session, SessionTTL); err != nil {
		return nil, fmt.Errorf("storing import session: %w", err)
	}
	log.Printf("[ImportSession] Created session %s for event %s (file=%s)", session.ID, eventID, filename)
	return session, nil
}

// GetSession retrieves a session by ID.
func (s *ImportSessionService) GetSession(ctx context.Context, sessionID string) (*ImportSession, error) {
	data, err := s.redis.Get(ctx, s.sessionKey(sessionID)).Bytes()
	if err == redis.Nil {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}

	var session ImportSession
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, err
	}
	if time.Now().After(session.ExpiresAt) {
		return nil, ErrSessionExpired
	}
	return &session, nil
}

// SetStatus updates the session status; terminal sessions are kept for a
// shorter window.
func (s *ImportSessionService) SetStatus(ctx context.Context, session *ImportSession, status, errMsg string) {
	session.Status = status
	session.Error = errMsg
	ttl := SessionTTL
	switch status {
	case "completed", "failed", "cancelled":
		ttl = CompletedTTL
	}
	if err := s.saveSession(ctx, session, ttl); err != nil {
		log.Printf("[ImportSession] Failed to update session %s: %v", session.ID, err)
	}
}

// SetProgress writes the progress blob for a session.
func (s *ImportSessionService) SetProgress(ctx context.Context, progress *ImportProgress) {
	progress.UpdatedAt = time.Now()
	data, _ := json.Marshal(progress)
	if err := s.redis.Set(ctx, s.progressKey(progress.SessionID), data, SessionTTL).Err(); err != nil {
		log.Printf("[ImportSession] Failed to update progress for %s: %v", progress.SessionID, err)
	}
}

// GetProgress retrieves current progress; unknown sessions report status
// "unknown" rather than an error so pollers can retry.
func (s *ImportSessionService) GetProgress(ctx context.Context, sessionID string) (*ImportProgress, error) {
	data, err := s.redis.Get(ctx, s.progressKey(sessionID)).Bytes()
	if err == redis.Nil {
		return &ImportProgress{SessionID: sessionID, Status: "unknown"}, nil
	}
	if err != nil {
		return nil, err
	}

	var progress ImportProgress
	if err := json.Unmarshal(data, &progress); err != nil {
		return nil, err
	}
	return &progress, nil
}

// =============================================================================
// SCOPE LOCK
// =============================================================================

// releaseLockScript deletes the lock only while this holder's token is
// still in place. Compare and delete must be one atomic step: with a
// separate GET and DEL the key can expire and be reacquired in between,
// and a stale holder would delete the new holder's lock.
var releaseLockScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// AcquireScopeLock takes the per-event advisory lock. The returned release
// function gives the lock back; it is a no-op once the lock has expired.
func (s *ImportSessionService) AcquireScopeLock(ctx context.Context, eventID uuid.UUID) (func(), error) {
	token := uuid.New().String()
	key := s.lockKey(eventID)

	ok, err := s.redis.SetNX(ctx, key, token, ImportLockTTL).Result()
	if err != nil {
		return nil, fmt.Errorf("acquiring import lock: %w", err)
	}
	if !ok {
		return nil, ErrImportLocked
	}

	release := func() {
		if err := releaseLockScript.Run(context.Background(), s.redis, []string{key}, token).Err(); err != nil && err != redis.Nil {
			log.Printf("[ImportSession] Failed to release lock for event %s: %v", eventID, err)
		}
	}
	return release, nil
}

func (s *ImportSessionService) saveSession(ctx context.Context, session *ImportSession, ttl time.Duration) error {
	data, err := json.Marshal(session)
	if err != nil {
		return err
	}
	return s.redis.Set(ctx, s.sessionKey(session.ID), data, ttl).Err()
}

func (s *ImportSessionService) sessionKey(sessionID string) string {
	return fmt.Sprintf("import:session:%s", sessionID)
}

func (s *ImportSessionService) progressKey(sessionID string) string {
	return fmt.Sprintf("import:progress:%s", sessionID)
}

func (s *ImportSessionService) lockKey(eventID uuid.UUID) string {
	return fmt.Sprintf("import:lock:%s", eventID)
}
