// Package session provides session lifecycle management for the console worker.
package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/pilotlabs/console/internal/db/gorm"
	"github.com/pilotlabs/console/pkg/models"
)

// ObservationData contains data for a tool observation.
type ObservationData struct {
	ToolInput    json.RawMessage
	ToolResponse json.RawMessage
	ToolName     string
	CWD          string
	PromptNumber int
}

// SummarizeData contains data for a summarize request.
type SummarizeData struct {
	LastUserMessage      string
	LastAssistantMessage string
}

// SessionTimeout is how long an idle session can exist before cleanup.
const SessionTimeout = 30 * time.Minute

// CleanupInterval is how often to check for stale sessions.
const CleanupInterval = 5 * time.Minute

// Manager tracks active sessions in memory and routes their queued work into
// the durable pending-message store. When a session is deleted, its queue
// rows go with it: the map entry and the database rows are cleaned together
// so abandoned sessions never grow the queue.
type Manager struct {
	ctx           context.Context
	cancel        context.CancelFunc
	sessionStore  *gorm.SessionStore
	pendingStore  *gorm.PendingMessageStore
	sessions      map[int64]*models.ActiveSession
	onCreated     func(int64)
	onDeleted     func(int64)
	ProcessNotify chan struct{}
	mu            sync.RWMutex
}

// NewManager creates a new session manager and starts its cleanup loop.
func NewManager(sessionStore *gorm.SessionStore, pendingStore *gorm.PendingMessageStore) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		ctx:           ctx,
		cancel:        cancel,
		sessionStore:  sessionStore,
		pendingStore:  pendingStore,
		sessions:      make(map[int64]*models.ActiveSession),
		ProcessNotify: make(chan struct{}, 1),
	}
	go m.cleanupLoop()
	return m
}

// SetOnSessionCreated sets a callback for when a session is registered.
func (m *Manager) SetOnSessionCreated(callback func(int64)) {
	m.onCreated = callback
}

// SetOnSessionDeleted sets a callback for when a session is deleted.
func (m *Manager) SetOnSessionDeleted(callback func(int64)) {
	m.onDeleted = callback
}

// InitializeSession binds an in-memory handle to an existing persisted
// session row. Idempotent: re-initializing an active session only refreshes
// its prompt. Returns nil without error when no database row exists.
func (m *Manager) InitializeSession(ctx context.Context, sessionDBID int64, userPrompt string, promptNumber int) (*models.ActiveSession, error) {
	m.mu.Lock()
	if session, ok := m.sessions[sessionDBID]; ok {
		if userPrompt != "" {
			session.UserPrompt = userPrompt
			session.LastPromptNumber = promptNumber
		}
		session.LastActivity = time.Now()
		m.mu.Unlock()
		return session, nil
	}
	m.mu.Unlock()

	// Fetch outside the lock so a slow DB call doesn't block everyone
	dbSession, err := m.sessionStore.GetSessionByID(ctx, sessionDBID)
	if err != nil {
		return nil, err
	}
	if dbSession == nil {
		return nil, nil
	}

	prompt := userPrompt
	if prompt == "" && dbSession.UserPrompt.Valid {
		prompt = dbSession.UserPrompt.String
	}
	if promptNumber <= 0 {
		promptNumber, _ = m.sessionStore.GetPromptCounter(ctx, sessionDBID)
	}

	now := time.Now()
	session := &models.ActiveSession{
		SessionDBID:      sessionDBID,
		ContentSessionID: dbSession.ContentSessionID,
		Project:          dbSession.Project,
		UserPrompt:       prompt,
		LastPromptNumber: promptNumber,
		StartTime:        now,
		LastActivity:     now,
	}

	m.mu.Lock()
	if existing, ok := m.sessions[sessionDBID]; ok {
		m.mu.Unlock()
		return existing, nil
	}
	m.sessions[sessionDBID] = session
	onCreated := m.onCreated
	m.mu.Unlock()

	log.Info().
		Int64("sessionId", sessionDBID).
		Str("project", session.Project).
		Str("contentSessionId", session.ContentSessionID).
		Msg("Session initialized")

	if onCreated != nil {
		onCreated(sessionDBID)
	}

	return session, nil
}

// GetSession returns the in-memory handle for a session, or nil.
func (m *Manager) GetSession(sessionDBID int64) *models.ActiveSession {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions[sessionDBID]
}

// GetActiveSessionCount returns the number of active sessions.
func (m *Manager) GetActiveSessionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// GetAllSessions returns the active session handles.
func (m *Manager) GetAllSessions() []*models.ActiveSession {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sessions := make([]*models.ActiveSession, 0, len(m.sessions))
	for _, session := range m.sessions {
		sessions = append(sessions, session)
	}
	return sessions
}

// QueueObservation durably enqueues a tool observation for a session,
// auto-initializing the session from the database when needed.
func (m *Manager) QueueObservation(ctx context.Context, sessionDBID int64, data ObservationData) error {
	session, err := m.resolveSession(ctx, sessionDBID)
	if err != nil || session == nil {
		return err
	}

	_, err = m.pendingStore.Enqueue(ctx, sessionDBID, session.ContentSessionID, gorm.EnqueueParams{
		MessageType:  models.MessageTypeObservation,
		ToolName:     data.ToolName,
		ToolInput:    data.ToolInput,
		ToolResponse: data.ToolResponse,
		CWD:          data.CWD,
		PromptNumber: int64(data.PromptNumber),
	})
	if err != nil {
		return err
	}

	m.notifyProcessor()

	log.Info().
		Int64("sessionId", sessionDBID).
		Str("tool", data.ToolName).
		Msg("Observation queued")

	return nil
}

// QueueSummarize durably enqueues a summarize request for a session.
func (m *Manager) QueueSummarize(ctx context.Context, sessionDBID int64, data SummarizeData) error {
	session, err := m.resolveSession(ctx, sessionDBID)
	if err != nil || session == nil {
		return err
	}

	_, err = m.pendingStore.Enqueue(ctx, sessionDBID, session.ContentSessionID, gorm.EnqueueParams{
		MessageType:          models.MessageTypeSummarize,
		LastUserMessage:      data.LastUserMessage,
		LastAssistantMessage: data.LastAssistantMessage,
		PromptNumber:         int64(session.LastPromptNumber),
	})
	if err != nil {
		return err
	}

	m.notifyProcessor()

	log.Info().
		Int64("sessionId", sessionDBID).
		Msg("Summarize request queued")

	return nil
}

// DeleteSession removes a session's in-memory handle and purges its queue
// rows. Safe to call for ids the manager never tracked (including after a
// process restart): the map removal is skipped but the queue purge still
// runs, so the cleanup invariant holds either way.
func (m *Manager) DeleteSession(ctx context.Context, sessionDBID int64) error {
	m.mu.Lock()
	session, tracked := m.sessions[sessionDBID]
	if tracked {
		delete(m.sessions, sessionDBID)
	}
	onDeleted := m.onDeleted
	m.mu.Unlock()

	deleted, err := m.pendingStore.DeleteAllForSession(ctx, sessionDBID)
	if err != nil {
		return err
	}

	if tracked {
		log.Info().
			Int64("sessionId", sessionDBID).
			Str("project", session.Project).
			Dur("duration", time.Since(session.StartTime)).
			Int64("purgedMessages", deleted).
			Msg("Session deleted")
	} else if deleted > 0 {
		log.Info().
			Int64("sessionId", sessionDBID).
			Int64("purgedMessages", deleted).
			Msg("Purged queue rows for untracked session")
	}

	if onDeleted != nil {
		onDeleted(sessionDBID)
	}

	return nil
}

// ShutdownAll deletes every active session.
func (m *Manager) ShutdownAll(ctx context.Context) {
	m.cancel()

	m.mu.Lock()
	sessionIDs := make([]int64, 0, len(m.sessions))
	for id := range m.sessions {
		sessionIDs = append(sessionIDs, id)
	}
	m.mu.Unlock()

	for _, id := range sessionIDs {
		if err := m.DeleteSession(ctx, id); err != nil {
			log.Warn().Err(err).Int64("sessionId", id).Msg("Failed to delete session during shutdown")
		}
	}

	log.Info().Int("count", len(sessionIDs)).Msg("All sessions shut down")
}

// resolveSession returns the tracked handle or auto-initializes it.
func (m *Manager) resolveSession(ctx context.Context, sessionDBID int64) (*models.ActiveSession, error) {
	m.mu.Lock()
	if session, ok := m.sessions[sessionDBID]; ok {
		session.LastActivity = time.Now()
		m.mu.Unlock()
		return session, nil
	}
	m.mu.Unlock()
	return m.InitializeSession(ctx, sessionDBID, "", 0)
}

// notifyProcessor nudges the dispatcher without blocking.
func (m *Manager) notifyProcessor() {
	select {
	case m.ProcessNotify <- struct{}{}:
	default:
	}
}

// cleanupLoop periodically removes stale sessions.
func (m *Manager) cleanupLoop() {
	ticker := time.NewTicker(CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.cleanupStaleSessions()
		}
	}
}

// cleanupStaleSessions deletes sessions idle past SessionTimeout that have
// no undelivered queue rows.
func (m *Manager) cleanupStaleSessions() {
	m.mu.RLock()
	var candidates []int64
	now := time.Now()
	for id, session := range m.sessions {
		if now.Sub(session.LastActivity) > SessionTimeout {
			candidates = append(candidates, id)
		}
	}
	m.mu.RUnlock()

	for _, id := range candidates {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		count, err := m.pendingStore.GetPendingCount(ctx, id)
		if err == nil && count == 0 {
			log.Info().Int64("sessionId", id).Msg("Cleaning up stale session")
			if err := m.DeleteSession(ctx, id); err != nil {
				log.Warn().Err(err).Int64("sessionId", id).Msg("Stale session cleanup failed")
			}
		}
		cancel()
	}
}
