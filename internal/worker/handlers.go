// Package worker provides the HTTP worker service for the pilot console.
package worker

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pilotlabs/console/internal/db/gorm"
	"github.com/pilotlabs/console/internal/worker/session"
	"github.com/rs/zerolog/log"
)

// DefaultPromptsLimit is the default number of prompts to return.
const DefaultPromptsLimit = 100

// DuplicatePromptWindowSeconds is the window for detecting duplicate prompt
// submissions. The user-prompt hook can fire more than once for the same
// user action; a repeat within this window is treated as the same prompt.
const DuplicatePromptWindowSeconds = 10

// writeJSON writes a JSON response with proper error handling.
func writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// handleHealth handles health check requests.
// Returns 200 OK immediately (even during init) so hooks can connect
// quickly. Use /api/ready for the full readiness check.
func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "starting"
	if s.ready.Load() {
		status = "ready"
	} else if err := s.GetInitError(); err != nil {
		status = "error"
	}
	writeJSON(w, map[string]interface{}{
		"status":  status,
		"version": s.version,
	})
}

// handleVersion returns the worker version for stale-worker detection.
func (s *Service) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{
		"version": s.version,
	})
}

// handleReady handles readiness check requests.
// Returns 200 only when fully initialized, 503 otherwise.
func (s *Service) handleReady(w http.ResponseWriter, r *http.Request) {
	if !s.ready.Load() {
		if err := s.GetInitError(); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		http.Error(w, "service initializing", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, map[string]string{"status": "ready"})
}

// requireReady is middleware that returns 503 if the service isn't ready.
func (s *Service) requireReady(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.ready.Load() {
			if err := s.GetInitError(); err != nil {
				http.Error(w, "service initialization failed: "+err.Error(), http.StatusInternalServerError)
				return
			}
			http.Error(w, "service initializing", http.StatusServiceUnavailable)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// SessionInitRequest is the request body for session initialization.
type SessionInitRequest struct {
	ContentSessionID string `json:"contentSessionId"`
	Project          string `json:"project"`
	Prompt           string `json:"prompt"`
}

// SessionInitResponse is the response for session initialization.
type SessionInitResponse struct {
	SessionDBID  int64 `json:"sessionDbId"`
	PromptNumber int   `json:"promptNumber"`
}

// handleSessionInit handles session initialization from the user-prompt
// hook. Idempotent: a duplicate request within a short window returns the
// existing prompt data without creating new rows.
func (s *Service) handleSessionInit(w http.ResponseWriter, r *http.Request) {
	var req SessionInitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.ContentSessionID == "" {
		http.Error(w, "contentSessionId required", http.StatusBadRequest)
		return
	}

	// Duplicate detection: the hook can fire more than once for the same
	// user action. Returning the existing prompt keeps numbering stable.
	if _, existingNum, found := s.promptStore.FindRecentPromptByText(r.Context(), req.ContentSessionID, req.Prompt, DuplicatePromptWindowSeconds); found {
		sessionID, _ := s.sessionStore.CreateSession(r.Context(), req.ContentSessionID, req.Project, req.Prompt)

		log.Debug().
			Int64("sessionId", sessionID).
			Int("promptNumber", existingNum).
			Msg("Duplicate prompt detected - returning existing")

		writeJSON(w, SessionInitResponse{
			SessionDBID:  sessionID,
			PromptNumber: existingNum,
		})
		return
	}

	sessionID, err := s.sessionStore.CreateSession(r.Context(), req.ContentSessionID, req.Project, req.Prompt)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	promptNum, err := s.sessionStore.IncrementPromptCounter(r.Context(), sessionID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if _, err := s.promptStore.SavePrompt(r.Context(), req.ContentSessionID, promptNum, req.Prompt); err != nil {
		// Non-fatal: the session itself is initialized
		log.Warn().Err(err).Msg("Failed to save user prompt")
	}

	log.Info().
		Int64("sessionId", sessionID).
		Int("promptNumber", promptNum).
		Str("project", req.Project).
		Msg("Session initialized")

	s.sseBroadcaster.Broadcast("prompt", map[string]interface{}{
		"action":  "created",
		"project": req.Project,
	})

	writeJSON(w, SessionInitResponse{
		SessionDBID:  sessionID,
		PromptNumber: promptNum,
	})
}

// SessionStartRequest is the request body for registering an active session.
type SessionStartRequest struct {
	UserPrompt   string `json:"userPrompt"`
	PromptNumber int    `json:"promptNumber"`
}

// handleSessionStart registers a session with the in-memory manager so its
// queued work is attributed and swept correctly.
func (s *Service) handleSessionStart(w http.ResponseWriter, r *http.Request) {
	idStr := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		http.Error(w, "invalid session id", http.StatusBadRequest)
		return
	}

	var req SessionStartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	sess, err := s.sessionManager.InitializeSession(r.Context(), id, req.UserPrompt, req.PromptNumber)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if sess == nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	log.Info().
		Int64("sessionId", id).
		Int("promptNumber", req.PromptNumber).
		Msg("Session registered")

	s.broadcastProcessingStatus()
	w.WriteHeader(http.StatusOK)
}

// ObservationRequest is the request body for posting observations.
type ObservationRequest struct {
	ContentSessionID string          `json:"contentSessionId"`
	Project          string          `json:"project"`
	ToolName         string          `json:"tool_name"`
	ToolInput        json.RawMessage `json:"tool_input"`
	ToolResponse     json.RawMessage `json:"tool_response"`
	CWD              string          `json:"cwd"`
	PromptNumber     int             `json:"promptNumber"`
}

// handleObservation handles observation posting from the post-tool-use hook.
func (s *Service) handleObservation(w http.ResponseWriter, r *http.Request) {
	var req ObservationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.ContentSessionID == "" {
		http.Error(w, "contentSessionId required", http.StatusBadRequest)
		return
	}

	sess, err := s.sessionStore.FindSessionByContentID(r.Context(), req.ContentSessionID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if sess == nil {
		// Create session on-the-fly with project from request
		id, err := s.sessionStore.CreateSession(r.Context(), req.ContentSessionID, req.Project, "")
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		sess, _ = s.sessionStore.GetSessionByID(r.Context(), id)
		if sess == nil {
			http.Error(w, "session not found after create", http.StatusInternalServerError)
			return
		}
	}

	if err := s.sessionManager.QueueObservation(r.Context(), sess.ID, session.ObservationData{
		ToolName:     req.ToolName,
		ToolInput:    req.ToolInput,
		ToolResponse: req.ToolResponse,
		CWD:          req.CWD,
		PromptNumber: req.PromptNumber,
	}); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	s.broadcastProcessingStatus()
	w.WriteHeader(http.StatusOK)
}

// SummarizeRequest is the request body for summarize requests.
type SummarizeRequest struct {
	LastUserMessage      string `json:"lastUserMessage"`
	LastAssistantMessage string `json:"lastAssistantMessage"`
}

// handleSummarize handles summarize requests from the stop hook.
func (s *Service) handleSummarize(w http.ResponseWriter, r *http.Request) {
	idStr := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		http.Error(w, "invalid session id", http.StatusBadRequest)
		return
	}

	var req SummarizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.sessionManager.QueueSummarize(r.Context(), id, session.SummarizeData{
		LastUserMessage:      req.LastUserMessage,
		LastAssistantMessage: req.LastAssistantMessage,
	}); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	s.broadcastProcessingStatus()
	w.WriteHeader(http.StatusOK)
}

// handleDeleteSession removes a session and purges its queued messages.
// Safe to call for unknown ids: the queue purge is a no-op then.
func (s *Service) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	idStr := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		http.Error(w, "invalid session id", http.StatusBadRequest)
		return
	}

	if err := s.sessionManager.DeleteSession(r.Context(), id); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if err := s.sessionStore.MarkCompleted(r.Context(), id); err != nil {
		log.Warn().Err(err).Int64("sessionId", id).Msg("Failed to mark session completed")
	}

	writeJSON(w, map[string]bool{"success": true})
}

// handleGetSessionByContentID looks up a session by content session id.
func (s *Service) handleGetSessionByContentID(w http.ResponseWriter, r *http.Request) {
	contentSessionID := r.URL.Query().Get("contentSessionId")
	if contentSessionID == "" {
		http.Error(w, "contentSessionId required", http.StatusBadRequest)
		return
	}

	sess, err := s.sessionStore.FindSessionByContentID(r.Context(), contentSessionID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if sess == nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	writeJSON(w, sess)
}

// handleGetActiveSessions returns the manager's in-memory session handles.
func (s *Service) handleGetActiveSessions(w http.ResponseWriter, r *http.Request) {
	sessions := s.sessionManager.GetAllSessions()
	writeJSON(w, map[string]interface{}{
		"count":    len(sessions),
		"sessions": sessions,
	})
}

// handleGetQueue returns the pending-message queue, newest first.
func (s *Service) handleGetQueue(w http.ResponseWriter, r *http.Request) {
	messages, err := s.pendingStore.GetQueueMessages(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]interface{}{
		"count":    len(messages),
		"messages": messages,
	})
}

// handleGetStats returns worker statistics.
func (s *Service) handleGetStats(w http.ResponseWriter, r *http.Request) {
	sessionsToday, _ := s.sessionStore.GetSessionsToday(r.Context())
	hasWork, _ := s.pendingStore.HasAnyPendingWork(r.Context())

	response := map[string]interface{}{
		"uptime":           time.Since(s.startTime).String(),
		"activeSessions":   s.sessionManager.GetActiveSessionCount(),
		"isProcessing":     hasWork,
		"connectedClients": s.sseBroadcaster.ClientCount(),
		"sessionsToday":    sessionsToday,
		"ready":            s.ready.Load(),
	}

	if s.processor != nil {
		response["circuitBreaker"] = s.processor.CircuitBreakerMetrics()
	}

	writeJSON(w, response)
}

// handleGetProjects returns the distinct project names seen so far.
func (s *Service) handleGetProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.sessionStore.GetAllProjects(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]interface{}{"projects": projects})
}

// handleGetPrompts returns saved user prompts for a session.
func (s *Service) handleGetPrompts(w http.ResponseWriter, r *http.Request) {
	contentSessionID := r.URL.Query().Get("contentSessionId")
	if contentSessionID == "" {
		http.Error(w, "contentSessionId required", http.StatusBadRequest)
		return
	}
	limit := gorm.ParseLimitParam(r, DefaultPromptsLimit)

	prompts, err := s.promptStore.ListPrompts(r.Context(), contentSessionID, limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]interface{}{
		"count":   len(prompts),
		"prompts": prompts,
	})
}

// broadcastProcessingStatus pushes the current queue state to SSE clients.
func (s *Service) broadcastProcessingStatus() {
	hasWork, err := s.pendingStore.HasAnyPendingWork(s.ctx)
	if err != nil {
		return
	}
	s.sseBroadcaster.Broadcast("processing_status", map[string]interface{}{
		"isProcessing":   hasWork,
		"activeSessions": s.sessionManager.GetActiveSessionCount(),
	})
}
