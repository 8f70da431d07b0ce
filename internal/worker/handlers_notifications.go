package worker

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/pilotlabs/console/internal/db/gorm"
	"github.com/rs/zerolog/log"
)

// DefaultNotificationsLimit is the default number of notifications to return.
const DefaultNotificationsLimit = 50

// CreateNotificationRequest is the request body for creating a notification.
type CreateNotificationRequest struct {
	Type      string `json:"type"`
	Title     string `json:"title"`
	Message   string `json:"message"`
	PlanPath  string `json:"plan_path,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

// handleCreateNotification stores a notification and pushes it to SSE
// clients. Validation failures return 400 with the reason.
func (s *Service) handleCreateNotification(w http.ResponseWriter, r *http.Request) {
	var req CreateNotificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	notification, err := s.notificationStore.Create(r.Context(), gorm.CreateNotificationParams{
		Type:      req.Type,
		Title:     req.Title,
		Message:   req.Message,
		PlanPath:  req.PlanPath,
		SessionID: req.SessionID,
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	// Broadcast is fire-and-forget: a client with no room in its buffer
	// misses the event but the stored row is the source of truth.
	s.sseBroadcaster.Broadcast("new_notification", notification)

	log.Info().
		Int64("id", notification.ID).
		Str("type", notification.Type).
		Msg("Notification created")

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(notification); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// handleListNotifications returns notifications, newest first. Defaults to
// unread only; pass include_read=true for the full feed.
func (s *Service) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	limit := gorm.ParseLimitParam(r, DefaultNotificationsLimit)
	includeRead := r.URL.Query().Get("include_read") == "true"

	notifications, err := s.notificationStore.List(r.Context(), limit, includeRead)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]interface{}{
		"count":         len(notifications),
		"notifications": notifications,
	})
}

// handleMarkNotificationRead marks one notification as read. Unknown ids
// are a no-op; non-numeric ids are a client error.
func (s *Service) handleMarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	idStr := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		http.Error(w, "invalid notification id", http.StatusBadRequest)
		return
	}

	if err := s.notificationStore.MarkRead(r.Context(), id); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]bool{"success": true})
}

// handleMarkAllNotificationsRead marks every unread notification as read.
func (s *Service) handleMarkAllNotificationsRead(w http.ResponseWriter, r *http.Request) {
	updated, err := s.notificationStore.MarkAllRead(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]interface{}{
		"success": true,
		"updated": updated,
	})
}

// handleUnreadCount returns the number of unread notifications.
func (s *Service) handleUnreadCount(w http.ResponseWriter, r *http.Request) {
	count, err := s.notificationStore.UnreadCount(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]int64{"count": count})
}
