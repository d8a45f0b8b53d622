package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/danharap/TaskManager-Backend/pkg/httputil"
	"github.com/danharap/TaskManager-Backend/pkg/observability"
	"github.com/danharap/TaskManager-Backend/pkg/storage"
)

// NotificationHandlers handles notification requests. Every route is scoped to the caller.
type NotificationHandlers struct {
	store   storage.NotificationStore
	metrics *observability.Metrics
	gate    guard
	now     func() time.Time
}

// NewNotificationHandlers creates a new notification handlers instance
func NewNotificationHandlers(store storage.NotificationStore, metrics *observability.Metrics, gate guard) *NotificationHandlers {
	return &NotificationHandlers{
		store:   store,
		metrics: metrics,
		gate:    gate,
		now:     time.Now,
	}
}

// RegisterRoutes registers notification routes
func (h *NotificationHandlers) RegisterRoutes(router *mux.Router) {
	router.Handle("/api/notifications", h.gate.user(h.createNotification)).Methods("POST")
	router.Handle("/api/notifications", h.gate.user(h.listNotifications)).Methods("GET")
	router.Handle("/api/notifications/clear-all", h.gate.user(h.clearNotifications)).Methods("DELETE")
	router.Handle("/api/notifications/{id:[0-9]+}/read", h.gate.user(h.markRead)).Methods("PUT")
	router.Handle("/api/notifications/{id:[0-9]+}", h.gate.user(h.deleteNotification)).Methods("DELETE")
}

// createNotification handles POST /api/notifications
func (h *NotificationHandlers) createNotification(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOrUnauthorized(w, r)
	if !ok {
		return
	}

	var req notificationRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	n := &storage.Notification{
		UserID:    principal.UserID,
		Type:      req.Type,
		Message:   req.Message,
		CreatedAt: h.now().UTC(),
		IsRead:    false,
	}
	if err := h.store.CreateNotification(r.Context(), n); err != nil {
		writeInternalError(w, r, err, "failed to create notification")
		return
	}

	h.metrics.NotificationsCreatedTotal.Inc()
	httputil.WriteSuccess(w, n)
}

// listNotifications handles GET /api/notifications
func (h *NotificationHandlers) listNotifications(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOrUnauthorized(w, r)
	if !ok {
		return
	}

	notifications, err := h.store.ListNotifications(r.Context(), principal.UserID)
	if err != nil {
		writeInternalError(w, r, err, "failed to list notifications")
		return
	}
	httputil.WriteSuccess(w, notifications)
}

// markRead handles PUT /api/notifications/{id}/read
func (h *NotificationHandlers) markRead(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOrUnauthorized(w, r)
	if !ok {
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	n, err := h.store.MarkNotificationRead(r.Context(), id, principal.UserID)
	if errors.Is(err, storage.ErrNotFound) {
		httputil.WriteNotFoundError(w, notificationNotFound(id))
		return
	}
	if err != nil {
		writeInternalError(w, r, err, "failed to mark notification read")
		return
	}
	httputil.WriteSuccess(w, n)
}

// deleteNotification handles DELETE /api/notifications/{id}
func (h *NotificationHandlers) deleteNotification(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOrUnauthorized(w, r)
	if !ok {
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	err := h.store.DeleteNotification(r.Context(), id, principal.UserID)
	if errors.Is(err, storage.ErrNotFound) {
		httputil.WriteNotFoundError(w, notificationNotFound(id))
		return
	}
	if err != nil {
		writeInternalError(w, r, err, "failed to delete notification")
		return
	}
	httputil.WriteOK(w, fmt.Sprintf("Notification with ID %d has been deleted.", id))
}

// clearNotifications handles DELETE /api/notifications/clear-all
func (h *NotificationHandlers) clearNotifications(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOrUnauthorized(w, r)
	if !ok {
		return
	}

	cleared, err := h.store.ClearNotifications(r.Context(), principal.UserID)
	if err != nil {
		writeInternalError(w, r, err, "failed to clear notifications")
		return
	}
	if cleared == 0 {
		httputil.WriteOK(w, "No notifications to clear.")
		return
	}
	httputil.WriteOK(w, fmt.Sprintf("Cleared %d notifications.", cleared))
}

func notificationNotFound(id int64) string {
	return fmt.Sprintf("Notification with ID %d not found.", id)
}
