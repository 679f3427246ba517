package controller

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/mashughuli/escrow/internal/domain/notification"
)

const defaultNotificationPageSize = 20

// NotificationController serves the durable per-user notification store.
type NotificationController struct {
	notifications notification.Repository
}

// NewNotificationController creates a new NotificationController.
func NewNotificationController(notifications notification.Repository) *NotificationController {
	return &NotificationController{notifications: notifications}
}

// List handles GET /api/v1/notifications.
func (h *NotificationController) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := authedUserID(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Code: "unauthorized"})
		return
	}

	filter := notification.ListFilter{Limit: defaultNotificationPageSize}
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 && v <= 100 {
		filter.Limit = v
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && v > 0 {
		filter.Offset = v
	}
	filter.OnlyUnread = r.URL.Query().Get("unread") == "true"

	result, err := h.notifications.List(r.Context(), userID, filter)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := NotificationListResponse{
		Notifications: make([]*NotificationResponse, 0, len(result.Notifications)),
		Total:         result.Total,
		Unread:        result.Unread,
	}
	for _, n := range result.Notifications {
		resp.Notifications = append(resp.Notifications, fromNotification(n))
	}
	writeJSON(w, http.StatusOK, resp)
}

// MarkRead handles POST /api/v1/notifications/{id}/read.
func (h *NotificationController) MarkRead(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid notification id", Code: "invalid_id"})
		return
	}

	userID, ok := authedUserID(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Code: "unauthorized"})
		return
	}

	n, err := h.notifications.MarkRead(r.Context(), id, userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, fromNotification(n))
}

// MarkAllRead handles POST /api/v1/notifications/read-all.
func (h *NotificationController) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := authedUserID(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Code: "unauthorized"})
		return
	}

	updated, err := h.notifications.MarkAllRead(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"updated": updated})
}
