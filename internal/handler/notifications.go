package handler

import (
	"log/slog"
	"net/http"

	"github.com/pavelanni/examdesk/internal/model"
)

// notify stores a notification. Failures are logged and never surface to
// the request that triggered them.
func (h *Handler) notify(r *http.Request, n model.Notification) {
	if _, err := h.store.CreateNotification(r.Context(), n); err != nil {
		slog.Warn("failed to create notification", "user_id", n.UserID, "type", n.Type, "error", err)
	}
}

func (h *Handler) notifyRole(r *http.Request, role model.UserRole, title, message string, typ model.NotificationType) {
	n, err := h.store.NotifyRole(r.Context(), role, title, message, typ)
	if err != nil {
		slog.Warn("failed to notify role", "role", role, "type", typ, "error", err)
		return
	}
	slog.Debug("notified role", "role", role, "type", typ, "count", n)
}

func (h *Handler) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	list, err := h.store.ListNotifications(r.Context(), user.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) handleUnreadCount(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	n, err := h.store.UnreadNotificationCount(r.Context(), user.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": n})
}

func (h *Handler) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	user := model.UserFromContext(r.Context())
	if err := h.store.MarkNotificationRead(r.Context(), id, user.ID); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"id": id})
}

func (h *Handler) handleMarkAllRead(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	n, err := h.store.MarkAllNotificationsRead(r.Context(), user.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"updated": n})
}
