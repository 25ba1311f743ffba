package http

import (
	"encoding/json"
	"net/http"
	"strconv"

	"moneta/internal/domain/notification"
	"moneta/internal/shared/middleware"
)

type NotificationHandler struct {
	service *notification.Service
}

func NewNotificationHandler(service *notification.Service) *NotificationHandler {
	return &NotificationHandler{service: service}
}

type RegisterDeviceRequest struct {
	Token string `json:"token"`
}

// HandleRegisterDevice stores the caller's push token. An empty token
// unregisters the device.
func (h *NotificationHandler) HandleRegisterDevice(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID, ok := r.Context().Value(middleware.UserIDKey).(int64)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req RegisterDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "Invalid request body", "")
		return
	}

	if err := h.service.RegisterDevice(r.Context(), userID, req.Token); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"registered": req.Token != ""})
}

type NotificationListResponse struct {
	Notifications []*notification.Notification `json:"notifications"`
	TotalCount    int                          `json:"totalCount"`
}

// HandleNotifications lists the user's stored notifications
func (h *NotificationHandler) HandleNotifications(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID, ok := r.Context().Value(middleware.UserIDKey).(int64)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))

	notifications, total, err := h.service.ListNotifications(r.Context(), userID, page, perPage)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if notifications == nil {
		notifications = []*notification.Notification{}
	}

	writeJSON(w, http.StatusOK, NotificationListResponse{Notifications: notifications, TotalCount: total})
}

// HandleOpen marks a notification as opened
func (h *NotificationHandler) HandleOpen(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID, ok := r.Context().Value(middleware.UserIDKey).(int64)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	notificationID := r.PathValue("id")
	if notificationID == "" {
		writeError(w, http.StatusBadRequest, "invalid_input", "Notification id is required", "")
		return
	}

	if err := h.service.MarkNotificationOpened(r.Context(), notificationID, userID); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"opened": true})
}
