package notification

import (
	"context"
	"errors"
	"log"

	"moneta/internal/domain/consent"
	"moneta/internal/domain/user"
	"moneta/internal/shared/messages"
)

// Service contains the business logic for notification operations
type Service struct {
	repo      Repository
	users     user.Repository
	messenger Messenger
	texts     *messages.Messages
}

// NewService creates a new notification service. messenger may be nil
// when push delivery is not configured; notifications are still stored.
func NewService(repo Repository, users user.Repository, messenger Messenger, texts *messages.Messages) *Service {
	if texts == nil {
		texts = messages.Default()
	}
	return &Service{repo: repo, users: users, messenger: messenger, texts: texts}
}

var _ consent.Notifier = (*Service)(nil)

// NotifyConsentOutcome pushes the terminal consent status to the user.
// Pending outcomes are ignored; only terminal statuses are worth a push.
func (s *Service) NotifyConsentOutcome(ctx context.Context, userID int64, bankCode string, status consent.Status) {
	var text messages.MessageText
	switch status {
	case consent.StatusApproved:
		text = s.texts.ConsentApproved
	case consent.StatusRejected, consent.StatusRevoked:
		text = s.texts.ConsentRejected
	case consent.StatusExpired:
		text = s.texts.ConsentExpired
	default:
		return
	}

	data := map[string]string{"bank_code": bankCode, "status": string(status)}
	if err := s.SendToUser(ctx, userID, text.Title, text.Body, CategoryConsents, data); err != nil {
		log.Printf("Failed to notify user %d about consent at %s: %v", userID, bankCode, err)
	}
}

// NotifySyncComplete tells the user their accounts finished syncing.
func (s *Service) NotifySyncComplete(ctx context.Context, userID int64) {
	text := s.texts.SyncComplete
	if err := s.SendToUser(ctx, userID, text.Title, text.Body, CategoryAccounts, nil); err != nil {
		log.Printf("Failed to notify user %d about sync completion: %v", userID, err)
	}
}

// SendToUser sends a push notification to a specific user and stores a
// notification record. Users without a registered device token get the
// record only.
func (s *Service) SendToUser(ctx context.Context, userID int64, title, body, category string, data map[string]string) error {
	if !IsValidCategory(category) {
		return ErrInvalidCategory
	}

	if data == nil {
		data = make(map[string]string)
	}
	if _, ok := data["route"]; !ok {
		data["route"] = category
	}

	if s.messenger != nil {
		u, err := s.users.GetByID(ctx, userID)
		if err != nil {
			return err
		}
		if u == nil {
			return user.ErrUserNotFound
		}
		if u.DeviceToken != nil && *u.DeviceToken != "" {
			if err := s.messenger.Send(ctx, *u.DeviceToken, title, body, data); err != nil {
				log.Printf("Error sending notification to user %d: %v", userID, err)
			}
		}
	}

	_, err := s.repo.CreateNotification(ctx, CreateNotificationParams{
		UserID:   userID,
		Title:    title,
		Message:  body,
		Category: category,
		Data:     data,
	})
	if err != nil {
		log.Printf("Error storing notification for user %d: %v", userID, err)
	}

	return nil
}

// ListNotifications returns paginated notifications for a user
func (s *Service) ListNotifications(ctx context.Context, userID int64, page, perPage int) ([]*Notification, int, error) {
	if userID <= 0 {
		return nil, 0, errors.New("valid user ID is required")
	}
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}

	return s.repo.ListByUserID(ctx, userID, page, perPage)
}

// MarkNotificationOpened marks a notification as opened by the authenticated user
func (s *Service) MarkNotificationOpened(ctx context.Context, notificationID string, userID int64) error {
	if notificationID == "" {
		return errors.New("notification ID is required")
	}
	if userID <= 0 {
		return errors.New("valid user ID is required")
	}

	return s.repo.MarkOpened(ctx, notificationID, userID)
}

// RegisterDevice stores the user's FCM device token. An empty token
// unregisters the device.
func (s *Service) RegisterDevice(ctx context.Context, userID int64, token string) error {
	if userID <= 0 {
		return errors.New("valid user ID is required")
	}
	var stored *string
	if token != "" {
		stored = &token
	}
	return s.users.UpdateDeviceToken(ctx, userID, stored)
}
