package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/Prince-Affedzie/Freshy-Food-Backend/internal/domain"
	pfirestore "github.com/Prince-Affedzie/Freshy-Food-Backend/internal/platform/firestore"
)

const notificationCollection = "notifications"

// NotificationRepository stores in-app notifications.
type NotificationRepository struct {
	base *pfirestore.BaseRepository[notificationDocument]
}

// NewNotificationRepository constructs a Firestore-backed notification inbox.
func NewNotificationRepository(provider *pfirestore.Provider) (*NotificationRepository, error) {
	if provider == nil {
		return nil, errors.New("notification repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[notificationDocument](provider, notificationCollection)
	return &NotificationRepository{base: base}, nil
}

// Insert creates the notification under its id. Writing an id twice yields a conflict.
func (r *NotificationRepository) Insert(ctx context.Context, notification domain.Notification) error {
	if r == nil || r.base == nil {
		return errors.New("notification repository not initialised")
	}
	if strings.TrimSpace(notification.ID) == "" {
		return errors.New("notification id is required")
	}
	_, err := r.base.Create(ctx, notification.ID, notificationDocument{
		UserID:    notification.UserID,
		Title:     notification.Title,
		Message:   notification.Message,
		Read:      notification.Read,
		CreatedAt: notification.CreatedAt.UTC(),
	})
	return err
}

type notificationDocument struct {
	UserID    string    `firestore:"user"`
	Title     string    `firestore:"title"`
	Message   string    `firestore:"message"`
	Read      bool      `firestore:"read"`
	CreatedAt time.Time `firestore:"createdAt"`
}
