package notification

import (
	"context"

	"github.com/flowctl/console/internal/domain/uuid"
)

// Repository хранит постоянные уведомления (Duration == 0) между перезапусками
type Repository interface {
	// FindByUserID возвращает уведомления пользователя в порядке создания
	FindByUserID(ctx context.Context, userID string) ([]Notification, error)

	// Save сохраняет уведомление пользователя
	Save(ctx context.Context, userID string, n Notification) error

	// Delete удаляет уведомление
	Delete(ctx context.Context, userID string, id uuid.UUID) error

	// DeleteByUserID удаляет все уведомления пользователя
	DeleteByUserID(ctx context.Context, userID string) error
}
