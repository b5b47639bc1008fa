package uuid

import (
	"github.com/google/uuid"
)

// UUID строковый идентификатор (уведомления, запросы)
type UUID string

// NewUUID создает новый случайный UUID
func NewUUID() UUID {
	return UUID(uuid.New().String())
}

// ParseUUID проверяет строку и возвращает UUID
func ParseUUID(s string) (UUID, error) {
	if _, err := uuid.Parse(s); err != nil {
		return "", err
	}
	return UUID(s), nil
}

// String возвращает строковое представление
func (u UUID) String() string {
	return string(u)
}

// IsZero проверяет, пустой ли UUID
func (u UUID) IsZero() bool {
	return u == ""
}
