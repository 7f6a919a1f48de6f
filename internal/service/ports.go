// ports.go — внешние зависимости сервисов.
package service

import (
	"context"

	"github.com/bigkaa/goschool/institution-module/internal/domain/model"
)

// Notifier ставит уведомление пользователю в очередь доставки.
// Не блокирует; false — уведомление отброшено.
// Реализуется notify.Dispatcher.
type Notifier interface {
	Enqueue(userID, message string, severity model.Severity) bool
}

// IdentityProvider — учётные записи пользователей во внешнем IdP.
// Реализуется keycloak.Client; отсутствие пользователя — keycloak.ErrUserNotFound.
type IdentityProvider interface {
	DeleteUser(ctx context.Context, id string) error
}

// Directory — справочник профилей IdP. Реализуется keycloak.Client.
type Directory interface {
	LookupProfile(ctx context.Context, uid string) (model.Profile, error)
}
