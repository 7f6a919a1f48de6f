// Пакет keycloak — клиент Keycloak Admin REST API.
// models.go — представления Keycloak, которые читает сервис.
package keycloak

import "strings"

// TokenResponse — ответ token endpoint на Client Credentials grant.
type TokenResponse struct {
	AccessToken string `json:"access_token"` //nolint:gosec // G117: структура токена OAuth2
	ExpiresIn   int    `json:"expires_in"`
}

// UserRepresentation — учётная запись пользователя realm.
type UserRepresentation struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Enabled   bool   `json:"enabled"`
}

// DisplayName — "Имя Фамилия", без них username.
func (u *UserRepresentation) DisplayName() string {
	if name := strings.TrimSpace(u.FirstName + " " + u.LastName); name != "" {
		return name
	}
	return u.Username
}

// RealmRepresentation — краткое состояние realm.
type RealmRepresentation struct {
	Realm   string `json:"realm"`
	Enabled bool   `json:"enabled"`
}
