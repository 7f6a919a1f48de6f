// Пакет model — доменные модели Institution Module.
package model

import (
	"errors"
	"time"
)

// Role — роль пользователя в учебном заведении.
type Role string

// Роли пользователей. Списки участников существуют только для teacher и student.
const (
	RoleAdmin   Role = "admin"
	RoleTeacher Role = "teacher"
	RoleStudent Role = "student"
)

// ErrInvalidAffiliation — попытка задать принадлежность без роли или без учебного заведения.
var ErrInvalidAffiliation = errors.New("роль и учебное заведение задаются только вместе")

// Affiliation — принадлежность пользователя к учебному заведению.
// У пользователя либо есть и роль, и учебное заведение, либо нет ни того, ни другого.
type Affiliation struct {
	// Role — роль в учебном заведении
	Role Role
	// InstitutionID — UUID учебного заведения (member_of)
	InstitutionID string
}

// User — пользователь платформы.
// Хранится в таблице users; создаётся при первом входе из claims токена.
type User struct {
	// UID — идентификатор пользователя в Keycloak (sub), неизменяемый
	UID string
	// DisplayName — отображаемое имя
	DisplayName string
	// Email — адрес электронной почты
	Email string
	// PhotoURL — ссылка на фото профиля
	PhotoURL string
	// Affiliation — принадлежность к учебному заведению (nil — не состоит)
	Affiliation *Affiliation
	// CreatedAt — время создания записи
	CreatedAt time.Time
	// UpdatedAt — время последнего обновления
	UpdatedAt time.Time
}

// SetAffiliation задаёт роль и учебное заведение пользователя.
func (u *User) SetAffiliation(role Role, institutionID string) error {
	if role == "" || institutionID == "" {
		return ErrInvalidAffiliation
	}
	u.Affiliation = &Affiliation{Role: role, InstitutionID: institutionID}
	return nil
}

// ClearAffiliation снимает роль и принадлежность одновременно.
func (u *User) ClearAffiliation() {
	u.Affiliation = nil
}

// IsAffiliated сообщает, состоит ли пользователь в учебном заведении.
func (u *User) IsAffiliated() bool {
	return u.Affiliation != nil
}

// Role возвращает роль пользователя или пустую строку.
func (u *User) Role() Role {
	if u.Affiliation == nil {
		return ""
	}
	return u.Affiliation.Role
}

// MemberOf возвращает UUID учебного заведения или пустую строку.
func (u *User) MemberOf() string {
	if u.Affiliation == nil {
		return ""
	}
	return u.Affiliation.InstitutionID
}

// Profile — публичные данные пользователя для списков участников и заявок.
type Profile struct {
	UID         string
	DisplayName string
	Email       string
	PhotoURL    string
}

// Profile возвращает публичные данные пользователя.
func (u *User) Profile() Profile {
	return Profile{
		UID:         u.UID,
		DisplayName: u.DisplayName,
		Email:       u.Email,
		PhotoURL:    u.PhotoURL,
	}
}
