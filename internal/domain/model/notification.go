package model

import "time"

// Severity — уровень важности уведомления.
type Severity string

// Уровни уведомлений.
const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityDanger  Severity = "danger"
)

// IsValid проверяет, является ли уровень допустимым.
func (s Severity) IsValid() bool {
	switch s {
	case SeverityInfo, SeveritySuccess, SeverityDanger:
		return true
	}
	return false
}

// Notification — уведомление пользователя.
// Хранится в таблице notifications.
type Notification struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Message   string    `json:"message"`
	Severity  Severity  `json:"severity"`
	IsRead    bool      `json:"is_read"`
	CreatedAt time.Time `json:"created_at"`
}
