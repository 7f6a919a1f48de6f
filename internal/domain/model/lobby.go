package model

import "time"

// LobbyAction — решение по заявке в зале ожидания.
type LobbyAction string

// Допустимые решения.
const (
	ActionApprove LobbyAction = "approve"
	ActionReject  LobbyAction = "reject"
)

// IsValid проверяет, является ли решение допустимым.
func (a LobbyAction) IsValid() bool {
	return a == ActionApprove || a == ActionReject
}

// FormResponse — ответ на одно поле анкеты вступления.
type FormResponse struct {
	FieldID string `json:"field_id"`
	Value   string `json:"value"`
}

// WaitingLobbyRequest — ожидающая заявка на вступление.
// Хранится в таблице waiting_lobby_requests, пока не принято решение;
// одобрение и отклонение реализуются удалением записи.
type WaitingLobbyRequest struct {
	// ID — UUID заявки
	ID string
	// InstitutionID — UUID учебного заведения
	InstitutionID string
	// UserID — UID заявителя
	UserID string
	// RoleRequested — запрошенная роль (teacher, student)
	RoleRequested Role
	// FormResponses — ответы анкеты в исходном порядке
	FormResponses []FormResponse
	// CreatedAt — время подачи заявки
	CreatedAt time.Time
}

// LobbyRequestView — заявка с данными профиля заявителя.
type LobbyRequestView struct {
	WaitingLobbyRequest
	Applicant Profile
}

// LobbyAuditEntry — запись журнала решений по заявкам.
// Добавляется в той же транзакции, что удаляет заявку.
type LobbyAuditEntry struct {
	ID            int64
	RequestID     string
	InstitutionID string
	UserID        string
	RoleRequested Role
	Action        LobbyAction
	// ResolvedBy — UID принявшего решение
	ResolvedBy string
	ResolvedAt time.Time
}
