package model

import (
	"encoding/json"
	"time"
)

// QuestionPaper — экзаменационная работа.
// Загрузкой и хранением файлов занимается отдельный сервис; здесь
// используются только поля, нужные для удаления профиля и учебного заведения.
type QuestionPaper struct {
	ID string
	// BelongsTo — UUID учебного заведения
	BelongsTo string
	// CreatedBy — UID автора
	CreatedBy string
	Title     string
	// IsCreatorDeleted — автор удалил свой профиль
	IsCreatorDeleted bool
	CreatedAt        time.Time
}

// FormDefinition — анкета вступления для роли в учебном заведении.
type FormDefinition struct {
	ID            string
	InstitutionID string
	Role          Role
	// Fields — описание полей анкеты в исходном JSON-виде
	Fields    json.RawMessage
	CreatedAt time.Time
}
