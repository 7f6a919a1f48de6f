package model

import "time"

// Institution — учебное заведение.
// Хранится в таблице institutions; списки участников — в institution_members.
type Institution struct {
	// ID — UUID учебного заведения (задаётся при создании, неизменяемый)
	ID string
	// Name — название
	Name string
	// LogoURL — ссылка на логотип
	LogoURL string
	// Description — описание
	Description string
	// CreatedBy — UID создателя (администратора)
	CreatedBy string
	// CreatedAt — время создания
	CreatedAt time.Time
	// UpdatedAt — время последнего обновления
	UpdatedAt time.Time
}

// InstitutionPatch — частичное обновление учебного заведения.
// nil-поля не изменяются.
type InstitutionPatch struct {
	Name        *string
	LogoURL     *string
	Description *string
}

// IsEmpty сообщает, что патч ничего не меняет.
func (p InstitutionPatch) IsEmpty() bool {
	return p.Name == nil && p.LogoURL == nil && p.Description == nil
}

// Member — участник списка учебного заведения с данными профиля.
type Member struct {
	Profile
	// List — список, в котором состоит участник (teacher, student)
	List Role
	// AddedAt — время добавления в список
	AddedAt time.Time
}

// MemberCounts — количество участников в списках учебного заведения.
type MemberCounts struct {
	Teachers int
	Students int
}

// Total возвращает суммарное количество участников.
func (c MemberCounts) Total() int {
	return c.Teachers + c.Students
}
