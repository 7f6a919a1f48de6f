// errors.go — ошибки бизнес-логики сервисного слоя.
package service

import "errors"

var (
	// ErrNotFound — ресурс не найден.
	ErrNotFound = errors.New("ресурс не найден")
	// ErrConflict — конфликт с текущим состоянием (дубликат, нарушение предусловия).
	ErrConflict = errors.New("конфликт с текущим состоянием")
	// ErrForbidden — недостаточно прав.
	ErrForbidden = errors.New("недостаточно прав")
	// ErrValidation — ошибка валидации входных данных.
	ErrValidation = errors.New("ошибка валидации")
	// ErrPartialCompletion — операция прервана после выполнения части шагов.
	// Выполненные шаги не откатываются.
	ErrPartialCompletion = errors.New("операция выполнена частично")
)
