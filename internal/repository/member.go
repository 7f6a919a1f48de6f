package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/goschool/institution-module/internal/domain/model"
)

// MemberRepository — интерфейс для таблицы institution_members
// (списки учителей и студентов).
type MemberRepository interface {
	// Add добавляет пользователя в список. ErrConflict, если пользователь
	// уже состоит в каком-либо списке.
	Add(ctx context.Context, institutionID, userID string, list model.Role) error
	// Remove удаляет пользователя из любого списка учебного заведения.
	// Отсутствие записи — не ошибка; возвращает true, если запись была удалена.
	Remove(ctx context.Context, institutionID, userID string) (bool, error)
	// ListOf возвращает список, в котором состоит пользователь. ErrNotFound — ни в каком.
	ListOf(ctx context.Context, institutionID, userID string) (model.Role, error)
	// List возвращает участников списка с данными профиля, в порядке добавления.
	List(ctx context.Context, institutionID string, list model.Role) ([]model.Member, error)
	// Count возвращает размеры обоих списков.
	Count(ctx context.Context, institutionID string) (model.MemberCounts, error)
}

// memberRepo — реализация MemberRepository.
type memberRepo struct {
	db DBTX
}

// NewMemberRepository создаёт репозиторий списков участников.
func NewMemberRepository(db DBTX) MemberRepository {
	return &memberRepo{db: db}
}

func (r *memberRepo) Add(ctx context.Context, institutionID, userID string, list model.Role) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO institution_members (institution_id, user_id, list)
		VALUES ($1, $2, $3)`,
		institutionID, userID, string(list))
	if err != nil {
		return mapWriteError(err, "добавления участника")
	}
	return nil
}

func (r *memberRepo) Remove(ctx context.Context, institutionID, userID string) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM institution_members WHERE institution_id = $1 AND user_id = $2`,
		institutionID, userID)
	if err != nil {
		return false, fmt.Errorf("ошибка удаления участника: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *memberRepo) ListOf(ctx context.Context, institutionID, userID string) (model.Role, error) {
	var list string
	err := r.db.QueryRow(ctx,
		`SELECT list FROM institution_members WHERE institution_id = $1 AND user_id = $2`,
		institutionID, userID).Scan(&list)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("ошибка получения списка участника: %w", err)
	}
	return model.Role(list), nil
}

func (r *memberRepo) List(ctx context.Context, institutionID string, list model.Role) ([]model.Member, error) {
	rows, err := r.db.Query(ctx, `
		SELECT m.user_id, COALESCE(u.display_name, ''), COALESCE(u.email, ''),
		       COALESCE(u.photo_url, ''), m.list, m.added_at
		FROM institution_members m
		LEFT JOIN users u ON u.uid = m.user_id
		WHERE m.institution_id = $1 AND m.list = $2
		ORDER BY m.added_at, m.user_id`,
		institutionID, string(list))
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка участников: %w", err)
	}
	defer rows.Close()

	result := []model.Member{}
	for rows.Next() {
		var m model.Member
		var l string
		if err := rows.Scan(&m.UID, &m.DisplayName, &m.Email, &m.PhotoURL, &l, &m.AddedAt); err != nil {
			return nil, fmt.Errorf("ошибка сканирования участника: %w", err)
		}
		m.List = model.Role(l)
		result = append(result, m)
	}
	return result, rows.Err()
}

func (r *memberRepo) Count(ctx context.Context, institutionID string) (model.MemberCounts, error) {
	var c model.MemberCounts
	err := r.db.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE list = 'teacher'),
			COUNT(*) FILTER (WHERE list = 'student')
		FROM institution_members
		WHERE institution_id = $1`,
		institutionID).Scan(&c.Teachers, &c.Students)
	if err != nil {
		return model.MemberCounts{}, fmt.Errorf("ошибка подсчёта участников: %w", err)
	}
	return c, nil
}
