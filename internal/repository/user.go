package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/goschool/institution-module/internal/domain/model"
	"github.com/bigkaa/goschool/institution-module/internal/domain/rbac"
)

// UserRepository — интерфейс для таблицы users.
type UserRepository interface {
	// Create создаёт пользователя. ErrConflict, если UID уже занят.
	Create(ctx context.Context, u *model.User) error
	// GetByID возвращает пользователя по UID.
	GetByID(ctx context.Context, uid string) (*model.User, error)
	// GetProfiles возвращает профили пользователей по списку UID.
	GetProfiles(ctx context.Context, uids []string) (map[string]model.Profile, error)
	// SetAffiliation задаёт роль и member_of, только если пользователь ещё не состоит
	// в учебном заведении. ErrConflict — уже состоит, ErrNotFound — нет пользователя.
	SetAffiliation(ctx context.Context, uid string, a model.Affiliation) error
	// ClearAffiliation снимает роль и member_of, если member_of == institutionID.
	// Возвращает true, если запись изменилась.
	ClearAffiliation(ctx context.Context, uid, institutionID string) (bool, error)
	// Delete удаляет пользователя.
	Delete(ctx context.Context, uid string) error
}

// userRepo — реализация UserRepository.
type userRepo struct {
	db DBTX
}

// NewUserRepository создаёт репозиторий пользователей.
func NewUserRepository(db DBTX) UserRepository {
	return &userRepo{db: db}
}

const userColumns = `uid, display_name, email, photo_url, role, member_of, created_at, updated_at`

// scanUser читает строку users и проверяет согласованность роли и member_of.
func scanUser(row pgx.Row) (*model.User, error) {
	u := &model.User{}
	var role, memberOf *string
	if err := row.Scan(
		&u.UID, &u.DisplayName, &u.Email, &u.PhotoURL,
		&role, &memberOf, &u.CreatedAt, &u.UpdatedAt,
	); err != nil {
		return nil, err
	}
	a, err := rbac.ToAffiliation(role, memberOf)
	if err != nil {
		return nil, fmt.Errorf("пользователь %s: %w", u.UID, err)
	}
	u.Affiliation = a
	return u, nil
}

func (r *userRepo) Create(ctx context.Context, u *model.User) error {
	role, memberOf := rbac.FromAffiliation(u.Affiliation)
	query := `
		INSERT INTO users (uid, display_name, email, photo_url, role, member_of)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		u.UID, u.DisplayName, u.Email, u.PhotoURL, role, memberOf,
	).Scan(&u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return mapWriteError(err, "создания пользователя")
	}
	return nil
}

func (r *userRepo) GetByID(ctx context.Context, uid string) (*model.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE uid = $1`, userColumns)

	u, err := scanUser(r.db.QueryRow(ctx, query, uid))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения пользователя: %w", err)
	}
	return u, nil
}

func (r *userRepo) GetProfiles(ctx context.Context, uids []string) (map[string]model.Profile, error) {
	result := make(map[string]model.Profile, len(uids))
	if len(uids) == 0 {
		return result, nil
	}

	rows, err := r.db.Query(ctx,
		`SELECT uid, display_name, email, photo_url FROM users WHERE uid = ANY($1)`, uids)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения профилей: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p model.Profile
		if err := rows.Scan(&p.UID, &p.DisplayName, &p.Email, &p.PhotoURL); err != nil {
			return nil, fmt.Errorf("ошибка сканирования профиля: %w", err)
		}
		result[p.UID] = p
	}
	return result, rows.Err()
}

func (r *userRepo) SetAffiliation(ctx context.Context, uid string, a model.Affiliation) error {
	if a.Role == "" || a.InstitutionID == "" {
		return model.ErrInvalidAffiliation
	}

	tag, err := r.db.Exec(ctx, `
		UPDATE users SET role = $2, member_of = $3, updated_at = NOW()
		WHERE uid = $1 AND role IS NULL AND member_of IS NULL`,
		uid, string(a.Role), a.InstitutionID)
	if err != nil {
		return mapWriteError(err, "установки принадлежности")
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	// Ни одна строка не изменилась: пользователя нет или он уже состоит.
	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE uid = $1)`, uid).Scan(&exists); err != nil {
		return fmt.Errorf("ошибка проверки пользователя: %w", err)
	}
	if !exists {
		return ErrNotFound
	}
	return fmt.Errorf("%w: пользователь %s уже состоит в учебном заведении", ErrConflict, uid)
}

func (r *userRepo) ClearAffiliation(ctx context.Context, uid, institutionID string) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE users SET role = NULL, member_of = NULL, updated_at = NOW()
		WHERE uid = $1 AND member_of = $2`,
		uid, institutionID)
	if err != nil {
		return false, fmt.Errorf("ошибка снятия принадлежности: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *userRepo) Delete(ctx context.Context, uid string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM users WHERE uid = $1`, uid)
	if err != nil {
		return mapWriteError(err, "удаления пользователя")
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
