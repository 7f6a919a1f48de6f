package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/goschool/institution-module/internal/domain/model"
)

// InstitutionRepository — интерфейс для таблицы institutions.
type InstitutionRepository interface {
	// Create создаёт учебное заведение (ID задаёт вызывающий).
	Create(ctx context.Context, inst *model.Institution) error
	// GetByID возвращает учебное заведение по ID.
	GetByID(ctx context.Context, id string) (*model.Institution, error)
	// GetForUpdate возвращает учебное заведение и блокирует строку до конца транзакции.
	GetForUpdate(ctx context.Context, id string) (*model.Institution, error)
	// Update применяет частичное обновление и возвращает новую версию.
	Update(ctx context.Context, id string, patch model.InstitutionPatch) (*model.Institution, error)
	// Delete удаляет учебное заведение.
	Delete(ctx context.Context, id string) error
}

// institutionRepo — реализация InstitutionRepository.
type institutionRepo struct {
	db DBTX
}

// NewInstitutionRepository создаёт репозиторий учебных заведений.
func NewInstitutionRepository(db DBTX) InstitutionRepository {
	return &institutionRepo{db: db}
}

const institutionColumns = `id, name, logo_url, description, created_by, created_at, updated_at`

func scanInstitution(row pgx.Row) (*model.Institution, error) {
	inst := &model.Institution{}
	err := row.Scan(
		&inst.ID, &inst.Name, &inst.LogoURL, &inst.Description,
		&inst.CreatedBy, &inst.CreatedAt, &inst.UpdatedAt,
	)
	return inst, err
}

func (r *institutionRepo) Create(ctx context.Context, inst *model.Institution) error {
	query := `
		INSERT INTO institutions (id, name, logo_url, description, created_by)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		inst.ID, inst.Name, inst.LogoURL, inst.Description, inst.CreatedBy,
	).Scan(&inst.CreatedAt, &inst.UpdatedAt)
	if err != nil {
		return mapWriteError(err, "создания учебного заведения")
	}
	return nil
}

func (r *institutionRepo) get(ctx context.Context, query, id string) (*model.Institution, error) {
	inst, err := scanInstitution(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения учебного заведения: %w", err)
	}
	return inst, nil
}

func (r *institutionRepo) GetByID(ctx context.Context, id string) (*model.Institution, error) {
	return r.get(ctx, fmt.Sprintf(`SELECT %s FROM institutions WHERE id = $1`, institutionColumns), id)
}

func (r *institutionRepo) GetForUpdate(ctx context.Context, id string) (*model.Institution, error) {
	return r.get(ctx, fmt.Sprintf(`SELECT %s FROM institutions WHERE id = $1 FOR UPDATE`, institutionColumns), id)
}

func (r *institutionRepo) Update(ctx context.Context, id string, patch model.InstitutionPatch) (*model.Institution, error) {
	query := fmt.Sprintf(`
		UPDATE institutions SET
			name = COALESCE($2, name),
			logo_url = COALESCE($3, logo_url),
			description = COALESCE($4, description),
			updated_at = NOW()
		WHERE id = $1
		RETURNING %s`, institutionColumns)

	inst, err := scanInstitution(r.db.QueryRow(ctx, query, id, patch.Name, patch.LogoURL, patch.Description))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, mapWriteError(err, "обновления учебного заведения")
	}
	return inst, nil
}

func (r *institutionRepo) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM institutions WHERE id = $1`, id)
	if err != nil {
		return mapWriteError(err, "удаления учебного заведения")
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
