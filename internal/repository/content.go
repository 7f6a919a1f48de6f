package repository

import (
	"context"
	"fmt"

	"github.com/bigkaa/goschool/institution-module/internal/domain/model"
)

// PaperRepository — экзаменационные работы (question_papers).
// Загрузка работ вне этого модуля; Create нужен для начального заполнения.
type PaperRepository interface {
	Create(ctx context.Context, p *model.QuestionPaper) error
	// CountByInstitution возвращает количество работ учебного заведения.
	CountByInstitution(ctx context.Context, institutionID string) (int, error)
	// MarkCreatorDeleted одним UPDATE помечает все работы автора.
	MarkCreatorDeleted(ctx context.Context, creatorID string) (int64, error)
	// ListByCreator возвращает работы автора.
	ListByCreator(ctx context.Context, creatorID string) ([]model.QuestionPaper, error)
}

type paperRepo struct {
	db DBTX
}

// NewPaperRepository создаёт репозиторий экзаменационных работ.
func NewPaperRepository(db DBTX) PaperRepository {
	return &paperRepo{db: db}
}

func (r *paperRepo) Create(ctx context.Context, p *model.QuestionPaper) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO question_papers (id, belongs_to, created_by, title, is_creator_deleted)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`,
		p.ID, p.BelongsTo, p.CreatedBy, p.Title, p.IsCreatorDeleted,
	).Scan(&p.CreatedAt)
	if err != nil {
		return mapWriteError(err, "создания экзаменационной работы")
	}
	return nil
}

func (r *paperRepo) CountByInstitution(ctx context.Context, institutionID string) (int, error) {
	var n int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM question_papers WHERE belongs_to = $1`, institutionID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("ошибка подсчёта экзаменационных работ: %w", err)
	}
	return n, nil
}

func (r *paperRepo) MarkCreatorDeleted(ctx context.Context, creatorID string) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE question_papers SET is_creator_deleted = TRUE WHERE created_by = $1`, creatorID)
	if err != nil {
		return 0, fmt.Errorf("ошибка пометки работ автора: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *paperRepo) ListByCreator(ctx context.Context, creatorID string) ([]model.QuestionPaper, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, belongs_to, created_by, title, is_creator_deleted, created_at
		FROM question_papers WHERE created_by = $1
		ORDER BY created_at, id`, creatorID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения работ автора: %w", err)
	}
	defer rows.Close()

	var result []model.QuestionPaper
	for rows.Next() {
		var p model.QuestionPaper
		if err := rows.Scan(&p.ID, &p.BelongsTo, &p.CreatedBy, &p.Title, &p.IsCreatorDeleted, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("ошибка сканирования работы: %w", err)
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

// FormRepository — анкеты вступления (form_definitions).
// CRUD анкет вне этого модуля; здесь только создание, подсчёт и пакетное удаление.
type FormRepository interface {
	Create(ctx context.Context, f *model.FormDefinition) error
	CountByInstitution(ctx context.Context, institutionID string) (int, error)
	// DeleteByInstitution удаляет все анкеты учебного заведения.
	DeleteByInstitution(ctx context.Context, institutionID string) (int64, error)
}

type formRepo struct {
	db DBTX
}

// NewFormRepository создаёт репозиторий анкет.
func NewFormRepository(db DBTX) FormRepository {
	return &formRepo{db: db}
}

func (r *formRepo) Create(ctx context.Context, f *model.FormDefinition) error {
	fields := []byte(f.Fields)
	if len(fields) == 0 {
		fields = []byte("[]")
	}
	err := r.db.QueryRow(ctx, `
		INSERT INTO form_definitions (id, institution_id, role, fields)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at`,
		f.ID, f.InstitutionID, string(f.Role), fields,
	).Scan(&f.CreatedAt)
	if err != nil {
		return mapWriteError(err, "создания анкеты")
	}
	return nil
}

func (r *formRepo) CountByInstitution(ctx context.Context, institutionID string) (int, error) {
	var n int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM form_definitions WHERE institution_id = $1`, institutionID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("ошибка подсчёта анкет: %w", err)
	}
	return n, nil
}

func (r *formRepo) DeleteByInstitution(ctx context.Context, institutionID string) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM form_definitions WHERE institution_id = $1`, institutionID)
	if err != nil {
		return 0, fmt.Errorf("ошибка удаления анкет: %w", err)
	}
	return tag.RowsAffected(), nil
}
