// institutions.go — жизненный цикл учебного заведения: создание,
// изменение и удаление.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/bigkaa/goschool/institution-module/internal/domain/model"
	"github.com/bigkaa/goschool/institution-module/internal/domain/rbac"
	"github.com/bigkaa/goschool/institution-module/internal/repository"
)

// MaxInstitutionNameLength — максимальная длина названия в символах.
const MaxInstitutionNameLength = 200

// InstitutionService — сервис учебных заведений.
type InstitutionService struct {
	store          repository.Store
	names          *NameResolver
	defaultLogoURL string
	logger         *slog.Logger
}

// NewInstitutionService создаёт сервис учебных заведений.
// defaultLogoURL подставляется, если логотип при создании не указан.
func NewInstitutionService(
	store repository.Store,
	names *NameResolver,
	defaultLogoURL string,
	logger *slog.Logger,
) *InstitutionService {
	return &InstitutionService{
		store:          store,
		names:          names,
		defaultLogoURL: defaultLogoURL,
		logger:         logger.With(slog.String("component", "institution_service")),
	}
}

// normalizeName обрезает пробелы и проверяет название.
func normalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: название обязательно", ErrValidation)
	}
	if utf8.RuneCountInString(name) > MaxInstitutionNameLength {
		return "", fmt.Errorf("%w: название длиннее %d символов", ErrValidation, MaxInstitutionNameLength)
	}
	return name, nil
}

// Get возвращает учебное заведение по ID.
func (s *InstitutionService) Get(ctx context.Context, id string) (*model.Institution, error) {
	inst, err := s.store.Repos().Institutions.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: учебное заведение %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("получение учебного заведения: %w", err)
	}
	return inst, nil
}

// Create создаёт учебное заведение; создатель становится его администратором.
func (s *InstitutionService) Create(
	ctx context.Context,
	name, logoURL, description, creatorUID string,
) (*model.Institution, error) {
	name, err := normalizeName(name)
	if err != nil {
		return nil, err
	}

	creator, err := s.store.Repos().Users.GetByID(ctx, creatorUID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: пользователь %s", ErrNotFound, creatorUID)
		}
		return nil, fmt.Errorf("получение пользователя: %w", err)
	}
	if creator.IsAffiliated() {
		return nil, fmt.Errorf("%w: пользователь уже состоит в учебном заведении", ErrConflict)
	}

	if strings.TrimSpace(logoURL) == "" {
		logoURL = s.defaultLogoURL
	}
	inst := &model.Institution{
		ID:          uuid.New().String(),
		Name:        name,
		LogoURL:     logoURL,
		Description: description,
		CreatedBy:   creatorUID,
	}

	err = s.store.RunInTx(ctx, func(r repository.Repositories) error {
		if err := r.Institutions.Create(ctx, inst); err != nil {
			return fmt.Errorf("сохранение учебного заведения: %w", err)
		}
		err := r.Users.SetAffiliation(ctx, creatorUID, model.Affiliation{
			Role:          model.RoleAdmin,
			InstitutionID: inst.ID,
		})
		switch {
		case err == nil:
			return nil
		case errors.Is(err, repository.ErrConflict):
			return fmt.Errorf("%w: пользователь уже состоит в учебном заведении", ErrConflict)
		case errors.Is(err, repository.ErrNotFound):
			return fmt.Errorf("%w: пользователь %s", ErrNotFound, creatorUID)
		default:
			return fmt.Errorf("назначение администратора: %w", err)
		}
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Учебное заведение создано",
		slog.String("institution_id", inst.ID),
		slog.String("name", inst.Name),
		slog.String("created_by", creatorUID),
	)
	return inst, nil
}

// Update частично обновляет учебное заведение. Доступно только его администратору.
func (s *InstitutionService) Update(
	ctx context.Context,
	id string,
	patch model.InstitutionPatch,
	actor *model.User,
) (*model.Institution, error) {
	if !rbac.IsAdminOf(actor, id) {
		return nil, fmt.Errorf("%w: изменять учебное заведение может только его администратор", ErrForbidden)
	}
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}

	if patch.IsEmpty() {
		return nil, fmt.Errorf("%w: нет изменяемых полей", ErrValidation)
	}
	if patch.Name != nil {
		name, err := normalizeName(*patch.Name)
		if err != nil {
			return nil, err
		}
		patch.Name = &name
	}

	inst, err := s.store.Repos().Institutions.Update(ctx, id, patch)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: учебное заведение %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("обновление учебного заведения: %w", err)
	}
	s.names.Invalidate(id)

	s.logger.Info("Учебное заведение обновлено",
		slog.String("institution_id", id),
		slog.String("updated_by", actor.UID),
	)
	return inst, nil
}

// Delete удаляет учебное заведение. Проверки в порядке выполнения:
// права администратора, существование, отсутствие экзаменационных работ,
// пустые списки участников. Проверки 2–4 выполняются в удаляющей транзакции
// после блокировки строки учебного заведения.
func (s *InstitutionService) Delete(ctx context.Context, id string, actor *model.User) error {
	if actor == nil || actor.Role() != model.RoleAdmin || !rbac.IsAdminOf(actor, id) {
		return fmt.Errorf("%w: удалить учебное заведение может только его администратор", ErrForbidden)
	}

	var forms, requests int64
	err := s.store.RunInTx(ctx, func(r repository.Repositories) error {
		if _, err := r.Institutions.GetForUpdate(ctx, id); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("%w: учебное заведение %s", ErrNotFound, id)
			}
			return fmt.Errorf("блокировка учебного заведения: %w", err)
		}

		papers, err := r.Papers.CountByInstitution(ctx, id)
		if err != nil {
			return fmt.Errorf("подсчёт экзаменационных работ: %w", err)
		}
		if papers > 0 {
			return fmt.Errorf("%w: сначала удалите экзаменационные работы (%d)", ErrConflict, papers)
		}

		counts, err := r.Members.Count(ctx, id)
		if err != nil {
			return fmt.Errorf("подсчёт участников: %w", err)
		}
		if counts.Total() > 0 {
			return fmt.Errorf("%w: сначала исключите участников (учителей: %d, студентов: %d)",
				ErrConflict, counts.Teachers, counts.Students)
		}

		if _, err := r.Users.ClearAffiliation(ctx, actor.UID, id); err != nil {
			return fmt.Errorf("снятие роли администратора: %w", err)
		}
		if forms, err = r.Forms.DeleteByInstitution(ctx, id); err != nil {
			return fmt.Errorf("удаление анкет: %w", err)
		}
		if requests, err = r.Lobby.DeleteByInstitution(ctx, id); err != nil {
			return fmt.Errorf("удаление заявок: %w", err)
		}
		if err := r.Institutions.Delete(ctx, id); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return fmt.Errorf("%w: на учебное заведение ссылаются пользователи", ErrConflict)
			}
			return fmt.Errorf("удаление учебного заведения: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.names.Invalidate(id)

	s.logger.Info("Учебное заведение удалено",
		slog.String("institution_id", id),
		slog.String("deleted_by", actor.UID),
		slog.Int64("forms", forms),
		slog.Int64("requests", requests),
	)
	return nil
}
