// profile.go — запись пользователя для текущего запроса.
// При первом входе пользователь создаётся из claims токена.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bigkaa/goschool/institution-module/internal/domain/model"
	"github.com/bigkaa/goschool/institution-module/internal/repository"
)

// ProfileService — чтение и первичное создание записей пользователей.
type ProfileService struct {
	store     repository.Store
	directory Directory
	logger    *slog.Logger
}

// NewProfileService создаёт сервис профилей.
func NewProfileService(store repository.Store, logger *slog.Logger) *ProfileService {
	return &ProfileService{
		store:  store,
		logger: logger.With(slog.String("component", "profile_service")),
	}
}

// WithDirectory подключает справочник, из которого дополняется профиль,
// если в токене нет ни имени, ни email (service account, урезанный scope).
func (s *ProfileService) WithDirectory(d Directory) *ProfileService {
	s.directory = d
	return s
}

// GetUser возвращает пользователя по UID.
func (s *ProfileService) GetUser(ctx context.Context, uid string) (*model.User, error) {
	u, err := s.store.Repos().Users.GetByID(ctx, uid)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: пользователь %s", ErrNotFound, uid)
		}
		return nil, fmt.Errorf("получение пользователя: %w", err)
	}
	return u, nil
}

// EnsureUser возвращает запись пользователя, создавая её при первом входе.
// Профильные данные берутся из токена только при создании.
func (s *ProfileService) EnsureUser(ctx context.Context, p model.Profile) (*model.User, error) {
	if p.UID == "" {
		return nil, fmt.Errorf("%w: пустой идентификатор пользователя", ErrValidation)
	}

	users := s.store.Repos().Users
	u, err := users.GetByID(ctx, p.UID)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("получение пользователя: %w", err)
	}

	p = s.completeProfile(ctx, p)
	u = &model.User{
		UID:         p.UID,
		DisplayName: p.DisplayName,
		Email:       p.Email,
		PhotoURL:    p.PhotoURL,
	}
	if err := users.Create(ctx, u); err != nil {
		if !errors.Is(err, repository.ErrConflict) {
			return nil, fmt.Errorf("создание пользователя: %w", err)
		}
		// Параллельный запрос того же пользователя успел создать запись.
		return s.GetUser(ctx, p.UID)
	}

	s.logger.Info("Пользователь создан при первом входе",
		slog.String("uid", u.UID),
		slog.String("email", u.Email),
	)
	return u, nil
}

// completeProfile дополняет пустые поля профиля из справочника.
// Ошибка справочника не мешает созданию пользователя.
func (s *ProfileService) completeProfile(ctx context.Context, p model.Profile) model.Profile {
	if s.directory == nil || p.DisplayName != "" || p.Email != "" {
		return p
	}

	found, err := s.directory.LookupProfile(ctx, p.UID)
	if err != nil {
		s.logger.Warn("Профиль не найден в справочнике, создаётся по данным токена",
			slog.String("uid", p.UID),
			slog.String("error", err.Error()),
		)
		return p
	}

	p.DisplayName = found.DisplayName
	p.Email = found.Email
	if p.PhotoURL == "" {
		p.PhotoURL = found.PhotoURL
	}
	return p
}
