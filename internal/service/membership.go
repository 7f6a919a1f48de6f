// membership.go — участники учебного заведения: просмотр, исключение,
// выход по собственному желанию и удаление профиля.
//
// Prometheus-метрики:
//   - im_membership_removals_total{reason} — removed, left, profile_deleted
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/goschool/institution-module/internal/domain/model"
	"github.com/bigkaa/goschool/institution-module/internal/domain/rbac"
	"github.com/bigkaa/goschool/institution-module/internal/keycloak"
	"github.com/bigkaa/goschool/institution-module/internal/repository"
)

var membershipRemovalsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "im_membership_removals_total",
	Help: "Выбытие участников из учебных заведений по причине.",
}, []string{"reason"})

// MembershipService — сервис участников учебного заведения.
type MembershipService struct {
	store    repository.Store
	identity IdentityProvider
	names    *NameResolver
	notifier Notifier
	logger   *slog.Logger
}

// NewMembershipService создаёт сервис участников.
func NewMembershipService(
	store repository.Store,
	identity IdentityProvider,
	names *NameResolver,
	notifier Notifier,
	logger *slog.Logger,
) *MembershipService {
	return &MembershipService{
		store:    store,
		identity: identity,
		names:    names,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "membership_service")),
	}
}

// ListMembers возвращает участников списка list с данными профиля.
func (s *MembershipService) ListMembers(
	ctx context.Context,
	institutionID string,
	list model.Role,
	actor *model.User,
) ([]model.Member, error) {
	if !rbac.IsListRole(string(list)) {
		return nil, fmt.Errorf("%w: недопустимый список %q", ErrValidation, list)
	}
	if !rbac.CanViewMembers(actor, institutionID) {
		return nil, fmt.Errorf("%w: просмотр участников", ErrForbidden)
	}

	members, err := s.store.Repos().Members.List(ctx, institutionID, list)
	if err != nil {
		return nil, fmt.Errorf("получение участников: %w", err)
	}
	return members, nil
}

// RemoveMember исключает memberID из учебного заведения.
// Повторный вызов успешен и ничего не меняет.
func (s *MembershipService) RemoveMember(
	ctx context.Context,
	institutionID string,
	list model.Role,
	memberID string,
	actor *model.User,
) error {
	if !rbac.IsListRole(string(list)) {
		return fmt.Errorf("%w: недопустимый список %q", ErrValidation, list)
	}
	if !rbac.CanRemoveMember(actor, institutionID, list) {
		return fmt.Errorf("%w: исключение из списка %s", ErrForbidden, list)
	}

	var changed bool
	err := s.store.RunInTx(ctx, func(r repository.Repositories) error {
		target, err := r.Users.GetByID(ctx, memberID)
		switch {
		case err == nil:
			if rbac.IsAdminOf(target, institutionID) {
				return fmt.Errorf("%w: администратора учебного заведения исключить нельзя", ErrForbidden)
			}
		case errors.Is(err, repository.ErrNotFound):
			// Профиль уже удалён; запись в списке, если осталась, удаляется ниже.
		default:
			return fmt.Errorf("получение участника: %w", err)
		}

		// Права проверяются по списку, в котором участник состоит на самом деле.
		actual, err := r.Members.ListOf(ctx, institutionID, memberID)
		switch {
		case err == nil:
			if actual != list && !rbac.CanRemoveMember(actor, institutionID, actual) {
				return fmt.Errorf("%w: исключение из списка %s", ErrForbidden, actual)
			}
		case errors.Is(err, repository.ErrNotFound):
		default:
			return fmt.Errorf("проверка списка участника: %w", err)
		}

		removed, err := r.Members.Remove(ctx, institutionID, memberID)
		if err != nil {
			return fmt.Errorf("удаление из списка: %w", err)
		}
		cleared, err := r.Users.ClearAffiliation(ctx, memberID, institutionID)
		if err != nil {
			return fmt.Errorf("снятие роли: %w", err)
		}
		changed = removed || cleared
		return nil
	})
	if err != nil {
		return err
	}

	if !changed {
		s.logger.Debug("Участник уже исключён",
			slog.String("institution_id", institutionID),
			slog.String("member_id", memberID),
		)
		return nil
	}

	membershipRemovalsTotal.WithLabelValues("removed").Inc()
	s.logger.Info("Участник исключён",
		slog.String("institution_id", institutionID),
		slog.String("member_id", memberID),
		slog.String("list", string(list)),
		slog.String("removed_by", actor.UID),
	)

	name, _ := s.names.Resolve(ctx, institutionID)
	s.notify(memberID, fmt.Sprintf("Вы исключены из «%s»", name), model.SeverityInfo)
	return nil
}

// LeaveInstitution выводит пользователя из его учебного заведения.
// Администратор выйти не может: сначала нужно удалить учебное заведение.
func (s *MembershipService) LeaveInstitution(ctx context.Context, userID string) error {
	repos := s.store.Repos()

	user, err := repos.Users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%w: пользователь %s", ErrNotFound, userID)
		}
		return fmt.Errorf("получение пользователя: %w", err)
	}
	if !user.IsAffiliated() {
		return fmt.Errorf("%w: пользователь не состоит в учебном заведении", ErrNotFound)
	}
	if user.Role() == model.RoleAdmin {
		return fmt.Errorf("%w: администратор не может покинуть учебное заведение, удалите его", ErrForbidden)
	}

	institutionID := user.MemberOf()
	if _, err := repos.Institutions.GetByID(ctx, institutionID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%w: учебное заведение %s", ErrNotFound, institutionID)
		}
		return fmt.Errorf("получение учебного заведения: %w", err)
	}

	err = s.store.RunInTx(ctx, func(r repository.Repositories) error {
		if _, err := r.Members.Remove(ctx, institutionID, userID); err != nil {
			return fmt.Errorf("удаление из списка: %w", err)
		}
		if _, err := r.Users.ClearAffiliation(ctx, userID, institutionID); err != nil {
			return fmt.Errorf("снятие роли: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	membershipRemovalsTotal.WithLabelValues("left").Inc()
	s.logger.Info("Пользователь покинул учебное заведение",
		slog.String("user_id", userID),
		slog.String("institution_id", institutionID),
		slog.String("role", string(user.Role())),
	)
	return nil
}

// deletionStep — шаг удаления профиля.
type deletionStep struct {
	name string
	run  func(ctx context.Context) error
}

// DeleteProfile удаляет профиль пользователя по шагам.
// Шаги не откатываются: сбой после выполненного шага даёт ErrPartialCompletion.
func (s *MembershipService) DeleteProfile(ctx context.Context, userID string) error {
	repos := s.store.Repos()

	user, err := repos.Users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%w: пользователь %s", ErrNotFound, userID)
		}
		return fmt.Errorf("получение пользователя: %w", err)
	}
	if user.Role() == model.RoleAdmin {
		return fmt.Errorf("%w: администратор должен сначала удалить учебное заведение", ErrForbidden)
	}

	steps := s.deletionSteps(user)
	completed := make([]string, 0, len(steps))
	for _, step := range steps {
		if err := step.run(ctx); err != nil {
			if len(completed) > 0 {
				s.logger.Error("Удаление профиля выполнено частично",
					slog.String("user_id", userID),
					slog.String("failed_step", step.name),
					slog.String("completed_steps", strings.Join(completed, ",")),
					slog.String("error", err.Error()),
				)
				return fmt.Errorf("%w: шаг %s (выполнены: %s): %w", //nolint:errorlint // намеренный двойной wrap
					ErrPartialCompletion, step.name, strings.Join(completed, ", "), err)
			}
			s.logger.Error("Удаление профиля не выполнено",
				slog.String("user_id", userID),
				slog.String("failed_step", step.name),
				slog.String("error", err.Error()),
			)
			return fmt.Errorf("удаление профиля, шаг %s: %w", step.name, err)
		}
		completed = append(completed, step.name)
		s.logger.Debug("Шаг удаления профиля выполнен",
			slog.String("user_id", userID),
			slog.String("step", step.name),
		)
	}

	if user.IsAffiliated() {
		membershipRemovalsTotal.WithLabelValues("profile_deleted").Inc()
	}
	s.logger.Info("Профиль удалён",
		slog.String("user_id", userID),
		slog.String("role", string(user.Role())),
		slog.String("steps", strings.Join(completed, ",")),
	)
	return nil
}

// deletionSteps собирает шаги удаления профиля в порядке выполнения.
func (s *MembershipService) deletionSteps(user *model.User) []deletionStep {
	uid := user.UID
	repos := s.store.Repos()
	var steps []deletionStep

	if user.Role() == model.RoleTeacher {
		steps = append(steps, deletionStep{"mark_papers", func(ctx context.Context) error {
			n, err := repos.Papers.MarkCreatorDeleted(ctx, uid)
			if err != nil {
				return fmt.Errorf("пометка работ автора: %w", err)
			}
			s.logger.Info("Работы автора помечены",
				slog.String("user_id", uid),
				slog.Int64("count", n),
			)
			return nil
		}})
	}

	if user.IsAffiliated() {
		institutionID := user.MemberOf()
		steps = append(steps, deletionStep{"leave_institution", func(ctx context.Context) error {
			return s.store.RunInTx(ctx, func(r repository.Repositories) error {
				if _, err := r.Members.Remove(ctx, institutionID, uid); err != nil {
					return fmt.Errorf("удаление из списка: %w", err)
				}
				if _, err := r.Users.ClearAffiliation(ctx, uid, institutionID); err != nil {
					return fmt.Errorf("снятие роли: %w", err)
				}
				return nil
			})
		}})
	}

	steps = append(steps,
		deletionStep{"delete_lobby_requests", func(ctx context.Context) error {
			n, err := repos.Lobby.DeleteByUser(ctx, uid)
			if err != nil {
				return fmt.Errorf("удаление заявок: %w", err)
			}
			if n > 0 {
				s.logger.Info("Заявки пользователя удалены",
					slog.String("user_id", uid),
					slog.Int64("count", n),
				)
			}
			return nil
		}},
		deletionStep{"delete_notifications", func(ctx context.Context) error {
			if _, err := repos.Notifications.DeleteByUser(ctx, uid); err != nil {
				return fmt.Errorf("удаление уведомлений: %w", err)
			}
			return nil
		}},
		deletionStep{"delete_user", func(ctx context.Context) error {
			err := repos.Users.Delete(ctx, uid)
			if err != nil && !errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("удаление пользователя: %w", err)
			}
			return nil
		}},
		deletionStep{"delete_identity", func(ctx context.Context) error {
			err := s.identity.DeleteUser(ctx, uid)
			if errors.Is(err, keycloak.ErrUserNotFound) {
				s.logger.Warn("Учётная запись в Keycloak уже удалена", slog.String("user_id", uid))
				return nil
			}
			if err != nil {
				return fmt.Errorf("удаление учётной записи в Keycloak: %w", err)
			}
			return nil
		}},
	)
	return steps
}

func (s *MembershipService) notify(userID, message string, severity model.Severity) {
	if s.notifier == nil {
		return
	}
	s.notifier.Enqueue(userID, message, severity)
}
