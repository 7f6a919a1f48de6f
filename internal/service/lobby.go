// lobby.go — зал ожидания: заявки на вступление в учебное заведение.
//
// Заявка существует, пока по ней не принято решение. Одобрение и отклонение
// удаляют заявку; одобрение в той же транзакции добавляет заявителя в список
// и назначает ему роль. Уведомление заявителю ставится в очередь после коммита.
//
// Prometheus-метрики:
//   - im_lobby_requests_total{role} — поданные заявки
//   - im_lobby_resolutions_total{role,action} — принятые решения
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/goschool/institution-module/internal/domain/model"
	"github.com/bigkaa/goschool/institution-module/internal/domain/rbac"
	"github.com/bigkaa/goschool/institution-module/internal/repository"
)

var (
	lobbyRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "im_lobby_requests_total",
		Help: "Заявки в зал ожидания по запрошенной роли.",
	}, []string{"role"})
	lobbyResolutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "im_lobby_resolutions_total",
		Help: "Решения по заявкам в зале ожидания.",
	}, []string{"role", "action"})
)

// WaitingLobbyService — сервис зала ожидания.
type WaitingLobbyService struct {
	store    repository.Store
	names    *NameResolver
	notifier Notifier
	logger   *slog.Logger
}

// NewWaitingLobbyService создаёт сервис зала ожидания.
func NewWaitingLobbyService(
	store repository.Store,
	names *NameResolver,
	notifier Notifier,
	logger *slog.Logger,
) *WaitingLobbyService {
	return &WaitingLobbyService{
		store:    store,
		names:    names,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "lobby_service")),
	}
}

// AddRequest подаёт заявку пользователя userID на роль role. Возвращает ID заявки.
func (s *WaitingLobbyService) AddRequest(
	ctx context.Context,
	institutionID, userID string,
	role model.Role,
	responses []model.FormResponse,
) (string, error) {
	if !rbac.IsListRole(string(role)) {
		return "", fmt.Errorf("%w: заявку можно подать только на роль teacher или student", ErrValidation)
	}
	for i, fr := range responses {
		if fr.FieldID == "" {
			return "", fmt.Errorf("%w: у ответа анкеты #%d не указан field_id", ErrValidation, i+1)
		}
	}

	repos := s.store.Repos()
	if _, err := repos.Institutions.GetByID(ctx, institutionID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", fmt.Errorf("%w: учебное заведение %s", ErrNotFound, institutionID)
		}
		return "", fmt.Errorf("получение учебного заведения: %w", err)
	}

	user, err := repos.Users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", fmt.Errorf("%w: пользователь %s", ErrNotFound, userID)
		}
		return "", fmt.Errorf("получение пользователя: %w", err)
	}
	if user.IsAffiliated() {
		return "", fmt.Errorf("%w: пользователь уже состоит в учебном заведении", ErrConflict)
	}

	exists, err := repos.Lobby.Exists(ctx, institutionID, userID)
	if err != nil {
		return "", fmt.Errorf("проверка заявки: %w", err)
	}
	if exists {
		return "", fmt.Errorf("%w: заявка в это учебное заведение уже подана", ErrConflict)
	}

	req := &model.WaitingLobbyRequest{
		ID:            uuid.New().String(),
		InstitutionID: institutionID,
		UserID:        userID,
		RoleRequested: role,
		FormResponses: responses,
	}
	if err := repos.Lobby.Create(ctx, req); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return "", fmt.Errorf("%w: заявка в это учебное заведение уже подана", ErrConflict)
		}
		return "", fmt.Errorf("сохранение заявки: %w", err)
	}

	lobbyRequestsTotal.WithLabelValues(string(role)).Inc()
	s.logger.Info("Заявка подана",
		slog.String("request_id", req.ID),
		slog.String("institution_id", institutionID),
		slog.String("user_id", userID),
		slog.String("role", string(role)),
	)
	return req.ID, nil
}

// ListRequests возвращает ожидающие заявки в список role, старые первыми.
func (s *WaitingLobbyService) ListRequests(
	ctx context.Context,
	institutionID string,
	role model.Role,
	actor *model.User,
) ([]model.LobbyRequestView, error) {
	if !rbac.IsListRole(string(role)) {
		return nil, fmt.Errorf("%w: недопустимый список %q", ErrValidation, role)
	}
	if !rbac.CanViewRequests(actor, institutionID, role) {
		return nil, fmt.Errorf("%w: просмотр заявок в список %s", ErrForbidden, role)
	}

	reqs, err := s.store.Repos().Lobby.List(ctx, institutionID, role)
	if err != nil {
		return nil, fmt.Errorf("получение заявок: %w", err)
	}
	return reqs, nil
}

// Resolve одобряет или отклоняет заявку requestID из списка list.
// Повторное решение по той же заявке возвращает ErrNotFound.
func (s *WaitingLobbyService) Resolve(
	ctx context.Context,
	institutionID, requestID string,
	list model.Role,
	action model.LobbyAction,
	actor *model.User,
) error {
	if !action.IsValid() {
		return fmt.Errorf("%w: недопустимое решение %q (approve, reject)", ErrValidation, action)
	}
	if !rbac.IsListRole(string(list)) {
		return fmt.Errorf("%w: недопустимый список %q", ErrValidation, list)
	}
	if !rbac.CanResolveRequest(actor, institutionID, list) {
		return fmt.Errorf("%w: решение по заявкам в список %s", ErrForbidden, list)
	}

	// Название нужно только для текста уведомления и не влияет на решение.
	name, _ := s.names.Resolve(ctx, institutionID)

	var req *model.WaitingLobbyRequest
	err := s.store.RunInTx(ctx, func(r repository.Repositories) error {
		var err error
		req, err = r.Lobby.DeleteReturning(ctx, institutionID, requestID, list)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("%w: заявка %s", ErrNotFound, requestID)
			}
			return fmt.Errorf("удаление заявки: %w", err)
		}

		if action == model.ActionApprove {
			if err := s.admit(ctx, r, req); err != nil {
				return err
			}
		}

		entry := &model.LobbyAuditEntry{
			RequestID:     req.ID,
			InstitutionID: institutionID,
			UserID:        req.UserID,
			RoleRequested: req.RoleRequested,
			Action:        action,
			ResolvedBy:    actor.UID,
		}
		if err := r.Audit.Append(ctx, entry); err != nil {
			return fmt.Errorf("запись в журнал решений: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	lobbyResolutionsTotal.WithLabelValues(string(list), string(action)).Inc()
	s.logger.Info("Решение по заявке принято",
		slog.String("request_id", requestID),
		slog.String("institution_id", institutionID),
		slog.String("user_id", req.UserID),
		slog.String("role", string(req.RoleRequested)),
		slog.String("action", string(action)),
		slog.String("resolved_by", actor.UID),
	)

	if action == model.ActionApprove {
		s.notify(req.UserID,
			fmt.Sprintf("Ваша заявка в «%s» одобрена. Роль: %s", name, req.RoleRequested),
			model.SeveritySuccess)
	} else {
		s.notify(req.UserID,
			fmt.Sprintf("Ваша заявка в «%s» отклонена", name),
			model.SeverityDanger)
	}
	return nil
}

// admit добавляет заявителя в список и назначает ему роль.
func (s *WaitingLobbyService) admit(ctx context.Context, r repository.Repositories, req *model.WaitingLobbyRequest) error {
	if err := r.Members.Add(ctx, req.InstitutionID, req.UserID, req.RoleRequested); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return fmt.Errorf("%w: заявитель уже состоит в учебном заведении", ErrConflict)
		}
		return fmt.Errorf("добавление в список: %w", err)
	}

	err := r.Users.SetAffiliation(ctx, req.UserID, model.Affiliation{
		Role:          req.RoleRequested,
		InstitutionID: req.InstitutionID,
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("%w: заявитель %s удалён", ErrNotFound, req.UserID)
	case errors.Is(err, repository.ErrConflict):
		return fmt.Errorf("%w: заявитель уже состоит в учебном заведении", ErrConflict)
	default:
		return fmt.Errorf("назначение роли: %w", err)
	}
}

func (s *WaitingLobbyService) notify(userID, message string, severity model.Severity) {
	if s.notifier == nil {
		return
	}
	s.notifier.Enqueue(userID, message, severity)
}
