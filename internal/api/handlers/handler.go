// handler.go — основной обработчик API Institution Module.
// Объединяет доменные обработчики и делегирует запросы в сервисный слой.
package handlers

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"
	openapi_types "github.com/oapi-codegen/runtime/types"

	apierrors "github.com/bigkaa/goschool/institution-module/internal/api/errors"
	"github.com/bigkaa/goschool/institution-module/internal/api/middleware"
	"github.com/bigkaa/goschool/institution-module/internal/domain/model"
	"github.com/bigkaa/goschool/institution-module/internal/service"
)

// APIHandler — основной обработчик API Institution Module.
type APIHandler struct {
	health       *HealthHandler
	institutions *service.InstitutionService
	lobby        *service.WaitingLobbyService
	members      *service.MembershipService
	profiles     *service.ProfileService
	logger       *slog.Logger
}

// NewAPIHandler создаёт основной обработчик API.
func NewAPIHandler(
	health *HealthHandler,
	institutions *service.InstitutionService,
	lobby *service.WaitingLobbyService,
	members *service.MembershipService,
	profiles *service.ProfileService,
	logger *slog.Logger,
) *APIHandler {
	return &APIHandler{
		health:       health,
		institutions: institutions,
		lobby:        lobby,
		members:      members,
		profiles:     profiles,
		logger:       logger.With(slog.String("component", "api_handler")),
	}
}

// Routes регистрирует маршруты /api/v1 на переданном роутере.
// Аутентификация и загрузка пользователя подключаются снаружи.
func (h *APIHandler) Routes(r chi.Router) {
	r.Post("/institutions/create", h.CreateInstitution)
	r.Patch("/institutions/{id}/update", h.UpdateInstitution)

	r.Post("/waiting-lobby/{id}/join", h.JoinWaitingLobby)
	for _, list := range []model.Role{model.RoleTeacher, model.RoleStudent} {
		segment := listSegment(list)
		r.Get("/waiting-lobby/{id}/"+segment, h.ListLobbyRequests(list))
		r.Patch("/waiting-lobby/{id}/"+segment+"/{rid}/{action}", h.ResolveLobbyRequest(list))
		r.Get("/members/{id}/"+segment, h.ListMembers(list))
		r.Post("/members/{id}/"+segment+"/{uid}/remove", h.RemoveMember(list))
	}

	r.Get("/profile", h.GetProfile)
	r.Delete("/profile/leave-institution", h.LeaveInstitution)
	r.Delete("/profile/delete-institution", h.DeleteInstitution)
	r.Delete("/profile/delete-user-profile", h.DeleteUserProfile)
}

// HealthLive — liveness probe (делегируется в HealthHandler).
func (h *APIHandler) HealthLive(w http.ResponseWriter, r *http.Request) {
	h.health.HealthLive(w, r)
}

// HealthReady — readiness probe (делегируется в HealthHandler).
func (h *APIHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	h.health.HealthReady(w, r)
}

// GetMetrics — Prometheus метрики (делегируется в HealthHandler).
func (h *APIHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.health.GetMetrics(w, r)
}

// --- Вспомогательные функции ---

// listSegment — сегмент пути для списка участников.
func listSegment(list model.Role) string {
	if list == model.RoleTeacher {
		return "teachers"
	}
	return "students"
}

// currentUser возвращает пользователя запроса или пишет 401.
func currentUser(w http.ResponseWriter, r *http.Request) (*model.User, bool) {
	u := middleware.UserFromContext(r.Context())
	if u == nil {
		apierrors.Unauthorized(w, "Пользователь не аутентифицирован")
		return nil, false
	}
	return u, true
}

// pathUUID извлекает UUID из параметра пути.
func pathUUID(r *http.Request, name string) (string, error) {
	var id openapi_types.UUID
	err := runtime.BindStyledParameterWithOptions("simple", name, chi.URLParam(r, name), &id,
		runtime.BindStyledParameterOptions{
			ParamLocation: runtime.ParamLocationPath,
			Explode:       false,
			Required:      true,
		})
	if err != nil {
		return "", fmt.Errorf("некорректный параметр %s: %w", name, err)
	}
	return id.String(), nil
}

// decodeJSON разбирает тело запроса.
func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("некорректное тело запроса: %w", err)
	}
	return nil
}

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError преобразует ошибку сервиса в ответ.
func (h *APIHandler) writeError(w http.ResponseWriter, err error) {
	apierrors.WriteServiceError(w, err, h.logger)
}
