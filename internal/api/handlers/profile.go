// profile.go — обработчики /api/v1/profile endpoints.
// Профиль текущего пользователя, выход из учебного заведения и удаление.
package handlers

import (
	"net/http"
)

// GetProfile — GET /api/v1/profile.
func (h *APIHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	// Пользователь в контексте загружен до начала запроса, перечитываем
	// для актуальной роли.
	fresh, err := h.profiles.GetUser(r.Context(), user.UID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, mapUser(fresh))
}

// LeaveInstitution — DELETE /api/v1/profile/leave-institution.
// Доступ: учитель или студент. Администратор удаляет учебное заведение.
func (h *APIHandler) LeaveInstitution(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	if err := h.members.LeaveInstitution(r.Context(), user.UID); err != nil {
		h.writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// DeleteInstitution — DELETE /api/v1/profile/delete-institution.
// Удаляет учебное заведение, администратором которого является пользователь.
func (h *APIHandler) DeleteInstitution(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	if err := h.institutions.Delete(r.Context(), user.MemberOf(), user); err != nil {
		h.writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// DeleteUserProfile — DELETE /api/v1/profile/delete-user-profile.
func (h *APIHandler) DeleteUserProfile(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	if err := h.members.DeleteProfile(r.Context(), user.UID); err != nil {
		h.writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
