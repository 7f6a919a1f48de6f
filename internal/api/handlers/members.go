// members.go — обработчики /api/v1/members endpoints.
package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/goschool/institution-module/internal/api/errors"
	"github.com/bigkaa/goschool/institution-module/internal/domain/model"
)

// ListMembers — GET /api/v1/members/{id}/teachers|students.
func (h *APIHandler) ListMembers(list model.Role) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := currentUser(w, r)
		if !ok {
			return
		}

		id, err := pathUUID(r, "id")
		if err != nil {
			apierrors.ValidationError(w, err.Error())
			return
		}

		members, err := h.members.ListMembers(r.Context(), id, list, user)
		if err != nil {
			h.writeError(w, err)
			return
		}

		items := make([]memberResponse, len(members))
		for i, m := range members {
			items[i] = mapMember(m)
		}
		writeJSON(w, http.StatusOK, newListResponse(items))
	}
}

// RemoveMember — POST /api/v1/members/{id}/teachers|students/{uid}/remove.
// Повторное исключение не является ошибкой.
func (h *APIHandler) RemoveMember(list model.Role) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := currentUser(w, r)
		if !ok {
			return
		}

		id, err := pathUUID(r, "id")
		if err != nil {
			apierrors.ValidationError(w, err.Error())
			return
		}
		memberID := chi.URLParam(r, "uid")
		if memberID == "" {
			apierrors.ValidationError(w, "не указан uid участника")
			return
		}

		if err := h.members.RemoveMember(r.Context(), id, list, memberID, user); err != nil {
			h.writeError(w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}
