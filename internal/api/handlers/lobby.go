// lobby.go — обработчики /api/v1/waiting-lobby endpoints.
// Подача заявок на вступление, просмотр и решение по заявкам.
package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/goschool/institution-module/internal/api/errors"
	"github.com/bigkaa/goschool/institution-module/internal/domain/model"
)

// JoinWaitingLobby — POST /api/v1/waiting-lobby/{id}/join.
func (h *APIHandler) JoinWaitingLobby(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	id, err := pathUUID(r, "id")
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	var body joinRequest
	if err := decodeJSON(r, &body); err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	requestID, err := h.lobby.AddRequest(r.Context(), id, user.UID, body.Role, body.FormResponses)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, joinResponse{RequestID: requestID})
}

// ListLobbyRequests — GET /api/v1/waiting-lobby/{id}/teachers|students.
// Заявки учителей видит администратор, заявки студентов — учителя.
func (h *APIHandler) ListLobbyRequests(list model.Role) http.HandlerFunc {
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

		reqs, err := h.lobby.ListRequests(r.Context(), id, list, user)
		if err != nil {
			h.writeError(w, err)
			return
		}

		items := make([]lobbyRequestResponse, len(reqs))
		for i, v := range reqs {
			items[i] = mapLobbyRequest(v)
		}
		writeJSON(w, http.StatusOK, newListResponse(items))
	}
}

// ResolveLobbyRequest — PATCH /api/v1/waiting-lobby/{id}/teachers|students/{rid}/{action}.
func (h *APIHandler) ResolveLobbyRequest(list model.Role) http.HandlerFunc {
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
		requestID, err := pathUUID(r, "rid")
		if err != nil {
			apierrors.ValidationError(w, err.Error())
			return
		}
		action := model.LobbyAction(chi.URLParam(r, "action"))

		if err := h.lobby.Resolve(r.Context(), id, requestID, list, action, user); err != nil {
			h.writeError(w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}
