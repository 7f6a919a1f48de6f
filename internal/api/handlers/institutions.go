// institutions.go — обработчики /api/v1/institutions endpoints.
package handlers

import (
	"net/http"

	apierrors "github.com/bigkaa/goschool/institution-module/internal/api/errors"
	"github.com/bigkaa/goschool/institution-module/internal/domain/model"
)

// CreateInstitution — POST /api/v1/institutions/create.
// Создатель становится администратором учебного заведения.
func (h *APIHandler) CreateInstitution(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	var body createInstitutionRequest
	if err := decodeJSON(r, &body); err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	inst, err := h.institutions.Create(r.Context(), body.Name, body.LogoURL, body.Description, user.UID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, mapInstitution(inst))
}

// UpdateInstitution — PATCH /api/v1/institutions/{id}/update.
// Доступ: администратор учебного заведения.
func (h *APIHandler) UpdateInstitution(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	id, err := pathUUID(r, "id")
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	var body updateInstitutionRequest
	if err := decodeJSON(r, &body); err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	inst, err := h.institutions.Update(r.Context(), id, model.InstitutionPatch{
		Name:        body.Name,
		LogoURL:     body.LogoURL,
		Description: body.Description,
	}, user)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, mapInstitution(inst))
}
