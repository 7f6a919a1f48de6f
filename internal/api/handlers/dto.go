// dto.go — JSON-представления запросов и ответов API.
// Поля соответствуют схемам internal/api/openapi/openapi.yaml.
package handlers

import (
	"time"

	"github.com/bigkaa/goschool/institution-module/internal/domain/model"
)

type createInstitutionRequest struct {
	Name        string `json:"name"`
	LogoURL     string `json:"logo_url"`
	Description string `json:"description"`
}

// updateInstitutionRequest — отсутствующие поля не изменяются.
type updateInstitutionRequest struct {
	Name        *string `json:"name"`
	LogoURL     *string `json:"logo_url"`
	Description *string `json:"description"`
}

type joinRequest struct {
	Role          model.Role           `json:"role"`
	FormResponses []model.FormResponse `json:"form_responses"`
}

type joinResponse struct {
	RequestID string `json:"request_id"`
}

type institutionResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	LogoURL     string    `json:"logo_url"`
	Description string    `json:"description"`
	CreatedBy   string    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type profileResponse struct {
	UID         string `json:"uid"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
	PhotoURL    string `json:"photo_url"`
}

type userResponse struct {
	profileResponse
	Role      string    `json:"role,omitempty"`
	MemberOf  string    `json:"member_of,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type memberResponse struct {
	profileResponse
	List    model.Role `json:"list"`
	AddedAt time.Time  `json:"added_at"`
}

type lobbyRequestResponse struct {
	ID            string               `json:"id"`
	InstitutionID string               `json:"institution_id"`
	RoleRequested model.Role           `json:"role_requested"`
	FormResponses []model.FormResponse `json:"form_responses"`
	CreatedAt     time.Time            `json:"created_at"`
	Applicant     profileResponse      `json:"applicant"`
}

// listResponse — список с общим количеством.
type listResponse[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
}

func newListResponse[T any](items []T) listResponse[T] {
	if items == nil {
		items = []T{}
	}
	return listResponse[T]{Items: items, Total: len(items)}
}

// --- Маппинг моделей ---

func mapInstitution(i *model.Institution) institutionResponse {
	return institutionResponse{
		ID:          i.ID,
		Name:        i.Name,
		LogoURL:     i.LogoURL,
		Description: i.Description,
		CreatedBy:   i.CreatedBy,
		CreatedAt:   i.CreatedAt,
		UpdatedAt:   i.UpdatedAt,
	}
}

func mapProfile(p model.Profile) profileResponse {
	return profileResponse{
		UID:         p.UID,
		DisplayName: p.DisplayName,
		Email:       p.Email,
		PhotoURL:    p.PhotoURL,
	}
}

func mapUser(u *model.User) userResponse {
	return userResponse{
		profileResponse: mapProfile(u.Profile()),
		Role:            string(u.Role()),
		MemberOf:        u.MemberOf(),
		CreatedAt:       u.CreatedAt,
	}
}

func mapMember(m model.Member) memberResponse {
	return memberResponse{
		profileResponse: mapProfile(m.Profile),
		List:            m.List,
		AddedAt:         m.AddedAt,
	}
}

func mapLobbyRequest(v model.LobbyRequestView) lobbyRequestResponse {
	responses := v.FormResponses
	if responses == nil {
		responses = []model.FormResponse{}
	}
	return lobbyRequestResponse{
		ID:            v.ID,
		InstitutionID: v.InstitutionID,
		RoleRequested: v.RoleRequested,
		FormResponses: responses,
		CreatedAt:     v.CreatedAt,
		Applicant:     mapProfile(v.Applicant),
	}
}
