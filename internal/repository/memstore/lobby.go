package memstore

import (
	"context"
	"sort"

	"github.com/bigkaa/goschool/institution-module/internal/domain/model"
	"github.com/bigkaa/goschool/institution-module/internal/domain/rbac"
	"github.com/bigkaa/goschool/institution-module/internal/repository"
)

type lobby struct{ v *view }

func copyRequest(req model.WaitingLobbyRequest) model.WaitingLobbyRequest {
	req.FormResponses = append([]model.FormResponse{}, req.FormResponses...)
	return req
}

func (r *lobby) Create(_ context.Context, req *model.WaitingLobbyRequest) error {
	return r.v.do("Lobby.Create", func(st *state) error {
		if !rbac.IsListRole(string(req.RoleRequested)) {
			return conflict("недопустимая роль заявки %q", req.RoleRequested)
		}
		if _, ok := st.institutions[req.InstitutionID]; !ok {
			return conflict("учебное заведение %s не существует", req.InstitutionID)
		}
		if _, ok := st.lobby[req.ID]; ok {
			return conflict("заявка %s уже существует", req.ID)
		}
		for _, l := range st.lobby {
			if l.req.InstitutionID == req.InstitutionID && l.req.UserID == req.UserID {
				return conflict("заявка пользователя %s уже существует", req.UserID)
			}
		}
		req.CreatedAt = r.v.s.now()
		st.lobby[req.ID] = lobbyRow{req: copyRequest(*req), seq: st.nextSeq()}
		return nil
	})
}

func (r *lobby) Exists(_ context.Context, institutionID, userID string) (bool, error) {
	exists := false
	err := r.v.do("Lobby.Exists", func(st *state) error {
		for _, l := range st.lobby {
			if l.req.InstitutionID == institutionID && l.req.UserID == userID {
				exists = true
				return nil
			}
		}
		return nil
	})
	return exists, err
}

func (r *lobby) List(_ context.Context, institutionID string, role model.Role) ([]model.LobbyRequestView, error) {
	result := []model.LobbyRequestView{}
	err := r.v.do("Lobby.List", func(st *state) error {
		var rows []lobbyRow
		for _, l := range st.lobby {
			if l.req.InstitutionID == institutionID && l.req.RoleRequested == role {
				rows = append(rows, l)
			}
		}
		sort.Slice(rows, func(i, j int) bool { return rows[i].seq < rows[j].seq })
		for _, l := range rows {
			p := model.Profile{UID: l.req.UserID}
			if u, ok := st.users[l.req.UserID]; ok {
				p = u.Profile()
			}
			result = append(result, model.LobbyRequestView{WaitingLobbyRequest: copyRequest(l.req), Applicant: p})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (r *lobby) DeleteReturning(_ context.Context, institutionID, requestID string, role model.Role) (*model.WaitingLobbyRequest, error) {
	var out model.WaitingLobbyRequest
	err := r.v.do("Lobby.DeleteReturning", func(st *state) error {
		l, ok := st.lobby[requestID]
		if !ok || l.req.InstitutionID != institutionID || l.req.RoleRequested != role {
			return repository.ErrNotFound
		}
		delete(st.lobby, requestID)
		out = copyRequest(l.req)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *lobby) DeleteByInstitution(_ context.Context, institutionID string) (int64, error) {
	var n int64
	err := r.v.do("Lobby.DeleteByInstitution", func(st *state) error {
		for k, l := range st.lobby {
			if l.req.InstitutionID == institutionID {
				delete(st.lobby, k)
				n++
			}
		}
		return nil
	})
	return n, err
}

func (r *lobby) DeleteByUser(_ context.Context, userID string) (int64, error) {
	var n int64
	err := r.v.do("Lobby.DeleteByUser", func(st *state) error {
		for k, l := range st.lobby {
			if l.req.UserID == userID {
				delete(st.lobby, k)
				n++
			}
		}
		return nil
	})
	return n, err
}

type audit struct{ v *view }

func (r *audit) Append(_ context.Context, e *model.LobbyAuditEntry) error {
	return r.v.do("Audit.Append", func(st *state) error {
		if !e.Action.IsValid() {
			return conflict("недопустимое решение %q", e.Action)
		}
		e.ID = st.nextSeq()
		e.ResolvedAt = r.v.s.now()
		st.audit = append(st.audit, *e)
		return nil
	})
}

func (r *audit) ListByInstitution(_ context.Context, institutionID string, limit int) ([]model.LobbyAuditEntry, error) {
	var result []model.LobbyAuditEntry
	err := r.v.do("Audit.ListByInstitution", func(st *state) error {
		for i := len(st.audit) - 1; i >= 0 && len(result) < limit; i-- {
			if st.audit[i].InstitutionID == institutionID {
				result = append(result, st.audit[i])
			}
		}
		return nil
	})
	return result, err
}
