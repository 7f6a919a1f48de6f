package memstore

import (
	"context"
	"sort"

	"github.com/bigkaa/goschool/institution-module/internal/domain/model"
	"github.com/bigkaa/goschool/institution-module/internal/domain/rbac"
	"github.com/bigkaa/goschool/institution-module/internal/repository"
)

type institutions struct{ v *view }

func (r *institutions) Create(_ context.Context, inst *model.Institution) error {
	return r.v.do("Institutions.Create", func(st *state) error {
		if _, ok := st.institutions[inst.ID]; ok {
			return conflict("учебное заведение %s уже существует", inst.ID)
		}
		now := r.v.s.now()
		inst.CreatedAt, inst.UpdatedAt = now, now
		st.institutions[inst.ID] = *inst
		return nil
	})
}

func (r *institutions) get(op, id string) (*model.Institution, error) {
	var out model.Institution
	err := r.v.do(op, func(st *state) error {
		inst, ok := st.institutions[id]
		if !ok {
			return repository.ErrNotFound
		}
		out = inst
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *institutions) GetByID(_ context.Context, id string) (*model.Institution, error) {
	return r.get("Institutions.GetByID", id)
}

// GetForUpdate — транзакции в памяти сериализуются, отдельная блокировка строки не нужна.
func (r *institutions) GetForUpdate(_ context.Context, id string) (*model.Institution, error) {
	return r.get("Institutions.GetForUpdate", id)
}

func (r *institutions) Update(_ context.Context, id string, patch model.InstitutionPatch) (*model.Institution, error) {
	var out model.Institution
	err := r.v.do("Institutions.Update", func(st *state) error {
		inst, ok := st.institutions[id]
		if !ok {
			return repository.ErrNotFound
		}
		if patch.Name != nil {
			inst.Name = *patch.Name
		}
		if patch.LogoURL != nil {
			inst.LogoURL = *patch.LogoURL
		}
		if patch.Description != nil {
			inst.Description = *patch.Description
		}
		inst.UpdatedAt = r.v.s.now()
		st.institutions[id] = inst
		out = inst
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *institutions) Delete(_ context.Context, id string) error {
	return r.v.do("Institutions.Delete", func(st *state) error {
		if _, ok := st.institutions[id]; !ok {
			return repository.ErrNotFound
		}
		// ON DELETE RESTRICT для users.member_of и institution_members
		for _, u := range st.users {
			if u.MemberOf() == id {
				return conflict("пользователь %s ссылается на учебное заведение %s", u.UID, id)
			}
		}
		for _, m := range st.members {
			if m.institutionID == id {
				return conflict("в учебном заведении %s есть участники", id)
			}
		}
		// ON DELETE CASCADE для заявок и анкет
		for k, l := range st.lobby {
			if l.req.InstitutionID == id {
				delete(st.lobby, k)
			}
		}
		for k, f := range st.forms {
			if f.InstitutionID == id {
				delete(st.forms, k)
			}
		}
		delete(st.institutions, id)
		return nil
	})
}

type members struct{ v *view }

func (r *members) Add(_ context.Context, institutionID, userID string, list model.Role) error {
	return r.v.do("Members.Add", func(st *state) error {
		if !rbac.IsListRole(string(list)) {
			return conflict("недопустимый список %q", list)
		}
		if _, ok := st.institutions[institutionID]; !ok {
			return conflict("учебное заведение %s не существует", institutionID)
		}
		if _, ok := st.members[userID]; ok {
			return conflict("пользователь %s уже состоит в списке", userID)
		}
		st.members[userID] = memberRow{
			institutionID: institutionID,
			userID:        userID,
			list:          list,
			addedAt:       r.v.s.now(),
			seq:           st.nextSeq(),
		}
		return nil
	})
}

func (r *members) Remove(_ context.Context, institutionID, userID string) (bool, error) {
	removed := false
	err := r.v.do("Members.Remove", func(st *state) error {
		m, ok := st.members[userID]
		if !ok || m.institutionID != institutionID {
			return nil
		}
		delete(st.members, userID)
		removed = true
		return nil
	})
	return removed, err
}

func (r *members) ListOf(_ context.Context, institutionID, userID string) (model.Role, error) {
	var list model.Role
	err := r.v.do("Members.ListOf", func(st *state) error {
		m, ok := st.members[userID]
		if !ok || m.institutionID != institutionID {
			return repository.ErrNotFound
		}
		list = m.list
		return nil
	})
	return list, err
}

func (r *members) List(_ context.Context, institutionID string, list model.Role) ([]model.Member, error) {
	var rows []memberRow
	result := []model.Member{}
	err := r.v.do("Members.List", func(st *state) error {
		for _, m := range st.members {
			if m.institutionID == institutionID && m.list == list {
				rows = append(rows, m)
			}
		}
		sort.Slice(rows, func(i, j int) bool { return rows[i].seq < rows[j].seq })
		for _, m := range rows {
			p := model.Profile{UID: m.userID}
			if u, ok := st.users[m.userID]; ok {
				p = u.Profile()
			}
			result = append(result, model.Member{Profile: p, List: m.list, AddedAt: m.addedAt})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (r *members) Count(_ context.Context, institutionID string) (model.MemberCounts, error) {
	var c model.MemberCounts
	err := r.v.do("Members.Count", func(st *state) error {
		for _, m := range st.members {
			if m.institutionID != institutionID {
				continue
			}
			switch m.list {
			case model.RoleTeacher:
				c.Teachers++
			case model.RoleStudent:
				c.Students++
			}
		}
		return nil
	})
	return c, err
}
