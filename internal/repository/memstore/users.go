package memstore

import (
	"context"

	"github.com/bigkaa/goschool/institution-module/internal/domain/model"
	"github.com/bigkaa/goschool/institution-module/internal/domain/rbac"
	"github.com/bigkaa/goschool/institution-module/internal/repository"
)

type users struct{ v *view }

func copyUser(u model.User) model.User {
	if u.Affiliation != nil {
		a := *u.Affiliation
		u.Affiliation = &a
	}
	return u
}

func (r *users) Create(_ context.Context, u *model.User) error {
	return r.v.do("Users.Create", func(st *state) error {
		if _, ok := st.users[u.UID]; ok {
			return conflict("пользователь %s уже существует", u.UID)
		}
		if a := u.Affiliation; a != nil {
			if !rbac.IsValidRole(string(a.Role)) || a.InstitutionID == "" {
				return conflict("недопустимая принадлежность пользователя %s", u.UID)
			}
			if _, ok := st.institutions[a.InstitutionID]; !ok {
				return conflict("учебное заведение %s не существует", a.InstitutionID)
			}
		}
		now := r.v.s.now()
		u.CreatedAt, u.UpdatedAt = now, now
		st.users[u.UID] = copyUser(*u)
		return nil
	})
}

func (r *users) GetByID(_ context.Context, uid string) (*model.User, error) {
	var out model.User
	err := r.v.do("Users.GetByID", func(st *state) error {
		u, ok := st.users[uid]
		if !ok {
			return repository.ErrNotFound
		}
		out = copyUser(u)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *users) GetProfiles(_ context.Context, uids []string) (map[string]model.Profile, error) {
	result := make(map[string]model.Profile, len(uids))
	err := r.v.do("Users.GetProfiles", func(st *state) error {
		for _, uid := range uids {
			if u, ok := st.users[uid]; ok {
				result[uid] = u.Profile()
			}
		}
		return nil
	})
	return result, err
}

func (r *users) SetAffiliation(_ context.Context, uid string, a model.Affiliation) error {
	if a.Role == "" || a.InstitutionID == "" {
		return model.ErrInvalidAffiliation
	}
	return r.v.do("Users.SetAffiliation", func(st *state) error {
		u, ok := st.users[uid]
		if !ok {
			return repository.ErrNotFound
		}
		if u.Affiliation != nil {
			return conflict("пользователь %s уже состоит в учебном заведении", uid)
		}
		if !rbac.IsValidRole(string(a.Role)) {
			return conflict("недопустимая роль %q", a.Role)
		}
		if _, ok := st.institutions[a.InstitutionID]; !ok {
			return conflict("учебное заведение %s не существует", a.InstitutionID)
		}
		if err := u.SetAffiliation(a.Role, a.InstitutionID); err != nil {
			return err
		}
		u.UpdatedAt = r.v.s.now()
		st.users[uid] = u
		return nil
	})
}

func (r *users) ClearAffiliation(_ context.Context, uid, institutionID string) (bool, error) {
	changed := false
	err := r.v.do("Users.ClearAffiliation", func(st *state) error {
		u, ok := st.users[uid]
		if !ok || u.MemberOf() != institutionID {
			return nil
		}
		u.ClearAffiliation()
		u.UpdatedAt = r.v.s.now()
		st.users[uid] = u
		changed = true
		return nil
	})
	return changed, err
}

func (r *users) Delete(_ context.Context, uid string) error {
	return r.v.do("Users.Delete", func(st *state) error {
		if _, ok := st.users[uid]; !ok {
			return repository.ErrNotFound
		}
		delete(st.users, uid)
		return nil
	})
}
