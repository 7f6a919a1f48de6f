package memstore

import (
	"context"
	"sort"

	"github.com/bigkaa/goschool/institution-module/internal/domain/model"
	"github.com/bigkaa/goschool/institution-module/internal/domain/rbac"
)

type papers struct{ v *view }

func (r *papers) Create(_ context.Context, p *model.QuestionPaper) error {
	return r.v.do("Papers.Create", func(st *state) error {
		if _, ok := st.papers[p.ID]; ok {
			return conflict("работа %s уже существует", p.ID)
		}
		p.CreatedAt = r.v.s.now()
		st.papers[p.ID] = *p
		return nil
	})
}

func (r *papers) CountByInstitution(_ context.Context, institutionID string) (int, error) {
	n := 0
	err := r.v.do("Papers.CountByInstitution", func(st *state) error {
		for _, p := range st.papers {
			if p.BelongsTo == institutionID {
				n++
			}
		}
		return nil
	})
	return n, err
}

func (r *papers) MarkCreatorDeleted(_ context.Context, creatorID string) (int64, error) {
	var n int64
	err := r.v.do("Papers.MarkCreatorDeleted", func(st *state) error {
		for id, p := range st.papers {
			if p.CreatedBy == creatorID {
				p.IsCreatorDeleted = true
				st.papers[id] = p
				n++
			}
		}
		return nil
	})
	return n, err
}

func (r *papers) ListByCreator(_ context.Context, creatorID string) ([]model.QuestionPaper, error) {
	var result []model.QuestionPaper
	err := r.v.do("Papers.ListByCreator", func(st *state) error {
		for _, p := range st.papers {
			if p.CreatedBy == creatorID {
				result = append(result, p)
			}
		}
		sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
		return nil
	})
	return result, err
}

type forms struct{ v *view }

func (r *forms) Create(_ context.Context, f *model.FormDefinition) error {
	return r.v.do("Forms.Create", func(st *state) error {
		if !rbac.IsListRole(string(f.Role)) {
			return conflict("недопустимая роль анкеты %q", f.Role)
		}
		if _, ok := st.institutions[f.InstitutionID]; !ok {
			return conflict("учебное заведение %s не существует", f.InstitutionID)
		}
		f.CreatedAt = r.v.s.now()
		st.forms[f.ID] = *f
		return nil
	})
}

func (r *forms) CountByInstitution(_ context.Context, institutionID string) (int, error) {
	n := 0
	err := r.v.do("Forms.CountByInstitution", func(st *state) error {
		for _, f := range st.forms {
			if f.InstitutionID == institutionID {
				n++
			}
		}
		return nil
	})
	return n, err
}

func (r *forms) DeleteByInstitution(_ context.Context, institutionID string) (int64, error) {
	var n int64
	err := r.v.do("Forms.DeleteByInstitution", func(st *state) error {
		for id, f := range st.forms {
			if f.InstitutionID == institutionID {
				delete(st.forms, id)
				n++
			}
		}
		return nil
	})
	return n, err
}

type notifications struct{ v *view }

func (r *notifications) Create(_ context.Context, n *model.Notification) error {
	return r.v.do("Notifications.Create", func(st *state) error {
		if !n.Severity.IsValid() {
			return conflict("недопустимый уровень уведомления %q", n.Severity)
		}
		if _, ok := st.notifications[n.ID]; ok {
			return conflict("уведомление %s уже существует", n.ID)
		}
		n.CreatedAt = r.v.s.now()
		st.notifications[n.ID] = *n
		return nil
	})
}

func (r *notifications) ListByUser(_ context.Context, userID string, limit int) ([]model.Notification, error) {
	var result []model.Notification
	err := r.v.do("Notifications.ListByUser", func(st *state) error {
		for _, n := range st.notifications {
			if n.UserID == userID {
				result = append(result, n)
			}
		}
		sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
		if len(result) > limit {
			result = result[:limit]
		}
		return nil
	})
	return result, err
}

func (r *notifications) DeleteByUser(_ context.Context, userID string) (int64, error) {
	var n int64
	err := r.v.do("Notifications.DeleteByUser", func(st *state) error {
		for id, x := range st.notifications {
			if x.UserID == userID {
				delete(st.notifications, id)
				n++
			}
		}
		return nil
	})
	return n, err
}
