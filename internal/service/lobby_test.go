package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bigkaa/goschool/institution-module/internal/domain/model"
)

func TestAddRequest_CreatesPendingRequestOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inst, admin := f.institution(t, "admin")
	f.user(t, "u1")

	id, err := f.lobby.AddRequest(ctx, inst.ID, "u1", model.RoleTeacher, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	reqs, err := f.lobby.ListRequests(ctx, inst.ID, model.RoleTeacher, admin)
	require.NoError(t, err)
	require.Len(t, reqs, 1)
	assert.Equal(t, id, reqs[0].ID)
	assert.Equal(t, "u1", reqs[0].Applicant.UID)
	assert.Equal(t, "u1@school.lan", reqs[0].Applicant.Email)

	_, err = f.lobby.AddRequest(ctx, inst.ID, "u1", model.RoleTeacher, nil)
	assert.ErrorIs(t, err, ErrConflict)

	// Заявка на другую роль в то же учебное заведение — тоже повтор
	_, err = f.lobby.AddRequest(ctx, inst.ID, "u1", model.RoleStudent, nil)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestAddRequest_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inst, _ := f.institution(t, "admin")
	f.user(t, "u1")

	tests := []struct {
		name      string
		role      model.Role
		responses []model.FormResponse
	}{
		{"роль admin", model.RoleAdmin, nil},
		{"пустая роль", "", nil},
		{"неизвестная роль", "principal", nil},
		{"ответ без field_id", model.RoleStudent, []model.FormResponse{{FieldID: "grade", Value: "9"}, {Value: "x"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.lobby.AddRequest(ctx, inst.ID, "u1", tt.role, tt.responses)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestAddRequest_Preconditions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inst, _ := f.institution(t, "admin")
	f.admit(t, inst.ID, "teacher", model.RoleTeacher)

	_, err := f.lobby.AddRequest(ctx, "missing-institution", "teacher", model.RoleStudent, nil)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.lobby.AddRequest(ctx, inst.ID, "ghost", model.RoleStudent, nil)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.lobby.AddRequest(ctx, inst.ID, "teacher", model.RoleStudent, nil)
	assert.ErrorIs(t, err, ErrConflict, "участник не может подать заявку")

	_, err = f.lobby.AddRequest(ctx, inst.ID, "admin", model.RoleTeacher, nil)
	assert.ErrorIs(t, err, ErrConflict, "администратор не может подать заявку")
}

func TestAddRequest_ConcurrentDuplicates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inst, _ := f.institution(t, "admin")
	f.user(t, "u1")

	var wg sync.WaitGroup
	errs := make([]error, 10)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.lobby.AddRequest(ctx, inst.ID, "u1", model.RoleStudent, nil)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, ErrConflict)
	}
	assert.Equal(t, 1, succeeded)
}

func TestAddRequest_KeepsFormResponseOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inst, admin := f.institution(t, "admin")
	f.user(t, "u1")

	responses := []model.FormResponse{
		{FieldID: "subject", Value: "Физика"},
		{FieldID: "experience", Value: "5"},
		{FieldID: "about", Value: ""},
	}
	_, err := f.lobby.AddRequest(ctx, inst.ID, "u1", model.RoleTeacher, responses)
	require.NoError(t, err)

	reqs, err := f.lobby.ListRequests(ctx, inst.ID, model.RoleTeacher, admin)
	require.NoError(t, err)
	require.Len(t, reqs, 1)
	assert.Equal(t, responses, reqs[0].FormResponses)
}

func TestResolve_ApproveTeacher(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inst, admin := f.institution(t, "admin")
	f.user(t, "u1")

	id, err := f.lobby.AddRequest(ctx, inst.ID, "u1", model.RoleTeacher, nil)
	require.NoError(t, err)

	require.NoError(t, f.lobby.Resolve(ctx, inst.ID, id, model.RoleTeacher, model.ActionApprove, admin))

	reqs, err := f.lobby.ListRequests(ctx, inst.ID, model.RoleTeacher, admin)
	require.NoError(t, err)
	assert.Empty(t, reqs)

	u := f.reload(t, "u1")
	requireAffiliationConsistent(t, u)
	assert.Equal(t, model.RoleTeacher, u.Role())
	assert.Equal(t, inst.ID, u.MemberOf())
	assert.Equal(t, model.RoleTeacher, f.listOf(t, inst.ID, "u1"))

	sent := f.notifier.all()
	require.Len(t, sent, 1)
	assert.Equal(t, "u1", sent[0].UserID)
	assert.Equal(t, model.SeveritySuccess, sent[0].Severity)
	assert.Contains(t, sent[0].Message, inst.Name)

	audit, err := f.store.Repos().Audit.ListByInstitution(ctx, inst.ID, 10)
	require.NoError(t, err)
	require.Len(t, audit, 1)
	assert.Equal(t, model.ActionApprove, audit[0].Action)
	assert.Equal(t, "admin", audit[0].ResolvedBy)
	assert.Equal(t, id, audit[0].RequestID)
}

func TestResolve_Reject(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inst, _ := f.institution(t, "admin")
	teacher := f.admit(t, inst.ID, "teacher", model.RoleTeacher)
	f.user(t, "s1")

	id, err := f.lobby.AddRequest(ctx, inst.ID, "s1", model.RoleStudent, nil)
	require.NoError(t, err)

	require.NoError(t, f.lobby.Resolve(ctx, inst.ID, id, model.RoleStudent, model.ActionReject, teacher))

	u := f.reload(t, "s1")
	assert.False(t, u.IsAffiliated())
	assert.Empty(t, f.listOf(t, inst.ID, "s1"))

	sent := f.notifier.all()
	require.Len(t, sent, 1)
	assert.Equal(t, model.SeverityDanger, sent[0].Severity)

	// После отклонения можно подать заявку снова
	_, err = f.lobby.AddRequest(ctx, inst.ID, "s1", model.RoleStudent, nil)
	assert.NoError(t, err)
}

func TestResolve_SecondResolveIsNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inst, admin := f.institution(t, "admin")
	f.user(t, "u1")

	id, err := f.lobby.AddRequest(ctx, inst.ID, "u1", model.RoleTeacher, nil)
	require.NoError(t, err)
	require.NoError(t, f.lobby.Resolve(ctx, inst.ID, id, model.RoleTeacher, model.ActionApprove, admin))

	for _, action := range []model.LobbyAction{model.ActionApprove, model.ActionReject} {
		err := f.lobby.Resolve(ctx, inst.ID, id, model.RoleTeacher, action, admin)
		assert.ErrorIs(t, err, ErrNotFound)
	}

	assert.Len(t, f.notifier.all(), 1, "эффекты не должны применяться повторно")
	audit, err := f.store.Repos().Audit.ListByInstitution(ctx, inst.ID, 10)
	require.NoError(t, err)
	assert.Len(t, audit, 1)
}

func TestResolve_ConcurrentApprovalsApplyOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inst, admin := f.institution(t, "admin")
	f.user(t, "u1")

	id, err := f.lobby.AddRequest(ctx, inst.ID, "u1", model.RoleTeacher, nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 5)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = f.lobby.Resolve(ctx, inst.ID, id, model.RoleTeacher, model.ActionApprove, admin)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, ErrNotFound)
	}
	assert.Equal(t, 1, succeeded)
	assert.Len(t, f.notifier.all(), 1)
}

func TestResolve_WrongListIsNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inst, admin := f.institution(t, "admin")
	f.user(t, "u1")

	id, err := f.lobby.AddRequest(ctx, inst.ID, "u1", model.RoleTeacher, nil)
	require.NoError(t, err)

	// Администратор не решает заявки студентов
	err = f.lobby.Resolve(ctx, inst.ID, id, model.RoleStudent, model.ActionApprove, admin)
	assert.ErrorIs(t, err, ErrForbidden)

	teacher := f.admit(t, inst.ID, "teacher", model.RoleTeacher)
	err = f.lobby.Resolve(ctx, inst.ID, id, model.RoleStudent, model.ActionApprove, teacher)
	assert.ErrorIs(t, err, ErrNotFound, "заявка подана в список учителей")

	assert.False(t, f.reload(t, "u1").IsAffiliated())
}

func TestResolve_Authorization(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inst, admin := f.institution(t, "admin")
	teacher := f.admit(t, inst.ID, "teacher", model.RoleTeacher)
	student := f.admit(t, inst.ID, "student", model.RoleStudent)
	_, otherAdmin := f.institution(t, "other-admin")
	outsider := f.user(t, "outsider")
	f.user(t, "t-applicant")
	f.user(t, "s-applicant")

	tID, err := f.lobby.AddRequest(ctx, inst.ID, "t-applicant", model.RoleTeacher, nil)
	require.NoError(t, err)
	sID, err := f.lobby.AddRequest(ctx, inst.ID, "s-applicant", model.RoleStudent, nil)
	require.NoError(t, err)

	tests := []struct {
		name  string
		actor *model.User
		list  model.Role
		reqID string
	}{
		{"учитель решает заявку учителя", teacher, model.RoleTeacher, tID},
		{"студент решает заявку учителя", student, model.RoleTeacher, tID},
		{"студент решает заявку студента", student, model.RoleStudent, sID},
		{"администратор решает заявку студента", admin, model.RoleStudent, sID},
		{"администратор другого заведения", otherAdmin, model.RoleTeacher, tID},
		{"посторонний", outsider, model.RoleStudent, sID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.lobby.Resolve(ctx, inst.ID, tt.reqID, tt.list, model.ActionApprove, tt.actor)
			assert.ErrorIs(t, err, ErrForbidden)
		})
	}

	// Заявки не тронуты
	reqs, err := f.lobby.ListRequests(ctx, inst.ID, model.RoleTeacher, admin)
	require.NoError(t, err)
	assert.Len(t, reqs, 1)
	reqs, err = f.lobby.ListRequests(ctx, inst.ID, model.RoleStudent, teacher)
	require.NoError(t, err)
	assert.Len(t, reqs, 1)
}

func TestResolve_InvalidAction(t *testing.T) {
	f := newFixture(t)
	inst, admin := f.institution(t, "admin")

	err := f.lobby.Resolve(context.Background(), inst.ID, "any", model.RoleTeacher, "postpone", admin)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestResolve_ApproveAffiliatedApplicantRollsBack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inst, admin := f.institution(t, "admin")
	f.user(t, "u1")

	id, err := f.lobby.AddRequest(ctx, inst.ID, "u1", model.RoleTeacher, nil)
	require.NoError(t, err)

	// Пока заявка ждала, заявитель создал своё учебное заведение
	_, err = f.institutions.Create(ctx, "Гимназия", "", "", "u1")
	require.NoError(t, err)

	err = f.lobby.Resolve(ctx, inst.ID, id, model.RoleTeacher, model.ActionApprove, admin)
	require.ErrorIs(t, err, ErrConflict)

	reqs, err := f.lobby.ListRequests(ctx, inst.ID, model.RoleTeacher, admin)
	require.NoError(t, err)
	assert.Len(t, reqs, 1, "заявка должна остаться после отката")
	assert.Empty(t, f.listOf(t, inst.ID, "u1"))
	assert.Equal(t, model.RoleAdmin, f.reload(t, "u1").Role())
	assert.Empty(t, f.notifier.all())
}

func TestResolve_NameLookupFailureDoesNotAbortApproval(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inst, admin := f.institution(t, "admin")
	f.user(t, "u1")

	id, err := f.lobby.AddRequest(ctx, inst.ID, "u1", model.RoleTeacher, nil)
	require.NoError(t, err)

	f.store.FailOn("Institutions.GetByID", errors.New("недоступно"))
	require.NoError(t, f.lobby.Resolve(ctx, inst.ID, id, model.RoleTeacher, model.ActionApprove, admin))
	f.store.FailOn("Institutions.GetByID", nil)

	sent := f.notifier.all()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].Message, FallbackInstitutionName)
	assert.Equal(t, model.RoleTeacher, f.reload(t, "u1").Role())
}

func TestResolve_AuditFailureRollsBack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inst, admin := f.institution(t, "admin")
	f.user(t, "u1")

	id, err := f.lobby.AddRequest(ctx, inst.ID, "u1", model.RoleTeacher, nil)
	require.NoError(t, err)

	f.store.FailOn("Audit.Append", errors.New("диск заполнен"))
	err = f.lobby.Resolve(ctx, inst.ID, id, model.RoleTeacher, model.ActionApprove, admin)
	require.Error(t, err)
	f.store.FailOn("Audit.Append", nil)

	assert.False(t, f.reload(t, "u1").IsAffiliated())
	assert.Empty(t, f.listOf(t, inst.ID, "u1"))
	assert.Empty(t, f.notifier.all())

	// Заявка осталась и решается повторно
	require.NoError(t, f.lobby.Resolve(ctx, inst.ID, id, model.RoleTeacher, model.ActionApprove, admin))
}

func TestListRequests_Visibility(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inst, admin := f.institution(t, "admin")
	teacher := f.admit(t, inst.ID, "teacher", model.RoleTeacher)
	student := f.admit(t, inst.ID, "student", model.RoleStudent)

	_, err := f.lobby.ListRequests(ctx, inst.ID, model.RoleTeacher, admin)
	assert.NoError(t, err)
	_, err = f.lobby.ListRequests(ctx, inst.ID, model.RoleStudent, admin)
	assert.NoError(t, err)
	_, err = f.lobby.ListRequests(ctx, inst.ID, model.RoleStudent, teacher)
	assert.NoError(t, err)

	_, err = f.lobby.ListRequests(ctx, inst.ID, model.RoleTeacher, teacher)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = f.lobby.ListRequests(ctx, inst.ID, model.RoleStudent, student)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = f.lobby.ListRequests(ctx, inst.ID, model.RoleAdmin, admin)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestListRequests_OldestFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inst, _ := f.institution(t, "admin")
	teacher := f.admit(t, inst.ID, "teacher", model.RoleTeacher)

	for _, uid := range []string{"s1", "s2", "s3"} {
		f.user(t, uid)
		_, err := f.lobby.AddRequest(ctx, inst.ID, uid, model.RoleStudent, nil)
		require.NoError(t, err)
	}

	reqs, err := f.lobby.ListRequests(ctx, inst.ID, model.RoleStudent, teacher)
	require.NoError(t, err)
	require.Len(t, reqs, 3)
	assert.Equal(t, "s1", reqs[0].UserID)
	assert.Equal(t, "s2", reqs[1].UserID)
	assert.Equal(t, "s3", reqs[2].UserID)
}
