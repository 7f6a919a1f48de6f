package memstore

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bigkaa/goschool/institution-module/internal/domain/model"
	"github.com/bigkaa/goschool/institution-module/internal/repository"
)

func seed(t *testing.T, s *Store) (adminID, instID string) {
	t.Helper()
	ctx := context.Background()
	adminID, instID = "admin-1", "inst-1"
	err := s.RunInTx(ctx, func(r repository.Repositories) error {
		if err := r.Users.Create(ctx, &model.User{UID: adminID}); err != nil {
			return err
		}
		if err := r.Institutions.Create(ctx, &model.Institution{ID: instID, Name: "Лицей", CreatedBy: adminID}); err != nil {
			return err
		}
		return r.Users.SetAffiliation(ctx, adminID, model.Affiliation{Role: model.RoleAdmin, InstitutionID: instID})
	})
	require.NoError(t, err)
	return adminID, instID
}

func TestStore_RunInTx_CommitAndRollback(t *testing.T) {
	s := New()
	ctx := context.Background()

	err := s.RunInTx(ctx, func(r repository.Repositories) error {
		return r.Users.Create(ctx, &model.User{UID: "u1"})
	})
	require.NoError(t, err)

	_, err = s.Repos().Users.GetByID(ctx, "u1")
	require.NoError(t, err)

	errBoom := errors.New("сбой")
	err = s.RunInTx(ctx, func(r repository.Repositories) error {
		require.NoError(t, r.Users.Delete(ctx, "u1"))
		require.NoError(t, r.Users.Create(ctx, &model.User{UID: "u2"}))
		return errBoom
	})
	require.ErrorIs(t, err, errBoom)

	_, err = s.Repos().Users.GetByID(ctx, "u1")
	assert.NoError(t, err, "удаление должно быть откачено")
	_, err = s.Repos().Users.GetByID(ctx, "u2")
	assert.ErrorIs(t, err, repository.ErrNotFound, "создание должно быть откачено")
}

func TestStore_RunInTx_CanceledContext(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := s.RunInTx(ctx, func(repository.Repositories) error {
		called = true
		return nil
	})
	require.Error(t, err)
	assert.False(t, called)
}

func TestStore_ReturnedValuesAreCopies(t *testing.T) {
	s := New()
	ctx := context.Background()
	_, instID := seed(t, s)

	require.NoError(t, s.Repos().Users.Create(ctx, &model.User{UID: "u1"}))
	require.NoError(t, s.Repos().Users.SetAffiliation(ctx, "u1", model.Affiliation{Role: model.RoleStudent, InstitutionID: instID}))

	u, err := s.Repos().Users.GetByID(ctx, "u1")
	require.NoError(t, err)
	u.Affiliation.Role = model.RoleAdmin

	again, err := s.Repos().Users.GetByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, model.RoleStudent, again.Role())
}

func TestStore_Constraints(t *testing.T) {
	s := New()
	ctx := context.Background()
	adminID, instID := seed(t, s)
	r := s.Repos()

	// Уникальность пользователя в списках
	require.NoError(t, r.Members.Add(ctx, instID, "u1", model.RoleTeacher))
	assert.ErrorIs(t, r.Members.Add(ctx, instID, "u1", model.RoleStudent), repository.ErrConflict)

	// Внешний ключ на учебное заведение
	assert.ErrorIs(t, r.Members.Add(ctx, "missing", "u2", model.RoleStudent), repository.ErrConflict)

	// Одна заявка на пользователя
	req := &model.WaitingLobbyRequest{ID: "r1", InstitutionID: instID, UserID: "u3", RoleRequested: model.RoleStudent}
	require.NoError(t, r.Lobby.Create(ctx, req))
	dup := &model.WaitingLobbyRequest{ID: "r2", InstitutionID: instID, UserID: "u3", RoleRequested: model.RoleTeacher}
	assert.ErrorIs(t, r.Lobby.Create(ctx, dup), repository.ErrConflict)

	// Заявки на роль admin не существуют
	bad := &model.WaitingLobbyRequest{ID: "r3", InstitutionID: instID, UserID: "u4", RoleRequested: model.RoleAdmin}
	assert.ErrorIs(t, r.Lobby.Create(ctx, bad), repository.ErrConflict)

	// RESTRICT: участники и администратор не дают удалить учебное заведение
	assert.ErrorIs(t, r.Institutions.Delete(ctx, instID), repository.ErrConflict)

	_, err := r.Members.Remove(ctx, instID, "u1")
	require.NoError(t, err)
	assert.ErrorIs(t, r.Institutions.Delete(ctx, instID), repository.ErrConflict)

	_, err = r.Users.ClearAffiliation(ctx, adminID, instID)
	require.NoError(t, err)
	require.NoError(t, r.Institutions.Delete(ctx, instID))

	// CASCADE: заявки удалены вместе с учебным заведением
	exists, err := r.Lobby.Exists(ctx, instID, "u3")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestStore_DeleteReturning(t *testing.T) {
	s := New()
	ctx := context.Background()
	_, instID := seed(t, s)
	r := s.Repos()

	req := &model.WaitingLobbyRequest{
		ID:            "r1",
		InstitutionID: instID,
		UserID:        "u1",
		RoleRequested: model.RoleTeacher,
		FormResponses: []model.FormResponse{{FieldID: "a", Value: "1"}},
	}
	require.NoError(t, r.Lobby.Create(ctx, req))

	_, err := r.Lobby.DeleteReturning(ctx, instID, "r1", model.RoleStudent)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	got, err := r.Lobby.DeleteReturning(ctx, instID, "r1", model.RoleTeacher)
	require.NoError(t, err)
	assert.Equal(t, "u1", got.UserID)
	assert.Equal(t, req.FormResponses, got.FormResponses)

	_, err = r.Lobby.DeleteReturning(ctx, instID, "r1", model.RoleTeacher)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestStore_LobbyDeleteByUser(t *testing.T) {
	s := New()
	ctx := context.Background()
	_, instID := seed(t, s)
	r := s.Repos()

	for _, req := range []model.WaitingLobbyRequest{
		{ID: "r1", InstitutionID: instID, UserID: "u1", RoleRequested: model.RoleTeacher},
		{ID: "r2", InstitutionID: instID, UserID: "u2", RoleRequested: model.RoleStudent},
	} {
		require.NoError(t, r.Lobby.Create(ctx, &req))
	}

	n, err := r.Lobby.DeleteByUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	exists, err := r.Lobby.Exists(ctx, instID, "u1")
	require.NoError(t, err)
	assert.False(t, exists)
	exists, err = r.Lobby.Exists(ctx, instID, "u2")
	require.NoError(t, err)
	assert.True(t, exists)

	n, err = r.Lobby.DeleteByUser(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestStore_ListOrder(t *testing.T) {
	s := New()
	ctx := context.Background()
	_, instID := seed(t, s)
	r := s.Repos()

	for _, uid := range []string{"c", "a", "b"} {
		require.NoError(t, r.Users.Create(ctx, &model.User{UID: uid, DisplayName: "user " + uid}))
		require.NoError(t, r.Members.Add(ctx, instID, uid, model.RoleStudent))
	}

	list, err := r.Members.List(ctx, instID, model.RoleStudent)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []string{"c", "a", "b"}, []string{list[0].UID, list[1].UID, list[2].UID})
	assert.Equal(t, "user c", list[0].DisplayName)

	counts, err := r.Members.Count(ctx, instID)
	require.NoError(t, err)
	assert.Equal(t, model.MemberCounts{Students: 3}, counts)
}

func TestStore_FailOn(t *testing.T) {
	s := New()
	ctx := context.Background()
	errDown := errors.New("хранилище недоступно")

	s.FailOn("Users.Create", errDown)
	err := s.Repos().Users.Create(ctx, &model.User{UID: "u1"})
	assert.ErrorIs(t, err, errDown)

	s.FailOn("Users.Create", nil)
	assert.NoError(t, s.Repos().Users.Create(ctx, &model.User{UID: "u1"}))
}

func TestStore_ConcurrentAccess(t *testing.T) {
	s := New()
	ctx := context.Background()
	_, instID := seed(t, s)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.RunInTx(ctx, func(r repository.Repositories) error {
				return r.Members.Add(ctx, instID, "same-user", model.RoleStudent)
			})
		}()
	}
	wg.Wait()

	counts, err := s.Repos().Members.Count(ctx, instID)
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Students)
}
