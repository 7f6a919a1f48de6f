package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bigkaa/goschool/institution-module/internal/domain/model"
)

func TestEnsureUser_CreatesOnFirstSignIn(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	u, err := f.profiles.EnsureUser(ctx, model.Profile{
		UID: "u1", DisplayName: "Иван Иванов", Email: "ivanov@school.lan", PhotoURL: "https://img/1.png",
	})
	require.NoError(t, err)
	assert.Equal(t, "Иван Иванов", u.DisplayName)
	assert.False(t, u.IsAffiliated())

	// Данные токена при повторном входе не перезаписывают запись
	again, err := f.profiles.EnsureUser(ctx, model.Profile{UID: "u1", DisplayName: "Другое имя"})
	require.NoError(t, err)
	assert.Equal(t, "Иван Иванов", again.DisplayName)
	assert.Equal(t, "ivanov@school.lan", again.Email)
}

type fakeDirectory struct {
	profile model.Profile
	err     error
	calls   int
}

func (d *fakeDirectory) LookupProfile(_ context.Context, uid string) (model.Profile, error) {
	d.calls++
	p := d.profile
	p.UID = uid
	return p, d.err
}

func TestEnsureUser_CompletesFromDirectory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	dir := &fakeDirectory{profile: model.Profile{DisplayName: "Пётр Петров", Email: "petrov@school.lan"}}
	f.profiles.WithDirectory(dir)

	// В токене есть имя: справочник не нужен
	u, err := f.profiles.EnsureUser(ctx, model.Profile{UID: "u1", DisplayName: "Иван"})
	require.NoError(t, err)
	assert.Equal(t, "Иван", u.DisplayName)
	assert.Equal(t, 0, dir.calls)

	u, err = f.profiles.EnsureUser(ctx, model.Profile{UID: "u2", PhotoURL: "https://img/2.png"})
	require.NoError(t, err)
	assert.Equal(t, 1, dir.calls)
	assert.Equal(t, "Пётр Петров", u.DisplayName)
	assert.Equal(t, "petrov@school.lan", u.Email)
	assert.Equal(t, "https://img/2.png", u.PhotoURL)

	// Отказ справочника не мешает первому входу
	dir.err = errors.New("keycloak недоступен")
	u, err = f.profiles.EnsureUser(ctx, model.Profile{UID: "u3"})
	require.NoError(t, err)
	assert.Equal(t, "u3", u.UID)
	assert.Empty(t, u.DisplayName)
}

func TestEnsureUser_Validation(t *testing.T) {
	f := newFixture(t)
	_, err := f.profiles.EnsureUser(context.Background(), model.Profile{})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestEnsureUser_Concurrent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 10)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.profiles.EnsureUser(ctx, model.Profile{UID: "u1"})
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
}

func TestGetUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.user(t, "u1")

	u, err := f.profiles.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "u1", u.UID)

	_, err = f.profiles.GetUser(ctx, "ghost")
	assert.ErrorIs(t, err, ErrNotFound)

	f.store.FailOn("Users.GetByID", errors.New("нет соединения"))
	_, err = f.profiles.GetUser(ctx, "u1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestNameResolver(t *testing.T) {
	f := newFixture(t)
	store := f.store
	ctx := context.Background()
	inst, _ := f.institution(t, "admin")

	r := NewNameResolver(store.Repos().Institutions, 10, time.Minute, testLogger())

	name, ok := r.Resolve(ctx, inst.ID)
	require.True(t, ok)
	assert.Equal(t, inst.Name, name)

	// Повторное чтение — из кэша, даже если хранилище недоступно
	store.FailOn("Institutions.GetByID", errors.New("нет соединения"))
	name, ok = r.Resolve(ctx, inst.ID)
	assert.True(t, ok)
	assert.Equal(t, inst.Name, name)

	r.Invalidate(inst.ID)
	name, ok = r.Resolve(ctx, inst.ID)
	assert.False(t, ok)
	assert.Equal(t, FallbackInstitutionName, name)
	store.FailOn("Institutions.GetByID", nil)

	name, ok = r.Resolve(ctx, "missing")
	assert.False(t, ok)
	assert.Equal(t, FallbackInstitutionName, name)
}
