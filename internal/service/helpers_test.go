package service

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bigkaa/goschool/institution-module/internal/domain/model"
	"github.com/bigkaa/goschool/institution-module/internal/repository"
	"github.com/bigkaa/goschool/institution-module/internal/repository/memstore"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// sentNotification — уведомление, поставленное в очередь.
type sentNotification struct {
	UserID   string
	Message  string
	Severity model.Severity
}

// fakeNotifier запоминает уведомления вместо доставки.
type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
}

func (n *fakeNotifier) Enqueue(userID, message string, severity model.Severity) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentNotification{userID, message, severity})
	return true
}

func (n *fakeNotifier) all() []sentNotification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]sentNotification(nil), n.sent...)
}

// fakeIdentity — IdP в памяти.
type fakeIdentity struct {
	mu      sync.Mutex
	deleted []string
	err     error
}

func (p *fakeIdentity) DeleteUser(_ context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.deleted = append(p.deleted, id)
	return nil
}

// fixture — сервисы поверх memstore.
type fixture struct {
	store        *memstore.Store
	notifier     *fakeNotifier
	identity     *fakeIdentity
	names        *NameResolver
	profiles     *ProfileService
	lobby        *WaitingLobbyService
	members      *MembershipService
	institutions *InstitutionService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memstore.New()
	notifier := &fakeNotifier{}
	identity := &fakeIdentity{}
	logger := testLogger()
	names := NewNameResolver(store.Repos().Institutions, 100, time.Minute, logger)

	return &fixture{
		store:        store,
		notifier:     notifier,
		identity:     identity,
		names:        names,
		profiles:     NewProfileService(store, logger),
		lobby:        NewWaitingLobbyService(store, names, notifier, logger),
		members:      NewMembershipService(store, identity, names, notifier, logger),
		institutions: NewInstitutionService(store, names, "/static/default.png", logger),
	}
}

// user создаёт пользователя без принадлежности.
func (f *fixture) user(t *testing.T, uid string) *model.User {
	t.Helper()
	u, err := f.profiles.EnsureUser(context.Background(), model.Profile{
		UID:         uid,
		DisplayName: "Пользователь " + uid,
		Email:       uid + "@school.lan",
	})
	require.NoError(t, err)
	return u
}

// reload перечитывает пользователя из хранилища.
func (f *fixture) reload(t *testing.T, uid string) *model.User {
	t.Helper()
	u, err := f.store.Repos().Users.GetByID(context.Background(), uid)
	require.NoError(t, err)
	return u
}

// institution создаёт учебное заведение с администратором adminUID.
func (f *fixture) institution(t *testing.T, adminUID string) (*model.Institution, *model.User) {
	t.Helper()
	f.user(t, adminUID)
	inst, err := f.institutions.Create(context.Background(), "Лицей №1", "", "", adminUID)
	require.NoError(t, err)
	return inst, f.reload(t, adminUID)
}

// admit добавляет пользователя в список в обход зала ожидания.
func (f *fixture) admit(t *testing.T, institutionID, uid string, role model.Role) *model.User {
	t.Helper()
	f.user(t, uid)
	ctx := context.Background()
	err := f.store.RunInTx(ctx, func(r repository.Repositories) error {
		if err := r.Members.Add(ctx, institutionID, uid, role); err != nil {
			return err
		}
		return r.Users.SetAffiliation(ctx, uid, model.Affiliation{Role: role, InstitutionID: institutionID})
	})
	require.NoError(t, err)
	return f.reload(t, uid)
}

// listOf возвращает список пользователя или "" если он ни в каком не состоит.
func (f *fixture) listOf(t *testing.T, institutionID, uid string) model.Role {
	t.Helper()
	role, err := f.store.Repos().Members.ListOf(context.Background(), institutionID, uid)
	if err != nil {
		require.ErrorIs(t, err, repository.ErrNotFound)
		return ""
	}
	return role
}

// requireAffiliationConsistent проверяет, что роль и member_of заданы только вместе.
func requireAffiliationConsistent(t *testing.T, u *model.User) {
	t.Helper()
	if u.Affiliation == nil {
		return
	}
	require.NotEmpty(t, u.Affiliation.Role)
	require.NotEmpty(t, u.Affiliation.InstitutionID)
}
