// Пакет memstore — реализация repository.Store в памяти.
//
// Используется в тестах сервисов и обработчиков. Ограничения схемы
// (уникальность, внешние ключи, CHECK) повторяют миграции PostgreSQL.
// Транзакции сериализуются: RunInTx работает с копией состояния и
// подменяет состояние только при успешном завершении fn.
package memstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bigkaa/goschool/institution-module/internal/domain/model"
	"github.com/bigkaa/goschool/institution-module/internal/repository"
)

// Проверяем соответствие интерфейсу.
var _ repository.Store = (*Store)(nil)

type memberRow struct {
	institutionID string
	userID        string
	list          model.Role
	addedAt       time.Time
	seq           int64
}

type lobbyRow struct {
	req model.WaitingLobbyRequest
	seq int64
}

type state struct {
	seq           int64
	users         map[string]model.User
	institutions  map[string]model.Institution
	members       map[string]memberRow // ключ — userID: не более одного списка на пользователя
	lobby         map[string]lobbyRow
	audit         []model.LobbyAuditEntry
	papers        map[string]model.QuestionPaper
	forms         map[string]model.FormDefinition
	notifications map[string]model.Notification
}

func newState() *state {
	return &state{
		users:         make(map[string]model.User),
		institutions:  make(map[string]model.Institution),
		members:       make(map[string]memberRow),
		lobby:         make(map[string]lobbyRow),
		papers:        make(map[string]model.QuestionPaper),
		forms:         make(map[string]model.FormDefinition),
		notifications: make(map[string]model.Notification),
	}
}

// clone копирует состояние. Значения в map не изменяются на месте,
// поэтому достаточно копирования самих map.
func (st *state) clone() *state {
	c := &state{
		seq:           st.seq,
		users:         make(map[string]model.User, len(st.users)),
		institutions:  make(map[string]model.Institution, len(st.institutions)),
		members:       make(map[string]memberRow, len(st.members)),
		lobby:         make(map[string]lobbyRow, len(st.lobby)),
		audit:         append([]model.LobbyAuditEntry(nil), st.audit...),
		papers:        make(map[string]model.QuestionPaper, len(st.papers)),
		forms:         make(map[string]model.FormDefinition, len(st.forms)),
		notifications: make(map[string]model.Notification, len(st.notifications)),
	}
	for k, v := range st.users {
		c.users[k] = v
	}
	for k, v := range st.institutions {
		c.institutions[k] = v
	}
	for k, v := range st.members {
		c.members[k] = v
	}
	for k, v := range st.lobby {
		c.lobby[k] = v
	}
	for k, v := range st.papers {
		c.papers[k] = v
	}
	for k, v := range st.forms {
		c.forms[k] = v
	}
	for k, v := range st.notifications {
		c.notifications[k] = v
	}
	return c
}

func (st *state) nextSeq() int64 {
	st.seq++
	return st.seq
}

// Store — хранилище в памяти.
type Store struct {
	mu sync.Mutex
	st *state

	faultMu sync.Mutex
	faults  map[string]error

	now func() time.Time
}

// New создаёт пустое хранилище.
func New() *Store {
	return &Store{
		st:     newState(),
		faults: make(map[string]error),
		now:    time.Now,
	}
}

// FailOn заставляет операцию op (например, "Users.Delete") возвращать err.
// nil снимает сбой.
func (s *Store) FailOn(op string, err error) {
	s.faultMu.Lock()
	defer s.faultMu.Unlock()
	if err == nil {
		delete(s.faults, op)
		return
	}
	s.faults[op] = err
}

func (s *Store) fault(op string) error {
	s.faultMu.Lock()
	defer s.faultMu.Unlock()
	if err, ok := s.faults[op]; ok {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Repos возвращает репозитории вне транзакции.
// Внутри fn транзакции используйте только переданные Repositories.
func (s *Store) Repos() repository.Repositories {
	return s.reposFor(nil)
}

// RunInTx выполняет fn над копией состояния и применяет её при успехе.
func (s *Store) RunInTx(ctx context.Context, fn func(r repository.Repositories) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("ошибка начала транзакции: %w", err)
	}

	draft := s.st.clone()
	if err := fn(s.reposFor(draft)); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("ошибка коммита транзакции: %w", err)
	}
	s.st = draft
	return nil
}

func (s *Store) reposFor(draft *state) repository.Repositories {
	v := &view{s: s, draft: draft}
	return repository.Repositories{
		Users:         &users{v},
		Institutions:  &institutions{v},
		Members:       &members{v},
		Lobby:         &lobby{v},
		Audit:         &audit{v},
		Papers:        &papers{v},
		Forms:         &forms{v},
		Notifications: &notifications{v},
	}
}

// view — доступ к состоянию: к черновику транзакции или к общему состоянию под мьютексом.
type view struct {
	s     *Store
	draft *state
}

func (v *view) do(op string, fn func(st *state) error) error {
	if err := v.s.fault(op); err != nil {
		return err
	}
	if v.draft != nil {
		return fn(v.draft)
	}
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	return fn(v.s.st)
}

func conflict(format string, args ...any) error {
	return fmt.Errorf("%w: %s", repository.ErrConflict, fmt.Sprintf(format, args...))
}
