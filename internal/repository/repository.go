// Пакет repository — слой доступа к данным PostgreSQL.
// Все запросы — чистый SQL через pgx, без ORM.
//
// Store объединяет репозитории и транзакции: сервисы работают через
// Repos() вне транзакции и через RunInTx для изменений нескольких записей.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Ошибки слоя репозиториев.
var (
	// ErrNotFound — запись не найдена.
	ErrNotFound = errors.New("запись не найдена")
	// ErrConflict — конфликт уникальности или нарушение ограничения.
	ErrConflict = errors.New("конфликт — запись уже существует или нарушено ограничение")
)

// DBTX — интерфейс для выполнения SQL-запросов.
// Реализуется как *pgxpool.Pool, так и pgx.Tx, что позволяет
// использовать репозитории как внутри, так и вне транзакций.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repositories — набор репозиториев, привязанных к одному DBTX.
type Repositories struct {
	Users         UserRepository
	Institutions  InstitutionRepository
	Members       MemberRepository
	Lobby         LobbyRepository
	Audit         AuditRepository
	Papers        PaperRepository
	Forms         FormRepository
	Notifications NotificationRepository
}

// NewRepositories создаёт набор репозиториев поверх db.
func NewRepositories(db DBTX) Repositories {
	return Repositories{
		Users:         NewUserRepository(db),
		Institutions:  NewInstitutionRepository(db),
		Members:       NewMemberRepository(db),
		Lobby:         NewLobbyRepository(db),
		Audit:         NewAuditRepository(db),
		Papers:        NewPaperRepository(db),
		Forms:         NewFormRepository(db),
		Notifications: NewNotificationRepository(db),
	}
}

// Store — порт хранилища: репозитории плюс транзакции над несколькими записями.
type Store interface {
	// Repos возвращает репозитории вне транзакции.
	Repos() Repositories
	// RunInTx выполняет fn внутри транзакции.
	// При ошибке fn транзакция откатывается, при успехе — коммитится.
	RunInTx(ctx context.Context, fn func(r Repositories) error) error
}

// pgStore — реализация Store поверх pgxpool.
type pgStore struct {
	pool  *pgxpool.Pool
	repos Repositories
}

// NewStore создаёт Store для PostgreSQL.
func NewStore(pool *pgxpool.Pool) Store {
	return &pgStore{pool: pool, repos: NewRepositories(pool)}
}

func (s *pgStore) Repos() Repositories {
	return s.repos
}

func (s *pgStore) RunInTx(ctx context.Context, fn func(r Repositories) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // откат после коммита — no-op

	if err := fn(NewRepositories(tx)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("ошибка коммита транзакции: %w", err)
	}
	return nil
}

// isUniqueViolation проверяет, является ли ошибка нарушением уникальности PostgreSQL.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}

// isConstraintViolation — нарушение CHECK (23514) или внешнего ключа (23503).
func isConstraintViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23514" || pgErr.Code == "23503"
	}
	return false
}

// mapWriteError переводит ошибки ограничений PostgreSQL в ErrConflict.
func mapWriteError(err error, op string) error {
	if isUniqueViolation(err) || isConstraintViolation(err) {
		return fmt.Errorf("%w: %s: %v", ErrConflict, op, err)
	}
	return fmt.Errorf("ошибка %s: %w", op, err)
}
