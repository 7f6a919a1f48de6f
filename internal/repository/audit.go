package repository

import (
	"context"
	"fmt"

	"github.com/bigkaa/goschool/institution-module/internal/domain/model"
)

// AuditRepository — журнал решений по заявкам (lobby_audit_log).
type AuditRepository interface {
	// Append добавляет запись журнала.
	Append(ctx context.Context, e *model.LobbyAuditEntry) error
	// ListByInstitution возвращает последние записи журнала учебного заведения.
	ListByInstitution(ctx context.Context, institutionID string, limit int) ([]model.LobbyAuditEntry, error)
}

// auditRepo — реализация AuditRepository.
type auditRepo struct {
	db DBTX
}

// NewAuditRepository создаёт репозиторий журнала решений.
func NewAuditRepository(db DBTX) AuditRepository {
	return &auditRepo{db: db}
}

func (r *auditRepo) Append(ctx context.Context, e *model.LobbyAuditEntry) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO lobby_audit_log (request_id, institution_id, user_id, role_requested, action, resolved_by)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, resolved_at`,
		e.RequestID, e.InstitutionID, e.UserID, string(e.RoleRequested), string(e.Action), e.ResolvedBy,
	).Scan(&e.ID, &e.ResolvedAt)
	if err != nil {
		return mapWriteError(err, "записи в журнал решений")
	}
	return nil
}

func (r *auditRepo) ListByInstitution(ctx context.Context, institutionID string, limit int) ([]model.LobbyAuditEntry, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, request_id, institution_id, user_id, role_requested, action, resolved_by, resolved_at
		FROM lobby_audit_log
		WHERE institution_id = $1
		ORDER BY resolved_at DESC, id DESC
		LIMIT $2`, institutionID, limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения журнала решений: %w", err)
	}
	defer rows.Close()

	var result []model.LobbyAuditEntry
	for rows.Next() {
		var e model.LobbyAuditEntry
		var role, action string
		if err := rows.Scan(&e.ID, &e.RequestID, &e.InstitutionID, &e.UserID,
			&role, &action, &e.ResolvedBy, &e.ResolvedAt); err != nil {
			return nil, fmt.Errorf("ошибка сканирования записи журнала: %w", err)
		}
		e.RoleRequested = model.Role(role)
		e.Action = model.LobbyAction(action)
		result = append(result, e)
	}
	return result, rows.Err()
}
