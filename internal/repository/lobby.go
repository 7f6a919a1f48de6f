package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/goschool/institution-module/internal/domain/model"
)

// LobbyRepository — интерфейс для таблицы waiting_lobby_requests.
type LobbyRepository interface {
	// Create сохраняет заявку. ErrConflict — у пользователя уже есть заявка
	// в это учебное заведение.
	Create(ctx context.Context, req *model.WaitingLobbyRequest) error
	// Exists проверяет наличие заявки пользователя в учебное заведение.
	Exists(ctx context.Context, institutionID, userID string) (bool, error)
	// List возвращает заявки в список role с профилями заявителей, старые первыми.
	List(ctx context.Context, institutionID string, role model.Role) ([]model.LobbyRequestView, error)
	// DeleteReturning удаляет заявку в список role и возвращает её.
	// ErrNotFound — заявки нет или она подана в другой список.
	DeleteReturning(ctx context.Context, institutionID, requestID string, role model.Role) (*model.WaitingLobbyRequest, error)
	// DeleteByInstitution удаляет все заявки учебного заведения.
	DeleteByInstitution(ctx context.Context, institutionID string) (int64, error)
	// DeleteByUser удаляет все заявки пользователя.
	DeleteByUser(ctx context.Context, userID string) (int64, error)
}

// lobbyRepo — реализация LobbyRepository.
type lobbyRepo struct {
	db DBTX
}

// NewLobbyRepository создаёт репозиторий зала ожидания.
func NewLobbyRepository(db DBTX) LobbyRepository {
	return &lobbyRepo{db: db}
}

const lobbyColumns = `id, institution_id, user_id, role_requested, form_responses, created_at`

func scanLobbyRequest(row pgx.Row, extra ...any) (*model.WaitingLobbyRequest, error) {
	req := &model.WaitingLobbyRequest{}
	var role string
	var responses []byte
	dest := append([]any{
		&req.ID, &req.InstitutionID, &req.UserID, &role, &responses, &req.CreatedAt,
	}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	req.RoleRequested = model.Role(role)
	req.FormResponses = []model.FormResponse{}
	if len(responses) > 0 {
		if err := json.Unmarshal(responses, &req.FormResponses); err != nil {
			return nil, fmt.Errorf("ошибка разбора form_responses заявки %s: %w", req.ID, err)
		}
	}
	return req, nil
}

func (r *lobbyRepo) Create(ctx context.Context, req *model.WaitingLobbyRequest) error {
	responses := req.FormResponses
	if responses == nil {
		responses = []model.FormResponse{}
	}
	data, err := json.Marshal(responses)
	if err != nil {
		return fmt.Errorf("ошибка сериализации form_responses: %w", err)
	}

	err = r.db.QueryRow(ctx, `
		INSERT INTO waiting_lobby_requests (id, institution_id, user_id, role_requested, form_responses)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`,
		req.ID, req.InstitutionID, req.UserID, string(req.RoleRequested), data,
	).Scan(&req.CreatedAt)
	if err != nil {
		return mapWriteError(err, "создания заявки")
	}
	return nil
}

func (r *lobbyRepo) Exists(ctx context.Context, institutionID, userID string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM waiting_lobby_requests WHERE institution_id = $1 AND user_id = $2
		)`, institutionID, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("ошибка проверки заявки: %w", err)
	}
	return exists, nil
}

func (r *lobbyRepo) List(ctx context.Context, institutionID string, role model.Role) ([]model.LobbyRequestView, error) {
	rows, err := r.db.Query(ctx, `
		SELECT w.id, w.institution_id, w.user_id, w.role_requested, w.form_responses, w.created_at,
		       COALESCE(u.display_name, ''), COALESCE(u.email, ''), COALESCE(u.photo_url, '')
		FROM waiting_lobby_requests w
		LEFT JOIN users u ON u.uid = w.user_id
		WHERE w.institution_id = $1 AND w.role_requested = $2
		ORDER BY w.created_at, w.id`,
		institutionID, string(role))
	if err != nil {
		return nil, fmt.Errorf("ошибка получения заявок: %w", err)
	}
	defer rows.Close()

	result := []model.LobbyRequestView{}
	for rows.Next() {
		var p model.Profile
		req, err := scanLobbyRequest(rows, &p.DisplayName, &p.Email, &p.PhotoURL)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования заявки: %w", err)
		}
		p.UID = req.UserID
		result = append(result, model.LobbyRequestView{WaitingLobbyRequest: *req, Applicant: p})
	}
	return result, rows.Err()
}

func (r *lobbyRepo) DeleteReturning(ctx context.Context, institutionID, requestID string, role model.Role) (*model.WaitingLobbyRequest, error) {
	query := fmt.Sprintf(`
		DELETE FROM waiting_lobby_requests
		WHERE institution_id = $1 AND id = $2 AND role_requested = $3
		RETURNING %s`, lobbyColumns)

	req, err := scanLobbyRequest(r.db.QueryRow(ctx, query, institutionID, requestID, string(role)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка удаления заявки: %w", err)
	}
	return req, nil
}

func (r *lobbyRepo) DeleteByInstitution(ctx context.Context, institutionID string) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM waiting_lobby_requests WHERE institution_id = $1`, institutionID)
	if err != nil {
		return 0, fmt.Errorf("ошибка удаления заявок учебного заведения: %w", err)
	}
	return tag.RowsAffected(), nil
}

// DeleteByUser удаляет все заявки пользователя.
func (r *lobbyRepo) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM waiting_lobby_requests WHERE user_id = $1`, userID)
	if err != nil {
		return 0, fmt.Errorf("ошибка удаления заявок пользователя: %w", err)
	}
	return tag.RowsAffected(), nil
}
