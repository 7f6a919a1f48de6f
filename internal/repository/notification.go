package repository

import (
	"context"
	"fmt"

	"github.com/bigkaa/goschool/institution-module/internal/domain/model"
)

// NotificationRepository — уведомления пользователей (notifications).
type NotificationRepository interface {
	// Create сохраняет уведомление (ID задаёт вызывающий).
	Create(ctx context.Context, n *model.Notification) error
	// ListByUser возвращает последние уведомления пользователя, новые первыми.
	ListByUser(ctx context.Context, userID string, limit int) ([]model.Notification, error)
	// DeleteByUser удаляет все уведомления пользователя.
	DeleteByUser(ctx context.Context, userID string) (int64, error)
}

type notificationRepo struct {
	db DBTX
}

// NewNotificationRepository создаёт репозиторий уведомлений.
func NewNotificationRepository(db DBTX) NotificationRepository {
	return &notificationRepo{db: db}
}

func (r *notificationRepo) Create(ctx context.Context, n *model.Notification) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO notifications (id, user_id, message, severity, is_read)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`,
		n.ID, n.UserID, n.Message, string(n.Severity), n.IsRead,
	).Scan(&n.CreatedAt)
	if err != nil {
		return mapWriteError(err, "создания уведомления")
	}
	return nil
}

func (r *notificationRepo) ListByUser(ctx context.Context, userID string, limit int) ([]model.Notification, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, user_id, message, severity, is_read, created_at
		FROM notifications WHERE user_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения уведомлений: %w", err)
	}
	defer rows.Close()

	var result []model.Notification
	for rows.Next() {
		var n model.Notification
		var severity string
		if err := rows.Scan(&n.ID, &n.UserID, &n.Message, &severity, &n.IsRead, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("ошибка сканирования уведомления: %w", err)
		}
		n.Severity = model.Severity(severity)
		result = append(result, n)
	}
	return result, rows.Err()
}

func (r *notificationRepo) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM notifications WHERE user_id = $1`, userID)
	if err != nil {
		return 0, fmt.Errorf("ошибка удаления уведомлений: %w", err)
	}
	return tag.RowsAffected(), nil
}
