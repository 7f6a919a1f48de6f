// sink.go — получатели уведомлений: PostgreSQL и Redis Pub/Sub.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bigkaa/goschool/institution-module/internal/domain/model"
	"github.com/bigkaa/goschool/institution-module/internal/repository"
)

// PostgresSink сохраняет уведомления в таблицу notifications.
type PostgresSink struct {
	repo repository.NotificationRepository
}

// NewPostgresSink создаёт получатель, сохраняющий уведомления через репозиторий.
func NewPostgresSink(repo repository.NotificationRepository) *PostgresSink {
	return &PostgresSink{repo: repo}
}

// Deliver сохраняет уведомление.
func (s *PostgresSink) Deliver(ctx context.Context, n model.Notification) error {
	if err := s.repo.Create(ctx, &n); err != nil {
		return fmt.Errorf("сохранение уведомления: %w", err)
	}
	return nil
}

// RedisPublisher публикует уведомления в канал <prefix>:<uid>,
// на который подписан шлюз real-time обновлений.
type RedisPublisher struct {
	client *redis.Client
	prefix string
}

// NewRedisPublisher создаёт публикатор уведомлений в Redis.
func NewRedisPublisher(client *redis.Client, prefix string) *RedisPublisher {
	return &RedisPublisher{client: client, prefix: prefix}
}

// Channel возвращает имя канала пользователя.
func (p *RedisPublisher) Channel(userID string) string {
	return p.prefix + ":" + userID
}

// Deliver публикует уведомление в JSON.
func (p *RedisPublisher) Deliver(ctx context.Context, n model.Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("сериализация уведомления: %w", err)
	}
	if err := p.client.Publish(ctx, p.Channel(n.UserID), data).Err(); err != nil {
		return fmt.Errorf("публикация уведомления в Redis: %w", err)
	}
	return nil
}

// CheckReady проверяет подключение к Redis через ping.
// Реализует handlers.ReadinessChecker.
func (p *RedisPublisher) CheckReady() (status string, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := p.client.Ping(ctx).Err(); err != nil {
		return "fail", fmt.Sprintf("Redis недоступен: %v", err)
	}
	return "ok", "подключение активно"
}

// Chain доставляет уведомление получателям по порядку
// и останавливается на первой ошибке.
type Chain []Sink

// Deliver реализует Sink.
func (c Chain) Deliver(ctx context.Context, n model.Notification) error {
	for _, s := range c {
		if err := s.Deliver(ctx, n); err != nil {
			return err
		}
	}
	return nil
}
