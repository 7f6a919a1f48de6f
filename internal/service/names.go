// names.go — названия учебных заведений для текстов уведомлений.
// LRU-кэш с TTL поверх hashicorp/golang-lru/v2/expirable.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/goschool/institution-module/internal/repository"
)

// FallbackInstitutionName подставляется, когда название получить не удалось.
const FallbackInstitutionName = "учебное заведение"

var (
	nameCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "im_name_cache_hits_total",
		Help: "Попадания в кэш названий учебных заведений.",
	})
	nameCacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "im_name_cache_misses_total",
		Help: "Промахи кэша названий учебных заведений.",
	})
)

// NameResolver возвращает название учебного заведения по ID.
// Ошибки чтения не возвращаются: вместо названия подставляется FallbackInstitutionName.
type NameResolver struct {
	repo   repository.InstitutionRepository
	cache  *expirable.LRU[string, string]
	logger *slog.Logger
}

// NewNameResolver создаёт резолвер с кэшем на size записей и временем жизни ttl.
func NewNameResolver(repo repository.InstitutionRepository, size int, ttl time.Duration, logger *slog.Logger) *NameResolver {
	return &NameResolver{
		repo:   repo,
		cache:  expirable.NewLRU[string, string](size, nil, ttl),
		logger: logger.With(slog.String("component", "name_resolver")),
	}
}

// Resolve возвращает название и true либо FallbackInstitutionName и false.
func (r *NameResolver) Resolve(ctx context.Context, institutionID string) (string, bool) {
	if name, ok := r.cache.Get(institutionID); ok {
		nameCacheHitsTotal.Inc()
		return name, true
	}
	nameCacheMissesTotal.Inc()

	inst, err := r.repo.GetByID(ctx, institutionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			r.logger.Debug("Учебное заведение не найдено, используем название по умолчанию",
				slog.String("institution_id", institutionID),
			)
		} else {
			r.logger.Warn("Ошибка получения названия учебного заведения",
				slog.String("institution_id", institutionID),
				slog.String("error", err.Error()),
			)
		}
		return FallbackInstitutionName, false
	}

	r.cache.Add(institutionID, inst.Name)
	return inst.Name, true
}

// Invalidate удаляет название из кэша (после переименования или удаления).
func (r *NameResolver) Invalidate(institutionID string) {
	r.cache.Remove(institutionID)
}
