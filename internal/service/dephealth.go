// dephealth.go — граф зависимостей сервиса в topologymetrics.
//
// Вершина institution-module связана с двумя критичными зависимостями:
// PostgreSQL (проверка через рабочий пул соединений) и Keycloak (JWKS realm).
// Метрики app_dependency_* публикуются на общем /metrics.
package service

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/url"
	"time"

	"github.com/BigKAA/topologymetrics/sdk-go/dephealth"
	_ "github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/httpcheck" // регистрирует HTTP checker
	"github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/pgcheck"
	"github.com/prometheus/client_golang/prometheus"
)

// MonitorTargets — что и как часто проверять.
type MonitorTargets struct {
	// ServiceID — вершина графа (institution-module).
	ServiceID string
	// Group — группа в метриках (IM_DEPHEALTH_GROUP).
	Group string
	// DB — *sql.DB поверх рабочего pgxpool (stdlib.OpenDBFromPool):
	// проверка видит исчерпание пула, а не только доступность сервера.
	DB *sql.DB
	// PostgresURL — только для лейблов host/port, соединение не открывается.
	PostgresURL string
	// KeycloakJWKSURL — JWKS endpoint realm.
	KeycloakJWKSURL string
	Interval        time.Duration
	// Registerer — nil означает глобальный Prometheus registry.
	Registerer prometheus.Registerer
}

// DependencyMonitor — периодические проверки зависимостей.
type DependencyMonitor struct {
	dh     *dephealth.DepHealth
	logger *slog.Logger
}

// NewDependencyMonitor настраивает проверки; запуск — Start.
func NewDependencyMonitor(t MonitorTargets, logger *slog.Logger) (*DependencyMonitor, error) {
	if t.DB == nil {
		return nil, errors.New("dephealth: не задан пул PostgreSQL")
	}

	opts := []dephealth.Option{
		dephealth.WithLogger(logger),
		// pgcheck напрямую, без contrib/sqldb: тот тянет драйвер MySQL.
		dephealth.AddDependency("postgresql", dephealth.TypePostgres,
			pgcheck.New(pgcheck.WithDB(t.DB)),
			dephealth.FromURL(t.PostgresURL),
			dephealth.CheckInterval(t.Interval),
			dephealth.Critical(true),
		),
		dephealth.HTTP("keycloak-jwks",
			dephealth.FromURL(t.KeycloakJWKSURL),
			dephealth.WithHTTPHealthPath(jwksHealthPath(t.KeycloakJWKSURL)),
			dephealth.CheckInterval(t.Interval),
			dephealth.Critical(true),
		),
	}
	if t.Registerer != nil {
		opts = append(opts, dephealth.WithRegisterer(t.Registerer))
	}

	dh, err := dephealth.New(t.ServiceID, t.Group, opts...)
	if err != nil {
		return nil, err
	}

	return &DependencyMonitor{
		dh:     dh,
		logger: logger.With(slog.String("component", "dephealth")),
	}, nil
}

// jwksHealthPath — path для HTTP-проверки Keycloak.
// /health у Keycloak слушает только management-порт 9000, поэтому
// проверяется сам JWKS endpoint realm.
func jwksHealthPath(jwksURL string) string {
	if parsed, err := url.Parse(jwksURL); err == nil && parsed.Path != "" {
		return parsed.Path
	}
	return "/health"
}

// Start запускает проверки в фоне.
func (m *DependencyMonitor) Start(ctx context.Context) error {
	if err := m.dh.Start(ctx); err != nil {
		return err
	}
	m.logger.Info("Мониторинг зависимостей запущен")
	return nil
}

// Stop останавливает проверки.
func (m *DependencyMonitor) Stop() {
	m.dh.Stop()
	m.logger.Info("Мониторинг зависимостей остановлен")
}

// Health — последнее состояние зависимостей: имя → ok.
func (m *DependencyMonitor) Health() map[string]bool {
	return m.dh.Health()
}
