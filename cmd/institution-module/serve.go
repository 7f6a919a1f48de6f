package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/bigkaa/goschool/institution-module/internal/api/handlers"
	"github.com/bigkaa/goschool/institution-module/internal/api/middleware"
	"github.com/bigkaa/goschool/institution-module/internal/api/openapi"
	"github.com/bigkaa/goschool/institution-module/internal/config"
	"github.com/bigkaa/goschool/institution-module/internal/database"
	"github.com/bigkaa/goschool/institution-module/internal/keycloak"
	"github.com/bigkaa/goschool/institution-module/internal/notify"
	"github.com/bigkaa/goschool/institution-module/internal/repository"
	"github.com/bigkaa/goschool/institution-module/internal/server"
	"github.com/bigkaa/goschool/institution-module/internal/service"
)

var skipMigrations bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Запустить HTTP-сервер",
	RunE: func(_ *cobra.Command, _ []string) error {
		return runServe()
	},
}

func init() {
	serveCmd.Flags().BoolVar(&skipMigrations, "skip-migrations", false, "не применять миграции при старте")
	rootCmd.AddCommand(serveCmd)
}

// runServe загружает конфигурацию, подключает зависимости и запускает сервер
// до получения сигнала завершения.
func runServe() error {
	// 1. Конфигурация и логирование
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("загрузка конфигурации: %w", err)
	}
	logger := config.SetupLogger(cfg)
	logger.Info("Institution Module запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
	)

	if os.Getenv("IM_DEPHEALTH_GROUP") == "" {
		logger.Warn("IM_DEPHEALTH_GROUP не задана, используется значение по умолчанию",
			slog.String("default", cfg.DephealthGroup),
		)
	}

	// 2. Миграции БД
	if !skipMigrations {
		logger.Info("Применение миграций БД...")
		if err := database.Migrate(cfg, logger); err != nil {
			return fmt.Errorf("миграции БД: %w", err)
		}
	}

	// 3. PostgreSQL
	ctx := context.Background()
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("подключение к PostgreSQL: %w", err)
	}
	defer pool.Close()

	// Адаптер pgxpool → *sql.DB для topologymetrics (connection pool mode).
	pgDB := stdlib.OpenDBFromPool(pool)
	defer pgDB.Close()

	store := repository.NewStore(pool)

	// 4. Keycloak Admin API клиент
	var kcHTTPClient *http.Client
	if cfg.KeycloakCACertPath != "" {
		kcHTTPClient, err = buildHTTPClientWithCA(cfg.KeycloakCACertPath, cfg.KeycloakTimeout)
		if err != nil {
			return fmt.Errorf("загрузка CA-сертификата %s: %w", cfg.KeycloakCACertPath, err)
		}
		logger.Info("CA-сертификат загружен", slog.String("path", cfg.KeycloakCACertPath))
	} else {
		kcHTTPClient = &http.Client{Timeout: cfg.KeycloakTimeout}
	}
	kcClient := keycloak.New(
		cfg.KeycloakURL,
		cfg.KeycloakRealm,
		cfg.KeycloakClientID,
		cfg.KeycloakClientSecret,
		kcHTTPClient,
		logger,
	)
	logger.Info("Keycloak клиент создан",
		slog.String("url", cfg.KeycloakURL),
		slog.String("realm", cfg.KeycloakRealm),
	)

	// 5. Уведомления: PostgreSQL + опционально Redis Pub/Sub
	sinks := notify.Chain{notify.NewPostgresSink(store.Repos().Notifications)}
	var redisPublisher *notify.RedisPublisher
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer rdb.Close()

		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			logger.Warn("Redis недоступен при старте, публикация уведомлений будет давать ошибки",
				slog.String("addr", cfg.RedisAddr),
				slog.String("error", err.Error()),
			)
		}
		cancel()

		redisPublisher = notify.NewRedisPublisher(rdb, cfg.RedisChannelPrefix)
		sinks = append(sinks, redisPublisher)
		logger.Info("Публикация уведомлений в Redis включена",
			slog.String("addr", cfg.RedisAddr),
			slog.String("channel_prefix", cfg.RedisChannelPrefix),
		)
	} else {
		logger.Info("IM_REDIS_ADDR не задан, уведомления только сохраняются в БД")
	}

	dispatcher := notify.NewDispatcher(sinks, cfg.NotifyQueueSize, cfg.NotifyWorkers, cfg.NotifyTimeout, logger)
	dispatcher.Start(ctx)

	// 6. Сервисы
	names := service.NewNameResolver(store.Repos().Institutions, cfg.NameCacheSize, cfg.NameCacheTTL, logger)
	profilesSvc := service.NewProfileService(store, logger).WithDirectory(kcClient)
	institutionsSvc := service.NewInstitutionService(store, names, cfg.DefaultLogoURL, logger)
	lobbySvc := service.NewWaitingLobbyService(store, names, dispatcher, logger)
	membersSvc := service.NewMembershipService(store, kcClient, names, dispatcher, logger)

	// 7. Readiness checkers
	pgChecker := database.NewReadinessChecker(pool)
	kcChecker, err := middleware.NewKeycloakReadinessChecker(cfg.JWTJWKSURL, cfg.KeycloakCACertPath, cfg.KeycloakTimeout)
	if err != nil {
		return fmt.Errorf("создание Keycloak readiness checker: %w", err)
	}
	healthHandler := handlers.NewHealthHandler(pgChecker, kcChecker).
		WithOptional("keycloak_admin", kcClient)
	if redisPublisher != nil {
		healthHandler.WithOptional("redis", redisPublisher)
	}

	apiHandler := handlers.NewAPIHandler(
		healthHandler,
		institutionsSvc,
		lobbySvc,
		membersSvc,
		profilesSvc,
		logger,
	)

	// 8. JWT и валидация по OpenAPI контракту
	jwtAuth, err := middleware.NewJWTAuth(
		cfg.JWTJWKSURL,
		cfg.KeycloakCACertPath,
		cfg.JWTIssuer,
		cfg.KeycloakTimeout,
		cfg.JWKSRefreshInterval,
		cfg.JWTLeeway,
		logger,
	)
	if err != nil {
		return fmt.Errorf("создание JWT middleware: %w", err)
	}
	logger.Info("JWT middleware инициализирован",
		slog.String("jwks_url", cfg.JWTJWKSURL),
		slog.String("issuer", cfg.JWTIssuer),
	)

	validator, err := middleware.NewOpenAPIValidator(openapi.Spec, logger)
	if err != nil {
		return fmt.Errorf("загрузка OpenAPI контракта: %w", err)
	}

	// 9. topologymetrics — мониторинг зависимостей (PostgreSQL + Keycloak)
	monitor, err := service.NewDependencyMonitor(service.MonitorTargets{
		ServiceID:       "institution-module",
		Group:           cfg.DephealthGroup,
		DB:              pgDB,
		PostgresURL:     cfg.DatabaseURL(),
		KeycloakJWKSURL: cfg.JWTJWKSURL,
		Interval:        cfg.DephealthCheckInterval,
	}, logger)
	if err != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", err.Error()),
		)
	} else if startErr := monitor.Start(ctx); startErr != nil {
		logger.Warn("Ошибка запуска topologymetrics",
			slog.String("error", startErr.Error()),
		)
		monitor = nil
	} else {
		logger.Info("topologymetrics запущен",
			slog.String("group", cfg.DephealthGroup),
			slog.String("check_interval", cfg.DephealthCheckInterval.String()),
		)
	}

	// 10. HTTP-сервер до сигнала завершения
	srv := server.New(cfg, logger, apiHandler, jwtAuth, validator, profilesSvc)
	runErr := srv.Run()

	// 11. Остановка фоновых задач: очередь уведомлений дописывается до конца
	logger.Info("Останавливаем фоновые задачи...")
	if monitor != nil {
		monitor.Stop()
	}
	dispatcher.Stop()

	if runErr != nil {
		return fmt.Errorf("ошибка сервера: %w", runErr)
	}
	logger.Info("Institution Module остановлен")
	return nil
}

// buildHTTPClientWithCA создаёт HTTP-клиент с кастомным CA-сертификатом.
func buildHTTPClientWithCA(caCertPath string, timeout time.Duration) (*http.Client, error) {
	caCert, err := os.ReadFile(caCertPath)
	if err != nil {
		return nil, err
	}

	caCertPool, err := x509.SystemCertPool()
	if err != nil {
		caCertPool = x509.NewCertPool()
	}
	caCertPool.AppendCertsFromPEM(caCert)

	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				RootCAs:    caCertPool,
				MinVersion: tls.VersionTLS12,
			},
		},
	}, nil
}
