// Package app собирает зависимости Herald из конфигурации.
//
// Используется обоими процессами: herald-scheduler и herald-cli.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2"

	"github.com/shaiso/Herald/internal/config"
	"github.com/shaiso/Herald/internal/credential"
	"github.com/shaiso/Herald/internal/delivery"
	"github.com/shaiso/Herald/internal/mq"
	"github.com/shaiso/Herald/internal/notify"
	"github.com/shaiso/Herald/internal/queue"
	"github.com/shaiso/Herald/internal/repo"
	"github.com/shaiso/Herald/internal/scheduler"
)

// App — собранные зависимости.
type App struct {
	Pool     *pgxpool.Pool
	Items    *repo.ItemRepo
	Policies *repo.PolicyRepo
	Tokens   *repo.TokenRepo

	Scheduler *scheduler.Scheduler
	Queue     *queue.Service

	mqConn *mq.Connection
	redis  *redis.Client
	logger *slog.Logger
}

// Build подключается к внешним системам и собирает сервисы.
//
// PostgreSQL обязателен. RabbitMQ и Redis опциональны: без RabbitMQ
// уведомления пишутся в лог, без Redis блокировки распределителя
// действуют в пределах процесса.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	pool, err := repo.NewPool(ctx, cfg.DB.URL, cfg.DB.MaxConns)
	if err != nil {
		return nil, err
	}
	logger.Info("database connected")

	a := &App{
		Pool:     pool,
		Items:    repo.NewItemRepo(pool),
		Policies: repo.NewPolicyRepo(pool),
		Tokens:   repo.NewTokenRepo(pool),
		logger:   logger,
	}

	if cfg.DB.MigrateOnStart {
		if err := a.Migrate(ctx); err != nil {
			a.Close()
			return nil, err
		}
	}

	media, err := buildMedia(ctx, cfg.Media)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Scheduler = scheduler.New(scheduler.Config{
		Store: a.Items,
		Client: delivery.NewHTTPClient(delivery.HTTPClientConfig{
			BaseURL: cfg.Publish.APIURL,
			Timeout: cfg.Publish.Timeout,
		}),
		Credentials: a.buildCredentials(cfg.OAuth),
		Media:       media,
		Notifier:    a.buildNotifier(ctx, cfg.MQ),
		BatchSize:   cfg.Scheduler.BatchSize,
		StaleAfter:  cfg.Scheduler.StaleAfter,
		PaceDelay:   cfg.Scheduler.PaceDelay,
		Logger:      logger,
	})

	a.Queue = queue.NewService(queue.Config{
		Store:         queueStore{ItemRepo: a.Items, PolicyRepo: a.Policies},
		Locker:        a.buildLocker(ctx, cfg.Redis),
		LookaheadDays: cfg.Allocator.LookaheadDays,
		LockTTL:       cfg.Allocator.LockTTL,
		Logger:        logger,
	})

	return a, nil
}

// queueStore объединяет репозитории публикаций и политик для queue.Service.
type queueStore struct {
	*repo.ItemRepo
	*repo.PolicyRepo
}

// Migrate применяет миграции схемы.
func (a *App) Migrate(ctx context.Context) error {
	return repo.Migrate(ctx, a.Pool, a.logger)
}

// Ping проверяет доступность базы (для /healthz).
func (a *App) Ping(ctx context.Context) error {
	return a.Pool.Ping(ctx)
}

// Close освобождает соединения.
func (a *App) Close() error {
	var errs []error
	if a.mqConn != nil {
		errs = append(errs, a.mqConn.Close())
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	a.Pool.Close()
	return errors.Join(errs...)
}

func (a *App) buildNotifier(ctx context.Context, cfg config.MQ) notify.Dispatcher {
	fallback := notify.LogDispatcher{Logger: a.logger}
	if cfg.URL == "" {
		return fallback
	}

	conn, err := mq.NewConnection(cfg.URL, a.logger)
	if err != nil {
		a.logger.Warn("RabbitMQ not available, notifications go to log", "error", err)
		return fallback
	}
	a.mqConn = conn
	a.logger.Info("RabbitMQ connected")

	if err := mq.SetupTopology(ctx, conn); err != nil {
		a.logger.Warn("failed to setup topology", "error", err)
	}

	return notify.NewMQDispatcher(mq.NewPublisher(conn, a.logger))
}

func (a *App) buildLocker(ctx context.Context, cfg config.Redis) queue.Locker {
	if cfg.URL == "" {
		return queue.NewMemoryLocker()
	}

	client, err := queue.NewRedisClient(ctx, cfg.URL)
	if err != nil {
		a.logger.Warn("Redis not available, allocator locks are process-local", "error", err)
		return queue.NewMemoryLocker()
	}
	a.redis = client
	a.logger.Info("Redis connected")

	return queue.NewRedisLocker(client)
}

func (a *App) buildCredentials(cfg config.OAuth) credential.Provider {
	oauthCfg := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint:     oauth2.Endpoint{TokenURL: cfg.TokenURL},
	}
	if !cfg.Enabled() {
		a.logger.Warn("OAuth client is not configured, expired tokens will not be refreshed")
	}
	return credential.NewOAuth2Provider(oauthCfg, a.Tokens)
}

func buildMedia(ctx context.Context, cfg config.Media) (delivery.MediaLoader, error) {
	loader := &delivery.RouterLoader{
		Files: &delivery.FileLoader{Root: cfg.Root},
		HTTP:  &delivery.HTTPLoader{Client: &http.Client{}},
	}

	if cfg.S3Bucket != "" || cfg.S3Endpoint != "" {
		s3Loader, err := delivery.NewS3Loader(ctx, delivery.S3Config{
			Bucket:   cfg.S3Bucket,
			Region:   cfg.S3Region,
			Endpoint: cfg.S3Endpoint,
		})
		if err != nil {
			return nil, fmt.Errorf("s3 media: %w", err)
		}
		loader.S3 = s3Loader
	}

	return loader, nil
}
