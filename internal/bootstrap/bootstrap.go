// Package bootstrap wires configuration, storage and use cases into the
// components run by cmd/bot, cmd/worker and cmd/mentorctl.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/alem-hub/kata-mentor-bot/config"
	"github.com/alem-hub/kata-mentor-bot/internal/application/command"
	"github.com/alem-hub/kata-mentor-bot/internal/application/eventhandler"
	"github.com/alem-hub/kata-mentor-bot/internal/application/query"
	"github.com/alem-hub/kata-mentor-bot/internal/domain/chat"
	"github.com/alem-hub/kata-mentor-bot/internal/domain/kata"
	"github.com/alem-hub/kata-mentor-bot/internal/domain/member"
	"github.com/alem-hub/kata-mentor-bot/internal/domain/mentorship"
	"github.com/alem-hub/kata-mentor-bot/internal/infrastructure/external/codewars"
	"github.com/alem-hub/kata-mentor-bot/internal/infrastructure/messaging"
	"github.com/alem-hub/kata-mentor-bot/internal/infrastructure/metrics"
	"github.com/alem-hub/kata-mentor-bot/internal/infrastructure/persistence/memory"
	"github.com/alem-hub/kata-mentor-bot/internal/infrastructure/persistence/postgres"
	"github.com/alem-hub/kata-mentor-bot/internal/infrastructure/persistence/redis"
	"github.com/alem-hub/kata-mentor-bot/internal/interface/http/handlers"
)

// ══════════════════════════════════════════════════════════════════════════════
// APP
// ══════════════════════════════════════════════════════════════════════════════

// App holds the process-wide dependencies.
type App struct {
	Config *config.Config
	Logger *slog.Logger

	Registry *prometheus.Registry
	Metrics  *metrics.Metrics
	Bus      *messaging.Bus

	// DB is nil when the memory store is used.
	DB *postgres.Connection

	// Redis is nil when REDIS_URL is unset.
	Redis *redis.Client

	Users         member.Repository
	Pairs         mentorship.Repository
	Katas         kata.Repository
	Chats         chat.Repository
	Tx            command.Transactor
	Conversations command.ConversationStore
	Cache         query.ReportCache
	Locker        command.Locker

	Source *codewars.Client
	Scale  mentorship.RatingScale

	UseCases *UseCases

	closers []func()
}

// UseCases groups the command and query handlers.
type UseCases struct {
	Register  *command.RegisterUserHandler
	Mentor    *command.MakeMentorHandler
	Authorize *command.AuthorizeUserHandler
	Engine    *command.RotationEngine
	Feedback  *command.RecordFeedbackHandler
	Sync      *command.SyncSolvedHandler
	AddKata   *command.AddKataHandler
	SetChat   *command.SetChatHandler

	LatestRotation  *query.GetLatestRotationHandler
	MentorLoad      *query.GetMentorLoadHandler
	CurrentMentor   *query.GetCurrentMentorHandler
	MentorAvailable *query.IsMentorAvailableHandler
	MentorRatings   *query.GetMentorRatingsHandler
	DailyStats      *query.GetDailyStatsHandler
	MissingKatas    *query.GetMissingKatasHandler
	CompletedTotal  *query.GetCompletedTotalHandler
}

// New connects storage and builds every use case. Close releases what New opened.
func New(ctx context.Context, cfg *config.Config, log *slog.Logger) (*App, error) {
	if log == nil {
		log = slog.Default()
	}

	scale := mentorship.RatingScale{Min: cfg.Mentorship.MinRate, Max: cfg.Mentorship.MaxRate}
	if err := scale.Validate(); err != nil {
		return nil, fmt.Errorf("bootstrap: rating scale: %w", err)
	}

	a := &App{
		Config:   cfg,
		Logger:   log,
		Registry: prometheus.NewRegistry(),
		Scale:    scale,
	}
	a.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.Metrics = metrics.New(a.Registry)

	if err := a.openStorage(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.openRedis(ctx); err != nil {
		a.Close()
		return nil, err
	}

	a.Bus = messaging.NewBus(messaging.Options{
		Logger:   log,
		Observer: a.Metrics.ObserveEventHandler,
	})
	a.closers = append(a.closers, func() { _ = a.Bus.Close() })

	if err := a.subscribe(); err != nil {
		a.Close()
		return nil, err
	}

	a.Source = codewars.NewClient(codewars.ClientConfig{
		BaseURL:           cfg.Codewars.BaseURL,
		Timeout:           cfg.Codewars.RequestTimeout,
		RequestsPerSecond: cfg.Codewars.RequestsPerSecond,
		Burst:             cfg.Codewars.Burst,
		OnCircuitChange:   a.Metrics.ObserveCircuit,
		Logger:            log,
	})

	a.UseCases = a.buildUseCases()
	return a, nil
}

// openStorage selects Postgres or the memory store.
func (a *App) openStorage(ctx context.Context) error {
	cfg := a.Config
	loc := cfg.App.Location

	if cfg.UseMemoryStore() {
		a.Logger.Warn("DATABASE_URL is not set, using the in-memory store")
		store := memory.NewStore(loc)
		a.Users = store.Users()
		a.Pairs = store.Mentorship()
		a.Katas = store.Katas()
		a.Chats = store.Chats()
		a.Tx = store
		a.Conversations = store.Conversations()
		a.Cache = store.ReportCache()
		return nil
	}

	conn, err := postgres.Open(ctx, postgres.Options{
		URL:             cfg.Database.URL,
		MaxConns:        cfg.Database.MaxConns,
		MinConns:        cfg.Database.MinConns,
		MaxConnLifetime: cfg.Database.ConnMaxLifetime,
		MaxConnIdleTime: cfg.Database.ConnMaxIdleTime,
		Location:        loc,
	})
	if err != nil {
		return fmt.Errorf("bootstrap: connect to database: %w", err)
	}
	a.DB = conn
	a.closers = append(a.closers, conn.Close)

	a.Users = postgres.NewUserRepository(conn)
	a.Pairs = postgres.NewMentorshipRepository(conn, loc)
	a.Katas = postgres.NewKataRepository(conn)
	a.Chats = postgres.NewChatRepository(conn)
	a.Tx = conn

	// Without Redis, conversations stay in this process. Reports are not
	// cached: another process writing the same database could not
	// invalidate them.
	a.Conversations = memory.NewStore(loc).Conversations()

	a.Logger.Info("database connection established")
	return nil
}

// openRedis moves the cache, the rotation lock and conversations to Redis.
// Without Redis the lock is a Postgres advisory lock, or a mutex in memory.
func (a *App) openRedis(ctx context.Context) error {
	cfg := a.Config
	if !cfg.UseRedis() {
		a.Locker = a.localLocker()
		return nil
	}

	client, err := redis.Dial(ctx, redis.Options{
		URL:          cfg.Redis.URL,
		Namespace:    cfg.Redis.Namespace,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
	})
	if err != nil {
		return fmt.Errorf("bootstrap: connect to redis: %w", err)
	}
	a.Redis = client
	a.closers = append(a.closers, func() { _ = client.Close() })

	a.Cache = redis.NewReportCache(client)
	a.Conversations = redis.NewConversationStore(client)
	a.Locker = redis.NewRotationLock(client, redis.RotationLockConfig{
		TTL:    cfg.Redis.LockTTL,
		Logger: a.Logger,
	})

	a.Logger.Info("redis connection established")
	return nil
}

// localLocker guards rotations when Redis is off. Processes sharing the
// database lock through it.
func (a *App) localLocker() command.Locker {
	if a.DB != nil {
		return postgres.NewRotationLock(a.DB, a.Logger)
	}
	return command.NewMutexLocker()
}

// subscribe registers the event handlers. The bus is synchronous, so a
// report is invalidated before the command that changed it replies.
func (a *App) subscribe() error {
	if a.Cache != nil {
		if err := eventhandler.NewOnReportChangedHandler(a.Cache, a.Logger).Subscribe(a.Bus); err != nil {
			return fmt.Errorf("bootstrap: subscribe report cache: %w", err)
		}
	}
	if err := eventhandler.NewOnMetricsHandler(a.Metrics, a.Logger).Subscribe(a.Bus); err != nil {
		return fmt.Errorf("bootstrap: subscribe metrics: %w", err)
	}
	return nil
}

func (a *App) buildUseCases() *UseCases {
	cfg := a.Config
	bus := a.Bus

	return &UseCases{
		Register: command.NewRegisterUserHandler(a.Users, bus),
		Mentor:   command.NewMakeMentorHandler(a.Users, bus),
		Authorize: command.NewAuthorizeUserHandler(a.Users, a.Source, a.Conversations, bus, command.AuthorizeUserHandlerConfig{
			PendingTTL: cfg.Telegram.ConversationTTL,
		}),
		Engine: command.NewRotationEngine(a.Users, a.Pairs, a.Tx, bus, command.RotationEngineConfig{
			Location: cfg.App.Location,
			Locker:   a.Locker,
			Logger:   a.Logger,
		}),
		Feedback: command.NewRecordFeedbackHandler(a.Users, a.Pairs, a.Scale, bus),
		Sync: command.NewSyncSolvedHandler(a.Users, a.Katas, a.Source, bus, command.SyncSolvedHandlerConfig{
			Concurrency: cfg.Codewars.SyncConcurrency,
			Logger:      a.Logger,
		}),
		AddKata: command.NewAddKataHandler(a.Katas, a.Source, bus),
		SetChat: command.NewSetChatHandler(a.Chats, bus),

		LatestRotation:  query.NewGetLatestRotationHandler(a.Users, a.Pairs, a.Cache),
		MentorLoad:      query.NewGetMentorLoadHandler(a.Users, a.Pairs, a.Cache),
		CurrentMentor:   query.NewGetCurrentMentorHandler(a.Users, a.Pairs),
		MentorAvailable: query.NewIsMentorAvailableHandler(a.Pairs, cfg.App.Location),
		MentorRatings:   query.NewGetMentorRatingsHandler(a.Users, a.Pairs),
		DailyStats:      query.NewGetDailyStatsHandler(a.Katas, a.Cache),
		MissingKatas:    query.NewGetMissingKatasHandler(a.Katas),
		CompletedTotal:  query.NewGetCompletedTotalHandler(a.Source),
	}
}

// Migrator returns the schema migrator. It fails in memory mode.
func (a *App) Migrator() (*postgres.Migrator, error) {
	if a.DB == nil {
		return nil, errors.New("migrations need DATABASE_URL")
	}
	return postgres.NewMigrator(a.DB), nil
}

// Migrate applies pending migrations. It is a no-op in memory mode.
func (a *App) Migrate(ctx context.Context) error {
	if a.DB == nil {
		return nil
	}
	applied, err := postgres.NewMigrator(a.DB).Migrate(ctx)
	if err != nil {
		return fmt.Errorf("bootstrap: migrate: %w", err)
	}
	a.Logger.Info("migrations completed", "applied", applied)
	return nil
}

// Readiness returns the checker for /health/ready.
func (a *App) Readiness() *handlers.ReadinessChecker {
	r := handlers.NewReadinessChecker(a.Config.App.Version)
	if a.DB != nil {
		r.AddCheck("postgres", handlers.PingCheck(a.DB))
	}
	if a.Redis != nil {
		r.AddCheck("redis", handlers.PingCheck(a.Redis))
	}
	return r
}

// Close releases connections in reverse order of opening.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
